package capture

import (
	"context"
	"errors"
	"sync"
)

// Constraints carries the audio hints requested when acquiring a capture
// device, mirroring a media-capture facility's track constraints.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	SampleRate       int
	MinSampleRate    int
	ChannelCount     int
}

// DefaultConstraints returns the constraints used for consultation capture:
// mono with a preferred 44.1 kHz rate and all cleanup hints on.
func DefaultConstraints() Constraints {
	return Constraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
		SampleRate:       44100,
		MinSampleRate:    8000,
		ChannelCount:     1,
	}
}

// preferredMimeTypes is the ordered encoding preference list. The empty
// string means the device's own default format.
var preferredMimeTypes = []string{
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/mp4",
	"audio/mpeg",
	"audio/wav",
	"",
}

// Device is the capture facility owned exclusively by one Recorder for the
// lifetime of a recording session. Acquire may suspend awaiting a user
// permission decision, so it takes a context. After Start, captured data
// arrives through onChunk; once RequestStop is called the device delivers
// any remaining buffered data through onChunk and only then calls onStop.
// Release must stop all tracks and is safe to call on every exit path.
type Device interface {
	Acquire(ctx context.Context, c Constraints) error
	IsTypeSupported(mimeType string) bool
	Start(onChunk func(data []byte), onStop func()) error
	Pause() error
	Resume() error
	RequestStop() error
	Release()
}

// selectMimeType walks the preference list and returns the first encoding
// the device accepts. The trailing empty entry always matches.
func selectMimeType(d Device) string {
	for _, mt := range preferredMimeTypes {
		if mt == "" || d.IsTypeSupported(mt) {
			return mt
		}
	}
	return ""
}

var errDeviceNotStarted = errors.New("capture: device not started")

// StreamDevice is a Device fed by pushed chunks, used when capture runs on a
// remote client that streams encoded audio to this process. It preserves the
// flush-then-stop ordering contract: chunks pushed before RequestStop are
// always delivered before the stop signal.
type StreamDevice struct {
	mu       sync.Mutex
	acquired bool
	started  bool
	paused   bool
	mimeType string
	onChunk  func([]byte)
	onStop   func()
}

// NewStreamDevice creates a StreamDevice that reports the given mime type as
// its only supported encoding. Empty means "accept the preference default".
func NewStreamDevice(mimeType string) *StreamDevice {
	return &StreamDevice{mimeType: mimeType}
}

func (d *StreamDevice) Acquire(_ context.Context, _ Constraints) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.acquired {
		return errors.New("capture: device already acquired")
	}
	d.acquired = true
	return nil
}

func (d *StreamDevice) IsTypeSupported(mimeType string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mimeType == "" || mimeType == d.mimeType
}

func (d *StreamDevice) Start(onChunk func([]byte), onStop func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.acquired {
		return errors.New("capture: device not acquired")
	}
	d.started = true
	d.paused = false
	d.onChunk = onChunk
	d.onStop = onStop
	return nil
}

// Push feeds one encoded chunk into the capture pipeline. Chunks pushed
// while paused are dropped, matching a paused encoder that emits no data.
func (d *StreamDevice) Push(data []byte) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return errDeviceNotStarted
	}
	if d.paused || len(data) == 0 {
		d.mu.Unlock()
		return nil
	}
	onChunk := d.onChunk
	d.mu.Unlock()

	onChunk(data)
	return nil
}

func (d *StreamDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return errDeviceNotStarted
	}
	d.paused = true
	return nil
}

func (d *StreamDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return errDeviceNotStarted
	}
	d.paused = false
	return nil
}

func (d *StreamDevice) RequestStop() error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return errDeviceNotStarted
	}
	d.started = false
	onStop := d.onStop
	d.mu.Unlock()

	// Pushed chunks were delivered synchronously, so nothing is buffered;
	// the stop signal is already ordered after all prior data.
	if onStop != nil {
		onStop()
	}
	return nil
}

func (d *StreamDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquired = false
	d.started = false
	d.paused = false
	d.onChunk = nil
	d.onStop = nil
}
