package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/apc939/asistentehc/pkg/model"
)

// ErrDevice wraps capture device failures: permission denied, no device
// available, or a device-level fault. Recoverable by starting again.
var ErrDevice = errors.New("capture: device unavailable")

// ErrInvalidTransition is returned when an operation is not valid from the
// machine's current state.
var ErrInvalidTransition = errors.New("capture: invalid state transition")

// Recorder is the capture state machine: idle -> recording -> paused ->
// recording -> stopped -> idle. It exclusively owns the device handle for the
// lifetime of one recording session and releases it on every exit path.
//
// Elapsed time is derived from the wall-clock spans the machine spent in the
// recording state, so it never advances while paused.
type Recorder struct {
	mu sync.Mutex

	state    model.RecordingState
	device   Device
	mimeType string
	chunks   [][]byte
	artifact *model.AudioArtifact
	lastErr  string

	accumulated  time.Duration
	segmentStart time.Time

	stopDone chan struct{}

	now    func() time.Time
	logger *zap.Logger
}

// NewRecorder creates an idle Recorder that will capture through device.
func NewRecorder(device Device, logger *zap.Logger) *Recorder {
	return &Recorder{
		state:  model.RecordingStateIdle,
		device: device,
		now:    time.Now,
		logger: logger,
	}
}

// Start acquires the capture device and begins recording. Acquisition may
// suspend until the user answers the permission prompt; a denial or missing
// device fails with ErrDevice and the machine stays idle with no elapsed
// time running.
func (r *Recorder) Start(ctx context.Context, constraints Constraints) error {
	r.mu.Lock()
	if r.state != model.RecordingStateIdle {
		r.mu.Unlock()
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidTransition, r.state)
	}
	r.mu.Unlock()

	if err := r.device.Acquire(ctx, constraints); err != nil {
		r.mu.Lock()
		r.lastErr = fmt.Sprintf("failed to access microphone: %v", err)
		r.mu.Unlock()
		r.logger.Error("device acquisition failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDevice, err)
	}

	mimeType := selectMimeType(r.device)

	r.mu.Lock()
	r.mimeType = mimeType
	r.chunks = nil
	r.artifact = nil
	r.lastErr = ""
	r.accumulated = 0
	r.stopDone = make(chan struct{})
	done := r.stopDone
	r.mu.Unlock()

	err := r.device.Start(
		func(data []byte) { r.appendChunk(data) },
		func() { r.finalize(done) },
	)
	if err != nil {
		r.device.Release()
		r.mu.Lock()
		r.lastErr = fmt.Sprintf("failed to start capture: %v", err)
		r.stopDone = nil
		r.mu.Unlock()
		r.logger.Error("device start failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDevice, err)
	}

	r.mu.Lock()
	r.state = model.RecordingStateRecording
	r.segmentStart = r.now()
	r.mu.Unlock()

	r.logger.Info("recording started", zap.String("mime_type", mimeType))
	return nil
}

// appendChunk accumulates one captured chunk. Empty chunks are ignored.
func (r *Recorder) appendChunk(data []byte) {
	if len(data) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, data)
}

// finalize runs on the device's stop-complete signal, strictly after all
// buffered chunks were delivered. It assembles the immutable artifact,
// transitions to stopped and releases the device tracks.
func (r *Recorder) finalize(done chan struct{}) {
	r.mu.Lock()
	elapsed := r.elapsedLocked()
	r.artifact = &model.AudioArtifact{
		Data:            bytes.Join(r.chunks, nil),
		MimeType:        r.mimeType,
		DurationSeconds: elapsed.Seconds(),
		CreatedAt:       r.now(),
	}
	r.accumulated = elapsed
	r.segmentStart = time.Time{}
	r.state = model.RecordingStateStopped
	size := len(r.artifact.Data)
	r.mu.Unlock()

	r.device.Release()
	close(done)

	r.logger.Info("recording finalized",
		zap.Int("artifact_bytes", size),
		zap.Float64("duration_seconds", elapsed.Seconds()),
	)
}

// TogglePause pauses a running recording or resumes a paused one. Pause and
// resume are a single toggle from the caller's perspective.
func (r *Recorder) TogglePause() error {
	r.mu.Lock()
	state := r.state
	r.mu.Unlock()

	switch state {
	case model.RecordingStateRecording:
		return r.Pause()
	case model.RecordingStatePaused:
		return r.Resume()
	default:
		return fmt.Errorf("%w: cannot toggle pause from %s", ErrInvalidTransition, state)
	}
}

// Pause freezes capture. Elapsed time stops advancing.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	if r.state != model.RecordingStateRecording {
		r.mu.Unlock()
		return fmt.Errorf("%w: cannot pause from %s", ErrInvalidTransition, r.state)
	}
	r.mu.Unlock()

	if err := r.device.Pause(); err != nil {
		return fmt.Errorf("%w: %v", ErrDevice, err)
	}

	r.mu.Lock()
	r.accumulated += r.now().Sub(r.segmentStart)
	r.segmentStart = time.Time{}
	r.state = model.RecordingStatePaused
	r.mu.Unlock()

	r.logger.Info("recording paused")
	return nil
}

// Resume continues a paused recording.
func (r *Recorder) Resume() error {
	r.mu.Lock()
	if r.state != model.RecordingStatePaused {
		r.mu.Unlock()
		return fmt.Errorf("%w: cannot resume from %s", ErrInvalidTransition, r.state)
	}
	r.mu.Unlock()

	if err := r.device.Resume(); err != nil {
		return fmt.Errorf("%w: %v", ErrDevice, err)
	}

	r.mu.Lock()
	r.segmentStart = r.now()
	r.state = model.RecordingStateRecording
	r.mu.Unlock()

	r.logger.Info("recording resumed")
	return nil
}

// Stop finalizes the recording. It requests a device stop and suspends until
// the device delivers its final buffered data and signals completion, then
// returns the assembled artifact.
func (r *Recorder) Stop(ctx context.Context) (*model.AudioArtifact, error) {
	r.mu.Lock()
	if r.state != model.RecordingStateRecording && r.state != model.RecordingStatePaused {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot stop from %s", ErrInvalidTransition, r.state)
	}
	if r.state == model.RecordingStateRecording {
		r.accumulated += r.now().Sub(r.segmentStart)
		r.segmentStart = time.Time{}
	}
	done := r.stopDone
	r.mu.Unlock()

	if err := r.device.RequestStop(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDevice, err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	r.mu.Lock()
	artifact := r.artifact
	r.mu.Unlock()
	return artifact, nil
}

// Reset releases the device if still held and returns the machine to idle,
// clearing elapsed time, the artifact and any recorded error. Valid from any
// state.
func (r *Recorder) Reset() {
	r.mu.Lock()
	held := r.state == model.RecordingStateRecording || r.state == model.RecordingStatePaused
	r.state = model.RecordingStateIdle
	r.chunks = nil
	r.artifact = nil
	r.lastErr = ""
	r.mimeType = ""
	r.accumulated = 0
	r.segmentStart = time.Time{}
	r.stopDone = nil
	r.mu.Unlock()

	if held {
		r.device.Release()
	}

	r.logger.Info("recording reset")
}

// ElapsedSeconds reports whole seconds spent in the recording state.
func (r *Recorder) ElapsedSeconds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.elapsedLocked().Seconds())
}

func (r *Recorder) elapsedLocked() time.Duration {
	e := r.accumulated
	if r.state == model.RecordingStateRecording && !r.segmentStart.IsZero() {
		e += r.now().Sub(r.segmentStart)
	}
	return e
}

// State returns the machine's current state.
func (r *Recorder) State() model.RecordingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Artifact returns the finalized audio, which is non-nil exactly when the
// machine is stopped and the device completed finalization.
func (r *Recorder) Artifact() *model.AudioArtifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.artifact
}

// Session returns a snapshot of the capture session for status reporting.
func (r *Recorder) Session() model.RecordingSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return model.RecordingSession{
		State:          r.state,
		ElapsedSeconds: int(r.elapsedLocked().Seconds()),
		MimeType:       r.mimeType,
		HasArtifact:    r.artifact != nil,
		Error:          r.lastErr,
	}
}
