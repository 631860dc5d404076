package upload

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"strings"
)

// MetadataProber estimates audio duration from container metadata, decoding
// just enough of each format: the WAV fmt chunk, the FLAC stream info block,
// the WebM segment info, the last Ogg page's granule position, the MP4 movie
// header, or the first frame header of constant-bitrate MPEG audio. Anything
// else fails the probe, which the validator reports as an undeterminable
// duration.
type MetadataProber struct{}

// NewMetadataProber creates a MetadataProber.
func NewMetadataProber() *MetadataProber {
	return &MetadataProber{}
}

// ProbeDuration returns the estimated duration in seconds. The container is
// recognized by its magic bytes first; the declared type only breaks ties for
// content without a usable signature.
func (p *MetadataProber) ProbeDuration(data []byte, mimeType string) (float64, error) {
	mt := strings.ToLower(mimeType)
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")) || strings.Contains(mt, "wav"):
		return wavDuration(data)
	case bytes.HasPrefix(data, []byte("fLaC")) || strings.Contains(mt, "flac"):
		return flacDuration(data)
	case isEBML(data) || strings.Contains(mt, "webm") || strings.Contains(mt, "matroska"):
		return webmDuration(data)
	case bytes.HasPrefix(data, []byte("OggS")) || strings.Contains(mt, "ogg") || strings.Contains(mt, "opus"):
		return oggDuration(data)
	case isMP4(data) || strings.Contains(mt, "mp4") || strings.Contains(mt, "m4a"):
		return mp4Duration(data)
	case strings.Contains(mt, "mpeg") || strings.Contains(mt, "mp3"):
		return mpegDuration(data)
	default:
		return 0, fmt.Errorf("no duration metadata for %q", mimeType)
	}
}

func isEBML(data []byte) bool {
	return len(data) >= 4 && binary.BigEndian.Uint32(data) == ebmlHeaderID
}

func isMP4(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp"))
}

// wavDuration reads the fmt chunk's byte rate and the data chunk's length.
func wavDuration(data []byte) (float64, error) {
	if len(data) < 12 || !bytes.HasPrefix(data, []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return 0, fmt.Errorf("not a RIFF/WAVE file")
	}

	var byteRate uint32
	var dataLen uint32

	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		body := offset + 8

		switch chunkID {
		case "fmt ":
			if body+16 > len(data) {
				return 0, fmt.Errorf("truncated fmt chunk")
			}
			byteRate = binary.LittleEndian.Uint32(data[body+8 : body+12])
		case "data":
			dataLen = chunkSize
		}

		// Chunks are word-aligned.
		offset = body + int(chunkSize)
		if chunkSize%2 == 1 {
			offset++
		}
	}

	if byteRate == 0 || dataLen == 0 {
		return 0, fmt.Errorf("missing fmt or data chunk")
	}

	return float64(dataLen) / float64(byteRate), nil
}

// flacDuration divides the STREAMINFO total sample count by the sample rate.
func flacDuration(data []byte) (float64, error) {
	// "fLaC", 4-byte block header, then the 34-byte STREAMINFO block.
	const streamInfoEnd = 4 + 4 + 34
	if len(data) < streamInfoEnd || !bytes.HasPrefix(data, []byte("fLaC")) {
		return 0, fmt.Errorf("not a FLAC stream")
	}
	if data[4]&0x7F != 0 {
		return 0, fmt.Errorf("FLAC stream does not start with STREAMINFO")
	}

	info := data[8:streamInfoEnd]
	sampleRate := uint32(info[10])<<12 | uint32(info[11])<<4 | uint32(info[12])>>4
	totalSamples := uint64(info[13]&0x0F)<<32 |
		uint64(info[14])<<24 | uint64(info[15])<<16 | uint64(info[16])<<8 | uint64(info[17])

	if sampleRate == 0 || totalSamples == 0 {
		return 0, fmt.Errorf("FLAC stream info carries no duration")
	}
	return float64(totalSamples) / float64(sampleRate), nil
}

// EBML element IDs for the WebM/Matroska subset the prober needs.
const (
	ebmlHeaderID    = 0x1A45DFA3
	segmentID       = 0x18538067
	segmentInfoID   = 0x1549A966
	timecodeScaleID = 0x2AD7B1
	durationID      = 0x4489
)

// webmDuration reads Segment > Info > Duration, scaled by the segment's
// timecode scale (nanoseconds per tick, one millisecond by default).
func webmDuration(data []byte) (float64, error) {
	if !isEBML(data) {
		return 0, fmt.Errorf("not an EBML stream")
	}

	info, err := ebmlDescend(data, segmentID, segmentInfoID)
	if err != nil {
		return 0, err
	}

	scale := float64(1_000_000)
	var raw float64
	var found bool

	for off := 0; off < len(info); {
		id, body, next, err := ebmlElement(info, off)
		if err != nil {
			return 0, err
		}
		switch id {
		case timecodeScaleID:
			scale = float64(ebmlUint(body))
		case durationID:
			raw, err = ebmlFloat(body)
			if err != nil {
				return 0, err
			}
			found = true
		}
		off = next
	}

	if !found || scale == 0 {
		// MediaRecorder streams written without a rewind pass have no
		// Duration element.
		return 0, fmt.Errorf("WebM segment info carries no duration")
	}
	return raw * scale / 1e9, nil
}

// ebmlDescend follows a path of container element IDs and returns the body of
// the last one.
func ebmlDescend(data []byte, path ...uint64) ([]byte, error) {
	level := data
	for _, want := range path {
		found := false
		for off := 0; off < len(level); {
			id, body, next, err := ebmlElement(level, off)
			if err != nil {
				return nil, err
			}
			if id == want {
				level = body
				found = true
				break
			}
			off = next
		}
		if !found {
			return nil, fmt.Errorf("EBML element %#x not found", want)
		}
	}
	return level, nil
}

// ebmlElement decodes the element starting at off and returns its ID, body
// and the offset of the next sibling. An unknown-size element (legal for a
// live-written Segment) runs to the end of the data.
func ebmlElement(data []byte, off int) (uint64, []byte, int, error) {
	id, n, err := ebmlVint(data[off:], true)
	if err != nil {
		return 0, nil, 0, err
	}
	size, m, err := ebmlVint(data[off+n:], false)
	if err != nil {
		return 0, nil, 0, err
	}

	start := off + n + m
	end := start + int(size)
	if size == uint64(1)<<(7*m)-1 || end > len(data) {
		end = len(data)
	}
	return id, data[start:end], end, nil
}

// ebmlVint decodes a variable-length integer. Element IDs keep the length
// marker bit, sizes strip it.
func ebmlVint(data []byte, keepMarker bool) (uint64, int, error) {
	if len(data) == 0 || data[0] == 0 {
		return 0, 0, fmt.Errorf("invalid EBML length descriptor")
	}
	n := bits.LeadingZeros8(data[0]) + 1
	if n > len(data) {
		return 0, 0, fmt.Errorf("truncated EBML element")
	}

	v := uint64(data[0])
	if !keepMarker {
		v &= uint64(0xFF >> n)
	}
	for i := 1; i < n; i++ {
		v = v<<8 | uint64(data[i])
	}
	return v, n, nil
}

func ebmlUint(body []byte) uint64 {
	var v uint64
	for _, b := range body {
		v = v<<8 | uint64(b)
	}
	return v
}

func ebmlFloat(body []byte) (float64, error) {
	switch len(body) {
	case 4:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(body))), nil
	case 8:
		return math.Float64frombits(binary.BigEndian.Uint64(body)), nil
	default:
		return 0, fmt.Errorf("EBML float must be 4 or 8 bytes, got %d", len(body))
	}
}

// oggDuration divides the last page's granule position by the codec sample
// rate. Opus granule positions always count 48 kHz samples regardless of the
// input rate; Vorbis uses the rate from its identification header.
func oggDuration(data []byte) (float64, error) {
	if !bytes.HasPrefix(data, []byte("OggS")) {
		return 0, fmt.Errorf("not an Ogg stream")
	}

	rate, preSkip, err := oggSampleRate(data)
	if err != nil {
		return 0, err
	}

	last := bytes.LastIndex(data, []byte("OggS"))
	if last+14 > len(data) {
		return 0, fmt.Errorf("truncated Ogg page header")
	}
	granule := int64(binary.LittleEndian.Uint64(data[last+6 : last+14]))
	if granule <= 0 {
		return 0, fmt.Errorf("Ogg stream carries no granule position")
	}

	samples := granule - preSkip
	if samples < 0 {
		samples = 0
	}
	return float64(samples) / rate, nil
}

// oggSampleRate finds the codec identification header on the first page.
func oggSampleRate(data []byte) (rate float64, preSkip int64, err error) {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if i := bytes.Index(head, []byte("OpusHead")); i >= 0 && i+12 <= len(data) {
		return 48000, int64(binary.LittleEndian.Uint16(data[i+10 : i+12])), nil
	}
	if i := bytes.Index(head, []byte("\x01vorbis")); i >= 0 && i+16 <= len(data) {
		r := binary.LittleEndian.Uint32(data[i+12 : i+16])
		if r == 0 {
			return 0, 0, fmt.Errorf("Vorbis header carries no sample rate")
		}
		return float64(r), 0, nil
	}
	return 0, 0, fmt.Errorf("unrecognized Ogg codec")
}

// mp4Duration reads the movie header's duration and timescale.
func mp4Duration(data []byte) (float64, error) {
	i := bytes.Index(data, []byte("mvhd"))
	if i < 0 {
		return 0, fmt.Errorf("no mvhd box found")
	}
	body := data[i+4:]
	if len(body) < 1 {
		return 0, fmt.Errorf("truncated mvhd box")
	}

	var timescale uint32
	var duration uint64
	switch body[0] {
	case 0:
		if len(body) < 20 {
			return 0, fmt.Errorf("truncated mvhd box")
		}
		timescale = binary.BigEndian.Uint32(body[12:16])
		duration = uint64(binary.BigEndian.Uint32(body[16:20]))
	case 1:
		if len(body) < 32 {
			return 0, fmt.Errorf("truncated mvhd box")
		}
		timescale = binary.BigEndian.Uint32(body[20:24])
		duration = binary.BigEndian.Uint64(body[24:32])
	default:
		return 0, fmt.Errorf("unknown mvhd version %d", body[0])
	}

	if timescale == 0 || duration == 0 {
		return 0, fmt.Errorf("mvhd box carries no duration")
	}
	return float64(duration) / float64(timescale), nil
}

var mpegBitrates = [...]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}

// mpegDuration estimates duration assuming constant bitrate, from the first
// MPEG-1 Layer III frame header found after an optional ID3v2 tag.
func mpegDuration(data []byte) (float64, error) {
	audio := data
	if bytes.HasPrefix(data, []byte("ID3")) && len(data) >= 10 {
		// Syncsafe 28-bit tag size.
		tagSize := int(data[6])<<21 | int(data[7])<<14 | int(data[8])<<7 | int(data[9])
		if 10+tagSize < len(data) {
			audio = data[10+tagSize:]
		}
	}

	for i := 0; i+4 <= len(audio); i++ {
		if audio[i] != 0xFF || audio[i+1]&0xE0 != 0xE0 {
			continue
		}
		// MPEG-1 Layer III only.
		if audio[i+1]&0x1E != 0x1A {
			continue
		}
		bitrateKbps := mpegBitrates[audio[i+2]>>4]
		if bitrateKbps == 0 {
			continue
		}
		return float64(len(audio)) * 8 / float64(bitrateKbps*1000), nil
	}

	return 0, fmt.Errorf("no MPEG frame header found")
}
