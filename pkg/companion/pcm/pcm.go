// Package pcm converts between captured float samples and the 16-bit
// little-endian PCM wire format used by the live session.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// InputSampleRate is the capture rate streamed to the remote session.
	InputSampleRate = 16000

	// OutputSampleRate is the rate of synthesized speech coming back.
	OutputSampleRate = 24000

	// FrameSamples is the number of samples per streamed capture frame.
	FrameSamples = 4096

	mimePrefix = "audio/pcm"
)

// Frame is an encoded chunk ready to stream.
type Frame struct {
	Data     []byte
	MIMEType string
}

// Samples returns the number of 16-bit samples in the frame.
func (f Frame) Samples() int {
	return len(f.Data) / 2
}

// Base64 returns the payload as standard base64, for text transports.
func (f Frame) Base64() string {
	return base64.StdEncoding.EncodeToString(f.Data)
}

// MIMEType returns the tag identifying raw PCM at sampleRate.
func MIMEType(sampleRate int) string {
	return fmt.Sprintf("%s;rate=%d", mimePrefix, sampleRate)
}

// ParseRate extracts the sample rate from a PCM MIME tag.
// Tags without a rate parameter default to OutputSampleRate.
func ParseRate(mime string) (int, error) {
	parts := strings.Split(mime, ";")
	if len(parts) == 0 || !strings.EqualFold(strings.TrimSpace(parts[0]), mimePrefix) {
		return 0, fmt.Errorf("unsupported audio mime type %q", mime)
	}
	for _, p := range parts[1:] {
		key, val, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "rate") {
			continue
		}
		rate, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil || rate <= 0 {
			return 0, fmt.Errorf("invalid sample rate in mime type %q", mime)
		}
		return rate, nil
	}
	return OutputSampleRate, nil
}

// Encode converts samples in [-1, 1] to PCM16LE. Out of range values are clamped.
func Encode(samples []float32, sampleRate int) Frame {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toInt16(s)))
	}
	return Frame{Data: out, MIMEType: MIMEType(sampleRate)}
}

func toInt16(s float32) int16 {
	if math.IsNaN(float64(s)) {
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7FFF)
}

// Decode reads PCM16LE bytes into samples. A trailing odd byte is ignored.
func Decode(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// DecodeBase64 decodes a base64 PCM16LE payload.
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("decode audio payload: odd byte count %d", len(data))
	}
	return data, nil
}

// Level computes the RMS level of float samples. Returns a value in [0, 1].
func Level(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
