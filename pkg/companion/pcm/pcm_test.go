package pcm

import (
	"encoding/base64"
	"math"
	"testing"
)

func TestEncode_AllZeroIsAllZero(t *testing.T) {
	samples := make([]float32, 4096)
	frame := Encode(samples, InputSampleRate)

	if frame.Samples() != len(samples) {
		t.Fatalf("Samples()=%d, want %d", frame.Samples(), len(samples))
	}
	if len(frame.Data) != len(samples)*2 {
		t.Fatalf("len(Data)=%d, want %d", len(frame.Data), len(samples)*2)
	}
	for i, b := range frame.Data {
		if b != 0 {
			t.Fatalf("Data[%d]=%d, want 0", i, b)
		}
	}
	for i, s := range Decode(frame.Data) {
		if s != 0 {
			t.Fatalf("decoded[%d]=%d, want 0", i, s)
		}
	}
}

func TestEncode_ScalesAndClamps(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32768},
		{0.5, 16383},
		{-0.5, -16384},
		{2, 32767},
		{-3, -32768},
		{float32(math.NaN()), 0},
	}

	for _, tt := range tests {
		got := Decode(Encode([]float32{tt.in}, InputSampleRate).Data)
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("Encode(%v) = %v, want %d", tt.in, got, tt.want)
		}
	}
}

func TestEncode_LittleEndianLayout(t *testing.T) {
	frame := Encode([]float32{1}, InputSampleRate)
	if frame.Data[0] != 0xFF || frame.Data[1] != 0x7F {
		t.Fatalf("Data=% x, want ff 7f", frame.Data)
	}
}

func TestEncode_EmptyInput(t *testing.T) {
	frame := Encode(nil, InputSampleRate)
	if len(frame.Data) != 0 {
		t.Fatalf("len(Data)=%d, want 0", len(frame.Data))
	}
	if frame.MIMEType != "audio/pcm;rate=16000" {
		t.Fatalf("MIMEType=%q", frame.MIMEType)
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		mime    string
		want    int
		wantErr bool
	}{
		{"audio/pcm;rate=24000", 24000, false},
		{"audio/pcm; rate=16000", 16000, false},
		{"AUDIO/PCM", OutputSampleRate, false},
		{"audio/pcm;rate=abc", 0, true},
		{"audio/pcm;rate=0", 0, true},
		{"audio/wav", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseRate(tt.mime)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseRate(%q) expected error", tt.mime)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRate(%q) error: %v", tt.mime, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRate(%q) = %d, want %d", tt.mime, got, tt.want)
		}
	}
}

func TestDecodeBase64(t *testing.T) {
	frame := Encode([]float32{0.25, -0.25}, OutputSampleRate)
	data, err := DecodeBase64(frame.Base64())
	if err != nil {
		t.Fatalf("DecodeBase64 error: %v", err)
	}
	if string(data) != string(frame.Data) {
		t.Fatalf("DecodeBase64 mismatch: % x vs % x", data, frame.Data)
	}

	if _, err := DecodeBase64("not base64!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	if _, err := DecodeBase64(base64.StdEncoding.EncodeToString([]byte{1, 2, 3})); err == nil {
		t.Fatal("expected error for odd byte count")
	}
}

func TestLevel(t *testing.T) {
	if got := Level(nil); got != 0 {
		t.Fatalf("Level(nil)=%v, want 0", got)
	}
	if got := Level(make([]float32, 100)); got != 0 {
		t.Fatalf("Level(silence)=%v, want 0", got)
	}
	full := []float32{1, -1, 1, -1}
	if got := Level(full); math.Abs(got-1) > 1e-9 {
		t.Fatalf("Level(full scale)=%v, want 1", got)
	}
	if got := Level([]float32{4, -4}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("Level(clipped)=%v, want 1", got)
	}
}

func TestFramer_EmitsFixedFramesInOrder(t *testing.T) {
	f := NewFramer(4)

	if frames := f.Write([]float32{1, 2, 3}); len(frames) != 0 {
		t.Fatalf("expected no frames, got %d", len(frames))
	}
	frames := f.Write([]float32{4, 5, 6, 7, 8, 9})
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	want := [][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}}
	for i := range want {
		for j := range want[i] {
			if frames[i][j] != want[i][j] {
				t.Fatalf("frames[%d]=%v, want %v", i, frames[i], want[i])
			}
		}
	}
	if got := f.Buffered(); got != 1 {
		t.Fatalf("Buffered()=%d, want 1", got)
	}

	f.Reset()
	if got := f.Buffered(); got != 0 {
		t.Fatalf("Buffered() after Reset=%d, want 0", got)
	}
}

func TestFramer_DefaultSize(t *testing.T) {
	if got := NewFramer(0).Size(); got != FrameSamples {
		t.Fatalf("Size()=%d, want %d", got, FrameSamples)
	}
}
