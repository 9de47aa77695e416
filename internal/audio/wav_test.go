package audio

import (
	"math"
	"testing"
)

func TestDurationMS(t *testing.T) {
	cases := []struct {
		name    string
		samples int
		rate    int
		want    int
	}{
		{"five seconds", 120000, 24000, 5000},
		{"rounds down", 100, 24000, 4},
		{"empty", 0, 24000, 0},
		{"zero rate", 100, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := Buffer{Samples: make([]float64, tc.samples), SampleRate: tc.rate}
			if got := buf.DurationMS(); got != tc.want {
				t.Fatalf("DurationMS() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestWAVRoundTrip(t *testing.T) {
	src := Buffer{SampleRate: 24000, Samples: make([]float64, 2400)}
	for i := range src.Samples {
		src.Samples[i] = 0.3 * math.Sin(2*math.Pi*440*float64(i)/24000)
	}

	raw, err := EncodeWAV(src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeWAV(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.SampleRate != src.SampleRate {
		t.Fatalf("sample rate = %d, want %d", got.SampleRate, src.SampleRate)
	}
	if len(got.Samples) != len(src.Samples) {
		t.Fatalf("sample count = %d, want %d", len(got.Samples), len(src.Samples))
	}
	for i := range src.Samples {
		if diff := math.Abs(got.Samples[i] - src.Samples[i]); diff > 1.0/math.MaxInt16+1e-9 {
			t.Fatalf("sample %d diverged by %f after quantization", i, diff)
		}
	}
}

func TestBase64WAVRoundTrip(t *testing.T) {
	src := Buffer{SampleRate: 24000, Samples: []float64{0, 0.5, -0.5, 0.25}}

	payload, err := EncodeBase64WAV(src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeBase64WAV(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Samples) != len(src.Samples) {
		t.Fatalf("sample count = %d, want %d", len(got.Samples), len(src.Samples))
	}
	if got.DurationMS() != src.DurationMS() {
		t.Fatalf("duration = %d, want %d", got.DurationMS(), src.DurationMS())
	}
}

func TestDecodeBase64WAVRejectsGarbage(t *testing.T) {
	if _, err := DecodeBase64WAV("not base64!!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	if _, err := DecodeBase64WAV("aGVsbG8="); err == nil {
		t.Fatal("expected error for non-wav payload")
	}
}

func TestSampleClamping(t *testing.T) {
	if got := sampleToInt16(1.5); got != math.MaxInt16 {
		t.Fatalf("positive clamp = %d, want %d", got, math.MaxInt16)
	}
	if got := sampleToInt16(-1.5); got != -math.MaxInt16 {
		t.Fatalf("negative clamp = %d, want %d", got, -math.MaxInt16)
	}
	if got := sampleToInt16(0); got != 0 {
		t.Fatalf("zero sample = %d, want 0", got)
	}
}
