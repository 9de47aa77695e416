package synth

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/sonalabs/sona-tts/internal/audio"
)

// Synthetic emits a speaker-keyed sine wave with gaussian noise. It is the
// terminal cascade tier and the in-call fallback target: construction and
// generation never fail and nothing here touches the network or an
// accelerator.
type Synthetic struct {
	noise func() float64
}

// NewSynthetic uses a standard gaussian noise source.
func NewSynthetic() *Synthetic {
	return &Synthetic{noise: rand.NormFloat64}
}

// NewSyntheticWithNoise fixes the noise source. Tests pass a silent source
// for exact waveform assertions.
func NewSyntheticWithNoise(noise func() float64) *Synthetic {
	return &Synthetic{noise: noise}
}

func (s *Synthetic) Generate(_ context.Context, req Request) (audio.Buffer, error) {
	n := boundedSampleCount(req.MaxAudioLengthMS)
	samples := make([]float64, n)
	if n > 0 {
		// The time axis spans the requested duration even when the sample
		// count was capped, matching the generator this stands in for.
		frequency := 440.0 + float64(req.Speaker)*100.0
		duration := float64(req.MaxAudioLengthMS) / 1000.0
		step := duration / float64(n)
		for i := range samples {
			t := float64(i) * step
			samples[i] = 0.3*math.Sin(2*math.Pi*frequency*t) + 0.05*s.noise()
		}
	}
	return audio.Buffer{Samples: samples, SampleRate: SampleRate}, nil
}

func (s *Synthetic) SampleRate() int { return SampleRate }

func (s *Synthetic) Tier() string { return TierSynthetic }
