// Package synth resolves and implements the speech generator capability:
// an ordered cascade of tiers (subprocess integration, hosted endpoint,
// mock model, synthetic waveform) behind a single Synthesizer interface.
package synth

import (
	"context"
	"fmt"
	"strings"

	"github.com/sonalabs/sona-tts/internal/audio"
)

const (
	// SampleRate is fixed for all audio produced by this service.
	SampleRate = 24000
	// MaxSamples caps every generated buffer at ten seconds of audio,
	// regardless of the requested length.
	MaxSamples = 240000
)

// Tier names, in default cascade order.
const (
	TierProper    = "proper"
	TierHosted    = "hosted"
	TierMock      = "mock"
	TierSynthetic = "synthetic"
)

// Request carries one generation call. Context segments are optional and
// already normalized.
type Request struct {
	Text             string
	Speaker          int
	Context          []Segment
	MaxAudioLengthMS int
}

// Synthesizer is the generator capability resolved by the tier cascade.
// Implementations hold no request-scoped state; every call is independent.
type Synthesizer interface {
	Generate(ctx context.Context, req Request) (audio.Buffer, error)
	SampleRate() int
	Tier() string
}

// boundedSampleCount applies the ten second ceiling to a requested length.
func boundedSampleCount(maxAudioLengthMS int) int {
	if maxAudioLengthMS <= 0 {
		return 0
	}
	n := int(int64(maxAudioLengthMS) * SampleRate / 1000)
	if n > MaxSamples {
		n = MaxSamples
	}
	return n
}

// TierAttempt records one failed tier during resolution.
type TierAttempt struct {
	Tier string
	Err  error
}

// ModelLoadError reports that every configured tier failed to produce a
// generator. With the synthetic tier in the chain it is unreachable; it
// exists as a checked invariant, not a live path.
type ModelLoadError struct {
	Attempts []TierAttempt
}

func (e *ModelLoadError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Tier, a.Err))
	}
	return "no generator tier available: " + strings.Join(parts, "; ")
}
