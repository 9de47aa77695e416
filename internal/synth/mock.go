package synth

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"strings"

	"github.com/sonalabs/sona-tts/internal/audio"
)

const maxModelTokens = 512

// Mock stands in for a real model: it tokenizes the input the way the real
// integration would and emits low-amplitude noise in place of decoded audio
// frames. Output is deterministic for a given text and speaker.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) Generate(_ context.Context, req Request) (audio.Buffer, error) {
	tokens := tokenize(req.Text)
	rng := rand.New(rand.NewPCG(seedFromTokens(tokens), uint64(int64(req.Speaker))))

	n := boundedSampleCount(req.MaxAudioLengthMS)
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.1 * rng.NormFloat64()
	}
	return audio.Buffer{Samples: samples, SampleRate: SampleRate}, nil
}

func (m *Mock) SampleRate() int { return SampleRate }

func (m *Mock) Tier() string { return TierMock }

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) > maxModelTokens {
		fields = fields[:maxModelTokens]
	}
	return fields
}

func seedFromTokens(tokens []string) uint64 {
	h := fnv.New64a()
	for _, tok := range tokens {
		h.Write([]byte(tok))
		h.Write([]byte{0})
	}
	return h.Sum64()
}
