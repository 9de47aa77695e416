package synth

import (
	"context"
	"log/slog"

	"github.com/sonalabs/sona-tts/internal/audio"
)

// Result is one completed generation: the produced audio, the tier that
// produced it, and whether the in-call synthetic fallback was taken.
type Result struct {
	Buffer   audio.Buffer
	Tier     string
	FellBack bool
}

// Generator couples the resolver with the in-call fallback policy: when the
// resolved tier fails mid-generation the request degrades to the synthetic
// waveform instead of erroring. This is distinct from the resolution
// cascade, which only decides which generator exists.
type Generator struct {
	resolver *Resolver
	fallback *Synthetic
	logger   *slog.Logger
}

func NewGenerator(resolver *Resolver, logger *slog.Logger) *Generator {
	return &Generator{
		resolver: resolver,
		fallback: NewSynthetic(),
		logger:   logger.With(slog.String("component", "generator")),
	}
}

func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	handle, err := g.resolver.Resolve(ctx)
	if err != nil {
		return Result{}, err
	}
	buf, err := handle.Generate(ctx, req)
	if err != nil {
		g.logger.Warn("generation failed, falling back to synthetic waveform",
			slog.String("tier", handle.Tier()), slogError(err))
		buf, _ = g.fallback.Generate(ctx, req)
		return Result{Buffer: buf, Tier: TierSynthetic, FellBack: true}, nil
	}
	return Result{Buffer: buf, Tier: handle.Tier()}, nil
}

// SampleRate reports the fixed output rate shared by every tier.
func (g *Generator) SampleRate() int { return SampleRate }

// Loaded reports whether a generator handle has been resolved yet.
func (g *Generator) Loaded() bool { return g.resolver.Handle() != nil }

// Device reports the compute device selected at startup.
func (g *Generator) Device() string { return g.resolver.Device() }

// Tier reports the resolved tier name, or empty before first resolution.
func (g *Generator) Tier() string {
	if h := g.resolver.Handle(); h != nil {
		return h.Tier()
	}
	return ""
}
