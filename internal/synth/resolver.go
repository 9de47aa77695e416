package synth

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/sonalabs/sona-tts/internal/config"
)

// Resolver runs the tier cascade at most once per process and caches the
// winning handle. Re-resolution happens only when no handle exists, never
// because an individual generation call failed.
type Resolver struct {
	cfg    config.SynthConfig
	logger *slog.Logger
	device string

	mu     sync.Mutex
	handle Synthesizer
}

func NewResolver(cfg config.SynthConfig, logger *slog.Logger) *Resolver {
	device := cfg.Device
	if device == "" || device == "auto" {
		device = DetectDevice(DefaultProbes())
	}
	return &Resolver{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "synth-resolver")),
		device: device,
	}
}

// Device reports the compute device selected for this process.
func (r *Resolver) Device() string { return r.device }

// Handle returns the cached generator, or nil before first resolution.
func (r *Resolver) Handle() Synthesizer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle
}

// Reset clears the cached handle so the next Resolve walks the cascade again.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handle = nil
}

// Resolve returns the cached generator or walks the tier cascade to build
// one: first success wins, tier failures are logged and skipped. The model
// compilation kill switch is exported before any tier is attempted.
func (r *Resolver) Resolve(ctx context.Context) (Synthesizer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle != nil {
		return r.handle, nil
	}

	if r.cfg.DisableModelCompile {
		os.Setenv("NO_TORCH_COMPILE", "1")
	}

	var attempts []TierAttempt
	for _, tier := range r.cfg.Tiers {
		s, err := r.buildTier(ctx, tier)
		if err != nil {
			r.logger.Warn("generator tier unavailable", slog.String("tier", tier), slogError(err))
			attempts = append(attempts, TierAttempt{Tier: tier, Err: err})
			continue
		}
		r.logger.Info("generator resolved",
			slog.String("tier", tier),
			slog.String("device", r.device),
			slog.Int("sample_rate", s.SampleRate()))
		r.handle = s
		return s, nil
	}
	return nil, &ModelLoadError{Attempts: attempts}
}

func (r *Resolver) buildTier(ctx context.Context, tier string) (Synthesizer, error) {
	switch tier {
	case TierProper:
		if r.cfg.ProperCommand == "" {
			return nil, fmt.Errorf("proper_command not configured")
		}
		return NewExec(r.cfg.ProperCommand, r.device)
	case TierHosted:
		return NewHosted(ctx, r.cfg.HostedEndpoint, r.cfg.HostedModel, r.device,
			time.Duration(r.cfg.HostedTimeoutMS)*time.Millisecond)
	case TierMock:
		return NewMock(), nil
	case TierSynthetic:
		return NewSynthetic(), nil
	default:
		return nil, fmt.Errorf("unknown tier %q", tier)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
