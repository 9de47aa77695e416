package engine

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sonalabs/sona-tts/internal/audio"
	"github.com/sonalabs/sona-tts/internal/config"
	"github.com/sonalabs/sona-tts/internal/history"
	"github.com/sonalabs/sona-tts/internal/protocol"
	"github.com/sonalabs/sona-tts/internal/synth"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, synthCfg config.SynthConfig) *Engine {
	t.Helper()
	log := testLogger()
	store, err := history.Open(t.Context(), config.HistoryConfig{
		Enabled: true,
		Path:    filepath.Join(t.TempDir(), "history.db"),
	}, log)
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	gen := synth.NewGenerator(synth.NewResolver(synthCfg, log), log)
	return New(gen, store, 10000, log)
}

func lastRecord(t *testing.T, e *Engine) history.Record {
	t.Helper()
	recs, err := e.History().Recent(t.Context(), 1)
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected one history record, got %d", len(recs))
	}
	return recs[0]
}

func TestHandleGenerateSuccess(t *testing.T) {
	e := newTestEngine(t, config.SynthConfig{Device: "cpu", Tiers: []string{synth.TierSynthetic}})

	resp, err := e.HandleGenerate(t.Context(), SourceHTTP, protocol.GenerateRequest{
		Text:             "the quick brown fox",
		Speaker:          2,
		MaxAudioLengthMS: 1000,
	})
	if err != nil {
		t.Fatalf("HandleGenerate: %v", err)
	}
	if resp.SampleRate != synth.SampleRate {
		t.Errorf("sample rate = %d, want %d", resp.SampleRate, synth.SampleRate)
	}
	if resp.DurationMS != 1000 {
		t.Errorf("duration = %dms, want 1000ms", resp.DurationMS)
	}
	buf, err := audio.DecodeBase64WAV(resp.AudioBase64)
	if err != nil {
		t.Fatalf("response audio did not decode: %v", err)
	}
	if len(buf.Samples) != synth.SampleRate {
		t.Errorf("decoded %d samples, want %d", len(buf.Samples), synth.SampleRate)
	}

	rec := lastRecord(t, e)
	if rec.Outcome != history.OutcomeOK {
		t.Errorf("outcome = %q, want %q", rec.Outcome, history.OutcomeOK)
	}
	if rec.Source != SourceHTTP {
		t.Errorf("source = %q, want %q", rec.Source, SourceHTTP)
	}
	if rec.Tier != synth.TierSynthetic {
		t.Errorf("tier = %q, want %q", rec.Tier, synth.TierSynthetic)
	}
	if rec.DurationMS != 1000 {
		t.Errorf("recorded duration = %dms, want 1000ms", rec.DurationMS)
	}
}

func TestHandleGenerateRejectsEmptyText(t *testing.T) {
	e := newTestEngine(t, config.SynthConfig{Device: "cpu", Tiers: []string{synth.TierSynthetic}})

	_, err := e.HandleGenerate(t.Context(), SourceWorker, protocol.GenerateRequest{Text: "   "})
	var verr *InputValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected InputValidationError, got %v", err)
	}
	if e.Loaded() {
		t.Error("validation failure must not trigger generator resolution")
	}

	rec := lastRecord(t, e)
	if rec.Outcome != history.OutcomeValidationFailed {
		t.Errorf("outcome = %q, want %q", rec.Outcome, history.OutcomeValidationFailed)
	}
	if rec.Source != SourceWorker {
		t.Errorf("source = %q, want %q", rec.Source, SourceWorker)
	}
}

func TestHandleGenerateAppliesDefaultLength(t *testing.T) {
	e := newTestEngine(t, config.SynthConfig{Device: "cpu", Tiers: []string{synth.TierSynthetic}})

	resp, err := e.HandleGenerate(t.Context(), SourceHTTP, protocol.GenerateRequest{Text: "no length given"})
	if err != nil {
		t.Fatalf("HandleGenerate: %v", err)
	}
	if resp.DurationMS != 10000 {
		t.Errorf("duration = %dms, want the 10000ms default", resp.DurationMS)
	}
	if rec := lastRecord(t, e); rec.MaxAudioLengthMS != 10000 {
		t.Errorf("recorded max length = %d, want 10000", rec.MaxAudioLengthMS)
	}
}

func TestHandleGenerateDropsMalformedContext(t *testing.T) {
	e := newTestEngine(t, config.SynthConfig{Device: "cpu", Tiers: []string{synth.TierSynthetic}})

	_, err := e.HandleGenerate(t.Context(), SourceHTTP, protocol.GenerateRequest{
		Text:             "with context",
		MaxAudioLengthMS: 200,
		Context: []map[string]any{
			{"text": "hi there", "speaker": 1},
			{"text": "missing speaker"},
			{"speaker": 3},
		},
	})
	if err != nil {
		t.Fatalf("HandleGenerate: %v", err)
	}

	rec := lastRecord(t, e)
	if rec.ContextSegments != 1 {
		t.Errorf("kept %d context segments, want 1", rec.ContextSegments)
	}
	if rec.ContextDropped != 2 {
		t.Errorf("dropped %d context records, want 2", rec.ContextDropped)
	}
}

func TestHandleGenerateSoftFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			io.WriteString(w, `{"status":"healthy","model_loaded":true}`)
		case "/generate":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"detail":"model crashed"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := newTestEngine(t, config.SynthConfig{
		Device:          "cpu",
		Tiers:           []string{synth.TierHosted},
		HostedEndpoint:  srv.URL,
		HostedTimeoutMS: 2000,
	})

	resp, err := e.HandleGenerate(t.Context(), SourceHTTP, protocol.GenerateRequest{
		Text:             "please fall back",
		MaxAudioLengthMS: 100,
	})
	if err != nil {
		t.Fatalf("soft fallback must not surface an error, got %v", err)
	}
	if resp.DurationMS != 100 {
		t.Errorf("duration = %dms, want 100ms", resp.DurationMS)
	}

	rec := lastRecord(t, e)
	if rec.Outcome != history.OutcomeFellBack {
		t.Errorf("outcome = %q, want %q", rec.Outcome, history.OutcomeFellBack)
	}
	if rec.Tier != synth.TierSynthetic {
		t.Errorf("tier = %q, want %q", rec.Tier, synth.TierSynthetic)
	}
	if e.Tier() != synth.TierHosted {
		t.Errorf("resolved tier = %q, want %q to stay cached", e.Tier(), synth.TierHosted)
	}
}

func TestHandleGenerateResolutionFailure(t *testing.T) {
	e := newTestEngine(t, config.SynthConfig{
		Device:        "cpu",
		Tiers:         []string{synth.TierProper},
		ProperCommand: "/nonexistent/generator --device cpu",
	})

	_, err := e.HandleGenerate(t.Context(), SourceHTTP, protocol.GenerateRequest{Text: "hello"})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if genErr.Stage != "synthesize" {
		t.Errorf("stage = %q, want synthesize", genErr.Stage)
	}
	var loadErr *synth.ModelLoadError
	if !errors.As(err, &loadErr) {
		t.Errorf("expected a wrapped ModelLoadError in %v", err)
	}

	if rec := lastRecord(t, e); rec.Outcome != history.OutcomeGenerationFailed {
		t.Errorf("outcome = %q, want %q", rec.Outcome, history.OutcomeGenerationFailed)
	}
}
