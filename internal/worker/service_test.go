package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sonalabs/sona-tts/internal/audio"
	"github.com/sonalabs/sona-tts/internal/bus"
	"github.com/sonalabs/sona-tts/internal/config"
	"github.com/sonalabs/sona-tts/internal/engine"
	"github.com/sonalabs/sona-tts/internal/history"
	"github.com/sonalabs/sona-tts/internal/natsserver"
	"github.com/sonalabs/sona-tts/internal/protocol"
	"github.com/sonalabs/sona-tts/internal/synth"
)

// newTestService starts an embedded NATS server, a worker wired to a fresh
// engine, and returns a bus client sharing the worker's connection ordering.
func newTestService(t *testing.T, synthCfg config.SynthConfig) *bus.Client {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, log)
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	client, err := bus.Connect(t.Context(), config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, log)
	if err != nil {
		t.Fatalf("connect bus: %v", err)
	}
	t.Cleanup(client.Close)

	store, err := history.Open(t.Context(), config.HistoryConfig{}, log)
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	gen := synth.NewGenerator(synth.NewResolver(synthCfg, log), log)
	eng := engine.New(gen, store, 10000, log)

	svc := NewService(t.Context(), config.WorkerConfig{
		Enabled:   true,
		Subject:   protocol.SubjectGenerate,
		Queue:     "sona-workers",
		TimeoutMS: 10000,
	}, client, eng, log)
	if err := svc.Start(); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	t.Cleanup(svc.Close)

	return client
}

func request(t *testing.T, client *bus.Client, payload []byte) protocol.WorkerResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	raw, err := client.Request(ctx, protocol.SubjectGenerate, payload)
	if err != nil {
		t.Fatalf("bus request: %v", err)
	}
	var result protocol.WorkerResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode worker reply: %v", err)
	}
	return result
}

func TestWorkerGeneratesAudio(t *testing.T) {
	client := newTestService(t, config.SynthConfig{Device: "cpu", Tiers: []string{synth.TierSynthetic}})

	payload, err := json.Marshal(protocol.WorkerEvent{Input: protocol.GenerateRequest{
		Text:             "hello over the bus",
		Speaker:          1,
		MaxAudioLengthMS: 250,
	}})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	result := request(t, client, payload)
	if result.StatusCode != 200 {
		t.Fatalf("statusCode = %d (%s), want 200", result.StatusCode, result.Error)
	}
	if result.SampleRate != synth.SampleRate {
		t.Errorf("sample rate = %d, want %d", result.SampleRate, synth.SampleRate)
	}
	if result.DurationMS != 250 {
		t.Errorf("duration = %dms, want 250ms", result.DurationMS)
	}
	buf, err := audio.DecodeBase64WAV(result.AudioBase64)
	if err != nil {
		t.Fatalf("reply audio did not decode: %v", err)
	}
	if want := 250 * synth.SampleRate / 1000; len(buf.Samples) != want {
		t.Errorf("decoded %d samples, want %d", len(buf.Samples), want)
	}
}

func TestWorkerRejectsMissingText(t *testing.T) {
	client := newTestService(t, config.SynthConfig{Device: "cpu", Tiers: []string{synth.TierSynthetic}})

	result := request(t, client, []byte(`{"input":{"speaker":2}}`))
	if result.StatusCode != 400 {
		t.Fatalf("statusCode = %d, want 400", result.StatusCode)
	}
	if result.Error == "" {
		t.Error("expected an error message in the reply")
	}
	if result.AudioBase64 != "" {
		t.Error("rejected request must not carry audio")
	}
}

func TestWorkerReportsGenerationFailure(t *testing.T) {
	client := newTestService(t, config.SynthConfig{
		Device:        "cpu",
		Tiers:         []string{synth.TierProper},
		ProperCommand: "/nonexistent/generator",
	})

	result := request(t, client, []byte(`{"input":{"text":"doomed"}}`))
	if result.StatusCode != 500 {
		t.Fatalf("statusCode = %d, want 500", result.StatusCode)
	}
	if result.Error == "" {
		t.Error("expected an error message in the reply")
	}
}

func TestWorkerRejectsMalformedEvent(t *testing.T) {
	client := newTestService(t, config.SynthConfig{Device: "cpu", Tiers: []string{synth.TierSynthetic}})

	result := request(t, client, []byte("not json"))
	if result.StatusCode != 500 {
		t.Fatalf("statusCode = %d, want 500", result.StatusCode)
	}
}
