// Package engine drives a generation request through the pipeline:
// validate, normalize context, synthesize, encode, respond.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/sonalabs/sona-tts/internal/audio"
	"github.com/sonalabs/sona-tts/internal/history"
	"github.com/sonalabs/sona-tts/internal/protocol"
	"github.com/sonalabs/sona-tts/internal/synth"
)

// InputValidationError rejects a request before any generation work happens.
// Transports map it to a 400-class response.
type InputValidationError struct {
	Reason string
}

func (e *InputValidationError) Error() string { return e.Reason }

// GenerationError wraps a synthesis or encoding failure. Transports map it
// to a 500-class response carrying the error text.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("%s failed: %v", e.Stage, e.Err) }
func (e *GenerationError) Unwrap() error { return e.Err }

// Request sources, recorded in history and metrics.
const (
	SourceHTTP   = "http"
	SourceWorker = "worker"
)

const textPrefixRunes = 50

// Engine handles generation requests against the resolved generator.
type Engine struct {
	gen          *synth.Generator
	store        *history.Store
	logger       *slog.Logger
	defaultMaxMS int

	tracer    trace.Tracer
	requests  metric.Int64Counter
	fallbacks metric.Int64Counter
	dropped   metric.Int64Counter
}

func New(gen *synth.Generator, store *history.Store, defaultMaxMS int, logger *slog.Logger) *Engine {
	meter := otel.Meter("github.com/sonalabs/sona-tts/engine")
	requests, _ := meter.Int64Counter("sona.tts.requests",
		metric.WithDescription("Handled generation requests by source and outcome"))
	fallbacks, _ := meter.Int64Counter("sona.tts.fallbacks",
		metric.WithDescription("Generations that degraded to the synthetic waveform mid-call"))
	dropped, _ := meter.Int64Counter("sona.tts.context_dropped",
		metric.WithDescription("Context records dropped during normalization"))
	return &Engine{
		gen:          gen,
		store:        store,
		logger:       logger.With(slog.String("component", "engine")),
		defaultMaxMS: defaultMaxMS,
		tracer:       otel.Tracer("github.com/sonalabs/sona-tts/engine"),
		requests:     requests,
		fallbacks:    fallbacks,
		dropped:      dropped,
	}
}

// HandleGenerate runs the request pipeline. It returns InputValidationError
// for an empty text and GenerationError for synthesis/encoding failures;
// everything else is a successful response, including soft-fallback results.
func (e *Engine) HandleGenerate(ctx context.Context, source string, req protocol.GenerateRequest) (protocol.GenerateResponse, error) {
	requestID := uuid.NewString()
	ctx, span := e.tracer.Start(ctx, "tts.generate", trace.WithAttributes(
		attribute.String("request.id", requestID),
		attribute.String("request.source", source),
	))
	defer span.End()

	log := e.logger.With(slog.String("request_id", requestID), slog.String("source", source))

	rec := history.Record{
		RequestID:        requestID,
		Source:           source,
		TextPrefix:       textPrefix(req.Text),
		Speaker:          req.Speaker,
		MaxAudioLengthMS: req.MaxAudioLengthMS,
	}

	if strings.TrimSpace(req.Text) == "" {
		err := &InputValidationError{Reason: "text must not be empty"}
		log.Warn("rejected generation request", slog.String("reason", err.Reason))
		rec.Outcome = history.OutcomeValidationFailed
		e.finish(ctx, span, rec)
		return protocol.GenerateResponse{}, err
	}

	maxMS := req.MaxAudioLengthMS
	if maxMS <= 0 {
		maxMS = e.defaultMaxMS
	}
	rec.MaxAudioLengthMS = maxMS

	segments, droppedRecords := synth.NormalizeContext(req.Context)
	rec.ContextSegments = len(segments)
	rec.ContextDropped = droppedRecords
	if droppedRecords > 0 {
		log.Debug("dropped malformed context records",
			slog.Int("dropped", droppedRecords), slog.Int("kept", len(segments)))
		e.dropped.Add(ctx, int64(droppedRecords),
			metric.WithAttributes(attribute.String("source", source)))
	}

	result, err := e.gen.Generate(ctx, synth.Request{
		Text:             req.Text,
		Speaker:          req.Speaker,
		Context:          segments,
		MaxAudioLengthMS: maxMS,
	})
	if err != nil {
		span.RecordError(err)
		log.Error("generation failed",
			slog.String("text_prefix", textPrefix(req.Text)), slogError(err))
		rec.Outcome = history.OutcomeGenerationFailed
		e.finish(ctx, span, rec)
		return protocol.GenerateResponse{}, &GenerationError{Stage: "synthesize", Err: err}
	}
	if result.FellBack {
		e.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
	}

	payload, err := audio.EncodeBase64WAV(result.Buffer)
	if err != nil {
		span.RecordError(err)
		log.Error("response encoding failed",
			slog.String("text_prefix", textPrefix(req.Text)), slogError(err))
		rec.Tier = result.Tier
		rec.Outcome = history.OutcomeGenerationFailed
		e.finish(ctx, span, rec)
		return protocol.GenerateResponse{}, &GenerationError{Stage: "encode", Err: err}
	}

	resp := protocol.GenerateResponse{
		AudioBase64: payload,
		SampleRate:  result.Buffer.SampleRate,
		DurationMS:  result.Buffer.DurationMS(),
	}

	rec.Tier = result.Tier
	rec.DurationMS = resp.DurationMS
	rec.Outcome = history.OutcomeOK
	if result.FellBack {
		rec.Outcome = history.OutcomeFellBack
	}
	e.finish(ctx, span, rec)

	log.Info("generated speech",
		slog.Int("speaker", req.Speaker),
		slog.Int("duration_ms", resp.DurationMS),
		slog.String("tier", result.Tier),
		slog.Bool("fell_back", result.FellBack))
	return resp, nil
}

// finish counts the request and appends it to the history log.
func (e *Engine) finish(ctx context.Context, span trace.Span, rec history.Record) {
	span.SetAttributes(attribute.String("request.outcome", rec.Outcome))
	e.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", rec.Source),
		attribute.String("outcome", rec.Outcome),
	))
	if err := e.store.Record(ctx, rec); err != nil {
		e.logger.Warn("failed to record request history", slogError(err))
	}
}

// Loaded reports whether the generator handle has been resolved.
func (e *Engine) Loaded() bool { return e.gen.Loaded() }

// Device reports the compute device selected at startup.
func (e *Engine) Device() string { return e.gen.Device() }

// Tier reports the resolved generator tier, or empty before resolution.
func (e *Engine) Tier() string { return e.gen.Tier() }

// History exposes the request log for the admin surface.
func (e *Engine) History() *history.Store { return e.store }

func textPrefix(text string) string {
	runes := []rune(text)
	if len(runes) <= textPrefixRunes {
		return text
	}
	return string(runes[:textPrefixRunes])
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
