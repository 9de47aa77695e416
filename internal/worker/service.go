// Package worker serves generation requests over the message bus. Requests
// arrive as envelope events on a queue subject and every one gets a reply,
// success or not, so callers never wait out a timeout on a handled message.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sonalabs/sona-tts/internal/bus"
	"github.com/sonalabs/sona-tts/internal/config"
	"github.com/sonalabs/sona-tts/internal/engine"
	"github.com/sonalabs/sona-tts/internal/protocol"
)

type Service struct {
	cfg    config.WorkerConfig
	bus    *bus.Client
	engine *engine.Engine
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewService(parent context.Context, cfg config.WorkerConfig, busClient *bus.Client, eng *engine.Engine, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:    cfg,
		bus:    busClient,
		engine: eng,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(slog.String("component", "worker")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().QueueSubscribe(s.cfg.Subject, s.cfg.Queue, s.handleEvent)
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("worker subscribed",
		slog.String("subject", s.cfg.Subject),
		slog.String("queue", s.cfg.Queue))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.sub != nil }

func (s *Service) handleEvent(msg *nats.Msg) {
	var event protocol.WorkerEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		s.logger.Warn("failed to decode worker event", slogError(err))
		s.respond(msg, protocol.WorkerResult{Error: "invalid request payload", StatusCode: 500})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.ctx, time.Duration(s.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()

		resp, err := s.engine.HandleGenerate(ctx, engine.SourceWorker, event.Input)
		if err != nil {
			s.respond(msg, resultFromError(err))
			return
		}
		s.respond(msg, protocol.WorkerResult{
			AudioBase64: resp.AudioBase64,
			SampleRate:  resp.SampleRate,
			DurationMS:  resp.DurationMS,
			StatusCode:  200,
		})
	}()
}

// resultFromError maps pipeline failures onto the reply contract: 400 is
// reserved for input validation, everything else is a 500.
func resultFromError(err error) protocol.WorkerResult {
	var verr *engine.InputValidationError
	if errors.As(err, &verr) {
		return protocol.WorkerResult{Error: verr.Reason, StatusCode: 400}
	}
	return protocol.WorkerResult{Error: err.Error(), StatusCode: 500}
}

func (s *Service) respond(msg *nats.Msg, result protocol.WorkerResult) {
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("failed to marshal worker reply", slogError(err))
		return
	}
	if msg.Reply == "" {
		s.logger.Warn("worker event carried no reply subject")
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to publish worker reply", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
