// Package server exposes the HTTP generation API: service metadata, health,
// generation, and the recent-request log.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sonalabs/sona-tts/internal/engine"
	"github.com/sonalabs/sona-tts/internal/history"
	"github.com/sonalabs/sona-tts/internal/protocol"
)

// Generation requests are small JSON documents; anything bigger is abuse.
const maxRequestBody = 1 << 20

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type Server struct {
	engine  *engine.Engine
	version string
	logger  *slog.Logger
}

func New(eng *engine.Engine, version string, log *slog.Logger) *Server {
	return &Server{
		engine:  eng,
		version: version,
		logger:  log.With(slog.String("component", "http")),
	}
}

// Register mounts the public API on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleMetadata)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/generate", s.handleGenerate)
	mux.HandleFunc("/history", s.handleHistory)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, protocol.HealthResponse{
		Status:      "healthy",
		ModelLoaded: s.engine.Loaded(),
	})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, protocol.MetadataResponse{
		Service: "sona-tts",
		Version: s.version,
		Device:  s.engine.Device(),
		Tier:    s.engine.Tier(),
		Endpoints: map[string]string{
			"health":   "GET /health",
			"generate": "POST /generate",
			"history":  "GET /history",
		},
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req protocol.GenerateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.engine.HandleGenerate(r.Context(), engine.SourceHTTP, req)
	if err != nil {
		status := http.StatusInternalServerError
		var verr *engine.InputValidationError
		if errors.As(err, &verr) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	store := s.engine.History()
	if !store.Enabled() {
		writeError(w, http.StatusNotFound, "request history is disabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > maxHistoryLimit {
			n = maxHistoryLimit
		}
		limit = n
	}

	records, err := store.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read request history", slogError(err))
		writeError(w, http.StatusInternalServerError, "failed to read request history")
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, protocol.ErrorResponse{Detail: detail})
}

func readJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return err
	}
	defer r.Body.Close()
	return json.Unmarshal(body, dst)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
