// Package history keeps a SQLite-backed log of handled generation requests
// for the /history surface and offline debugging.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sonalabs/sona-tts/internal/config"
	_ "modernc.org/sqlite"
)

// Outcomes recorded per request.
const (
	OutcomeOK               = "ok"
	OutcomeFellBack         = "fell_back_to_synthetic"
	OutcomeValidationFailed = "validation_failed"
	OutcomeGenerationFailed = "generation_failed"
)

// Record is one handled generation request. TextPrefix stores only the first
// characters of the input, never the full text.
type Record struct {
	ID               int64     `json:"id"`
	RequestID        string    `json:"request_id"`
	Source           string    `json:"source"` // http or worker
	TextPrefix       string    `json:"text_prefix"`
	Speaker          int       `json:"speaker"`
	MaxAudioLengthMS int       `json:"max_audio_length_ms"`
	ContextSegments  int       `json:"context_segments"`
	ContextDropped   int       `json:"context_dropped"`
	Tier             string    `json:"tier,omitempty"`
	Outcome          string    `json:"outcome"`
	DurationMS       int       `json:"duration_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// Store wraps the request log. A disabled store is valid and drops writes.
type Store struct {
	db    *sql.DB
	cfg   config.HistoryConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store according to config. With history disabled it
// returns a no-op store so callers never need a nil check.
func Open(ctx context.Context, cfg config.HistoryConfig, log *slog.Logger) (*Store, error) {
	if !cfg.Enabled {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("history vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("history prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS requests (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL,
    source TEXT,
    text_prefix TEXT,
    speaker INTEGER,
    max_audio_length_ms INTEGER,
    context_segments INTEGER,
    context_dropped INTEGER,
    tier TEXT,
    outcome TEXT NOT NULL,
    duration_ms INTEGER,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_requests_created ON requests(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Enabled reports whether records are actually persisted.
func (s *Store) Enabled() bool { return s.db != nil }

// Record appends one handled request to the log.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if s.db == nil {
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO requests(request_id, source, text_prefix, speaker, max_audio_length_ms,
		                      context_segments, context_dropped, tier, outcome, duration_ms, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Source, rec.TextPrefix, rec.Speaker, rec.MaxAudioLengthMS,
		rec.ContextSegments, rec.ContextDropped, rec.Tier, rec.Outcome, rec.DurationMS, rec.CreatedAt)
	return err
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, source, text_prefix, speaker, max_audio_length_ms,
		        context_segments, context_dropped, tier, outcome, duration_ms, created_at
		 FROM requests ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var created string
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.Source, &rec.TextPrefix, &rec.Speaker,
			&rec.MaxAudioLengthMS, &rec.ContextSegments, &rec.ContextDropped, &rec.Tier,
			&rec.Outcome, &rec.DurationMS, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			rec.CreatedAt = ts
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune applies the configured retention: an age cutoff plus a row ceiling
// that keeps the newest rows.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM requests WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxRows > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM requests WHERE id IN (
			SELECT id FROM requests ORDER BY id DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxRows)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
