// Package history keeps a best-effort local log of counting
// operations in SQLite. It is inspection tooling only: open or insert
// failures are logged and never reach the counting pipeline.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"occupancy-worker-go/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS count_operations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	captured_at TIMESTAMP NOT NULL,
	duration_ms INTEGER NOT NULL,
	counts TEXT NOT NULL,
	capture_failed INTEGER NOT NULL DEFAULT 0,
	zones_empty INTEGER NOT NULL DEFAULT 0,
	detector_failed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_count_operations_captured_at
	ON count_operations(captured_at);
`

type Service struct {
	db *sql.DB
}

// NewService opens (or creates) the history database. The returned
// service is usable even when opening fails; it just stops recording.
func NewService(path string) *Service {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("History database unavailable, operation log disabled")
		return &Service{}
	}

	if _, err := db.Exec(schema); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("History schema setup failed, operation log disabled")
		db.Close()
		return &Service{}
	}

	log.Info().Str("path", path).Msg("Operation history database ready")
	return &Service{db: db}
}

// Record inserts one operation outcome.
func (s *Service) Record(ctx context.Context, outcome models.Outcome) error {
	if s.db == nil {
		return nil
	}

	counts, err := json.Marshal(outcome.Counts)
	if err != nil {
		return fmt.Errorf("marshal counts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO count_operations
			(captured_at, duration_ms, counts, capture_failed, zones_empty, detector_failed)
		VALUES (?, ?, ?, ?, ?, ?)`,
		outcome.CapturedAt,
		outcome.Duration.Milliseconds(),
		string(counts),
		boolToInt(outcome.CaptureFailed),
		boolToInt(outcome.ZonesEmpty),
		boolToInt(outcome.DetectorFailed),
	)
	if err != nil {
		return fmt.Errorf("insert count operation: %w", err)
	}
	return nil
}

// Recent returns the latest n outcomes, newest first.
func (s *Service) Recent(ctx context.Context, n int) ([]models.Outcome, error) {
	if s.db == nil {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT captured_at, duration_ms, counts, capture_failed, zones_empty, detector_failed
		FROM count_operations
		ORDER BY captured_at DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query count operations: %w", err)
	}
	defer rows.Close()

	var outcomes []models.Outcome
	for rows.Next() {
		var (
			o          models.Outcome
			durationMS int64
			counts     string
			capFailed  int
			zonesEmpty int
			detFailed  int
		)
		if err := rows.Scan(&o.CapturedAt, &durationMS, &counts, &capFailed, &zonesEmpty, &detFailed); err != nil {
			return nil, fmt.Errorf("scan count operation: %w", err)
		}
		if err := json.Unmarshal([]byte(counts), &o.Counts); err != nil {
			log.Warn().Err(err).Msg("Corrupt counts row in history, skipping")
			continue
		}
		o.Duration = time.Duration(durationMS) * time.Millisecond
		o.CaptureFailed = capFailed != 0
		o.ZonesEmpty = zonesEmpty != 0
		o.DetectorFailed = detFailed != 0
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// Close releases the database handle.
func (s *Service) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
