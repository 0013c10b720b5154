package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xiaonanln/edgegate/outcome"
	"github.com/xiaonanln/edgegate/util/metrics"
)

// OutcomeStore appends outcome rows to the edgegate_outcomes table.
// It implements outcome.Recorder.
type OutcomeStore struct {
	db *DB
}

// NewOutcomeStore creates the schema if needed and returns a store backed by db
func NewOutcomeStore(ctx context.Context, db *DB) (*OutcomeStore, error) {
	if err := db.InitSchema(ctx); err != nil {
		return nil, err
	}
	return &OutcomeStore{db: db}, nil
}

// Record implements outcome.Recorder
func (s *OutcomeStore) Record(ctx context.Context, row outcome.Row) error {
	query := `
		INSERT INTO edgegate_outcomes (ts, replica, success, latency_ms, correlation_id, kind, attempts, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	latencyMs := float64(row.TotalLatency) / float64(time.Millisecond)
	_, err := s.db.conn.ExecContext(ctx, query,
		row.Timestamp, row.Endpoint, row.Success, latencyMs,
		row.CorrelationID, row.Kind, row.Attempts, row.Error)
	metrics.RecordOutcomeRow("postgres", err)
	if err != nil {
		return fmt.Errorf("failed to insert outcome %s: %w", row.CorrelationID, err)
	}
	return nil
}

// Count returns the number of stored rows, optionally only successful ones
func (s *OutcomeStore) Count(ctx context.Context, successOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM edgegate_outcomes`
	if successOnly {
		query += ` WHERE success`
	}

	var n int
	if err := s.db.conn.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outcomes: %w", err)
	}
	return n, nil
}

// Get returns the row recorded for correlationID
func (s *OutcomeStore) Get(ctx context.Context, correlationID string) (*outcome.Row, error) {
	query := `
		SELECT ts, replica, success, latency_ms, correlation_id, kind, attempts, error
		FROM edgegate_outcomes
		WHERE correlation_id = $1
		ORDER BY id DESC
		LIMIT 1
	`

	var row outcome.Row
	var latencyMs float64
	err := s.db.conn.QueryRowContext(ctx, query, correlationID).Scan(
		&row.Timestamp, &row.Endpoint, &row.Success, &latencyMs,
		&row.CorrelationID, &row.Kind, &row.Attempts, &row.Error)
	if err != nil {
		return nil, fmt.Errorf("failed to get outcome %s: %w", correlationID, err)
	}
	row.TotalLatency = time.Duration(latencyMs * float64(time.Millisecond))
	return &row, nil
}
