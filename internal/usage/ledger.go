// Package usage records completion spend per client in Postgres.
package usage

import (
	"context"
	"database/sql"
	"time"
)

type Event struct {
	ClientID      string
	Model         string
	InputTokens   int
	OutputTokens  int
	Cost          float64
	CorrelationID string
}

type Summary struct {
	Requests     int     `json:"requests"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) Record(ctx context.Context, e Event) error {
	query := `INSERT INTO usage_events (client_id, model, input_tokens, output_tokens, cost, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := l.db.ExecContext(ctx, query, e.ClientID, e.Model, e.InputTokens, e.OutputTokens, e.Cost, e.CorrelationID)
	return err
}

// Summary totals the events recorded at or after since.
func (l *Ledger) Summary(ctx context.Context, since time.Time) (Summary, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost), 0)
		FROM usage_events WHERE created_at >= $1`
	var s Summary
	err := l.db.QueryRowContext(ctx, query, since).Scan(&s.Requests, &s.InputTokens, &s.OutputTokens, &s.Cost)
	return s, err
}
