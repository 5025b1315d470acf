package recorder

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
)

// BatchDB is the subset of pgxpool.Pool the sink needs.
type BatchDB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// ErrSinkWrite wraps insert failures so callers can match them.
var ErrSinkWrite = errors.New("usage sink write failed")

// PostgresSink persists usage records into the evaluations table, one
// batched round trip per flush. The management layer reads this table for
// analytics; the evaluation core only ever appends to it.
type PostgresSink struct {
	db BatchDB
}

// NewPostgresSink creates a sink over the given connection pool.
func NewPostgresSink(db BatchDB) *PostgresSink {
	return &PostgresSink{db: db}
}

// Write implements Sink.
func (s *PostgresSink) Write(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, ev := range events {
		userContext, err := json.Marshal(ev.Context)
		if err != nil {
			userContext = []byte("{}")
		}
		batch.Queue(
			`INSERT INTO evaluations (flag_id, app_id, result, user_context, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			ev.FlagID, ev.AppID, ev.Enabled, userContext, ev.Timestamp)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range events {
		if _, err := results.Exec(); err != nil {
			return errors.Join(ErrSinkWrite, err)
		}
	}
	return nil
}
