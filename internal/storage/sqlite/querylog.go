package sqlite

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

const slowQueryThreshold = 100 * time.Millisecond

// dbHandle is satisfied by *queryLogger. Store methods go through it instead
// of *sql.DB directly.
type dbHandle interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

// queryLogger wraps a *sql.DB and warns about queries over slowQueryThreshold.
type queryLogger struct {
	inner  *sql.DB
	logger *zap.Logger
}

func (q *queryLogger) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	result, err := q.inner.ExecContext(ctx, query, args...)
	q.observe(start, query)
	return result, err
}

func (q *queryLogger) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := q.inner.QueryContext(ctx, query, args...)
	q.observe(start, query)
	return rows, err
}

func (q *queryLogger) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := q.inner.QueryRowContext(ctx, query, args...)
	q.observe(start, query)
	return row
}

func (q *queryLogger) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return q.inner.BeginTx(ctx, opts)
}

func (q *queryLogger) Close() error {
	return q.inner.Close()
}

func (q *queryLogger) observe(start time.Time, query string) {
	if d := time.Since(start); d >= slowQueryThreshold {
		q.logger.Warn("slow query",
			zap.Duration("duration", d.Round(time.Millisecond)),
			zap.String("query", truncateQuery(query)))
	}
}

func truncateQuery(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
