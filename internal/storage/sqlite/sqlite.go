package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mistakeknot/tapcall/internal/core"
	"github.com/mistakeknot/tapcall/internal/storage"
)

//go:embed schema.sql
var schema string

const memoryDSN = ":memory:"

var _ storage.Store = (*Store)(nil)

type Store struct {
	db dbHandle
}

// New opens the database at dsn. An empty dsn or ":memory:" gives a
// process-lifetime database.
func New(dsn string, logger *zap.Logger) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" || dsn == memoryDSN {
		return NewInMemory(logger)
	}
	if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return open(dsn, logger)
}

func NewInMemory(logger *zap.Logger) (*Store, error) {
	return open(memoryDSN, logger)
}

func open(dsn string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// every connection to :memory: is its own database; a single connection
	// also serializes id allocation with status transitions
	db.SetMaxOpenConns(1)
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: &queryLogger{inner: db, logger: logger}}, nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Insert(ctx context.Context, r core.Request) (core.Request, error) {
	if r.ID != 0 {
		return core.Request{}, fmt.Errorf("insert %d: %w", r.ID, storage.ErrDuplicateID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO requests (tenant_id, table_id, table_name, type, status, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.TenantID, string(r.TableID), r.TableName, string(r.Type), string(r.Status),
		r.CreatedAt.Format(time.RFC3339Nano), formatTime(r.CompletedAt),
	)
	if err != nil {
		return core.Request{}, fmt.Errorf("insert request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Request{}, fmt.Errorf("request id: %w", err)
	}
	r.ID = id
	return r, nil
}

const selectColumns = `SELECT id, tenant_id, table_id, table_name, type, status, created_at, completed_at FROM requests`

func (s *Store) Get(ctx context.Context, id int64) (core.Request, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Request{}, core.ErrNotFound
	}
	if err != nil {
		return core.Request{}, fmt.Errorf("get request: %w", err)
	}
	return r, nil
}

func (s *Store) List(ctx context.Context, f storage.Filter) ([]core.Request, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, f.TenantID)
	}
	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	out := make([]core.Request, 0)
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		if f.Match != nil && !f.Match(r) {
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, id int64, fn storage.Mutator) (core.Request, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Request{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	r, err := scanRequest(tx.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Request{}, core.ErrNotFound
	}
	if err != nil {
		return core.Request{}, fmt.Errorf("load request: %w", err)
	}
	if err := fn(&r); err != nil {
		return core.Request{}, err
	}
	r.ID = id
	if _, err := tx.ExecContext(ctx,
		`UPDATE requests SET table_name = ?, type = ?, status = ?, completed_at = ? WHERE id = ?`,
		r.TableName, string(r.Type), string(r.Status), formatTime(r.CompletedAt), id,
	); err != nil {
		return core.Request{}, fmt.Errorf("update request: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Request{}, fmt.Errorf("commit: %w", err)
	}
	return r, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(sc scanner) (core.Request, error) {
	var r core.Request
	var tableID, typ, status, created string
	var completed sql.NullString
	if err := sc.Scan(&r.ID, &r.TenantID, &tableID, &r.TableName, &typ, &status, &created, &completed); err != nil {
		return core.Request{}, err
	}
	r.TableID = core.TableID(tableID)
	r.Type = core.RequestType(typ)
	r.Status = core.Status(status)
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	if completed.Valid && completed.String != "" {
		if t, err := time.Parse(time.RFC3339Nano, completed.String); err == nil {
			r.CompletedAt = &t
		}
	}
	return r, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
