// Package store: database access for the directory; every statement is portable between postgres and sqlite3
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"org-directory/internal/logger"
	"strconv"
	"strings"
)

// Querier: the statement surface shared by *sql.DB and *sql.Tx
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store: owns the pool; per-request work happens inside ReadTx/WriteTx
type Store struct {
	db      *sql.DB
	dialect string
}

func AttachDB(db *sql.DB, dialect string) *Store { return &Store{db: db, dialect: dialect} }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() string { return s.dialect }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ReadTx: run fn inside a read-only transaction scope
// Constraint: the transaction is always rolled back on return, whatever fn did; reads need no commit
func (s *Store) ReadTx(ctx context.Context, fn func(r *Reader) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("store: begin read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(&Reader{Querier: tx})
}

// WriteTx: run fn inside a transaction, commit on nil error
func (s *Store) WriteTx(ctx context.Context, fn func(w *Writer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(&Writer{Reader: Reader{Querier: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// placeholders: "$from,$from+1,...", n of them
func placeholders(from, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(from + i))
	}
	return b.String()
}

// maxInList keeps one IN (...) list far below the parameter caps of sqlite (32766) and postgres (65535)
const maxInList = 1000

// inChunks: fn over consecutive slices of ids, none longer than maxInList
func inChunks(ids []int64, fn func(part []int64) error) error {
	for len(ids) > 0 {
		n := min(len(ids), maxInList)
		if err := fn(ids[:n]); err != nil {
			return err
		}
		ids = ids[n:]
	}
	return nil
}

func int64Args(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// IsNoRows: err wraps sql.ErrNoRows
func IsNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }

func debugStmt(name string, args ...any) {
	logger.L().Debug("db_stmt", append([]any{"stmt", name}, args...)...)
}
