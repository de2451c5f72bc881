// Package repositories provides PostgreSQL-backed implementations of the
// reminder engine's repository interfaces.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/reminder"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/template"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/database/postgres"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

// queryExecutor abstracts sql.DB and sql.Tx
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// scanner abstracts sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// Store implements reminder.Store over one connection pool.  Repositories
// handed out by a Store obtained inside WithTx share that transaction.
type Store struct {
	conn *postgres.Connection
	exec queryExecutor
	inTx bool
	log  logging.Logger
}

var _ reminder.Store = (*Store)(nil)

// NewStore creates a Store bound to conn.
func NewStore(conn *postgres.Connection, log logging.Logger) *Store {
	return &Store{conn: conn, exec: conn.DB(), log: log}
}

// Clients implements reminder.Store.
func (s *Store) Clients() filing.ClientRepository { return &clientRepo{exec: s.exec} }

// Assignments implements reminder.Store.
func (s *Store) Assignments() filing.AssignmentRepository { return &assignmentRepo{exec: s.exec} }

// DeadlineOverrides implements reminder.Store.
func (s *Store) DeadlineOverrides() filing.OverrideRepository { return &overrideRepo{exec: s.exec} }

// Templates implements reminder.Store.
func (s *Store) Templates() template.Repository { return &templateRepo{exec: s.exec} }

// Queue implements reminder.Store.
func (s *Store) Queue() reminder.QueueRepository { return &queueRepo{exec: s.exec} }

// Audit implements reminder.Store.
func (s *Store) Audit() reminder.AuditRepository { return &auditRepo{exec: s.exec} }

// WithTx runs fn in a transaction.  A Store already inside a transaction runs
// fn directly so nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(reminder.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.conn.DB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	txStore := &Store{conn: s.conn, exec: tx, inTx: true, log: s.log}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error("transaction rollback failed", logging.Err(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to commit transaction")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Column helpers
// ─────────────────────────────────────────────────────────────────────────────

// dateArg renders a calendar date for a DATE column; nil stays NULL.
func dateArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return calendar.Key(*t)
}

func nullDate(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	d := calendar.Normalize(nt.Time)
	return &d
}

func typeArray(types []filing.FilingType) interface{} {
	out := make([]string, len(types))
	for i, ft := range types {
		out[i] = string(ft)
	}
	return pq.Array(out)
}

func toTypes(a pq.StringArray) []filing.FilingType {
	out := make([]filing.FilingType, 0, len(a))
	for _, s := range a {
		out = append(out, filing.FilingType(s))
	}
	return out
}

func statusArray(statuses []reminder.Status) interface{} {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return pq.Array(out)
}
