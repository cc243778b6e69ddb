package store

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/Gobusters/ectologger"
)

// DB is the subset of *sqlx.DB every repository depends on, plus the
// context-embedded transaction helper used to let nested calls share a
// single transaction without threading a *Tx through every signature.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	PrepareNamedContext(ctx context.Context, query string) (*sqlx.NamedStmt, error)
	Rebind(query string) string

	// GetTx returns a Tx bound to ctx. If ctx already carries an open
	// transaction (started by an outer call on the same DB), that
	// transaction is reused and the returned context is ctx unchanged;
	// otherwise a new transaction is opened and embedded in the returned
	// context. Callers must always call Tx.Commit or Tx.Rollback.
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error)
}

// Tx is the subset of *sqlx.Tx repositories use, plus bookkeeping for the
// context-embedded "is this transaction mine to commit" convention.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	Rebind(query string) string

	// Commit commits the transaction if this call owns it, otherwise it is a
	// no-op: ownership belongs to whichever GetTx call actually opened it.
	Commit() error
	// Rollback rolls back the transaction if this call owns it.
	Rollback() error
}

type contextKey int

const (
	txKey contextKey = iota
	txOwnerKey
)

// DatabaseInstance wraps a *sqlx.DB to satisfy DB.
type DatabaseInstance struct {
	db     *sqlx.DB
	logger ectologger.Logger
}

// NewDatabaseInstance wraps an already-open *sqlx.DB.
func NewDatabaseInstance(db *sqlx.DB, logger ectologger.Logger) *DatabaseInstance {
	return &DatabaseInstance{db: db, logger: logger}
}

func (d *DatabaseInstance) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, query, args...)
}

func (d *DatabaseInstance) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return d.db.GetContext(ctx, dest, query, args...)
}

func (d *DatabaseInstance) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return d.db.SelectContext(ctx, dest, query, args...)
}

func (d *DatabaseInstance) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return d.db.QueryxContext(ctx, query, args...)
}

func (d *DatabaseInstance) PrepareNamedContext(ctx context.Context, query string) (*sqlx.NamedStmt, error) {
	return d.db.PrepareNamedContext(ctx, query)
}

func (d *DatabaseInstance) Rebind(query string) string {
	return d.db.Rebind(query)
}

// GetTx implements the shared-transaction-via-context convention: the first
// caller in a call chain to invoke GetTx opens the transaction and owns its
// commit/rollback; nested calls on the same ctx reuse it and their
// Commit/Rollback calls become no-ops.
func (d *DatabaseInstance) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error) {
	if existing, ok := ctx.Value(txKey).(*transaction); ok {
		return ctx, &transaction{tx: existing.tx, owner: false}, nil
	}

	sqlxTx, err := d.db.BeginTxx(ctx, opts)
	if err != nil {
		return ctx, nil, err
	}

	t := &transaction{tx: sqlxTx, owner: true}
	return context.WithValue(ctx, txKey, t), t, nil
}

// transaction wraps a *sqlx.Tx plus whether this handle is the one
// responsible for actually committing or rolling it back.
type transaction struct {
	tx    *sqlx.Tx
	owner bool
}

func (t *transaction) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *transaction) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return t.tx.GetContext(ctx, dest, query, args...)
}

func (t *transaction) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return t.tx.SelectContext(ctx, dest, query, args...)
}

func (t *transaction) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return t.tx.QueryxContext(ctx, query, args...)
}

func (t *transaction) Rebind(query string) string {
	return t.tx.Rebind(query)
}

func (t *transaction) Commit() error {
	if !t.owner {
		return nil
	}
	return t.tx.Commit()
}

func (t *transaction) Rollback() error {
	if !t.owner {
		return nil
	}
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}
