package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

// sqlStore is the dialect-independent part shared by the SQLite and
// PostgreSQL backends. Queries are built per flavor with go-sqlbuilder.
type sqlStore struct {
	conn       *sql.DB
	flavor     sqlbuilder.Flavor
	isConflict func(error) bool
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	return s.conn.Close()
}

// Begin opens a transaction.
func (s *sqlStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &sqlTx{tx: tx, flavor: s.flavor, isConflict: s.isConflict}, nil
}

type sqlTx struct {
	tx         *sql.Tx
	flavor     sqlbuilder.Flavor
	isConflict func(error) bool
}

func (t *sqlTx) Feeds() FeedRepository       { return feedRepo{t} }
func (t *sqlTx) Tags() TagRepository         { return tagRepo{t} }
func (t *sqlTx) Contents() ContentRepository { return contentRepo{t} }

func (t *sqlTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return t.wrap(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (t *sqlTx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// wrap marks unique and foreign-key violations as ErrConflict.
func (t *sqlTx) wrap(err error) error {
	if err != nil && t.isConflict != nil && t.isConflict(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func (t *sqlTx) exec(ctx context.Context, b sqlbuilder.Builder) (sql.Result, error) {
	query, args := b.Build()
	res, err := t.tx.ExecContext(ctx, query, args...)
	return res, t.wrap(err)
}

// execOne runs b and reports ErrNotFound when no row was touched.
func (t *sqlTx) execOne(ctx context.Context, b sqlbuilder.Builder, what string) error {
	res, err := t.exec(ctx, b)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// insert runs an insert and returns the generated id. Both SQLite (3.35+)
// and PostgreSQL support RETURNING.
func (t *sqlTx) insert(ctx context.Context, ib *sqlbuilder.InsertBuilder) (int64, error) {
	query, args := ib.Build()
	var id int64
	if err := t.tx.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, t.wrap(err)
	}
	return id, nil
}

func (t *sqlTx) query(ctx context.Context, b sqlbuilder.Builder) (*sql.Rows, error) {
	query, args := b.Build()
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *sqlTx) queryRow(ctx context.Context, b sqlbuilder.Builder) *sql.Row {
	query, args := b.Build()
	return t.tx.QueryRowContext(ctx, query, args...)
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
