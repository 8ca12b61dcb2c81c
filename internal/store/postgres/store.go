// Package postgres is the production persistence layer. One Store serves both
// direct reads and units of work: RunInTx hands the caller a bundle bound to
// the open *sql.Tx, so everything done through it commits or rolls back
// together. Uniqueness on borrower identifiers, award contract ids and
// application dedup keys is enforced by the schema; violations surface as
// sentinel.ErrDuplicate.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"credere/internal/store"
	"credere/pkg/sentinel"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	bundle
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{bundle: bundle{q: db}, db: db}
}

// RunInTx runs fn against a transaction-bound bundle. fn returning an error
// rolls everything back.
func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(bundle{q: dbtx}); err != nil {
		if rbErr := dbtx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// bundle exposes the per-entity stores bound to one querier.
type bundle struct {
	q querier
}

func (b bundle) Applications() store.ApplicationStore { return &applicationStore{q: b.q} }
func (b bundle) Borrowers() store.BorrowerStore       { return &borrowerStore{q: b.q} }
func (b bundle) Awards() store.AwardStore             { return &awardStore{q: b.q} }
func (b bundle) Lenders() store.LenderStore           { return &lenderStore{q: b.q} }
func (b bundle) Messages() store.MessageStore         { return &messageStore{q: b.q} }
func (b bundle) Actions() store.ActionStore           { return &actionStore{q: b.q} }
func (b bundle) Documents() store.DocumentStore       { return &documentStore{q: b.q} }
func (b bundle) Statistics() store.StatisticStore     { return &statisticStore{q: b.q} }

// translateError maps driver errors to store sentinels.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", sentinel.ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

// requireRow turns a zero-row update into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

// nullJSON keeps empty raw messages as SQL NULL instead of invalid ''.
func nullJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
