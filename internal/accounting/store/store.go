// Package store binds every ledger repository to one database transaction.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/finledger/internal/accounting/accounts"
	"github.com/odyssey-erp/finledger/internal/accounting/budgets"
	"github.com/odyssey-erp/finledger/internal/accounting/journals"
	"github.com/odyssey-erp/finledger/internal/accounting/mappings"
	"github.com/odyssey-erp/finledger/internal/accounting/periods"
	"github.com/odyssey-erp/finledger/internal/platform/db"
)

// Scope exposes the repositories of one transaction. DB is handed to
// business-record creators so their inserts join the same transaction.
type Scope interface {
	DB() db.DBTX
	Accounts() accounts.Registry
	Periods() periods.Repository
	Mappings() mappings.Repository
	Budgets() budgets.Repository
	Journals() journals.Repository
}

// Runner opens a transaction, runs fn, and commits only when fn succeeds.
type Runner interface {
	WithTx(ctx context.Context, fn func(context.Context, Scope) error) error
}

// Postgres is the pgx-backed Runner.
type Postgres struct {
	pool  *pgxpool.Pool
	cache *mappings.Cache
}

// NewPostgres constructs the runner. cache may be nil.
func NewPostgres(pool *pgxpool.Pool, cache *mappings.Cache) *Postgres {
	return &Postgres{pool: pool, cache: cache}
}

// WithTx runs fn inside a read committed transaction.
func (p *Postgres) WithTx(ctx context.Context, fn func(context.Context, Scope) error) error {
	return db.WithTxOptions(ctx, p.pool, db.LedgerTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, &pgScope{tx: tx, cache: p.cache})
	})
}

type pgScope struct {
	tx    pgx.Tx
	cache *mappings.Cache
}

func (s *pgScope) DB() db.DBTX { return s.tx }
func (s *pgScope) Accounts() accounts.Registry { return accounts.NewRepository(s.tx) }
func (s *pgScope) Periods() periods.Repository { return periods.NewRepository(s.tx) }
func (s *pgScope) Budgets() budgets.Repository { return budgets.NewRepository(s.tx) }
func (s *pgScope) Journals() journals.Repository { return journals.NewRepository(s.tx) }
func (s *pgScope) Mappings() mappings.Repository {
	return s.cache.Wrap(mappings.NewRepository(s.tx))
}
