package store

import (
	"context"

	"github.com/odyssey-erp/finledger/internal/accounting/journals"
	"github.com/odyssey-erp/finledger/internal/accounting/mappings"
	"github.com/odyssey-erp/finledger/internal/accounting/periods"
)

// JournalRunner narrows r to the ledger service's transaction runner.
func JournalRunner(r Runner) journals.TxRunner { return journalRunner{r} }

// PeriodRunner narrows r to the period service's transaction runner.
func PeriodRunner(r Runner) periods.TxRunner { return periodRunner{r} }

// MappingRunner narrows r to the mapping service's transaction runner.
func MappingRunner(r Runner) mappings.TxRunner { return mappingRunner{r} }

type journalRunner struct{ Runner }

func (r journalRunner) WithTx(ctx context.Context, fn func(context.Context, journals.TxScope) error) error {
	return r.Runner.WithTx(ctx, func(ctx context.Context, scope Scope) error {
		return fn(ctx, scope)
	})
}

type periodRunner struct{ Runner }

func (r periodRunner) WithTx(ctx context.Context, fn func(context.Context, periods.Repository) error) error {
	return r.Runner.WithTx(ctx, func(ctx context.Context, scope Scope) error {
		return fn(ctx, scope.Periods())
	})
}

type mappingRunner struct{ Runner }

func (r mappingRunner) WithTx(ctx context.Context, fn func(context.Context, mappings.Repository) error) error {
	return r.Runner.WithTx(ctx, func(ctx context.Context, scope Scope) error {
		return fn(ctx, scope.Mappings())
	})
}
