// Package integrity re-derives ledger balances from posted entries and
// reports every place the stored figures disagree.
package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finledger/internal/accounting/journals"
)

// AnomalyKind classifies a discrepancy.
type AnomalyKind string

const (
	// KindBalanceMismatch: ledger_balances differs from the sum of entries.
	KindBalanceMismatch AnomalyKind = "balance_mismatch"
	// KindRunningBalanceMismatch: the last running_balance differs from the sum of entries.
	KindRunningBalanceMismatch AnomalyKind = "running_balance_mismatch"
	// KindUnbalancedJournal: a posted journal whose lines do not net to zero.
	KindUnbalancedJournal AnomalyKind = "unbalanced_journal"
)

// Anomaly is one discrepancy found by Check.
type Anomaly struct {
	Kind      AnomalyKind
	AccountID string
	JournalID int64
	Expected  decimal.Decimal
	Actual    decimal.Decimal
}

func (a Anomaly) String() string {
	if a.Kind == KindUnbalancedJournal {
		return fmt.Sprintf("%s: journal %d debit %s credit %s", a.Kind, a.JournalID, a.Expected.StringFixed(4), a.Actual.StringFixed(4))
	}
	return fmt.Sprintf("%s: account %s expected %s got %s", a.Kind, a.AccountID, a.Expected.StringFixed(4), a.Actual.StringFixed(4))
}

// Report summarises one company's check.
type Report struct {
	CompanyID string
	Accounts  int
	CheckedAt time.Time
	Anomalies []Anomaly
}

// Clean reports whether no anomaly was found.
func (r Report) Clean() bool { return len(r.Anomalies) == 0 }

// Checker compares stored balances with the ledger.
type Checker struct {
	runner TxRunner
	logger *slog.Logger
	now    func() time.Time
}

// NewChecker constructs a checker reading through runner.
func NewChecker(runner TxRunner, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{runner: runner, logger: logger, now: time.Now}
}

// Companies lists every company that has ledger data.
func (c *Checker) Companies(ctx context.Context) ([]string, error) {
	var out []string
	err := c.runner.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		out, err = repo.Companies(ctx)
		return err
	})
	return out, err
}

// Check recomputes every account balance of companyID from its ledger
// entries and lists posted journals that do not balance.
func (c *Checker) Check(ctx context.Context, companyID string) (Report, error) {
	report := Report{CompanyID: companyID, CheckedAt: c.now().UTC()}
	err := c.runner.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		totals, err := repo.AccountTotals(ctx, companyID)
		if err != nil {
			return fmt.Errorf("integrity: account totals: %w", err)
		}
		report.Accounts = len(totals)
		for _, t := range totals {
			report.Anomalies = append(report.Anomalies, checkAccount(t)...)
		}

		unbalanced, err := repo.UnbalancedJournals(ctx, companyID, journals.BalanceTolerance)
		if err != nil {
			return fmt.Errorf("integrity: unbalanced journals: %w", err)
		}
		for _, j := range unbalanced {
			if !journals.IsBalanced(j.Debit, j.Credit) || j.Debit.IsZero() {
				report.Anomalies = append(report.Anomalies, Anomaly{
					Kind:      KindUnbalancedJournal,
					JournalID: j.JournalID,
					Expected:  j.Debit,
					Actual:    j.Credit,
				})
			}
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	c.logger.Info("ledger integrity checked",
		slog.String("company_id", companyID),
		slog.Int("accounts", report.Accounts),
		slog.Int("anomalies", len(report.Anomalies)))
	return report, nil
}

func checkAccount(t AccountTotals) []Anomaly {
	expected := t.Type.BalanceDelta(t.Debit, t.Credit)
	var out []Anomaly
	stored := decimal.Zero
	if t.HasStored {
		stored = t.Stored
	}
	if !stored.Equal(expected) {
		out = append(out, Anomaly{Kind: KindBalanceMismatch, AccountID: t.AccountID, Expected: expected, Actual: stored})
	}
	if t.HasEntries && !t.LastRunning.Equal(expected) {
		out = append(out, Anomaly{Kind: KindRunningBalanceMismatch, AccountID: t.AccountID, Expected: expected, Actual: t.LastRunning})
	}
	return out
}
