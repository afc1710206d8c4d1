package integrity

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finledger/internal/accounting/accounts"
	"github.com/odyssey-erp/finledger/internal/platform/db"
)

// AccountTotals aggregates one account's ledger history.
type AccountTotals struct {
	AccountID   string
	Type        accounts.AccountType
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Stored      decimal.Decimal
	HasStored   bool
	LastRunning decimal.Decimal
	HasEntries  bool
}

// JournalTotals sums the lines of one posted journal.
type JournalTotals struct {
	JournalID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Repository reads the aggregates the checker compares.
type Repository interface {
	Companies(ctx context.Context) ([]string, error)
	AccountTotals(ctx context.Context, companyID string) ([]AccountTotals, error)
	UnbalancedJournals(ctx context.Context, companyID string, tolerance decimal.Decimal) ([]JournalTotals, error)
}

// TxRunner runs fn against one consistent snapshot.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}

// PoolRunner reads inside a repeatable read transaction so every aggregate
// sees the same snapshot.
type PoolRunner struct {
	Pool *pgxpool.Pool
}

func (r PoolRunner) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.Pool, func(tx pgx.Tx) error {
		return fn(ctx, NewRepository(tx))
	})
}

type repository struct {
	db db.DBTX
}

func NewRepository(q db.DBTX) Repository {
	return &repository{db: q}
}

func (r *repository) Companies(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT company_id FROM ledger_balances
UNION SELECT company_id FROM ledger_entries
ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *repository) AccountTotals(ctx context.Context, companyID string) ([]AccountTotals, error) {
	rows, err := r.db.Query(ctx, `WITH sums AS (
    SELECT account_id, SUM(debit) AS debit, SUM(credit) AS credit
    FROM ledger_entries WHERE company_id=$1 GROUP BY account_id
), last AS (
    SELECT DISTINCT ON (account_id) account_id, running_balance
    FROM ledger_entries WHERE company_id=$1
    ORDER BY account_id, entry_id DESC
), ids AS (
    SELECT account_id FROM sums
    UNION SELECT account_id FROM ledger_balances WHERE company_id=$1
)
SELECT ids.account_id, COALESCE(a.account_type, ''),
       COALESCE(sums.debit, 0), COALESCE(sums.credit, 0),
       b.balance, last.running_balance
FROM ids
LEFT JOIN sums ON sums.account_id = ids.account_id
LEFT JOIN last ON last.account_id = ids.account_id
LEFT JOIN ledger_balances b ON b.company_id=$1 AND b.account_id = ids.account_id
LEFT JOIN accounts a ON a.company_id=$1 AND a.account_id = ids.account_id
ORDER BY ids.account_id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountTotals
	for rows.Next() {
		var (
			t       AccountTotals
			typ     string
			stored  decimal.NullDecimal
			running decimal.NullDecimal
		)
		if err := rows.Scan(&t.AccountID, &typ, &t.Debit, &t.Credit, &stored, &running); err != nil {
			return nil, err
		}
		t.Type = accounts.AccountType(typ)
		t.Stored, t.HasStored = stored.Decimal, stored.Valid
		t.LastRunning, t.HasEntries = running.Decimal, running.Valid
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) UnbalancedJournals(ctx context.Context, companyID string, tolerance decimal.Decimal) ([]JournalTotals, error) {
	rows, err := r.db.Query(ctx, `SELECT j.journal_id, COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_entries j
LEFT JOIN journal_lines l ON l.company_id = j.company_id AND l.journal_id = j.journal_id
WHERE j.company_id=$1 AND j.status='POSTED'
GROUP BY j.journal_id
HAVING COUNT(l.line_number) = 0 OR ABS(COALESCE(SUM(l.debit), 0) - COALESCE(SUM(l.credit), 0)) > $2
ORDER BY j.journal_id`, companyID, tolerance)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JournalTotals
	for rows.Next() {
		var t JournalTotals
		if err := rows.Scan(&t.JournalID, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
