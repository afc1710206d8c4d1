package budgets

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finledger/internal/platform/db"
)

// ErrNotFound is returned when no budget or budget line matches.
var ErrNotFound = errors.New("budgets: not found")

// Repository reads budgets and posted actuals.
type Repository interface {
	FindActiveBudget(ctx context.Context, companyID string, date time.Time) (Budget, error)
	GetLine(ctx context.Context, budgetID int64, accountID string) (BudgetLine, error)
	// SumActuals returns Σ(debit − credit) of ledger entries for the account
	// with posting dates in [from, to].
	SumActuals(ctx context.Context, companyID, accountID string, from, to time.Time) (decimal.Decimal, error)
}

type repository struct {
	db db.DBTX
}

func NewRepository(q db.DBTX) Repository {
	return &repository{db: q}
}

func (r *repository) FindActiveBudget(ctx context.Context, companyID string, date time.Time) (Budget, error) {
	var b Budget
	err := r.db.QueryRow(ctx, `SELECT company_id, budget_id, name, start_date, end_date, status FROM budgets
WHERE company_id=$1 AND status='POSTED' AND $2::date BETWEEN start_date AND end_date
ORDER BY start_date DESC, budget_id DESC LIMIT 1`, companyID, date).
		Scan(&b.CompanyID, &b.ID, &b.Name, &b.StartDate, &b.EndDate, &b.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Budget{}, ErrNotFound
		}
		return Budget{}, err
	}
	return b, nil
}

func (r *repository) GetLine(ctx context.Context, budgetID int64, accountID string) (BudgetLine, error) {
	line := BudgetLine{BudgetID: budgetID, AccountID: accountID}
	err := r.db.QueryRow(ctx, `SELECT amount FROM budget_lines WHERE budget_id=$1 AND account_id=$2`, budgetID, accountID).Scan(&line.Amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BudgetLine{}, ErrNotFound
		}
		return BudgetLine{}, err
	}
	return line, nil
}

func (r *repository) SumActuals(ctx context.Context, companyID, accountID string, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(debit - credit), 0) FROM ledger_entries
WHERE company_id=$1 AND account_id=$2 AND posting_date BETWEEN $3::date AND $4::date`, companyID, accountID, from, to).Scan(&total)
	return total, err
}
