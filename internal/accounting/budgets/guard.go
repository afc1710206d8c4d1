package budgets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finledger/internal/accounting/shared"
)

// Guard enforces budget ceilings on debit lines.
type Guard struct {
	policy Policy
	logger *slog.Logger
}

// NewGuard constructs a Guard. A nil policy means LenientPolicy.
func NewGuard(policy Policy, logger *slog.Logger) *Guard {
	if policy == nil {
		policy = LenientPolicy{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{policy: policy, logger: logger}
}

// CheckAvailability fails with *shared.BudgetExceededError when posting
// amount to accountID would push actuals past the budget line.
func (g *Guard) CheckAvailability(ctx context.Context, repo Repository, companyID, accountID string, amount decimal.Decimal, date time.Time) error {
	day := shared.DateOnly(date)
	budget, err := repo.FindActiveBudget(ctx, companyID, day)
	if errors.Is(err, ErrNotFound) {
		if g.policy.AllowWithoutBudget() {
			g.logger.Debug("no active budget, allowing",
				slog.String("company_id", companyID),
				slog.String("account_id", accountID),
				slog.String("date", day.Format(time.DateOnly)))
			return nil
		}
		return &shared.BudgetExceededError{AccountID: accountID, Requested: amount}
	}
	if err != nil {
		return fmt.Errorf("budgets: find budget: %w", err)
	}

	line, err := repo.GetLine(ctx, budget.ID, accountID)
	if errors.Is(err, ErrNotFound) {
		if g.policy.AllowWithoutLine() {
			return nil
		}
		return &shared.BudgetExceededError{AccountID: accountID, BudgetID: budget.ID, Requested: amount}
	}
	if err != nil {
		return fmt.Errorf("budgets: get line: %w", err)
	}

	actual, err := repo.SumActuals(ctx, companyID, accountID, budget.StartDate, budget.EndDate)
	if err != nil {
		return fmt.Errorf("budgets: sum actuals: %w", err)
	}
	if actual.Add(amount).GreaterThan(line.Amount) {
		return &shared.BudgetExceededError{
			AccountID: accountID,
			BudgetID:  budget.ID,
			Limit:     line.Amount,
			Actual:    actual,
			Requested: amount,
		}
	}
	return nil
}
