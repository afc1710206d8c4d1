package budgets

import (
	"time"

	"github.com/shopspring/decimal"
)

// BudgetStatus enumerates budget states; POSTED budgets are active.
type BudgetStatus string

const (
	BudgetStatusDraft  BudgetStatus = "DRAFT"
	BudgetStatusPosted BudgetStatus = "POSTED"
)

// Budget is a spending plan over a date range.
type Budget struct {
	CompanyID string
	ID        int64
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Status    BudgetStatus
}

// BudgetLine is the ceiling for one account within a budget.
type BudgetLine struct {
	BudgetID  int64
	AccountID string
	Amount    decimal.Decimal
}
