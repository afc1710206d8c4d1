package expenses

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// EventExpenseCreate records an operating expense.
	EventExpenseCreate = "EXPENSE_CREATE"
	// SourceModule owns expense journals.
	SourceModule = "EXPENSE"
)

// Status enumerates expense states.
type Status string

const (
	StatusRecorded Status = "RECORDED"
	StatusReversed Status = "REVERSED"
)

// ErrExpenseNotFound indicates the expense does not exist or is already reversed.
var ErrExpenseNotFound = errors.New("expenses: expense not found")

// Expense is a recorded operating expense.
type Expense struct {
	ID          uuid.UUID       `json:"id"`
	CompanyID   string          `json:"company_id"`
	Vendor      string          `json:"vendor,omitempty"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	ExpenseDate time.Time       `json:"expense_date"`
	Status      Status          `json:"status"`
	CreatedBy   string          `json:"created_by"`
}

// CreateInput is the validated EXPENSE_CREATE payload.
type CreateInput struct {
	Vendor      string    `validate:"max=200"`
	Description string    `validate:"max=500"`
	ExpenseDate time.Time `validate:"required"`
	Amount      decimal.Decimal
}
