package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrPeriodClosed indicates the transaction date is not inside an open period.
	ErrPeriodClosed = errors.New("accounting: no open period covers the date")
	// ErrNoMappingFound indicates no event mapping resolves the event type.
	ErrNoMappingFound = errors.New("accounting: no event mapping found")
	// ErrBudgetExceeded indicates a debit would push actuals past the budget line.
	ErrBudgetExceeded = errors.New("accounting: budget exceeded")
	// ErrUnbalancedJournal indicates debit != credit.
	ErrUnbalancedJournal = errors.New("accounting: journal lines must balance")
	// ErrAccountNotFound indicates a line references an unknown account.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrAlreadyPosted indicates the journal was posted before.
	ErrAlreadyPosted = errors.New("accounting: journal already posted")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrNoPostedJournalForReversal indicates nothing posted exists for the source.
	ErrNoPostedJournalForReversal = errors.New("accounting: no posted journal to reverse")
	// ErrUnknownEventType indicates no handler is registered for the event type.
	ErrUnknownEventType = errors.New("accounting: unknown event type")

	// ErrAlreadyOpen indicates the period is already open.
	ErrAlreadyOpen = errors.New("accounting: period already open")
	// ErrNotOpen indicates the period is not open.
	ErrNotOpen = errors.New("accounting: period not open")
	// ErrPeriodNotFound indicates missing period.
	ErrPeriodNotFound = errors.New("accounting: period not found")

	// ErrInvalidLine indicates a negative or double-sided journal line.
	ErrInvalidLine = errors.New("accounting: invalid journal line")
	// ErrAlreadyReversed indicates a reversal already exists for the journal.
	ErrAlreadyReversed = errors.New("accounting: journal already reversed")
	// ErrInvalidPayload indicates an event payload field has the wrong shape.
	ErrInvalidPayload = errors.New("accounting: invalid event payload")
)

// BudgetExceededError carries the figures behind a budget rejection.
type BudgetExceededError struct {
	AccountID string
	BudgetID  int64
	Limit     decimal.Decimal
	Actual    decimal.Decimal
	Requested decimal.Decimal
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("accounting: budget exceeded for account %s: actual %s + requested %s > limit %s",
		e.AccountID, e.Actual.StringFixed(2), e.Requested.StringFixed(2), e.Limit.StringFixed(2))
}

// Unwrap lets errors.Is match ErrBudgetExceeded.
func (e *BudgetExceededError) Unwrap() error {
	return ErrBudgetExceeded
}
