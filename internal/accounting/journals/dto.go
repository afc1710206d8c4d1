package journals

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finledger/internal/accounting/shared"
)

// BalanceTolerance is the largest debit/credit difference still treated as balanced.
var BalanceTolerance = decimal.New(1, -4)

// ReversalPrefix marks descriptions of reversal journals and their lines.
const ReversalPrefix = "Reversal: "

// LineInput describes a journal line for an insert request.
type LineInput struct {
	AccountID   string
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// InsertInput groups fields required to create a journal entry. Status
// defaults to DRAFT; POSTED inserts and posts in one step.
type InsertInput struct {
	Date         time.Time
	Description  string
	Status       JournalStatus
	SourceModule string
	SourceRefID  uuid.UUID
	ReversalOf   *int64
	CreatedBy    string
	Lines        []LineInput
}

// Totals sums both sides of lines.
func Totals(lines []LineInput) (debit, credit decimal.Decimal) {
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// IsBalanced reports whether debit and credit agree within BalanceTolerance.
func IsBalanced(debit, credit decimal.Decimal) bool {
	return debit.Sub(credit).Abs().LessThanOrEqual(BalanceTolerance)
}

// ValidateLines checks shape and balance of a line set.
func ValidateLines(lines []LineInput) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: no lines", shared.ErrUnbalancedJournal)
	}
	for idx, line := range lines {
		if strings.TrimSpace(line.AccountID) == "" {
			return fmt.Errorf("%w: line %d missing account", shared.ErrInvalidLine, idx+1)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d negative amount", shared.ErrInvalidLine, idx+1)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("%w: line %d cannot be both debit and credit", shared.ErrInvalidLine, idx+1)
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			return fmt.Errorf("%w: line %d has no amount", shared.ErrInvalidLine, idx+1)
		}
	}
	debit, credit := Totals(lines)
	if !IsBalanced(debit, credit) {
		return fmt.Errorf("%w: debit %s credit %s", shared.ErrUnbalancedJournal, debit.StringFixed(4), credit.StringFixed(4))
	}
	return nil
}

// Validate ensures insert input meets minimum criteria.
func (in InsertInput) Validate() error {
	if in.Date.IsZero() {
		return errors.New("accounting: journal date required")
	}
	switch in.Status {
	case "", JournalStatusDraft, JournalStatusPosted:
	default:
		return fmt.Errorf("accounting: unsupported journal status %q", in.Status)
	}
	return ValidateLines(in.Lines)
}

// ReverseLines swaps debit and credit of every line and prefixes descriptions.
func ReverseLines(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID:   line.AccountID,
			Description: ReversalPrefix + line.Description,
			Debit:       line.Credit,
			Credit:      line.Debit,
		})
	}
	return out
}
