package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusDraft  JournalStatus = "DRAFT"
	JournalStatusPosted JournalStatus = "POSTED"
)

// JournalEntry captures the journal header and its lines.
type JournalEntry struct {
	CompanyID    string
	ID           int64
	Date         time.Time
	Description  string
	Status       JournalStatus
	SourceModule string
	SourceRefID  uuid.UUID
	ReversalOf   *int64
	CreatedBy    string
	PostedAt     *time.Time
	CreatedAt    time.Time
	Lines        []JournalLine
}

// JournalLine stores a debit or credit amount for an account.
type JournalLine struct {
	LineNumber  int
	AccountID   string
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// LedgerEntry is the immutable record of a posted line.
type LedgerEntry struct {
	CompanyID      string
	JournalID      int64
	LineNumber     int
	PostingDate    time.Time
	AccountID      string
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	Amount         decimal.Decimal
	RunningBalance decimal.Decimal
	Description    string
	CreatedAt      time.Time
}

// LedgerBalance is the running balance of one account.
type LedgerBalance struct {
	CompanyID string
	AccountID string
	Balance   decimal.Decimal
	UpdatedAt time.Time
}

// Totals sums the debit and credit sides of the entry.
func (e JournalEntry) Totals() (debit, credit decimal.Decimal) {
	return Totals(e.LineInputs())
}

// LineInputs converts stored lines back into inputs.
func (e JournalEntry) LineInputs() []LineInput {
	out := make([]LineInput, 0, len(e.Lines))
	for _, line := range e.Lines {
		out = append(out, LineInput{
			AccountID:   line.AccountID,
			Description: line.Description,
			Debit:       line.Debit,
			Credit:      line.Credit,
		})
	}
	return out
}
