package shared

import "errors"

// KindInternal is reported for errors outside the accounting taxonomy.
const KindInternal = "Internal"

var kinds = []struct {
	err  error
	name string
}{
	{ErrPeriodClosed, "PeriodClosed"},
	{ErrNoMappingFound, "NoMappingFound"},
	{ErrBudgetExceeded, "BudgetExceeded"},
	{ErrUnbalancedJournal, "UnbalancedJournal"},
	{ErrAccountNotFound, "AccountNotFound"},
	{ErrAlreadyPosted, "AlreadyPosted"},
	{ErrJournalNotFound, "JournalNotFound"},
	{ErrNoPostedJournalForReversal, "NoPostedJournalForReversal"},
	{ErrUnknownEventType, "UnknownEventType"},
	{ErrAlreadyOpen, "AlreadyOpen"},
	{ErrNotOpen, "NotOpen"},
	{ErrPeriodNotFound, "PeriodNotFound"},
	{ErrInvalidLine, "InvalidLine"},
	{ErrAlreadyReversed, "AlreadyReversed"},
	{ErrInvalidPayload, "InvalidPayload"},
}

// Kind maps err onto its taxonomy name so callers can translate failures
// without matching every sentinel themselves.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return KindInternal
}
