package memledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finledger/internal/accounting/accounts"
	"github.com/odyssey-erp/finledger/internal/accounting/budgets"
	"github.com/odyssey-erp/finledger/internal/accounting/journals"
	"github.com/odyssey-erp/finledger/internal/accounting/mappings"
	"github.com/odyssey-erp/finledger/internal/accounting/periods"
	"github.com/odyssey-erp/finledger/internal/accounting/shared"
)

func normalise(eventType string) string { return shared.NormalizeKey(eventType) }

type accountRepo struct{ st *state }

func (r accountRepo) Resolve(_ context.Context, companyID string, ids []string) (map[string]accounts.Account, error) {
	out := make(map[string]accounts.Account, len(ids))
	for _, id := range ids {
		if a, ok := r.st.accounts[key{companyID, id}]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (r accountRepo) List(_ context.Context, companyID string) ([]accounts.Account, error) {
	var out []accounts.Account
	for k, a := range r.st.accounts {
		if k.company == companyID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type periodRepo struct{ st *state }

func (r periodRepo) sorted(companyID string) []periods.Period {
	var out []periods.Period
	for _, p := range r.st.periods {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out
}

func (r periodRepo) ListOpenCovering(_ context.Context, companyID string, date time.Time) ([]periods.Period, error) {
	var out []periods.Period
	for _, p := range r.sorted(companyID) {
		if p.Status == periods.PeriodStatusOpen && p.Contains(date) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r periodRepo) List(_ context.Context, companyID string) ([]periods.Period, error) {
	out := r.sorted(companyID)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r periodRepo) LockCompany(context.Context, string) error { return nil }

func (r periodRepo) GetForUpdate(_ context.Context, companyID string, periodID int64) (periods.Period, error) {
	p, ok := r.st.periods[periodID]
	if !ok || p.CompanyID != companyID {
		return periods.Period{}, shared.ErrPeriodNotFound
	}
	return p, nil
}

func (r periodRepo) CloseOpenExcept(_ context.Context, companyID string, exceptID int64, actor string, at time.Time) ([]int64, error) {
	var ids []int64
	for id, p := range r.st.periods {
		if p.CompanyID != companyID || p.Status != periods.PeriodStatusOpen || id == exceptID {
			continue
		}
		p.Status = periods.PeriodStatusClosed
		p.ClosedAt, p.ClosedBy = timePtr(at), strPtr(actor)
		p.UpdatedAt = at
		r.st.periods[id] = p
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r periodRepo) SetStatus(_ context.Context, companyID string, periodID int64, status periods.PeriodStatus, actor string, at time.Time) (periods.Period, error) {
	p, ok := r.st.periods[periodID]
	if !ok || p.CompanyID != companyID {
		return periods.Period{}, shared.ErrPeriodNotFound
	}
	p.Status = status
	switch status {
	case periods.PeriodStatusOpen:
		p.OpenedAt, p.OpenedBy = timePtr(at), strPtr(actor)
		p.ClosedAt, p.ClosedBy = nil, nil
	case periods.PeriodStatusClosed:
		p.ClosedAt, p.ClosedBy = timePtr(at), strPtr(actor)
	}
	p.UpdatedAt = at
	r.st.periods[periodID] = p
	return p, nil
}

type mappingRepo struct{ st *state }

func (r mappingRepo) Get(_ context.Context, companyID, eventType string) (mappings.EventMapping, error) {
	m, ok := r.st.mappings[key{companyID, normalise(eventType)}]
	if !ok {
		return mappings.EventMapping{}, fmt.Errorf("%w: %s", shared.ErrNoMappingFound, eventType)
	}
	return m, nil
}

func (r mappingRepo) Upsert(_ context.Context, m mappings.EventMapping) (mappings.EventMapping, error) {
	m.EventType = normalise(m.EventType)
	now := time.Now()
	if prev, ok := r.st.mappings[key{m.CompanyID, m.EventType}]; ok {
		m.CreatedAt = prev.CreatedAt
	} else {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	r.st.mappings[key{m.CompanyID, m.EventType}] = m
	return m, nil
}

type budgetRepo struct{ st *state }

func (r budgetRepo) FindActiveBudget(_ context.Context, companyID string, date time.Time) (budgets.Budget, error) {
	var found *budgets.Budget
	for _, b := range r.st.budgets {
		if b.CompanyID != companyID || b.Status != budgets.BudgetStatusPosted || !shared.Within(date, b.StartDate, b.EndDate) {
			continue
		}
		if found == nil || b.StartDate.After(found.StartDate) || (b.StartDate.Equal(found.StartDate) && b.ID > found.ID) {
			b := b
			found = &b
		}
	}
	if found == nil {
		return budgets.Budget{}, budgets.ErrNotFound
	}
	return *found, nil
}

func (r budgetRepo) GetLine(_ context.Context, budgetID int64, accountID string) (budgets.BudgetLine, error) {
	amount, ok := r.st.budgetLines[budgetID][accountID]
	if !ok {
		return budgets.BudgetLine{}, budgets.ErrNotFound
	}
	return budgets.BudgetLine{BudgetID: budgetID, AccountID: accountID, Amount: amount}, nil
}

func (r budgetRepo) SumActuals(_ context.Context, companyID, accountID string, from, to time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, e := range r.st.ledger {
		if e.CompanyID == companyID && e.AccountID == accountID && shared.Within(e.PostingDate, from, to) {
			total = total.Add(e.Debit.Sub(e.Credit))
		}
	}
	return total, nil
}

type journalRepo struct{ st *state }

func (r journalRepo) NextJournalID(_ context.Context, companyID string) (int64, error) {
	r.st.sequences[companyID]++
	return r.st.sequences[companyID], nil
}

func (r journalRepo) InsertJournal(_ context.Context, entry journals.JournalEntry) (journals.JournalEntry, error) {
	k := journalKey{entry.CompanyID, entry.ID}
	if _, exists := r.st.journals[k]; exists {
		return journals.JournalEntry{}, fmt.Errorf("memledger: duplicate journal %d", entry.ID)
	}
	entry.CreatedAt = time.Now()
	entry.Lines = append([]journals.JournalLine(nil), entry.Lines...)
	r.st.journals[k] = entry
	return entry, nil
}

func (r journalRepo) GetJournal(_ context.Context, companyID string, journalID int64) (journals.JournalEntry, error) {
	e, ok := r.st.journals[journalKey{companyID, journalID}]
	if !ok {
		return journals.JournalEntry{}, shared.ErrJournalNotFound
	}
	return e, nil
}

func (r journalRepo) GetJournalForUpdate(ctx context.Context, companyID string, journalID int64) (journals.JournalEntry, error) {
	return r.GetJournal(ctx, companyID, journalID)
}

func (r journalRepo) LockBalances(_ context.Context, companyID string, accountIDs []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(accountIDs))
	for _, id := range accountIDs {
		k := key{companyID, id}
		bal, ok := r.st.balances[k]
		if !ok {
			bal = decimal.Zero
			r.st.balances[k] = bal
		}
		out[id] = bal
	}
	return out, nil
}

func (r journalRepo) SaveBalance(_ context.Context, companyID, accountID string, balance decimal.Decimal) error {
	k := key{companyID, accountID}
	if _, ok := r.st.balances[k]; !ok {
		return fmt.Errorf("memledger: balance row %s not locked", accountID)
	}
	r.st.balances[k] = balance
	return nil
}

func (r journalRepo) AppendLedgerEntry(_ context.Context, e journals.LedgerEntry) error {
	e.CreatedAt = time.Now()
	r.st.ledger = append(r.st.ledger, e)
	return nil
}

func (r journalRepo) MarkPosted(_ context.Context, companyID string, journalID int64, at time.Time) error {
	k := journalKey{companyID, journalID}
	e, ok := r.st.journals[k]
	if !ok {
		return shared.ErrJournalNotFound
	}
	if e.Status != journals.JournalStatusDraft {
		return shared.ErrAlreadyPosted
	}
	e.Status = journals.JournalStatusPosted
	e.PostedAt = timePtr(at)
	r.st.journals[k] = e
	return nil
}

func (r journalRepo) FindLatestPostedBySource(_ context.Context, companyID, sourceModule string, sourceRefID uuid.UUID) (journals.JournalEntry, error) {
	var found *journals.JournalEntry
	for k, e := range r.st.journals {
		if k.company != companyID || e.Status != journals.JournalStatusPosted || e.SourceModule != sourceModule || e.SourceRefID != sourceRefID {
			continue
		}
		if found == nil || e.ID > found.ID {
			e := e
			found = &e
		}
	}
	if found == nil {
		return journals.JournalEntry{}, shared.ErrJournalNotFound
	}
	return *found, nil
}

func (r journalRepo) HasReversal(_ context.Context, companyID string, journalID int64) (bool, error) {
	for k, e := range r.st.journals {
		if k.company == companyID && e.ReversalOf != nil && *e.ReversalOf == journalID {
			return true, nil
		}
	}
	return false, nil
}

func (r journalRepo) GetBalance(_ context.Context, companyID, accountID string) (journals.LedgerBalance, error) {
	return journals.LedgerBalance{CompanyID: companyID, AccountID: accountID, Balance: r.st.balances[key{companyID, accountID}]}, nil
}

func timePtr(t time.Time) *time.Time { return &t }

func strPtr(s string) *string { return &s }
