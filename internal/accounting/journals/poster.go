package journals

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/finledger/internal/accounting/accounts"
	"github.com/odyssey-erp/finledger/internal/accounting/shared"
)

// TxScope exposes the repositories a posting needs inside one transaction.
type TxScope interface {
	Journals() Repository
	Accounts() accounts.Registry
}

// PostingObserver receives the duration of every successful post.
type PostingObserver interface {
	ObservePosting(d time.Duration)
}

// Poster inserts and posts journals. It holds no transaction state; every
// call works on the scope it is given.
type Poster struct {
	now      func() time.Time
	observer PostingObserver
}

// NewPoster constructs a Poster. observer may be nil.
func NewPoster(observer PostingObserver) *Poster {
	return &Poster{now: time.Now, observer: observer}
}

func (p *Poster) WithNow(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// Insert persists a DRAFT journal with lines numbered from 1. A POSTED
// status on the input posts it immediately within the same scope.
func (p *Poster) Insert(ctx context.Context, scope TxScope, companyID string, in InsertInput) (JournalEntry, error) {
	if strings.TrimSpace(companyID) == "" {
		return JournalEntry{}, fmt.Errorf("accounting: company required")
	}
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	repo := scope.Journals()
	id, err := repo.NextJournalID(ctx, companyID)
	if err != nil {
		return JournalEntry{}, err
	}
	entry := JournalEntry{
		CompanyID:    companyID,
		ID:           id,
		Date:         shared.DateOnly(in.Date),
		Description:  in.Description,
		Status:       JournalStatusDraft,
		SourceModule: in.SourceModule,
		SourceRefID:  in.SourceRefID,
		ReversalOf:   in.ReversalOf,
		CreatedBy:    in.CreatedBy,
		Lines:        make([]JournalLine, 0, len(in.Lines)),
	}
	for idx, line := range in.Lines {
		entry.Lines = append(entry.Lines, JournalLine{
			LineNumber:  idx + 1,
			AccountID:   strings.TrimSpace(line.AccountID),
			Description: line.Description,
			Debit:       line.Debit,
			Credit:      line.Credit,
		})
	}
	inserted, err := repo.InsertJournal(ctx, entry)
	if err != nil {
		return JournalEntry{}, err
	}
	if in.Status != JournalStatusPosted {
		return inserted, nil
	}
	return p.Post(ctx, scope, companyID, inserted.ID)
}

// Post applies a DRAFT journal to the ledger: balances are locked in
// account order, then each line in line order updates its account's
// running balance and appends a ledger entry.
func (p *Poster) Post(ctx context.Context, scope TxScope, companyID string, journalID int64) (JournalEntry, error) {
	started := p.now()
	repo := scope.Journals()
	entry, err := repo.GetJournalForUpdate(ctx, companyID, journalID)
	if err != nil {
		return JournalEntry{}, err
	}
	if entry.Status == JournalStatusPosted {
		return JournalEntry{}, fmt.Errorf("%w: journal %d", shared.ErrAlreadyPosted, journalID)
	}
	if err := ValidateLines(entry.LineInputs()); err != nil {
		return JournalEntry{}, err
	}

	accountIDs := distinctAccounts(entry.Lines)
	resolved, err := scope.Accounts().Resolve(ctx, companyID, accountIDs)
	if err != nil {
		return JournalEntry{}, err
	}
	for _, id := range accountIDs {
		if _, ok := resolved[id]; !ok {
			return JournalEntry{}, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, id)
		}
	}

	balances, err := repo.LockBalances(ctx, companyID, accountIDs)
	if err != nil {
		return JournalEntry{}, err
	}

	lines := append([]JournalLine(nil), entry.Lines...)
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].LineNumber < lines[j].LineNumber })
	for _, line := range lines {
		acct := resolved[line.AccountID]
		delta := acct.Type.BalanceDelta(line.Debit, line.Credit)
		next := balances[line.AccountID].Add(delta)
		balances[line.AccountID] = next
		if err := repo.SaveBalance(ctx, companyID, line.AccountID, next); err != nil {
			return JournalEntry{}, err
		}
		if err := repo.AppendLedgerEntry(ctx, LedgerEntry{
			CompanyID:      companyID,
			JournalID:      entry.ID,
			LineNumber:     line.LineNumber,
			PostingDate:    entry.Date,
			AccountID:      line.AccountID,
			Debit:          line.Debit,
			Credit:         line.Credit,
			Amount:         line.Debit.Sub(line.Credit),
			RunningBalance: next,
			Description:    line.Description,
		}); err != nil {
			return JournalEntry{}, err
		}
	}

	postedAt := p.now()
	if err := repo.MarkPosted(ctx, companyID, entry.ID, postedAt); err != nil {
		return JournalEntry{}, err
	}
	entry.Status = JournalStatusPosted
	entry.PostedAt = &postedAt
	if p.observer != nil {
		p.observer.ObservePosting(p.now().Sub(started))
	}
	return entry, nil
}

func distinctAccounts(lines []JournalLine) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		out = append(out, line.AccountID)
	}
	sort.Strings(out)
	return out
}
