// Package memledger is an in-memory ledger store for tests. Every WithTx
// call works on a copy of the state that replaces the committed state
// only when fn returns nil.
package memledger

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finledger/internal/accounting/accounts"
	"github.com/odyssey-erp/finledger/internal/accounting/budgets"
	"github.com/odyssey-erp/finledger/internal/accounting/journals"
	"github.com/odyssey-erp/finledger/internal/accounting/mappings"
	"github.com/odyssey-erp/finledger/internal/accounting/periods"
	"github.com/odyssey-erp/finledger/internal/accounting/store"
	"github.com/odyssey-erp/finledger/internal/platform/db"
)

type key struct {
	company string
	id      string
}

type journalKey struct {
	company string
	id      int64
}

// Record is a stored business record.
type Record map[string]any

type state struct {
	accounts    map[key]accounts.Account
	periods     map[int64]periods.Period
	mappings    map[key]mappings.EventMapping
	budgets     map[int64]budgets.Budget
	budgetLines map[int64]map[string]decimal.Decimal
	sequences   map[string]int64
	journals    map[journalKey]journals.JournalEntry
	balances    map[key]decimal.Decimal
	ledger      []journals.LedgerEntry
	records     map[string]map[uuid.UUID]Record
}

func newState() *state {
	return &state{
		accounts:    map[key]accounts.Account{},
		periods:     map[int64]periods.Period{},
		mappings:    map[key]mappings.EventMapping{},
		budgets:     map[int64]budgets.Budget{},
		budgetLines: map[int64]map[string]decimal.Decimal{},
		sequences:   map[string]int64{},
		journals:    map[journalKey]journals.JournalEntry{},
		balances:    map[key]decimal.Decimal{},
		records:     map[string]map[uuid.UUID]Record{},
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.periods {
		out.periods[k] = v
	}
	for k, v := range s.mappings {
		out.mappings[k] = v
	}
	for k, v := range s.budgets {
		out.budgets[k] = v
	}
	for k, lines := range s.budgetLines {
		cp := make(map[string]decimal.Decimal, len(lines))
		for acct, amt := range lines {
			cp[acct] = amt
		}
		out.budgetLines[k] = cp
	}
	for k, v := range s.sequences {
		out.sequences[k] = v
	}
	for k, v := range s.journals {
		out.journals[k] = v
	}
	for k, v := range s.balances {
		out.balances[k] = v
	}
	out.ledger = append([]journals.LedgerEntry(nil), s.ledger...)
	for module, recs := range s.records {
		cp := make(map[uuid.UUID]Record, len(recs))
		for id, rec := range recs {
			fields := make(Record, len(rec))
			for f, v := range rec {
				fields[f] = v
			}
			cp[id] = fields
		}
		out.records[module] = cp
	}
	return out
}

// Store is a store.Runner kept entirely in memory. Transactions are
// serialised by a mutex.
type Store struct {
	mu        sync.Mutex
	committed *state
	commits   int
	rollbacks int
}

var _ store.Runner = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{committed: newState()}
}

// WithTx runs fn on a working copy and commits it when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, store.Scope) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &Tx{st: s.committed.clone()}
	if err := fn(ctx, tx); err != nil {
		s.rollbacks++
		return err
	}
	if err := ctx.Err(); err != nil {
		s.rollbacks++
		return err
	}
	s.committed = tx.st
	s.commits++
	return nil
}

// Stats reports committed and rolled back transaction counts.
func (s *Store) Stats() (commits, rollbacks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits, s.rollbacks
}

func (s *Store) read(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.committed)
}

// AddAccount seeds the chart of accounts.
func (s *Store) AddAccount(a accounts.Account) {
	s.read(func(st *state) { st.accounts[key{a.CompanyID, a.ID}] = a })
}

// AddPeriod seeds a financial period.
func (s *Store) AddPeriod(p periods.Period) {
	s.read(func(st *state) { st.periods[p.ID] = p })
}

// AddMapping seeds an event mapping.
func (s *Store) AddMapping(m mappings.EventMapping) {
	s.read(func(st *state) { st.mappings[key{m.CompanyID, normalise(m.EventType)}] = m })
}

// AddBudget seeds a budget with its lines.
func (s *Store) AddBudget(b budgets.Budget, lines map[string]decimal.Decimal) {
	s.read(func(st *state) {
		st.budgets[b.ID] = b
		cp := make(map[string]decimal.Decimal, len(lines))
		for acct, amt := range lines {
			cp[acct] = amt
		}
		st.budgetLines[b.ID] = cp
	})
}

// Balance returns the committed balance of an account and whether a row exists.
func (s *Store) Balance(companyID, accountID string) (decimal.Decimal, bool) {
	var (
		bal decimal.Decimal
		ok  bool
	)
	s.read(func(st *state) { bal, ok = st.balances[key{companyID, accountID}] })
	return bal, ok
}

// LedgerEntries returns committed ledger entries of a company in append order.
func (s *Store) LedgerEntries(companyID string) []journals.LedgerEntry {
	var out []journals.LedgerEntry
	s.read(func(st *state) {
		for _, e := range st.ledger {
			if e.CompanyID == companyID {
				out = append(out, e)
			}
		}
	})
	return out
}

// Journals returns committed journals of a company ordered by id.
func (s *Store) Journals(companyID string) []journals.JournalEntry {
	var out []journals.JournalEntry
	s.read(func(st *state) {
		for k, e := range st.journals {
			if k.company == companyID {
				out = append(out, e)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Period returns a committed period.
func (s *Store) Period(id int64) (periods.Period, bool) {
	var (
		p  periods.Period
		ok bool
	)
	s.read(func(st *state) { p, ok = st.periods[id] })
	return p, ok
}

// Records returns the committed business records of a module.
func (s *Store) Records(module string) map[uuid.UUID]Record {
	out := map[uuid.UUID]Record{}
	s.read(func(st *state) {
		for id, rec := range st.records[module] {
			out[id] = rec
		}
	})
	return out
}

// Tx is the scope of one in-memory transaction.
type Tx struct {
	st *state
}

var _ store.Scope = (*Tx)(nil)

// DB returns nil; in-memory callers use PutRecord instead of SQL.
func (t *Tx) DB() db.DBTX { return nil }

func (t *Tx) Accounts() accounts.Registry { return accountRepo{t.st} }

func (t *Tx) Periods() periods.Repository { return periodRepo{t.st} }

func (t *Tx) Mappings() mappings.Repository { return mappingRepo{t.st} }

func (t *Tx) Budgets() budgets.Repository { return budgetRepo{t.st} }

func (t *Tx) Journals() journals.Repository { return journalRepo{t.st} }

// PutRecord stores a business record inside the transaction.
func (t *Tx) PutRecord(module string, id uuid.UUID, rec Record) {
	recs, ok := t.st.records[module]
	if !ok {
		recs = map[uuid.UUID]Record{}
		t.st.records[module] = recs
	}
	recs[id] = rec
}

// Record returns a business record visible inside the transaction.
func (t *Tx) Record(module string, id uuid.UUID) (Record, bool) {
	rec, ok := t.st.records[module][id]
	return rec, ok
}
