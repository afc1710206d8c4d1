package integration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finledger/internal/accounting/accounts"
	"github.com/odyssey-erp/finledger/internal/accounting/budgets"
	"github.com/odyssey-erp/finledger/internal/accounting/journals"
	"github.com/odyssey-erp/finledger/internal/accounting/mappings"
	"github.com/odyssey-erp/finledger/internal/accounting/periods"
	"github.com/odyssey-erp/finledger/internal/accounting/shared"
	"github.com/odyssey-erp/finledger/internal/accounting/store"
	internalShared "github.com/odyssey-erp/finledger/internal/shared"
	"github.com/odyssey-erp/finledger/internal/testing/memledger"
)

const expenseModule = "EXPENSE"

func d(day int) time.Time { return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC) }

func num(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type recordingMetrics struct {
	mu        sync.Mutex
	events    map[string]int
	failures  map[string]int
	reversals map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{events: map[string]int{}, failures: map[string]int{}, reversals: map[string]int{}}
}

func (m *recordingMetrics) ObserveEvent(eventType, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[eventType+"/"+result]++
}

func (m *recordingMetrics) ObserveFailure(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[kind]++
}

func (m *recordingMetrics) ObserveReversal(module string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reversals[module]++
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []internalShared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log internalShared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

var expenseCreator = RecordCreatorFunc(func(_ context.Context, tx store.Scope, companyID string, payload shared.Payload, actor string) (BusinessRecord, error) {
	id := uuid.New()
	tx.(*memledger.Tx).PutRecord(expenseModule, id, memledger.Record{
		"company_id": companyID,
		"amount":     payload["amount"],
		"created_by": actor,
		"status":     "ACTIVE",
	})
	return BusinessRecord{ID: id}, nil
})

var expenseReverter = StatusReverterFunc(func(_ context.Context, tx store.Scope, _ string, id uuid.UUID, reason string) error {
	mem := tx.(*memledger.Tx)
	rec, ok := mem.Record(expenseModule, id)
	if !ok {
		return errors.New("expense not found")
	}
	rec["status"] = "REVERSED"
	rec["reason"] = reason
	mem.PutRecord(expenseModule, id, rec)
	return nil
})

type fixture struct {
	store   *memledger.Store
	orch    *Orchestrator
	metrics *recordingMetrics
	audit   *recordingAudit
}

// newFixture seeds company C1 with an open January 2024, a 1000 budget on
// expense account 5000 and EXPENSE_CREATE mapped to debit 5000 / credit 2000.
// Account 2000 is typed as cash (ASSET) so a credit lowers its balance.
func newFixture(t *testing.T, creditType accounts.AccountType) *fixture {
	t.Helper()
	mem := memledger.New()
	mem.AddAccount(accounts.Account{CompanyID: "C1", ID: "5000", Name: "Operating expenses", Type: accounts.AccountTypeExpense})
	mem.AddAccount(accounts.Account{CompanyID: "C1", ID: "2000", Name: "Settlement", Type: creditType})
	mem.AddPeriod(periods.Period{CompanyID: "C1", ID: 1, Name: "2023-12", StartDate: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), Status: periods.PeriodStatusClosed})
	mem.AddPeriod(periods.Period{CompanyID: "C1", ID: 2, Name: "2024-01", StartDate: d(1), EndDate: d(31), Status: periods.PeriodStatusOpen})
	mem.AddBudget(budgets.Budget{CompanyID: "C1", ID: 1, Name: "FY24", StartDate: d(1), EndDate: time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), Status: budgets.BudgetStatusPosted},
		map[string]decimal.Decimal{"5000": num("1000")})
	mem.AddMapping(mappings.EventMapping{CompanyID: "C1", EventType: "EXPENSE_CREATE", DebitAccountID: "5000", CreditAccountID: "2000", AmountFormula: "net + tax", DescriptionTemplate: "Expense"})

	registry := NewRegistry()
	require.NoError(t, registry.Register(EventHandler{EventType: "EXPENSE_CREATE", SourceModule: expenseModule, DateFields: []string{"expense_date"}, Creator: expenseCreator}))
	require.NoError(t, registry.RegisterReverter(expenseModule, expenseReverter))

	metrics := newRecordingMetrics()
	audit := &recordingAudit{}
	orch := NewOrchestrator(Deps{Runner: mem, Registry: registry, Metrics: metrics, Audit: audit})
	orch.WithNow(func() time.Time { return time.Date(2024, 1, 20, 9, 30, 0, 0, time.UTC) })
	return &fixture{store: mem, orch: orch, metrics: metrics, audit: audit}
}

func (f *fixture) balance(t *testing.T, account string) decimal.Decimal {
	t.Helper()
	bal, _ := f.store.Balance("C1", account)
	return bal
}

func TestHandleEventPostsExpense(t *testing.T) {
	f := newFixture(t, accounts.AccountTypeAsset)
	ctx := context.Background()

	res, err := f.orch.HandleEvent(ctx, "C1", "EXPENSE_CREATE", shared.Payload{"amount": 400, "date": "2024-01-15"}, "user1")
	require.NoError(t, err)
	require.Equal(t, expenseModule, res.Record.Module)
	require.Equal(t, journals.JournalStatusPosted, res.Journal.Status)
	require.Equal(t, expenseModule, res.Journal.SourceModule)
	require.Equal(t, res.Record.ID, res.Journal.SourceRefID)
	require.Equal(t, d(15), res.Journal.Date)

	require.True(t, num("400").Equal(f.balance(t, "5000")))
	require.True(t, num("-400").Equal(f.balance(t, "2000")))

	recs := f.store.Records(expenseModule)
	require.Len(t, recs, 1)
	require.Equal(t, "user1", recs[res.Record.ID]["created_by"])

	entries := f.store.LedgerEntries("C1")
	require.Len(t, entries, 2)
	require.True(t, num("400").Equal(entries[0].Amount))
	require.True(t, num("-400").Equal(entries[1].Amount))

	require.Equal(t, 1, f.metrics.events["EXPENSE_CREATE/posted"])
	require.Len(t, f.audit.logs, 1)
	require.Equal(t, "journal.post", f.audit.logs[0].Action)
}

func TestHandleEventLiabilityCreditIncreases(t *testing.T) {
	f := newFixture(t, accounts.AccountTypeLiability)
	_, err := f.orch.HandleEvent(context.Background(), "C1", "EXPENSE_CREATE", shared.Payload{"amount": 400, "date": "2024-01-15"}, "user1")
	require.NoError(t, err)
	require.True(t, num("400").Equal(f.balance(t, "5000")))
	require.True(t, num("400").Equal(f.balance(t, "2000")))
}

func TestHandleEventBudgetExceededRollsBack(t *testing.T) {
	f := newFixture(t, accounts.AccountTypeAsset)
	ctx := context.Background()

	_, err := f.orch.HandleEvent(ctx, "C1", "EXPENSE_CREATE", shared.Payload{"amount": 400, "date": "2024-01-15"}, "user1")
	require.NoError(t, err)

	_, err = f.orch.HandleEvent(ctx, "C1", "EXPENSE_CREATE", shared.Payload{"amount": 700, "date": "2024-01-16"}, "user1")
	require.ErrorIs(t, err, shared.ErrBudgetExceeded)
	var exceeded *shared.BudgetExceededError
	require.True(t, errors.As(err, &exceeded))
	require.True(t, num("400").Equal(exceeded.Actual))

	require.Len(t, f.store.Records(expenseModule), 1)
	require.Len(t, f.store.Journals("C1"), 1)
	require.True(t, num("400").Equal(f.balance(t, "5000")))
	require.Equal(t, 1, f.metrics.failures["BudgetExceeded"])

	_, err = f.orch.HandleEvent(ctx, "C1", "EXPENSE_CREATE", shared.Payload{"amount": 600, "date": "2024-01-16"}, "user1")
	require.NoError(t, err, "reaching the limit exactly is allowed")
	require.True(t, num("1000").Equal(f.balance(t, "5000")))
}

func TestHandleEventPeriodClosed(t *testing.T) {
	f := newFixture(t, accounts.AccountTypeAsset)
	for _, date := range []string{"2023-12-15", "2024-02-01"} {
		_, err := f.orch.HandleEvent(context.Background(), "C1", "EXPENSE_CREATE", shared.Payload{"amount": 10, "date": date}, "user1")
		require.ErrorIs(t, err, shared.ErrPeriodClosed, date)
	}
	require.Empty(t, f.store.Records(expenseModule))
	require.Empty(t, f.store.LedgerEntries("C1"))
}

func TestHandleEventUnknownTypeOpensNoTransaction(t *testing.T) {
	f := newFixture(t, accounts.AccountTypeAsset)
	_, err := f.orch.HandleEvent(context.Background(), "C1", "PAYROLL_RUN", shared.Payload{"amount": 10}, "user1")
	require.ErrorIs(t, err, shared.ErrUnknownEventType)
	commits, rollbacks := f.store.Stats()
	require.Zero(t, commits)
	require.Zero(t, rollbacks)
	require.Equal(t, 1, f.metrics.events["UNKNOWN/rejected"])
}

func TestHandleEventNoMapping(t *testing.T) {
	f := newFixture(t, accounts.AccountTypeAsset)
	ctx := context.Background()
	require.NoError(t, f.orch.Registry().Register(EventHandler{EventType: "LOAN_DRAWDOWN", SourceModule: "LOAN", Creator: expenseCreator}))

	_, err := f.orch.HandleEvent(ctx, "C1", "LOAN_DRAWDOWN", shared.Payload{"amount": 10, "date": "2024-01-10"}, "user1")
	require.ErrorIs(t, err, shared.ErrNoMappingFound)

	_, err = f.orch.HandleEvent(ctx, "C1", "EXPENSE_CREATE", shared.Payload{"amount": "ten", "net": "x", "date": "2024-01-10"}, "user1")
	require.ErrorIs(t, err, shared.ErrNoMappingFound)
	require.Empty(t, f.store.Records(expenseModule))
}

func TestHandleEventFormulaAndDateFields(t *testing.T) {
	f := newFixture(t, accounts.AccountTypeAsset)
	ctx := context.Background()

	res, err := f.orch.HandleEvent(ctx, "C1", "expense-create", shared.Payload{"net": 100, "tax": 11, "expense_date": "2024-01-05"}, "user1")
	require.NoError(t, err)
	require.Equal(t, d(5), res.Journal.Date)
	require.True(t, num("111").Equal(f.balance(t, "5000")))

	res, err = f.orch.HandleEvent(ctx, "C1", "EXPENSE_CREATE", shared.Payload{"amount": 1}, "user1")
	require.NoError(t, err)
	require.Equal(t, d(20), res.Journal.Date)

	_, err = f.orch.HandleEvent(ctx, "C1", "EXPENSE_CREATE", shared.Payload{"amount": 1, "date": "15/01/2024"}, "user1")
	require.ErrorIs(t, err, shared.ErrInvalidPayload)
}

func TestHandleEventPostingFailureRollsBackRecord(t *testing.T) {
	f := newFixture(t, accounts.AccountTypeAsset)
	f.store.AddMapping(mappings.EventMapping{CompanyID: "C1", EventType: "EXPENSE_CREATE", DebitAccountID: "5000", CreditAccountID: "9999"})

	_, err := f.orch.HandleEvent(context.Background(), "C1", "EXPENSE_CREATE", shared.Payload{"amount": 50, "date": "2024-01-10"}, "user1")
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
	require.Empty(t, f.store.Records(expenseModule))
	require.Empty(t, f.store.Journals("C1"))
	_, ok := f.store.Balance("C1", "5000")
	require.False(t, ok)
}

func TestReverseTransaction(t *testing.T) {
	f := newFixture(t, accounts.AccountTypeAsset)
	ctx := context.Background()

	res, err := f.orch.HandleEvent(ctx, "C1", "EXPENSE_CREATE", shared.Payload{"amount": 400, "date": "2024-01-15"}, "user1")
	require.NoError(t, err)

	reversal, err := f.orch.ReverseTransaction(ctx, "C1", "expense", res.Record.ID, "duplicate receipt", "user2")
	require.NoError(t, err)
	require.Equal(t, "EXPENSE_REVERSAL", reversal.SourceModule)
	require.Equal(t, res.Record.ID, reversal.SourceRefID)
	require.NotNil(t, reversal.ReversalOf)
	require.Equal(t, res.Journal.ID, *reversal.ReversalOf)
	require.Equal(t, d(20), reversal.Date)
	require.Contains(t, reversal.Description, "duplicate receipt")
	require.Len(t, reversal.Lines, len(res.Journal.Lines))
	for i, line := range reversal.Lines {
		orig := res.Journal.Lines[i]
		require.True(t, line.Debit.Equal(orig.Credit))
		require.True(t, line.Credit.Equal(orig.Debit))
		require.Equal(t, "Reversal: "+orig.Description, line.Description)
	}

	require.True(t, f.balance(t, "5000").IsZero())
	require.True(t, f.balance(t, "2000").IsZero())

	stored := f.store.Journals("C1")
	require.Len(t, stored, 2)
	require.Equal(t, res.Journal.Description, stored[0].Description)
	require.Equal(t, journals.JournalStatusPosted, stored[0].Status)
	require.Nil(t, stored[0].ReversalOf)

	rec := f.store.Records(expenseModule)[res.Record.ID]
	require.Equal(t, "REVERSED", rec["status"])
	require.Equal(t, 1, f.metrics.reversals[expenseModule])

	_, err = f.orch.ReverseTransaction(ctx, "C1", expenseModule, res.Record.ID, "again", "user2")
	require.ErrorIs(t, err, shared.ErrAlreadyReversed)

	_, err = f.orch.ReverseTransaction(ctx, "C1", expenseModule, uuid.New(), "", "user2")
	require.ErrorIs(t, err, shared.ErrNoPostedJournalForReversal)
}

func TestReverseTransactionWithoutReverter(t *testing.T) {
	f := newFixture(t, accounts.AccountTypeAsset)
	ctx := context.Background()
	require.NoError(t, f.orch.Registry().Register(EventHandler{EventType: "ASSET_PURCHASE", SourceModule: "ASSETS", Creator: expenseCreator}))
	f.store.AddMapping(mappings.EventMapping{CompanyID: "C1", EventType: "ASSET_PURCHASE", DebitAccountID: "5000", CreditAccountID: "2000"})

	res, err := f.orch.HandleEvent(ctx, "C1", "ASSET_PURCHASE", shared.Payload{"amount": 80, "date": "2024-01-12"}, "user1")
	require.NoError(t, err)

	reversal, err := f.orch.ReverseTransaction(ctx, "C1", "ASSETS", res.Record.ID, "returned", "user1")
	require.NoError(t, err)
	require.Equal(t, "ASSETS_REVERSAL", reversal.SourceModule)
	require.True(t, f.balance(t, "5000").IsZero())
}

func TestReverseTransactionRequiresOpenPeriodToday(t *testing.T) {
	f := newFixture(t, accounts.AccountTypeAsset)
	ctx := context.Background()
	res, err := f.orch.HandleEvent(ctx, "C1", "EXPENSE_CREATE", shared.Payload{"amount": 10, "date": "2024-01-02"}, "user1")
	require.NoError(t, err)

	f.orch.WithNow(func() time.Time { return time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC) })
	_, err = f.orch.ReverseTransaction(ctx, "C1", expenseModule, res.Record.ID, "late", "user1")
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
	require.Len(t, f.store.Journals("C1"), 1)
}

func TestConcurrentEventsKeepRunningBalance(t *testing.T) {
	f := newFixture(t, accounts.AccountTypeAsset)
	f.store.AddBudget(budgets.Budget{CompanyID: "C1", ID: 1, StartDate: d(1), EndDate: d(31), Status: budgets.BudgetStatusDraft}, nil)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orch.HandleEvent(ctx, "C1", "EXPENSE_CREATE", shared.Payload{"amount": 10, "date": "2024-01-15"}, "user1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.True(t, num("200").Equal(f.balance(t, "5000")))
	seen := map[string]bool{}
	for _, e := range f.store.LedgerEntries("C1") {
		if e.AccountID != "5000" {
			continue
		}
		key := e.RunningBalance.String()
		require.False(t, seen[key], "running balance %s repeated", key)
		seen[key] = true
	}
	require.Len(t, seen, workers)

	for _, j := range f.store.Journals("C1") {
		debit, credit := j.Totals()
		require.True(t, journals.IsBalanced(debit, credit))
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(EventHandler{EventType: "expense create", SourceModule: "expense", Creator: expenseCreator}))
	require.Error(t, reg.Register(EventHandler{EventType: "EXPENSE_CREATE", SourceModule: "EXPENSE", Creator: expenseCreator}))
	require.Error(t, reg.Register(EventHandler{EventType: "X", SourceModule: "Y"}))
	require.NoError(t, reg.RegisterReverter("expense", expenseReverter))
	require.Error(t, reg.RegisterReverter("EXPENSE", expenseReverter))

	h, ok := reg.Handler("Expense-Create")
	require.True(t, ok)
	require.Equal(t, "EXPENSE", h.SourceModule)
	require.Equal(t, []string{"EXPENSE_CREATE"}, reg.EventTypes())
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

type loggedRunner struct {
	store.Runner
	log *callLog
}

func (r loggedRunner) WithTx(ctx context.Context, fn func(context.Context, store.Scope) error) error {
	return r.Runner.WithTx(ctx, func(ctx context.Context, tx store.Scope) error {
		return fn(ctx, loggedScope{Scope: tx, log: r.log})
	})
}

type loggedScope struct {
	store.Scope
	log *callLog
}

func (s loggedScope) Journals() journals.Repository {
	return loggedJournals{Repository: s.Scope.Journals(), log: s.log}
}

func (s loggedScope) Budgets() budgets.Repository {
	return loggedBudgets{Repository: s.Scope.Budgets(), log: s.log}
}

type loggedJournals struct {
	journals.Repository
	log *callLog
}

func (r loggedJournals) LockBalances(ctx context.Context, companyID string, accountIDs []string) (map[string]decimal.Decimal, error) {
	r.log.add("lock " + strings.Join(accountIDs, ","))
	return r.Repository.LockBalances(ctx, companyID, accountIDs)
}

type loggedBudgets struct {
	budgets.Repository
	log *callLog
}

func (r loggedBudgets) SumActuals(ctx context.Context, companyID, accountID string, from, to time.Time) (decimal.Decimal, error) {
	r.log.add("actuals " + accountID)
	return r.Repository.SumActuals(ctx, companyID, accountID, from, to)
}

func TestHandleEventLocksBalancesBeforeBudgetCheck(t *testing.T) {
	f := newFixture(t, accounts.AccountTypeAsset)
	log := &callLog{}
	registry := NewRegistry()
	require.NoError(t, registry.Register(EventHandler{
		EventType:    "EXPENSE_CREATE",
		SourceModule: expenseModule,
		Creator: RecordCreatorFunc(func(context.Context, store.Scope, string, shared.Payload, string) (BusinessRecord, error) {
			return BusinessRecord{ID: uuid.New()}, nil
		}),
	}))
	orch := NewOrchestrator(Deps{Runner: loggedRunner{Runner: f.store, log: log}, Registry: registry})
	orch.WithNow(func() time.Time { return d(20) })

	_, err := orch.HandleEvent(context.Background(), "C1", "EXPENSE_CREATE", shared.Payload{"amount": 700, "date": "2024-01-15"}, "u1")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(log.calls), 2)
	require.Equal(t, []string{"lock 2000,5000", "actuals 5000"}, log.calls[:2])

	log.calls = nil
	_, err = orch.HandleEvent(context.Background(), "C1", "EXPENSE_CREATE", shared.Payload{"amount": 700, "date": "2024-01-16"}, "u1")
	require.ErrorIs(t, err, shared.ErrBudgetExceeded)
	require.Equal(t, []string{"lock 2000,5000", "actuals 5000"}, log.calls)
	require.True(t, num("700").Equal(f.balance(t, "5000")))
}
