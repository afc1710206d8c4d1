package ap

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finledger/internal/accounting/accounts"
	"github.com/odyssey-erp/finledger/internal/accounting/mappings"
	"github.com/odyssey-erp/finledger/internal/accounting/periods"
	"github.com/odyssey-erp/finledger/internal/accounting/shared"
	"github.com/odyssey-erp/finledger/internal/accounting/store"
	"github.com/odyssey-erp/finledger/internal/integration"
	"github.com/odyssey-erp/finledger/internal/testing/memledger"
)

type memoryInvoiceRepo struct {
	tx *memledger.Tx
}

func (r memoryInvoiceRepo) InsertInvoice(_ context.Context, inv Invoice) error {
	r.tx.PutRecord(SourceModule, inv.ID, memledger.Record{"number": inv.Number, "total": inv.Total.String(), "status": string(inv.Status)})
	return nil
}

func (r memoryInvoiceRepo) VoidInvoice(_ context.Context, _ string, id uuid.UUID, reason string, _ time.Time) error {
	rec, ok := r.tx.Record(SourceModule, id)
	if !ok {
		return ErrInvoiceNotFound
	}
	rec["status"] = string(InvoiceStatusVoid)
	rec["reason"] = reason
	r.tx.PutRecord(SourceModule, id, rec)
	return nil
}

func newTestModule() *Module {
	m := NewModule(nil)
	m.repoFor = func(tx store.Scope) Repository { return memoryInvoiceRepo{tx: tx.(*memledger.Tx)} }
	m.now = func() time.Time { return time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC) }
	return m
}

func TestParseCreateInvoice(t *testing.T) {
	m := newTestModule()

	in, err := m.ParseCreateInvoice(shared.Payload{
		"supplier":       "PT Sumber Makmur",
		"invoice_number": "INV-001",
		"invoice_date":   "2024-01-10",
		"subtotal":       1000,
		"tax":            110,
	})
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 2, 9, 0, 0, 0, 0, time.UTC), in.DueDate)
	require.True(t, decimal.NewFromInt(110).Equal(in.Tax))

	cases := map[string]shared.Payload{
		"missing supplier": {"invoice_number": "INV-1", "subtotal": 10},
		"missing number":   {"supplier": "S", "subtotal": 10},
		"zero subtotal":    {"supplier": "S", "invoice_number": "INV-1", "subtotal": 0},
		"text subtotal":    {"supplier": "S", "invoice_number": "INV-1", "subtotal": "10"},
		"negative tax":     {"supplier": "S", "invoice_number": "INV-1", "subtotal": 10, "tax": -1},
		"due before date":  {"supplier": "S", "invoice_number": "INV-1", "subtotal": 10, "invoice_date": "2024-01-10", "due_date": "2024-01-01"},
		"bad date":         {"supplier": "S", "invoice_number": "INV-1", "subtotal": 10, "invoice_date": "yesterday"},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := m.ParseCreateInvoice(payload)
			require.ErrorIs(t, err, shared.ErrInvalidPayload)
		})
	}
}

func TestInvoiceThroughOrchestrator(t *testing.T) {
	mem := memledger.New()
	mem.AddAccount(accounts.Account{CompanyID: "C1", ID: "5100", Name: "Purchases", Type: accounts.AccountTypeExpense})
	mem.AddAccount(accounts.Account{CompanyID: "C1", ID: "2100", Name: "Accounts payable", Type: accounts.AccountTypeLiability})
	mem.AddPeriod(periods.Period{CompanyID: "C1", ID: 1, Name: "2024-01", StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), Status: periods.PeriodStatusOpen})
	mem.AddMapping(mappings.EventMapping{CompanyID: "C1", EventType: EventInvoiceCreate, DebitAccountID: "5100", CreditAccountID: "2100", AmountFormula: "subtotal + tax", DescriptionTemplate: "Supplier invoice"})

	module := newTestModule()
	reg := integration.NewRegistry()
	require.NoError(t, module.Register(reg))
	orch := integration.NewOrchestrator(integration.Deps{Runner: mem, Registry: reg})
	orch.WithNow(module.now)
	ctx := context.Background()

	res, err := orch.HandleEvent(ctx, "C1", EventInvoiceCreate, shared.Payload{
		"supplier":       "PT Sumber Makmur",
		"invoice_number": "INV-001",
		"invoice_date":   "2024-01-10",
		"subtotal":       1000,
		"tax":            110,
	}, "clerk")
	require.NoError(t, err)
	require.Equal(t, SourceModule, res.Journal.SourceModule)
	inv, ok := res.Record.Data.(Invoice)
	require.True(t, ok)
	require.True(t, decimal.NewFromInt(1110).Equal(inv.Total))

	bal, _ := mem.Balance("C1", "2100")
	require.True(t, decimal.NewFromInt(1110).Equal(bal))

	_, err = orch.ReverseTransaction(ctx, "C1", SourceModule, res.Record.ID, "wrong supplier", "clerk")
	require.NoError(t, err)
	require.Equal(t, "VOID", mem.Records(SourceModule)[res.Record.ID]["status"])
	bal, _ = mem.Balance("C1", "2100")
	require.True(t, bal.IsZero())
}

func TestInvoiceDateMatchesJournalDate(t *testing.T) {
	mem := memledger.New()
	mem.AddAccount(accounts.Account{CompanyID: "C1", ID: "5100", Name: "Purchases", Type: accounts.AccountTypeExpense})
	mem.AddAccount(accounts.Account{CompanyID: "C1", ID: "2100", Name: "Accounts payable", Type: accounts.AccountTypeLiability})
	mem.AddPeriod(periods.Period{CompanyID: "C1", ID: 1, Name: "2024-01", StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), Status: periods.PeriodStatusOpen})
	mem.AddMapping(mappings.EventMapping{CompanyID: "C1", EventType: EventInvoiceCreate, DebitAccountID: "5100", CreditAccountID: "2100", AmountFormula: "subtotal + tax"})

	module := newTestModule()
	reg := integration.NewRegistry()
	require.NoError(t, module.Register(reg))
	orch := integration.NewOrchestrator(integration.Deps{Runner: mem, Registry: reg})
	orch.WithNow(module.now)

	res, err := orch.HandleEvent(context.Background(), "C1", EventInvoiceCreate, shared.Payload{
		"supplier":       "PT Sumber Makmur",
		"invoice_number": "INV-002",
		"date":           "2024-01-12",
		"invoice_date":   "2024-01-05",
		"subtotal":       500,
	}, "clerk")
	require.NoError(t, err)
	inv := res.Record.Data.(Invoice)
	require.Equal(t, time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC), inv.InvoiceDate)
	require.Equal(t, inv.InvoiceDate, res.Journal.Date)
}
