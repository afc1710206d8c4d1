package mappings

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finledger/internal/accounting/shared"
)

type memoryRepo struct {
	items map[string]EventMapping
	gets  int
	err   error
}

func newMemoryRepo(items ...EventMapping) *memoryRepo {
	repo := &memoryRepo{items: map[string]EventMapping{}}
	for _, m := range items {
		repo.items[m.CompanyID+"/"+shared.NormalizeKey(m.EventType)] = m
	}
	return repo
}

func (m *memoryRepo) Get(_ context.Context, companyID, eventType string) (EventMapping, error) {
	m.gets++
	if m.err != nil {
		return EventMapping{}, m.err
	}
	item, ok := m.items[companyID+"/"+shared.NormalizeKey(eventType)]
	if !ok {
		return EventMapping{}, fmt.Errorf("%w: %s", shared.ErrNoMappingFound, eventType)
	}
	return item, nil
}

func (m *memoryRepo) Upsert(_ context.Context, item EventMapping) (EventMapping, error) {
	item.EventType = shared.NormalizeKey(item.EventType)
	m.items[item.CompanyID+"/"+item.EventType] = item
	return item, nil
}

var expenseMapping = EventMapping{
	CompanyID:           "C1",
	EventType:           "EXPENSE_CREATE",
	DebitAccountID:      "5000",
	CreditAccountID:     "2000",
	AmountFormula:       "net + vat",
	DescriptionTemplate: "Expense recorded",
}

func TestApplyUsesPayloadAmount(t *testing.T) {
	resolver := NewResolver(nil)
	res, ok, err := resolver.Apply(context.Background(), newMemoryRepo(expenseMapping), "C1", "EXPENSE_CREATE", shared.Payload{"amount": 400})
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, decimal.NewFromInt(400).Equal(res.Amount))
	require.Len(t, res.Lines, 2)

	debit, credit := res.Lines[0], res.Lines[1]
	require.Equal(t, "5000", debit.AccountID)
	require.True(t, debit.Debit.Equal(res.Amount))
	require.True(t, debit.Credit.IsZero())
	require.Equal(t, "2000", credit.AccountID)
	require.True(t, credit.Credit.Equal(res.Amount))
	require.True(t, credit.Debit.IsZero())
	require.Equal(t, "Expense recorded", debit.Description)
	require.Equal(t, "Expense recorded", credit.Description)
}

func TestApplyFallsBackToFormula(t *testing.T) {
	resolver := NewResolver(nil)
	repo := newMemoryRepo(expenseMapping)

	res, ok, err := resolver.Apply(context.Background(), repo, "C1", "expense-create", shared.Payload{"amount": "400", "net": 100, "vat": 11})
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, decimal.NewFromInt(111).Equal(res.Amount))
}

func TestApplyNotResolved(t *testing.T) {
	resolver := NewResolver(nil)
	repo := newMemoryRepo(expenseMapping)

	_, ok, err := resolver.Apply(context.Background(), repo, "C1", "PAYROLL_RUN", shared.Payload{"amount": 10})
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = resolver.Apply(context.Background(), repo, "C2", "EXPENSE_CREATE", shared.Payload{"amount": 10})
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = resolver.Apply(context.Background(), repo, "C1", "EXPENSE_CREATE", shared.Payload{"net": "abc", "vat": 1})
	require.NoError(t, err)
	require.False(t, ok)

	noFormula := expenseMapping
	noFormula.AmountFormula = ""
	_, ok, err = resolver.Apply(context.Background(), newMemoryRepo(noFormula), "C1", "EXPENSE_CREATE", shared.Payload{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestApplyPropagatesRepositoryFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.err = errors.New("connection reset")
	_, ok, err := NewResolver(nil).Apply(context.Background(), repo, "C1", "EXPENSE_CREATE", shared.Payload{})
	require.Error(t, err)
	require.False(t, ok)
}

func TestMappingValidate(t *testing.T) {
	require.NoError(t, expenseMapping.Validate())

	same := expenseMapping
	same.CreditAccountID = same.DebitAccountID
	require.ErrorIs(t, same.Validate(), ErrInvalidMapping)

	bad := expenseMapping
	bad.AmountFormula = "net +"
	require.ErrorIs(t, bad.Validate(), ErrFormula)
}
