// Package expenses records operating expenses through the ledger orchestrator.
package expenses

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/finledger/internal/accounting/shared"
	"github.com/odyssey-erp/finledger/internal/accounting/store"
	"github.com/odyssey-erp/finledger/internal/integration"
)

const expenseDateField = "expense_date"

// Module creates and reverses expenses for the orchestrator.
type Module struct {
	validate *validator.Validate
	repoFor  func(store.Scope) Repository
	now      func() time.Time
}

// NewModule constructs the expense module backed by PostgreSQL.
func NewModule(validate *validator.Validate) *Module {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return &Module{
		validate: validate,
		repoFor:  func(tx store.Scope) Repository { return NewRepository(tx.DB()) },
		now:      time.Now,
	}
}

// Register adds the expense handler and reverter to reg.
func (m *Module) Register(reg *integration.Registry) error {
	if err := reg.Register(integration.EventHandler{
		EventType:    EventExpenseCreate,
		SourceModule: SourceModule,
		DateFields:   []string{expenseDateField},
		Creator:      integration.RecordCreatorFunc(m.CreateRecord),
	}); err != nil {
		return err
	}
	return reg.RegisterReverter(SourceModule, integration.StatusReverterFunc(m.RevertStatus))
}

// ParseCreate reads and validates an EXPENSE_CREATE payload.
func (m *Module) ParseCreate(payload shared.Payload) (CreateInput, error) {
	amount, ok := payload.Decimal("amount")
	if !ok || !amount.IsPositive() {
		return CreateInput{}, fmt.Errorf("%w: amount must be a positive number", shared.ErrInvalidPayload)
	}
	in := CreateInput{
		Vendor:      strings.TrimSpace(payload.String("vendor")),
		Description: strings.TrimSpace(payload.String("description")),
		Amount:      amount,
	}
	date, ok, err := payload.FirstDate(shared.EventDateKey, expenseDateField)
	if err != nil {
		return CreateInput{}, err
	}
	if !ok {
		date = m.now()
	}
	in.ExpenseDate = shared.DateOnly(date)
	if err := m.validate.Struct(in); err != nil {
		return CreateInput{}, fmt.Errorf("%w: %v", shared.ErrInvalidPayload, err)
	}
	return in, nil
}

// CreateRecord stores the expense inside the orchestrator's transaction.
func (m *Module) CreateRecord(ctx context.Context, tx store.Scope, companyID string, payload shared.Payload, actor string) (integration.BusinessRecord, error) {
	in, err := m.ParseCreate(payload)
	if err != nil {
		return integration.BusinessRecord{}, err
	}
	e := Expense{
		ID:          uuid.New(),
		CompanyID:   companyID,
		Vendor:      in.Vendor,
		Description: in.Description,
		Amount:      in.Amount,
		ExpenseDate: in.ExpenseDate,
		Status:      StatusRecorded,
		CreatedBy:   actor,
	}
	if err := m.repoFor(tx).Insert(ctx, e); err != nil {
		return integration.BusinessRecord{}, err
	}
	return integration.BusinessRecord{ID: e.ID, Data: e}, nil
}

// RevertStatus marks the expense reversed.
func (m *Module) RevertStatus(ctx context.Context, tx store.Scope, companyID string, id uuid.UUID, reason string) error {
	return m.repoFor(tx).MarkReversed(ctx, companyID, id, reason, m.now())
}
