// Package ap books supplier invoices through the ledger orchestrator.
package ap

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

// invoiceDateField is consulted after the generic event date.
const invoiceDateField = "invoice_date"

// Module creates and voids AP invoices for the orchestrator.
type Module struct {
	validate *validator.Validate
	repoFor  func(store.Scope) Repository
	now      func() time.Time
}

// NewModule constructs the AP module backed by PostgreSQL.
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

// Register adds the AP handler and reverter to reg.
func (m *Module) Register(reg *integration.Registry) error {
	if err := reg.Register(integration.EventHandler{
		EventType:    EventInvoiceCreate,
		SourceModule: SourceModule,
		DateFields:   []string{invoiceDateField},
		Creator:      integration.RecordCreatorFunc(m.CreateRecord),
	}); err != nil {
		return err
	}
	return reg.RegisterReverter(SourceModule, integration.StatusReverterFunc(m.RevertStatus))
}

// ParseCreateInvoice reads and validates an AP_INVOICE_CREATE payload.
func (m *Module) ParseCreateInvoice(payload shared.Payload) (CreateInvoiceInput, error) {
	in := CreateInvoiceInput{
		Supplier: strings.TrimSpace(payload.String("supplier")),
		Number:   strings.TrimSpace(payload.String("invoice_number")),
	}
	invoiceDate, ok, err := payload.FirstDate(shared.EventDateKey, invoiceDateField)
	if err != nil {
		return CreateInvoiceInput{}, err
	}
	if !ok {
		invoiceDate = m.now()
	}
	in.InvoiceDate = shared.DateOnly(invoiceDate)
	due, ok, err := payload.Date("due_date")
	if err != nil {
		return CreateInvoiceInput{}, err
	}
	if ok {
		in.DueDate = shared.DateOnly(due)
	} else {
		in.DueDate = in.InvoiceDate.AddDate(0, 0, DefaultTermDays)
	}
	subtotal, ok := payload.Decimal("subtotal")
	if !ok || !subtotal.IsPositive() {
		return CreateInvoiceInput{}, fmt.Errorf("%w: subtotal must be a positive number", shared.ErrInvalidPayload)
	}
	in.Subtotal = subtotal
	if tax, ok := payload.Decimal("tax"); ok {
		if tax.IsNegative() {
			return CreateInvoiceInput{}, fmt.Errorf("%w: tax cannot be negative", shared.ErrInvalidPayload)
		}
		in.Tax = tax
	}
	if err := m.validate.Struct(in); err != nil {
		return CreateInvoiceInput{}, fmt.Errorf("%w: %v", shared.ErrInvalidPayload, err)
	}
	return in, nil
}

// CreateRecord books the invoice inside the orchestrator's transaction.
func (m *Module) CreateRecord(ctx context.Context, tx store.Scope, companyID string, payload shared.Payload, actor string) (integration.BusinessRecord, error) {
	in, err := m.ParseCreateInvoice(payload)
	if err != nil {
		return integration.BusinessRecord{}, err
	}
	inv := Invoice{
		ID:          uuid.New(),
		CompanyID:   companyID,
		Supplier:    in.Supplier,
		Number:      in.Number,
		InvoiceDate: in.InvoiceDate,
		DueDate:     in.DueDate,
		Subtotal:    in.Subtotal,
		Tax:         in.Tax,
		Total:       in.Subtotal.Add(in.Tax),
		Status:      InvoiceStatusPosted,
		CreatedBy:   actor,
	}
	if err := m.repoFor(tx).InsertInvoice(ctx, inv); err != nil {
		return integration.BusinessRecord{}, err
	}
	return integration.BusinessRecord{ID: inv.ID, Data: inv}, nil
}

// RevertStatus voids the invoice.
func (m *Module) RevertStatus(ctx context.Context, tx store.Scope, companyID string, id uuid.UUID, reason string) error {
	return m.repoFor(tx).VoidInvoice(ctx, companyID, id, reason, m.now())
}
