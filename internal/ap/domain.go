package ap

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// EventInvoiceCreate records a supplier invoice.
	EventInvoiceCreate = "AP_INVOICE_CREATE"
	// SourceModule owns AP invoice journals.
	SourceModule = "AP_INVOICE"
	// DefaultTermDays is used when the payload carries no due date.
	DefaultTermDays = 30
)

// InvoiceStatus enumerates AP invoice statuses.
type InvoiceStatus string

const (
	InvoiceStatusPosted InvoiceStatus = "POSTED"
	InvoiceStatusVoid   InvoiceStatus = "VOID"
)

var (
	// ErrInvoiceNotFound indicates the invoice does not exist.
	ErrInvoiceNotFound = errors.New("ap: invoice not found")
	// ErrDuplicateInvoice indicates the supplier invoice number was already booked.
	ErrDuplicateInvoice = errors.New("ap: duplicate invoice number")
)

// Invoice is a booked supplier invoice.
type Invoice struct {
	ID          uuid.UUID       `json:"id"`
	CompanyID   string          `json:"company_id"`
	Supplier    string          `json:"supplier"`
	Number      string          `json:"invoice_number"`
	InvoiceDate time.Time       `json:"invoice_date"`
	DueDate     time.Time       `json:"due_date"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
	Status      InvoiceStatus   `json:"status"`
	CreatedBy   string          `json:"created_by"`
}

// CreateInvoiceInput is the validated AP_INVOICE_CREATE payload.
type CreateInvoiceInput struct {
	Supplier    string    `validate:"required,max=200"`
	Number      string    `validate:"required,max=64"`
	InvoiceDate time.Time `validate:"required"`
	DueDate     time.Time `validate:"required,gtefield=InvoiceDate"`
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
}
