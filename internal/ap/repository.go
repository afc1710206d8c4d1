package ap

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/finledger/internal/platform/db"
)

// Repository defines AP invoice persistence inside a ledger transaction.
type Repository interface {
	InsertInvoice(ctx context.Context, inv Invoice) error
	VoidInvoice(ctx context.Context, companyID string, id uuid.UUID, reason string, at time.Time) error
}

type pgRepository struct {
	db db.DBTX
}

// NewRepository binds the repository to a transaction.
func NewRepository(q db.DBTX) Repository {
	return &pgRepository{db: q}
}

func (r *pgRepository) InsertInvoice(ctx context.Context, inv Invoice) error {
	_, err := r.db.Exec(ctx, `INSERT INTO ap_invoices (id, company_id, supplier, invoice_number, invoice_date, due_date, subtotal, tax, total, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		inv.ID, inv.CompanyID, inv.Supplier, inv.Number, inv.InvoiceDate, inv.DueDate, inv.Subtotal, inv.Tax, inv.Total, string(inv.Status), inv.CreatedBy)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateInvoice
		}
		return err
	}
	return nil
}

func (r *pgRepository) VoidInvoice(ctx context.Context, companyID string, id uuid.UUID, reason string, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE ap_invoices SET status='VOID', void_reason=$3, voided_at=$4, updated_at=NOW()
WHERE company_id=$1 AND id=$2 AND status<>'VOID'`, companyID, id, reason, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}
