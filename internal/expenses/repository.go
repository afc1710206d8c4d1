package expenses

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/finledger/internal/platform/db"
)

// Repository persists expenses inside a ledger transaction.
type Repository interface {
	Insert(ctx context.Context, e Expense) error
	MarkReversed(ctx context.Context, companyID string, id uuid.UUID, reason string, at time.Time) error
}

type pgRepository struct {
	db db.DBTX
}

// NewRepository binds the repository to a transaction.
func NewRepository(q db.DBTX) Repository {
	return &pgRepository{db: q}
}

func (r *pgRepository) Insert(ctx context.Context, e Expense) error {
	_, err := r.db.Exec(ctx, `INSERT INTO expenses (id, company_id, vendor, description, amount, expense_date, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, e.ID, e.CompanyID, e.Vendor, e.Description, e.Amount, e.ExpenseDate, string(e.Status), e.CreatedBy)
	return err
}

func (r *pgRepository) MarkReversed(ctx context.Context, companyID string, id uuid.UUID, reason string, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE expenses SET status='REVERSED', reversal_reason=$3, reversed_at=$4
WHERE company_id=$1 AND id=$2 AND status<>'REVERSED'`, companyID, id, reason, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrExpenseNotFound
	}
	return nil
}
