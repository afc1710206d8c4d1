package mappings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/finledger/internal/accounting/shared"
	"github.com/odyssey-erp/finledger/internal/platform/db"
)

// Repository resolves event mappings. Get returns ErrNoMappingFound when
// the company has no mapping for the event type.
type Repository interface {
	Get(ctx context.Context, companyID, eventType string) (EventMapping, error)
	Upsert(ctx context.Context, m EventMapping) (EventMapping, error)
}

type repository struct {
	db db.DBTX
}

func NewRepository(q db.DBTX) Repository {
	return &repository{db: q}
}

// Get resolves the mapping for the specified event type.
func (r *repository) Get(ctx context.Context, companyID, eventType string) (EventMapping, error) {
	if companyID == "" || eventType == "" {
		return EventMapping{}, errors.New("accounting: company and event type required")
	}
	var m EventMapping
	err := r.db.QueryRow(ctx, `SELECT company_id, event_type, debit_account_id, credit_account_id, amount_formula, description_template, created_at, updated_at
FROM event_mappings WHERE company_id=$1 AND event_type=$2`, companyID, shared.NormalizeKey(eventType)).
		Scan(&m.CompanyID, &m.EventType, &m.DebitAccountID, &m.CreditAccountID, &m.AmountFormula, &m.DescriptionTemplate, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EventMapping{}, fmt.Errorf("%w: %s", shared.ErrNoMappingFound, eventType)
		}
		return EventMapping{}, err
	}
	return m, nil
}

func (r *repository) Upsert(ctx context.Context, m EventMapping) (EventMapping, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO event_mappings (company_id, event_type, debit_account_id, credit_account_id, amount_formula, description_template)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (company_id, event_type) DO UPDATE SET
  debit_account_id = EXCLUDED.debit_account_id,
  credit_account_id = EXCLUDED.credit_account_id,
  amount_formula = EXCLUDED.amount_formula,
  description_template = EXCLUDED.description_template,
  updated_at = NOW()
RETURNING created_at, updated_at`, m.CompanyID, shared.NormalizeKey(m.EventType), m.DebitAccountID, m.CreditAccountID, m.AmountFormula, m.DescriptionTemplate).
		Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return EventMapping{}, err
	}
	m.EventType = shared.NormalizeKey(m.EventType)
	return m, nil
}
