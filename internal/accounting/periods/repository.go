package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/finledger/internal/accounting/shared"
	"github.com/odyssey-erp/finledger/internal/platform/db"
)

// Repository exposes period persistence; implementations are bound to a
// single transaction.
type Repository interface {
	ListOpenCovering(ctx context.Context, companyID string, date time.Time) ([]Period, error)
	List(ctx context.Context, companyID string) ([]Period, error)
	// LockCompany serialises period lifecycle changes for one company.
	LockCompany(ctx context.Context, companyID string) error
	GetForUpdate(ctx context.Context, companyID string, periodID int64) (Period, error)
	CloseOpenExcept(ctx context.Context, companyID string, exceptID int64, actor string, at time.Time) ([]int64, error)
	SetStatus(ctx context.Context, companyID string, periodID int64, status PeriodStatus, actor string, at time.Time) (Period, error)
}

type repository struct {
	db db.DBTX
}

func NewRepository(q db.DBTX) Repository {
	return &repository{db: q}
}

const periodColumns = `company_id, period_id, name, start_date, end_date, status, opened_at, opened_by, closed_at, closed_by, created_at, updated_at`

func (r *repository) ListOpenCovering(ctx context.Context, companyID string, date time.Time) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+`
FROM financial_periods WHERE company_id=$1 AND status='OPEN' AND $2::date BETWEEN start_date AND end_date ORDER BY start_date`, companyID, date)
	if err != nil {
		return nil, err
	}
	return collectPeriods(rows)
}

func (r *repository) List(ctx context.Context, companyID string) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+`
FROM financial_periods WHERE company_id=$1 ORDER BY start_date DESC`, companyID)
	if err != nil {
		return nil, err
	}
	return collectPeriods(rows)
}

func (r *repository) LockCompany(ctx context.Context, companyID string) error {
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('financial_periods:' || $1))`, companyID)
	return err
}

func (r *repository) GetForUpdate(ctx context.Context, companyID string, periodID int64) (Period, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+`
FROM financial_periods WHERE company_id=$1 AND period_id=$2 FOR UPDATE`, companyID, periodID)
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

func (r *repository) CloseOpenExcept(ctx context.Context, companyID string, exceptID int64, actor string, at time.Time) ([]int64, error) {
	rows, err := r.db.Query(ctx, `UPDATE financial_periods SET status='CLOSED', closed_at=$4, closed_by=$3, updated_at=NOW()
WHERE company_id=$1 AND status='OPEN' AND period_id<>$2 RETURNING period_id`, companyID, exceptID, actor, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *repository) SetStatus(ctx context.Context, companyID string, periodID int64, status PeriodStatus, actor string, at time.Time) (Period, error) {
	row := r.db.QueryRow(ctx, `UPDATE financial_periods SET status=$3::text,
  opened_at = CASE WHEN $3::text='OPEN' THEN $5 ELSE opened_at END,
  opened_by = CASE WHEN $3::text='OPEN' THEN $4 ELSE opened_by END,
  closed_at = CASE WHEN $3::text='CLOSED' THEN $5 WHEN $3::text='OPEN' THEN NULL ELSE closed_at END,
  closed_by = CASE WHEN $3::text='CLOSED' THEN $4 WHEN $3::text='OPEN' THEN NULL ELSE closed_by END,
  updated_at = NOW()
WHERE company_id=$1 AND period_id=$2 RETURNING `+periodColumns, companyID, periodID, string(status), actor, at)
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

func collectPeriods(rows pgx.Rows) ([]Period, error) {
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.CompanyID, &p.ID, &p.Name, &p.StartDate, &p.EndDate, &p.Status, &p.OpenedAt, &p.OpenedBy, &p.ClosedAt, &p.ClosedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
