package accounts

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/finledger/internal/platform/db"
)

// Registry resolves account ids against the chart of accounts.
type Registry interface {
	// Resolve returns the known subset of ids; callers decide what a miss means.
	Resolve(ctx context.Context, companyID string, ids []string) (map[string]Account, error)
	List(ctx context.Context, companyID string) ([]Account, error)
}

type repository struct {
	db db.DBTX
}

func NewRepository(q db.DBTX) Registry {
	return &repository{db: q}
}

func (r *repository) Resolve(ctx context.Context, companyID string, ids []string) (map[string]Account, error) {
	out := make(map[string]Account, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT company_id, account_id, name, account_type FROM accounts
WHERE company_id=$1 AND account_id = ANY($2)`, companyID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

func (r *repository) List(ctx context.Context, companyID string) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT company_id, account_id, name, account_type FROM accounts
WHERE company_id=$1 ORDER BY account_id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (Account, error) {
	var a Account
	var rawType string
	if err := row.Scan(&a.CompanyID, &a.ID, &a.Name, &rawType); err != nil {
		return Account{}, err
	}
	t, ok := ParseAccountType(rawType)
	if !ok {
		return Account{}, fmt.Errorf("accounts: account %s has unknown type %q", a.ID, rawType)
	}
	a.Type = t
	return a, nil
}
