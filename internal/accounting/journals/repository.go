package journals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finledger/internal/accounting/shared"
	"github.com/odyssey-erp/finledger/internal/platform/db"
)

const (
	journalSequence = "journal_entries"
	lineAccountFK   = "journal_lines_account_fk"
)

// Repository encapsulates journal and ledger persistence bound to one
// transaction.
type Repository interface {
	NextJournalID(ctx context.Context, companyID string) (int64, error)
	InsertJournal(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	GetJournal(ctx context.Context, companyID string, journalID int64) (JournalEntry, error)
	GetJournalForUpdate(ctx context.Context, companyID string, journalID int64) (JournalEntry, error)
	// LockBalances creates missing balance rows at zero and locks every
	// row in account id order.
	LockBalances(ctx context.Context, companyID string, accountIDs []string) (map[string]decimal.Decimal, error)
	SaveBalance(ctx context.Context, companyID, accountID string, balance decimal.Decimal) error
	AppendLedgerEntry(ctx context.Context, entry LedgerEntry) error
	MarkPosted(ctx context.Context, companyID string, journalID int64, at time.Time) error
	// FindLatestPostedBySource locks and returns the newest posted journal for a source record.
	FindLatestPostedBySource(ctx context.Context, companyID, sourceModule string, sourceRefID uuid.UUID) (JournalEntry, error)
	HasReversal(ctx context.Context, companyID string, journalID int64) (bool, error)
	GetBalance(ctx context.Context, companyID, accountID string) (LedgerBalance, error)
}

type repository struct {
	db db.DBTX
}

func NewRepository(q db.DBTX) Repository {
	return &repository{db: q}
}

const headerColumns = `company_id, journal_id, journal_date, description, status, source_module, source_ref_id, reversal_of, created_by, posted_at, created_at`

func (r *repository) NextJournalID(ctx context.Context, companyID string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO company_sequences (company_id, name, next_value) VALUES ($1, $2, 2)
ON CONFLICT (company_id, name) DO UPDATE SET next_value = company_sequences.next_value + 1
RETURNING next_value - 1`, companyID, journalSequence).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("journals: next id: %w", err)
	}
	return id, nil
}

func (r *repository) InsertJournal(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO journal_entries (company_id, journal_id, journal_date, description, status, source_module, source_ref_id, reversal_of, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING created_at`,
		entry.CompanyID, entry.ID, entry.Date, entry.Description, string(entry.Status),
		nullString(entry.SourceModule), nullUUID(entry.SourceRefID), entry.ReversalOf, entry.CreatedBy).
		Scan(&entry.CreatedAt)
	if err != nil {
		return JournalEntry{}, err
	}
	for _, line := range entry.Lines {
		if _, err := r.db.Exec(ctx, `INSERT INTO journal_lines (company_id, journal_id, line_number, account_id, description, debit, credit)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, entry.CompanyID, entry.ID, line.LineNumber, line.AccountID, line.Description, line.Debit, line.Credit); err != nil {
			if db.IsForeignKeyViolation(err, lineAccountFK) {
				return JournalEntry{}, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, line.AccountID)
			}
			return JournalEntry{}, err
		}
	}
	return entry, nil
}

func (r *repository) GetJournal(ctx context.Context, companyID string, journalID int64) (JournalEntry, error) {
	return r.getJournal(ctx, `SELECT `+headerColumns+` FROM journal_entries WHERE company_id=$1 AND journal_id=$2`, companyID, journalID)
}

func (r *repository) GetJournalForUpdate(ctx context.Context, companyID string, journalID int64) (JournalEntry, error) {
	return r.getJournal(ctx, `SELECT `+headerColumns+` FROM journal_entries WHERE company_id=$1 AND journal_id=$2 FOR UPDATE`, companyID, journalID)
}

func (r *repository) FindLatestPostedBySource(ctx context.Context, companyID, sourceModule string, sourceRefID uuid.UUID) (JournalEntry, error) {
	return r.getJournal(ctx, `SELECT `+headerColumns+` FROM journal_entries
WHERE company_id=$1 AND source_module=$2 AND source_ref_id=$3 AND status='POSTED'
ORDER BY posted_at DESC, journal_id DESC LIMIT 1 FOR UPDATE`, companyID, sourceModule, sourceRefID)
}

func (r *repository) getJournal(ctx context.Context, query string, args ...any) (JournalEntry, error) {
	entry, err := scanHeader(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT line_number, account_id, description, debit, credit
FROM journal_lines WHERE company_id=$1 AND journal_id=$2 ORDER BY line_number`, entry.CompanyID, entry.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.LineNumber, &line.AccountID, &line.Description, &line.Debit, &line.Credit); err != nil {
			return JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

func (r *repository) LockBalances(ctx context.Context, companyID string, accountIDs []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(accountIDs))
	if len(accountIDs) == 0 {
		return out, nil
	}
	if _, err := r.db.Exec(ctx, `INSERT INTO ledger_balances (company_id, account_id, balance, updated_at)
SELECT $1, account_id, 0, NOW() FROM unnest($2::text[]) AS account_id
ON CONFLICT (company_id, account_id) DO NOTHING`, companyID, accountIDs); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT account_id, balance FROM ledger_balances
WHERE company_id=$1 AND account_id = ANY($2) ORDER BY account_id FOR UPDATE`, companyID, accountIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			accountID string
			balance   decimal.Decimal
		)
		if err := rows.Scan(&accountID, &balance); err != nil {
			return nil, err
		}
		out[accountID] = balance
	}
	return out, rows.Err()
}

func (r *repository) SaveBalance(ctx context.Context, companyID, accountID string, balance decimal.Decimal) error {
	cmd, err := r.db.Exec(ctx, `UPDATE ledger_balances SET balance=$3, updated_at=NOW() WHERE company_id=$1 AND account_id=$2`, companyID, accountID, balance)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("journals: balance row %s not locked", accountID)
	}
	return nil
}

func (r *repository) AppendLedgerEntry(ctx context.Context, e LedgerEntry) error {
	_, err := r.db.Exec(ctx, `INSERT INTO ledger_entries (company_id, journal_id, line_number, posting_date, account_id, debit, credit, amount, running_balance, description)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`, e.CompanyID, e.JournalID, e.LineNumber, e.PostingDate, e.AccountID, e.Debit, e.Credit, e.Amount, e.RunningBalance, e.Description)
	return err
}

func (r *repository) MarkPosted(ctx context.Context, companyID string, journalID int64, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE journal_entries SET status='POSTED', posted_at=$3 WHERE company_id=$1 AND journal_id=$2 AND status='DRAFT'`, companyID, journalID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAlreadyPosted
	}
	return nil
}

func (r *repository) HasReversal(ctx context.Context, companyID string, journalID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journal_entries WHERE company_id=$1 AND reversal_of=$2)`, companyID, journalID).Scan(&exists)
	return exists, err
}

func (r *repository) GetBalance(ctx context.Context, companyID, accountID string) (LedgerBalance, error) {
	bal := LedgerBalance{CompanyID: companyID, AccountID: accountID}
	err := r.db.QueryRow(ctx, `SELECT balance, updated_at FROM ledger_balances WHERE company_id=$1 AND account_id=$2`, companyID, accountID).
		Scan(&bal.Balance, &bal.UpdatedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return LedgerBalance{}, err
	}
	return bal, nil
}

func scanHeader(row pgx.Row) (JournalEntry, error) {
	var (
		e      JournalEntry
		module *string
		ref    uuid.NullUUID
	)
	err := row.Scan(&e.CompanyID, &e.ID, &e.Date, &e.Description, &e.Status, &module, &ref, &e.ReversalOf, &e.CreatedBy, &e.PostedAt, &e.CreatedAt)
	if err != nil {
		return JournalEntry{}, err
	}
	if module != nil {
		e.SourceModule = *module
	}
	if ref.Valid {
		e.SourceRefID = ref.UUID
	}
	return e, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}
