package integrationhttp

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finledger/internal/accounting/journals"
	"github.com/odyssey-erp/finledger/internal/accounting/periods"
	"github.com/odyssey-erp/finledger/internal/integration"
)

type reversalRequest struct {
	SourceModule string `json:"source_module" validate:"required,max=64"`
	SourceRefID  string `json:"source_ref_id" validate:"required,uuid"`
	Reason       string `json:"reason" validate:"required,max=500"`
}

type journalLineRequest struct {
	AccountID   string          `json:"account_id" validate:"required,max=64"`
	Description string          `json:"description" validate:"max=500"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

type journalRequest struct {
	Date         string               `json:"date" validate:"required,datetime=2006-01-02"`
	Description  string               `json:"description" validate:"max=500"`
	Post         bool                 `json:"post"`
	SourceModule string               `json:"source_module" validate:"max=64"`
	SourceRefID  string               `json:"source_ref_id" validate:"omitempty,uuid"`
	Lines        []journalLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type mappingRequest struct {
	DebitAccountID      string `json:"debit_account_id" validate:"required,max=64"`
	CreditAccountID     string `json:"credit_account_id" validate:"required,max=64,nefield=DebitAccountID"`
	AmountFormula       string `json:"amount_formula" validate:"max=500"`
	DescriptionTemplate string `json:"description_template" validate:"max=500"`
}

func (r journalRequest) toInput(actor string) (journals.InsertInput, error) {
	date, err := time.Parse(time.DateOnly, r.Date)
	if err != nil {
		return journals.InsertInput{}, err
	}
	in := journals.InsertInput{
		Date:         date,
		Description:  r.Description,
		Status:       journals.JournalStatusDraft,
		SourceModule: r.SourceModule,
		CreatedBy:    actor,
	}
	if r.Post {
		in.Status = journals.JournalStatusPosted
	}
	if r.SourceRefID != "" {
		if in.SourceRefID, err = uuid.Parse(r.SourceRefID); err != nil {
			return journals.InsertInput{}, err
		}
	}
	for _, line := range r.Lines {
		in.Lines = append(in.Lines, journals.LineInput{
			AccountID:   line.AccountID,
			Description: line.Description,
			Debit:       line.Debit,
			Credit:      line.Credit,
		})
	}
	return in, nil
}

type lineView struct {
	LineNumber  int             `json:"line_number"`
	AccountID   string          `json:"account_id"`
	Description string          `json:"description,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

type journalView struct {
	ID           int64      `json:"journal_id"`
	Date         string     `json:"date"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	SourceModule string     `json:"source_module,omitempty"`
	SourceRefID  *uuid.UUID `json:"source_ref_id,omitempty"`
	ReversalOf   *int64     `json:"reversal_of,omitempty"`
	CreatedBy    string     `json:"created_by"`
	PostedAt     *time.Time `json:"posted_at,omitempty"`
	Lines        []lineView `json:"lines"`
}

func newJournalView(e journals.JournalEntry) journalView {
	v := journalView{
		ID:           e.ID,
		Date:         e.Date.Format(time.DateOnly),
		Description:  e.Description,
		Status:       string(e.Status),
		SourceModule: e.SourceModule,
		ReversalOf:   e.ReversalOf,
		CreatedBy:    e.CreatedBy,
		PostedAt:     e.PostedAt,
		Lines:        make([]lineView, 0, len(e.Lines)),
	}
	if e.SourceRefID != uuid.Nil {
		ref := e.SourceRefID
		v.SourceRefID = &ref
	}
	for _, line := range e.Lines {
		v.Lines = append(v.Lines, lineView{
			LineNumber:  line.LineNumber,
			AccountID:   line.AccountID,
			Description: line.Description,
			Debit:       line.Debit,
			Credit:      line.Credit,
		})
	}
	return v
}

type eventView struct {
	Record  integration.BusinessRecord `json:"record"`
	Journal journalView                `json:"journal"`
}

type periodView struct {
	ID        int64      `json:"period_id"`
	Name      string     `json:"name"`
	StartDate string     `json:"start_date"`
	EndDate   string     `json:"end_date"`
	Status    string     `json:"status"`
	OpenedAt  *time.Time `json:"opened_at,omitempty"`
	OpenedBy  *string    `json:"opened_by,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	ClosedBy  *string    `json:"closed_by,omitempty"`
}

func newPeriodView(p periods.Period) periodView {
	return periodView{
		ID:        p.ID,
		Name:      p.Name,
		StartDate: p.StartDate.Format(time.DateOnly),
		EndDate:   p.EndDate.Format(time.DateOnly),
		Status:    string(p.Status),
		OpenedAt:  p.OpenedAt,
		OpenedBy:  p.OpenedBy,
		ClosedAt:  p.ClosedAt,
		ClosedBy:  p.ClosedBy,
	}
}

type balanceView struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}
