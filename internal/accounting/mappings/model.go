package mappings

import "time"

// EventMapping turns one event type into a debit/credit template.
type EventMapping struct {
	CompanyID           string    `json:"company_id"`
	EventType           string    `json:"event_type"`
	DebitAccountID      string    `json:"debit_account_id"`
	CreditAccountID     string    `json:"credit_account_id"`
	AmountFormula       string    `json:"amount_formula"`
	DescriptionTemplate string    `json:"description_template"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}
