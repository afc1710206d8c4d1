package mappings

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finledger/internal/accounting/journals"
	"github.com/odyssey-erp/finledger/internal/accounting/shared"
)

// AmountScale is the number of decimal places amounts are rounded to.
const AmountScale = 4

// Resolution is a mapping applied to one payload.
type Resolution struct {
	Mapping EventMapping
	Amount  decimal.Decimal
	Lines   []journals.LineInput
}

// Resolver turns business events into balanced journal lines.
type Resolver struct {
	logger *slog.Logger
}

func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger}
}

// Apply resolves the mapping for eventType. The bool is false when no
// mapping exists or no amount can be derived from payload.
func (r *Resolver) Apply(ctx context.Context, repo Repository, companyID, eventType string, payload shared.Payload) (Resolution, bool, error) {
	mapping, err := repo.Get(ctx, companyID, eventType)
	if err != nil {
		if errors.Is(err, shared.ErrNoMappingFound) {
			return Resolution{}, false, nil
		}
		return Resolution{}, false, err
	}
	amount, ok := r.amount(mapping, payload)
	if !ok {
		return Resolution{}, false, nil
	}
	return Resolution{
		Mapping: mapping,
		Amount:  amount,
		Lines: []journals.LineInput{
			{AccountID: mapping.DebitAccountID, Description: mapping.DescriptionTemplate, Debit: amount},
			{AccountID: mapping.CreditAccountID, Description: mapping.DescriptionTemplate, Credit: amount},
		},
	}, true, nil
}

func (r *Resolver) amount(mapping EventMapping, payload shared.Payload) (decimal.Decimal, bool) {
	if v, ok := payload.Decimal("amount"); ok {
		return v.Round(AmountScale), true
	}
	if strings.TrimSpace(mapping.AmountFormula) == "" {
		return decimal.Decimal{}, false
	}
	v, err := EvaluateFormula(mapping.AmountFormula, payload)
	if err != nil {
		r.logger.Debug("amount formula failed",
			slog.String("company_id", mapping.CompanyID),
			slog.String("event_type", mapping.EventType),
			slog.Any("error", err))
		return decimal.Decimal{}, false
	}
	return v.Round(AmountScale), true
}
