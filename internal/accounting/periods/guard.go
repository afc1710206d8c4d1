package periods

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/finledger/internal/accounting/shared"
)

// ValidateDate returns the single open period covering date, or
// ErrPeriodClosed when there is none (or, against the one-open-period
// invariant, more than one).
func ValidateDate(ctx context.Context, repo Repository, companyID string, date time.Time) (Period, error) {
	day := shared.DateOnly(date)
	open, err := repo.ListOpenCovering(ctx, companyID, day)
	if err != nil {
		return Period{}, err
	}
	switch len(open) {
	case 1:
		return open[0], nil
	case 0:
		return Period{}, fmt.Errorf("%w: %s", shared.ErrPeriodClosed, day.Format(time.DateOnly))
	default:
		return Period{}, fmt.Errorf("%w: %d open periods cover %s", shared.ErrPeriodClosed, len(open), day.Format(time.DateOnly))
	}
}
