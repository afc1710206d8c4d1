package periods

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/finledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/finledger/internal/shared"
)

// TxRunner runs fn with a Repository bound to one transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}

type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service manages period lifecycle and answers date checks outside a
// posting transaction.
type Service struct {
	runner TxRunner
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

func NewService(runner TxRunner, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runner: runner, audit: audit, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ValidateDate fails with ErrPeriodClosed unless exactly one open period covers date.
func (s *Service) ValidateDate(ctx context.Context, companyID string, date time.Time) error {
	return s.runner.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		_, err := ValidateDate(ctx, repo, companyID, date)
		return err
	})
}

func (s *Service) List(ctx context.Context, companyID string) ([]Period, error) {
	var out []Period
	err := s.runner.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		out, err = repo.List(ctx, companyID)
		return err
	})
	return out, err
}

// OpenPeriod opens periodID and closes every other open period of the company.
func (s *Service) OpenPeriod(ctx context.Context, companyID string, periodID int64, actor string) (Period, error) {
	if companyID == "" || periodID == 0 {
		return Period{}, errors.New("periods: company and period required")
	}
	now := s.now()
	var opened Period
	var closed []int64
	err := s.runner.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.LockCompany(ctx, companyID); err != nil {
			return err
		}
		current, err := repo.GetForUpdate(ctx, companyID, periodID)
		if err != nil {
			return err
		}
		if current.Status == PeriodStatusOpen {
			return fmt.Errorf("%w: %s", shared.ErrAlreadyOpen, current.Name)
		}
		closed, err = repo.CloseOpenExcept(ctx, companyID, periodID, actor, now)
		if err != nil {
			return err
		}
		opened, err = repo.SetStatus(ctx, companyID, periodID, PeriodStatusOpen, actor, now)
		return err
	})
	if err != nil {
		return Period{}, err
	}
	s.logger.Info("period opened",
		slog.String("company_id", companyID),
		slog.Int64("period_id", periodID),
		slog.Any("auto_closed", closed))
	s.record(ctx, companyID, actor, "period.open", opened, map[string]any{"auto_closed": closed})
	return opened, nil
}

func (s *Service) ClosePeriod(ctx context.Context, companyID string, periodID int64, actor string) (Period, error) {
	if companyID == "" || periodID == 0 {
		return Period{}, errors.New("periods: company and period required")
	}
	var closed Period
	err := s.runner.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.GetForUpdate(ctx, companyID, periodID)
		if err != nil {
			return err
		}
		if current.Status != PeriodStatusOpen {
			return fmt.Errorf("%w: %s is %s", shared.ErrNotOpen, current.Name, current.Status)
		}
		closed, err = repo.SetStatus(ctx, companyID, periodID, PeriodStatusClosed, actor, s.now())
		return err
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, companyID, actor, "period.close", closed, nil)
	return closed, nil
}

func (s *Service) record(ctx context.Context, companyID, actor, action string, p Period, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["name"] = p.Name
	meta["status"] = string(p.Status)
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		CompanyID: companyID,
		Actor:     actor,
		Action:    action,
		Entity:    "financial_period",
		EntityID:  fmt.Sprintf("%d", p.ID),
		Meta:      meta,
		At:        s.now(),
	}); err != nil {
		s.logger.Warn("audit period", slog.String("action", action), slog.Any("error", err))
	}
}
