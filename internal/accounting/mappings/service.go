package mappings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/finledger/internal/accounting/shared"
)

// TxRunner runs fn with a Repository bound to one transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}

type Service struct {
	runner TxRunner
	cache  *Cache
	logger *slog.Logger
}

// NewService constructs the mapping service. cache may be nil.
func NewService(runner TxRunner, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runner: runner, cache: cache, logger: logger}
}

// ErrInvalidMapping reports a mapping rejected by Validate.
var ErrInvalidMapping = errors.New("mappings: invalid mapping")

// Validate checks a mapping before it is stored.
func (m EventMapping) Validate() error {
	if strings.TrimSpace(m.CompanyID) == "" || shared.NormalizeKey(m.EventType) == "" {
		return fmt.Errorf("%w: company and event type required", ErrInvalidMapping)
	}
	if strings.TrimSpace(m.DebitAccountID) == "" || strings.TrimSpace(m.CreditAccountID) == "" {
		return fmt.Errorf("%w: debit and credit accounts required", ErrInvalidMapping)
	}
	if m.DebitAccountID == m.CreditAccountID {
		return fmt.Errorf("%w: debit and credit accounts must differ", ErrInvalidMapping)
	}
	if strings.TrimSpace(m.AmountFormula) != "" {
		if _, err := ParseFormula(m.AmountFormula); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidMapping, err)
		}
	}
	return nil
}

// Upsert stores the mapping and invalidates the company's cached mappings.
func (s *Service) Upsert(ctx context.Context, m EventMapping) (EventMapping, error) {
	if err := m.Validate(); err != nil {
		return EventMapping{}, err
	}
	var saved EventMapping
	err := s.runner.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		saved, err = repo.Upsert(ctx, m)
		return err
	})
	if err != nil {
		return EventMapping{}, fmt.Errorf("mappings: upsert %s: %w", m.EventType, err)
	}
	if err := s.cache.Bump(ctx, m.CompanyID); err != nil {
		s.logger.Warn("mapping cache bump", slog.String("company_id", m.CompanyID), slog.Any("error", err))
	}
	s.logger.Info("event mapping saved",
		slog.String("company_id", saved.CompanyID),
		slog.String("event_type", saved.EventType))
	return saved, nil
}

func (s *Service) Get(ctx context.Context, companyID, eventType string) (EventMapping, error) {
	var m EventMapping
	err := s.runner.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		m, err = repo.Get(ctx, companyID, eventType)
		return err
	})
	return m, err
}
