package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	internalShared "github.com/odyssey-erp/finledger/internal/shared"
)

// TxRunner runs fn with a scope bound to one transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error
}

type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service is the standalone ledger API: each call runs in its own transaction.
type Service struct {
	runner TxRunner
	poster *Poster
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

func NewService(runner TxRunner, poster *Poster, audit AuditPort, logger *slog.Logger) *Service {
	if poster == nil {
		poster = NewPoster(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runner: runner, poster: poster, audit: audit, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
		s.poster.WithNow(now)
	}
}

// Insert creates a journal; POSTED input is posted in the same transaction.
func (s *Service) Insert(ctx context.Context, companyID string, in InsertInput) (JournalEntry, error) {
	var entry JournalEntry
	err := s.runner.WithTx(ctx, func(ctx context.Context, scope TxScope) error {
		var err error
		entry, err = s.poster.Insert(ctx, scope, companyID, in)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	action := "journal.insert"
	if entry.Status == JournalStatusPosted {
		action = "journal.post"
	}
	s.record(ctx, in.CreatedBy, action, entry)
	return entry, nil
}

// Post posts an existing DRAFT journal.
func (s *Service) Post(ctx context.Context, companyID string, journalID int64, actor string) (JournalEntry, error) {
	if journalID == 0 {
		return JournalEntry{}, errors.New("accounting: journal id required")
	}
	var entry JournalEntry
	err := s.runner.WithTx(ctx, func(ctx context.Context, scope TxScope) error {
		var err error
		entry, err = s.poster.Post(ctx, scope, companyID, journalID)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, actor, "journal.post", entry)
	return entry, nil
}

func (s *Service) Get(ctx context.Context, companyID string, journalID int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.runner.WithTx(ctx, func(ctx context.Context, scope TxScope) error {
		var err error
		entry, err = scope.Journals().GetJournal(ctx, companyID, journalID)
		return err
	})
	return entry, err
}

// Balance returns the running balance of an account; unknown rows are zero.
func (s *Service) Balance(ctx context.Context, companyID, accountID string) (LedgerBalance, error) {
	var bal LedgerBalance
	err := s.runner.WithTx(ctx, func(ctx context.Context, scope TxScope) error {
		var err error
		bal, err = scope.Journals().GetBalance(ctx, companyID, accountID)
		return err
	})
	return bal, err
}

func (s *Service) record(ctx context.Context, actor, action string, entry JournalEntry) {
	if s.audit == nil {
		return
	}
	debit, _ := entry.Totals()
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		CompanyID: entry.CompanyID,
		Actor:     actor,
		Action:    action,
		Entity:    "journal_entry",
		EntityID:  fmt.Sprintf("%d", entry.ID),
		Meta: map[string]any{
			"status":        string(entry.Status),
			"source_module": entry.SourceModule,
			"total":         debit.StringFixed(4),
		},
		At: s.now(),
	}); err != nil {
		s.logger.Warn("audit journal", slog.String("action", action), slog.Any("error", err))
	}
}
