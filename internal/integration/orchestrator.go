package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/finledger/internal/accounting/budgets"
	"github.com/odyssey-erp/finledger/internal/accounting/journals"
	"github.com/odyssey-erp/finledger/internal/accounting/mappings"
	"github.com/odyssey-erp/finledger/internal/accounting/periods"
	"github.com/odyssey-erp/finledger/internal/accounting/shared"
	"github.com/odyssey-erp/finledger/internal/accounting/store"
	internalShared "github.com/odyssey-erp/finledger/internal/shared"
)

// ReversalSuffix is appended to the source module of reversal journals.
const ReversalSuffix = "_REVERSAL"

type Result struct {
	Record  BusinessRecord
	Journal journals.JournalEntry
}

// AuditPort records ledger changes after commit.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Metrics receives event outcomes.
type Metrics interface {
	ObserveEvent(eventType, result string)
	ObserveFailure(kind string)
	ObserveReversal(sourceModule string)
}

// Deps wires the orchestrator. Audit, Metrics and Logger are optional.
type Deps struct {
	Runner   store.Runner
	Registry *Registry
	Resolver *mappings.Resolver
	Guard    *budgets.Guard
	Poster   *journals.Poster
	Audit    AuditPort
	Metrics  Metrics
	Logger   *slog.Logger
}

// Orchestrator turns business events into posted journals. Each call is
// one transaction: period check, mapping, budget check, record insert and
// posting commit together or not at all.
type Orchestrator struct {
	runner   store.Runner
	registry *Registry
	resolver *mappings.Resolver
	guard    *budgets.Guard
	poster   *journals.Poster
	audit    AuditPort
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewOrchestrator(deps Deps) *Orchestrator {
	o := &Orchestrator{
		runner:   deps.Runner,
		registry: deps.Registry,
		resolver: deps.Resolver,
		guard:    deps.Guard,
		poster:   deps.Poster,
		audit:    deps.Audit,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		now:      time.Now,
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.resolver == nil {
		o.resolver = mappings.NewResolver(o.logger)
	}
	if o.guard == nil {
		o.guard = budgets.NewGuard(nil, o.logger)
	}
	if o.poster == nil {
		o.poster = journals.NewPoster(nil)
	}
	return o
}

func (o *Orchestrator) WithNow(now func() time.Time) {
	if now != nil {
		o.now = now
		o.poster.WithNow(now)
	}
}

func (o *Orchestrator) Registry() *Registry { return o.registry }

// HandleEvent records a business event and posts its journal.
func (o *Orchestrator) HandleEvent(ctx context.Context, companyID, eventType string, payload shared.Payload, actor string) (Result, error) {
	handler, ok := o.registry.Handler(eventType)
	if !ok {
		err := fmt.Errorf("%w: %s", shared.ErrUnknownEventType, eventType)
		o.observeEvent("UNKNOWN", err)
		return Result{}, err
	}
	if strings.TrimSpace(companyID) == "" {
		err := fmt.Errorf("%w: company required", shared.ErrInvalidPayload)
		o.observeEvent(handler.EventType, err)
		return Result{}, err
	}
	date, err := o.eventDate(payload, handler.DateFields)
	if err != nil {
		o.observeEvent(handler.EventType, err)
		return Result{}, err
	}

	var result Result
	err = o.runner.WithTx(ctx, func(ctx context.Context, tx store.Scope) error {
		if _, err := periods.ValidateDate(ctx, tx.Periods(), companyID, date); err != nil {
			return err
		}
		res, ok, err := o.resolver.Apply(ctx, tx.Mappings(), companyID, handler.EventType, payload)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", shared.ErrNoMappingFound, handler.EventType)
		}
		// Actuals are summed under the balance locks the posting takes, so
		// concurrent debits to one account are checked one after another.
		if _, err := tx.Journals().LockBalances(ctx, companyID, lineAccounts(res.Lines)); err != nil {
			return err
		}
		for _, line := range res.Lines {
			if !line.Debit.IsPositive() {
				continue
			}
			if err := o.guard.CheckAvailability(ctx, tx.Budgets(), companyID, line.AccountID, line.Debit, date); err != nil {
				return err
			}
		}

		record, err := handler.Creator.CreateRecord(ctx, tx, companyID, payload, actor)
		if err != nil {
			return fmt.Errorf("integration: create %s record: %w", handler.SourceModule, err)
		}
		if record.ID == uuid.Nil {
			return fmt.Errorf("integration: %s record has no id", handler.SourceModule)
		}
		record.Module = handler.SourceModule

		entry, err := o.poster.Insert(ctx, tx, companyID, journals.InsertInput{
			Date:         date,
			Description:  journalDescription(res.Mapping, handler.EventType, record.ID),
			Status:       journals.JournalStatusPosted,
			SourceModule: handler.SourceModule,
			SourceRefID:  record.ID,
			CreatedBy:    actor,
			Lines:        res.Lines,
		})
		if err != nil {
			return err
		}
		result = Result{Record: record, Journal: entry}
		return nil
	})
	o.observeEvent(handler.EventType, err)
	if err != nil {
		o.logger.Warn("event rejected",
			slog.String("company_id", companyID),
			slog.String("event_type", handler.EventType),
			slog.String("kind", shared.Kind(err)),
			slog.Any("error", err))
		return Result{}, err
	}

	o.logger.Info("event posted",
		slog.String("company_id", companyID),
		slog.String("event_type", handler.EventType),
		slog.String("record_id", result.Record.ID.String()),
		slog.Int64("journal_id", result.Journal.ID))
	o.record(ctx, companyID, actor, "journal.post", result.Journal, map[string]any{
		"event_type": handler.EventType,
		"record_id":  result.Record.ID.String(),
	})
	return result, nil
}

// ReverseTransaction posts the exact opposite of the latest posted journal
// of a source record, dated today, and lets the owning module mark the
// record reversed. The original journal is left untouched.
func (o *Orchestrator) ReverseTransaction(ctx context.Context, companyID, sourceModule string, sourceRefID uuid.UUID, reason, actor string) (journals.JournalEntry, error) {
	module := shared.NormalizeKey(sourceModule)
	if module == "" || sourceRefID == uuid.Nil {
		return journals.JournalEntry{}, fmt.Errorf("%w: source module and record id required", shared.ErrInvalidPayload)
	}
	date := shared.DateOnly(o.now())

	var (
		reversal journals.JournalEntry
		original journals.JournalEntry
	)
	err := o.runner.WithTx(ctx, func(ctx context.Context, tx store.Scope) error {
		if _, err := periods.ValidateDate(ctx, tx.Periods(), companyID, date); err != nil {
			return err
		}
		var err error
		original, err = tx.Journals().FindLatestPostedBySource(ctx, companyID, module, sourceRefID)
		if err != nil {
			if errors.Is(err, shared.ErrJournalNotFound) {
				return fmt.Errorf("%w: %s %s", shared.ErrNoPostedJournalForReversal, module, sourceRefID)
			}
			return err
		}
		reversed, err := tx.Journals().HasReversal(ctx, companyID, original.ID)
		if err != nil {
			return err
		}
		if reversed {
			return fmt.Errorf("%w: journal %d", shared.ErrAlreadyReversed, original.ID)
		}

		originalID := original.ID
		reversal, err = o.poster.Insert(ctx, tx, companyID, journals.InsertInput{
			Date:         date,
			Description:  reversalDescription(original, reason),
			Status:       journals.JournalStatusPosted,
			SourceModule: module + ReversalSuffix,
			SourceRefID:  sourceRefID,
			ReversalOf:   &originalID,
			CreatedBy:    actor,
			Lines:        journals.ReverseLines(original.Lines),
		})
		if err != nil {
			return err
		}

		rev, ok := o.registry.Reverter(module)
		if !ok {
			o.logger.Warn("no status reverter registered; journal reversed only",
				slog.String("company_id", companyID),
				slog.String("source_module", module),
				slog.String("record_id", sourceRefID.String()))
			return nil
		}
		if err := rev.RevertStatus(ctx, tx, companyID, sourceRefID, reason); err != nil {
			return fmt.Errorf("integration: revert %s record: %w", module, err)
		}
		return nil
	})
	if err != nil {
		o.observeFailure(err)
		o.logger.Warn("reversal rejected",
			slog.String("company_id", companyID),
			slog.String("source_module", module),
			slog.String("kind", shared.Kind(err)),
			slog.Any("error", err))
		return journals.JournalEntry{}, err
	}

	if o.metrics != nil {
		o.metrics.ObserveReversal(module)
	}
	o.logger.Info("journal reversed",
		slog.String("company_id", companyID),
		slog.Int64("journal_id", original.ID),
		slog.Int64("reversal_id", reversal.ID))
	o.record(ctx, companyID, actor, "journal.reverse", reversal, map[string]any{
		"reversal_of": original.ID,
		"reason":      reason,
	})
	return reversal, nil
}

func (o *Orchestrator) eventDate(payload shared.Payload, fields []string) (time.Time, error) {
	date, ok, err := payload.FirstDate(append([]string{shared.EventDateKey}, fields...)...)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		date = o.now()
	}
	return shared.DateOnly(date), nil
}

func lineAccounts(lines []journals.LineInput) []string {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.AccountID)
		if id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func journalDescription(m mappings.EventMapping, eventType string, recordID uuid.UUID) string {
	if strings.TrimSpace(m.DescriptionTemplate) != "" {
		return m.DescriptionTemplate
	}
	return fmt.Sprintf("%s %s", eventType, recordID)
}

func reversalDescription(original journals.JournalEntry, reason string) string {
	if strings.TrimSpace(reason) == "" {
		return fmt.Sprintf("%sjournal %d %s", journals.ReversalPrefix, original.ID, original.Description)
	}
	return fmt.Sprintf("%sjournal %d: %s", journals.ReversalPrefix, original.ID, reason)
}

func (o *Orchestrator) observeEvent(eventType string, err error) {
	if o.metrics == nil {
		return
	}
	result := "posted"
	if err != nil {
		result = "rejected"
		o.metrics.ObserveFailure(shared.Kind(err))
	}
	o.metrics.ObserveEvent(shared.NormalizeKey(eventType), result)
}

func (o *Orchestrator) observeFailure(err error) {
	if o.metrics != nil {
		o.metrics.ObserveFailure(shared.Kind(err))
	}
}

func (o *Orchestrator) record(ctx context.Context, companyID, actor, action string, entry journals.JournalEntry, meta map[string]any) {
	if o.audit == nil {
		return
	}
	debit, _ := entry.Totals()
	meta["source_module"] = entry.SourceModule
	meta["total"] = debit.StringFixed(4)
	if err := o.audit.Record(ctx, internalShared.AuditLog{
		CompanyID: companyID,
		Actor:     actor,
		Action:    action,
		Entity:    "journal_entry",
		EntityID:  fmt.Sprintf("%d", entry.ID),
		Meta:      meta,
		At:        o.now(),
	}); err != nil {
		o.logger.Warn("audit", slog.String("action", action), slog.Any("error", err))
	}
}
