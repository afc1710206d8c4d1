// Package integrationhttp exposes the ledger engine over JSON HTTP.
package integrationhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/finledger/internal/accounting/journals"
	"github.com/odyssey-erp/finledger/internal/accounting/mappings"
	"github.com/odyssey-erp/finledger/internal/accounting/periods"
	"github.com/odyssey-erp/finledger/internal/accounting/shared"
	"github.com/odyssey-erp/finledger/internal/integration"
	"github.com/odyssey-erp/finledger/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/finledger/internal/shared"
)

const (
	// HeaderActor names the acting user.
	HeaderActor = "X-Actor"
	// HeaderIdempotencyKey deduplicates event submissions.
	HeaderIdempotencyKey = "Idempotency-Key"

	maxBodyBytes = 1 << 20
)

// Orchestrator runs business events and reversals.
type Orchestrator interface {
	HandleEvent(ctx context.Context, companyID, eventType string, payload shared.Payload, actor string) (integration.Result, error)
	ReverseTransaction(ctx context.Context, companyID, sourceModule string, sourceRefID uuid.UUID, reason, actor string) (journals.JournalEntry, error)
}

// LedgerService is the direct journal API.
type LedgerService interface {
	Insert(ctx context.Context, companyID string, in journals.InsertInput) (journals.JournalEntry, error)
	Post(ctx context.Context, companyID string, journalID int64, actor string) (journals.JournalEntry, error)
	Get(ctx context.Context, companyID string, journalID int64) (journals.JournalEntry, error)
	Balance(ctx context.Context, companyID, accountID string) (journals.LedgerBalance, error)
}

// PeriodService manages financial periods.
type PeriodService interface {
	List(ctx context.Context, companyID string) ([]periods.Period, error)
	OpenPeriod(ctx context.Context, companyID string, periodID int64, actor string) (periods.Period, error)
	ClosePeriod(ctx context.Context, companyID string, periodID int64, actor string) (periods.Period, error)
}

// MappingService stores event mappings.
type MappingService interface {
	Upsert(ctx context.Context, m mappings.EventMapping) (mappings.EventMapping, error)
}

// IdempotencyStore remembers processed request keys.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, companyID, key, module string) error
	Delete(ctx context.Context, companyID, key, module string) error
}

// Deps groups the handler collaborators. Idempotency may be nil.
type Deps struct {
	Orchestrator Orchestrator
	Ledger       LedgerService
	Periods      PeriodService
	Mappings     MappingService
	Idempotency  IdempotencyStore
	Validate     *validator.Validate
	Logger       *slog.Logger
}

// Handler serves the ledger API.
type Handler struct {
	orchestrator Orchestrator
	ledger       LedgerService
	periods      PeriodService
	mappings     MappingService
	idempotency  IdempotencyStore
	validate     *validator.Validate
	logger       *slog.Logger
}

func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Validate == nil {
		deps.Validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return &Handler{
		orchestrator: deps.Orchestrator,
		ledger:       deps.Ledger,
		periods:      deps.Periods,
		mappings:     deps.Mappings,
		idempotency:  deps.Idempotency,
		validate:     deps.Validate,
		logger:       deps.Logger,
	}
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyID")
	eventType := shared.NormalizeKey(chi.URLParam(r, "eventType"))
	actor := internalShared.ActorFromContext(r.Context())

	payload, err := decodePayload(w, r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	scope := "EVENT:" + eventType
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), companyID, key, scope); err != nil {
			if errors.Is(err, internalShared.ErrIdempotencyConflict) {
				httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrDuplicate, err))
				return
			}
			h.fail(w, r, err)
			return
		}
	}

	res, err := h.orchestrator.HandleEvent(r.Context(), companyID, eventType, payload, actor)
	if err != nil {
		if key != "" && h.idempotency != nil {
			if delErr := h.idempotency.Delete(context.WithoutCancel(r.Context()), companyID, key, scope); delErr != nil {
				h.logger.Warn("release idempotency key", slog.String("company_id", companyID), slog.Any("error", delErr))
			}
		}
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, eventView{Record: res.Record, Journal: newJournalView(res.Journal)})
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	var req reversalRequest
	if err := h.decode(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ref, err := uuid.Parse(req.SourceRefID)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: source_ref_id", httpx.ErrValidation))
		return
	}
	entry, err := h.orchestrator.ReverseTransaction(r.Context(), chi.URLParam(r, "companyID"), req.SourceModule, ref, req.Reason, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newJournalView(entry))
}

func (h *Handler) insertJournal(w http.ResponseWriter, r *http.Request) {
	var req journalRequest
	if err := h.decode(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.toInput(internalShared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	entry, err := h.ledger.Insert(r.Context(), chi.URLParam(r, "companyID"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newJournalView(entry))
}

func (h *Handler) postJournal(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "journalID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.ledger.Post(r.Context(), chi.URLParam(r, "companyID"), id, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newJournalView(entry))
}

func (h *Handler) getJournal(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "journalID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.ledger.Get(r.Context(), chi.URLParam(r, "companyID"), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newJournalView(entry))
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.ledger.Balance(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "accountID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v := balanceView{AccountID: chi.URLParam(r, "accountID"), Balance: bal.Balance}
	if !bal.UpdatedAt.IsZero() {
		v.UpdatedAt = &bal.UpdatedAt
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	list, err := h.periods.List(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]periodView, 0, len(list))
	for _, p := range list {
		out = append(out, newPeriodView(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) openPeriod(w http.ResponseWriter, r *http.Request) {
	h.transitionPeriod(w, r, h.periods.OpenPeriod)
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	h.transitionPeriod(w, r, h.periods.ClosePeriod)
}

func (h *Handler) transitionPeriod(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, int64, string) (periods.Period, error)) {
	id, err := int64Param(r, "periodID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := fn(r.Context(), chi.URLParam(r, "companyID"), id, internalShared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newPeriodView(p))
}

func (h *Handler) upsertMapping(w http.ResponseWriter, r *http.Request) {
	var req mappingRequest
	if err := h.decode(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	saved, err := h.mappings.Upsert(r.Context(), mappings.EventMapping{
		CompanyID:           chi.URLParam(r, "companyID"),
		EventType:           chi.URLParam(r, "eventType"),
		DebitAccountID:      req.DebitAccountID,
		CreditAccountID:     req.CreditAccountID,
		AmountFormula:       req.AmountFormula,
		DescriptionTemplate: req.DescriptionTemplate,
	})
	if err != nil {
		if errors.Is(err, mappings.ErrInvalidMapping) {
			err = fmt.Errorf("%w: %v", httpx.ErrValidation, err)
		}
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, saved)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}

func decodePayload(w http.ResponseWriter, r *http.Request) (shared.Payload, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	var payload shared.Payload
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	if payload == nil {
		payload = shared.Payload{}
	}
	return payload, nil
}

func int64Param(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", httpx.ErrValidation, name)
	}
	return id, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httpx.StatusFor(err)
	attrs := []any{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("kind", shared.Kind(err)),
		slog.Any("error", err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("ledger request failed", attrs...)
	} else {
		h.logger.Info("ledger request rejected", attrs...)
	}
	httpx.RespondError(w, err)
}
