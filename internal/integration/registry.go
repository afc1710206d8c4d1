package integration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/odyssey-erp/finledger/internal/accounting/shared"
	"github.com/odyssey-erp/finledger/internal/accounting/store"
)

// BusinessRecord is what a domain module created for an event.
type BusinessRecord struct {
	Module string    `json:"module"`
	ID     uuid.UUID `json:"id"`
	Data   any       `json:"data,omitempty"`
}

// RecordCreator inserts the domain record of an event inside the
// orchestrator's transaction.
type RecordCreator interface {
	CreateRecord(ctx context.Context, tx store.Scope, companyID string, payload shared.Payload, actor string) (BusinessRecord, error)
}

// RecordCreatorFunc adapts a function to RecordCreator.
type RecordCreatorFunc func(ctx context.Context, tx store.Scope, companyID string, payload shared.Payload, actor string) (BusinessRecord, error)

func (f RecordCreatorFunc) CreateRecord(ctx context.Context, tx store.Scope, companyID string, payload shared.Payload, actor string) (BusinessRecord, error) {
	return f(ctx, tx, companyID, payload, actor)
}

// StatusReverter marks a domain record reversed inside the reversal transaction.
type StatusReverter interface {
	RevertStatus(ctx context.Context, tx store.Scope, companyID string, recordID uuid.UUID, reason string) error
}

// StatusReverterFunc adapts a function to StatusReverter.
type StatusReverterFunc func(ctx context.Context, tx store.Scope, companyID string, recordID uuid.UUID, reason string) error

func (f StatusReverterFunc) RevertStatus(ctx context.Context, tx store.Scope, companyID string, recordID uuid.UUID, reason string) error {
	return f(ctx, tx, companyID, recordID, reason)
}

// EventHandler binds an event type to the module that owns its records.
// DateFields are payload keys consulted after "date", in order.
type EventHandler struct {
	EventType    string
	SourceModule string
	DateFields   []string
	Creator      RecordCreator
}

// Registry dispatches event types to handlers and modules to reverters.
type Registry struct {
	mu        sync.RWMutex
	handlers  map[string]EventHandler
	reverters map[string]StatusReverter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]EventHandler{}, reverters: map[string]StatusReverter{}}
}

// Register adds an event handler. Event type and module are normalised.
func (r *Registry) Register(h EventHandler) error {
	h.EventType = shared.NormalizeKey(h.EventType)
	h.SourceModule = shared.NormalizeKey(h.SourceModule)
	if h.EventType == "" || h.SourceModule == "" {
		return errors.New("integration: event type and source module required")
	}
	if h.Creator == nil {
		return fmt.Errorf("integration: %s has no record creator", h.EventType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[h.EventType]; exists {
		return fmt.Errorf("integration: %s already registered", h.EventType)
	}
	r.handlers[h.EventType] = h
	return nil
}

// RegisterReverter adds the status reverter of a source module.
func (r *Registry) RegisterReverter(module string, rev StatusReverter) error {
	module = shared.NormalizeKey(module)
	if module == "" || rev == nil {
		return errors.New("integration: module and reverter required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.reverters[module]; exists {
		return fmt.Errorf("integration: reverter for %s already registered", module)
	}
	r.reverters[module] = rev
	return nil
}

// Handler looks up the handler of an event type.
func (r *Registry) Handler(eventType string) (EventHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[shared.NormalizeKey(eventType)]
	return h, ok
}

// Reverter looks up the status reverter of a module.
func (r *Registry) Reverter(module string) (StatusReverter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rev, ok := r.reverters[shared.NormalizeKey(module)]
	return rev, ok
}

// EventTypes lists registered event types, sorted.
func (r *Registry) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
