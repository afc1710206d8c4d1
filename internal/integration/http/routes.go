package integrationhttp

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	internalShared "github.com/odyssey-erp/finledger/internal/shared"
)

// MountRoutes registers the ledger API under /api/v1/companies/{companyID}.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Route("/api/v1/companies/{companyID}", func(r chi.Router) {
		r.Use(ActorMiddleware)
		r.Post("/events/{eventType}", h.handleEvent)
		r.Post("/reversals", h.reverse)
		r.Route("/journals", func(r chi.Router) {
			r.Post("/", h.insertJournal)
			r.Get("/{journalID}", h.getJournal)
			r.Post("/{journalID}/post", h.postJournal)
		})
		r.Get("/balances/{accountID}", h.getBalance)
		r.Route("/periods", func(r chi.Router) {
			r.Get("/", h.listPeriods)
			r.Post("/{periodID}/open", h.openPeriod)
			r.Post("/{periodID}/close", h.closePeriod)
		})
		r.Put("/mappings/{eventType}", h.upsertMapping)
	})
}

// ActorMiddleware stores the X-Actor header in the request context.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := strings.TrimSpace(r.Header.Get(HeaderActor)); actor != "" {
			r = r.WithContext(internalShared.ContextWithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}
