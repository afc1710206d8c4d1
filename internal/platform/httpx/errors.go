package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/finledger/internal/accounting/shared"
)

// Sentinel errors for request handling outside the accounting taxonomy.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrDuplicate  = errors.New("duplicate entry")
	ErrValidation = errors.New("validation failed")
)

var kindStatus = map[string]int{
	"PeriodClosed":               http.StatusUnprocessableEntity,
	"NoMappingFound":             http.StatusUnprocessableEntity,
	"BudgetExceeded":             http.StatusUnprocessableEntity,
	"UnbalancedJournal":          http.StatusUnprocessableEntity,
	"InvalidLine":                http.StatusUnprocessableEntity,
	"AccountNotFound":            http.StatusUnprocessableEntity,
	"InvalidPayload":             http.StatusBadRequest,
	"AlreadyPosted":              http.StatusConflict,
	"AlreadyReversed":            http.StatusConflict,
	"AlreadyOpen":                http.StatusConflict,
	"NotOpen":                    http.StatusConflict,
	"JournalNotFound":            http.StatusNotFound,
	"PeriodNotFound":             http.StatusNotFound,
	"NoPostedJournalForReversal": http.StatusNotFound,
	"UnknownEventType":           http.StatusNotFound,
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Accounting failures carry their kind name in the problem type.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
		return
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	kind := shared.Kind(err)
	status, ok := kindStatus[kind]
	if !ok {
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	JSON(w, status, ProblemDetail{
		Type:   kind,
		Title:  http.StatusText(status),
		Status: status,
		Detail: err.Error(),
	})
}

// StatusFor reports the HTTP status RespondError would use for err.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	}
	if status, ok := kindStatus[shared.Kind(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
