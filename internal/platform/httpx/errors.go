package httpx

import (
	"errors"
	"net/http"

	"github.com/stockbooks/stockbooks/internal/platform/db"
	"github.com/stockbooks/stockbooks/internal/shared"
)

// Error maps service errors onto problem responses. Validation
// failures map to 400, missing resources to 404, and state or
// concurrency conflicts to 409. Anything else is a 500 with the
// detail suppressed.
func Error(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrConcurrency), errors.Is(err, db.ErrSerialization):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}
