package validators

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/semanticpdf/semanticpdf-backend/pkg/errors"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// PageLimit parses the limit query parameter. Values outside [1, 100]
// are rejected rather than clamped.
func PageLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultPageLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a number")
	}
	if limit < 1 || limit > maxPageLimit {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "limit must be between 1 and 100")
	}
	return limit, nil
}

// UUIDParam extracts a UUID path parameter from the chi route context.
func UUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid "+name)
	}
	return id, nil
}
