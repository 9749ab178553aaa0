package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"gamification-service/internal/domain"
	"gamification-service/internal/logging"
)

const (
	errCodeNotFound   = "NOT_FOUND"
	errCodeConflict   = "CONFLICT"
	errCodeValidation = "VALIDATION_ERROR"
	errCodeInternal   = "INTERNAL_ERROR"
)

// apiError is the JSON error body returned by every endpoint.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	status  int
}

func classify(err error) apiError {
	switch {
	case errors.Is(err, domain.ErrContentNotFound), errors.Is(err, domain.ErrAggregateNotFound):
		return apiError{Code: errCodeNotFound, Message: err.Error(), status: http.StatusNotFound}
	case errors.Is(err, domain.ErrAggregateExists):
		return apiError{Code: errCodeConflict, Message: err.Error(), status: http.StatusConflict}
	case errors.Is(err, domain.ErrInvalidSubmission), errors.Is(err, domain.ErrInvalidContentType),
		errors.Is(err, domain.ErrInvalidQuery):
		return apiError{Code: errCodeValidation, Message: err.Error(), status: http.StatusBadRequest}
	default:
		return apiError{Code: errCodeInternal, Message: "internal server error", status: http.StatusInternalServerError}
	}
}

// writeError centralizes error handling for HTTP responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := classify(err)
	if log := logging.FromContext(r.Context()); log != nil {
		if apiErr.status >= 500 {
			log.WithError(err).Error("server error")
		} else {
			log.WithError(err).Debug("client error")
		}
	}
	writeJSON(w, apiErr.status, map[string]apiError{"error": apiErr})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
