package httpapi

import (
	"errors"
	"net/http"

	"taharah_tracker/internal/domain/cycle"
	"taharah_tracker/internal/domain/notification"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

// errValidation marks malformed requests.
var errValidation = errors.New("validation failed")

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeJSONResponse writes a JSON response with proper headers.
func writeJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // HTTP response write errors are not recoverable
	json.NewEncoder(w).Encode(data)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, cycle.ErrInvalidSequence):
		return http.StatusBadRequest, "invalid_sequence"
	case errors.Is(err, cycle.ErrPolicyViolation):
		return http.StatusBadRequest, "policy_violation"
	case errors.Is(err, errValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, cycle.ErrNotFound), errors.Is(err, notification.ErrNotificationNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, cycle.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Error("Request failed")
		msg = "internal server error"
	}
	writeJSONResponse(w, status, errorResponse{Error: msg, Code: code})
}
