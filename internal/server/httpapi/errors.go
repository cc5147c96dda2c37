package httpapi

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/censusconnect/authserver/internal/common"
	"github.com/censusconnect/authserver/internal/server/services"
)

// writeError maps service errors onto HTTP responses. Login failures stay
// generic; the audit log carries the specifics. Token and session problems
// collapse to single messages so the API leaks nothing about stored state.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var retryErr *services.RetryAfterError
	if errors.As(err, &retryErr) {
		seconds := int(math.Ceil(retryErr.After.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		if errors.Is(err, common.ErrAccountLocked) {
			writeJSON(w, http.StatusLocked, map[string]string{"error": "account temporarily locked"})
		} else {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		}
		return
	}

	switch {
	case errors.Is(err, common.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
	case errors.Is(err, common.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, common.ErrDuplicateIdentity):
		writeJSON(w, http.StatusConflict, map[string]string{"error": common.ErrDuplicateIdentity.Error()})
	case errors.Is(err, common.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	case errors.Is(err, common.ErrAccountInactive):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "account not activated"})
	case errors.Is(err, common.ErrAccountLocked):
		writeJSON(w, http.StatusLocked, map[string]string{"error": "account temporarily locked"})
	case errors.Is(err, common.ErrTokenInvalid), errors.Is(err, common.ErrTokenExpired):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "token invalid or expired"})
	case errors.Is(err, common.ErrSessionExpired),
		errors.Is(err, common.ErrSessionRevoked),
		errors.Is(err, common.ErrFingerprintMismatch):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session invalid, please log in again"})
	case errors.Is(err, common.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		h.log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
