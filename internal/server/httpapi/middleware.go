package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/censusconnect/authserver/internal/common"
	"github.com/censusconnect/authserver/internal/server/models"
)

type ctxKey int

const sessionKey ctxKey = iota

func sessionFromContext(ctx context.Context) *models.Session {
	s, _ := ctx.Value(sessionKey).(*models.Session)
	return s
}

// RequireSession resolves the Bearer token against the session store and
// rejects the request unless the session is live and the fingerprint
// matches the one captured at login.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if authHeader == "" || token == authHeader {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			return
		}

		session, err := h.sessions.Validate(r.Context(), token, fingerprint(r))
		if err != nil {
			// Any resolution failure reads the same to the client.
			if errors.Is(err, common.ErrTokenInvalid) ||
				errors.Is(err, common.ErrSessionExpired) ||
				errors.Is(err, common.ErrSessionRevoked) ||
				errors.Is(err, common.ErrFingerprintMismatch) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session invalid, please log in again"})
				return
			}
			h.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin gates operator endpoints. Must run after RequireSession.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := sessionFromContext(r.Context())
		if session == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}

		user, err := h.auth.User(r.Context(), session.UserID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if !user.IsAdmin {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin access required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
