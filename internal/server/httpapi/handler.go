// Package httpapi exposes the authentication flows over HTTP. Routing is
// chi; all request and response bodies are JSON. Handlers stay thin and
// delegate to the services layer.
package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/censusconnect/authserver/internal/logging"
	"github.com/censusconnect/authserver/internal/server/models"
	"github.com/censusconnect/authserver/internal/server/services"
)

// AuthFlows is the slice of AuthService the handlers depend on.
type AuthFlows interface {
	Register(ctx context.Context, username, email, password string, fp models.Fingerprint) (*models.User, error)
	Activate(ctx context.Context, rawToken string, fp models.Fingerprint) error
	Login(ctx context.Context, username, password string, fp models.Fingerprint) (*models.Session, error)
	Logout(ctx context.Context, session *models.Session, fp models.Fingerprint) error
	RequestPasswordReset(ctx context.Context, email string, fp models.Fingerprint) error
	ResetPassword(ctx context.Context, rawToken, newPassword string, fp models.Fingerprint) error
	ChangePassword(ctx context.Context, userID int64, current, newPassword string, fp models.Fingerprint) error
	UpdateProfile(ctx context.Context, userID int64, username, email string, fp models.Fingerprint) (*models.User, error)
	DeleteAccount(ctx context.Context, userID int64, password string, fp models.Fingerprint) error
	User(ctx context.Context, userID int64) (*models.User, error)
}

// AuditQuerier reads the audit log for the operator endpoint.
type AuditQuerier interface {
	Query(ctx context.Context, f models.AuditFilter) ([]models.AuditEvent, error)
}

type Handler struct {
	auth     AuthFlows
	sessions services.SessionManager
	audit    AuditQuerier
	log      logging.Logger
}

func NewHandler(auth AuthFlows, sessions services.SessionManager, audit AuditQuerier, log logging.Logger) *Handler {
	return &Handler{auth: auth, sessions: sessions, audit: audit, log: log}
}

// fingerprint extracts the client identity bound to sessions and audit
// events. RemoteAddr is host:port; only the host matters.
func fingerprint(r *http.Request) models.Fingerprint {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return models.Fingerprint{IP: host, UserAgent: r.UserAgent()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.auth.Register(r.Context(), req.Username, req.Email, req.Password, fingerprint(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{ID: user.ID, Username: user.Username, Email: user.Email})
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	token := pathParam(r, "token")
	if err := h.auth.Activate(r.Context(), token, fingerprint(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "account activated"})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.auth.Login(r.Context(), req.Username, req.Password, fingerprint(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: session.Token, ExpiresAt: session.ExpiresAt})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())
	user, err := h.auth.User(r.Context(), session.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Username: user.Username, Email: user.Email})
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	session := sessionFromContext(r.Context())
	user, err := h.auth.UpdateProfile(r.Context(), session.UserID, req.Username, req.Email, fingerprint(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Username: user.Username, Email: user.Email})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())
	if err := h.auth.Logout(r.Context(), session, fingerprint(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.auth.RequestPasswordReset(r.Context(), req.Email, fingerprint(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	// The response never reveals whether the address is registered.
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "if the address is registered, a reset link was sent"})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	token := pathParam(r, "token")
	if err := h.auth.ResetPassword(r.Context(), token, req.Password, fingerprint(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	session := sessionFromContext(r.Context())
	if err := h.auth.ChangePassword(r.Context(), session.UserID, req.CurrentPassword, req.NewPassword, fingerprint(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	session := sessionFromContext(r.Context())
	if err := h.auth.DeleteAccount(r.Context(), session.UserID, req.Password, fingerprint(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	f, err := auditFilterFromQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	events, err := h.audit.Query(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
