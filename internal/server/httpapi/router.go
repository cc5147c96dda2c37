package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/censusconnect/authserver/internal/server/models"
)

// NewRouter wires all routes. Public auth endpoints rely on the
// database-backed throttle inside the services; the router additionally
// applies a light per-IP smoothing limiter against bursts.
func NewRouter(h *Handler, limiter *IPRateLimiter) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if limiter != nil {
		r.Use(limiter.Middleware)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Get("/activate/{token}", h.handleActivate)
		r.Post("/login", h.handleLogin)
		r.Post("/password-reset", h.handleRequestPasswordReset)
		r.Post("/password-reset/{token}", h.handleResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireSession)
			r.Get("/me", h.handleMe)
			r.Put("/me", h.handleUpdateProfile)
			r.Post("/logout", h.handleLogout)
			r.Post("/change-password", h.handleChangePassword)
			r.Delete("/account", h.handleDeleteAccount)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.RequireSession)
		r.Use(h.RequireAdmin)
		r.Get("/audit", h.handleAuditQuery)
	})

	return r
}

func pathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// auditFilterFromQuery parses the operator query parameters. Unknown or
// empty parameters mean "any".
func auditFilterFromQuery(r *http.Request) (models.AuditFilter, error) {
	q := r.URL.Query()
	f := models.AuditFilter{
		Kind:       q.Get("kind"),
		Identifier: q.Get("identifier"),
		Endpoint:   q.Get("endpoint"),
	}

	if v := q.Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, err
		}
		f.UserID = &id
	}
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.Since = &ts
	}
	if v := q.Get("until"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.Until = &ts
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return f, err
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return f, err
		}
		f.Offset = n
	}
	return f, nil
}
