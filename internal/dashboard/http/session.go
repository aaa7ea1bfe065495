package http

import (
	"net/http"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/service"
	"github.com/opsdeskhq/opsdesk/pkg/httpx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// SessionHandler exposes the current session and logout.
type SessionHandler struct {
	Identity *service.IdentityService
}

// HandleGet handles GET /v1/auth/session. With a valid bearer token it
// echoes that principal; otherwise it attempts to restore a persisted
// session from a previous run.
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if token, ok := bearerToken(r); ok {
		if principal, err := h.Identity.VerifyToken(token); err == nil {
			httpx.WriteJSON(w, http.StatusOK, map[string]any{
				"authenticated": true,
				"user":          principal,
			})
			return
		}
	}

	principal, token, ok, err := h.Identity.Resume(ctx)
	if err != nil {
		log.Error("session restore failed", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}
	if !ok {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"authenticated": false,
		})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          principal,
		"access_token":  token,
	})
}

// HandleLogout handles POST /v1/auth/logout. Clears every persisted session
// record regardless of provenance.
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := h.Identity.Logout(ctx); err != nil {
		log.Error("logout failed", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
