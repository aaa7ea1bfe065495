package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/service"
	"github.com/opsdeskhq/opsdesk/pkg/httpx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// FederatedLoginHandler handles POST /v1/auth/federated/login, the
// email/password call-through against the federated-credential table.
type FederatedLoginHandler struct {
	FederatedAuth *service.FederatedAuthService
	Identity      *service.IdentityService
}

type federatedLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Action   string `json:"action,omitempty"`
}

func (h *FederatedLoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req federatedLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	principal, err := h.FederatedAuth.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			log.Warn("federated login rejected", "email", req.Email)
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]any{
				"success": false,
				"error":   "invalid_credentials",
			})
			return
		}
		log.Error("federated login failed", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	token, err := h.Identity.Establish(ctx, principal)
	if err != nil {
		log.Error("failed to establish session", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user": map[string]any{
			"id":        principal.ID,
			"email":     principal.Email,
			"role":      principal.Role,
			"is_active": true,
		},
		"access_token": token,
	})
}
