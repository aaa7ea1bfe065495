package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/service"
	"github.com/opsdeskhq/opsdesk/pkg/httpx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// LoginHandler handles POST /v1/auth/login for the local scheme.
type LoginHandler struct {
	LocalAuth *service.LocalAuthService
	Identity  *service.IdentityService
}

type loginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	TOTPToken string `json:"totp_token,omitempty"`
}

type loginResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	TOTPEnabled bool   `json:"totp_enabled"`
	AccessToken string `json:"access_token"`
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	result, err := h.LocalAuth.Login(ctx, req.Username, req.Password, req.TOTPToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTOTPRequired):
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]any{
				"error":         "totp_required",
				"requires_totp": true,
			})
		case errors.Is(err, service.ErrInvalidTOTP):
			log.Warn("login rejected: bad totp token", "username", req.Username)
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]any{
				"error": "invalid_totp",
			})
		case errors.Is(err, service.ErrInvalidCredentials):
			log.Warn("login rejected: bad credentials", "username", req.Username)
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]any{
				"error": "invalid_credentials",
			})
		default:
			log.Error("login failed", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		}
		return
	}

	token, err := h.Identity.Establish(ctx, result.Principal)
	if err != nil {
		log.Error("failed to establish session", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		ID:          result.Principal.ID,
		Username:    result.Principal.Username,
		Role:        string(result.Principal.Role),
		TOTPEnabled: result.TOTPEnabled,
		AccessToken: token,
	})
}
