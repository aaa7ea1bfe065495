package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/service"
	"github.com/opsdeskhq/opsdesk/pkg/httpx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// OIDCHandler handles the authorization-code grant endpoints.
type OIDCHandler struct {
	OIDC     *service.OIDCService
	Identity *service.IdentityService
}

// HandleInitiate handles POST /v1/auth/oidc/initiate.
func (h *OIDCHandler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	authReq, err := h.OIDC.BuildAuthorizationURL()
	if err != nil {
		if errors.Is(err, service.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "not_configured", "OIDC provider is not configured")
			return
		}
		log.Error("oidc initiate failed", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"authUrl":     authReq.URL,
		"redirectUri": authReq.RedirectURI,
	})
}

type oidcCallbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// HandleCallback handles POST /v1/auth/oidc/callback.
func (h *OIDCHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req oidcCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	principal, err := h.OIDC.CompleteLogin(ctx, req.Code, req.State)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotAuthorized):
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]any{
				"success": false,
				"error":   "User is not authorized for this application",
			})
		case errors.Is(err, service.ErrInvalidCredentials):
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]any{
				"success": false,
				"error":   "Missing code or state",
			})
		case errors.Is(err, service.ErrNotConfigured):
			writeError(w, http.StatusServiceUnavailable, "not_configured", "OIDC provider is not configured")
		case errors.Is(err, service.ErrUpstream):
			log.Warn("oidc callback failed upstream", "err", err)
			writeError(w, http.StatusBadGateway, "upstream_error", "Identity provider request failed")
		default:
			log.Error("oidc callback failed", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		}
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
			"id":           principal.ID,
			"email":        principal.Email,
			"display_name": principal.DisplayName,
			"role":         principal.Role,
		},
		"access_token": token,
	})
}
