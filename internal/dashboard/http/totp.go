package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/service"
	"github.com/opsdeskhq/opsdesk/internal/dashboard/store"
	"github.com/opsdeskhq/opsdesk/pkg/httpx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// TOTPHandler handles the second-factor lifecycle endpoints. Each operation
// targets the account named in the body; a non-admin caller may only manage
// its own second factor.
type TOTPHandler struct {
	TOTP *service.TOTPService
}

type totpRequest struct {
	UserID string `json:"user_id"`
	Token  string `json:"token,omitempty"`
}

func (h *TOTPHandler) authorize(w http.ResponseWriter, r *http.Request, userID string) bool {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_token", "Missing authentication")
		return false
	}
	if userID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return false
	}
	if p.ID != userID && !p.IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden", "Cannot manage another user's second factor")
		return false
	}
	return true
}

// HandleSetup handles POST /v1/auth/totp/setup. Re-invoking setup before the
// factor is enabled replaces the pending secret.
func (h *TOTPHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req totpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if !h.authorize(w, r, req.UserID) {
		return
	}

	enrollment, err := h.TOTP.Setup(ctx, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTOTPAlreadyEnabled):
			writeError(w, http.StatusBadRequest, "totp_already_enabled", "Second factor is already enabled")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "Account not found")
		default:
			log.Error("totp setup failed", "user_id", req.UserID, "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"secret":      enrollment.Secret,
		"qr_code_url": enrollment.URL,
	})
}

// HandleEnable handles POST /v1/auth/totp/enable. The presented token must
// verify against the secret minted by the most recent setup.
func (h *TOTPHandler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req totpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if !h.authorize(w, r, req.UserID) {
		return
	}

	if err := h.TOTP.Enable(ctx, req.UserID, req.Token); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTOTP):
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]any{
				"success": false,
				"error":   "invalid_totp",
			})
		case errors.Is(err, service.ErrTOTPNotEnrolled):
			writeError(w, http.StatusBadRequest, "totp_not_enrolled", "Run setup before enabling")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "Account not found")
		default:
			log.Error("totp enable failed", "user_id", req.UserID, "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

// HandleDisable handles POST /v1/auth/totp/disable. No token is required to
// disable.
func (h *TOTPHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req totpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if !h.authorize(w, r, req.UserID) {
		return
	}

	if err := h.TOTP.Disable(ctx, req.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Account not found")
			return
		}
		log.Error("totp disable failed", "user_id", req.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
