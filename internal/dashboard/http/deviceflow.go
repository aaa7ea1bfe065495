package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"
	"github.com/opsdeskhq/opsdesk/internal/dashboard/service"
	"github.com/opsdeskhq/opsdesk/pkg/httpx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// DeviceFlowHandler handles the device-authorization grant endpoints. The
// client owns the polling loop; the server only answers one poll at a time.
type DeviceFlowHandler struct {
	DeviceFlow *service.DeviceFlowService
	Identity   *service.IdentityService
}

// HandleStart handles POST /v1/auth/device/start.
func (h *DeviceFlowHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	session, err := h.DeviceFlow.Start(ctx)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotConfigured):
			writeError(w, http.StatusServiceUnavailable, "not_configured", "Device flow provider is not configured")
		case errors.Is(err, service.ErrUpstream):
			log.Warn("device flow start failed upstream", "err", err)
			writeError(w, http.StatusBadGateway, "upstream_error", "Identity provider request failed")
		default:
			log.Error("device flow start failed", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"device_code":      session.DeviceCode,
		"user_code":        session.UserCode,
		"verification_uri": session.VerificationURI,
		"expires_in":       session.ExpiresIn,
		"interval":         session.Interval,
	})
}

type devicePollRequest struct {
	DeviceCode string `json:"device_code"`
}

// HandlePoll handles POST /v1/auth/device/poll. Pending is the only outcome
// worth polling again for.
func (h *DeviceFlowHandler) HandlePoll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req devicePollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.DeviceCode == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "device_code is required")
		return
	}

	result, err := h.DeviceFlow.Poll(ctx, req.DeviceCode)
	if err != nil {
		if errors.Is(err, service.ErrUpstream) {
			log.Warn("device flow poll failed upstream", "err", err)
			writeError(w, http.StatusBadGateway, "upstream_error", "Identity provider request failed")
			return
		}
		log.Error("device flow poll failed", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	switch result.Status {
	case domain.DeviceFlowPending:
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"pending": true,
			"error":   "authorization_pending",
		})
	case domain.DeviceFlowDeclined:
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   "User declined authorization",
		})
	case domain.DeviceFlowExpired:
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   "Device code expired",
		})
	case domain.DeviceFlowCompleted:
		token, err := h.Identity.Establish(ctx, *result.Principal)
		if err != nil {
			log.Error("failed to establish session", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"user":         result.Principal,
			"access_token": token,
		})
	default:
		log.Error("device flow poll returned unknown status", "status", string(result.Status))
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
	}
}
