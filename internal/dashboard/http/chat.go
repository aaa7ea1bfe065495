package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/service"
	"github.com/opsdeskhq/opsdesk/pkg/httpx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// ChatHandler handles POST /v1/chat, forwarding one message to the
// automation backend on behalf of the authenticated principal.
type ChatHandler struct {
	Relay *service.RelayService
}

type chatRequest struct {
	Message string `json:"message"`
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_token", "Missing authentication")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	reply, err := h.Relay.Send(ctx, principal, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotConfigured):
			writeError(w, http.StatusServiceUnavailable, "not_configured", "Automation backend is not configured")
		case errors.Is(err, service.ErrUpstream):
			log.Warn("chat relay failed upstream", "err", err)
			writeError(w, http.StatusBadGateway, "upstream_error", "Automation backend request failed")
		default:
			log.Error("chat relay failed", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"reply": reply.Reply})
}
