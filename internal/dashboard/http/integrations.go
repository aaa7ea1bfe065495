package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/service"
	"github.com/opsdeskhq/opsdesk/pkg/httpx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// IntegrationsHandler exposes the key=value integration secrets document.
// Both verbs are admin-gated; values pass straight through and never appear
// in logs.
type IntegrationsHandler struct {
	Integrations *service.IntegrationsService
}

// HandleGet handles GET /v1/integrations.
func (h *IntegrationsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	values, err := h.Integrations.Read(ctx)
	if err != nil {
		log.Error("integrations read failed", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"values": values})
}

type integrationsPutRequest struct {
	Values map[string]string `json:"values"`
}

// HandlePut handles PUT /v1/integrations, replacing the whole document.
func (h *IntegrationsHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req integrationsPutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if err := h.Integrations.Replace(ctx, req.Values); err != nil {
		if errors.Is(err, service.ErrInvalidIntegrationKey) {
			writeError(w, http.StatusBadRequest, "invalid_request", "Keys must be non-empty and free of '=' and newlines")
			return
		}
		log.Error("integrations write failed", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
