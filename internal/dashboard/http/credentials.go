package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"
	"github.com/opsdeskhq/opsdesk/internal/dashboard/service"
	"github.com/opsdeskhq/opsdesk/internal/dashboard/store"
	"github.com/opsdeskhq/opsdesk/pkg/httpx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// CredentialsHandler is the admin-gated CRUD surface over the federated
// allow-list. Entries created here are the only identities the federated
// password and OIDC schemes will accept.
type CredentialsHandler struct {
	FederatedAuth *service.FederatedAuthService
}

type credentialResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toCredentialResponse(c domain.FederatedCredential) credentialResponse {
	return credentialResponse{
		ID:        c.ID,
		Email:     c.Email,
		Role:      string(c.Role),
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

type credentialCreateRequest struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
	IsActive *bool       `json:"is_active,omitempty"`
}

// HandleCreate handles POST /v1/federated-credentials.
func (h *CredentialsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req credentialCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	cred, err := h.FederatedAuth.CreateCredential(ctx, req.Email, req.Password, req.Role, isActive)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			writeError(w, http.StatusConflict, "email_taken", "Email is already provisioned")
		case errors.Is(err, service.ErrInvalidCredential):
			writeError(w, http.StatusBadRequest, "invalid_request", "Email, password and a valid role are required")
		default:
			log.Error("credential create failed", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, toCredentialResponse(cred))
}

// HandleList handles GET /v1/federated-credentials.
func (h *CredentialsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	creds, err := h.FederatedAuth.ListCredentials(ctx)
	if err != nil {
		log.Error("credential list failed", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	out := make([]credentialResponse, 0, len(creds))
	for _, c := range creds {
		out = append(out, toCredentialResponse(c))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"credentials": out})
}

type credentialUpdateRequest struct {
	Email    string      `json:"email"`
	Role     domain.Role `json:"role"`
	IsActive bool        `json:"is_active"`
	Password string      `json:"password,omitempty"`
}

// HandleUpdate handles PATCH /v1/federated-credentials/{id}.
func (h *CredentialsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	id := r.PathValue("id")

	var req credentialUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if err := h.FederatedAuth.UpdateCredential(ctx, id, req.Email, req.Role, req.IsActive); err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			writeError(w, http.StatusConflict, "email_taken", "Email is already provisioned")
		case errors.Is(err, service.ErrInvalidCredential):
			writeError(w, http.StatusBadRequest, "invalid_request", "Email and a valid role are required")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "Credential not found")
		default:
			log.Error("credential update failed", "credential_id", id, "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		}
		return
	}

	if req.Password != "" {
		if err := h.FederatedAuth.SetCredentialPassword(ctx, id, req.Password); err != nil {
			log.Error("credential password update failed", "credential_id", id, "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
			return
		}
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

// HandleDelete handles DELETE /v1/federated-credentials/{id}.
func (h *CredentialsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	id := r.PathValue("id")

	if err := h.FederatedAuth.DeleteCredential(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Credential not found")
			return
		}
		log.Error("credential delete failed", "credential_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
