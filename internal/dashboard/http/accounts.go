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

// AccountsHandler is the admin-gated CRUD surface over local accounts. The
// password hash never appears in any response.
type AccountsHandler struct {
	Accounts *service.AccountService
}

type accountResponse struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	IsActive    bool      `json:"is_active"`
	TOTPEnabled bool      `json:"totp_enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toAccountResponse(a domain.Account) accountResponse {
	return accountResponse{
		ID:          a.ID,
		Username:    a.Username,
		Role:        string(a.Role),
		IsActive:    a.IsActive,
		TOTPEnabled: a.TOTPEnabled,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

type accountCreateRequest struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
	IsActive *bool       `json:"is_active,omitempty"`
}

// HandleCreate handles POST /v1/accounts.
func (h *AccountsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req accountCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	account, err := h.Accounts.Create(ctx, req.Username, req.Password, req.Role, isActive)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUsernameTaken):
			writeError(w, http.StatusConflict, "username_taken", "Username is already in use")
		case errors.Is(err, service.ErrInvalidAccount):
			writeError(w, http.StatusBadRequest, "invalid_request", "Username, password and a valid role are required")
		default:
			log.Error("account create failed", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, toAccountResponse(account))
}

// HandleList handles GET /v1/accounts.
func (h *AccountsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accounts, err := h.Accounts.List(ctx)
	if err != nil {
		log.Error("account list failed", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

// HandleGet handles GET /v1/accounts/{id}.
func (h *AccountsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	account, err := h.Accounts.Get(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Account not found")
			return
		}
		log.Error("account get failed", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAccountResponse(account))
}

type accountUpdateRequest struct {
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
	IsActive bool        `json:"is_active"`
	Password string      `json:"password,omitempty"`
}

// HandleUpdate handles PATCH /v1/accounts/{id}. A non-empty password in the
// body also rotates the credential.
func (h *AccountsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	id := r.PathValue("id")

	var req accountUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if err := h.Accounts.Update(ctx, id, req.Username, req.Role, req.IsActive); err != nil {
		switch {
		case errors.Is(err, service.ErrUsernameTaken):
			writeError(w, http.StatusConflict, "username_taken", "Username is already in use")
		case errors.Is(err, service.ErrInvalidAccount):
			writeError(w, http.StatusBadRequest, "invalid_request", "Username and a valid role are required")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "Account not found")
		default:
			log.Error("account update failed", "account_id", id, "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		}
		return
	}

	if req.Password != "" {
		if err := h.Accounts.SetPassword(ctx, id, req.Password); err != nil {
			log.Error("account password update failed", "account_id", id, "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
			return
		}
	}

	account, err := h.Accounts.Get(ctx, id)
	if err != nil {
		log.Error("account reload failed", "account_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAccountResponse(account))
}

// HandleDelete handles DELETE /v1/accounts/{id}.
func (h *AccountsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	id := r.PathValue("id")

	if err := h.Accounts.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Account not found")
			return
		}
		log.Error("account delete failed", "account_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
