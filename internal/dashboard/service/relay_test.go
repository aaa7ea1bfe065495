package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"
	"github.com/opsdeskhq/opsdesk/pkg/httpx"

	"github.com/stretchr/testify/require"
)

func TestRelaySend(t *testing.T) {
	ctx := context.Background()
	principal := domain.Principal{ID: "acct-1", Role: domain.RoleUser, Provenance: domain.ProvenanceLocal}

	t.Run("not configured without a backend url", func(t *testing.T) {
		svc := NewRelayService("", nil)
		_, err := svc.Send(ctx, principal, "restart the build agents")
		require.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("forwards message and identity, returns reply", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Message string `json:"message"`
				UserID  string `json:"user_id"`
				Role    string `json:"role"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "restart the build agents", req.Message)
			require.Equal(t, "acct-1", req.UserID)
			require.Equal(t, "user", req.Role)

			httpx.WriteJSON(w, http.StatusOK, map[string]string{"reply": "done"})
		}))
		t.Cleanup(backend.Close)

		svc := NewRelayService(backend.URL, backend.Client())
		reply, err := svc.Send(ctx, principal, "restart the build agents")
		require.NoError(t, err)
		require.Equal(t, "done", reply.Reply)
	})

	t.Run("backend failure surfaces as upstream", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		t.Cleanup(backend.Close)

		svc := NewRelayService(backend.URL, backend.Client())
		_, err := svc.Send(ctx, principal, "hello")
		require.ErrorIs(t, err, ErrUpstream)
	})

	t.Run("unreachable backend surfaces as upstream", func(t *testing.T) {
		svc := NewRelayService("http://127.0.0.1:1/chat", nil)
		_, err := svc.Send(ctx, principal, "hello")
		require.ErrorIs(t, err, ErrUpstream)
	})
}
