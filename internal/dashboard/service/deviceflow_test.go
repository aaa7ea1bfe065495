package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"
	"github.com/opsdeskhq/opsdesk/pkg/httpx"

	"github.com/stretchr/testify/require"
)

// fakeProvider simulates the identity provider's device-authorization and
// token endpoints. The token response is swappable per test step.
type fakeProvider struct {
	mu            sync.Mutex
	tokenResponse map[string]any
	server        *httptest.Server
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{
		tokenResponse: map[string]any{"error": "authorization_pending"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /devicecode", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"device_code":      "dev-code-1",
			"user_code":        "ABCD-1234",
			"verification_uri": "https://provider.test/activate",
			"expires_in":       900,
			"interval":         2,
		})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		resp := p.tokenResponse
		p.mu.Unlock()
		httpx.WriteJSON(w, http.StatusOK, resp)
	})
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"id":          "ext-subject-1",
			"mail":        "grace@example.com",
			"displayName": "Grace H",
		})
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) setTokenResponse(resp map[string]any) {
	p.mu.Lock()
	p.tokenResponse = resp
	p.mu.Unlock()
}

func (p *fakeProvider) config() DeviceFlowConfig {
	return DeviceFlowConfig{
		ClientID:      "client-1",
		TenantID:      "tenant-1",
		DeviceAuthURL: p.server.URL + "/devicecode",
		TokenURL:      p.server.URL + "/token",
		ProfileURL:    p.server.URL + "/me",
	}
}

func TestDeviceFlowNotConfigured(t *testing.T) {
	st := newTestStore(t)
	svc := NewDeviceFlowService(st, DeviceFlowConfig{}, nil)
	t.Cleanup(svc.Stop)

	_, err := svc.Start(context.Background())
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestDeviceFlowHappyPath(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	provider := newFakeProvider(t)

	svc := NewDeviceFlowService(st, provider.config(), provider.server.Client())
	t.Cleanup(svc.Stop)

	session, err := svc.Start(ctx)
	require.NoError(t, err)
	require.Equal(t, "dev-code-1", session.DeviceCode)
	require.Equal(t, "ABCD-1234", session.UserCode)
	require.Equal(t, "https://provider.test/activate", session.VerificationURI)
	require.Equal(t, 2, session.Interval)
	require.Greater(t, session.ExpiresIn, 0)

	// User has not approved yet.
	result, err := svc.Poll(ctx, session.DeviceCode)
	require.NoError(t, err)
	require.Equal(t, domain.DeviceFlowPending, result.Status)
	require.Nil(t, result.Principal)

	// slow_down is still just pending from the caller's point of view.
	provider.setTokenResponse(map[string]any{"error": "slow_down"})
	result, err = svc.Poll(ctx, session.DeviceCode)
	require.NoError(t, err)
	require.Equal(t, domain.DeviceFlowPending, result.Status)

	provider.setTokenResponse(map[string]any{
		"access_token":  "provider-access-token",
		"refresh_token": "provider-refresh-token",
		"expires_in":    3600,
	})
	result, err = svc.Poll(ctx, session.DeviceCode)
	require.NoError(t, err)
	require.Equal(t, domain.DeviceFlowCompleted, result.Status)
	require.NotNil(t, result.Principal)
	require.Equal(t, "ext-subject-1", result.Principal.ID)
	require.Equal(t, "grace@example.com", result.Principal.Email)
	require.Equal(t, "Grace H", result.Principal.DisplayName)
	require.Equal(t, domain.RoleUser, result.Principal.Role)
	require.Equal(t, domain.ProvenanceDeviceFlow, result.Principal.Provenance)

	// Profile persisted with the provider's tokens.
	profile, err := st.FederatedProfiles().GetByExternalSubjectID(ctx, "ext-subject-1")
	require.NoError(t, err)
	require.Equal(t, "grace@example.com", profile.Email)
	require.Equal(t, "tenant-1", profile.TenantID)
	require.Equal(t, "provider-access-token", profile.AccessToken)

	// The session is gone after completion.
	result, err = svc.Poll(ctx, session.DeviceCode)
	require.NoError(t, err)
	require.Equal(t, domain.DeviceFlowExpired, result.Status)
}

func TestDeviceFlowDeclinedIsSticky(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	provider := newFakeProvider(t)

	svc := NewDeviceFlowService(st, provider.config(), provider.server.Client())
	t.Cleanup(svc.Stop)

	session, err := svc.Start(ctx)
	require.NoError(t, err)

	provider.setTokenResponse(map[string]any{"error": "authorization_declined"})
	result, err := svc.Poll(ctx, session.DeviceCode)
	require.NoError(t, err)
	require.Equal(t, domain.DeviceFlowDeclined, result.Status)

	// Even if the provider were to approve later, the flow stays declined.
	provider.setTokenResponse(map[string]any{
		"access_token": "provider-access-token",
		"expires_in":   3600,
	})
	result, err = svc.Poll(ctx, session.DeviceCode)
	require.NoError(t, err)
	require.Equal(t, domain.DeviceFlowDeclined, result.Status)
}

func TestDeviceFlowExpiredAndUnknownCodes(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	provider := newFakeProvider(t)

	svc := NewDeviceFlowService(st, provider.config(), provider.server.Client())
	t.Cleanup(svc.Stop)

	t.Run("unknown device code reports expired", func(t *testing.T) {
		result, err := svc.Poll(ctx, "never-issued")
		require.NoError(t, err)
		require.Equal(t, domain.DeviceFlowExpired, result.Status)
	})

	t.Run("provider expiry is terminal", func(t *testing.T) {
		session, err := svc.Start(ctx)
		require.NoError(t, err)

		provider.setTokenResponse(map[string]any{"error": "expired_token"})
		result, err := svc.Poll(ctx, session.DeviceCode)
		require.NoError(t, err)
		require.Equal(t, domain.DeviceFlowExpired, result.Status)
	})

	t.Run("unrecognized provider error surfaces as upstream", func(t *testing.T) {
		session, err := svc.Start(ctx)
		require.NoError(t, err)

		provider.setTokenResponse(map[string]any{"error": "invalid_grant"})
		_, err = svc.Poll(ctx, session.DeviceCode)
		require.ErrorIs(t, err, ErrUpstream)
	})
}
