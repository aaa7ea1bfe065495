package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"
	"github.com/opsdeskhq/opsdesk/internal/dashboard/service"
	"github.com/opsdeskhq/opsdesk/internal/dashboard/store"
	"github.com/opsdeskhq/opsdesk/internal/dashboard/store/drivers/sqlite"
	"github.com/opsdeskhq/opsdesk/pkg/cryptox"
	"github.com/opsdeskhq/opsdesk/pkg/idx"
	"github.com/opsdeskhq/opsdesk/pkg/sessionstore"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"

	"github.com/stretchr/testify/require"
)

type testServer struct {
	store    store.Store
	router   *Router
	identity *service.IdentityService
	totp     *service.TOTPService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	identity := &service.IdentityService{
		Sessions: sessionstore.New(filepath.Join(t.TempDir(), "session.json")),
		Secret:   []byte("test-secret"),
		TokenTTL: time.Hour,
		Issuer:   "opsdesk",
	}
	totp := &service.TOTPService{Store: st, Issuer: "OpsDesk"}

	logger := slogx.New(slogx.Config{Service: "opsdesk", Env: "dev", Level: "error", Format: "text"})
	router := NewRouter("test", st, logger)
	router.LocalAuth = &service.LocalAuthService{Store: st}
	router.TOTP = totp
	router.FederatedAuth = &service.FederatedAuthService{Store: st}
	router.Identity = identity
	router.Accounts = &service.AccountService{Store: st}
	router.Integrations = service.NewIntegrationsService(filepath.Join(t.TempDir(), "integrations.env"))
	router.ApplyRoutes()

	return &testServer{store: st, router: router, identity: identity, totp: totp}
}

func (ts *testServer) createAccount(t *testing.T, username, password string, role domain.Role) domain.Account {
	t.Helper()

	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)
	account := domain.Account{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, ts.store.Accounts().CreateAccount(context.Background(), account))
	return account
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestLoginEndpoint(t *testing.T) {
	ts := newTestServer(t)
	account := ts.createAccount(t, "alice", "pw", domain.RoleAdmin)

	t.Run("success returns identity and token", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/auth/login", "",
			map[string]string{"username": "alice", "password": "pw"})
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		require.Equal(t, account.ID, body["id"])
		require.Equal(t, "alice", body["username"])
		require.Equal(t, "admin", body["role"])
		require.Equal(t, false, body["totp_enabled"])
		require.NotEmpty(t, body["access_token"])
	})

	t.Run("bad password yields 401 without totp hint", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/auth/login", "",
			map[string]string{"username": "alice", "password": "wrong"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		body := decodeBody(t, rec)
		require.Equal(t, "invalid_credentials", body["error"])
		require.NotContains(t, body, "requires_totp")
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		ts.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLoginEndpointWithTOTP(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	account := ts.createAccount(t, "carol", "pw", domain.RoleUser)

	enrollment, err := ts.totp.Setup(ctx, account.ID)
	require.NoError(t, err)
	code, err := service.GenerateCode(enrollment.Secret)
	require.NoError(t, err)
	require.NoError(t, ts.totp.Enable(ctx, account.ID, code))

	t.Run("missing code flags requires_totp", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/auth/login", "",
			map[string]string{"username": "carol", "password": "pw"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		body := decodeBody(t, rec)
		require.Equal(t, true, body["requires_totp"])
	})

	t.Run("wrong code is plain 401", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/auth/login", "",
			map[string]string{"username": "carol", "password": "pw", "totp_token": "000000"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		body := decodeBody(t, rec)
		require.Equal(t, "invalid_totp", body["error"])
		require.NotContains(t, body, "requires_totp")
	})

	t.Run("valid code logs in", func(t *testing.T) {
		code, err := service.GenerateCode(enrollment.Secret)
		require.NoError(t, err)
		rec := ts.do(t, http.MethodPost, "/v1/auth/login", "",
			map[string]string{"username": "carol", "password": "pw", "totp_token": code})
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		require.Equal(t, true, body["totp_enabled"])
	})
}

func TestAdminGating(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.createAccount(t, "root", "pw", domain.RoleAdmin)
	user := ts.createAccount(t, "plain", "pw", domain.RoleUser)

	adminToken, err := ts.identity.IssueToken(domain.Principal{
		ID: admin.ID, Username: admin.Username, Role: admin.Role, Provenance: domain.ProvenanceLocal,
	})
	require.NoError(t, err)
	userToken, err := ts.identity.IssueToken(domain.Principal{
		ID: user.ID, Username: user.Username, Role: user.Role, Provenance: domain.ProvenanceLocal,
	})
	require.NoError(t, err)

	t.Run("no token", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/v1/accounts", "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/v1/accounts", "garbage", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("non-admin token", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/v1/accounts", userToken, nil)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin token", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/v1/accounts", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("admin can create accounts, password hash never leaks", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/accounts", adminToken, map[string]any{
			"username": "newbie", "password": "pw", "role": "user",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		body := decodeBody(t, rec)
		require.Equal(t, "newbie", body["username"])
		require.NotContains(t, body, "password_hash")
		require.NotContains(t, rec.Body.String(), "$2a$")
	})
}

func TestTOTPEndpointsAuthorization(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.createAccount(t, "alice", "pw", domain.RoleUser)
	bob := ts.createAccount(t, "bob", "pw", domain.RoleUser)

	aliceToken, err := ts.identity.IssueToken(domain.Principal{
		ID: alice.ID, Username: alice.Username, Role: alice.Role, Provenance: domain.ProvenanceLocal,
	})
	require.NoError(t, err)

	t.Run("requires authentication", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/auth/totp/setup", "", map[string]string{"user_id": alice.ID})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("cannot manage another user's factor", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/auth/totp/setup", aliceToken, map[string]string{"user_id": bob.ID})
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("setup then enable over HTTP", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/auth/totp/setup", aliceToken, map[string]string{"user_id": alice.ID})
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		secret, _ := body["secret"].(string)
		require.NotEmpty(t, secret)
		require.Contains(t, body["qr_code_url"], "otpauth://")

		code, err := service.GenerateCode(secret)
		require.NoError(t, err)
		rec = ts.do(t, http.MethodPost, "/v1/auth/totp/enable", aliceToken,
			map[string]string{"user_id": alice.ID, "token": code})
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, true, decodeBody(t, rec)["success"])
	})

	t.Run("disable requires no token value", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/auth/totp/disable", aliceToken, map[string]string{"user_id": alice.ID})
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestSessionEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.createAccount(t, "alice", "pw", domain.RoleAdmin)

	t.Run("no session initially", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/v1/auth/session", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, false, decodeBody(t, rec)["authenticated"])
	})

	t.Run("login persists a resumable session", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/auth/login", "",
			map[string]string{"username": "alice", "password": "pw"})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = ts.do(t, http.MethodGet, "/v1/auth/session", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, true, body["authenticated"])

		user, ok := body["user"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, "alice", user["username"])
		require.Equal(t, "local", user["provenance"])
	})

	t.Run("logout clears it", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/auth/logout", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = ts.do(t, http.MethodGet, "/v1/auth/session", "", nil)
		require.Equal(t, false, decodeBody(t, rec)["authenticated"])
	})
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeBody(t, rec)["status"])

	rec = ts.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeBody(t, rec)["status"])
}
