package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/service"
	"github.com/opsdeskhq/opsdesk/internal/dashboard/store"
	"github.com/opsdeskhq/opsdesk/pkg/httpx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	LocalAuth     *service.LocalAuthService
	TOTP          *service.TOTPService
	FederatedAuth *service.FederatedAuthService
	DeviceFlow    *service.DeviceFlowService
	OIDC          *service.OIDCService
	Identity      *service.IdentityService
	Accounts      *service.AccountService
	Relay         *service.RelayService
	Integrations  *service.IntegrationsService
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		store:        st,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerAccounts()
	r.registerCredentials()
	r.registerChat()
	r.registerIntegrations()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	r.Mux.Handle("POST /v1/auth/login", &LoginHandler{
		LocalAuth: r.LocalAuth,
		Identity:  r.Identity,
	})

	totpHandler := &TOTPHandler{TOTP: r.TOTP}
	authn := AuthnMiddleware(r.Identity)
	r.Mux.Handle("POST /v1/auth/totp/setup",
		httpx.Chain(http.HandlerFunc(totpHandler.HandleSetup), authn))
	r.Mux.Handle("POST /v1/auth/totp/enable",
		httpx.Chain(http.HandlerFunc(totpHandler.HandleEnable), authn))
	r.Mux.Handle("POST /v1/auth/totp/disable",
		httpx.Chain(http.HandlerFunc(totpHandler.HandleDisable), authn))

	r.Mux.Handle("POST /v1/auth/federated/login", &FederatedLoginHandler{
		FederatedAuth: r.FederatedAuth,
		Identity:      r.Identity,
	})

	deviceHandler := &DeviceFlowHandler{DeviceFlow: r.DeviceFlow, Identity: r.Identity}
	r.Mux.Handle("POST /v1/auth/device/start", http.HandlerFunc(deviceHandler.HandleStart))
	r.Mux.Handle("POST /v1/auth/device/poll", http.HandlerFunc(deviceHandler.HandlePoll))

	oidcHandler := &OIDCHandler{OIDC: r.OIDC, Identity: r.Identity}
	r.Mux.Handle("POST /v1/auth/oidc/initiate", http.HandlerFunc(oidcHandler.HandleInitiate))
	r.Mux.Handle("POST /v1/auth/oidc/callback", http.HandlerFunc(oidcHandler.HandleCallback))

	sessionHandler := &SessionHandler{Identity: r.Identity}
	r.Mux.Handle("GET /v1/auth/session", http.HandlerFunc(sessionHandler.HandleGet))
	r.Mux.Handle("POST /v1/auth/logout", http.HandlerFunc(sessionHandler.HandleLogout))
}

func (r *Router) registerAccounts() {
	h := &AccountsHandler{Accounts: r.Accounts}
	admin := []httpx.Middleware{AuthnMiddleware(r.Identity), RequireAdmin()}

	r.Mux.Handle("POST /v1/accounts", httpx.Chain(http.HandlerFunc(h.HandleCreate), admin...))
	r.Mux.Handle("GET /v1/accounts", httpx.Chain(http.HandlerFunc(h.HandleList), admin...))
	r.Mux.Handle("GET /v1/accounts/{id}", httpx.Chain(http.HandlerFunc(h.HandleGet), admin...))
	r.Mux.Handle("PATCH /v1/accounts/{id}", httpx.Chain(http.HandlerFunc(h.HandleUpdate), admin...))
	r.Mux.Handle("DELETE /v1/accounts/{id}", httpx.Chain(http.HandlerFunc(h.HandleDelete), admin...))
}

func (r *Router) registerCredentials() {
	h := &CredentialsHandler{FederatedAuth: r.FederatedAuth}
	admin := []httpx.Middleware{AuthnMiddleware(r.Identity), RequireAdmin()}

	r.Mux.Handle("POST /v1/federated-credentials", httpx.Chain(http.HandlerFunc(h.HandleCreate), admin...))
	r.Mux.Handle("GET /v1/federated-credentials", httpx.Chain(http.HandlerFunc(h.HandleList), admin...))
	r.Mux.Handle("PATCH /v1/federated-credentials/{id}", httpx.Chain(http.HandlerFunc(h.HandleUpdate), admin...))
	r.Mux.Handle("DELETE /v1/federated-credentials/{id}", httpx.Chain(http.HandlerFunc(h.HandleDelete), admin...))
}

func (r *Router) registerChat() {
	r.Mux.Handle("POST /v1/chat",
		httpx.Chain(&ChatHandler{Relay: r.Relay}, AuthnMiddleware(r.Identity)))
}

func (r *Router) registerIntegrations() {
	h := &IntegrationsHandler{Integrations: r.Integrations}
	admin := []httpx.Middleware{AuthnMiddleware(r.Identity), RequireAdmin()}

	r.Mux.Handle("GET /v1/integrations", httpx.Chain(http.HandlerFunc(h.HandleGet), admin...))
	r.Mux.Handle("PUT /v1/integrations", httpx.Chain(http.HandlerFunc(h.HandlePut), admin...))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
}
