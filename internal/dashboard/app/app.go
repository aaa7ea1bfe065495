package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/opsdeskhq/opsdesk/internal/dashboard/http"
	"github.com/opsdeskhq/opsdesk/internal/dashboard/service"
	"github.com/opsdeskhq/opsdesk/internal/dashboard/store"
	"github.com/opsdeskhq/opsdesk/internal/dashboard/store/drivers/sqlite"
	"github.com/opsdeskhq/opsdesk/pkg/cryptox"
	"github.com/opsdeskhq/opsdesk/pkg/sessionstore"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the dashboard backend with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	sessions *sessionstore.Store

	localAuthService  *service.LocalAuthService
	totpService       *service.TOTPService
	federatedService  *service.FederatedAuthService
	deviceFlowService *service.DeviceFlowService
	oidcService       *service.OIDCService
	identityService   *service.IdentityService
	accountService    *service.AccountService
	bootstrapService  *service.BootstrapService
	relayService      *service.RelayService
	integrations      *service.IntegrationsService

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "opsdesk",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	ctx := slogx.WithContext(context.Background(), app.logger)
	if err := app.bootstrapService.Seed(ctx); err != nil {
		return fmt.Errorf("bootstrap seed failed: %w", err)
	}

	app.logger.Info("opsdesk starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down opsdesk...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.deviceFlowService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("opsdesk stopped")
	return nil
}

// initDatabase initializes the database and applies migrations.
func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() error {
	app.sessions = sessionstore.New(app.cfg.SessionFile)

	secret := app.cfg.SessionSecret
	if secret == "" {
		// Without a configured secret, tokens do not survive restarts.
		generated, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return fmt.Errorf("generate session secret: %w", err)
		}
		secret = generated
		app.logger.Warn("no session secret configured, using an ephemeral one")
	}

	app.identityService = &service.IdentityService{
		Sessions: app.sessions,
		Secret:   []byte(secret),
		TokenTTL: app.cfg.SessionTTL,
		Issuer:   "opsdesk",
	}

	app.totpService = &service.TOTPService{
		Store:  app.db,
		Issuer: app.cfg.TOTPIssuer,
	}
	app.localAuthService = &service.LocalAuthService{Store: app.db}
	app.federatedService = &service.FederatedAuthService{Store: app.db}
	app.accountService = &service.AccountService{Store: app.db}
	app.bootstrapService = &service.BootstrapService{
		Store:         app.db,
		AdminPassword: app.cfg.BootstrapAdminPassword,
		UserPassword:  app.cfg.BootstrapUserPassword,
	}

	app.deviceFlowService = service.NewDeviceFlowService(app.db, service.DeviceFlowConfig{
		ClientID:      app.cfg.OAuthClientID,
		TenantID:      app.cfg.OAuthTenantID,
		DeviceAuthURL: app.cfg.OAuthDeviceAuthURL,
		TokenURL:      app.cfg.OAuthTokenURL,
		ProfileURL:    app.cfg.OAuthProfileURL,
		Scopes:        app.cfg.OAuthScopes,
	}, nil)

	app.oidcService = &service.OIDCService{
		Store: app.db,
		Config: service.OIDCConfig{
			ClientID:     app.cfg.OAuthClientID,
			ClientSecret: app.cfg.OAuthClientSecret,
			TenantID:     app.cfg.OAuthTenantID,
			RedirectURI:  app.cfg.OAuthRedirectURI,
			AuthURL:      app.cfg.OAuthAuthURL,
			TokenURL:     app.cfg.OAuthTokenURL,
			Scopes:       app.cfg.OAuthScopes,
		},
	}

	app.relayService = service.NewRelayService(app.cfg.AutomationBackendURL, nil)
	app.integrations = service.NewIntegrationsService(app.cfg.IntegrationsFile)

	return nil
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)

	router.LocalAuth = app.localAuthService
	router.TOTP = app.totpService
	router.FederatedAuth = app.federatedService
	router.DeviceFlow = app.deviceFlowService
	router.OIDC = app.oidcService
	router.Identity = app.identityService
	router.Accounts = app.accountService
	router.Relay = app.relayService
	router.Integrations = app.integrations
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
