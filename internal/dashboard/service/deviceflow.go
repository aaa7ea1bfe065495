package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"
	"github.com/opsdeskhq/opsdesk/internal/dashboard/store"
	"github.com/opsdeskhq/opsdesk/pkg/idx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/oauth2"
)

const (
	deviceGrantType     = "urn:ietf:params:oauth:grant-type:device_code"
	defaultPollInterval = 5 // seconds, when the provider omits one
)

// DeviceFlowConfig names the provider endpoints and client identity for the
// device-authorization grant. Only ClientID is mandatory; a missing one is a
// NotConfigured condition, not a generic failure.
type DeviceFlowConfig struct {
	ClientID      string
	TenantID      string
	DeviceAuthURL string
	TokenURL      string
	ProfileURL    string // userinfo-style endpoint for the signed-in user
	Scopes        []string
}

// deviceFlowState is the coordinator's per-device-code memory. Sessions live
// in a TTL cache bounded by the provider's expires_in, so an expired flow
// simply vanishes and polls for it report Expired.
type deviceFlowState struct {
	status   domain.DeviceFlowStatus
	interval int
}

// DeviceFlowService drives the OAuth2 device-authorization grant. It never
// self-schedules: the caller owns the polling cadence and cancellation, and
// each Poll suspends only for one network round trip.
type DeviceFlowService struct {
	Store  store.Store
	Config DeviceFlowConfig
	Client *http.Client

	sessions *ttlcache.Cache[string, *deviceFlowState]
}

func NewDeviceFlowService(st store.Store, cfg DeviceFlowConfig, client *http.Client) *DeviceFlowService {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	sessions := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, *deviceFlowState](),
	)
	go sessions.Start()

	return &DeviceFlowService{
		Store:    st,
		Config:   cfg,
		Client:   client,
		sessions: sessions,
	}
}

// Stop releases the session cache's cleanup goroutine.
func (s *DeviceFlowService) Stop() {
	s.sessions.Stop()
}

// Start requests a device code from the provider and returns the session
// envelope. The device_code inside it is for polling only and must never be
// displayed; the user sees user_code and verification_uri.
func (s *DeviceFlowService) Start(ctx context.Context) (domain.DeviceFlowSession, error) {
	if s.Config.ClientID == "" || s.Config.DeviceAuthURL == "" || s.Config.TokenURL == "" {
		return domain.DeviceFlowSession{}, ErrNotConfigured
	}

	cfg := oauth2.Config{
		ClientID: s.Config.ClientID,
		Scopes:   s.Config.Scopes,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: s.Config.DeviceAuthURL,
			TokenURL:      s.Config.TokenURL,
		},
	}

	resp, err := cfg.DeviceAuth(context.WithValue(ctx, oauth2.HTTPClient, s.Client))
	if err != nil {
		return domain.DeviceFlowSession{}, fmt.Errorf("%w: device authorization request: %v", ErrUpstream, err)
	}

	interval := int(resp.Interval)
	if interval <= 0 {
		interval = defaultPollInterval
	}

	// Fall back to a sane window if the provider omits expires_in.
	ttl := time.Until(resp.Expiry)
	if resp.Expiry.IsZero() || ttl <= 0 {
		ttl = 15 * time.Minute
	}
	expiresIn := int(ttl.Seconds())

	s.sessions.Set(resp.DeviceCode, &deviceFlowState{
		status:   domain.DeviceFlowPending,
		interval: interval,
	}, ttl)

	return domain.DeviceFlowSession{
		DeviceCode:      resp.DeviceCode,
		UserCode:        resp.UserCode,
		VerificationURI: resp.VerificationURI,
		ExpiresIn:       expiresIn,
		Interval:        interval,
	}, nil
}

// Poll performs one token-endpoint round trip for deviceCode.
//
// Pending is the only retryable outcome. Terminal outcomes stick: a declined
// or expired device code keeps reporting its terminal status and can never
// complete, so the caller must Start a fresh flow. Callers should wait at
// least the session interval between polls.
func (s *DeviceFlowService) Poll(ctx context.Context, deviceCode string) (domain.DeviceFlowResult, error) {
	item := s.sessions.Get(deviceCode)
	if item == nil {
		// Unknown or already evicted by TTL: the flow is over.
		return domain.DeviceFlowResult{Status: domain.DeviceFlowExpired}, nil
	}
	state := item.Value()
	if state.status.Terminal() {
		return domain.DeviceFlowResult{Status: state.status}, nil
	}

	token, outcome, err := s.redeemDeviceCode(ctx, deviceCode)
	if err != nil {
		return domain.DeviceFlowResult{}, err
	}
	if outcome != domain.DeviceFlowCompleted {
		if outcome.Terminal() {
			state.status = outcome
		}
		return domain.DeviceFlowResult{Status: outcome}, nil
	}

	principal, err := s.completeLogin(ctx, token)
	if err != nil {
		return domain.DeviceFlowResult{}, err
	}

	s.sessions.Delete(deviceCode)
	return domain.DeviceFlowResult{Status: domain.DeviceFlowCompleted, Principal: &principal}, nil
}

type deviceTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Error        string `json:"error"`
}

// redeemDeviceCode performs the single token-endpoint request and folds the
// provider's error vocabulary into flow outcomes.
func (s *DeviceFlowService) redeemDeviceCode(ctx context.Context, deviceCode string) (deviceTokenResponse, domain.DeviceFlowStatus, error) {
	form := url.Values{
		"grant_type":  {deviceGrantType},
		"client_id":   {s.Config.ClientID},
		"device_code": {deviceCode},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Config.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return deviceTokenResponse{}, "", fmt.Errorf("%w: build token request: %v", ErrUpstream, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.Client.Do(req)
	if err != nil {
		return deviceTokenResponse{}, "", fmt.Errorf("%w: token request: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return deviceTokenResponse{}, "", fmt.Errorf("%w: read token response: %v", ErrUpstream, err)
	}

	var token deviceTokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return deviceTokenResponse{}, "", fmt.Errorf("%w: decode token response: %v", ErrUpstream, err)
	}

	switch token.Error {
	case "":
		if token.AccessToken == "" {
			return deviceTokenResponse{}, "", fmt.Errorf("%w: token response missing access_token", ErrUpstream)
		}
		return token, domain.DeviceFlowCompleted, nil
	case "authorization_pending", "slow_down":
		return deviceTokenResponse{}, domain.DeviceFlowPending, nil
	case "authorization_declined", "access_denied":
		return deviceTokenResponse{}, domain.DeviceFlowDeclined, nil
	case "expired_token":
		return deviceTokenResponse{}, domain.DeviceFlowExpired, nil
	default:
		return deviceTokenResponse{}, "", fmt.Errorf("%w: token endpoint returned %q", ErrUpstream, token.Error)
	}
}

type providerProfile struct {
	ID          string `json:"id"`
	Sub         string `json:"sub"`
	Email       string `json:"email"`
	Mail        string `json:"mail"`
	DisplayName string `json:"displayName"`
	Name        string `json:"name"`
}

func (p providerProfile) subjectID() string {
	if p.ID != "" {
		return p.ID
	}
	return p.Sub
}

func (p providerProfile) email() string {
	if p.Email != "" {
		return p.Email
	}
	return p.Mail
}

func (p providerProfile) displayName() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

// completeLogin fetches the authenticated user's profile, upserts the
// federated profile row keyed on the provider's subject id, and builds the
// Principal. Device-flow logins carry no role from the provider, so the
// principal defaults to the non-admin role.
func (s *DeviceFlowService) completeLogin(ctx context.Context, token deviceTokenResponse) (domain.Principal, error) {
	l := slogx.FromContext(ctx)

	profile, err := s.fetchProfile(ctx, token.AccessToken)
	if err != nil {
		return domain.Principal{}, err
	}
	if profile.subjectID() == "" {
		return domain.Principal{}, fmt.Errorf("%w: profile response missing subject id", ErrUpstream)
	}

	var expiresAt *time.Time
	if token.ExpiresIn > 0 {
		t := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
		expiresAt = &t
	}

	err = s.Store.FederatedProfiles().Upsert(ctx, domain.FederatedProfile{
		ID:                idx.New().String(),
		ExternalSubjectID: profile.subjectID(),
		Email:             profile.email(),
		DisplayName:       profile.displayName(),
		TenantID:          s.Config.TenantID,
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
		TokenExpiresAt:    expiresAt,
	})
	if err != nil {
		return domain.Principal{}, fmt.Errorf("upsert federated profile: %w", err)
	}

	l.Info("device flow completed", slog.String("subject", profile.subjectID()))

	return domain.Principal{
		ID:          profile.subjectID(),
		Email:       profile.email(),
		DisplayName: profile.displayName(),
		Role:        domain.RoleUser,
		Provenance:  domain.ProvenanceDeviceFlow,
	}, nil
}

func (s *DeviceFlowService) fetchProfile(ctx context.Context, accessToken string) (providerProfile, error) {
	if s.Config.ProfileURL == "" {
		return providerProfile{}, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Config.ProfileURL, nil)
	if err != nil {
		return providerProfile{}, fmt.Errorf("%w: build profile request: %v", ErrUpstream, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.Client.Do(req)
	if err != nil {
		return providerProfile{}, fmt.Errorf("%w: profile request: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return providerProfile{}, fmt.Errorf("%w: profile endpoint returned status %d", ErrUpstream, resp.StatusCode)
	}

	var profile providerProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return providerProfile{}, fmt.Errorf("%w: decode profile response: %v", ErrUpstream, err)
	}
	return profile, nil
}
