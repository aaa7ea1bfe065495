package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// RelayService forwards chat messages to the automation backend. It keeps no
// conversation state of its own; each Send is one request/response pair.
type RelayService struct {
	BackendURL string
	Client     *http.Client
}

func NewRelayService(backendURL string, client *http.Client) *RelayService {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &RelayService{BackendURL: backendURL, Client: client}
}

type relayRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
	Role    string `json:"role"`
}

// RelayReply is the automation backend's answer to one chat message.
type RelayReply struct {
	Reply string `json:"reply"`
}

// Send forwards one chat message on behalf of p and returns the backend's
// reply. Any transport or protocol failure surfaces as ErrUpstream.
func (s *RelayService) Send(ctx context.Context, p domain.Principal, message string) (RelayReply, error) {
	if s.BackendURL == "" {
		return RelayReply{}, ErrNotConfigured
	}

	payload, err := json.Marshal(relayRequest{
		Message: message,
		UserID:  p.ID,
		Role:    string(p.Role),
	})
	if err != nil {
		return RelayReply{}, fmt.Errorf("encode relay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BackendURL, bytes.NewReader(payload))
	if err != nil {
		return RelayReply{}, fmt.Errorf("%w: build relay request: %v", ErrUpstream, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return RelayReply{}, fmt.Errorf("%w: relay request: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slogx.FromContext(ctx).Warn("automation backend rejected relay",
			slog.Int("status", resp.StatusCode),
			slog.Int("body_bytes", len(body)),
		)
		return RelayReply{}, fmt.Errorf("%w: automation backend returned status %d", ErrUpstream, resp.StatusCode)
	}

	var reply RelayReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return RelayReply{}, fmt.Errorf("%w: decode relay response: %v", ErrUpstream, err)
	}
	return reply, nil
}
