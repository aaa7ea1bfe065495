package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/opsdeskhq/opsdesk/pkg/slogx"

	"log/slog"
)

// IntegrationsService manages the flat key=value document holding
// third-party integration secrets. Reads and writes are serialized by a
// mutex and the file is replaced atomically, so a crash mid-write never
// leaves a torn document. Secret values are never logged; only key names
// and counts appear in log output.
type IntegrationsService struct {
	mu   sync.Mutex
	path string
}

func NewIntegrationsService(path string) *IntegrationsService {
	return &IntegrationsService{path: path}
}

var ErrInvalidIntegrationKey = errors.New("invalid_integration_key")

// Read returns the current key=value pairs. A missing file is an empty
// document, not an error.
func (s *IntegrationsService) Read(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Replace overwrites the whole document with values. Keys must be non-empty
// and free of '=' and newlines.
func (s *IntegrationsService) Replace(ctx context.Context, values map[string]string) error {
	for k, v := range values {
		if err := validateIntegrationPair(k, v); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeLocked(values); err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("integration secrets replaced", slog.Int("keys", len(values)))
	return nil
}

// Set updates or adds a single key without disturbing the rest of the
// document.
func (s *IntegrationsService) Set(ctx context.Context, key, value string) error {
	if err := validateIntegrationPair(key, value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.readLocked()
	if err != nil {
		return err
	}
	values[key] = value
	if err := s.writeLocked(values); err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("integration secret set", slog.String("key", key))
	return nil
}

// Delete removes a single key. Deleting an absent key is a no-op.
func (s *IntegrationsService) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.readLocked()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	if err := s.writeLocked(values); err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("integration secret deleted", slog.String("key", key))
	return nil
}

func validateIntegrationPair(key, value string) error {
	if key == "" || strings.ContainsAny(key, "=\n\r") || strings.ContainsAny(value, "\n\r") {
		return ErrInvalidIntegrationKey
	}
	return nil
}

func (s *IntegrationsService) readLocked() (map[string]string, error) {
	values := make(map[string]string)

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("integrations: open: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		values[strings.TrimSpace(key)] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("integrations: read: %w", err)
	}
	return values, nil
}

func (s *IntegrationsService) writeLocked(values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(values[k])
		b.WriteByte('\n')
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("integrations: mkdir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("integrations: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("integrations: rename: %w", err)
	}
	return nil
}
