// Package sessionstore persists the active Principal across restarts so the
// dashboard can restore identity at startup without re-running any network
// protocol. One record is kept per authentication provenance; logout clears
// every recognized form at once.
package sessionstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"
)

// restoreOrder is the fixed priority used when several session records
// survive a restart: a local session wins over a federated-password one,
// which wins over a live provider session.
var restoreOrder = []domain.Provenance{
	domain.ProvenanceLocal,
	domain.ProvenanceFederatedPassword,
	domain.ProvenanceOIDC,
	domain.ProvenanceDeviceFlow,
}

// Store is a file-backed session record store. All methods are safe for
// concurrent use; the file is rewritten atomically on every mutation.
type Store struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// Put records p as the active session for its provenance.
func (s *Store) Put(p domain.Principal) error {
	if !p.Provenance.Valid() {
		return fmt.Errorf("sessionstore: unknown provenance %q", p.Provenance)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	records[p.Provenance] = p
	return s.write(records)
}

// Restore returns the highest-priority persisted Principal, if any.
func (s *Store) Restore() (domain.Principal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return domain.Principal{}, false, err
	}
	for _, prov := range restoreOrder {
		if p, ok := records[prov]; ok {
			return p, true, nil
		}
	}
	return domain.Principal{}, false, nil
}

// Clear removes every persisted session record, regardless of which
// provenance is currently active.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("sessionstore: clear: %w", err)
	}
	return nil
}

func (s *Store) read() (map[domain.Provenance]domain.Principal, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[domain.Provenance]domain.Principal), nil
	}
	if err != nil {
		return nil, fmt.Errorf("sessionstore: read: %w", err)
	}

	records := make(map[domain.Provenance]domain.Principal)
	if err := json.Unmarshal(data, &records); err != nil {
		// A corrupt session file should force re-authentication, not
		// wedge startup.
		return make(map[domain.Provenance]domain.Principal), nil
	}
	return records, nil
}

func (s *Store) write(records map[domain.Provenance]domain.Principal) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("sessionstore: encode: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("sessionstore: mkdir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("sessionstore: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("sessionstore: rename: %w", err)
	}
	return nil
}
