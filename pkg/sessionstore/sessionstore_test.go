package sessionstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.json")
	return New(path), path
}

func TestPutAndRestore(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	t.Run("empty store restores nothing", func(t *testing.T) {
		_, ok, err := s.Restore()
		require.NoError(t, err)
		require.False(t, ok)
	})

	principal := domain.Principal{
		ID:         "acct-1",
		Username:   "alice",
		Role:       domain.RoleAdmin,
		Provenance: domain.ProvenanceLocal,
	}

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, s.Put(principal))

		got, ok, err := s.Restore()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, principal, got)
	})

	t.Run("unknown provenance rejected", func(t *testing.T) {
		require.Error(t, s.Put(domain.Principal{ID: "x", Provenance: "carrier-pigeon"}))
	})
}

func TestRestorePriority(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)

	device := domain.Principal{ID: "d", Role: domain.RoleUser, Provenance: domain.ProvenanceDeviceFlow}
	oidc := domain.Principal{ID: "o", Role: domain.RoleUser, Provenance: domain.ProvenanceOIDC}
	federated := domain.Principal{ID: "f", Role: domain.RoleUser, Provenance: domain.ProvenanceFederatedPassword}
	local := domain.Principal{ID: "l", Role: domain.RoleAdmin, Provenance: domain.ProvenanceLocal}

	require.NoError(t, s.Put(device))
	got, ok, err := s.Restore()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, device, got)

	require.NoError(t, s.Put(oidc))
	got, _, err = s.Restore()
	require.NoError(t, err)
	require.Equal(t, oidc, got)

	require.NoError(t, s.Put(federated))
	got, _, err = s.Restore()
	require.NoError(t, err)
	require.Equal(t, federated, got)

	require.NoError(t, s.Put(local))
	got, _, err = s.Restore()
	require.NoError(t, err)
	require.Equal(t, local, got)
}

func TestClear(t *testing.T) {
	t.Parallel()
	s, path := newTestStore(t)

	require.NoError(t, s.Put(domain.Principal{ID: "a", Role: domain.RoleUser, Provenance: domain.ProvenanceLocal}))
	require.NoError(t, s.Put(domain.Principal{ID: "b", Role: domain.RoleUser, Provenance: domain.ProvenanceOIDC}))

	require.NoError(t, s.Clear())
	_, ok, err := s.Restore()
	require.NoError(t, err)
	require.False(t, ok)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))

	// Clearing twice is fine.
	require.NoError(t, s.Clear())
}

func TestCorruptFileForcesReauthentication(t *testing.T) {
	t.Parallel()
	s, path := newTestStore(t)

	require.NoError(t, os.WriteFile(path, []byte("{ not json"), 0o600))

	_, ok, err := s.Restore()
	require.NoError(t, err)
	require.False(t, ok)

	// Writes still work after corruption.
	p := domain.Principal{ID: "a", Role: domain.RoleUser, Provenance: domain.ProvenanceLocal}
	require.NoError(t, s.Put(p))
	got, ok, err := s.Restore()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, p, got)
}

func TestSurvivesProcessRestart(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "session.json")

	first := New(path)
	p := domain.Principal{ID: "acct-1", Username: "alice", Role: domain.RoleAdmin, Provenance: domain.ProvenanceLocal}
	require.NoError(t, first.Put(p))

	// A fresh Store over the same file sees the record.
	second := New(path)
	got, ok, err := second.Restore()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, p, got)
}
