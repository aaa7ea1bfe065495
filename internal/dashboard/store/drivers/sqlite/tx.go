package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/store"
)

// storeTx adapts an open *sql.Tx to the store.Tx interface.
type storeTx struct {
	tx *sql.Tx
}

func (t *storeTx) Accounts() store.Accounts { return &accountsRepo{q: t.tx} }
func (t *storeTx) FederatedCredentials() store.FederatedCredentials {
	return &federatedCredentialsRepo{q: t.tx}
}
func (t *storeTx) FederatedProfiles() store.FederatedProfiles {
	return &federatedProfilesRepo{q: t.tx}
}

func (t *storeTx) Commit() error   { return t.tx.Commit() }
func (t *storeTx) Rollback() error { return t.tx.Rollback() }

// Nested transactions are not supported; stop them at the type level rather
// than letting SQLite error at runtime.
func (t *storeTx) Tx(ctx context.Context) (store.Tx, error) {
	return nil, errors.New("sqlite: nested transactions are not supported")
}

func (t *storeTx) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return errors.New("sqlite: nested transactions are not supported")
}

func (t *storeTx) ApplyMigrations() error {
	return errors.New("sqlite: migrations cannot run inside a transaction")
}

func (t *storeTx) Ping(ctx context.Context) error { return nil }
func (t *storeTx) Close() error                   { return nil }
