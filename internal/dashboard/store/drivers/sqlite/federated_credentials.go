package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"
	"github.com/opsdeskhq/opsdesk/internal/dashboard/store"
)

type federatedCredentialsRepo struct {
	q querier
}

const federatedCredentialColumns = `id, email, password_hash, role, is_active, created_at, updated_at`

func scanFederatedCredential(row *sql.Row) (domain.FederatedCredential, error) {
	var c domain.FederatedCredential
	err := row.Scan(&c.ID, &c.Email, &c.PasswordHash, &c.Role, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.FederatedCredential{}, mapNotFound(err)
	}
	return c, nil
}

func (r *federatedCredentialsRepo) GetActiveByEmail(ctx context.Context, email string) (domain.FederatedCredential, error) {
	return scanFederatedCredential(r.q.QueryRowContext(ctx,
		`SELECT `+federatedCredentialColumns+` FROM federated_credentials WHERE email = ? AND is_active = 1`, email))
}

func (r *federatedCredentialsRepo) GetByID(ctx context.Context, id string) (domain.FederatedCredential, error) {
	return scanFederatedCredential(r.q.QueryRowContext(ctx,
		`SELECT `+federatedCredentialColumns+` FROM federated_credentials WHERE id = ?`, id))
}

func (r *federatedCredentialsRepo) Create(ctx context.Context, c domain.FederatedCredential) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO federated_credentials (id, email, password_hash, role, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Email, c.PasswordHash, c.Role, c.IsActive, now, now,
	)
	return mapConflict(err)
}

func (r *federatedCredentialsRepo) List(ctx context.Context) ([]domain.FederatedCredential, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+federatedCredentialColumns+` FROM federated_credentials ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []domain.FederatedCredential
	for rows.Next() {
		var c domain.FederatedCredential
		if err := rows.Scan(&c.ID, &c.Email, &c.PasswordHash, &c.Role, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

func (r *federatedCredentialsRepo) Update(ctx context.Context, id, email string, role domain.Role, isActive bool) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE federated_credentials SET email = ?, role = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		email, role, isActive, time.Now().UTC(), id,
	)
	if err != nil {
		return mapConflict(err)
	}
	return requireRow(res)
}

func (r *federatedCredentialsRepo) UpdatePasswordHash(ctx context.Context, id, newHash string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE federated_credentials SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *federatedCredentialsRepo) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM federated_credentials WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// requireRow maps a zero-row update/delete to store.ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
