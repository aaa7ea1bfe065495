package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"
)

type accountsRepo struct {
	q querier
}

const accountColumns = `id, username, password_hash, role, is_active, totp_secret, totp_enabled, created_at, updated_at`

func scanAccount(row *sql.Row) (domain.Account, error) {
	var (
		a          domain.Account
		totpSecret sql.NullString
	)
	err := row.Scan(
		&a.ID, &a.Username, &a.PasswordHash, &a.Role, &a.IsActive,
		&totpSecret, &a.TOTPEnabled, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	a.TOTPSecret = mapNullStringPtr(totpSecret)
	return a, nil
}

func (r *accountsRepo) GetAccountByID(ctx context.Context, id string) (domain.Account, error) {
	return scanAccount(r.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
}

func (r *accountsRepo) GetActiveAccountByUsername(ctx context.Context, username string) (domain.Account, error) {
	return scanAccount(r.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = ? AND is_active = 1`, username))
}

func (r *accountsRepo) CreateAccount(ctx context.Context, a domain.Account) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO accounts (id, username, password_hash, role, is_active, totp_enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		a.ID, a.Username, a.PasswordHash, a.Role, a.IsActive, now, now,
	)
	return mapConflict(err)
}

func (r *accountsRepo) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var (
			a          domain.Account
			totpSecret sql.NullString
		)
		if err := rows.Scan(
			&a.ID, &a.Username, &a.PasswordHash, &a.Role, &a.IsActive,
			&totpSecret, &a.TOTPEnabled, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		a.TOTPSecret = mapNullStringPtr(totpSecret)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *accountsRepo) UpdateAccount(ctx context.Context, id, username string, role domain.Role, isActive bool) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE accounts SET username = ?, role = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		username, role, isActive, time.Now().UTC(), id,
	)
	if err != nil {
		return mapConflict(err)
	}
	return requireRow(res)
}

func (r *accountsRepo) UpdatePasswordHash(ctx context.Context, id, newHash string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *accountsRepo) DeleteAccount(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *accountsRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func (r *accountsRepo) UpdateTOTPSecret(ctx context.Context, id, secret string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE accounts SET totp_secret = ?, updated_at = ? WHERE id = ?`,
		secret, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *accountsRepo) EnableTOTP(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE accounts SET totp_enabled = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *accountsRepo) DisableTOTP(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE accounts SET totp_enabled = 0, totp_secret = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}
