package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"
)

type federatedProfilesRepo struct {
	q querier
}

// Upsert is keyed on external_subject_id. The conflict path refreshes the
// mutable profile fields but leaves tenant_id and created_at from the
// original insert intact.
func (r *federatedProfilesRepo) Upsert(ctx context.Context, p domain.FederatedProfile) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO federated_profiles
		   (id, external_subject_id, email, display_name, tenant_id, access_token, refresh_token, token_expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (external_subject_id) DO UPDATE SET
		   email = excluded.email,
		   display_name = excluded.display_name,
		   access_token = excluded.access_token,
		   refresh_token = excluded.refresh_token,
		   token_expires_at = excluded.token_expires_at,
		   updated_at = excluded.updated_at`,
		p.ID, p.ExternalSubjectID, p.Email, p.DisplayName, p.TenantID,
		p.AccessToken, p.RefreshToken, mapOptionalTime(p.TokenExpiresAt), now, now,
	)
	return err
}

func (r *federatedProfilesRepo) GetByExternalSubjectID(ctx context.Context, subjectID string) (domain.FederatedProfile, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT id, external_subject_id, email, display_name, tenant_id, access_token, refresh_token, token_expires_at, created_at, updated_at
		 FROM federated_profiles WHERE external_subject_id = ?`, subjectID)

	var (
		p         domain.FederatedProfile
		expiresAt sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.ExternalSubjectID, &p.Email, &p.DisplayName, &p.TenantID,
		&p.AccessToken, &p.RefreshToken, &expiresAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.FederatedProfile{}, mapNotFound(err)
	}
	p.TokenExpiresAt = mapNullTimePtr(expiresAt)
	return p, nil
}
