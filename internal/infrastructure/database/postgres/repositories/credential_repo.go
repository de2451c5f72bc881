package repositories

import (
	"context"
	"database/sql"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/credential"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/database/postgres"
	"github.com/ejschoeb2/accountancyauto-sub001/pkg/errors"
)

type credentialRepo struct {
	exec queryExecutor
}

// NewCredentialRepository returns the accounting-connection credential store.
func NewCredentialRepository(conn *postgres.Connection) credential.Repository {
	return &credentialRepo{exec: conn.DB()}
}

func (r *credentialRepo) Get(ctx context.Context, connectionID string) (*credential.Credential, error) {
	var c credential.Credential
	err := r.exec.QueryRowContext(ctx, `
		SELECT connection_id, provider, access_token, refresh_token, expires_at, updated_at
		FROM accounting_credentials WHERE connection_id = $1`, connectionID,
	).Scan(&c.ConnectionID, &c.Provider, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeCredentialNotFound, "credential not found").WithDetail(connectionID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get credential")
	}
	return &c, nil
}

func (r *credentialRepo) Save(ctx context.Context, c *credential.Credential) error {
	err := r.exec.QueryRowContext(ctx, `
		INSERT INTO accounting_credentials (connection_id, provider, access_token, refresh_token, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (connection_id) DO UPDATE SET
			provider = EXCLUDED.provider,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
		RETURNING updated_at`,
		c.ConnectionID, c.Provider, c.AccessToken, c.RefreshToken, c.ExpiresAt,
	).Scan(&c.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save credential")
	}
	return nil
}
