package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var rotateSecretKeySQL = `UPDATE "org_trust_configs" AS "otc"
SET
	"secret_key" = ?
WHERE
	"otc"."deleted_at" IS NULL
AND (
	"otc"."org_id" = ?
) RETURNING *;`

// TrustConfigs stores per-organization trust configuration.
type TrustConfigs interface {
	repository.Repository[*OrgTrustConfig]

	GetByOrgID(ctx context.Context, orgID uuid.UUID) (*OrgTrustConfig, error)
	GetByOrgIDTx(ctx context.Context, tx bun.IDB, orgID uuid.UUID) (*OrgTrustConfig, error)

	// RotateSecretKey replaces the org signing secret with fresh random key
	// material. Every previously issued JWT-mode token stops verifying, by
	// design, since verification pins to the currently configured secret.
	RotateSecretKey(ctx context.Context, orgID uuid.UUID) (string, error)
	RotateSecretKeyTx(ctx context.Context, tx bun.IDB, orgID uuid.UUID) (string, error)
}

type trustConfigs struct {
	repository.Repository[*OrgTrustConfig]
	db *bun.DB
}

var (
	_ TrustConfigs                           = (*trustConfigs)(nil)
	_ repository.Repository[*OrgTrustConfig] = (*trustConfigs)(nil)
	_ TrustConfigProvider                    = (*trustConfigs)(nil)
)

func NewTrustConfigsRepository(db *bun.DB) TrustConfigs {
	repo := repository.NewRepository[*OrgTrustConfig](db, repository.ModelHandlers[*OrgTrustConfig]{
		NewRecord: func() *OrgTrustConfig { return &OrgTrustConfig{} },
		GetID: func(c *OrgTrustConfig) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *OrgTrustConfig, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
	})

	return &trustConfigs{
		Repository: repo,
		db:         db,
	}
}

// GetTrustConfig satisfies TrustConfigProvider.
func (a *trustConfigs) GetTrustConfig(ctx context.Context, orgID uuid.UUID) (*OrgTrustConfig, error) {
	return a.GetByOrgID(ctx, orgID)
}

func (a *trustConfigs) GetByOrgID(ctx context.Context, orgID uuid.UUID) (*OrgTrustConfig, error) {
	return a.GetByOrgIDTx(ctx, a.db, orgID)
}

func (a *trustConfigs) GetByOrgIDTx(ctx context.Context, tx bun.IDB, orgID uuid.UUID) (*OrgTrustConfig, error) {
	record := &OrgTrustConfig{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.org_id = ?", orgID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"org_id": orgID.String(),
				})
		}
		return nil, err
	}

	record.EnsureMode()
	return record, nil
}

func (a *trustConfigs) RotateSecretKey(ctx context.Context, orgID uuid.UUID) (string, error) {
	return a.RotateSecretKeyTx(ctx, a.db, orgID)
}

func (a *trustConfigs) RotateSecretKeyTx(ctx context.Context, tx bun.IDB, orgID uuid.UUID) (string, error) {
	secret, err := newSecretKey()
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate secret key")
	}

	res, err := a.Repository.RawTx(ctx, tx, rotateSecretKeySQL, secret, orgID.String())
	if err != nil {
		return "", err
	}

	if len(res) == 0 {
		return "", repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"org_id": orgID.String(),
			})
	}

	return secret, nil
}

func newSecretKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
