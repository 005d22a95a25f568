package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var banWidgetUserSQL = `UPDATE "widget_users" AS "wu"
SET
	"is_banned" = TRUE,
	"banned_at" = ?,
	"banned_reason" = ?
WHERE
	"wu"."deleted_at" IS NULL
AND (
	"wu"."id" = ?
) RETURNING *;`

var unbanWidgetUserSQL = `UPDATE "widget_users" AS "wu"
SET
	"is_banned" = FALSE,
	"banned_at" = NULL,
	"banned_reason" = ''
WHERE
	"wu"."deleted_at" IS NULL
AND (
	"wu"."id" = ?
) RETURNING *;`

type WidgetUsers interface {
	repository.Repository[*WidgetUser]

	GetByExternalID(ctx context.Context, orgID uuid.UUID, externalID string) (*WidgetUser, error)
	GetByExternalIDTx(ctx context.Context, tx bun.IDB, orgID uuid.UUID, externalID string) (*WidgetUser, error)
	GetByEmail(ctx context.Context, orgID uuid.UUID, email string) (*WidgetUser, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, orgID uuid.UUID, email string) (*WidgetUser, error)
	FindByIdentity(ctx context.Context, orgID uuid.UUID, externalID, email string) (*WidgetUser, error)
	FindByIdentityTx(ctx context.Context, tx bun.IDB, orgID uuid.UUID, externalID, email string) (*WidgetUser, error)

	Create(ctx context.Context, record *WidgetUser, criteria ...repository.InsertCriteria) (*WidgetUser, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *WidgetUser, criteria ...repository.InsertCriteria) (*WidgetUser, error)

	IncrementCounter(ctx context.Context, id uuid.UUID, counter Counter, seenAt time.Time) error
	IncrementCounterTx(ctx context.Context, tx bun.IDB, id uuid.UUID, counter Counter, seenAt time.Time) error

	SetBanned(ctx context.Context, id uuid.UUID, banned bool, reason string, bannedAt time.Time) (*WidgetUser, error)
	SetBannedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, banned bool, reason string, bannedAt time.Time) (*WidgetUser, error)
}

type widgetUsers struct {
	repository.Repository[*WidgetUser]
	db *bun.DB
}

var (
	_ WidgetUsers                        = (*widgetUsers)(nil)
	_ repository.Repository[*WidgetUser] = (*widgetUsers)(nil)
)

func NewWidgetUsersRepository(db *bun.DB) WidgetUsers {
	repo := repository.NewRepository[*WidgetUser](db, repository.ModelHandlers[*WidgetUser]{
		NewRecord: func() *WidgetUser { return &WidgetUser{} },
		GetID: func(u *WidgetUser) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *WidgetUser, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &widgetUsers{
		Repository: repo,
		db:         db,
	}
}

func (a *widgetUsers) GetByExternalID(ctx context.Context, orgID uuid.UUID, externalID string) (*WidgetUser, error) {
	return a.GetByExternalIDTx(ctx, a.db, orgID, externalID)
}

func (a *widgetUsers) GetByExternalIDTx(ctx context.Context, tx bun.IDB, orgID uuid.UUID, externalID string) (*WidgetUser, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"org_id": orgID.String(),
				"reason": "empty external id",
			})
	}

	record := &WidgetUser{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.org_id = ?", orgID).
		Where("?TableAlias.external_id = ?", externalID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"org_id":      orgID.String(),
					"external_id": externalID,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *widgetUsers) GetByEmail(ctx context.Context, orgID uuid.UUID, email string) (*WidgetUser, error) {
	return a.GetByEmailTx(ctx, a.db, orgID, email)
}

// GetByEmailTx resolves by case-insensitive email within the org.
func (a *widgetUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, orgID uuid.UUID, email string) (*WidgetUser, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"org_id": orgID.String(),
				"reason": "empty email",
			})
	}

	record := &WidgetUser{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.org_id = ?", orgID).
		Where("lower(?TableAlias.email) = lower(?)", email).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"org_id": orgID.String(),
					"email":  email,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *widgetUsers) FindByIdentity(ctx context.Context, orgID uuid.UUID, externalID, email string) (*WidgetUser, error) {
	return a.FindByIdentityTx(ctx, a.db, orgID, externalID, email)
}

// FindByIdentityTx tries the stable external id first, then the email.
// Both keys must be tried before callers may create a new record, otherwise
// the same person can end up with two rows in the same org.
func (a *widgetUsers) FindByIdentityTx(ctx context.Context, tx bun.IDB, orgID uuid.UUID, externalID, email string) (*WidgetUser, error) {
	if externalID != "" {
		record, err := a.GetByExternalIDTx(ctx, tx, orgID, externalID)
		if err == nil {
			return record, nil
		}
		if !repository.IsRecordNotFound(err) {
			return nil, err
		}
	}

	if email != "" {
		record, err := a.GetByEmailTx(ctx, tx, orgID, email)
		if err == nil {
			return record, nil
		}
		if !repository.IsRecordNotFound(err) {
			return nil, err
		}
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"org_id":      orgID.String(),
			"external_id": externalID,
			"email":       email,
		})
}

func (a *widgetUsers) Create(ctx context.Context, record *WidgetUser, criteria ...repository.InsertCriteria) (*WidgetUser, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *widgetUsers) CreateTx(ctx context.Context, tx bun.IDB, record *WidgetUser, criteria ...repository.InsertCriteria) (*WidgetUser, error) {
	prepareWidgetUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *widgetUsers) IncrementCounter(ctx context.Context, id uuid.UUID, counter Counter, seenAt time.Time) error {
	return a.IncrementCounterTx(ctx, a.db, id, counter, seenAt)
}

// IncrementCounterTx bumps exactly one counter in place and refreshes
// last_seen_at in the same statement, so concurrent bumps never lose updates.
func (a *widgetUsers) IncrementCounterTx(ctx context.Context, tx bun.IDB, id uuid.UUID, counter Counter, seenAt time.Time) error {
	column, ok := counter.column()
	if !ok {
		return goerrors.New("unknown counter", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"counter": string(counter)})
	}

	_, err := tx.NewRaw(fmt.Sprintf(`
		UPDATE "widget_users" AS "wu"
		SET
			"%s" = "wu"."%s" + 1,
			"last_seen_at" = ?
		WHERE
			("wu".id = ?)
			AND "wu"."deleted_at" IS NULL;
	`, column, column), seenAt, id).Exec(ctx)

	return err
}

func (a *widgetUsers) SetBanned(ctx context.Context, id uuid.UUID, banned bool, reason string, bannedAt time.Time) (*WidgetUser, error) {
	return a.SetBannedTx(ctx, a.db, id, banned, reason, bannedAt)
}

// SetBannedTx toggles the soft ban flag. The statement is idempotent; banning
// a banned user or unbanning a clean one is a no-op update.
func (a *widgetUsers) SetBannedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, banned bool, reason string, bannedAt time.Time) (*WidgetUser, error) {
	var res []*WidgetUser
	var err error

	if banned {
		res, err = a.Repository.RawTx(ctx, tx, banWidgetUserSQL, bannedAt, reason, id.String())
	} else {
		res, err = a.Repository.RawTx(ctx, tx, unbanWidgetUserSQL, id.String())
	}

	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return res[0], nil
}

func prepareWidgetUserDefaults(record *WidgetUser) {
	if record == nil {
		return
	}

	record.EnsureSource()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
