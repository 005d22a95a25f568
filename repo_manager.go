package identity

import (
	"context"
	"database/sql"
	"errors"
	"log"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	WidgetUsers() WidgetUsers
	TrustConfigs() TrustConfigs
}

type mngr struct {
	db           *bun.DB
	widgetUsers  WidgetUsers
	trustConfigs TrustConfigs
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:           db,
		widgetUsers:  NewWidgetUsersRepository(db),
		trustConfigs: NewTrustConfigsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.widgetUsers == nil {
		return errors.New("repository widgetUsers should be initialized")
	}

	if m.trustConfigs == nil {
		return errors.New("repository trustConfigs should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) WidgetUsers() WidgetUsers {
	return m.widgetUsers
}

func (m mngr) TrustConfigs() TrustConfigs {
	return m.trustConfigs
}
