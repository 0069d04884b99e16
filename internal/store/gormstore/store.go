// Package gormstore implements every repository port on GORM, so the
// service can run on Postgres through GORM or on an embedded SQLite file.
package gormstore

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/fkhayef/bankroll/internal/group"
	"github.com/fkhayef/bankroll/internal/invitation"
	"github.com/fkhayef/bankroll/internal/joinrequest"
	"github.com/fkhayef/bankroll/internal/notification"
	"github.com/fkhayef/bankroll/internal/user"
)

// Store is a GORM-backed implementation of the repository ports
type Store struct {
	db *gorm.DB
}

var (
	_ user.Store         = (*Store)(nil)
	_ group.Store        = (*Store)(nil)
	_ invitation.Store   = (*Store)(nil)
	_ joinrequest.Store  = (*Store)(nil)
	_ notification.Store = (*Store)(nil)
	_ group.WalletSeeder = (*Store)(nil)
)

// errNotApplied aborts a transaction whose conditional update matched nothing
var errNotApplied = errors.New("conditional update matched no rows")

// New creates a store on db. Open db with TranslateError so unique
// violations surface as gorm.ErrDuplicatedKey.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the tables and the partial indexes AutoMigrate
// cannot express
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&userRow{},
		&groupRow{},
		&memberRow{},
		&invitationRow{},
		&joinRequestRow{},
		&notificationRow{},
		&preferencesRow{},
		&walletRow{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS group_members_one_owner ON group_members (group_id) WHERE status = 'owner'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS join_requests_one_pending ON join_requests (group_id, user_id) WHERE status = 'pending'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS invitations_one_pending ON invitations (group_id, kind, invitee) WHERE status = 'pending' AND kind <> 'link'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower ON users (lower(email))`,
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
