// Package gormstoretest provides an in-memory store for tests
package gormstoretest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fkhayef/bankroll/internal/database"
	"github.com/fkhayef/bankroll/internal/store/gormstore"
	"github.com/fkhayef/bankroll/internal/user"
)

// New returns a migrated store on a private in-memory SQLite database
func New(t *testing.T) *gormstore.Store {
	t.Helper()

	db, err := database.OpenGorm("sqlite", "", ":memory:")
	require.NoError(t, err)
	require.NoError(t, gormstore.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gormstore.New(db)
}

// CreateUser inserts a user with the given name, email and optional phone
func CreateUser(t *testing.T, s *gormstore.Store, username, email string, phone ...string) *user.User {
	t.Helper()

	req := &user.CreateUserRequest{Username: username, Email: email}
	if len(phone) > 0 {
		req.Phone = &phone[0]
	}
	u, err := s.CreateUser(context.Background(), req)
	require.NoError(t, err)
	return u
}
