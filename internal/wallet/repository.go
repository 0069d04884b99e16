// Package wallet seeds the balance row every new group member starts with.
// Balances themselves are maintained elsewhere.
package wallet

import (
	"context"
	"database/sql"
	"fmt"
)

// Repository handles wallet balance persistence
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new wallet repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SeedBalance creates a zero balance for a member unless one already exists
func (r *Repository) SeedBalance(ctx context.Context, groupID, userID int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO wallet_balances (group_id, user_id, balance)
		VALUES ($1, $2, 0)
		ON CONFLICT (group_id, user_id) DO NOTHING
	`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to seed wallet balance: %w", err)
	}
	return nil
}
