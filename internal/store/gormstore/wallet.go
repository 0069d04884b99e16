package gormstore

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"
)

// SeedBalance creates a zero balance for a member unless one already exists
func (s *Store) SeedBalance(ctx context.Context, groupID, userID int64) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&walletRow{GroupID: groupID, UserID: userID}).Error
	if err != nil {
		return fmt.Errorf("failed to seed wallet balance: %w", err)
	}
	return nil
}
