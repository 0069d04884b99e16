package gormstore

import (
	"context"
	"fmt"

	"github.com/fkhayef/bankroll/internal/user"
)

// CreateUser inserts a new user
func (s *Store) CreateUser(ctx context.Context, req *user.CreateUserRequest) (*user.User, error) {
	row := &userRow{
		Username:  req.Username,
		Email:     req.Email,
		Phone:     req.Phone,
		AvatarURL: req.AvatarURL,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		if isDuplicate(err) {
			return nil, user.ErrEmailAlreadyInUse
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return row.toUser(), nil
}

// GetUser retrieves a user by their ID
func (s *Store) GetUser(ctx context.Context, id int64) (*user.User, error) {
	return s.findUser(ctx, "get user", "id = ?", id)
}

// GetUserByEmail retrieves a user by their email, ignoring case
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return s.findUser(ctx, "get user by email", "lower(email) = lower(?)", email)
}

// GetUserByPhone retrieves a user by their normalized phone number
func (s *Store) GetUserByPhone(ctx context.Context, phone string) (*user.User, error) {
	return s.findUser(ctx, "get user by phone", "phone = ?", phone)
}

func (s *Store) findUser(ctx context.Context, what, cond string, arg any) (*user.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where(cond, arg).First(&row).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to %s: %w", what, err)
	}
	return row.toUser(), nil
}

// ListUsers retrieves users with pagination
func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]*user.User, int, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&userRow{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	var rows []userRow
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]*user.User, len(rows))
	for i := range rows {
		users[i] = rows[i].toUser()
	}
	return users, int(total), nil
}

// UpdateUser modifies the fields of req that are set
func (s *Store) UpdateUser(ctx context.Context, id int64, req *user.UpdateUserRequest) (*user.User, error) {
	updates := map[string]any{}
	if req.Username != nil {
		updates["username"] = *req.Username
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.AvatarURL != nil {
		updates["avatar_url"] = *req.AvatarURL
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update user: %w", err)
		}
	}
	return s.GetUser(ctx, id)
}

// DeleteUser removes a user
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&userRow{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return user.ErrUserNotFound
	}
	return nil
}
