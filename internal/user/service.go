package user

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/fkhayef/bankroll/internal/apperr"
)

// Common errors
var (
	ErrUserNotFound      = fmt.Errorf("user %w", apperr.ErrNotFound)
	ErrEmailAlreadyInUse = fmt.Errorf("email %w", apperr.ErrAlreadyExists)
)

// Store is the persistence port for users. Lookups return (nil, nil) when
// no row matches.
type Store interface {
	CreateUser(ctx context.Context, req *CreateUserRequest) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByPhone(ctx context.Context, phone string) (*User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error)
	UpdateUser(ctx context.Context, id int64, req *UpdateUserRequest) (*User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// Service handles user business logic
type Service struct {
	store Store
}

// NewService creates a new user service with its store injected
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create creates a new user
func (s *Service) Create(ctx context.Context, req *CreateUserRequest) (*User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Phone != nil {
		phone := NormalizePhone(*req.Phone)
		req.Phone = &phone
	}
	if req.Username == "" || req.Email == "" {
		return nil, fmt.Errorf("username and email are required: %w", apperr.ErrInvalidInput)
	}

	// Check if email is already in use
	existing, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyInUse
	}

	return s.store.CreateUser(ctx, req)
}

// GetByID retrieves a user by their ID
func (s *Service) GetByID(ctx context.Context, id int64) (*User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// List retrieves all users with pagination
func (s *Service) List(ctx context.Context, page, perPage int) ([]*User, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.store.ListUsers(ctx, perPage, offset)
}

// Update modifies an existing user
func (s *Service) Update(ctx context.Context, id int64, req *UpdateUserRequest) (*User, error) {
	// Check if user exists
	existing, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrUserNotFound
	}

	if req.Phone != nil {
		phone := NormalizePhone(*req.Phone)
		req.Phone = &phone
	}

	return s.store.UpdateUser(ctx, id, req)
}

// Delete removes a user
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.DeleteUser(ctx, id)
}

// GetByEmail retrieves a user by email address
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// GetByPhone retrieves a user by phone number
func (s *Service) GetByPhone(ctx context.Context, phone string) (*User, error) {
	user, err := s.store.GetUserByPhone(ctx, NormalizePhone(phone))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// NormalizePhone strips spaces, dashes, dots and parentheses from a phone
// number, keeping a leading plus sign.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsDigit(r), r == '+':
			return r
		case unicode.IsSpace(r), r == '-', r == '.', r == '(', r == ')':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}
