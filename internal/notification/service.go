package notification

import (
	"context"
	"fmt"

	"github.com/fkhayef/bankroll/internal/apperr"
)

// Common errors
var (
	ErrNotificationNotFound = fmt.Errorf("notification %w", apperr.ErrNotFound)
	ErrNotRecipient         = fmt.Errorf("not the recipient of this notification: %w", apperr.ErrUnauthorized)
	ErrUnknownEntityType    = fmt.Errorf("unknown entity type: %w", apperr.ErrInvalidInput)
)

// Store is the persistence port for the in-app feed and preferences.
// Lookups return (nil, nil) when no row matches.
type Store interface {
	CreateNotification(ctx context.Context, e *Entry) (*Notification, error)
	GetNotification(ctx context.Context, id int64) (*Notification, error)
	ListNotifications(ctx context.Context, recipientID int64, f Filter, limit, offset int) ([]*Notification, int, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	// MarkNotificationsRead marks the recipient's unread entries matching f
	// and returns how many changed
	MarkNotificationsRead(ctx context.Context, recipientID int64, f Filter) (int, error)
	CountUnreadNotifications(ctx context.Context, recipientID int64) (int, error)
	GetPreferences(ctx context.Context, userID int64) (*Preferences, error)
	UpsertPreferences(ctx context.Context, prefs *Preferences) (*Preferences, error)
}

// Service handles the in-app notification feed and user preferences
type Service struct {
	store Store
}

// NewService creates a new notification service
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create stores a feed entry
func (s *Service) Create(ctx context.Context, e *Entry) (*Notification, error) {
	if e.Entity != nil && !e.Entity.Type.Valid() {
		return nil, ErrUnknownEntityType
	}
	return s.store.CreateNotification(ctx, e)
}

// GetByID retrieves a notification by its ID
func (s *Service) GetByID(ctx context.Context, id int64) (*Notification, error) {
	notification, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if notification == nil {
		return nil, ErrNotificationNotFound
	}
	return notification, nil
}

// List returns a page of the user's feed, newest first
func (s *Service) List(ctx context.Context, recipientID int64, f Filter, page, perPage int) ([]*Notification, int, error) {
	if f.EntityType != "" && !f.EntityType.Valid() {
		return nil, 0, ErrUnknownEntityType
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.store.ListNotifications(ctx, recipientID, f, perPage, offset)
}

// MarkAsRead marks a notification as read
func (s *Service) MarkAsRead(ctx context.Context, id, userID int64) error {
	notification, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if notification == nil {
		return ErrNotificationNotFound
	}
	if notification.RecipientID != userID {
		return ErrNotRecipient
	}

	return s.store.MarkNotificationRead(ctx, id)
}

// MarkAllAsRead marks the user's unread entries matching f as read, for
// example everything about one group, and returns how many changed
func (s *Service) MarkAllAsRead(ctx context.Context, userID int64, f Filter) (int, error) {
	if f.EntityType != "" && !f.EntityType.Valid() {
		return 0, ErrUnknownEntityType
	}
	f.UnreadOnly = true
	return s.store.MarkNotificationsRead(ctx, userID, f)
}

// GetUnreadCount returns the count of unread notifications
func (s *Service) GetUnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.store.CountUnreadNotifications(ctx, userID)
}

// GetPreferences returns the user's stored preferences or the defaults
func (s *Service) GetPreferences(ctx context.Context, userID int64) (*Preferences, error) {
	prefs, err := s.store.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	if prefs == nil {
		return DefaultPreferences(userID), nil
	}
	return prefs, nil
}

// UpdatePreferences applies a partial update on top of the current preferences
func (s *Service) UpdatePreferences(ctx context.Context, userID int64, req *UpdatePreferencesRequest) (*Preferences, error) {
	prefs, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.EmailEnabled != nil {
		prefs.EmailEnabled = *req.EmailEnabled
	}
	if req.SMSEnabled != nil {
		prefs.SMSEnabled = *req.SMSEnabled
	}
	if req.PushEnabled != nil {
		prefs.PushEnabled = *req.PushEnabled
	}
	if req.InAppEnabled != nil {
		prefs.InAppEnabled = *req.InAppEnabled
	}

	return s.store.UpsertPreferences(ctx, prefs)
}
