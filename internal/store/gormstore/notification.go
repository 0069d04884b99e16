package gormstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fkhayef/bankroll/internal/notification"
)

// CreateNotification appends an entry to a user's feed
func (s *Store) CreateNotification(ctx context.Context, e *notification.Entry) (*notification.Notification, error) {
	row := &notificationRow{
		RecipientID: e.RecipientID,
		Message:     e.Message,
	}
	if e.GroupID != 0 {
		row.GroupID = &e.GroupID
	}
	if e.Entity != nil {
		entityType := string(e.Entity.Type)
		row.EntityType = &entityType
		row.EntityID = &e.Entity.ID
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	return row.toNotification(), nil
}

// GetNotification retrieves a notification by its ID
func (s *Store) GetNotification(ctx context.Context, id int64) (*notification.Notification, error) {
	var row notificationRow
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return row.toNotification(), nil
}

// feed scopes q to a recipient's entries matching f
func feed(q *gorm.DB, recipientID int64, f notification.Filter) *gorm.DB {
	q = q.Model(&notificationRow{}).Where("recipient_id = ?", recipientID)
	if f.UnreadOnly {
		q = q.Where("is_read = ?", false)
	}
	if f.GroupID != 0 {
		q = q.Where("group_id = ?", f.GroupID)
	}
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", string(f.EntityType))
	}
	return q
}

// ListNotifications retrieves a page of a user's feed, newest first
func (s *Store) ListNotifications(ctx context.Context, recipientID int64, f notification.Filter, limit, offset int) ([]*notification.Notification, int, error) {
	q := feed(s.db.WithContext(ctx), recipientID, f).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	var rows []notificationRow
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}

	notifications := make([]*notification.Notification, len(rows))
	for i := range rows {
		notifications[i] = rows[i].toNotification()
	}
	return notifications, int(total), nil
}

// MarkNotificationRead marks a notification as read
func (s *Store) MarkNotificationRead(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).Model(&notificationRow{}).Where("id = ?", id).Update("is_read", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	return nil
}

// MarkNotificationsRead marks a user's unread entries matching f as read
func (s *Store) MarkNotificationsRead(ctx context.Context, recipientID int64, f notification.Filter) (int, error) {
	f.UnreadOnly = true
	res := feed(s.db.WithContext(ctx), recipientID, f).Update("is_read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark notifications as read: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// CountUnreadNotifications returns the number of unread notifications of a user
func (s *Store) CountUnreadNotifications(ctx context.Context, recipientID int64) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&notificationRow{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return int(count), nil
}

// GetPreferences retrieves a user's notification preferences
func (s *Store) GetPreferences(ctx context.Context, userID int64) (*notification.Preferences, error) {
	var row preferencesRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get notification preferences: %w", err)
	}
	return row.toPreferences(), nil
}

// UpsertPreferences stores a user's notification preferences
func (s *Store) UpsertPreferences(ctx context.Context, prefs *notification.Preferences) (*notification.Preferences, error) {
	row := &preferencesRow{
		UserID:       prefs.UserID,
		EmailEnabled: prefs.EmailEnabled,
		SMSEnabled:   prefs.SMSEnabled,
		PushEnabled:  prefs.PushEnabled,
		InAppEnabled: prefs.InAppEnabled,
		UpdatedAt:    time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email_enabled", "sms_enabled", "push_enabled", "in_app_enabled", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to save notification preferences: %w", err)
	}
	return row.toPreferences(), nil
}
