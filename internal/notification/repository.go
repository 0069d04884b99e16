package notification

import (
	"context"
	"database/sql"
	"fmt"
)

// Repository is the Postgres implementation of Store
type Repository struct {
	db *sql.DB
}

var _ Store = (*Repository)(nil)

// NewRepository creates a new notification repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const notificationColumns = `id, recipient_id, group_id, message, is_read, entity_type, entity_id, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(row scanner) (*Notification, error) {
	var (
		n          Notification
		groupID    sql.NullInt64
		entityType sql.NullString
		entityID   sql.NullInt64
	)
	if err := row.Scan(&n.ID, &n.RecipientID, &groupID, &n.Message, &n.IsRead, &entityType, &entityID, &n.CreatedAt); err != nil {
		return nil, err
	}
	if groupID.Valid {
		n.GroupID = &groupID.Int64
	}
	if entityType.Valid && entityID.Valid {
		n.Entity = &EntityRef{Type: EntityType(entityType.String), ID: entityID.Int64}
	}
	return &n, nil
}

// CreateNotification appends an entry to a user's feed
func (r *Repository) CreateNotification(ctx context.Context, e *Entry) (*Notification, error) {
	var (
		groupID    sql.NullInt64
		entityType sql.NullString
		entityID   sql.NullInt64
	)
	if e.GroupID != 0 {
		groupID = sql.NullInt64{Int64: e.GroupID, Valid: true}
	}
	if e.Entity != nil {
		entityType = sql.NullString{String: string(e.Entity.Type), Valid: true}
		entityID = sql.NullInt64{Int64: e.Entity.ID, Valid: true}
	}

	query := `
		INSERT INTO notifications (recipient_id, group_id, message, entity_type, entity_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + notificationColumns

	n, err := scanNotification(r.db.QueryRowContext(ctx, query, e.RecipientID, groupID, e.Message, entityType, entityID))
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	return n, nil
}

// GetNotification retrieves a notification by its ID
func (r *Repository) GetNotification(ctx context.Context, id int64) (*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	n, err := scanNotification(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// feedWhere renders the WHERE clause selecting a recipient's entries under f
func feedWhere(recipientID int64, f Filter) (string, []any) {
	where := "recipient_id = $1"
	args := []any{recipientID}
	if f.UnreadOnly {
		where += " AND is_read = FALSE"
	}
	if f.GroupID != 0 {
		args = append(args, f.GroupID)
		where += fmt.Sprintf(" AND group_id = $%d", len(args))
	}
	if f.EntityType != "" {
		args = append(args, string(f.EntityType))
		where += fmt.Sprintf(" AND entity_type = $%d", len(args))
	}
	return where, args
}

// ListNotifications retrieves a page of a user's feed, newest first
func (r *Repository) ListNotifications(ctx context.Context, recipientID int64, f Filter, limit, offset int) ([]*Notification, int, error) {
	where, args := feedWhere(recipientID, f)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		notificationColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}

	return notifications, total, nil
}

// MarkNotificationRead marks a notification as read
func (r *Repository) MarkNotificationRead(ctx context.Context, id int64) error {
	query := `UPDATE notifications SET is_read = TRUE WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	return nil
}

// MarkNotificationsRead marks a user's unread entries matching f as read
func (r *Repository) MarkNotificationsRead(ctx context.Context, recipientID int64, f Filter) (int, error) {
	f.UnreadOnly = true
	where, args := feedWhere(recipientID, f)

	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications as read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications as read: %w", err)
	}
	return int(n), nil
}

// CountUnreadNotifications returns the number of unread notifications of a user
func (r *Repository) CountUnreadNotifications(ctx context.Context, recipientID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = false`
	if err := r.db.QueryRowContext(ctx, query, recipientID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// GetPreferences retrieves a user's notification preferences
func (r *Repository) GetPreferences(ctx context.Context, userID int64) (*Preferences, error) {
	query := `
		SELECT user_id, email_enabled, sms_enabled, push_enabled, in_app_enabled, updated_at
		FROM notification_preferences
		WHERE user_id = $1
	`

	prefs := &Preferences{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&prefs.UserID,
		&prefs.EmailEnabled,
		&prefs.SMSEnabled,
		&prefs.PushEnabled,
		&prefs.InAppEnabled,
		&prefs.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get notification preferences: %w", err)
	}

	return prefs, nil
}

// UpsertPreferences stores a user's notification preferences
func (r *Repository) UpsertPreferences(ctx context.Context, prefs *Preferences) (*Preferences, error) {
	query := `
		INSERT INTO notification_preferences (user_id, email_enabled, sms_enabled, push_enabled, in_app_enabled, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET email_enabled = EXCLUDED.email_enabled,
		    sms_enabled = EXCLUDED.sms_enabled,
		    push_enabled = EXCLUDED.push_enabled,
		    in_app_enabled = EXCLUDED.in_app_enabled,
		    updated_at = EXCLUDED.updated_at
		RETURNING user_id, email_enabled, sms_enabled, push_enabled, in_app_enabled, updated_at
	`

	saved := &Preferences{}
	err := r.db.QueryRowContext(ctx, query,
		prefs.UserID,
		prefs.EmailEnabled,
		prefs.SMSEnabled,
		prefs.PushEnabled,
		prefs.InAppEnabled,
	).Scan(
		&saved.UserID,
		&saved.EmailEnabled,
		&saved.SMSEnabled,
		&saved.PushEnabled,
		&saved.InAppEnabled,
		&saved.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save notification preferences: %w", err)
	}

	return saved, nil
}
