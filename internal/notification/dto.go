package notification

import "time"

// NotificationResponse represents a feed entry in API responses
type NotificationResponse struct {
	ID        int64      `json:"id"`
	GroupID   *int64     `json:"group_id,omitempty"`
	Message   string     `json:"message"`
	IsRead    bool       `json:"is_read"`
	Entity    *EntityRef `json:"entity,omitempty"`
	CreatedAt string     `json:"created_at"`
}

// ToResponse converts a Notification to a NotificationResponse
func (n *Notification) ToResponse() *NotificationResponse {
	return &NotificationResponse{
		ID:        n.ID,
		GroupID:   n.GroupID,
		Message:   n.Message,
		IsRead:    n.IsRead,
		Entity:    n.Entity,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// UnreadCountResponse represents the unread badge count
type UnreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}

// MarkedResponse reports how many entries a bulk read changed
type MarkedResponse struct {
	Marked int `json:"marked"`
}

// UpdatePreferencesRequest represents a partial preferences update
type UpdatePreferencesRequest struct {
	EmailEnabled *bool `json:"email_enabled,omitempty"`
	SMSEnabled   *bool `json:"sms_enabled,omitempty"`
	PushEnabled  *bool `json:"push_enabled,omitempty"`
	InAppEnabled *bool `json:"in_app_enabled,omitempty"`
}
