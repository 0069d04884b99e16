package notification

import "time"

// Notification is an entry in a user's in-app feed
type Notification struct {
	ID          int64      `json:"id"`
	RecipientID int64      `json:"recipient_id"`
	GroupID     *int64     `json:"group_id,omitempty"`
	Message     string     `json:"message"`
	IsRead      bool       `json:"is_read"`
	Entity      *EntityRef `json:"entity,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// EntityType names the kind of record a feed entry points at
type EntityType string

const (
	EntityGroup       EntityType = "GROUP"
	EntityInvitation  EntityType = "INVITATION"
	EntityJoinRequest EntityType = "JOIN_REQUEST"
)

// Valid reports whether t is a known entity type
func (t EntityType) Valid() bool {
	switch t {
	case EntityGroup, EntityInvitation, EntityJoinRequest:
		return true
	}
	return false
}

// EntityRef points a feed entry at the record it is about
type EntityRef struct {
	Type EntityType `json:"type"`
	ID   int64      `json:"id"`
}

// Entry is a feed item waiting to be stored
type Entry struct {
	RecipientID int64
	GroupID     int64
	Message     string
	Entity      *EntityRef
}

// Filter narrows a feed listing or bulk read. Zero fields match everything.
type Filter struct {
	UnreadOnly bool
	GroupID    int64
	EntityType EntityType
}

// NotificationType represents the type of notification
type NotificationType string

const (
	NotificationTypeGroupInvite    NotificationType = "GROUP_INVITE"
	NotificationTypeInviteAccepted NotificationType = "INVITE_ACCEPTED"
	NotificationTypeInviteDeclined NotificationType = "INVITE_DECLINED"
	NotificationTypeJoinRequested  NotificationType = "JOIN_REQUESTED"
	NotificationTypeJoinApproved   NotificationType = "JOIN_APPROVED"
	NotificationTypeJoinRejected   NotificationType = "JOIN_REJECTED"
	NotificationTypeMemberJoined   NotificationType = "MEMBER_JOINED"
)

// Channel is a delivery medium
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
	ChannelInApp Channel = "in_app"
)

// Preferences are a user's per-channel opt-ins. Users without a stored row
// get DefaultPreferences.
type Preferences struct {
	UserID       int64     `json:"user_id"`
	EmailEnabled bool      `json:"email_enabled"`
	SMSEnabled   bool      `json:"sms_enabled"`
	PushEnabled  bool      `json:"push_enabled"`
	InAppEnabled bool      `json:"in_app_enabled"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DefaultPreferences enables every channel
func DefaultPreferences(userID int64) *Preferences {
	return &Preferences{
		UserID:       userID,
		EmailEnabled: true,
		SMSEnabled:   true,
		PushEnabled:  true,
		InAppEnabled: true,
	}
}

// Allows reports whether the user accepts notifications on ch
func (p *Preferences) Allows(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelSMS:
		return p.SMSEnabled
	case ChannelPush:
		return p.PushEnabled
	case ChannelInApp:
		return p.InAppEnabled
	}
	return false
}

// Payload describes the membership event a notification is about
type Payload struct {
	EventID    string
	GroupID    int64
	GroupName  string
	ActorID    int64
	ActorName  string
	Link       string
	Message    string
	ExpiresAt  *time.Time
	EntityType EntityType
	EntityID   int64
}
