package gormstore

import (
	"time"

	"github.com/fkhayef/bankroll/internal/group"
	"github.com/fkhayef/bankroll/internal/invitation"
	"github.com/fkhayef/bankroll/internal/joinrequest"
	"github.com/fkhayef/bankroll/internal/notification"
	"github.com/fkhayef/bankroll/internal/user"
)

type userRow struct {
	ID        int64   `gorm:"primaryKey"`
	Username  string  `gorm:"size:50;not null"`
	Email     string  `gorm:"size:255;not null;uniqueIndex"`
	Phone     *string `gorm:"size:20;index"`
	AvatarURL *string
	CreatedAt time.Time
}

func (userRow) TableName() string { return "users" }

func (r *userRow) toUser() *user.User {
	return &user.User{
		ID:        r.ID,
		Username:  r.Username,
		Email:     r.Email,
		Phone:     r.Phone,
		AvatarURL: r.AvatarURL,
		CreatedAt: r.CreatedAt,
	}
}

type groupRow struct {
	ID          int64  `gorm:"primaryKey"`
	Name        string `gorm:"size:100;not null"`
	Emoji       *string
	Description *string
	OwnerID     int64  `gorm:"not null;index"`
	Visibility  string `gorm:"size:10;not null"`
	IsActive    bool   `gorm:"not null"`
	CreatedAt   time.Time
}

func (groupRow) TableName() string { return "groups" }

func (r *groupRow) toGroup() *group.Group {
	return &group.Group{
		ID:          r.ID,
		Name:        r.Name,
		Emoji:       r.Emoji,
		Description: r.Description,
		OwnerID:     r.OwnerID,
		Visibility:  group.Visibility(r.Visibility),
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
	}
}

type memberRow struct {
	ID         int64  `gorm:"primaryKey"`
	GroupID    int64  `gorm:"not null;uniqueIndex:idx_group_members_pair"`
	UserID     int64  `gorm:"not null;uniqueIndex:idx_group_members_pair"`
	Status     string `gorm:"size:10;not null"`
	Role       string `gorm:"size:10;not null"`
	JoinedAt   time.Time
	InvitedBy  *int64
	InvitedAt  *time.Time
	LastActive *time.Time
}

func (memberRow) TableName() string { return "group_members" }

// memberView is a membership row joined with its user
type memberView struct {
	ID         int64
	GroupID    int64
	UserID     int64
	Status     string
	Role       string
	JoinedAt   time.Time
	InvitedBy  *int64
	InvitedAt  *time.Time
	LastActive *time.Time
	Username   string
	Email      string
}

func (v *memberView) toMember() *group.GroupMember {
	return &group.GroupMember{
		ID:         v.ID,
		GroupID:    v.GroupID,
		UserID:     v.UserID,
		Status:     group.MemberStatus(v.Status),
		Role:       group.MemberRole(v.Role),
		JoinedAt:   v.JoinedAt,
		InvitedBy:  v.InvitedBy,
		InvitedAt:  v.InvitedAt,
		LastActive: v.LastActive,
		Username:   v.Username,
		Email:      v.Email,
	}
}

type invitationRow struct {
	ID           int64  `gorm:"primaryKey"`
	GroupID      int64  `gorm:"not null;index:idx_invitations_lookup"`
	InviterID    int64  `gorm:"not null"`
	Kind         string `gorm:"size:10;not null;index:idx_invitations_lookup"`
	Invitee      string `gorm:"size:255;not null;index:idx_invitations_lookup"`
	Token        string `gorm:"size:64;not null;uniqueIndex"`
	PasswordHash *string
	Status       string `gorm:"size:10;not null;index:idx_invitations_lookup"`
	Message      *string
	ExpiresAt    time.Time `gorm:"not null"`
	CreatedAt    time.Time
	AcceptedAt   *time.Time
	AcceptedBy   *int64
	DeclinedAt   *time.Time
	CancelledAt  *time.Time
}

func (invitationRow) TableName() string { return "invitations" }

func (r *invitationRow) toInvitation() *invitation.Invitation {
	return &invitation.Invitation{
		ID:           r.ID,
		GroupID:      r.GroupID,
		InviterID:    r.InviterID,
		Kind:         invitation.Kind(r.Kind),
		Invitee:      r.Invitee,
		Token:        r.Token,
		PasswordHash: r.PasswordHash,
		Status:       invitation.Status(r.Status),
		Message:      r.Message,
		ExpiresAt:    r.ExpiresAt,
		CreatedAt:    r.CreatedAt,
		AcceptedAt:   r.AcceptedAt,
		AcceptedBy:   r.AcceptedBy,
		DeclinedAt:   r.DeclinedAt,
		CancelledAt:  r.CancelledAt,
	}
}

type joinRequestRow struct {
	ID          int64 `gorm:"primaryKey"`
	GroupID     int64 `gorm:"not null;index"`
	UserID      int64 `gorm:"not null"`
	Message     *string
	Status      string `gorm:"size:10;not null"`
	RequestedAt time.Time
	ResolvedBy  *int64
	ResolvedAt  *time.Time
}

func (joinRequestRow) TableName() string { return "join_requests" }

type joinRequestView struct {
	joinRequestRow `gorm:"embedded"`
	Username       string
}

func (v *joinRequestView) toJoinRequest() *joinrequest.JoinRequest {
	return &joinrequest.JoinRequest{
		ID:          v.ID,
		GroupID:     v.GroupID,
		UserID:      v.UserID,
		Message:     v.Message,
		Status:      joinrequest.Status(v.Status),
		RequestedAt: v.RequestedAt,
		ResolvedBy:  v.ResolvedBy,
		ResolvedAt:  v.ResolvedAt,
		Username:    v.Username,
	}
}

type notificationRow struct {
	ID          int64   `gorm:"primaryKey"`
	RecipientID int64   `gorm:"not null;index"`
	GroupID     *int64  `gorm:"index"`
	Message     string  `gorm:"not null"`
	IsRead      bool    `gorm:"not null"`
	EntityType  *string `gorm:"size:32"`
	EntityID    *int64
	CreatedAt   time.Time
}

func (notificationRow) TableName() string { return "notifications" }

func (r *notificationRow) toNotification() *notification.Notification {
	n := &notification.Notification{
		ID:          r.ID,
		RecipientID: r.RecipientID,
		GroupID:     r.GroupID,
		Message:     r.Message,
		IsRead:      r.IsRead,
		CreatedAt:   r.CreatedAt,
	}
	if r.EntityType != nil && r.EntityID != nil {
		n.Entity = &notification.EntityRef{Type: notification.EntityType(*r.EntityType), ID: *r.EntityID}
	}
	return n
}

type preferencesRow struct {
	UserID       int64 `gorm:"primaryKey;autoIncrement:false"`
	EmailEnabled bool  `gorm:"not null"`
	SMSEnabled   bool  `gorm:"column:sms_enabled;not null"`
	PushEnabled  bool  `gorm:"not null"`
	InAppEnabled bool  `gorm:"not null"`
	UpdatedAt    time.Time
}

func (preferencesRow) TableName() string { return "notification_preferences" }

func (r *preferencesRow) toPreferences() *notification.Preferences {
	return &notification.Preferences{
		UserID:       r.UserID,
		EmailEnabled: r.EmailEnabled,
		SMSEnabled:   r.SMSEnabled,
		PushEnabled:  r.PushEnabled,
		InAppEnabled: r.InAppEnabled,
		UpdatedAt:    r.UpdatedAt,
	}
}

type walletRow struct {
	GroupID int64   `gorm:"primaryKey;autoIncrement:false"`
	UserID  int64   `gorm:"primaryKey;autoIncrement:false"`
	Balance float64 `gorm:"type:numeric(12,2);not null"`
}

func (walletRow) TableName() string { return "wallet_balances" }
