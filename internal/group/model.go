package group

import "time"

// Visibility controls how users can join a group
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is a known visibility
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// MemberStatus represents the state of a user's membership row
type MemberStatus string

const (
	MemberStatusOwner   MemberStatus = "owner"
	MemberStatusAdmin   MemberStatus = "admin"
	MemberStatusMember  MemberStatus = "member"
	MemberStatusInvited MemberStatus = "invited"
	MemberStatusPending MemberStatus = "pending" // reserved; join requests are tracked separately
	MemberStatusRemoved MemberStatus = "removed"
)

// IsActive reports whether the status grants membership
func (s MemberStatus) IsActive() bool {
	switch s {
	case MemberStatusOwner, MemberStatusAdmin, MemberStatusMember:
		return true
	}
	return false
}

// MemberRole represents the role of a group member
type MemberRole string

const (
	MemberRoleOwner  MemberRole = "owner"
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

// Assignable reports whether the role can be granted through AddMember or
// UpdateRole. Ownership only moves through TransferOwnership.
func (r MemberRole) Assignable() bool {
	return r == MemberRoleAdmin || r == MemberRoleMember
}

// CanManage reports whether the role may manage members and invitations
func (r MemberRole) CanManage() bool {
	return r == MemberRoleOwner || r == MemberRoleAdmin
}

// ActiveStatus is the status an active member with this role carries
func (r MemberRole) ActiveStatus() MemberStatus {
	return MemberStatus(r)
}

// Group represents a group in the system
type Group struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Emoji       *string    `json:"emoji,omitempty"`
	Description *string    `json:"description,omitempty"`
	OwnerID     int64      `json:"owner_id"`
	Visibility  Visibility `json:"visibility"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsPublic reports whether users may join without an invitation
func (g *Group) IsPublic() bool {
	return g.Visibility == VisibilityPublic
}

// GroupMember represents a user's membership in a group
type GroupMember struct {
	ID         int64        `json:"id"`
	GroupID    int64        `json:"group_id"`
	UserID     int64        `json:"user_id"`
	Status     MemberStatus `json:"status"`
	Role       MemberRole   `json:"role"`
	JoinedAt   time.Time    `json:"joined_at"`
	InvitedBy  *int64       `json:"invited_by,omitempty"`
	InvitedAt  *time.Time   `json:"invited_at,omitempty"`
	LastActive *time.Time   `json:"last_active,omitempty"`

	// Populated from JOIN
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// IsActive reports whether the row grants membership
func (m *GroupMember) IsActive() bool {
	return m.Status.IsActive()
}
