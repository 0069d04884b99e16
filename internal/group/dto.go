package group

import "time"

// CreateGroupRequest represents the request to create a new group
type CreateGroupRequest struct {
	Name        string     `json:"name" validate:"required,min=1,max=100"`
	Emoji       *string    `json:"emoji,omitempty"`
	Description *string    `json:"description,omitempty"`
	Visibility  Visibility `json:"visibility"`
}

// UpdateGroupRequest represents the request to update a group
type UpdateGroupRequest struct {
	Name        *string     `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Emoji       *string     `json:"emoji,omitempty"`
	Description *string     `json:"description,omitempty"`
	Visibility  *Visibility `json:"visibility,omitempty"`
}

// AddMemberRequest represents the request to invite an existing user to a group
type AddMemberRequest struct {
	UserID int64 `json:"user_id" validate:"required"`
}

// UpdateMemberRequest represents the request to change a member's role
type UpdateMemberRequest struct {
	Role MemberRole `json:"role"`
}

// TransferOwnershipRequest names the member who becomes the new owner
type TransferOwnershipRequest struct {
	UserID int64 `json:"user_id"`
}

// GroupResponse represents the response for a group
type GroupResponse struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Emoji       *string           `json:"emoji,omitempty"`
	Description *string           `json:"description,omitempty"`
	OwnerID     int64             `json:"owner_id"`
	Visibility  Visibility        `json:"visibility"`
	CreatedAt   string            `json:"created_at"`
	Members     []*MemberResponse `json:"members,omitempty"`
}

// MemberResponse represents a member in a group response
type MemberResponse struct {
	UserID    int64        `json:"user_id"`
	Username  string       `json:"username,omitempty"`
	Email     string       `json:"email,omitempty"`
	Status    MemberStatus `json:"status"`
	Role      MemberRole   `json:"role"`
	JoinedAt  string       `json:"joined_at"`
	InvitedBy *int64       `json:"invited_by,omitempty"`
}

// ToResponse converts a Group model to a GroupResponse DTO
func (g *Group) ToResponse() *GroupResponse {
	return &GroupResponse{
		ID:          g.ID,
		Name:        g.Name,
		Emoji:       g.Emoji,
		Description: g.Description,
		OwnerID:     g.OwnerID,
		Visibility:  g.Visibility,
		CreatedAt:   g.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ToResponse converts a GroupMember model to a MemberResponse DTO
func (m *GroupMember) ToResponse() *MemberResponse {
	return &MemberResponse{
		UserID:    m.UserID,
		Username:  m.Username,
		Email:     m.Email,
		Status:    m.Status,
		Role:      m.Role,
		JoinedAt:  m.JoinedAt.UTC().Format(time.RFC3339),
		InvitedBy: m.InvitedBy,
	}
}
