package joinrequest

import (
	"time"

	"github.com/fkhayef/bankroll/internal/group"
)

// CreateJoinRequest represents the request body for asking to join a group
type CreateJoinRequest struct {
	GroupID int64   `json:"group_id"`
	Message *string `json:"message,omitempty"`
}

// ResolveRequest names the requester an admin is approving or rejecting
type ResolveRequest struct {
	GroupID int64 `json:"group_id"`
	UserID  int64 `json:"user_id"`
}

// Outcome is the result of RequestToJoin: a pending request for a private
// group, or the new membership for a public one
type Outcome struct {
	Request *JoinRequest
	Member  *group.GroupMember
}

// JoinRequestResponse represents the response for a join request
type JoinRequestResponse struct {
	ID          int64   `json:"id"`
	GroupID     int64   `json:"group_id"`
	UserID      int64   `json:"user_id"`
	Username    string  `json:"username,omitempty"`
	Message     *string `json:"message,omitempty"`
	Status      Status  `json:"status"`
	RequestedAt string  `json:"requested_at"`
	ResolvedBy  *int64  `json:"resolved_by,omitempty"`
	ResolvedAt  *string `json:"resolved_at,omitempty"`
}

// OutcomeResponse represents the response to a join attempt
type OutcomeResponse struct {
	Joined  bool                  `json:"joined"`
	Request *JoinRequestResponse  `json:"request,omitempty"`
	Member  *group.MemberResponse `json:"member,omitempty"`
}

// ToResponse converts a JoinRequest model to a JoinRequestResponse DTO
func (j *JoinRequest) ToResponse() *JoinRequestResponse {
	resp := &JoinRequestResponse{
		ID:          j.ID,
		GroupID:     j.GroupID,
		UserID:      j.UserID,
		Username:    j.Username,
		Message:     j.Message,
		Status:      j.Status,
		RequestedAt: j.RequestedAt.UTC().Format(time.RFC3339),
		ResolvedBy:  j.ResolvedBy,
	}
	if j.ResolvedAt != nil {
		resolved := j.ResolvedAt.UTC().Format(time.RFC3339)
		resp.ResolvedAt = &resolved
	}
	return resp
}

// ToResponse converts an Outcome to an OutcomeResponse DTO
func (o *Outcome) ToResponse() *OutcomeResponse {
	resp := &OutcomeResponse{Joined: o.Member != nil}
	if o.Request != nil {
		resp.Request = o.Request.ToResponse()
	}
	if o.Member != nil {
		resp.Member = o.Member.ToResponse()
	}
	return resp
}
