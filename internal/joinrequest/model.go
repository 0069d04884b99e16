package joinrequest

import "time"

// Status represents the lifecycle state of a join request
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// JoinRequest is a user's request to enter a private group
type JoinRequest struct {
	ID          int64      `json:"id"`
	GroupID     int64      `json:"group_id"`
	UserID      int64      `json:"user_id"`
	Message     *string    `json:"message,omitempty"`
	Status      Status     `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	ResolvedBy  *int64     `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`

	// Populated from JOIN
	Username string `json:"username,omitempty"`
}
