package invitation

import "time"

// Kind is the delivery channel an invitation was issued for
type Kind string

const (
	KindEmail Kind = "email"
	KindSMS   Kind = "sms"
	KindLink  Kind = "link"
)

// Status represents the lifecycle state of an invitation
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Invitation is an offer to join a group, redeemable once with its token
type Invitation struct {
	ID           int64      `json:"id"`
	GroupID      int64      `json:"group_id"`
	InviterID    int64      `json:"inviter_id"`
	Kind         Kind       `json:"kind"`
	Invitee      string     `json:"invitee,omitempty"`
	Token        string     `json:"-"`
	PasswordHash *string    `json:"-"`
	Status       Status     `json:"status"`
	Message      *string    `json:"message,omitempty"`
	ExpiresAt    time.Time  `json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy   *int64     `json:"accepted_by,omitempty"`
	DeclinedAt   *time.Time `json:"declined_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
}

// ExpiredAt reports whether the invitation is past its expiry at now. An
// invitation is still usable at the exact expiry instant.
func (i *Invitation) ExpiredAt(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// PasswordProtected reports whether accepting requires a password
func (i *Invitation) PasswordProtected() bool {
	return i.PasswordHash != nil && *i.PasswordHash != ""
}

// Transition describes a status change. At stamps the column matching the
// new status; moving back to pending clears the acceptance.
type Transition struct {
	Status     Status
	At         time.Time
	AcceptedBy *int64
}
