package invitation

import "time"

// EmailInviteRequest represents the request to invite someone by email
type EmailInviteRequest struct {
	GroupID int64   `json:"group_id"`
	Email   string  `json:"email"`
	Message *string `json:"message,omitempty"`
}

// SMSInviteRequest represents the request to invite someone by text message
type SMSInviteRequest struct {
	GroupID int64   `json:"group_id"`
	Phone   string  `json:"phone"`
	Message *string `json:"message,omitempty"`
}

// LinkInviteRequest represents the request to create a shareable link
type LinkInviteRequest struct {
	GroupID  int64   `json:"group_id"`
	Password *string `json:"password,omitempty"`
	TTLHours int     `json:"ttl_hours,omitempty"`
}

// LinkOptions configures a link invitation
type LinkOptions struct {
	Password string
	TTL      time.Duration
}

// Recipient is one entry of a bulk invitation
type Recipient struct {
	Kind       Kind   `json:"kind"`
	Identifier string `json:"identifier"`
}

// BulkInviteRequest represents the request to invite many recipients at once
type BulkInviteRequest struct {
	GroupID    int64       `json:"group_id"`
	Recipients []Recipient `json:"recipients"`
	Message    *string     `json:"message,omitempty"`
}

// Bulk outcomes
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// BulkItem is the outcome for one recipient of a bulk invitation
type BulkItem struct {
	Kind         Kind   `json:"kind"`
	Identifier   string `json:"identifier"`
	Outcome      string `json:"outcome"`
	InvitationID *int64 `json:"invitation_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// BulkResult summarizes a bulk invitation
type BulkResult struct {
	Total      int         `json:"total"`
	Successful int         `json:"successful"`
	Failed     int         `json:"failed"`
	Skipped    int         `json:"skipped"`
	Results    []*BulkItem `json:"results"`
}

// Issued is the outcome of a single invitation
type Issued struct {
	Invitation *Invitation
	Link       string
	Delivered  bool
}

// AcceptRequest represents the request to accept an invitation
type AcceptRequest struct {
	Password *string `json:"password,omitempty"`
}

// VerifyPasswordRequest represents a password pre-check
type VerifyPasswordRequest struct {
	Password string `json:"password"`
}

// InvitationResponse represents the response for an invitation
type InvitationResponse struct {
	ID                int64   `json:"id"`
	GroupID           int64   `json:"group_id"`
	InviterID         int64   `json:"inviter_id"`
	Kind              Kind    `json:"kind"`
	Invitee           string  `json:"invitee,omitempty"`
	Status            Status  `json:"status"`
	Message           *string `json:"message,omitempty"`
	PasswordProtected bool    `json:"password_protected"`
	ExpiresAt         string  `json:"expires_at"`
	CreatedAt         string  `json:"created_at"`
	Link              string  `json:"link,omitempty"`
	Delivered         *bool   `json:"delivered,omitempty"`
}

// Preview is what an invitation landing page shows before accepting
type Preview struct {
	GroupID           int64   `json:"group_id"`
	GroupName         string  `json:"group_name"`
	GroupEmoji        *string `json:"group_emoji,omitempty"`
	InviterName       string  `json:"inviter_name,omitempty"`
	Kind              Kind    `json:"kind"`
	Status            Status  `json:"status"`
	Message           *string `json:"message,omitempty"`
	PasswordProtected bool    `json:"password_protected"`
	ExpiresAt         string  `json:"expires_at"`
}

// ToResponse converts an Invitation model to an InvitationResponse DTO
func (i *Invitation) ToResponse() *InvitationResponse {
	return &InvitationResponse{
		ID:                i.ID,
		GroupID:           i.GroupID,
		InviterID:         i.InviterID,
		Kind:              i.Kind,
		Invitee:           i.Invitee,
		Status:            i.Status,
		Message:           i.Message,
		PasswordProtected: i.PasswordProtected(),
		ExpiresAt:         timestamp(i.ExpiresAt),
		CreatedAt:         timestamp(i.CreatedAt),
	}
}

// ToResponse converts the outcome of an issue call, exposing the link only
// for link invitations
func (r *Issued) ToResponse() *InvitationResponse {
	resp := r.Invitation.ToResponse()
	if r.Invitation.Kind == KindLink {
		resp.Link = r.Link
	} else {
		delivered := r.Delivered
		resp.Delivered = &delivered
	}
	return resp
}

// timestamp renders t as RFC 3339 in UTC
func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
