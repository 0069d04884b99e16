package invitation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fkhayef/bankroll/internal/apperr"
	"github.com/fkhayef/bankroll/internal/group"
	"github.com/fkhayef/bankroll/internal/notification"
	"github.com/fkhayef/bankroll/internal/user"
)

// Issuer creates invitations and hands them to the dispatcher
type Issuer struct {
	base
	store    Store
	ledger   Ledger
	users    Directory
	delivery Delivery
	cfg      Config
}

// NewIssuer creates a new invitation issuer
func NewIssuer(store Store, ledger Ledger, users Directory, delivery Delivery, cfg Config, opts ...Option) *Issuer {
	return &Issuer{
		base:     newBase(opts),
		store:    store,
		ledger:   ledger,
		users:    users,
		delivery: delivery,
		cfg:      cfg.withDefaults(),
	}
}

// IssueEmailInvite invites an email address to a group
func (s *Issuer) IssueEmailInvite(ctx context.Context, groupID, inviterID int64, email string, message *string) (*Issued, error) {
	return s.issueSingle(ctx, groupID, inviterID, KindEmail, email, message)
}

// IssueSMSInvite invites a phone number to a group
func (s *Issuer) IssueSMSInvite(ctx context.Context, groupID, inviterID int64, phone string, message *string) (*Issued, error) {
	return s.issueSingle(ctx, groupID, inviterID, KindSMS, phone, message)
}

func (s *Issuer) issueSingle(ctx context.Context, groupID, inviterID int64, kind Kind, identifier string, message *string) (*Issued, error) {
	g, err := s.authorize(ctx, groupID, inviterID)
	if err != nil {
		return nil, err
	}
	invitee, err := normalize(kind, identifier)
	if err != nil {
		return nil, err
	}
	if err := s.checkDuplicate(ctx, groupID, kind, invitee); err != nil {
		return nil, err
	}

	inv, err := s.create(ctx, groupID, inviterID, kind, invitee, message, nil, s.cfg.TTL)
	if err != nil {
		return nil, err
	}

	issued := &Issued{Invitation: inv, Link: s.cfg.LinkFor(inv.Token)}
	issued.Delivered = s.deliver(ctx, g, inviterID, issued) == nil
	return issued, nil
}

// IssueLinkInvite creates a shareable link. An empty password leaves the
// link unprotected and a zero TTL uses the configured default.
func (s *Issuer) IssueLinkInvite(ctx context.Context, groupID, inviterID int64, opts LinkOptions) (*Issued, error) {
	if _, err := s.authorize(ctx, groupID, inviterID); err != nil {
		return nil, err
	}

	var hash *string
	if opts.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(opts.Password), s.cfg.BcryptCost)
		if err != nil {
			return nil, err
		}
		h := string(hashed)
		hash = &h
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = s.cfg.LinkTTL
	}

	inv, err := s.create(ctx, groupID, inviterID, KindLink, "", nil, hash, ttl)
	if err != nil {
		return nil, err
	}
	return &Issued{Invitation: inv, Link: s.cfg.LinkFor(inv.Token)}, nil
}

// IssueBulkInvites invites many recipients at once. Duplicates, including
// repeats inside the batch, are skipped; invalid identifiers and failed
// deliveries are counted as failed. Only authorization and missing group
// errors abort the batch.
func (s *Issuer) IssueBulkInvites(ctx context.Context, groupID, inviterID int64, recipients []Recipient, message *string) (*BulkResult, error) {
	g, err := s.authorize(ctx, groupID, inviterID)
	if err != nil {
		return nil, err
	}

	result := &BulkResult{Total: len(recipients), Results: make([]*BulkItem, 0, len(recipients))}
	seen := make(map[string]bool, len(recipients))

	for _, rcpt := range recipients {
		item := &BulkItem{Kind: rcpt.Kind, Identifier: rcpt.Identifier}
		result.Results = append(result.Results, item)

		invitee, err := normalize(rcpt.Kind, rcpt.Identifier)
		if err != nil {
			item.Outcome, item.Error = OutcomeFailed, err.Error()
			result.Failed++
			continue
		}
		item.Identifier = invitee

		key := string(rcpt.Kind) + ":" + invitee
		if seen[key] {
			item.Outcome, item.Error = OutcomeSkipped, "duplicate recipient in batch"
			result.Skipped++
			continue
		}
		seen[key] = true

		if err := s.checkDuplicate(ctx, groupID, rcpt.Kind, invitee); err != nil {
			if errors.Is(err, apperr.ErrAlreadyMember) || errors.Is(err, apperr.ErrAlreadyInvited) {
				item.Outcome, item.Error = OutcomeSkipped, err.Error()
				result.Skipped++
				continue
			}
			return nil, err
		}

		inv, err := s.create(ctx, groupID, inviterID, rcpt.Kind, invitee, message, nil, s.cfg.TTL)
		if err != nil {
			if errors.Is(err, apperr.ErrAlreadyInvited) {
				item.Outcome, item.Error = OutcomeSkipped, err.Error()
				result.Skipped++
				continue
			}
			if apperr.IsFatal(err) {
				return nil, err
			}
			item.Outcome, item.Error = OutcomeFailed, err.Error()
			result.Failed++
			continue
		}
		item.InvitationID = &inv.ID

		issued := &Issued{Invitation: inv, Link: s.cfg.LinkFor(inv.Token)}
		if err := s.deliver(ctx, g, inviterID, issued); err != nil {
			item.Outcome, item.Error = OutcomeFailed, err.Error()
			result.Failed++
			continue
		}
		item.Outcome = OutcomeSent
		result.Successful++
	}

	s.log.Info("bulk invitations issued",
		zap.Int64("group_id", groupID),
		zap.Int("total", result.Total),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// Resend delivers a pending email or SMS invitation again
func (s *Issuer) Resend(ctx context.Context, invitationID, actingUserID int64) (*Issued, error) {
	inv, err := s.store.GetInvitation(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvitationNotFound
	}
	g, err := s.authorize(ctx, inv.GroupID, actingUserID)
	if err != nil {
		return nil, err
	}
	if inv.Kind == KindLink || inv.Status != StatusPending {
		return nil, ErrNotResendable
	}
	if inv.ExpiredAt(s.clock()) {
		return nil, ErrInvitationExpired
	}

	issued := &Issued{Invitation: inv, Link: s.cfg.LinkFor(inv.Token)}
	issued.Delivered = s.deliver(ctx, g, inv.InviterID, issued) == nil
	return issued, nil
}

// List returns a group's invitations, optionally filtered by status.
// Owner or admin only.
func (s *Issuer) List(ctx context.Context, groupID, actingUserID int64, status Status) ([]*Invitation, error) {
	if _, err := s.authorize(ctx, groupID, actingUserID); err != nil {
		return nil, err
	}
	return s.store.ListInvitations(ctx, groupID, status)
}

func (s *Issuer) authorize(ctx context.Context, groupID, inviterID int64) (*group.Group, error) {
	g, err := s.ledger.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.RequireRole(ctx, groupID, inviterID, group.MemberRoleOwner, group.MemberRoleAdmin); err != nil {
		return nil, err
	}
	return g, nil
}

// checkDuplicate rejects invitees who already belong to the group or hold a
// live invitation. A pending invitation past its expiry is expired on the way.
func (s *Issuer) checkDuplicate(ctx context.Context, groupID int64, kind Kind, invitee string) error {
	var (
		u   *user.User
		err error
	)
	switch kind {
	case KindEmail:
		u, err = s.users.GetByEmail(ctx, invitee)
	case KindSMS:
		u, err = s.users.GetByPhone(ctx, invitee)
	}
	if err != nil && !errors.Is(err, user.ErrUserNotFound) {
		return err
	}
	if u != nil {
		member, err := s.ledger.IsActiveMember(ctx, groupID, u.ID)
		if err != nil {
			return err
		}
		if member {
			return ErrAlreadyMember
		}
	}

	pending, err := s.store.FindPendingInvitation(ctx, groupID, kind, invitee)
	if err != nil {
		return err
	}
	if pending == nil {
		return nil
	}

	now := s.clock()
	if !pending.ExpiredAt(now) {
		return ErrAlreadyInvited
	}
	if _, err := s.store.TransitionInvitation(ctx, pending.ID, StatusPending, Transition{Status: StatusExpired, At: now}); err != nil {
		return err
	}
	s.metrics.InvitationResolved(string(StatusExpired))
	return nil
}

func (s *Issuer) create(ctx context.Context, groupID, inviterID int64, kind Kind, invitee string, message, hash *string, ttl time.Duration) (*Invitation, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	now := s.clock()
	inv, err := s.store.CreateInvitation(ctx, &Invitation{
		GroupID:      groupID,
		InviterID:    inviterID,
		Kind:         kind,
		Invitee:      invitee,
		Token:        token,
		PasswordHash: hash,
		Status:       StatusPending,
		Message:      message,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	s.metrics.InvitationIssued(string(kind))
	s.log.Info("invitation issued",
		zap.Int64("invitation_id", inv.ID),
		zap.Int64("group_id", groupID),
		zap.Int64("inviter_id", inviterID),
		zap.String("kind", string(kind)),
	)
	return inv, nil
}

// deliver sends the invitation. A failure leaves the invitation pending.
func (s *Issuer) deliver(ctx context.Context, g *group.Group, inviterID int64, issued *Issued) error {
	inv := issued.Invitation
	expires := inv.ExpiresAt

	p := notification.Payload{
		GroupID:    g.ID,
		GroupName:  g.Name,
		ActorID:    inviterID,
		Link:       issued.Link,
		ExpiresAt:  &expires,
		EntityType: notification.EntityInvitation,
		EntityID:   inv.ID,
	}
	if inv.Message != nil {
		p.Message = *inv.Message
	}
	if inviter, err := s.users.GetByID(ctx, inviterID); err == nil {
		p.ActorName = inviter.Username
	}

	err := s.delivery.SendInvite(ctx, channelFor(inv.Kind), inv.Invitee, p)
	if err != nil {
		s.log.Warn("invitation left pending after failed delivery",
			zap.Int64("invitation_id", inv.ID),
			zap.String("invitation_kind", string(inv.Kind)),
			zap.Error(err),
		)
	}
	return err
}
