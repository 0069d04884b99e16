package invitation

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fkhayef/bankroll/internal/group"
	"github.com/fkhayef/bankroll/internal/notification"
	"github.com/fkhayef/bankroll/internal/user"
)

// Resolver redeems, declines, cancels and expires invitations. Every status
// change is a conditional update from pending, so a token can only ever be
// resolved once.
type Resolver struct {
	base
	store    Store
	ledger   Ledger
	users    Directory
	notifier Notifier
}

// NewResolver creates a new invitation resolver. notifier may be nil.
func NewResolver(store Store, ledger Ledger, users Directory, notifier Notifier, opts ...Option) *Resolver {
	return &Resolver{
		base:     newBase(opts),
		store:    store,
		ledger:   ledger,
		users:    users,
		notifier: notifier,
	}
}

// Accept redeems an invitation and makes the acting user a member. A wrong
// password or an existing membership leaves the invitation pending.
func (r *Resolver) Accept(ctx context.Context, token string, actingUserID int64, password *string) (*group.GroupMember, error) {
	inv, err := r.pending(ctx, token)
	if err != nil {
		return nil, err
	}

	if inv.PasswordProtected() {
		if password == nil || !checkPassword(inv, *password) {
			return nil, ErrInvalidPassword
		}
	}

	actor, err := r.users.GetByID(ctx, actingUserID)
	if err != nil {
		return nil, err
	}
	if !matchesInvitee(inv, actor) {
		return nil, ErrIdentityMismatch
	}

	member, err := r.ledger.IsActiveMember(ctx, inv.GroupID, actingUserID)
	if err != nil {
		return nil, err
	}
	if member {
		return nil, ErrAlreadyMember
	}

	claimed, err := r.store.TransitionInvitation(ctx, inv.ID, StatusPending, Transition{
		Status:     StatusAccepted,
		At:         r.clock(),
		AcceptedBy: &actingUserID,
	})
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		return nil, ErrAlreadyResolved
	}

	membership, err := r.ledger.AddMember(ctx, inv.GroupID, actingUserID, group.MemberRoleMember)
	if err != nil {
		// Give the token back so the invitee can retry
		if _, revertErr := r.store.TransitionInvitation(ctx, inv.ID, StatusAccepted, Transition{Status: StatusPending}); revertErr != nil {
			r.log.Error("failed to release invitation after membership error",
				zap.Int64("invitation_id", inv.ID),
				zap.Error(revertErr),
			)
		}
		return nil, err
	}

	r.metrics.InvitationResolved(string(StatusAccepted))
	r.log.Info("invitation accepted",
		zap.Int64("invitation_id", inv.ID),
		zap.Int64("group_id", inv.GroupID),
		zap.Int64("user_id", actingUserID),
	)
	r.notify(ctx, claimed, actor, true)
	return membership, nil
}

// Decline rejects an email or SMS invitation on behalf of its invitee
func (r *Resolver) Decline(ctx context.Context, token string, actingUserID int64) error {
	inv, err := r.pending(ctx, token)
	if err != nil {
		return err
	}
	if inv.Kind == KindLink {
		return ErrLinkNotDeclinable
	}

	actor, err := r.users.GetByID(ctx, actingUserID)
	if err != nil {
		return err
	}
	if !matchesInvitee(inv, actor) {
		return ErrIdentityMismatch
	}

	declined, err := r.store.TransitionInvitation(ctx, inv.ID, StatusPending, Transition{
		Status: StatusDeclined,
		At:     r.clock(),
	})
	if err != nil {
		return err
	}
	if declined == nil {
		return ErrAlreadyResolved
	}

	r.metrics.InvitationResolved(string(StatusDeclined))
	r.notify(ctx, declined, actor, false)
	return nil
}

// Cancel withdraws a pending invitation. Allowed for the inviter and for the
// group's owner and admins.
func (r *Resolver) Cancel(ctx context.Context, invitationID, actingUserID int64) (*Invitation, error) {
	inv, err := r.store.GetInvitation(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvitationNotFound
	}
	if inv.InviterID != actingUserID {
		if _, err := r.ledger.RequireRole(ctx, inv.GroupID, actingUserID, group.MemberRoleOwner, group.MemberRoleAdmin); err != nil {
			return nil, ErrNotAuthorized
		}
	}
	if inv.Status != StatusPending {
		return nil, ErrAlreadyResolved
	}

	cancelled, err := r.store.TransitionInvitation(ctx, inv.ID, StatusPending, Transition{
		Status: StatusCancelled,
		At:     r.clock(),
	})
	if err != nil {
		return nil, err
	}
	if cancelled == nil {
		return nil, ErrAlreadyResolved
	}

	r.metrics.InvitationResolved(string(StatusCancelled))
	return cancelled, nil
}

// VerifyPassword checks a password against a pending invitation without
// consuming it. Unprotected invitations always pass.
func (r *Resolver) VerifyPassword(ctx context.Context, token, password string) error {
	inv, err := r.pending(ctx, token)
	if err != nil {
		return err
	}
	if inv.PasswordProtected() && !checkPassword(inv, password) {
		return ErrInvalidPassword
	}
	return nil
}

// Preview describes an invitation for its landing page. Resolved and expired
// invitations are still described so the page can say why they can't be used.
func (r *Resolver) Preview(ctx context.Context, token string) (*Preview, error) {
	inv, err := r.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvitationNotFound
	}

	g, err := r.ledger.GetByID(ctx, inv.GroupID)
	if err != nil {
		return nil, err
	}

	status := inv.Status
	if status == StatusPending && inv.ExpiredAt(r.clock()) {
		status = StatusExpired
	}

	preview := &Preview{
		GroupID:           g.ID,
		GroupName:         g.Name,
		GroupEmoji:        g.Emoji,
		Kind:              inv.Kind,
		Status:            status,
		Message:           inv.Message,
		PasswordProtected: inv.PasswordProtected(),
		ExpiresAt:         timestamp(inv.ExpiresAt),
	}
	if inviter, err := r.users.GetByID(ctx, inv.InviterID); err == nil {
		preview.InviterName = inviter.Username
	}
	return preview, nil
}

// SweepExpired flips every overdue pending invitation to expired
func (r *Resolver) SweepExpired(ctx context.Context) (int64, error) {
	n, err := r.store.ExpirePending(ctx, r.clock())
	if err != nil {
		return 0, err
	}
	r.metrics.InvitationsExpired(n)
	if n > 0 {
		r.log.Info("expired invitations swept", zap.Int64("count", n))
	}
	return n, nil
}

// pending loads an invitation that can still change state. An overdue
// invitation is flipped to expired before ErrInvitationExpired is returned.
func (r *Resolver) pending(ctx context.Context, token string) (*Invitation, error) {
	if token == "" {
		return nil, ErrInvitationNotFound
	}
	inv, err := r.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvitationNotFound
	}

	switch inv.Status {
	case StatusPending:
	case StatusExpired:
		return nil, ErrInvitationExpired
	default:
		return nil, ErrAlreadyResolved
	}

	now := r.clock()
	if inv.ExpiredAt(now) {
		expired, err := r.store.TransitionInvitation(ctx, inv.ID, StatusPending, Transition{Status: StatusExpired, At: now})
		if err != nil {
			return nil, err
		}
		if expired != nil {
			r.metrics.InvitationResolved(string(StatusExpired))
		}
		return nil, ErrInvitationExpired
	}
	return inv, nil
}

func (r *Resolver) notify(ctx context.Context, inv *Invitation, actor *user.User, accepted bool) {
	if r.notifier == nil {
		return
	}

	p := notification.Payload{
		GroupID:    inv.GroupID,
		ActorID:    actor.ID,
		ActorName:  actor.Username,
		EntityType: notification.EntityInvitation,
		EntityID:   inv.ID,
	}
	if g, err := r.ledger.GetByID(ctx, inv.GroupID); err == nil {
		p.GroupName = g.Name
	}

	if accepted {
		r.notifier.NotifyInviteAccepted(ctx, inv.InviterID, p)
	} else {
		r.notifier.NotifyInviteDeclined(ctx, inv.InviterID, p)
	}
}

func checkPassword(inv *Invitation, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(*inv.PasswordHash), []byte(password))
	return err == nil
}

// matchesInvitee reports whether actor is the person an email or SMS
// invitation was addressed to. Link invitations match anyone.
func matchesInvitee(inv *Invitation, actor *user.User) bool {
	switch inv.Kind {
	case KindEmail:
		return strings.EqualFold(strings.TrimSpace(actor.Email), inv.Invitee)
	case KindSMS:
		if actor.Phone == nil {
			return false
		}
		phone, err := NormalizePhone(*actor.Phone)
		return err == nil && phone == inv.Invitee
	}
	return true
}
