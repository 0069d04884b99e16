package invitation

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fkhayef/bankroll/internal/apperr"
	"github.com/fkhayef/bankroll/internal/group"
	"github.com/fkhayef/bankroll/internal/metrics"
	"github.com/fkhayef/bankroll/internal/notification"
	"github.com/fkhayef/bankroll/internal/user"
)

// Common errors
var (
	ErrInvitationNotFound = fmt.Errorf("invitation %w", apperr.ErrNotFound)
	ErrInvitationExpired  = fmt.Errorf("invitation %w", apperr.ErrExpired)
	ErrAlreadyResolved    = fmt.Errorf("invitation %w", apperr.ErrAlreadyResolved)
	ErrAlreadyMember      = apperr.ErrAlreadyMember
	ErrAlreadyInvited     = apperr.ErrAlreadyInvited
	ErrInvalidIdentifier  = apperr.ErrInvalidIdentifier
	ErrInvalidPassword    = apperr.ErrInvalidPassword
	ErrIdentityMismatch   = apperr.ErrIdentityMismatch
	ErrNotAuthorized      = fmt.Errorf("invitation: %w", apperr.ErrUnauthorized)
	ErrLinkNotDeclinable  = fmt.Errorf("link invitations cannot be declined: %w", apperr.ErrInvalidInput)
	ErrUnsupportedKind    = fmt.Errorf("unsupported invitation kind: %w", apperr.ErrInvalidInput)
	ErrNotResendable      = fmt.Errorf("only pending email and sms invitations can be resent: %w", apperr.ErrInvalidInput)
	ErrTokenGeneration    = errors.New("failed to generate invitation token")
)

// Store is the persistence port for invitations. Lookups return (nil, nil)
// when no row matches.
type Store interface {
	CreateInvitation(ctx context.Context, inv *Invitation) (*Invitation, error)
	GetInvitation(ctx context.Context, id int64) (*Invitation, error)
	GetInvitationByToken(ctx context.Context, token string) (*Invitation, error)
	// FindPendingInvitation returns the pending invitation for an invitee, if any
	FindPendingInvitation(ctx context.Context, groupID int64, kind Kind, invitee string) (*Invitation, error)
	// ListInvitations filters by status unless status is empty
	ListInvitations(ctx context.Context, groupID int64, status Status) ([]*Invitation, error)
	// TransitionInvitation applies to only if the invitation is in status from.
	// It returns (nil, nil) when another request resolved it first.
	TransitionInvitation(ctx context.Context, id int64, from Status, to Transition) (*Invitation, error)
	// ExpirePending flips every pending invitation past its expiry
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

// Ledger is the slice of the membership ledger invitations depend on
type Ledger interface {
	GetByID(ctx context.Context, id int64) (*group.Group, error)
	RequireRole(ctx context.Context, groupID, userID int64, roles ...group.MemberRole) (*group.GroupMember, error)
	IsActiveMember(ctx context.Context, groupID, userID int64) (bool, error)
	AddMember(ctx context.Context, groupID, userID int64, role group.MemberRole) (*group.GroupMember, error)
}

// Directory looks up users by id and contact details
type Directory interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByPhone(ctx context.Context, phone string) (*user.User, error)
}

// Delivery sends an invitation to its recipient
type Delivery interface {
	SendInvite(ctx context.Context, ch notification.Channel, recipient string, p notification.Payload) error
}

// Notifier tells inviters how their invitations ended
type Notifier interface {
	NotifyInviteAccepted(ctx context.Context, inviterID int64, p notification.Payload)
	NotifyInviteDeclined(ctx context.Context, inviterID int64, p notification.Payload)
}

// Config controls expiry, hashing and link building
type Config struct {
	TTL        time.Duration
	LinkTTL    time.Duration
	BcryptCost int
	BaseURL    string
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 7 * 24 * time.Hour
	}
	if c.LinkTTL <= 0 {
		c.LinkTTL = 7 * 24 * time.Hour
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 10
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c
}

// LinkFor returns the URL an invitee opens to redeem token
func (c Config) LinkFor(token string) string {
	return c.BaseURL + "/invite/" + token
}

// Option configures an Issuer or Resolver
type Option func(*base)

func WithLogger(l *zap.Logger) Option { return func(b *base) { b.log = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(b *base) { b.metrics = m } }
func WithClock(now func() time.Time) Option { return func(b *base) { b.now = now } }

type base struct {
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func newBase(opts []Option) base {
	b := base{log: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) clock() time.Time {
	return b.now().UTC()
}

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{7,14}$`)
)

// NormalizeEmail lowercases and validates an email address
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return "", ErrInvalidIdentifier
	}
	return email, nil
}

// NormalizePhone strips formatting and validates a phone number
func NormalizePhone(phone string) (string, error) {
	phone = user.NormalizePhone(phone)
	if !phonePattern.MatchString(phone) {
		return "", ErrInvalidIdentifier
	}
	return phone, nil
}

func normalize(kind Kind, identifier string) (string, error) {
	switch kind {
	case KindEmail:
		return NormalizeEmail(identifier)
	case KindSMS:
		return NormalizePhone(identifier)
	}
	return "", ErrUnsupportedKind
}

// newToken returns 32 random bytes, URL-safe encoded
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func channelFor(kind Kind) notification.Channel {
	if kind == KindSMS {
		return notification.ChannelSMS
	}
	return notification.ChannelEmail
}
