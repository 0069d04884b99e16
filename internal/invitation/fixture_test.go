package invitation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fkhayef/bankroll/internal/group"
	"github.com/fkhayef/bankroll/internal/invitation"
	"github.com/fkhayef/bankroll/internal/notification"
	"github.com/fkhayef/bankroll/internal/store/gormstore"
	"github.com/fkhayef/bankroll/internal/store/gormstore/gormstoretest"
	"github.com/fkhayef/bankroll/internal/user"
)

var errProviderDown = errors.New("provider unavailable")

type fakeDelivery struct {
	mu   sync.Mutex
	sent []string
	fail map[string]bool
}

func (d *fakeDelivery) SendInvite(_ context.Context, ch notification.Channel, recipient string, _ notification.Payload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail[recipient] {
		return errProviderDown
	}
	d.sent = append(d.sent, string(ch)+":"+recipient)
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	accepted []int64
	declined []int64
}

func (n *fakeNotifier) NotifyInviteAccepted(_ context.Context, inviterID int64, _ notification.Payload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.accepted = append(n.accepted, inviterID)
}

func (n *fakeNotifier) NotifyInviteDeclined(_ context.Context, inviterID int64, _ notification.Payload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.declined = append(n.declined, inviterID)
}

type fixture struct {
	store    *gormstore.Store
	groups   *group.Service
	users    *user.Service
	delivery *fakeDelivery
	notifier *fakeNotifier
	issuer   *invitation.Issuer
	resolver *invitation.Resolver

	now   time.Time
	group *group.Group
	owner *user.User
	bob   *user.User
	carol *user.User
	eve   *user.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		store:    gormstoretest.New(t),
		delivery: &fakeDelivery{fail: map[string]bool{}},
		notifier: &fakeNotifier{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	f.groups = group.NewService(f.store, group.WithClock(clock))
	f.users = user.NewService(f.store)

	cfg := invitation.Config{BaseURL: "https://bankroll.test/", BcryptCost: bcrypt.MinCost}
	f.issuer = invitation.NewIssuer(f.store, f.groups, f.users, f.delivery, cfg, invitation.WithClock(clock))
	f.resolver = invitation.NewResolver(f.store, f.groups, f.users, f.notifier, invitation.WithClock(clock))

	f.owner = gormstoretest.CreateUser(t, f.store, "owner", "owner@example.com")
	f.bob = gormstoretest.CreateUser(t, f.store, "bob", "bob@example.com", "+15550001111")
	f.carol = gormstoretest.CreateUser(t, f.store, "carol", "carol@example.com")
	f.eve = gormstoretest.CreateUser(t, f.store, "eve", "eve@example.com")

	g, err := f.groups.Create(ctx, f.owner.ID, &group.CreateGroupRequest{Name: "Ski chalet"})
	require.NoError(t, err)
	f.group = g
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) status(t *testing.T, id int64) invitation.Status {
	t.Helper()

	inv, err := f.store.GetInvitation(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, inv)
	return inv.Status
}

func (f *fixture) isMember(t *testing.T, userID int64) bool {
	t.Helper()

	ok, err := f.groups.IsActiveMember(context.Background(), f.group.ID, userID)
	require.NoError(t, err)
	return ok
}
