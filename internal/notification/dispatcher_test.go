package notification_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkhayef/bankroll/internal/notification"
	"github.com/fkhayef/bankroll/internal/store/gormstore"
	"github.com/fkhayef/bankroll/internal/store/gormstore/gormstoretest"
	"github.com/fkhayef/bankroll/internal/user"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []notification.Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg notification.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSender) recipients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var to []string
	for _, m := range s.msgs {
		to = append(to, m.To)
	}
	return to
}

type dispatcherFixture struct {
	store *gormstore.Store
	feed  *notification.Service
	email *recordingSender
	push  *recordingSender
	d     *notification.Dispatcher
	bob   *user.User
	carol *user.User
}

func setupDispatcher(t *testing.T) *dispatcherFixture {
	t.Helper()

	store := gormstoretest.New(t)
	f := &dispatcherFixture{
		store: store,
		feed:  notification.NewService(store),
		email: &recordingSender{},
		push:  &recordingSender{},
	}
	f.d = notification.NewDispatcher(f.feed, notification.DispatcherConfig{Workers: 2}, nil, nil).
		Register(notification.ChannelEmail, f.email).
		Register(notification.ChannelPush, f.push).
		WithContacts(user.NewService(store))

	f.bob = gormstoretest.CreateUser(t, store, "bob", "bob@example.com")
	f.carol = gormstoretest.CreateUser(t, store, "carol", "carol@example.com")
	return f
}

func (f *dispatcherFixture) unread(t *testing.T, userID int64) int {
	t.Helper()

	n, err := f.feed.GetUnreadCount(context.Background(), userID)
	require.NoError(t, err)
	return n
}

func TestSendInvite(t *testing.T) {
	ctx := context.Background()
	f := setupDispatcher(t)

	p := notification.Payload{GroupID: 7, GroupName: "Road trip", ActorName: "alice", Link: "https://bankroll.test/invite/abc"}
	require.NoError(t, f.d.SendInvite(ctx, notification.ChannelEmail, "dave@example.com", p))

	require.Len(t, f.email.msgs, 1)
	msg := f.email.msgs[0]
	assert.Equal(t, "dave@example.com", msg.To)
	assert.Contains(t, msg.Subject, "Road trip")
	assert.Contains(t, msg.Body, "https://bankroll.test/invite/abc")
	assert.NotEmpty(t, msg.EventID)

	t.Run("unregistered channel", func(t *testing.T) {
		err := f.d.SendInvite(ctx, notification.ChannelSMS, "+15550001111", p)
		assert.ErrorIs(t, err, notification.ErrChannelUnavailable)
	})

	t.Run("provider failure is returned", func(t *testing.T) {
		f.email.err = errors.New("boom")
		defer func() { f.email.err = nil }()
		assert.Error(t, f.d.SendInvite(ctx, notification.ChannelEmail, "dave@example.com", p))
	})

	t.Run("in-app invite lands in the feed", func(t *testing.T) {
		err := f.d.SendInvite(ctx, notification.ChannelInApp, strconv.FormatInt(f.bob.ID, 10), p)
		require.NoError(t, err)
		assert.Equal(t, 1, f.unread(t, f.bob.ID))
	})
}

func TestNotifyFansOutByPreference(t *testing.T) {
	ctx := context.Background()
	f := setupDispatcher(t)

	off := false
	_, err := f.feed.UpdatePreferences(ctx, f.carol.ID, &notification.UpdatePreferencesRequest{
		EmailEnabled: &off,
		InAppEnabled: &off,
	})
	require.NoError(t, err)

	p := notification.Payload{GroupID: 3, GroupName: "Book club", ActorName: "dave", EntityType: notification.EntityJoinRequest, EntityID: 11}
	f.d.NotifyJoinRequested(ctx, []int64{f.bob.ID, f.carol.ID}, p)
	f.d.Wait()

	assert.Equal(t, 1, f.unread(t, f.bob.ID))
	assert.Zero(t, f.unread(t, f.carol.ID))
	assert.Equal(t, []string{"bob@example.com"}, f.email.recipients())
	assert.ElementsMatch(t,
		[]string{strconv.FormatInt(f.bob.ID, 10), strconv.FormatInt(f.carol.ID, 10)},
		f.push.recipients())

	list, _, err := f.feed.List(ctx, f.bob.ID, notification.Filter{}, 1, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "dave asked to join Book club", list[0].Message)
	assert.Equal(t, &notification.EntityRef{Type: notification.EntityJoinRequest, ID: 11}, list[0].Entity)
	require.NotNil(t, list[0].GroupID)
	assert.Equal(t, int64(3), *list[0].GroupID)
}

func TestNotifyOutlivesCallerContext(t *testing.T) {
	f := setupDispatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	f.d.NotifyInviteAccepted(ctx, f.bob.ID, notification.Payload{GroupID: 1, GroupName: "Flat", ActorName: "carol"})
	cancel()
	f.d.Wait()

	assert.Equal(t, 1, f.unread(t, f.bob.ID))
}
