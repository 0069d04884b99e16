package group_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkhayef/bankroll/internal/apperr"
	"github.com/fkhayef/bankroll/internal/cache"
	"github.com/fkhayef/bankroll/internal/group"
	"github.com/fkhayef/bankroll/internal/invitation"
	"github.com/fkhayef/bankroll/internal/joinrequest"
	"github.com/fkhayef/bankroll/internal/notification"
	"github.com/fkhayef/bankroll/internal/store/gormstore"
	"github.com/fkhayef/bankroll/internal/store/gormstore/gormstoretest"
	"github.com/fkhayef/bankroll/internal/user"
)

type recordingNotifier struct {
	mu      sync.Mutex
	invites []int64
	joined  []int64
}

func (n *recordingNotifier) NotifyGroupInvite(_ context.Context, recipientID int64, _ notification.Payload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.invites = append(n.invites, recipientID)
}

func (n *recordingNotifier) NotifyMemberJoined(_ context.Context, ownerID int64, _ notification.Payload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.joined = append(n.joined, ownerID)
}

type recordingWallet struct {
	seeded [][2]int64
}

func (w *recordingWallet) SeedBalance(_ context.Context, groupID, userID int64) error {
	w.seeded = append(w.seeded, [2]int64{groupID, userID})
	return nil
}

type fixture struct {
	store    *gormstore.Store
	svc      *group.Service
	notifier *recordingNotifier
	wallet   *recordingWallet
	owner    *user.User
	bob      *user.User
	carol    *user.User
}

func setup(t *testing.T, opts ...group.Option) *fixture {
	t.Helper()

	f := &fixture{
		store:    gormstoretest.New(t),
		notifier: &recordingNotifier{},
		wallet:   &recordingWallet{},
	}
	f.owner = gormstoretest.CreateUser(t, f.store, "owner", "owner@example.com")
	f.bob = gormstoretest.CreateUser(t, f.store, "bob", "bob@example.com")
	f.carol = gormstoretest.CreateUser(t, f.store, "carol", "carol@example.com")

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	opts = append([]group.Option{
		group.WithNotifier(f.notifier),
		group.WithWallet(f.wallet),
		group.WithClock(func() time.Time { return now }),
	}, opts...)
	f.svc = group.NewService(f.store, opts...)
	return f
}

func (f *fixture) createGroup(t *testing.T, visibility group.Visibility) *group.Group {
	t.Helper()

	g, err := f.svc.Create(context.Background(), f.owner.ID, &group.CreateGroupRequest{Name: "  Road trip  ", Visibility: visibility})
	require.NoError(t, err)
	return g
}

func countOwners(t *testing.T, f *fixture, groupID int64) int {
	t.Helper()

	members, err := f.store.ListMembers(context.Background(), groupID)
	require.NoError(t, err)
	owners := 0
	for _, m := range members {
		if m.Status == group.MemberStatusOwner {
			owners++
		}
	}
	return owners
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	g := f.createGroup(t, "")
	assert.Equal(t, "Road trip", g.Name)
	assert.Equal(t, group.VisibilityPrivate, g.Visibility)
	assert.Equal(t, f.owner.ID, g.OwnerID)

	status, err := f.svc.GetStatus(ctx, g.ID, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, group.MemberStatusOwner, status)
	assert.Equal(t, [][2]int64{{g.ID, f.owner.ID}}, f.wallet.seeded)

	tests := []struct {
		name string
		req  *group.CreateGroupRequest
	}{
		{"blank name", &group.CreateGroupRequest{Name: "   "}},
		{"unknown visibility", &group.CreateGroupRequest{Name: "Trip", Visibility: "secret"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, f.owner.ID, tt.req)
			assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		})
	}
}

func TestAddMember(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	g := f.createGroup(t, group.VisibilityPrivate)

	m, err := f.svc.AddMember(ctx, g.ID, f.bob.ID, group.MemberRoleMember)
	require.NoError(t, err)
	assert.Equal(t, group.MemberStatusMember, m.Status)
	assert.Equal(t, "bob", m.Username)

	t.Run("active member is a duplicate", func(t *testing.T) {
		_, err := f.svc.AddMember(ctx, g.ID, f.bob.ID, group.MemberRoleAdmin)
		assert.ErrorIs(t, err, group.ErrDuplicateMember)
		assert.ErrorIs(t, err, apperr.ErrAlreadyMember)
	})

	t.Run("owner role cannot be granted", func(t *testing.T) {
		_, err := f.svc.AddMember(ctx, g.ID, f.carol.ID, group.MemberRoleOwner)
		assert.ErrorIs(t, err, group.ErrInvalidRole)
	})

	t.Run("removed member is reactivated in place", func(t *testing.T) {
		require.NoError(t, f.svc.Leave(ctx, g.ID, f.bob.ID))

		active, err := f.svc.IsActiveMember(ctx, g.ID, f.bob.ID)
		require.NoError(t, err)
		assert.False(t, active)

		again, err := f.svc.AddMember(ctx, g.ID, f.bob.ID, group.MemberRoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, m.ID, again.ID)
		assert.Equal(t, group.MemberStatusAdmin, again.Status)
	})

	t.Run("missing group", func(t *testing.T) {
		_, err := f.svc.AddMember(ctx, 999, f.carol.ID, group.MemberRoleMember)
		assert.ErrorIs(t, err, group.ErrGroupNotFound)
	})
}

func TestInviteAcceptDecline(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	g := f.createGroup(t, group.VisibilityPrivate)

	invited, err := f.svc.InviteMember(ctx, g.ID, f.bob.ID, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, group.MemberStatusInvited, invited.Status)
	require.NotNil(t, invited.InvitedBy)
	assert.Equal(t, f.owner.ID, *invited.InvitedBy)
	assert.Equal(t, []int64{f.bob.ID}, f.notifier.invites)

	active, err := f.svc.IsActiveMember(ctx, g.ID, f.bob.ID)
	require.NoError(t, err)
	assert.False(t, active)

	_, err = f.svc.InviteMember(ctx, g.ID, f.bob.ID, f.owner.ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyInvited)

	member, err := f.svc.AcceptInvitation(ctx, g.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, group.MemberStatusMember, member.Status)

	again, err := f.svc.AcceptInvitation(ctx, g.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, member.ID, again.ID)

	t.Run("members cannot invite", func(t *testing.T) {
		_, err := f.svc.InviteMember(ctx, g.ID, f.carol.ID, f.bob.ID)
		assert.ErrorIs(t, err, group.ErrNotAuthorized)
	})

	t.Run("decline", func(t *testing.T) {
		_, err := f.svc.InviteMember(ctx, g.ID, f.carol.ID, f.owner.ID)
		require.NoError(t, err)
		require.NoError(t, f.svc.DeclineInvitation(ctx, g.ID, f.carol.ID))

		status, err := f.svc.GetStatus(ctx, g.ID, f.carol.ID)
		require.NoError(t, err)
		assert.Equal(t, group.MemberStatusRemoved, status)

		assert.ErrorIs(t, f.svc.DeclineInvitation(ctx, g.ID, f.carol.ID), group.ErrNotInvited)
		_, err = f.svc.AcceptInvitation(ctx, g.ID, f.carol.ID)
		assert.ErrorIs(t, err, group.ErrNotInvited)
	})
}

func TestOwnerProtection(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	g := f.createGroup(t, group.VisibilityPrivate)

	_, err := f.svc.AddMember(ctx, g.ID, f.bob.ID, group.MemberRoleAdmin)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Leave(ctx, g.ID, f.owner.ID), apperr.ErrOwnerProtected)
	assert.ErrorIs(t, f.svc.RemoveMember(ctx, g.ID, f.owner.ID, f.bob.ID), apperr.ErrOwnerProtected)

	_, err = f.svc.UpdateRole(ctx, g.ID, f.owner.ID, group.MemberRoleMember, f.owner.ID)
	assert.ErrorIs(t, err, apperr.ErrOwnerProtected)

	assert.Equal(t, 1, countOwners(t, f, g.ID))
}

func TestRemoveAndRoles(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	g := f.createGroup(t, group.VisibilityPrivate)

	_, err := f.svc.AddMember(ctx, g.ID, f.bob.ID, group.MemberRoleMember)
	require.NoError(t, err)
	_, err = f.svc.AddMember(ctx, g.ID, f.carol.ID, group.MemberRoleMember)
	require.NoError(t, err)

	promoted, err := f.svc.UpdateRole(ctx, g.ID, f.bob.ID, group.MemberRoleAdmin, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, group.MemberStatusAdmin, promoted.Status)

	managers, err := f.svc.ManagerIDs(ctx, g.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{f.owner.ID, f.bob.ID}, managers)

	_, err = f.svc.UpdateRole(ctx, g.ID, f.carol.ID, group.MemberRoleAdmin, f.bob.ID)
	assert.ErrorIs(t, err, group.ErrNotAuthorized)

	assert.ErrorIs(t, f.svc.RemoveMember(ctx, g.ID, f.bob.ID, f.carol.ID), group.ErrNotAuthorized)
	require.NoError(t, f.svc.RemoveMember(ctx, g.ID, f.carol.ID, f.bob.ID))
	assert.ErrorIs(t, f.svc.RemoveMember(ctx, g.ID, f.carol.ID, f.bob.ID), group.ErrMemberNotFound)
}

func TestTransferOwnership(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	g := f.createGroup(t, group.VisibilityPrivate)

	_, err := f.svc.AddMember(ctx, g.ID, f.bob.ID, group.MemberRoleMember)
	require.NoError(t, err)

	_, err = f.svc.TransferOwnership(ctx, g.ID, f.owner.ID, f.owner.ID)
	assert.ErrorIs(t, err, group.ErrAlreadyOwner)

	_, err = f.svc.TransferOwnership(ctx, g.ID, f.carol.ID, f.owner.ID)
	assert.ErrorIs(t, err, group.ErrMemberNotFound)

	_, err = f.svc.TransferOwnership(ctx, g.ID, f.owner.ID, f.bob.ID)
	assert.ErrorIs(t, err, group.ErrNotAuthorized)

	updated, err := f.svc.TransferOwnership(ctx, g.ID, f.bob.ID, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, f.bob.ID, updated.OwnerID)
	assert.Equal(t, 1, countOwners(t, f, g.ID))

	status, err := f.svc.GetStatus(ctx, g.ID, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, group.MemberStatusAdmin, status)

	// The former owner may now leave
	require.NoError(t, f.svc.Leave(ctx, g.ID, f.owner.ID))
}

func TestJoin(t *testing.T) {
	ctx := context.Background()

	t.Run("public group notifies the owner", func(t *testing.T) {
		f := setup(t)
		g := f.createGroup(t, group.VisibilityPublic)

		m, err := f.svc.Join(ctx, g.ID, f.bob.ID)
		require.NoError(t, err)
		assert.Equal(t, group.MemberStatusMember, m.Status)
		assert.Equal(t, []int64{f.owner.ID}, f.notifier.joined)

		_, err = f.svc.Join(ctx, g.ID, f.bob.ID)
		assert.ErrorIs(t, err, apperr.ErrAlreadyMember)
	})

	t.Run("notification can be turned off", func(t *testing.T) {
		f := setup(t, group.WithPublicJoinNotification(false))
		g := f.createGroup(t, group.VisibilityPublic)

		_, err := f.svc.Join(ctx, g.ID, f.bob.ID)
		require.NoError(t, err)
		assert.Empty(t, f.notifier.joined)
	})

	t.Run("private group", func(t *testing.T) {
		f := setup(t)
		g := f.createGroup(t, group.VisibilityPrivate)

		_, err := f.svc.Join(ctx, g.ID, f.bob.ID)
		assert.ErrorIs(t, err, group.ErrPrivateGroup)
	})
}

func TestRosterCacheIsInvalidated(t *testing.T) {
	ctx := context.Background()
	f := setup(t, group.WithCache(cache.NewLocal(1<<20, time.Minute)))
	g := f.createGroup(t, group.VisibilityPrivate)

	members, err := f.svc.ListMembers(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)

	_, err = f.svc.AddMember(ctx, g.ID, f.bob.ID, group.MemberRoleMember)
	require.NoError(t, err)

	members, err = f.svc.ListMembers(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	require.NoError(t, f.svc.Leave(ctx, g.ID, f.bob.ID))
	members, err = f.svc.ListMembers(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	g := f.createGroup(t, group.VisibilityPrivate)

	_, err := f.svc.AddMember(ctx, g.ID, f.bob.ID, group.MemberRoleAdmin)
	require.NoError(t, err)
	_, err = f.svc.InviteMember(ctx, g.ID, f.carol.ID, f.owner.ID)
	require.NoError(t, err)

	dave := gormstoretest.CreateUser(t, f.store, "dave", "dave@example.com")
	invite, err := f.store.CreateInvitation(ctx, &invitation.Invitation{
		GroupID:   g.ID,
		InviterID: f.owner.ID,
		Kind:      invitation.KindEmail,
		Invitee:   "erin@example.com",
		Token:     "tok-erin",
		Status:    invitation.StatusPending,
		ExpiresAt: time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC),
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	request, err := f.store.CreateJoinRequest(ctx, &joinrequest.JoinRequest{
		GroupID:     g.ID,
		UserID:      dave.ID,
		Status:      joinrequest.StatusPending,
		RequestedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(ctx, g.ID, f.bob.ID), group.ErrNotAuthorized)
	require.NoError(t, f.svc.Delete(ctx, g.ID, f.owner.ID))

	_, err = f.svc.GetByID(ctx, g.ID)
	assert.ErrorIs(t, err, group.ErrGroupNotFound)

	t.Run("memberships end with the group", func(t *testing.T) {
		for _, userID := range []int64{f.bob.ID, f.carol.ID} {
			m, err := f.store.GetMember(ctx, g.ID, userID)
			require.NoError(t, err)
			assert.Equal(t, group.MemberStatusRemoved, m.Status)

			active, err := f.svc.IsActiveMember(ctx, g.ID, userID)
			require.NoError(t, err)
			assert.False(t, active)
		}

		owner, err := f.store.GetMember(ctx, g.ID, f.owner.ID)
		require.NoError(t, err)
		assert.Equal(t, group.MemberStatusOwner, owner.Status)
	})

	t.Run("pending invitations and requests are closed", func(t *testing.T) {
		inv, err := f.store.GetInvitation(ctx, invite.ID)
		require.NoError(t, err)
		assert.Equal(t, invitation.StatusCancelled, inv.Status)
		assert.NotNil(t, inv.CancelledAt)

		jr, err := f.store.GetLatestJoinRequest(ctx, g.ID, dave.ID)
		require.NoError(t, err)
		assert.Equal(t, request.ID, jr.ID)
		assert.Equal(t, joinrequest.StatusRejected, jr.Status)
		require.NotNil(t, jr.ResolvedBy)
		assert.Equal(t, f.owner.ID, *jr.ResolvedBy)
	})
}
