package invitation_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkhayef/bankroll/internal/apperr"
	"github.com/fkhayef/bankroll/internal/group"
	"github.com/fkhayef/bankroll/internal/invitation"
	"github.com/fkhayef/bankroll/internal/store/gormstore/gormstoretest"
)

func ptr(s string) *string { return &s }

func TestAcceptEmailInvite(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	issued, err := f.issuer.IssueEmailInvite(ctx, f.group.ID, f.owner.ID, "bob@example.com", ptr("join us"))
	require.NoError(t, err)
	token := issued.Invitation.Token

	member, err := f.resolver.Accept(ctx, token, f.bob.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, group.MemberStatusMember, member.Status)
	assert.True(t, f.isMember(t, f.bob.ID))
	assert.Equal(t, invitation.StatusAccepted, f.status(t, issued.Invitation.ID))
	assert.Equal(t, []int64{f.owner.ID}, f.notifier.accepted)

	_, err = f.resolver.Accept(ctx, token, f.bob.ID, nil)
	assert.ErrorIs(t, err, invitation.ErrAlreadyResolved)
	assert.ErrorIs(t, err, apperr.ErrAlreadyResolved)

	_, err = f.resolver.Accept(ctx, "no-such-token", f.bob.ID, nil)
	assert.ErrorIs(t, err, invitation.ErrInvitationNotFound)
}

func TestAcceptExpiredInvite(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	issued, err := f.issuer.IssueEmailInvite(ctx, f.group.ID, f.owner.ID, "carol@example.com", nil)
	require.NoError(t, err)

	f.advance(7*24*time.Hour + time.Second)

	_, err = f.resolver.Accept(ctx, issued.Invitation.Token, f.carol.ID, nil)
	assert.ErrorIs(t, err, invitation.ErrInvitationExpired)
	assert.False(t, f.isMember(t, f.carol.ID))
	assert.Equal(t, invitation.StatusExpired, f.status(t, issued.Invitation.ID))

	_, err = f.resolver.Accept(ctx, issued.Invitation.Token, f.carol.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrExpired)
}

func TestAcceptAtExpiryInstant(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	issued, err := f.issuer.IssueEmailInvite(ctx, f.group.ID, f.owner.ID, "carol@example.com", nil)
	require.NoError(t, err)

	f.advance(7 * 24 * time.Hour)
	require.True(t, f.now.Equal(issued.Invitation.ExpiresAt))

	n, err := f.resolver.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.resolver.Accept(ctx, issued.Invitation.Token, f.carol.ID, nil)
	require.NoError(t, err)
	assert.True(t, f.isMember(t, f.carol.ID))
	assert.Equal(t, invitation.StatusAccepted, f.status(t, issued.Invitation.ID))
}

func TestAcceptChecksIdentity(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	issued, err := f.issuer.IssueEmailInvite(ctx, f.group.ID, f.owner.ID, "carol@example.com", nil)
	require.NoError(t, err)

	_, err = f.resolver.Accept(ctx, issued.Invitation.Token, f.eve.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrIdentityMismatch)
	assert.Equal(t, invitation.StatusPending, f.status(t, issued.Invitation.ID))

	_, err = f.resolver.Accept(ctx, issued.Invitation.Token, f.carol.ID, nil)
	require.NoError(t, err)
}

func TestAcceptSMSInvite(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	issued, err := f.issuer.IssueSMSInvite(ctx, f.group.ID, f.owner.ID, "+1 555 000 1111", nil)
	require.NoError(t, err)

	_, err = f.resolver.Accept(ctx, issued.Invitation.Token, f.carol.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrIdentityMismatch)

	_, err = f.resolver.Accept(ctx, issued.Invitation.Token, f.bob.ID, nil)
	require.NoError(t, err)
	assert.True(t, f.isMember(t, f.bob.ID))
}

func TestAcceptPasswordProtectedLink(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	issued, err := f.issuer.IssueLinkInvite(ctx, f.group.ID, f.owner.ID, invitation.LinkOptions{Password: "hunter2"})
	require.NoError(t, err)
	token := issued.Invitation.Token

	assert.ErrorIs(t, f.resolver.VerifyPassword(ctx, token, "wrong"), apperr.ErrInvalidPassword)
	require.NoError(t, f.resolver.VerifyPassword(ctx, token, "hunter2"))

	_, err = f.resolver.Accept(ctx, token, f.eve.ID, nil)
	assert.ErrorIs(t, err, invitation.ErrInvalidPassword)
	_, err = f.resolver.Accept(ctx, token, f.eve.ID, ptr("wrong"))
	assert.ErrorIs(t, err, invitation.ErrInvalidPassword)
	assert.Equal(t, invitation.StatusPending, f.status(t, issued.Invitation.ID))

	member, err := f.resolver.Accept(ctx, token, f.eve.ID, ptr("hunter2"))
	require.NoError(t, err)
	assert.Equal(t, f.eve.ID, member.UserID)

	// Links are single use
	_, err = f.resolver.Accept(ctx, token, f.carol.ID, ptr("hunter2"))
	assert.ErrorIs(t, err, invitation.ErrAlreadyResolved)
}

func TestAcceptByExistingMemberKeepsInvitation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	issued, err := f.issuer.IssueLinkInvite(ctx, f.group.ID, f.owner.ID, invitation.LinkOptions{})
	require.NoError(t, err)

	_, err = f.resolver.Accept(ctx, issued.Invitation.Token, f.owner.ID, nil)
	assert.ErrorIs(t, err, invitation.ErrAlreadyMember)
	assert.Equal(t, invitation.StatusPending, f.status(t, issued.Invitation.ID))
}

func TestConcurrentAcceptsOfOneLink(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	issued, err := f.issuer.IssueLinkInvite(ctx, f.group.ID, f.owner.ID, invitation.LinkOptions{})
	require.NoError(t, err)

	const n = 8
	var userIDs []int64
	for i := 0; i < n; i++ {
		u := gormstoretest.CreateUser(t, f.store, fmt.Sprintf("racer%d", i), fmt.Sprintf("racer%d@example.com", i))
		userIDs = append(userIDs, u.ID)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		resolved int
	)
	for _, id := range userIDs {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := f.resolver.Accept(ctx, issued.Invitation.Token, userID, nil)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
			} else if errors.Is(err, apperr.ErrAlreadyResolved) {
				resolved++
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, n-1, resolved)

	members, err := f.groups.ListMembers(ctx, f.group.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestDecline(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	issued, err := f.issuer.IssueEmailInvite(ctx, f.group.ID, f.owner.ID, "bob@example.com", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, f.resolver.Decline(ctx, issued.Invitation.Token, f.eve.ID), apperr.ErrIdentityMismatch)
	require.NoError(t, f.resolver.Decline(ctx, issued.Invitation.Token, f.bob.ID))
	assert.Equal(t, invitation.StatusDeclined, f.status(t, issued.Invitation.ID))
	assert.Equal(t, []int64{f.owner.ID}, f.notifier.declined)

	_, err = f.resolver.Accept(ctx, issued.Invitation.Token, f.bob.ID, nil)
	assert.ErrorIs(t, err, invitation.ErrAlreadyResolved)

	link, err := f.issuer.IssueLinkInvite(ctx, f.group.ID, f.owner.ID, invitation.LinkOptions{})
	require.NoError(t, err)
	assert.ErrorIs(t, f.resolver.Decline(ctx, link.Invitation.Token, f.bob.ID), invitation.ErrLinkNotDeclinable)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.groups.AddMember(ctx, f.group.ID, f.bob.ID, group.MemberRoleAdmin)
	require.NoError(t, err)
	_, err = f.groups.AddMember(ctx, f.group.ID, f.eve.ID, group.MemberRoleMember)
	require.NoError(t, err)

	issued, err := f.issuer.IssueEmailInvite(ctx, f.group.ID, f.owner.ID, "carol@example.com", nil)
	require.NoError(t, err)
	id := issued.Invitation.ID

	_, err = f.resolver.Cancel(ctx, id, f.eve.ID)
	assert.ErrorIs(t, err, invitation.ErrNotAuthorized)

	cancelled, err := f.resolver.Cancel(ctx, id, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, invitation.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = f.resolver.Cancel(ctx, id, f.owner.ID)
	assert.ErrorIs(t, err, invitation.ErrAlreadyResolved)

	_, err = f.resolver.Accept(ctx, issued.Invitation.Token, f.carol.ID, nil)
	assert.ErrorIs(t, err, invitation.ErrAlreadyResolved)

	_, err = f.resolver.Cancel(ctx, 999, f.owner.ID)
	assert.ErrorIs(t, err, invitation.ErrInvitationNotFound)
}

func TestPreview(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	issued, err := f.issuer.IssueLinkInvite(ctx, f.group.ID, f.owner.ID, invitation.LinkOptions{Password: "pw", TTL: time.Hour})
	require.NoError(t, err)

	preview, err := f.resolver.Preview(ctx, issued.Invitation.Token)
	require.NoError(t, err)
	assert.Equal(t, "Ski chalet", preview.GroupName)
	assert.Equal(t, "owner", preview.InviterName)
	assert.True(t, preview.PasswordProtected)
	assert.Equal(t, invitation.StatusPending, preview.Status)

	f.advance(2 * time.Hour)
	preview, err = f.resolver.Preview(ctx, issued.Invitation.Token)
	require.NoError(t, err)
	assert.Equal(t, invitation.StatusExpired, preview.Status)
}

// zonedStore returns invitations with their times in a non-UTC zone
type zonedStore struct {
	invitation.Store
	loc *time.Location
}

func (z zonedStore) GetInvitationByToken(ctx context.Context, token string) (*invitation.Invitation, error) {
	inv, err := z.Store.GetInvitationByToken(ctx, token)
	if inv != nil {
		inv.ExpiresAt = inv.ExpiresAt.In(z.loc)
		inv.CreatedAt = inv.CreatedAt.In(z.loc)
	}
	return inv, err
}

func TestTimestampsAreUTC(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	issued, err := f.issuer.IssueEmailInvite(ctx, f.group.ID, f.owner.ID, "carol@example.com", nil)
	require.NoError(t, err)

	store := zonedStore{Store: f.store, loc: time.FixedZone("UTC+2", 2*60*60)}
	resolver := invitation.NewResolver(store, f.groups, f.users, nil, invitation.WithClock(func() time.Time { return f.now }))

	preview, err := resolver.Preview(ctx, issued.Invitation.Token)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-08T12:00:00Z", preview.ExpiresAt)

	inv, err := store.GetInvitationByToken(ctx, issued.Invitation.Token)
	require.NoError(t, err)
	resp := inv.ToResponse()
	assert.Equal(t, "2026-03-08T12:00:00Z", resp.ExpiresAt)
	assert.Equal(t, "2026-03-01T12:00:00Z", resp.CreatedAt)
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	short, err := f.issuer.IssueLinkInvite(ctx, f.group.ID, f.owner.ID, invitation.LinkOptions{TTL: time.Hour})
	require.NoError(t, err)
	_, err = f.issuer.IssueEmailInvite(ctx, f.group.ID, f.owner.ID, "carol@example.com", nil)
	require.NoError(t, err)

	n, err := f.resolver.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.advance(2 * time.Hour)
	n, err = f.resolver.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, invitation.StatusExpired, f.status(t, short.Invitation.ID))

	f.advance(7 * 24 * time.Hour)
	n, err = f.resolver.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	late, err := f.issuer.IssueLinkInvite(ctx, f.group.ID, f.owner.ID, invitation.LinkOptions{TTL: time.Minute})
	require.NoError(t, err)
	f.advance(time.Hour)

	sweeper, err := invitation.NewSweeper(f.resolver, "0 0 * * * *", nil)
	require.NoError(t, err)
	sweeper.Run()
	assert.Equal(t, invitation.StatusExpired, f.status(t, late.Invitation.ID))

	_, err = invitation.NewSweeper(f.resolver, "every so often", nil)
	assert.Error(t, err)
}

// blockingSweepStore holds ExpirePending open until release is closed
type blockingSweepStore struct {
	invitation.Store
	entered chan struct{}
	release chan struct{}
	calls   int
}

func (b *blockingSweepStore) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	b.calls++
	b.entered <- struct{}{}
	<-b.release
	return b.Store.ExpirePending(ctx, now)
}

func TestSweeperStopWaitsForRunningSweep(t *testing.T) {
	f := setup(t)

	store := &blockingSweepStore{Store: f.store, entered: make(chan struct{}, 1), release: make(chan struct{})}
	resolver := invitation.NewResolver(store, f.groups, f.users, nil, invitation.WithClock(func() time.Time { return f.now }))
	sweeper, err := invitation.NewSweeper(resolver, "0 0 * * * *", nil)
	require.NoError(t, err)

	swept := make(chan struct{})
	go func() {
		sweeper.Run()
		close(swept)
	}()
	<-store.entered

	stopped := make(chan struct{})
	go func() {
		sweeper.Stop()
		close(stopped)
	}()

	assert.Never(t, func() bool {
		select {
		case <-stopped:
			return true
		default:
			return false
		}
	}, 100*time.Millisecond, 10*time.Millisecond)

	close(store.release)
	<-swept
	assert.Eventually(t, func() bool {
		select {
		case <-stopped:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	// sweeps after Stop are no-ops
	sweeper.Run()
	assert.Equal(t, 1, store.calls)
}
