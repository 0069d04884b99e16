package invitation_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fkhayef/bankroll/internal/apperr"
	"github.com/fkhayef/bankroll/internal/group"
	"github.com/fkhayef/bankroll/internal/invitation"
)

func TestIssueEmailInvite(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	issued, err := f.issuer.IssueEmailInvite(ctx, f.group.ID, f.owner.ID, "  Bob@Example.com ", nil)
	require.NoError(t, err)

	inv := issued.Invitation
	assert.Equal(t, invitation.KindEmail, inv.Kind)
	assert.Equal(t, "bob@example.com", inv.Invitee)
	assert.Equal(t, invitation.StatusPending, inv.Status)
	assert.True(t, inv.ExpiresAt.Equal(f.now.Add(7*24*time.Hour)))
	assert.True(t, issued.Delivered)
	assert.Equal(t, "https://bankroll.test/invite/"+inv.Token, issued.Link)
	assert.Equal(t, []string{"email:bob@example.com"}, f.delivery.sent)

	t.Run("second pending invitation is rejected", func(t *testing.T) {
		_, err := f.issuer.IssueEmailInvite(ctx, f.group.ID, f.owner.ID, "bob@example.com", nil)
		assert.ErrorIs(t, err, apperr.ErrAlreadyInvited)
	})

	t.Run("expired invitation can be replaced", func(t *testing.T) {
		f.advance(8 * 24 * time.Hour)
		again, err := f.issuer.IssueEmailInvite(ctx, f.group.ID, f.owner.ID, "bob@example.com", nil)
		require.NoError(t, err)
		assert.NotEqual(t, inv.Token, again.Invitation.Token)
		assert.Equal(t, invitation.StatusExpired, f.status(t, inv.ID))
	})
}

func TestIssueRejections(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.groups.AddMember(ctx, f.group.ID, f.bob.ID, group.MemberRoleMember)
	require.NoError(t, err)

	tests := []struct {
		name    string
		inviter int64
		groupID int64
		email   string
		wantErr error
	}{
		{"existing member", f.owner.ID, f.group.ID, "bob@example.com", apperr.ErrAlreadyMember},
		{"malformed address", f.owner.ID, f.group.ID, "not-an-email", apperr.ErrInvalidIdentifier},
		{"plain member cannot invite", f.bob.ID, f.group.ID, "carol@example.com", apperr.ErrUnauthorized},
		{"outsider cannot invite", f.eve.ID, f.group.ID, "carol@example.com", apperr.ErrUnauthorized},
		{"missing group", f.owner.ID, 999, "carol@example.com", apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.issuer.IssueEmailInvite(ctx, tt.groupID, tt.inviter, tt.email, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, f.delivery.sent)
}

func TestConcurrentIssueKeepsOnePending(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	const callers = 8
	var (
		wg   sync.WaitGroup
		errs = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.issuer.IssueEmailInvite(ctx, f.group.ID, f.owner.ID, "carol@example.com", nil)
		}(i)
	}
	wg.Wait()

	issued := 0
	for _, err := range errs {
		if err == nil {
			issued++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrAlreadyInvited)
	}
	assert.Equal(t, 1, issued)

	pending, err := f.store.ListInvitations(ctx, f.group.ID, invitation.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestIssueSMSInviteNormalizesPhone(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	issued, err := f.issuer.IssueSMSInvite(ctx, f.group.ID, f.owner.ID, "+1 (555) 000-1111", nil)
	require.NoError(t, err)
	assert.Equal(t, "+15550001111", issued.Invitation.Invitee)
	assert.Equal(t, []string{"sms:+15550001111"}, f.delivery.sent)

	_, err = f.issuer.IssueSMSInvite(ctx, f.group.ID, f.owner.ID, "12", nil)
	assert.ErrorIs(t, err, invitation.ErrInvalidIdentifier)
}

func TestFailedDeliveryLeavesInvitationPending(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.delivery.fail["carol@example.com"] = true

	issued, err := f.issuer.IssueEmailInvite(ctx, f.group.ID, f.owner.ID, "carol@example.com", nil)
	require.NoError(t, err)
	assert.False(t, issued.Delivered)
	assert.Equal(t, invitation.StatusPending, f.status(t, issued.Invitation.ID))

	resp := issued.ToResponse()
	require.NotNil(t, resp.Delivered)
	assert.False(t, *resp.Delivered)
	assert.Empty(t, resp.Link)

	t.Run("resend once the provider recovers", func(t *testing.T) {
		f.delivery.fail["carol@example.com"] = false
		again, err := f.issuer.Resend(ctx, issued.Invitation.ID, f.owner.ID)
		require.NoError(t, err)
		assert.True(t, again.Delivered)
		assert.Equal(t, []string{"email:carol@example.com"}, f.delivery.sent)
	})
}

func TestIssueLinkInvite(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	issued, err := f.issuer.IssueLinkInvite(ctx, f.group.ID, f.owner.ID, invitation.LinkOptions{
		Password: "hunter2",
		TTL:      48 * time.Hour,
	})
	require.NoError(t, err)

	inv := issued.Invitation
	assert.Equal(t, invitation.KindLink, inv.Kind)
	assert.True(t, inv.PasswordProtected())
	assert.NotEqual(t, "hunter2", *inv.PasswordHash)
	assert.True(t, inv.ExpiresAt.Equal(f.now.Add(48*time.Hour)))
	assert.True(t, strings.HasSuffix(issued.ToResponse().Link, "/invite/"+inv.Token))
	assert.Empty(t, f.delivery.sent)

	_, err = f.issuer.Resend(ctx, inv.ID, f.owner.ID)
	assert.ErrorIs(t, err, invitation.ErrNotResendable)

	open, err := f.issuer.IssueLinkInvite(ctx, f.group.ID, f.owner.ID, invitation.LinkOptions{})
	require.NoError(t, err)
	assert.False(t, open.Invitation.PasswordProtected())
	assert.NotEqual(t, inv.Token, open.Invitation.Token)
}

func TestIssueBulkInvites(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.groups.AddMember(ctx, f.group.ID, f.bob.ID, group.MemberRoleMember)
	require.NoError(t, err)
	_, err = f.issuer.IssueEmailInvite(ctx, f.group.ID, f.owner.ID, "carol@example.com", nil)
	require.NoError(t, err)

	result, err := f.issuer.IssueBulkInvites(ctx, f.group.ID, f.owner.ID, []invitation.Recipient{
		{Kind: invitation.KindEmail, Identifier: "bob@example.com"},
		{Kind: invitation.KindEmail, Identifier: "carol@example.com"},
		{Kind: invitation.KindEmail, Identifier: "dave@example.com"},
		{Kind: invitation.KindEmail, Identifier: "erin@example.com"},
		{Kind: invitation.KindSMS, Identifier: "+1 555 000 2222"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 3, result.Successful)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 2, result.Skipped)
	require.Len(t, result.Results, 5)
	assert.Equal(t, invitation.OutcomeSkipped, result.Results[0].Outcome)
	assert.Equal(t, invitation.OutcomeSkipped, result.Results[1].Outcome)
	assert.Equal(t, invitation.OutcomeSent, result.Results[2].Outcome)
	assert.NotNil(t, result.Results[2].InvitationID)

	pending, err := f.issuer.List(ctx, f.group.ID, f.owner.ID, invitation.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 4)
}

// staleLookupStore misses pending invitations, as when another issuer
// inserts between the lookup and the insert
type staleLookupStore struct {
	invitation.Store
}

func (staleLookupStore) FindPendingInvitation(context.Context, int64, invitation.Kind, string) (*invitation.Invitation, error) {
	return nil, nil
}

func TestIssueBulkInvitesSkipsRacedDuplicates(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.issuer.IssueEmailInvite(ctx, f.group.ID, f.owner.ID, "carol@example.com", nil)
	require.NoError(t, err)

	cfg := invitation.Config{BaseURL: "https://bankroll.test/", BcryptCost: bcrypt.MinCost}
	issuer := invitation.NewIssuer(staleLookupStore{f.store}, f.groups, f.users, f.delivery, cfg,
		invitation.WithClock(func() time.Time { return f.now }))

	_, err = issuer.IssueEmailInvite(ctx, f.group.ID, f.owner.ID, "carol@example.com", nil)
	assert.ErrorIs(t, err, apperr.ErrAlreadyInvited)

	result, err := issuer.IssueBulkInvites(ctx, f.group.ID, f.owner.ID, []invitation.Recipient{
		{Kind: invitation.KindEmail, Identifier: "carol@example.com"},
		{Kind: invitation.KindEmail, Identifier: "dave@example.com"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, invitation.OutcomeSkipped, result.Results[0].Outcome)
	assert.Equal(t, invitation.OutcomeSent, result.Results[1].Outcome)
}

func TestIssueBulkInvitesCountsFailures(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.delivery.fail["dave@example.com"] = true

	result, err := f.issuer.IssueBulkInvites(ctx, f.group.ID, f.owner.ID, []invitation.Recipient{
		{Kind: invitation.KindEmail, Identifier: "dave@example.com"},
		{Kind: invitation.KindEmail, Identifier: "broken"},
		{Kind: invitation.KindEmail, Identifier: "erin@example.com"},
		{Kind: invitation.KindEmail, Identifier: "ERIN@example.com"},
		{Kind: invitation.KindLink, Identifier: "x"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 3, result.Failed)
	assert.Equal(t, 1, result.Skipped)

	t.Run("unauthorized batch aborts", func(t *testing.T) {
		_, err := f.issuer.IssueBulkInvites(ctx, f.group.ID, f.eve.ID, []invitation.Recipient{
			{Kind: invitation.KindEmail, Identifier: "zed@example.com"},
		}, nil)
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})
}
