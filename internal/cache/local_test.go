package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkhayef/bankroll/internal/group"
)

func roster() []*group.GroupMember {
	return []*group.GroupMember{
		{GroupID: 7, UserID: 1, Status: group.MemberStatusOwner, Role: group.MemberRoleOwner, Username: "alice"},
		{GroupID: 7, UserID: 2, Status: group.MemberStatusMember, Role: group.MemberRoleMember, Username: "bob"},
	}
}

func TestLocal_SetGetInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewLocal(0, time.Minute)

	_, ok := c.GetRoster(ctx, 7)
	assert.False(t, ok)

	require.NoError(t, c.SetRoster(ctx, 7, roster()))

	members, ok := c.GetRoster(ctx, 7)
	require.True(t, ok)
	require.Len(t, members, 2)
	assert.Equal(t, "bob", members[1].Username)
	assert.Equal(t, group.MemberStatusOwner, members[0].Status)

	require.NoError(t, c.InvalidateRoster(ctx, 7))
	_, ok = c.GetRoster(ctx, 7)
	assert.False(t, ok)
}

func TestLocal_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewLocal(0, time.Minute)
	c.now = func() time.Time { return now }

	require.NoError(t, c.SetRoster(ctx, 7, roster()))

	now = now.Add(59 * time.Second)
	_, ok := c.GetRoster(ctx, 7)
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok = c.GetRoster(ctx, 7)
	assert.False(t, ok)
}

func TestLocal_LargeRoster(t *testing.T) {
	ctx := context.Background()
	c := NewLocal(0, time.Minute)

	members := make([]*group.GroupMember, 2000)
	for i := range members {
		members[i] = &group.GroupMember{GroupID: 9, UserID: int64(i + 1), Status: group.MemberStatusMember, Role: group.MemberRoleMember, Email: "member@example.com"}
	}
	require.NoError(t, c.SetRoster(ctx, 9, members))

	got, ok := c.GetRoster(ctx, 9)
	require.True(t, ok)
	assert.Len(t, got, 2000)
}

func TestLocal_SeparatesGroups(t *testing.T) {
	ctx := context.Background()
	c := NewLocal(0, time.Minute)

	require.NoError(t, c.SetRoster(ctx, 7, roster()))
	_, ok := c.GetRoster(ctx, 8)
	assert.False(t, ok)

	c.Reset()
	_, ok = c.GetRoster(ctx, 7)
	assert.False(t, ok)
}
