package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fkhayef/bankroll/internal/apperr"
	"github.com/fkhayef/bankroll/internal/group"
	"github.com/fkhayef/bankroll/internal/invitation"
	"github.com/fkhayef/bankroll/internal/joinrequest"
)

var activeStatuses = []string{
	string(group.MemberStatusOwner),
	string(group.MemberStatusAdmin),
	string(group.MemberStatusMember),
}

func (s *Store) members(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("group_members AS gm").
		Select("gm.id, gm.group_id, gm.user_id, gm.status, gm.role, gm.joined_at, gm.invited_by, gm.invited_at, gm.last_active, u.username, u.email").
		Joins("JOIN users u ON u.id = gm.user_id")
}

// CreateGroup inserts a group and its owner row in one transaction
func (s *Store) CreateGroup(ctx context.Context, g *group.Group, owner *group.GroupMember) (*group.Group, error) {
	row := &groupRow{
		Name:        g.Name,
		Emoji:       g.Emoji,
		Description: g.Description,
		OwnerID:     g.OwnerID,
		Visibility:  string(g.Visibility),
		IsActive:    g.IsActive,
		CreatedAt:   g.CreatedAt,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("failed to create group: %w", err)
		}
		if err := tx.Create(&memberRow{
			GroupID:  row.ID,
			UserID:   owner.UserID,
			Status:   string(owner.Status),
			Role:     string(owner.Role),
			JoinedAt: owner.JoinedAt,
		}).Error; err != nil {
			return fmt.Errorf("failed to add group owner: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row.toGroup(), nil
}

// GetGroup retrieves a group by its ID
func (s *Store) GetGroup(ctx context.Context, id int64) (*group.Group, error) {
	var row groupRow
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return row.toGroup(), nil
}

// ListGroupsByUserID retrieves the active groups a user belongs to
func (s *Store) ListGroupsByUserID(ctx context.Context, userID int64, limit, offset int) ([]*group.Group, int, error) {
	q := s.db.WithContext(ctx).
		Model(&groupRow{}).
		Joins("JOIN group_members gm ON gm.group_id = groups.id").
		Where("gm.user_id = ? AND groups.is_active = ? AND gm.status IN ?", userID, true, activeStatuses).
		Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count groups: %w", err)
	}

	var rows []groupRow
	if err := q.Select("groups.*").Order("groups.created_at DESC, groups.id DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list groups: %w", err)
	}

	groups := make([]*group.Group, len(rows))
	for i := range rows {
		groups[i] = rows[i].toGroup()
	}
	return groups, int(total), nil
}

// UpdateGroup modifies the fields of req that are set
func (s *Store) UpdateGroup(ctx context.Context, id int64, req *group.UpdateGroupRequest) (*group.Group, error) {
	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Emoji != nil {
		updates["emoji"] = *req.Emoji
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Visibility != nil {
		updates["visibility"] = string(*req.Visibility)
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&groupRow{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update group: %w", err)
		}
	}
	return s.GetGroup(ctx, id)
}

// DissolveGroup hides a group and closes out its roster without deleting
// its history
func (s *Store) DissolveGroup(ctx context.Context, id, by int64, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&groupRow{}).Where("id = ?", id).Update("is_active", false).Error; err != nil {
			return fmt.Errorf("failed to deactivate group: %w", err)
		}

		err := tx.Model(&memberRow{}).
			Where("group_id = ? AND status NOT IN ?", id,
				[]string{string(group.MemberStatusOwner), string(group.MemberStatusRemoved)}).
			Update("status", string(group.MemberStatusRemoved)).Error
		if err != nil {
			return fmt.Errorf("failed to remove group members: %w", err)
		}

		err = tx.Model(&invitationRow{}).
			Where("group_id = ? AND status = ?", id, string(invitation.StatusPending)).
			Updates(map[string]any{"status": string(invitation.StatusCancelled), "cancelled_at": at}).Error
		if err != nil {
			return fmt.Errorf("failed to cancel pending invitations: %w", err)
		}

		err = tx.Model(&joinRequestRow{}).
			Where("group_id = ? AND status = ?", id, string(joinrequest.StatusPending)).
			Updates(map[string]any{"status": string(joinrequest.StatusRejected), "resolved_by": by, "resolved_at": at}).Error
		if err != nil {
			return fmt.Errorf("failed to reject pending join requests: %w", err)
		}
		return nil
	})
}

// GetMember retrieves the membership row of a user in a group
func (s *Store) GetMember(ctx context.Context, groupID, userID int64) (*group.GroupMember, error) {
	var views []memberView
	err := s.members(ctx).
		Where("gm.group_id = ? AND gm.user_id = ?", groupID, userID).
		Limit(1).
		Scan(&views).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	if len(views) == 0 {
		return nil, nil
	}
	return views[0].toMember(), nil
}

// ListMembers retrieves every member of a group that has not been removed
func (s *Store) ListMembers(ctx context.Context, groupID int64) ([]*group.GroupMember, error) {
	var views []memberView
	err := s.members(ctx).
		Where("gm.group_id = ? AND gm.status <> ?", groupID, string(group.MemberStatusRemoved)).
		Order("gm.joined_at ASC, gm.id ASC").
		Scan(&views).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}

	members := make([]*group.GroupMember, len(views))
	for i := range views {
		members[i] = views[i].toMember()
	}
	return members, nil
}

// InsertMember adds a membership row
func (s *Store) InsertMember(ctx context.Context, m *group.GroupMember) (*group.GroupMember, error) {
	row := &memberRow{
		GroupID:   m.GroupID,
		UserID:    m.UserID,
		Status:    string(m.Status),
		Role:      string(m.Role),
		JoinedAt:  m.JoinedAt,
		InvitedBy: m.InvitedBy,
		InvitedAt: m.InvitedAt,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("membership %w", apperr.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to add member: %w", err)
	}
	return s.GetMember(ctx, m.GroupID, m.UserID)
}

// TransitionMember moves a membership row out of status from. Nothing is
// written if another request changed the row first.
func (s *Store) TransitionMember(ctx context.Context, groupID, userID int64, from group.MemberStatus, to group.MemberTransition) (*group.GroupMember, error) {
	updates := map[string]any{
		"status": string(to.Status),
		"role":   string(to.Role),
	}
	if to.JoinedAt != nil {
		updates["joined_at"] = *to.JoinedAt
	}
	if to.InvitedBy != nil {
		updates["invited_by"] = *to.InvitedBy
	}
	if to.InvitedAt != nil {
		updates["invited_at"] = *to.InvitedAt
	}

	res := s.db.WithContext(ctx).
		Model(&memberRow{}).
		Where("group_id = ? AND user_id = ? AND status = ?", groupID, userID, string(from)).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update member: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return s.GetMember(ctx, groupID, userID)
}

// TransferOwnership demotes the owner to admin and promotes the new owner in
// one transaction
func (s *Store) TransferOwnership(ctx context.Context, groupID, fromUserID, toUserID int64) (*group.Group, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&memberRow{}).
			Where("group_id = ? AND user_id = ? AND status = ?", groupID, fromUserID, string(group.MemberStatusOwner)).
			Updates(map[string]any{"status": string(group.MemberStatusAdmin), "role": string(group.MemberRoleAdmin)})
		if res.Error != nil {
			return fmt.Errorf("failed to demote owner: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errNotApplied
		}

		res = tx.Model(&memberRow{}).
			Where("group_id = ? AND user_id = ? AND status IN ?", groupID, toUserID,
				[]string{string(group.MemberStatusAdmin), string(group.MemberStatusMember)}).
			Updates(map[string]any{"status": string(group.MemberStatusOwner), "role": string(group.MemberRoleOwner)})
		if res.Error != nil {
			return fmt.Errorf("failed to promote owner: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errNotApplied
		}

		if err := tx.Model(&groupRow{}).Where("id = ?", groupID).Update("owner_id", toUserID).Error; err != nil {
			return fmt.Errorf("failed to update group owner: %w", err)
		}
		return nil
	})
	if errors.Is(err, errNotApplied) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.GetGroup(ctx, groupID)
}
