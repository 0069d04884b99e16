package gormstore

import (
	"context"
	"fmt"
	"time"

	"github.com/fkhayef/bankroll/internal/invitation"
)

// CreateInvitation inserts a new invitation
func (s *Store) CreateInvitation(ctx context.Context, inv *invitation.Invitation) (*invitation.Invitation, error) {
	row := &invitationRow{
		GroupID:      inv.GroupID,
		InviterID:    inv.InviterID,
		Kind:         string(inv.Kind),
		Invitee:      inv.Invitee,
		Token:        inv.Token,
		PasswordHash: inv.PasswordHash,
		Status:       string(inv.Status),
		Message:      inv.Message,
		ExpiresAt:    inv.ExpiresAt,
		CreatedAt:    inv.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		// tokens are random, so the pending-invitee index is the key a
		// duplicate hits
		if isDuplicate(err) {
			return nil, invitation.ErrAlreadyInvited
		}
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}
	return row.toInvitation(), nil
}

// GetInvitation retrieves an invitation by its ID
func (s *Store) GetInvitation(ctx context.Context, id int64) (*invitation.Invitation, error) {
	return s.findInvitation(ctx, "get invitation", "id = ?", id)
}

// GetInvitationByToken retrieves an invitation by its token
func (s *Store) GetInvitationByToken(ctx context.Context, token string) (*invitation.Invitation, error) {
	return s.findInvitation(ctx, "get invitation by token", "token = ?", token)
}

// FindPendingInvitation retrieves the latest pending invitation for an invitee
func (s *Store) FindPendingInvitation(ctx context.Context, groupID int64, kind invitation.Kind, invitee string) (*invitation.Invitation, error) {
	return s.findInvitation(ctx, "find pending invitation",
		"group_id = ? AND kind = ? AND invitee = ? AND status = ?",
		groupID, string(kind), invitee, string(invitation.StatusPending))
}

func (s *Store) findInvitation(ctx context.Context, what, cond string, args ...any) (*invitation.Invitation, error) {
	var rows []invitationRow
	err := s.db.WithContext(ctx).
		Where(cond, args...).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", what, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toInvitation(), nil
}

// ListInvitations retrieves a group's invitations, newest first
func (s *Store) ListInvitations(ctx context.Context, groupID int64, status invitation.Status) ([]*invitation.Invitation, error) {
	q := s.db.WithContext(ctx).Where("group_id = ?", groupID)
	if status != "" {
		q = q.Where("status = ?", string(status))
	}

	var rows []invitationRow
	if err := q.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}

	invitations := make([]*invitation.Invitation, len(rows))
	for i := range rows {
		invitations[i] = rows[i].toInvitation()
	}
	return invitations, nil
}

// TransitionInvitation changes the status of an invitation that is still in
// status from and stamps the matching timestamp column
func (s *Store) TransitionInvitation(ctx context.Context, id int64, from invitation.Status, to invitation.Transition) (*invitation.Invitation, error) {
	updates := map[string]any{"status": string(to.Status)}
	switch to.Status {
	case invitation.StatusAccepted:
		updates["accepted_at"] = to.At
		updates["accepted_by"] = to.AcceptedBy
	case invitation.StatusDeclined:
		updates["declined_at"] = to.At
	case invitation.StatusCancelled:
		updates["cancelled_at"] = to.At
	case invitation.StatusPending:
		updates["accepted_at"] = nil
		updates["accepted_by"] = nil
	}

	res := s.db.WithContext(ctx).
		Model(&invitationRow{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update invitation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return s.GetInvitation(ctx, id)
}

// ExpirePending marks every pending invitation past its expiry as expired
func (s *Store) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&invitationRow{}).
		Where("status = ? AND expires_at < ?", string(invitation.StatusPending), now).
		Update("status", string(invitation.StatusExpired))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to expire invitations: %w", res.Error)
	}
	return res.RowsAffected, nil
}
