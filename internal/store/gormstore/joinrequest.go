package gormstore

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/fkhayef/bankroll/internal/apperr"
	"github.com/fkhayef/bankroll/internal/joinrequest"
)

func (s *Store) joinRequests(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("join_requests AS jr").
		Select("jr.*, u.username").
		Joins("JOIN users u ON u.id = jr.user_id")
}

func (s *Store) getJoinRequest(ctx context.Context, id int64) (*joinrequest.JoinRequest, error) {
	var views []joinRequestView
	if err := s.joinRequests(ctx).Where("jr.id = ?", id).Limit(1).Scan(&views).Error; err != nil {
		return nil, fmt.Errorf("failed to get join request: %w", err)
	}
	if len(views) == 0 {
		return nil, nil
	}
	return views[0].toJoinRequest(), nil
}

// CreateJoinRequest inserts a pending join request
func (s *Store) CreateJoinRequest(ctx context.Context, jr *joinrequest.JoinRequest) (*joinrequest.JoinRequest, error) {
	row := &joinRequestRow{
		GroupID:     jr.GroupID,
		UserID:      jr.UserID,
		Message:     jr.Message,
		Status:      string(jr.Status),
		RequestedAt: jr.RequestedAt,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("join request %w", apperr.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create join request: %w", err)
	}
	return s.getJoinRequest(ctx, row.ID)
}

// GetLatestJoinRequest retrieves the most recent request of a user for a group
func (s *Store) GetLatestJoinRequest(ctx context.Context, groupID, userID int64) (*joinrequest.JoinRequest, error) {
	var views []joinRequestView
	err := s.joinRequests(ctx).
		Where("jr.group_id = ? AND jr.user_id = ?", groupID, userID).
		Order("jr.requested_at DESC, jr.id DESC").
		Limit(1).
		Scan(&views).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get join request: %w", err)
	}
	if len(views) == 0 {
		return nil, nil
	}
	return views[0].toJoinRequest(), nil
}

// ListJoinRequests retrieves a group's requests in a status, oldest first
func (s *Store) ListJoinRequests(ctx context.Context, groupID int64, status joinrequest.Status) ([]*joinrequest.JoinRequest, error) {
	var views []joinRequestView
	err := s.joinRequests(ctx).
		Where("jr.group_id = ? AND jr.status = ?", groupID, string(status)).
		Order("jr.requested_at ASC, jr.id ASC").
		Scan(&views).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list join requests: %w", err)
	}

	requests := make([]*joinrequest.JoinRequest, len(views))
	for i := range views {
		requests[i] = views[i].toJoinRequest()
	}
	return requests, nil
}

// TransitionJoinRequest resolves a request that is still in status from
func (s *Store) TransitionJoinRequest(ctx context.Context, id int64, from joinrequest.Status, to joinrequest.Resolution) (*joinrequest.JoinRequest, error) {
	res := s.db.WithContext(ctx).
		Model(&joinRequestRow{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{
			"status":      string(to.Status),
			"resolved_by": to.By,
			"resolved_at": to.At,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update join request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return s.getJoinRequest(ctx, id)
}
