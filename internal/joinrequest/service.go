package joinrequest

import (
	"context"
	"errors"
	"fmt"
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
	ErrJoinRequestNotFound = fmt.Errorf("join request %w", apperr.ErrNotFound)
	ErrAlreadyRequested    = apperr.ErrAlreadyRequested
	ErrAlreadyMember       = apperr.ErrAlreadyMember
	ErrAlreadyResolved     = fmt.Errorf("join request %w", apperr.ErrAlreadyResolved)
)

// Resolution describes the new state of a join request
type Resolution struct {
	Status Status
	By     *int64
	At     *time.Time
}

// Store is the persistence port for join requests. Lookups return (nil, nil)
// when no row matches.
type Store interface {
	// CreateJoinRequest fails with apperr.ErrAlreadyExists if a pending
	// request for the pair exists
	CreateJoinRequest(ctx context.Context, jr *JoinRequest) (*JoinRequest, error)
	// GetLatestJoinRequest returns the most recent request of a user for a group
	GetLatestJoinRequest(ctx context.Context, groupID, userID int64) (*JoinRequest, error)
	ListJoinRequests(ctx context.Context, groupID int64, status Status) ([]*JoinRequest, error)
	// TransitionJoinRequest applies to only if the request is in status from.
	// It returns (nil, nil) when another admin resolved it first.
	TransitionJoinRequest(ctx context.Context, id int64, from Status, to Resolution) (*JoinRequest, error)
}

// Ledger is the slice of the membership ledger join requests depend on
type Ledger interface {
	GetByID(ctx context.Context, id int64) (*group.Group, error)
	RequireRole(ctx context.Context, groupID, userID int64, roles ...group.MemberRole) (*group.GroupMember, error)
	GetMember(ctx context.Context, groupID, userID int64) (*group.GroupMember, error)
	IsActiveMember(ctx context.Context, groupID, userID int64) (bool, error)
	AddMember(ctx context.Context, groupID, userID int64, role group.MemberRole) (*group.GroupMember, error)
	Join(ctx context.Context, groupID, userID int64) (*group.GroupMember, error)
	ManagerIDs(ctx context.Context, groupID int64) ([]int64, error)
}

// Notifier receives join request events
type Notifier interface {
	NotifyJoinRequested(ctx context.Context, adminIDs []int64, p notification.Payload)
	NotifyJoinResolved(ctx context.Context, userID int64, approved bool, p notification.Payload)
}

// Directory resolves user names for notifications
type Directory interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
}

// Service runs the join request workflow
type Service struct {
	store    Store
	ledger   Ledger
	users    Directory
	notifier Notifier
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

// NewService creates a new join request service. users and notifier may be nil.
func NewService(store Store, ledger Ledger, users Directory, notifier Notifier, m *metrics.Metrics, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:    store,
		ledger:   ledger,
		users:    users,
		notifier: notifier,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// SetClock replaces the service clock
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// RequestToJoin asks to join a group. Public groups are joined immediately;
// private groups get a pending request the owner and admins are told about.
func (s *Service) RequestToJoin(ctx context.Context, groupID, userID int64, message *string) (*Outcome, error) {
	g, err := s.ledger.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}

	member, err := s.ledger.IsActiveMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if member {
		return nil, ErrAlreadyMember
	}

	if g.IsPublic() {
		m, err := s.ledger.Join(ctx, groupID, userID)
		if err != nil {
			return nil, err
		}
		s.metrics.JoinRequest("joined")
		return &Outcome{Member: m}, nil
	}

	latest, err := s.store.GetLatestJoinRequest(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.Status == StatusPending {
		return nil, ErrAlreadyRequested
	}

	jr, err := s.store.CreateJoinRequest(ctx, &JoinRequest{
		GroupID:     groupID,
		UserID:      userID,
		Message:     message,
		Status:      StatusPending,
		RequestedAt: s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return nil, ErrAlreadyRequested
		}
		return nil, err
	}

	s.metrics.JoinRequest("requested")
	s.log.Info("join requested", zap.Int64("group_id", groupID), zap.Int64("user_id", userID))

	if s.notifier != nil {
		managers, err := s.ledger.ManagerIDs(ctx, groupID)
		if err != nil {
			s.log.Warn("failed to load group managers", zap.Int64("group_id", groupID), zap.Error(err))
		} else {
			s.notifier.NotifyJoinRequested(ctx, managers, s.payload(ctx, g, jr, userID))
		}
	}
	return &Outcome{Request: jr}, nil
}

// Approve accepts a pending request and adds the requester as a member
func (s *Service) Approve(ctx context.Context, groupID, userID, adminID int64) (*group.GroupMember, error) {
	g, jr, err := s.pendingFor(ctx, groupID, userID, adminID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	approved, err := s.store.TransitionJoinRequest(ctx, jr.ID, StatusPending, Resolution{
		Status: StatusApproved,
		By:     &adminID,
		At:     &now,
	})
	if err != nil {
		return nil, err
	}
	if approved == nil {
		return nil, ErrAlreadyResolved
	}

	member, err := s.ledger.AddMember(ctx, groupID, userID, group.MemberRoleMember)
	switch {
	case errors.Is(err, apperr.ErrAlreadyMember):
		// Joined some other way in the meantime; the approval stands
		member, err = s.ledger.GetMember(ctx, groupID, userID)
	case err != nil:
		if _, revertErr := s.store.TransitionJoinRequest(ctx, jr.ID, StatusApproved, Resolution{Status: StatusPending}); revertErr != nil {
			s.log.Error("failed to reopen join request after membership error",
				zap.Int64("join_request_id", jr.ID),
				zap.Error(revertErr),
			)
		}
	}
	if err != nil {
		return nil, err
	}

	s.metrics.JoinRequest(string(StatusApproved))
	s.log.Info("join request approved",
		zap.Int64("group_id", groupID),
		zap.Int64("user_id", userID),
		zap.Int64("admin_id", adminID),
	)
	if s.notifier != nil {
		s.notifier.NotifyJoinResolved(ctx, userID, true, s.payload(ctx, g, approved, adminID))
	}
	return member, nil
}

// Reject declines a pending request
func (s *Service) Reject(ctx context.Context, groupID, userID, adminID int64) (*JoinRequest, error) {
	g, jr, err := s.pendingFor(ctx, groupID, userID, adminID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rejected, err := s.store.TransitionJoinRequest(ctx, jr.ID, StatusPending, Resolution{
		Status: StatusRejected,
		By:     &adminID,
		At:     &now,
	})
	if err != nil {
		return nil, err
	}
	if rejected == nil {
		return nil, ErrAlreadyResolved
	}

	s.metrics.JoinRequest(string(StatusRejected))
	if s.notifier != nil {
		s.notifier.NotifyJoinResolved(ctx, userID, false, s.payload(ctx, g, rejected, adminID))
	}
	return rejected, nil
}

// ListPending returns the open requests of a group. Owner or admin only.
func (s *Service) ListPending(ctx context.Context, groupID, adminID int64) ([]*JoinRequest, error) {
	if _, err := s.ledger.GetByID(ctx, groupID); err != nil {
		return nil, err
	}
	if _, err := s.ledger.RequireRole(ctx, groupID, adminID, group.MemberRoleOwner, group.MemberRoleAdmin); err != nil {
		return nil, err
	}
	return s.store.ListJoinRequests(ctx, groupID, StatusPending)
}

func (s *Service) pendingFor(ctx context.Context, groupID, userID, adminID int64) (*group.Group, *JoinRequest, error) {
	g, err := s.ledger.GetByID(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.ledger.RequireRole(ctx, groupID, adminID, group.MemberRoleOwner, group.MemberRoleAdmin); err != nil {
		return nil, nil, err
	}

	jr, err := s.store.GetLatestJoinRequest(ctx, groupID, userID)
	if err != nil {
		return nil, nil, err
	}
	if jr == nil {
		return nil, nil, ErrJoinRequestNotFound
	}
	if jr.Status != StatusPending {
		return nil, nil, ErrAlreadyResolved
	}
	return g, jr, nil
}

func (s *Service) payload(ctx context.Context, g *group.Group, jr *JoinRequest, actorID int64) notification.Payload {
	p := notification.Payload{
		GroupID:    g.ID,
		GroupName:  g.Name,
		ActorID:    actorID,
		EntityType: notification.EntityJoinRequest,
		EntityID:   jr.ID,
	}
	if jr.Message != nil {
		p.Message = *jr.Message
	}
	if s.users != nil {
		if u, err := s.users.GetByID(ctx, actorID); err == nil {
			p.ActorName = u.Username
		}
	}
	return p
}
