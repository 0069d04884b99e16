package group

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fkhayef/bankroll/internal/apperr"
	"github.com/fkhayef/bankroll/internal/metrics"
	"github.com/fkhayef/bankroll/internal/notification"
)

// Common errors
var (
	ErrGroupNotFound   = fmt.Errorf("group %w", apperr.ErrNotFound)
	ErrMemberNotFound  = fmt.Errorf("member %w", apperr.ErrNotFound)
	ErrDuplicateMember = fmt.Errorf("duplicate member: %w", apperr.ErrAlreadyMember)
	ErrAlreadyInvited  = fmt.Errorf("user %w", apperr.ErrAlreadyInvited)
	ErrNotAuthorized   = fmt.Errorf("group: %w", apperr.ErrUnauthorized)
	ErrOwnerProtected  = fmt.Errorf("group: %w", apperr.ErrOwnerProtected)
	ErrInvalidRole     = fmt.Errorf("role must be admin or member: %w", apperr.ErrInvalidInput)
	ErrInvalidGroup    = fmt.Errorf("group name is required and visibility must be public or private: %w", apperr.ErrInvalidInput)
	ErrPrivateGroup    = fmt.Errorf("group is private, request to join instead: %w", apperr.ErrUnauthorized)
	ErrMembershipRaced = fmt.Errorf("membership changed concurrently: %w", apperr.ErrAlreadyResolved)
	ErrNotInvited      = fmt.Errorf("no pending invitation for this user: %w", apperr.ErrNotFound)
	ErrAlreadyOwner    = fmt.Errorf("user already owns this group: %w", apperr.ErrInvalidInput)
)

// MemberTransition describes the new state of a membership row
type MemberTransition struct {
	Status    MemberStatus
	Role      MemberRole
	JoinedAt  *time.Time
	InvitedBy *int64
	InvitedAt *time.Time
}

// Store is the persistence port for groups and membership rows.
// Lookups return (nil, nil) when no row matches.
type Store interface {
	// CreateGroup inserts the group and its owner row in one transaction
	CreateGroup(ctx context.Context, g *Group, owner *GroupMember) (*Group, error)
	GetGroup(ctx context.Context, id int64) (*Group, error)
	ListGroupsByUserID(ctx context.Context, userID int64, limit, offset int) ([]*Group, int, error)
	UpdateGroup(ctx context.Context, id int64, req *UpdateGroupRequest) (*Group, error)
	// DissolveGroup deactivates the group and closes out its roster in one
	// transaction. Non-owner rows become removed, pending invitations are
	// cancelled and pending join requests are rejected by the acting user.
	DissolveGroup(ctx context.Context, id, by int64, at time.Time) error

	GetMember(ctx context.Context, groupID, userID int64) (*GroupMember, error)
	// ListMembers returns every row that is not removed
	ListMembers(ctx context.Context, groupID int64) ([]*GroupMember, error)
	// InsertMember fails with apperr.ErrAlreadyExists if a row for the pair exists
	InsertMember(ctx context.Context, m *GroupMember) (*GroupMember, error)
	// TransitionMember applies to only if the row is currently in status from.
	// It returns (nil, nil) when the row was not in that status.
	TransitionMember(ctx context.Context, groupID, userID int64, from MemberStatus, to MemberTransition) (*GroupMember, error)
	// TransferOwnership demotes the current owner to admin and promotes the
	// new owner in one transaction.
	TransferOwnership(ctx context.Context, groupID, fromUserID, toUserID int64) (*Group, error)
}

// RosterCache caches the member list of a group
type RosterCache interface {
	GetRoster(ctx context.Context, groupID int64) ([]*GroupMember, bool)
	SetRoster(ctx context.Context, groupID int64, members []*GroupMember) error
	InvalidateRoster(ctx context.Context, groupID int64) error
}

// Notifier receives membership events
type Notifier interface {
	NotifyGroupInvite(ctx context.Context, recipientID int64, p notification.Payload)
	NotifyMemberJoined(ctx context.Context, ownerID int64, p notification.Payload)
}

// WalletSeeder creates the zero balance row of a new member
type WalletSeeder interface {
	SeedBalance(ctx context.Context, groupID, userID int64) error
}

// Option configures a Service
type Option func(*Service)

func WithCache(c RosterCache) Option { return func(s *Service) { s.cache = c } }
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }
func WithWallet(w WalletSeeder) Option { return func(s *Service) { s.wallet = w } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithPublicJoinNotification controls whether the owner hears about
// self-joins to a public group
func WithPublicJoinNotification(enabled bool) Option {
	return func(s *Service) { s.notifyOnPublicJoin = enabled }
}

// Service handles groups and the membership ledger
type Service struct {
	store    Store
	cache    RosterCache
	notifier Notifier
	wallet   WalletSeeder
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time

	notifyOnPublicJoin bool
}

// NewService creates a new group service
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:              store,
		log:                zap.NewNop(),
		now:                time.Now,
		notifyOnPublicJoin: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// Create creates a new group with the creator as its owner
func (s *Service) Create(ctx context.Context, creatorID int64, req *CreateGroupRequest) (*Group, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 100 {
		return nil, ErrInvalidGroup
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = VisibilityPrivate
	}
	if !visibility.Valid() {
		return nil, ErrInvalidGroup
	}

	now := s.clock()
	g := &Group{
		Name:        name,
		Emoji:       req.Emoji,
		Description: req.Description,
		OwnerID:     creatorID,
		Visibility:  visibility,
		IsActive:    true,
		CreatedAt:   now,
	}
	owner := &GroupMember{
		UserID:   creatorID,
		Status:   MemberStatusOwner,
		Role:     MemberRoleOwner,
		JoinedAt: now,
	}

	created, err := s.store.CreateGroup(ctx, g, owner)
	if err != nil {
		return nil, err
	}

	s.seedWallet(ctx, created.ID, creatorID)
	s.metrics.MembershipChanged("created")
	s.log.Info("group created", zap.Int64("group_id", created.ID), zap.Int64("owner_id", creatorID))
	return created, nil
}

// GetByID retrieves an active group by its ID
func (s *Service) GetByID(ctx context.Context, id int64) (*Group, error) {
	group, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if group == nil || !group.IsActive {
		return nil, ErrGroupNotFound
	}
	return group, nil
}

// GetByIDWithMembers retrieves a group with all its members
func (s *Service) GetByIDWithMembers(ctx context.Context, id int64) (*Group, []*GroupMember, error) {
	group, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	members, err := s.roster(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return group, members, nil
}

// ListByUserID retrieves all groups a user belongs to
func (s *Service) ListByUserID(ctx context.Context, userID int64, page, perPage int) ([]*Group, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	offset := (page - 1) * perPage
	return s.store.ListGroupsByUserID(ctx, userID, perPage, offset)
}

// Update modifies a group's details. Owner or admin only.
func (s *Service) Update(ctx context.Context, id, actingUserID int64, req *UpdateGroupRequest) (*Group, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if _, err := s.RequireRole(ctx, id, actingUserID, MemberRoleOwner, MemberRoleAdmin); err != nil {
		return nil, err
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" || len(name) > 100 {
			return nil, ErrInvalidGroup
		}
		req.Name = &name
	}
	if req.Visibility != nil && !req.Visibility.Valid() {
		return nil, ErrInvalidGroup
	}

	group, err := s.store.UpdateGroup(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}
	return group, nil
}

// Delete deactivates a group and ends every membership other than the
// owner's. Owner only.
func (s *Service) Delete(ctx context.Context, id, actingUserID int64) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	if _, err := s.RequireRole(ctx, id, actingUserID, MemberRoleOwner); err != nil {
		return err
	}
	if err := s.store.DissolveGroup(ctx, id, actingUserID, s.clock()); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.log.Info("group deactivated", zap.Int64("group_id", id), zap.Int64("user_id", actingUserID))
	return nil
}

// RequireRole returns the acting user's membership if it is active and holds
// one of roles, and ErrNotAuthorized otherwise.
func (s *Service) RequireRole(ctx context.Context, groupID, userID int64, roles ...MemberRole) (*GroupMember, error) {
	member, err := s.store.GetMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil || !member.IsActive() {
		return nil, ErrNotAuthorized
	}
	for _, role := range roles {
		if member.Role == role {
			return member, nil
		}
	}
	return nil, ErrNotAuthorized
}

// GetMember returns the membership row of a user, or ErrMemberNotFound
func (s *Service) GetMember(ctx context.Context, groupID, userID int64) (*GroupMember, error) {
	member, err := s.store.GetMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrMemberNotFound
	}
	return member, nil
}

// IsActiveMember reports whether the user currently belongs to the group
func (s *Service) IsActiveMember(ctx context.Context, groupID, userID int64) (bool, error) {
	member, err := s.store.GetMember(ctx, groupID, userID)
	if err != nil {
		return false, err
	}
	return member != nil && member.IsActive(), nil
}

// GetStatus returns the membership status of a user
func (s *Service) GetStatus(ctx context.Context, groupID, userID int64) (MemberStatus, error) {
	member, err := s.GetMember(ctx, groupID, userID)
	if err != nil {
		return "", err
	}
	return member.Status, nil
}

// ListMembers returns the group roster, served from the cache when possible
func (s *Service) ListMembers(ctx context.Context, groupID int64) ([]*GroupMember, error) {
	if _, err := s.GetByID(ctx, groupID); err != nil {
		return nil, err
	}
	return s.roster(ctx, groupID)
}

// ManagerIDs returns the user ids of the owner and admins
func (s *Service) ManagerIDs(ctx context.Context, groupID int64) ([]int64, error) {
	members, err := s.roster(ctx, groupID)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, m := range members {
		if m.IsActive() && m.Role.CanManage() {
			ids = append(ids, m.UserID)
		}
	}
	return ids, nil
}

// AddMember makes a user an active member with the given role. An invited row
// is promoted and a removed row is reactivated; any active row is a duplicate.
func (s *Service) AddMember(ctx context.Context, groupID, userID int64, role MemberRole) (*GroupMember, error) {
	if !role.Assignable() {
		return nil, ErrInvalidRole
	}
	if _, err := s.GetByID(ctx, groupID); err != nil {
		return nil, err
	}

	existing, err := s.store.GetMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	var member *GroupMember
	switch {
	case existing == nil:
		member, err = s.store.InsertMember(ctx, &GroupMember{
			GroupID:  groupID,
			UserID:   userID,
			Status:   role.ActiveStatus(),
			Role:     role,
			JoinedAt: now,
		})
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return nil, ErrDuplicateMember
		}
	case existing.IsActive():
		return nil, ErrDuplicateMember
	default:
		member, err = s.store.TransitionMember(ctx, groupID, userID, existing.Status, MemberTransition{
			Status:   role.ActiveStatus(),
			Role:     role,
			JoinedAt: &now,
		})
		if err == nil && member == nil {
			err = ErrMembershipRaced
		}
	}
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, groupID)
	s.seedWallet(ctx, groupID, userID)
	s.metrics.MembershipChanged("added")
	s.log.Info("member added",
		zap.Int64("group_id", groupID),
		zap.Int64("user_id", userID),
		zap.String("role", string(role)),
	)
	return member, nil
}

// InviteMember records an in-app invitation of an existing user. The acting
// user must be an owner or admin.
func (s *Service) InviteMember(ctx context.Context, groupID, userID, actingUserID int64) (*GroupMember, error) {
	group, err := s.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := s.RequireRole(ctx, groupID, actingUserID, MemberRoleOwner, MemberRoleAdmin); err != nil {
		return nil, err
	}

	existing, err := s.store.GetMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	var member *GroupMember
	switch {
	case existing == nil:
		member, err = s.store.InsertMember(ctx, &GroupMember{
			GroupID:   groupID,
			UserID:    userID,
			Status:    MemberStatusInvited,
			Role:      MemberRoleMember,
			JoinedAt:  now,
			InvitedBy: &actingUserID,
			InvitedAt: &now,
		})
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return nil, ErrAlreadyInvited
		}
	case existing.IsActive():
		return nil, ErrDuplicateMember
	case existing.Status == MemberStatusInvited:
		return nil, ErrAlreadyInvited
	default:
		member, err = s.store.TransitionMember(ctx, groupID, userID, existing.Status, MemberTransition{
			Status:    MemberStatusInvited,
			Role:      MemberRoleMember,
			InvitedBy: &actingUserID,
			InvitedAt: &now,
		})
		if err == nil && member == nil {
			err = ErrMembershipRaced
		}
	}
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, groupID)
	s.metrics.MembershipChanged("invited")
	if s.notifier != nil {
		s.notifier.NotifyGroupInvite(ctx, userID, notification.Payload{
			GroupID:    groupID,
			GroupName:  group.Name,
			ActorID:    actingUserID,
			EntityType: notification.EntityGroup,
			EntityID:   groupID,
		})
	}
	return member, nil
}

// AcceptInvitation promotes the user's invited row to member. Accepting twice
// returns the existing membership.
func (s *Service) AcceptInvitation(ctx context.Context, groupID, userID int64) (*GroupMember, error) {
	if _, err := s.GetByID(ctx, groupID); err != nil {
		return nil, err
	}
	existing, err := s.store.GetMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotInvited
	}
	if existing.IsActive() {
		return existing, nil
	}
	if existing.Status != MemberStatusInvited {
		return nil, ErrNotInvited
	}
	return s.AddMember(ctx, groupID, userID, MemberRoleMember)
}

// DeclineInvitation marks the user's invited row as removed
func (s *Service) DeclineInvitation(ctx context.Context, groupID, userID int64) error {
	existing, err := s.store.GetMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if existing == nil || existing.Status != MemberStatusInvited {
		return ErrNotInvited
	}

	updated, err := s.store.TransitionMember(ctx, groupID, userID, MemberStatusInvited, MemberTransition{
		Status: MemberStatusRemoved,
		Role:   existing.Role,
	})
	if err != nil {
		return err
	}
	if updated == nil {
		return ErrMembershipRaced
	}

	s.invalidate(ctx, groupID)
	s.metrics.MembershipChanged("declined")
	return nil
}

// Join adds the user to a public group immediately
func (s *Service) Join(ctx context.Context, groupID, userID int64) (*GroupMember, error) {
	group, err := s.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsPublic() {
		return nil, ErrPrivateGroup
	}

	member, err := s.AddMember(ctx, groupID, userID, MemberRoleMember)
	if err != nil {
		return nil, err
	}

	if s.notifyOnPublicJoin && s.notifier != nil && group.OwnerID != userID {
		s.notifier.NotifyMemberJoined(ctx, group.OwnerID, notification.Payload{
			GroupID:    groupID,
			GroupName:  group.Name,
			ActorID:    userID,
			EntityType: notification.EntityGroup,
			EntityID:   groupID,
		})
	}
	return member, nil
}

// Leave removes the acting user from the group. The owner cannot leave.
func (s *Service) Leave(ctx context.Context, groupID, userID int64) error {
	member, err := s.store.GetMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if member == nil || !member.IsActive() {
		return ErrMemberNotFound
	}
	if member.Status == MemberStatusOwner {
		return ErrOwnerProtected
	}
	return s.markRemoved(ctx, member, "left")
}

// RemoveMember removes a user from a group. The acting user must be an owner
// or admin, and the owner can never be removed.
func (s *Service) RemoveMember(ctx context.Context, groupID, userID, actingUserID int64) error {
	if _, err := s.RequireRole(ctx, groupID, actingUserID, MemberRoleOwner, MemberRoleAdmin); err != nil {
		return err
	}

	member, err := s.store.GetMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if member == nil || member.Status == MemberStatusRemoved {
		return ErrMemberNotFound
	}
	if member.Status == MemberStatusOwner {
		return ErrOwnerProtected
	}
	return s.markRemoved(ctx, member, "removed")
}

func (s *Service) markRemoved(ctx context.Context, member *GroupMember, change string) error {
	updated, err := s.store.TransitionMember(ctx, member.GroupID, member.UserID, member.Status, MemberTransition{
		Status: MemberStatusRemoved,
		Role:   member.Role,
	})
	if err != nil {
		return err
	}
	if updated == nil {
		return ErrMembershipRaced
	}

	s.invalidate(ctx, member.GroupID)
	s.metrics.MembershipChanged(change)
	s.log.Info("member removed",
		zap.Int64("group_id", member.GroupID),
		zap.Int64("user_id", member.UserID),
		zap.String("reason", change),
	)
	return nil
}

// UpdateRole changes an active member's role between admin and member.
// Owner only; the owner's own role only changes through TransferOwnership.
func (s *Service) UpdateRole(ctx context.Context, groupID, userID int64, role MemberRole, actingUserID int64) (*GroupMember, error) {
	if _, err := s.RequireRole(ctx, groupID, actingUserID, MemberRoleOwner); err != nil {
		return nil, err
	}

	member, err := s.store.GetMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil || !member.IsActive() {
		return nil, ErrMemberNotFound
	}
	if member.Status == MemberStatusOwner {
		return nil, ErrOwnerProtected
	}
	if !role.Assignable() {
		return nil, ErrInvalidRole
	}
	if member.Role == role {
		return member, nil
	}

	updated, err := s.store.TransitionMember(ctx, groupID, userID, member.Status, MemberTransition{
		Status: role.ActiveStatus(),
		Role:   role,
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrMembershipRaced
	}

	s.invalidate(ctx, groupID)
	s.metrics.MembershipChanged("role_changed")
	return updated, nil
}

// TransferOwnership hands the group to another active member. The previous
// owner stays on as an admin.
func (s *Service) TransferOwnership(ctx context.Context, groupID, newOwnerID, actingUserID int64) (*Group, error) {
	if _, err := s.GetByID(ctx, groupID); err != nil {
		return nil, err
	}
	if _, err := s.RequireRole(ctx, groupID, actingUserID, MemberRoleOwner); err != nil {
		return nil, err
	}
	if newOwnerID == actingUserID {
		return nil, ErrAlreadyOwner
	}

	target, err := s.store.GetMember(ctx, groupID, newOwnerID)
	if err != nil {
		return nil, err
	}
	if target == nil || !target.IsActive() {
		return nil, ErrMemberNotFound
	}

	group, err := s.store.TransferOwnership(ctx, groupID, actingUserID, newOwnerID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrMembershipRaced
	}

	s.invalidate(ctx, groupID)
	s.metrics.MembershipChanged("ownership_transferred")
	s.log.Info("ownership transferred",
		zap.Int64("group_id", groupID),
		zap.Int64("from_user_id", actingUserID),
		zap.Int64("to_user_id", newOwnerID),
	)
	return group, nil
}

func (s *Service) roster(ctx context.Context, groupID int64) ([]*GroupMember, error) {
	if s.cache != nil {
		if members, ok := s.cache.GetRoster(ctx, groupID); ok {
			return members, nil
		}
	}

	members, err := s.store.ListMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetRoster(ctx, groupID, members); err != nil {
			s.log.Warn("failed to cache roster", zap.Int64("group_id", groupID), zap.Error(err))
		}
	}
	return members, nil
}

func (s *Service) invalidate(ctx context.Context, groupID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateRoster(ctx, groupID); err != nil {
		s.log.Warn("failed to invalidate roster", zap.Int64("group_id", groupID), zap.Error(err))
	}
}

func (s *Service) seedWallet(ctx context.Context, groupID, userID int64) {
	if s.wallet == nil {
		return
	}
	if err := s.wallet.SeedBalance(ctx, groupID, userID); err != nil {
		s.log.Warn("failed to seed wallet balance",
			zap.Int64("group_id", groupID),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
}
