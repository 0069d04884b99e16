package group

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/fkhayef/bankroll/internal/apperr"
)

// Repository handles group data persistence
type Repository struct {
	db *sql.DB
}

var _ Store = (*Repository)(nil)

// NewRepository creates a new group repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const groupColumns = `id, name, emoji, description, owner_id, visibility, is_active, created_at`

const memberColumns = `gm.id, gm.group_id, gm.user_id, gm.status, gm.role, gm.joined_at,
	gm.invited_by, gm.invited_at, gm.last_active, u.username, u.email`

type scanner interface {
	Scan(dest ...any) error
}

func scanGroup(row scanner) (*Group, error) {
	group := &Group{}
	err := row.Scan(
		&group.ID,
		&group.Name,
		&group.Emoji,
		&group.Description,
		&group.OwnerID,
		&group.Visibility,
		&group.IsActive,
		&group.CreatedAt,
	)
	return group, err
}

func scanMember(row scanner) (*GroupMember, error) {
	member := &GroupMember{}
	err := row.Scan(
		&member.ID,
		&member.GroupID,
		&member.UserID,
		&member.Status,
		&member.Role,
		&member.JoinedAt,
		&member.InvitedBy,
		&member.InvitedAt,
		&member.LastActive,
		&member.Username,
		&member.Email,
	)
	return member, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// CreateGroup inserts a new group and its owner membership in one transaction
func (r *Repository) CreateGroup(ctx context.Context, g *Group, owner *GroupMember) (*Group, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO groups (name, emoji, description, owner_id, visibility, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + groupColumns

	created, err := scanGroup(tx.QueryRowContext(ctx, query,
		g.Name, g.Emoji, g.Description, g.OwnerID, g.Visibility, g.IsActive, g.CreatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id, status, role, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`, created.ID, owner.UserID, owner.Status, owner.Role, owner.JoinedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add group owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit group: %w", err)
	}
	return created, nil
}

// GetGroup retrieves a group by its ID
func (r *Repository) GetGroup(ctx context.Context, id int64) (*Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1`

	group, err := scanGroup(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	return group, nil
}

// ListGroupsByUserID retrieves the active groups a user belongs to
func (r *Repository) ListGroupsByUserID(ctx context.Context, userID int64, limit, offset int) ([]*Group, int, error) {
	// Get total count
	var total int
	countQuery := `
		SELECT COUNT(DISTINCT g.id)
		FROM groups g
		JOIN group_members gm ON g.id = gm.group_id
		WHERE gm.user_id = $1
		  AND g.is_active
		  AND gm.status IN ('owner', 'admin', 'member')
	`
	if err := r.db.QueryRowContext(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count groups: %w", err)
	}

	// Get groups
	query := `
		SELECT g.id, g.name, g.emoji, g.description, g.owner_id, g.visibility, g.is_active, g.created_at
		FROM groups g
		JOIN group_members gm ON g.id = gm.group_id
		WHERE gm.user_id = $1
		  AND g.is_active
		  AND gm.status IN ('owner', 'admin', 'member')
		ORDER BY g.created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, group)
	}

	return groups, total, rows.Err()
}

// UpdateGroup modifies an existing group
func (r *Repository) UpdateGroup(ctx context.Context, id int64, req *UpdateGroupRequest) (*Group, error) {
	query := `
		UPDATE groups
		SET name = COALESCE($2, name),
		    emoji = COALESCE($3, emoji),
		    description = COALESCE($4, description),
		    visibility = COALESCE($5, visibility)
		WHERE id = $1
		RETURNING ` + groupColumns

	group, err := scanGroup(r.db.QueryRowContext(ctx, query, id, req.Name, req.Emoji, req.Description, req.Visibility))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update group: %w", err)
	}

	return group, nil
}

// DissolveGroup hides a group and closes out its roster without deleting
// its history
func (r *Repository) DissolveGroup(ctx context.Context, id, by int64, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE groups SET is_active = FALSE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to deactivate group: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE group_members SET status = 'removed'
		WHERE group_id = $1 AND status NOT IN ('owner', 'removed')
	`, id)
	if err != nil {
		return fmt.Errorf("failed to remove group members: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE invitations SET status = 'cancelled', cancelled_at = $2
		WHERE group_id = $1 AND status = 'pending'
	`, id, at)
	if err != nil {
		return fmt.Errorf("failed to cancel pending invitations: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE join_requests SET status = 'rejected', resolved_by = $2, resolved_at = $3
		WHERE group_id = $1 AND status = 'pending'
	`, id, by, at)
	if err != nil {
		return fmt.Errorf("failed to reject pending join requests: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit group deactivation: %w", err)
	}
	return nil
}

// GetMember retrieves a specific member of a group
func (r *Repository) GetMember(ctx context.Context, groupID, userID int64) (*GroupMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM group_members gm
		JOIN users u ON gm.user_id = u.id
		WHERE gm.group_id = $1 AND gm.user_id = $2
	`

	member, err := scanMember(r.db.QueryRowContext(ctx, query, groupID, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return member, nil
}

// ListMembers retrieves every member of a group that has not been removed
func (r *Repository) ListMembers(ctx context.Context, groupID int64) ([]*GroupMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM group_members gm
		JOIN users u ON gm.user_id = u.id
		WHERE gm.group_id = $1 AND gm.status <> 'removed'
		ORDER BY gm.joined_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()

	var members []*GroupMember
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}

	return members, rows.Err()
}

// InsertMember adds a membership row
func (r *Repository) InsertMember(ctx context.Context, m *GroupMember) (*GroupMember, error) {
	query := `
		INSERT INTO group_members (group_id, user_id, status, role, joined_at, invited_by, invited_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query, m.GroupID, m.UserID, m.Status, m.Role, m.JoinedAt, m.InvitedBy, m.InvitedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("membership %w", apperr.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	return r.GetMember(ctx, m.GroupID, m.UserID)
}

// TransitionMember moves a membership row out of status from. Nothing is
// written if another request changed the row first.
func (r *Repository) TransitionMember(ctx context.Context, groupID, userID int64, from MemberStatus, to MemberTransition) (*GroupMember, error) {
	query := `
		UPDATE group_members
		SET status = $4,
		    role = $5,
		    joined_at = COALESCE($6, joined_at),
		    invited_by = COALESCE($7, invited_by),
		    invited_at = COALESCE($8, invited_at)
		WHERE group_id = $1 AND user_id = $2 AND status = $3
	`

	res, err := r.db.ExecContext(ctx, query, groupID, userID, from, to.Status, to.Role, to.JoinedAt, to.InvitedBy, to.InvitedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to update member: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	return r.GetMember(ctx, groupID, userID)
}

// TransferOwnership swaps the owner in one transaction
func (r *Repository) TransferOwnership(ctx context.Context, groupID, fromUserID, toUserID int64) (*Group, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE group_members SET status = 'admin', role = 'admin'
		WHERE group_id = $1 AND user_id = $2 AND status = 'owner'
	`, groupID, fromUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to demote owner: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE group_members SET status = 'owner', role = 'owner'
		WHERE group_id = $1 AND user_id = $2 AND status IN ('admin', 'member')
	`, groupID, toUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to promote owner: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}

	query := `UPDATE groups SET owner_id = $2 WHERE id = $1 RETURNING ` + groupColumns
	group, err := scanGroup(tx.QueryRowContext(ctx, query, groupID, toUserID))
	if err != nil {
		return nil, fmt.Errorf("failed to update group owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit ownership transfer: %w", err)
	}
	return group, nil
}
