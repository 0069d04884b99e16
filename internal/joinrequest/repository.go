package joinrequest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/fkhayef/bankroll/internal/apperr"
)

// Repository handles join request persistence
type Repository struct {
	db *sql.DB
}

var _ Store = (*Repository)(nil)

// NewRepository creates a new join request repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const joinRequestColumns = `jr.id, jr.group_id, jr.user_id, jr.message, jr.status,
	jr.requested_at, jr.resolved_by, jr.resolved_at, u.username`

type scanner interface {
	Scan(dest ...any) error
}

func scanJoinRequest(row scanner) (*JoinRequest, error) {
	jr := &JoinRequest{}
	err := row.Scan(
		&jr.ID,
		&jr.GroupID,
		&jr.UserID,
		&jr.Message,
		&jr.Status,
		&jr.RequestedAt,
		&jr.ResolvedBy,
		&jr.ResolvedAt,
		&jr.Username,
	)
	return jr, err
}

// CreateJoinRequest inserts a new pending request. The partial unique index
// on pending requests rejects a second one for the same user and group.
func (r *Repository) CreateJoinRequest(ctx context.Context, jr *JoinRequest) (*JoinRequest, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO join_requests (group_id, user_id, message, status, requested_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, jr.GroupID, jr.UserID, jr.Message, jr.Status, jr.RequestedAt).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, fmt.Errorf("join request %w", apperr.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create join request: %w", err)
	}

	return r.get(ctx, id)
}

func (r *Repository) get(ctx context.Context, id int64) (*JoinRequest, error) {
	query := `
		SELECT ` + joinRequestColumns + `
		FROM join_requests jr
		JOIN users u ON jr.user_id = u.id
		WHERE jr.id = $1
	`

	jr, err := scanJoinRequest(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get join request: %w", err)
	}
	return jr, nil
}

// GetLatestJoinRequest retrieves the newest request of a user for a group
func (r *Repository) GetLatestJoinRequest(ctx context.Context, groupID, userID int64) (*JoinRequest, error) {
	query := `
		SELECT ` + joinRequestColumns + `
		FROM join_requests jr
		JOIN users u ON jr.user_id = u.id
		WHERE jr.group_id = $1 AND jr.user_id = $2
		ORDER BY jr.requested_at DESC, jr.id DESC
		LIMIT 1
	`

	jr, err := scanJoinRequest(r.db.QueryRowContext(ctx, query, groupID, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get join request: %w", err)
	}
	return jr, nil
}

// ListJoinRequests retrieves a group's requests in a given status, oldest first
func (r *Repository) ListJoinRequests(ctx context.Context, groupID int64, status Status) ([]*JoinRequest, error) {
	query := `
		SELECT ` + joinRequestColumns + `
		FROM join_requests jr
		JOIN users u ON jr.user_id = u.id
		WHERE jr.group_id = $1 AND jr.status = $2
		ORDER BY jr.requested_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, groupID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list join requests: %w", err)
	}
	defer rows.Close()

	var requests []*JoinRequest
	for rows.Next() {
		jr, err := scanJoinRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan join request: %w", err)
		}
		requests = append(requests, jr)
	}

	return requests, rows.Err()
}

// TransitionJoinRequest resolves a request that is still in status from
func (r *Repository) TransitionJoinRequest(ctx context.Context, id int64, from Status, to Resolution) (*JoinRequest, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE join_requests
		SET status = $3, resolved_by = $4, resolved_at = $5
		WHERE id = $1 AND status = $2
	`, id, from, to.Status, to.By, to.At)
	if err != nil {
		return nil, fmt.Errorf("failed to update join request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to update join request: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	return r.get(ctx, id)
}
