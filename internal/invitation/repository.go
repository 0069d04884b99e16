package invitation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Repository handles invitation persistence
type Repository struct {
	db *sql.DB
}

var _ Store = (*Repository)(nil)

// NewRepository creates a new invitation repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// pendingInviteeIndex allows one pending email or SMS invitation per
// recipient and group
const pendingInviteeIndex = "invitations_one_pending"

const invitationColumns = `id, group_id, inviter_id, kind, invitee, token, password_hash, status, message,
	expires_at, created_at, accepted_at, accepted_by, declined_at, cancelled_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanInvitation(row scanner) (*Invitation, error) {
	inv := &Invitation{}
	err := row.Scan(
		&inv.ID,
		&inv.GroupID,
		&inv.InviterID,
		&inv.Kind,
		&inv.Invitee,
		&inv.Token,
		&inv.PasswordHash,
		&inv.Status,
		&inv.Message,
		&inv.ExpiresAt,
		&inv.CreatedAt,
		&inv.AcceptedAt,
		&inv.AcceptedBy,
		&inv.DeclinedAt,
		&inv.CancelledAt,
	)
	return inv, err
}

func (r *Repository) getOne(ctx context.Context, what, query string, args ...any) (*Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to %s: %w", what, err)
	}
	return inv, nil
}

// CreateInvitation inserts a new invitation
func (r *Repository) CreateInvitation(ctx context.Context, inv *Invitation) (*Invitation, error) {
	query := `
		INSERT INTO invitations (group_id, inviter_id, kind, invitee, token, password_hash, status, message, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + invitationColumns

	created, err := scanInvitation(r.db.QueryRowContext(ctx, query,
		inv.GroupID, inv.InviterID, inv.Kind, inv.Invitee, inv.Token, inv.PasswordHash,
		inv.Status, inv.Message, inv.ExpiresAt, inv.CreatedAt,
	))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == pendingInviteeIndex {
			return nil, ErrAlreadyInvited
		}
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}
	return created, nil
}

// GetInvitation retrieves an invitation by its ID
func (r *Repository) GetInvitation(ctx context.Context, id int64) (*Invitation, error) {
	return r.getOne(ctx, "get invitation",
		`SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id)
}

// GetInvitationByToken retrieves an invitation by its token
func (r *Repository) GetInvitationByToken(ctx context.Context, token string) (*Invitation, error) {
	return r.getOne(ctx, "get invitation by token",
		`SELECT `+invitationColumns+` FROM invitations WHERE token = $1`, token)
}

// FindPendingInvitation retrieves the latest pending invitation for an invitee
func (r *Repository) FindPendingInvitation(ctx context.Context, groupID int64, kind Kind, invitee string) (*Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE group_id = $1 AND kind = $2 AND invitee = $3 AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, "find pending invitation", query, groupID, kind, invitee)
}

// ListInvitations retrieves a group's invitations, newest first
func (r *Repository) ListInvitations(ctx context.Context, groupID int64, status Status) ([]*Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE group_id = $1 AND ($2::text = '' OR status = $2)
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, groupID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}

	return invitations, rows.Err()
}

// TransitionInvitation changes the status of an invitation that is still in
// status from and stamps the matching timestamp column
func (r *Repository) TransitionInvitation(ctx context.Context, id int64, from Status, to Transition) (*Invitation, error) {
	var set string
	args := []any{id, from, to.Status}

	switch to.Status {
	case StatusAccepted:
		set = `, accepted_at = $4, accepted_by = $5`
		args = append(args, to.At, to.AcceptedBy)
	case StatusDeclined:
		set = `, declined_at = $4`
		args = append(args, to.At)
	case StatusCancelled:
		set = `, cancelled_at = $4`
		args = append(args, to.At)
	case StatusPending:
		set = `, accepted_at = NULL, accepted_by = NULL`
	}

	query := `
		UPDATE invitations
		SET status = $3` + set + `
		WHERE id = $1 AND status = $2
		RETURNING ` + invitationColumns

	return r.getOne(ctx, "update invitation", query, args...)
}

// ExpirePending marks every pending invitation past its expiry as expired
func (r *Repository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE invitations SET status = 'expired'
		WHERE status = 'pending' AND expires_at < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire invitations: %w", err)
	}
	return res.RowsAffected()
}
