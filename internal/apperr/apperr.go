// Package apperr holds the error kinds shared by the membership, invitation
// and join-request packages. Feature packages wrap these with their own
// sentinels so callers can match either the specific or the general error.
package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("not authorized to perform this action")
	ErrAlreadyExists     = errors.New("already exists")
	ErrAlreadyMember     = errors.New("user is already a member of this group")
	ErrAlreadyInvited    = errors.New("an invitation is already pending for this recipient")
	ErrAlreadyRequested  = errors.New("a join request is already pending")
	ErrExpired           = errors.New("expired")
	ErrAlreadyResolved   = errors.New("already resolved")
	ErrInvalidIdentifier = errors.New("invalid email address or phone number")
	ErrInvalidPassword   = errors.New("invalid password")
	ErrOwnerProtected    = errors.New("the group owner cannot be removed or demoted")
	ErrIdentityMismatch  = errors.New("invitation was issued to a different recipient")
	ErrInvalidInput      = errors.New("invalid input")
)

// IsFatal reports whether err should abort the requested operation as opposed
// to being reported as a partial result.
func IsFatal(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrAlreadyResolved):
		return true
	}
	return false
}
