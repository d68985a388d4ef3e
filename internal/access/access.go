// Package access decides whether a caller may act on a user record.
//
// Anonymous callers are denied every protected operation. Authenticated
// callers may act on their own record only, unless they are staff, in which
// case any record is allowed. Public operations never reach this package;
// the router skips the check for them.
package access

import (
	apperrors "accounts/internal/errors"
	"accounts/internal/model"
)

// Kind classifies a caller.
type Kind int

const (
	KindAnonymous Kind = iota
	KindUser
	KindStaff
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindStaff:
		return "staff"
	default:
		return "anonymous"
	}
}

// Principal is the identity a request runs as.
type Principal struct {
	Kind   Kind
	UserID uint
}

// Anonymous returns the unauthenticated principal.
func Anonymous() Principal {
	return Principal{Kind: KindAnonymous}
}

// Authenticated returns a principal for a logged-in user.
func Authenticated(userID uint, isStaff bool) Principal {
	if isStaff {
		return Principal{Kind: KindStaff, UserID: userID}
	}
	return Principal{Kind: KindUser, UserID: userID}
}

// ForUser derives the principal of a loaded user.
func ForUser(u *model.User) Principal {
	if u == nil {
		return Anonymous()
	}
	return Authenticated(u.ID, u.IsStaff)
}

// IsAnonymous reports whether no user is attached.
func (p Principal) IsAnonymous() bool {
	return p.Kind == KindAnonymous
}

// RequireAuthenticated fails for anonymous callers.
func (p Principal) RequireAuthenticated() error {
	if p.IsAnonymous() {
		return apperrors.ErrUnauthorized
	}
	return nil
}

// CanModify checks the object-level rule for the record identified by targetID.
func (p Principal) CanModify(targetID uint) error {
	switch p.Kind {
	case KindStaff:
		return nil
	case KindUser:
		if p.UserID == targetID {
			return nil
		}
		return apperrors.ErrForbidden
	default:
		return apperrors.ErrUnauthorized
	}
}

// Visible narrows users to the records the principal may see.
func (p Principal) Visible(users []model.User) []model.User {
	switch p.Kind {
	case KindStaff:
		return users
	case KindUser:
		for _, u := range users {
			if u.ID == p.UserID {
				return []model.User{u}
			}
		}
	}
	return []model.User{}
}
