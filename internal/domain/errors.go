package domain

import "errors"

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindAuthorization
	KindConflict
)

// Error is a classified business error. Instances are declared once as
// sentinels and compared with errors.Is.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// NewError creates a classified error.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// KindOf returns the kind of the first classified error in err's chain,
// or KindInternal if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var (
	// ErrGroupNotOpen is returned when joining or locking a group that is not Open.
	ErrGroupNotOpen = NewError(KindConflict, "group not open")

	// ErrAlreadyMember is returned when a user joins a group twice.
	ErrAlreadyMember = NewError(KindConflict, "already a member of this group")

	// ErrGroupFull is returned when a group has no seat left.
	ErrGroupFull = NewError(KindConflict, "group is full")

	// ErrNotMember is returned when a non-member tries to leave a group.
	ErrNotMember = NewError(KindConflict, "not a member of this group")

	// ErrNotGroupAdmin is returned when a non-admin tries an admin-only operation.
	ErrNotGroupAdmin = NewError(KindAuthorization, "only the group admin can do this")

	// ErrGroupAccessDenied is returned when a non-member reads a group.
	ErrGroupAccessDenied = NewError(KindAuthorization, "not a member of this group")

	// ErrPoolRequestNotOpen is returned when a request that already left Open
	// is moved again.
	ErrPoolRequestNotOpen = NewError(KindConflict, "pool request is not open")
)
