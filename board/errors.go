package board

import "errors"

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotFound       = errors.New("not found")
	ErrOwnerProtected = errors.New("project owner cannot be demoted, deactivated or removed")
	ErrMemberInactive = errors.New("member is inactive")
	ErrNotPermitted   = errors.New("not permitted")
)

// RemoteError is a collaborator failure. By the time it is returned the
// optimistic change has been rolled back.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
