package session

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrRemoteCallFailed is an explicit rejection or transport failure from the backend
	ErrRemoteCallFailed = errors.New("remote call failed")
	// ErrRemoteCallTimeout means the backend did not answer within the bounded wait
	ErrRemoteCallTimeout = errors.New("remote call timed out")
)

// IgnoreError is returned by AddIgnoredUser and RemoveIgnoredUser.
// errors.Is matches both the kind and the remote cause.
type IgnoreError struct {
	Op       string // "ignoring" or "unignoring"
	Username string
	Kind     error
	Err      error
}

func (e *IgnoreError) Error() string {
	detail := e.Kind.Error()
	if e.Err != nil {
		detail = e.Err.Error()
	}
	return fmt.Sprintf("error while %s user %q: %s", e.Op, e.Username, detail)
}

func (e *IgnoreError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newIgnoreError(op, username string, err error) *IgnoreError {
	kind := ErrRemoteCallFailed
	if isTimeout(err) {
		kind = ErrRemoteCallTimeout
	}
	return &IgnoreError{Op: op, Username: username, Kind: kind, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
