package client

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
)

// ErrorKind classifies a gateway failure.
type ErrorKind uint8

const (
	KindTransport ErrorKind = iota
	KindNotFound
	KindPermissionDenied
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindPermissionDenied:
		return "permission denied"
	case KindConflict:
		return "conflict"
	default:
		return "transport"
	}
}

// GatewayError is returned by every Gateway method on failure.
type GatewayError struct {
	Kind ErrorKind
	// Field names the colliding identifier of a KindConflict error, if the
	// backend reported it.
	Field string
	Err   error
}

func (e *GatewayError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("gateway %s (%s): %v", e.Kind, e.Field, e.Err)
	}
	return fmt.Sprintf("gateway %s: %v", e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func kindOf(err error) (ErrorKind, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Kind, true
	}
	return 0, false
}

func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}

func IsConflict(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindConflict
}

// ConflictField returns the colliding identifier of a conflict error.
func ConflictField(err error) string {
	var ge *GatewayError
	if errors.As(err, &ge) && ge.Kind == KindConflict {
		return ge.Field
	}
	return ""
}
