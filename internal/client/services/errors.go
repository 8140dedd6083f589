package services

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/accountsync/internal/identity"
)

var (
	ErrValidation                 = errors.New("validation error")
	ErrUserNotFound               = errors.New("user not found")
	ErrBadCredential              = errors.New("bad credential")
	ErrConflictRequiresResolution = errors.New("conflict requires resolution")
	ErrGatewayUnavailable         = errors.New("remote identity store unavailable")
	ErrStaleConflict              = errors.New("conflict is stale, re-run login")
	ErrCredentialConflict         = errors.New("identifier belongs to another account")
	ErrChooseNewIdentifier        = errors.New("identifier already taken remotely, choose a new one")
	ErrNotLoggedIn                = errors.New("not logged in")
)

// ConflictError carries the descriptor the caller must resolve. It matches
// ErrConflictRequiresResolution with errors.Is.
type ConflictError struct {
	Descriptor *identity.ConflictDescriptor
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConflictRequiresResolution, e.Descriptor.Kind)
}

func (e *ConflictError) Unwrap() error { return ErrConflictRequiresResolution }

// IdentifierTakenError is returned when pushing a record remotely collides
// with another remote account. It matches ErrChooseNewIdentifier.
type IdentifierTakenError struct {
	Field string
}

func (e *IdentifierTakenError) Error() string {
	if e.Field == "" {
		return ErrChooseNewIdentifier.Error()
	}
	return fmt.Sprintf("%s: %s", ErrChooseNewIdentifier, e.Field)
}

func (e *IdentifierTakenError) Unwrap() error { return ErrChooseNewIdentifier }
