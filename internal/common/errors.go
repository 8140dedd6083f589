// Package common holds the sentinel errors shared by the server stores,
// the gRPC handlers and the token code.
package common

import "errors"

var (
	// Store lookups and inserts. Handlers map these to NotFound and
	// AlreadyExists status codes.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// ErrorInternal hides store failures from gRPC callers.
	ErrorInternal = errors.New("internal error")

	// Access token checks.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
