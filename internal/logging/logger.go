// Package logging is the logger the login, conflict and gateway code writes
// through. The slog adapter in this package emits the records and replaces
// values under secret-looking keys with Redacted.
package logging

import "context"

// Logger takes a message plus alternating keys and values:
//
//	log.Info(ctx, "login succeeded", "identity", rec.ID, "mode", "offline")
type Logger interface {
	// Debug is for strategy selection and other per-attempt detail.
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	// Warn marks a degraded path that still completed, such as a keystore
	// read that failed or a gateway that could not be reached.
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With binds args to every record of the returned logger.
	With(args ...any) Logger
}
