// Package common contains shared constants, sentinel errors and small
// helpers used by both the accountsync client and the reference backend.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// API token on outbound requests.
const AccessTokenHeaderName = "access_token"

// SessionMetadataKey is the metadata key the current session is stored under.
const SessionMetadataKey = "session"

// SessionSecretMetadataKey holds the generated session signing secret when
// none is configured.
const SessionSecretMetadataKey = "session_secret"
