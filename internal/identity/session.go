package identity

import "time"

// Mode records which path authenticated the session.
type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

// Session is persisted after every successful login.
type Session struct {
	IdentityID string     `json:"identity_id"`
	AuthMethod string     `json:"auth_method"`
	Mode       Mode       `json:"mode"`
	Token      string     `json:"token"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}
