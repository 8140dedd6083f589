// Package identity defines the account model shared by the local store,
// the remote gateway and the reconciliation engine.
package identity

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// AuthMethod is the way an account proves who it is.
type AuthMethod uint8

const (
	AuthPassword AuthMethod = iota + 1
	AuthGoogle
	AuthPhone
)

func (m AuthMethod) String() string {
	switch m {
	case AuthPassword:
		return "password"
	case AuthGoogle:
		return "google"
	case AuthPhone:
		return "phone"
	default:
		return "unknown"
	}
}

// ParseAuthMethod is the inverse of AuthMethod.String.
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "password":
		return AuthPassword, nil
	case "google":
		return AuthGoogle, nil
	case "phone":
		return AuthPhone, nil
	default:
		return 0, fmt.Errorf("unknown auth method %q", s)
	}
}

// CredentialKind tells where the authoritative credential material lives.
type CredentialKind uint8

const (
	// CredentialNone is used by federated accounts that never set a password.
	CredentialNone CredentialKind = iota
	// CredentialLegacyPlaintext is the pre-hashing format; Value holds the password.
	CredentialLegacyPlaintext
	// CredentialInlineHash keeps the hash handle on the record itself.
	CredentialInlineHash
	// CredentialKeystore means the handle lives in the secure keystore under the record ID.
	CredentialKeystore
)

func (k CredentialKind) String() string {
	switch k {
	case CredentialNone:
		return "none"
	case CredentialLegacyPlaintext:
		return "plaintext"
	case CredentialInlineHash:
		return "inline"
	case CredentialKeystore:
		return "keystore"
	default:
		return "unknown"
	}
}

// ParseCredentialKind is the inverse of CredentialKind.String.
func ParseCredentialKind(s string) (CredentialKind, error) {
	switch s {
	case "", "none":
		return CredentialNone, nil
	case "plaintext":
		return CredentialLegacyPlaintext, nil
	case "inline":
		return CredentialInlineHash, nil
	case "keystore":
		return CredentialKeystore, nil
	default:
		return 0, fmt.Errorf("unknown credential kind %q", s)
	}
}

// CredentialRef points at the credential material of a record. Exactly one
// representation is authoritative at a time.
type CredentialRef struct {
	Kind  CredentialKind
	Value string
}

// IsLegacy reports whether the reference still holds a plaintext password.
func (c CredentialRef) IsLegacy() bool {
	return c.Kind == CredentialLegacyPlaintext
}

// Record is the canonical account representation. ID is immutable once
// assigned and joins the local and remote copies of one account.
type Record struct {
	ID                string
	Email             string
	Username          string
	Phone             string
	FirstName         string
	LastName          string
	Credential        CredentialRef
	AuthMethod        AuthMethod
	LinkedAuthMethods []AuthMethod
	Profile           map[string]string
	UpdatedAt         time.Time
}

// Clone returns a deep copy so callers never share slices or maps.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.LinkedAuthMethods = slices.Clone(r.LinkedAuthMethods)
	c.Profile = maps.Clone(r.Profile)
	return &c
}

// Normalize trims identifiers, lower-cases the email, strips phone
// separators and makes LinkedAuthMethods a sorted set containing AuthMethod.
func (r *Record) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Username = strings.TrimSpace(r.Username)
	r.Phone = NormalizePhone(r.Phone)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	if r.AuthMethod == 0 {
		r.AuthMethod = AuthPassword
	}
	r.LinkedAuthMethods = append(r.LinkedAuthMethods, r.AuthMethod)
	slices.Sort(r.LinkedAuthMethods)
	r.LinkedAuthMethods = slices.Compact(r.LinkedAuthMethods)
	r.UpdatedAt = r.UpdatedAt.UTC().Truncate(time.Millisecond)
}

// HasAuthMethod reports whether m is linked to the account.
func (r *Record) HasAuthMethod(m AuthMethod) bool {
	return slices.Contains(r.LinkedAuthMethods, m)
}

// Identifier returns the value of the identifier used for method.
func (r *Record) Identifier(method LoginMethod) string {
	switch method {
	case LoginEmail:
		return r.Email
	case LoginPhone:
		return r.Phone
	default:
		return r.Username
	}
}

// FormatAuthMethods renders a method set as a comma separated list.
func FormatAuthMethods(ms []AuthMethod) string {
	parts := make([]string, 0, len(ms))
	for _, m := range ms {
		parts = append(parts, m.String())
	}
	return strings.Join(parts, ",")
}

// ParseAuthMethods parses the output of FormatAuthMethods.
func ParseAuthMethods(s string) ([]AuthMethod, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []AuthMethod
	for _, part := range strings.Split(s, ",") {
		m, err := ParseAuthMethod(part)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
