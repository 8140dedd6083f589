package identity

import (
	"slices"
	"strings"
)

// ConflictKind classifies a divergence between the local and remote copy.
type ConflictKind uint8

const (
	// ConflictNone means both copies agree on every comparable field.
	ConflictNone ConflictKind = iota
	DataConflict
	CredentialConflict
	LocalOnly
	RemoteOnly
)

func (k ConflictKind) String() string {
	switch k {
	case DataConflict:
		return "DATA_CONFLICT"
	case CredentialConflict:
		return "CREDENTIAL_CONFLICT"
	case LocalOnly:
		return "LOCAL_ONLY"
	case RemoteOnly:
		return "REMOTE_ONLY"
	default:
		return "NONE"
	}
}

// Side names one of the two stores.
type Side uint8

const (
	SideLocal Side = iota + 1
	SideRemote
)

func (s Side) String() string {
	if s == SideRemote {
		return "remote"
	}
	return "local"
}

// Choice is what the user picked to resolve a conflict.
type Choice uint8

const (
	ChoiceLocal Choice = iota + 1
	ChoiceRemote
	ChoiceSyncToCloud
	ChoiceDownload
)

func (c Choice) String() string {
	switch c {
	case ChoiceLocal:
		return "local"
	case ChoiceRemote:
		return "remote"
	case ChoiceSyncToCloud:
		return "sync"
	case ChoiceDownload:
		return "download"
	default:
		return "unknown"
	}
}

// FieldDiff is one comparable field whose values differ.
type FieldDiff struct {
	Field  string
	Local  string
	Remote string
}

// ConflictDescriptor is the transient result of comparing the two copies.
// Local and Remote are snapshots taken at classification time; their
// UpdatedAt values are what staleness is checked against.
type ConflictDescriptor struct {
	Kind       ConflictKind
	Local      *Record
	Remote     *Record
	FieldDiffs []FieldDiff
	// CollidingFields lists the identifiers that resolve to different ids
	// on each side. Only set for CredentialConflict.
	CollidingFields []string
}

// Comparable field names, in diff order. Profile keys follow, sorted.
const (
	FieldEmail             = "email"
	FieldUsername          = "username"
	FieldPhone             = "phone"
	FieldFirstName         = "firstName"
	FieldLastName          = "lastName"
	FieldAuthMethod        = "authMethod"
	FieldLinkedAuthMethods = "linkedAuthMethods"
)

var fixedFields = []string{
	FieldEmail,
	FieldUsername,
	FieldPhone,
	FieldFirstName,
	FieldLastName,
	FieldAuthMethod,
	FieldLinkedAuthMethods,
}

// FieldValue renders a comparable field of r as a string.
func FieldValue(r *Record, field string) string {
	switch field {
	case FieldEmail:
		return r.Email
	case FieldUsername:
		return r.Username
	case FieldPhone:
		return r.Phone
	case FieldFirstName:
		return r.FirstName
	case FieldLastName:
		return r.LastName
	case FieldAuthMethod:
		return r.AuthMethod.String()
	case FieldLinkedAuthMethods:
		return FormatAuthMethods(r.LinkedAuthMethods)
	default:
		return r.Profile[field]
	}
}

// SetFieldValue is the inverse of FieldValue. An empty profile value
// removes the key.
func SetFieldValue(r *Record, field, value string) error {
	switch field {
	case FieldEmail:
		r.Email = value
	case FieldUsername:
		r.Username = value
	case FieldPhone:
		r.Phone = value
	case FieldFirstName:
		r.FirstName = value
	case FieldLastName:
		r.LastName = value
	case FieldAuthMethod:
		m, err := ParseAuthMethod(value)
		if err != nil {
			return err
		}
		r.AuthMethod = m
	case FieldLinkedAuthMethods:
		ms, err := ParseAuthMethods(value)
		if err != nil {
			return err
		}
		r.LinkedAuthMethods = ms
	default:
		if value == "" {
			delete(r.Profile, field)
			return nil
		}
		if r.Profile == nil {
			r.Profile = make(map[string]string)
		}
		r.Profile[field] = value
	}
	return nil
}

// Diff compares every comparable field of local and remote. UpdatedAt and
// credential material are not comparable: credentials are stored in a
// device-specific representation on each side.
func Diff(local, remote *Record) []FieldDiff {
	var diffs []FieldDiff
	for _, f := range comparableFields(local, remote) {
		lv, rv := FieldValue(local, f), FieldValue(remote, f)
		if f == FieldEmail {
			if strings.EqualFold(lv, rv) {
				continue
			}
		} else if lv == rv {
			continue
		}
		diffs = append(diffs, FieldDiff{Field: f, Local: lv, Remote: rv})
	}
	return diffs
}

func comparableFields(a, b *Record) []string {
	keys := make([]string, 0, len(a.Profile)+len(b.Profile))
	for k := range a.Profile {
		keys = append(keys, k)
	}
	for k := range b.Profile {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)
	keys = slices.DeleteFunc(keys, func(k string) bool { return slices.Contains(fixedFields, k) })
	return append(slices.Clone(fixedFields), keys...)
}

// Colliding returns the identifiers (email, username, phone) that a and b
// share. Used when the two records carry different ids.
func Colliding(a, b *Record) []string {
	var out []string
	if a.Email != "" && strings.EqualFold(a.Email, b.Email) {
		out = append(out, FieldEmail)
	}
	if a.Username != "" && strings.EqualFold(a.Username, b.Username) {
		out = append(out, FieldUsername)
	}
	if a.Phone != "" && a.Phone == b.Phone {
		out = append(out, FieldPhone)
	}
	return out
}
