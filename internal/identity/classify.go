package identity

import (
	"regexp"
	"strings"
)

// LoginMethod is the kind of identifier a user typed into the login form.
type LoginMethod uint8

const (
	LoginUsername LoginMethod = iota
	LoginEmail
	LoginPhone
)

func (m LoginMethod) String() string {
	switch m {
	case LoginEmail:
		return "email"
	case LoginPhone:
		return "phone"
	default:
		return "username"
	}
}

// ParseLoginMethod maps the wire name back to a LoginMethod. Unknown names
// fall back to username, mirroring Classify.
func ParseLoginMethod(s string) LoginMethod {
	switch s {
	case "email":
		return LoginEmail
	case "phone":
		return LoginPhone
	default:
		return LoginUsername
	}
}

var phonePattern = regexp.MustCompile(`^[+]?[0-9]{7,}$`)

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")

// NormalizePhone strips spaces, hyphens and parentheses.
func NormalizePhone(s string) string {
	return phoneSeparators.Replace(strings.TrimSpace(s))
}

// Classify decides whether input is an email, a phone number or a username.
// Empty input must be rejected by the caller; Classify has no failure mode.
func Classify(input string) LoginMethod {
	if at := strings.Index(input, "@"); at >= 0 && strings.Contains(input[at+1:], ".") {
		return LoginEmail
	}
	if phonePattern.MatchString(NormalizePhone(input)) {
		return LoginPhone
	}
	return LoginUsername
}

// NormalizeIdentifier prepares raw input for a lookup with method.
func NormalizeIdentifier(method LoginMethod, input string) string {
	switch method {
	case LoginEmail:
		return strings.ToLower(strings.TrimSpace(input))
	case LoginPhone:
		return NormalizePhone(input)
	default:
		return strings.TrimSpace(input)
	}
}
