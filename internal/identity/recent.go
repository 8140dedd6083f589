package identity

// MaxRecentLogins caps the recent-login index.
const MaxRecentLogins = 10

// Touch moves id to the front of ids, dropping any earlier occurrence and
// truncating to MaxRecentLogins. ids is not modified.
func Touch(ids []string, id string) []string {
	out := make([]string, 0, MaxRecentLogins)
	out = append(out, id)
	for _, v := range ids {
		if len(out) == MaxRecentLogins {
			break
		}
		if v == id {
			continue
		}
		out = append(out, v)
	}
	return out
}
