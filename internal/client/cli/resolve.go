package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/accountsync/internal/client/services"
	"github.com/dmitrijs2005/accountsync/internal/identity"
)

// Resolve settles the conflict left by the last login. The choice comes from
// args[0] or is prompted for: local, remote, sync, download or fields. With
// "fields" every differing field is asked for separately.
func (a *App) Resolve(ctx context.Context, args []string) error {
	d := a.pending
	if d == nil {
		fmt.Fprintln(a.out, "Nothing to resolve")
		return nil
	}

	printConflict(a.out, d)
	if d.Kind == identity.CredentialConflict {
		// Terminal; the service refuses every choice.
		a.pending = nil
		_, err := a.conflicts.Resolve(ctx, d, identity.ChoiceLocal)
		fmt.Fprintln(a.out, "Choose a different email, username or phone and log in again")
		return err
	}

	answer := ""
	if len(args) > 0 {
		answer = args[0]
	} else {
		var err error
		answer, err = getSimpleText(a.reader, "Keep which copy? ("+strings.Join(choicesFor(d.Kind), "|")+")", a.out)
		if err != nil {
			return err
		}
	}

	var (
		rec *identity.Record
		err error
	)
	if strings.EqualFold(answer, "fields") && d.Kind == identity.DataConflict {
		sides, perr := a.pickFields(d)
		if perr != nil {
			return perr
		}
		rec, err = a.conflicts.ResolveFields(ctx, d, sides)
	} else {
		choice, ok := parseChoice(answer)
		if !ok {
			fmt.Fprintf(a.out, "Unknown choice %q\n", answer)
			return fmt.Errorf("%w: unknown choice %q", services.ErrValidation, answer)
		}
		rec, err = a.conflicts.Resolve(ctx, d, choice)
	}

	if err != nil {
		a.reportResolveError(err)
		return err
	}

	a.pending = nil
	fmt.Fprintf(a.out, "Resolved: %s is up to date on this device. Log in again to continue\n", loginIdentifier(rec))
	return nil
}

func (a *App) reportResolveError(err error) {
	var taken *services.IdentifierTakenError
	switch {
	case errors.Is(err, services.ErrStaleConflict):
		a.pending = nil
		fmt.Fprintln(a.out, "The account changed since the conflict was found; log in again")
	case errors.As(err, &taken):
		a.pending = nil
		fmt.Fprintf(a.out, "The %s is already used by another account on the server; choose a new one\n", taken.Field)
	case errors.Is(err, services.ErrGatewayUnavailable):
		fmt.Fprintln(a.out, "Server unavailable, try again later")
	case errors.Is(err, services.ErrValidation):
		fmt.Fprintf(a.out, "That choice does not apply here: %v\n", err)
	default:
		fmt.Fprintf(a.out, "Resolve failed: %v\n", err)
	}
}

func (a *App) pickFields(d *identity.ConflictDescriptor) (map[string]identity.Side, error) {
	sides := make(map[string]identity.Side, len(d.FieldDiffs))
	for _, fd := range d.FieldDiffs {
		for {
			ans, err := getSimpleText(a.reader, fmt.Sprintf("%s: [l]ocal %q or [r]emote %q?", fd.Field, fd.Local, fd.Remote), a.out)
			if err != nil {
				return nil, err
			}
			if side, ok := parseSide(ans); ok {
				sides[fd.Field] = side
				break
			}
		}
	}
	return sides, nil
}

func choicesFor(k identity.ConflictKind) []string {
	switch k {
	case identity.DataConflict:
		return []string{"local", "remote", "fields"}
	case identity.LocalOnly:
		return []string{"sync"}
	case identity.RemoteOnly:
		return []string{"download"}
	default:
		return nil
	}
}

func parseChoice(s string) (identity.Choice, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l", "local":
		return identity.ChoiceLocal, true
	case "r", "remote":
		return identity.ChoiceRemote, true
	case "s", "sync":
		return identity.ChoiceSyncToCloud, true
	case "d", "download":
		return identity.ChoiceDownload, true
	default:
		return 0, false
	}
}

func parseSide(s string) (identity.Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l", "local":
		return identity.SideLocal, true
	case "r", "remote":
		return identity.SideRemote, true
	default:
		return 0, false
	}
}

func printConflict(w io.Writer, d *identity.ConflictDescriptor) {
	switch d.Kind {
	case identity.DataConflict:
		fmt.Fprintln(w, "This device and the server disagree about the account:")
		for _, fd := range d.FieldDiffs {
			fmt.Fprintf(w, "  %-18s local %q, remote %q\n", fd.Field, fd.Local, fd.Remote)
		}
	case identity.CredentialConflict:
		fmt.Fprintf(w, "The %s belongs to different accounts here and on the server\n", strings.Join(d.CollidingFields, ", "))
	case identity.LocalOnly:
		fmt.Fprintln(w, "The account exists only on this device; 'sync' uploads it")
	case identity.RemoteOnly:
		fmt.Fprintln(w, "The account exists only on the server; 'download' stores it here")
	}
}
