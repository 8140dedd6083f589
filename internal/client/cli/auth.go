package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/accountsync/internal/client/services"
	"github.com/dmitrijs2005/accountsync/internal/common"
	"github.com/dmitrijs2005/accountsync/internal/identity"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
)

// Register prompts for the account fields and a password and creates the
// account. A record that could not be mirrored to the backend is still kept
// on this device.
func (a *App) Register(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email (optional)", a.out)
	if err != nil {
		return err
	}
	username, err := getSimpleText(a.reader, "Enter username (optional)", a.out)
	if err != nil {
		return err
	}
	phone, err := getSimpleText(a.reader, "Enter phone (optional)", a.out)
	if err != nil {
		return err
	}
	first, err := getSimpleText(a.reader, "Enter first name", a.out)
	if err != nil {
		return err
	}
	last, err := getSimpleText(a.reader, "Enter last name", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.reader, a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	rec, err := a.auth.Register(ctx, services.RegisterRequest{
		Email:      email,
		Username:   username,
		Phone:      phone,
		FirstName:  first,
		LastName:   last,
		Password:   string(password),
		AuthMethod: identity.AuthPassword,
	})
	if err != nil {
		var taken *services.IdentifierTakenError
		switch {
		case rec != nil && errors.As(err, &taken):
			fmt.Fprintf(a.out, "Saved on this device, but the %s is already used by another account on the server\n", taken.Field)
		case errors.Is(err, services.ErrCredentialConflict):
			fmt.Fprintln(a.out, "An account with that email, username or phone already exists here")
		default:
			fmt.Fprintf(a.out, "Registration failed: %v\n", err)
		}
		return err
	}

	fmt.Fprintln(a.out, "Success!")
	return nil
}

// Login prompts for an identifier and a password and runs the login
// orchestrator. "#n" picks the n-th entry of the recent list.
//
// A conflict between the local and remote copy is kept as pending and
// settled with Resolve.
func (a *App) Login(ctx context.Context) error {
	input, err := getSimpleText(a.reader, "Enter email, username or phone (#n for a recent account)", a.out)
	if err != nil {
		return err
	}
	if input, err = a.expandRecent(ctx, input); err != nil {
		fmt.Fprintln(a.out, err)
		return err
	}

	password, err := getPassword(a.reader, a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	out, err := a.auth.Login(ctx, input, string(password))
	if err != nil {
		a.reportLoginError(out, err)
		return err
	}

	a.session, a.current, a.pending = out.Session, out.Record, nil
	if out.FellBack {
		fmt.Fprintln(a.out, "Server unavailable, logged in offline")
	}
	if out.Migrated {
		fmt.Fprintln(a.out, "Stored password upgraded")
	}
	fmt.Fprintf(a.out, "Logged in as %s (%s)\n", displayName(out.Record), out.Mode)
	return nil
}

func (a *App) reportLoginError(out *services.LoginOutcome, err error) {
	var ce *services.ConflictError
	switch {
	case errors.As(err, &ce):
		a.pending = ce.Descriptor
		printConflict(a.out, ce.Descriptor)
		fmt.Fprintln(a.out, "Type 'resolve' to choose which copy to keep")
	case errors.Is(err, services.ErrUserNotFound):
		fmt.Fprintln(a.out, "No account matches that identifier")
	case errors.Is(err, services.ErrBadCredential):
		fmt.Fprintln(a.out, "Wrong password")
	case errors.Is(err, services.ErrValidation):
		fmt.Fprintf(a.out, "Invalid input: %v\n", err)
	default:
		fmt.Fprintf(a.out, "Login unsuccessful: %v\n", err)
	}
	if out != nil {
		a.log.Debug(context.Background(), "login failed", "state", out.State, "path", out.Path)
	}
}

// expandRecent turns "#n" into the identifier of the n-th recent login.
func (a *App) expandRecent(ctx context.Context, input string) (string, error) {
	if !strings.HasPrefix(input, "#") {
		return input, nil
	}
	n, err := strconv.Atoi(input[1:])
	if err != nil {
		return "", fmt.Errorf("bad recent index %q", input)
	}
	recs, err := a.auth.RecentLogins(ctx)
	if err != nil {
		return "", err
	}
	if n < 1 || n > len(recs) {
		return "", fmt.Errorf("no recent account #%d", n)
	}
	return loginIdentifier(recs[n-1]), nil
}

// Logout forgets the saved session and any pending conflict.
func (a *App) Logout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	a.session, a.current, a.pending = nil, nil, nil
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

// WhoAmI prints the current session.
func (a *App) WhoAmI(ctx context.Context) error {
	sess, err := a.auth.CurrentSession(ctx)
	if err != nil {
		if errors.Is(err, services.ErrNotLoggedIn) {
			a.session, a.current = nil, nil
			fmt.Fprintln(a.out, "Not logged in")
		}
		return err
	}

	name := sess.IdentityID
	if a.current != nil && a.current.ID == sess.IdentityID {
		name = displayName(a.current)
	}
	fmt.Fprintf(a.out, "%s via %s (%s)\n", name, sess.AuthMethod, sess.Mode)
	if sess.ExpiresAt != nil {
		fmt.Fprintf(a.out, "Session expires %s\n", sess.ExpiresAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

// Recent lists the recent-login index, most recent first.
func (a *App) Recent(ctx context.Context) error {
	recs, err := a.auth.RecentLogins(ctx)
	if err != nil {
		fmt.Fprintf(a.out, "Cannot read recent logins: %v\n", err)
		return err
	}
	printRecent(a.out, recs)
	return nil
}

func printRecent(w io.Writer, recs []*identity.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No recent logins")
		return
	}
	for i, r := range recs {
		full := strings.TrimSpace(r.FirstName + " " + r.LastName)
		if full == "" {
			fmt.Fprintf(w, "#%d %s\n", i+1, loginIdentifier(r))
			continue
		}
		fmt.Fprintf(w, "#%d %s (%s)\n", i+1, loginIdentifier(r), full)
	}
}

// loginIdentifier picks the identifier to log in with: email, then
// username, then phone.
func loginIdentifier(r *identity.Record) string {
	switch {
	case r.Email != "":
		return r.Email
	case r.Username != "":
		return r.Username
	default:
		return r.Phone
	}
}

func displayName(r *identity.Record) string {
	if r == nil {
		return ""
	}
	if r.Username != "" {
		return r.Username
	}
	return loginIdentifier(r)
}
