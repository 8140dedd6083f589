package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/accountsync/internal/client/services"
	"github.com/dmitrijs2005/accountsync/internal/identity"
	"github.com/dmitrijs2005/accountsync/internal/logging"
)

// stubInputs makes getSimpleText return answers in order and getPassword
// return password.
func stubInputs(t *testing.T, password []byte, answers ...string) {
	t.Helper()
	origST, origGP := getSimpleText, getPassword
	getSimpleText = func(_ *bufio.Reader, prompt string, _ io.Writer) (string, error) {
		if len(answers) == 0 {
			return "", io.EOF
		}
		a := answers[0]
		answers = answers[1:]
		return a, nil
	}
	getPassword = func(_ *bufio.Reader, _ io.Writer) ([]byte, error) { return password, nil }
	t.Cleanup(func() {
		getSimpleText = origST
		getPassword = origGP
	})
}

type fakeAuth struct {
	loginInput string
	loginPass  string
	loginOut   *services.LoginOutcome
	loginErr   error

	regReq services.RegisterRequest
	regRec *identity.Record
	regErr error

	session *identity.Session
	sessErr error
	resumed *identity.Record

	recent []*identity.Record

	logoutCalled bool
	logoutErr    error

	pingErr error
	closed  bool
}

func (f *fakeAuth) Login(_ context.Context, raw, cred string) (*services.LoginOutcome, error) {
	f.loginInput, f.loginPass = raw, cred
	return f.loginOut, f.loginErr
}

func (f *fakeAuth) Register(_ context.Context, req services.RegisterRequest) (*identity.Record, error) {
	f.regReq = req
	return f.regRec, f.regErr
}

func (f *fakeAuth) Logout(context.Context) error {
	f.logoutCalled = true
	return f.logoutErr
}

func (f *fakeAuth) CurrentSession(context.Context) (*identity.Session, error) {
	if f.sessErr != nil {
		return nil, f.sessErr
	}
	return f.session, nil
}

func (f *fakeAuth) ResumeSession(ctx context.Context) (*identity.Session, *identity.Record, error) {
	s, err := f.CurrentSession(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s, f.resumed, nil
}

func (f *fakeAuth) RecentLogins(context.Context) ([]*identity.Record, error) { return f.recent, nil }
func (f *fakeAuth) Ping(context.Context) error                               { return f.pingErr }

func (f *fakeAuth) Close() error {
	f.closed = true
	return nil
}

type fakeConflicts struct {
	choice identity.Choice
	sides  map[string]identity.Side
	rec    *identity.Record
	err    error
}

func (f *fakeConflicts) Resolve(_ context.Context, d *identity.ConflictDescriptor, c identity.Choice) (*identity.Record, error) {
	f.choice = c
	if d.Kind == identity.CredentialConflict {
		return nil, services.ErrCredentialConflict
	}
	return f.rec, f.err
}

func (f *fakeConflicts) ResolveFields(_ context.Context, _ *identity.ConflictDescriptor, sides map[string]identity.Side) (*identity.Record, error) {
	f.sides = sides
	return f.rec, f.err
}

func newTestApp(f *fakeAuth, c *fakeConflicts) (*App, *bytes.Buffer) {
	var out bytes.Buffer
	return &App{auth: f, conflicts: c, log: logging.Discard(), out: &out}, &out
}

var alice = &identity.Record{ID: "id-1", Email: "alice@example.org", Username: "alice", FirstName: "Alice"}

func TestRegister_Success(t *testing.T) {
	f := &fakeAuth{regRec: alice}
	a, out := newTestApp(f, nil)
	stubInputs(t, []byte("secret"), "alice@example.org", "alice", "", "Alice", "Smith")

	if err := a.Register(context.Background()); err != nil {
		t.Fatalf("Register err: %v", err)
	}
	want := services.RegisterRequest{
		Email:      "alice@example.org",
		Username:   "alice",
		FirstName:  "Alice",
		LastName:   "Smith",
		Password:   "secret",
		AuthMethod: identity.AuthPassword,
	}
	if f.regReq.Email != want.Email || f.regReq.Username != want.Username || f.regReq.Password != want.Password ||
		f.regReq.FirstName != want.FirstName || f.regReq.LastName != want.LastName || f.regReq.AuthMethod != want.AuthMethod {
		t.Fatalf("Register request mismatch: %+v", f.regReq)
	}
	if !strings.Contains(out.String(), "Success!") {
		t.Fatalf("missing success message: %q", out.String())
	}
}

func TestRegister_RemoteTakenKeepsLocal(t *testing.T) {
	f := &fakeAuth{regRec: alice, regErr: errors.Join(services.ErrCredentialConflict, &services.IdentifierTakenError{Field: "email"})}
	a, out := newTestApp(f, nil)
	stubInputs(t, []byte("secret"), "alice@example.org", "", "", "", "")

	if err := a.Register(context.Background()); !errors.Is(err, services.ErrCredentialConflict) {
		t.Fatalf("want credential conflict, got %v", err)
	}
	if !strings.Contains(out.String(), "Saved on this device") || !strings.Contains(out.String(), "email") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestRegister_LocalCollision(t *testing.T) {
	f := &fakeAuth{regErr: services.ErrCredentialConflict}
	a, out := newTestApp(f, nil)
	stubInputs(t, []byte("secret"), "alice@example.org", "", "", "", "")

	if err := a.Register(context.Background()); err == nil {
		t.Fatal("want error")
	}
	if !strings.Contains(out.String(), "already exists here") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestLogin_Success(t *testing.T) {
	sess := &identity.Session{IdentityID: "id-1", Mode: identity.ModeOffline}
	f := &fakeAuth{loginOut: &services.LoginOutcome{
		State:    services.StateSuccess,
		Mode:     identity.ModeOffline,
		FellBack: true,
		Migrated: true,
		Record:   alice,
		Session:  sess,
	}}
	a, out := newTestApp(f, nil)
	a.pending = &identity.ConflictDescriptor{Kind: identity.LocalOnly}
	stubInputs(t, []byte("pw"), "alice@example.org")

	if err := a.Login(context.Background()); err != nil {
		t.Fatalf("Login err: %v", err)
	}
	if f.loginInput != "alice@example.org" || f.loginPass != "pw" {
		t.Fatalf("login args: %q %q", f.loginInput, f.loginPass)
	}
	if !a.isLoggedIn() || a.current != alice || a.pending != nil {
		t.Fatalf("app state not updated: %+v", a)
	}
	for _, want := range []string{"logged in offline", "upgraded", "Logged in as alice (offline)"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output %q missing %q", out.String(), want)
		}
	}
}

func TestLogin_RecentIndex(t *testing.T) {
	bob := &identity.Record{ID: "id-2", Username: "bob"}
	f := &fakeAuth{
		recent:   []*identity.Record{alice, bob},
		loginOut: &services.LoginOutcome{Record: bob, Session: &identity.Session{IdentityID: "id-2"}},
	}
	a, _ := newTestApp(f, nil)
	stubInputs(t, []byte("pw"), "#2")

	if err := a.Login(context.Background()); err != nil {
		t.Fatalf("Login err: %v", err)
	}
	if f.loginInput != "bob" {
		t.Fatalf("want bob, got %q", f.loginInput)
	}

	stubInputs(t, []byte("pw"), "#3")
	if err := a.Login(context.Background()); err == nil {
		t.Fatal("want error for out-of-range index")
	}
}

func TestLogin_ConflictIsPending(t *testing.T) {
	d := &identity.ConflictDescriptor{
		Kind:       identity.DataConflict,
		FieldDiffs: []identity.FieldDiff{{Field: identity.FieldFirstName, Local: "Al", Remote: "Alice"}},
	}
	f := &fakeAuth{
		loginOut: &services.LoginOutcome{State: services.StateConflictPending, Conflict: d},
		loginErr: &services.ConflictError{Descriptor: d},
	}
	a, out := newTestApp(f, nil)
	stubInputs(t, []byte("pw"), "alice")

	if err := a.Login(context.Background()); !errors.Is(err, services.ErrConflictRequiresResolution) {
		t.Fatalf("want conflict, got %v", err)
	}
	if a.pending != d || a.isLoggedIn() {
		t.Fatalf("pending not kept: %+v", a)
	}
	if !strings.Contains(out.String(), "firstName") || !strings.Contains(out.String(), "resolve") {
		t.Fatalf("unexpected output: %q", out.String())
	}
	if !strings.Contains(a.getStatus(), "DATA_CONFLICT") {
		t.Fatalf("status should flag the conflict: %q", a.getStatus())
	}
}

func TestLogin_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", services.ErrUserNotFound, "No account"},
		{"bad credential", services.ErrBadCredential, "Wrong password"},
		{"validation", services.ErrValidation, "Invalid input"},
		{"other", errors.New("boom"), "Login unsuccessful"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeAuth{loginOut: &services.LoginOutcome{State: services.StateFailed}, loginErr: tt.err}
			a, out := newTestApp(f, nil)
			stubInputs(t, []byte("pw"), "alice")

			if err := a.Login(context.Background()); !errors.Is(err, tt.err) {
				t.Fatalf("want %v, got %v", tt.err, err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Fatalf("output %q missing %q", out.String(), tt.want)
			}
			if a.isLoggedIn() {
				t.Fatal("must not be logged in")
			}
		})
	}
}

func TestLogout(t *testing.T) {
	f := &fakeAuth{}
	a, _ := newTestApp(f, nil)
	a.session, a.current = &identity.Session{}, alice

	if err := a.Logout(context.Background()); err != nil {
		t.Fatalf("Logout err: %v", err)
	}
	if !f.logoutCalled {
		t.Fatalf("Logout not called")
	}
	if a.isLoggedIn() || a.current != nil {
		t.Fatalf("session not cleared")
	}
}

func TestLogout_ErrorPropagates(t *testing.T) {
	f := &fakeAuth{logoutErr: errors.New("clean-fail")}
	a, _ := newTestApp(f, nil)
	a.session = &identity.Session{}
	if err := a.Logout(context.Background()); err == nil {
		t.Fatalf("want error from Logout")
	}
	if !a.isLoggedIn() {
		t.Fatal("session must survive a failed logout")
	}
}

func TestWhoAmI(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &fakeAuth{session: &identity.Session{IdentityID: "id-1", AuthMethod: "password", Mode: identity.ModeOnline, ExpiresAt: &exp}}
	a, out := newTestApp(f, nil)
	a.current = alice

	if err := a.WhoAmI(context.Background()); err != nil {
		t.Fatalf("WhoAmI err: %v", err)
	}
	if !strings.Contains(out.String(), "alice via password (online)") || !strings.Contains(out.String(), "expires") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestWhoAmI_NotLoggedInClearsState(t *testing.T) {
	f := &fakeAuth{sessErr: services.ErrNotLoggedIn}
	a, out := newTestApp(f, nil)
	a.session, a.current = &identity.Session{}, alice

	if err := a.WhoAmI(context.Background()); !errors.Is(err, services.ErrNotLoggedIn) {
		t.Fatalf("want ErrNotLoggedIn, got %v", err)
	}
	if a.isLoggedIn() || !strings.Contains(out.String(), "Not logged in") {
		t.Fatalf("state not cleared: %q", out.String())
	}
}

func TestRecent(t *testing.T) {
	f := &fakeAuth{recent: []*identity.Record{
		{ID: "1", Email: "a@x.io", FirstName: "Ann", LastName: "Lee"},
		{ID: "2", Phone: "+15550001"},
	}}
	a, out := newTestApp(f, nil)

	if err := a.Recent(context.Background()); err != nil {
		t.Fatalf("Recent err: %v", err)
	}
	want := "#1 a@x.io (Ann Lee)\n#2 +15550001\n"
	if out.String() != want {
		t.Fatalf("got %q, want %q", out.String(), want)
	}

	out.Reset()
	f.recent = nil
	_ = a.Recent(context.Background())
	if !strings.Contains(out.String(), "No recent logins") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}
