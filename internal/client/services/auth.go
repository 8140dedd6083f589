package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrijs2005/accountsync/internal/client/client"
	"github.com/dmitrijs2005/accountsync/internal/client/repositories/identities"
	"github.com/dmitrijs2005/accountsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/accountsync/internal/common"
	"github.com/dmitrijs2005/accountsync/internal/identity"
	"github.com/dmitrijs2005/accountsync/internal/logging"
	"github.com/dmitrijs2005/accountsync/internal/telemetry"
)

// LoginState is a step of the login state machine.
type LoginState string

const (
	StateIdle            LoginState = "idle"
	StateValidating      LoginState = "validating"
	StateOnlineAttempt   LoginState = "online_attempt"
	StateOfflineAttempt  LoginState = "offline_attempt"
	StateSuccess         LoginState = "success"
	StateConflictPending LoginState = "conflict_pending"
	StateFailed          LoginState = "failed"
)

// LoginOutcome describes how a login attempt ended.
type LoginOutcome struct {
	State LoginState
	// Path lists every state the attempt went through, Idle first.
	Path   []LoginState
	Method identity.LoginMethod
	Mode   identity.Mode
	// FellBack is set when the online attempt failed and the offline path ran.
	FellBack bool
	// Migrated is set when the stored credential was rewritten.
	Migrated bool
	Record   *identity.Record
	Session  *identity.Session
	Conflict *identity.ConflictDescriptor
}

func (o *LoginOutcome) enter(s LoginState) {
	o.State = s
	o.Path = append(o.Path, s)
}

// SessionOptions are the per-device login switches.
type SessionOptions struct {
	// AutoLogin lets ResumeSession restore the saved session at startup.
	AutoLogin bool
	// PreferOffline skips the remote store even when it is reachable.
	PreferOffline bool
	// AllowGoogleWithoutPassword accepts an empty credential for accounts
	// whose auth method is google.
	AllowGoogleWithoutPassword bool
}

// DefaultSessionOptions returns the options used when none are configured.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{AllowGoogleWithoutPassword: true}
}

// AuthDeps groups the collaborators of AuthService. Gateway may be nil for a
// device without a backend; Reachability defaults to Offline then.
type AuthDeps struct {
	Gateway        client.Gateway
	Reachability   Reachability
	Identities     identities.Repository
	Sessions       metadata.SessionRepository
	Passwords      *PasswordService
	Conflicts      *ConflictService
	Tokens         *TokenIssuer
	GatewayTimeout time.Duration
	Logger         logging.Logger
}

// AuthService runs the login state machine and the session lifecycle.
type AuthService struct {
	gw             client.Gateway
	reach          Reachability
	local          identities.Repository
	sessions       metadata.SessionRepository
	passwords      *PasswordService
	conflicts      *ConflictService
	tokens         *TokenIssuer
	gatewayTimeout time.Duration
	opts           SessionOptions
	log            logging.Logger
	now            func() time.Time
}

func NewAuthService(deps AuthDeps, opts SessionOptions) *AuthService {
	reach := deps.Reachability
	if reach == nil || deps.Gateway == nil {
		reach = Offline{}
	}
	timeout := deps.GatewayTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AuthService{
		gw:             deps.Gateway,
		reach:          reach,
		local:          deps.Identities,
		sessions:       deps.Sessions,
		passwords:      deps.Passwords,
		conflicts:      deps.Conflicts,
		tokens:         deps.Tokens,
		gatewayTimeout: timeout,
		opts:           opts,
		log:            deps.Logger.With("module", "auth"),
		now:            time.Now,
	}
}

func (s *AuthService) Options() SessionOptions { return s.opts }

// Login authenticates rawInput (email, phone or username) with credential.
//
// A *ConflictError is returned together with an outcome in the
// ConflictPending state; the caller resolves it through ConflictService and
// logs in again. Gateway failures other than not-found fall back to the
// local store. The attempt is never retried.
func (s *AuthService) Login(ctx context.Context, rawInput, credential string) (*LoginOutcome, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "login")
	defer span.End()

	out := &LoginOutcome{}
	out.enter(StateIdle)
	out.enter(StateValidating)

	input := strings.TrimSpace(rawInput)
	if input == "" {
		return s.fail(ctx, span, out, fmt.Errorf("%w: login is empty", ErrValidation))
	}
	out.Method = identity.Classify(input)
	value := identity.NormalizeIdentifier(out.Method, input)
	span.SetAttributes(attribute.String("login.method", out.Method.String()))

	if err := ctx.Err(); err != nil {
		return s.fail(ctx, span, out, err)
	}

	if !s.opts.PreferOffline && s.reach.Reachable(ctx) {
		out.enter(StateOnlineAttempt)
		fallback, err := s.loginOnline(ctx, out, value, credential)
		if !fallback {
			return s.settle(ctx, span, out, err)
		}
		out.FellBack = true
	}

	out.enter(StateOfflineAttempt)
	err := s.loginOffline(ctx, out, value, credential)
	return s.settle(ctx, span, out, err)
}

// loginOnline reports fallback=true when the remote store could not answer
// and the offline path should run instead.
func (s *AuthService) loginOnline(ctx context.Context, out *LoginOutcome, value, credential string) (fallback bool, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "login.online")
	defer span.End()

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	remote, err := s.gw.FindByCredential(gctx, out.Method, value)
	cancel()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		if client.IsNotFound(err) {
			return false, s.remoteMissing(ctx, out, value, credential)
		}
		s.log.Warn(ctx, "remote lookup failed, falling back to offline", "error", err)
		span.RecordError(err)
		return true, nil
	}
	remote.Normalize()

	v, err := s.checkCredential(ctx, remote, credential)
	if err != nil {
		return false, err
	}
	if !v.Matched {
		return false, ErrBadCredential
	}

	if other, err := s.localCollision(ctx, remote); err != nil {
		return false, err
	} else if other != nil {
		return false, s.pending(out, s.conflicts.Classify(other, remote))
	}

	local, err := s.local.GetByID(ctx, remote.ID)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		s.log.Info(ctx, "adopting remote identity", "identity", remote.ID)
		rec := remote
		if v.NeedsMigration {
			if rec, err = s.passwords.Migrate(ctx, remote, credential); err != nil {
				return false, err
			}
			out.Migrated = true
		}
		return false, s.succeed(ctx, out, rec, identity.ModeOnline)
	case err != nil:
		return false, fmt.Errorf("read local identity: %w", err)
	}

	d := s.conflicts.Classify(local, remote)
	if d.Kind != identity.ConflictNone {
		return false, s.pending(out, d)
	}

	// The remote accepted the password; make sure the local copy does too so
	// the next offline login works after a remote password change.
	rec := local
	if credential != "" {
		lv, err := s.passwords.VerifyRecord(ctx, local, credential)
		if err != nil {
			return false, err
		}
		if !lv.Matched || lv.NeedsMigration {
			if rec, err = s.passwords.Migrate(ctx, local, credential); err != nil {
				return false, err
			}
			out.Migrated = true
		}
	}
	return false, s.succeed(ctx, out, rec, identity.ModeOnline)
}

// remoteMissing handles a not-found answer from the remote store.
func (s *AuthService) remoteMissing(ctx context.Context, out *LoginOutcome, value, credential string) error {
	local, err := s.local.FindByCredential(ctx, out.Method, value)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("read local identity: %w", err)
	}
	v, err := s.checkCredential(ctx, local, credential)
	if err != nil {
		return err
	}
	if !v.Matched {
		return ErrBadCredential
	}
	return s.pending(out, s.conflicts.Classify(local, nil))
}

func (s *AuthService) loginOffline(ctx context.Context, out *LoginOutcome, value, credential string) error {
	ctx, span := telemetry.Tracer().Start(ctx, "login.offline")
	defer span.End()

	rec, err := s.local.FindByCredential(ctx, out.Method, value)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("read local identity: %w", err)
	}

	v, err := s.checkCredential(ctx, rec, credential)
	if err != nil {
		return err
	}
	if !v.Matched {
		return ErrBadCredential
	}

	if v.NeedsMigration {
		if rec, err = s.passwords.Migrate(ctx, rec, credential); err != nil {
			return err
		}
		out.Migrated = true
		s.log.Info(ctx, "credential migrated", "identity", rec.ID, "from", v.Strategy, "to", rec.Credential.Kind.String())
	}
	return s.succeed(ctx, out, rec, identity.ModeOffline)
}

// checkCredential applies the empty-credential rule and then the password
// strategies.
func (s *AuthService) checkCredential(ctx context.Context, rec *identity.Record, credential string) (Verification, error) {
	if credential == "" {
		if rec.AuthMethod == identity.AuthGoogle && s.opts.AllowGoogleWithoutPassword {
			return Verification{Matched: true, Strategy: identity.AuthGoogle.String()}, nil
		}
		return Verification{}, fmt.Errorf("%w: password is empty", ErrValidation)
	}
	return s.passwords.VerifyRecord(ctx, rec, credential)
}

// localCollision returns a local record that owns one of remote's
// identifiers under a different id.
func (s *AuthService) localCollision(ctx context.Context, remote *identity.Record) (*identity.Record, error) {
	for _, m := range []identity.LoginMethod{identity.LoginEmail, identity.LoginUsername, identity.LoginPhone} {
		v := remote.Identifier(m)
		if v == "" {
			continue
		}
		rec, err := s.local.FindByCredential(ctx, m, v)
		if errors.Is(err, common.ErrorNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read local identity: %w", err)
		}
		if rec.ID != remote.ID {
			return rec, nil
		}
	}
	return nil, nil
}

func (s *AuthService) pending(out *LoginOutcome, d *identity.ConflictDescriptor) error {
	out.Conflict = d
	return &ConflictError{Descriptor: d}
}

// succeed is the final write of a login. Once it starts it runs to
// completion even if ctx is cancelled.
func (s *AuthService) succeed(ctx context.Context, out *LoginOutcome, rec *identity.Record, mode identity.Mode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if out.Migrated {
		rec = rec.Clone()
		rec.UpdatedAt = nextStamp(rec.UpdatedAt, s.now())
	}
	if err := s.local.UpsertAndRecordLogin(ctx, rec); err != nil {
		return fmt.Errorf("store identity: %w", err)
	}

	sess, err := s.tokens.Issue(rec, mode)
	if err != nil {
		return err
	}
	if err := s.sessions.SaveSession(context.WithoutCancel(ctx), sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	out.Mode = mode
	out.Record = rec
	out.Session = sess
	return nil
}

// nextStamp returns now at the millisecond precision the stores keep, moved
// past prev if the clock has not advanced.
func nextStamp(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Millisecond)
	if !now.After(prev.Truncate(time.Millisecond)) {
		now = prev.UTC().Truncate(time.Millisecond).Add(time.Millisecond)
	}
	return now
}

func (s *AuthService) settle(ctx context.Context, span trace.Span, out *LoginOutcome, err error) (*LoginOutcome, error) {
	switch {
	case err == nil:
		out.enter(StateSuccess)
		span.SetAttributes(attribute.String("login.mode", string(out.Mode)))
		s.log.Info(ctx, "login succeeded", "identity", out.Record.ID, "mode", string(out.Mode), "fallback", out.FellBack)
		return out, nil
	case errors.Is(err, ErrConflictRequiresResolution):
		out.enter(StateConflictPending)
		span.SetAttributes(attribute.String("conflict.kind", out.Conflict.Kind.String()))
		s.log.Info(ctx, "login needs conflict resolution", "kind", out.Conflict.Kind.String())
		return out, err
	default:
		return s.fail(ctx, span, out, err)
	}
}

func (s *AuthService) fail(ctx context.Context, span trace.Span, out *LoginOutcome, err error) (*LoginOutcome, error) {
	out.enter(StateFailed)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.log.Info(ctx, "login failed", "method", out.Method.String(), "error", err)
	return out, err
}

// RegisterRequest holds the fields of a new account.
type RegisterRequest struct {
	Email      string
	Username   string
	Phone      string
	FirstName  string
	LastName   string
	Password   string
	AuthMethod identity.AuthMethod
	Profile    map[string]string
}

// Register creates an account locally and mirrors it to the remote store
// when reachable. The local record is kept even if mirroring fails; a
// remote identifier collision is reported as ErrCredentialConflict together
// with an IdentifierTakenError naming the field.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*identity.Record, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "register")
	defer span.End()

	rec := &identity.Record{
		ID:         uuid.NewString(),
		Email:      req.Email,
		Username:   req.Username,
		Phone:      req.Phone,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		AuthMethod: req.AuthMethod,
		Profile:    req.Profile,
		UpdatedAt:  time.Now(),
	}
	rec.Normalize()

	if rec.Email == "" && rec.Username == "" && rec.Phone == "" {
		return nil, fmt.Errorf("%w: email, username or phone is required", ErrValidation)
	}
	if req.Password == "" && rec.AuthMethod != identity.AuthGoogle {
		return nil, fmt.Errorf("%w: password is empty", ErrValidation)
	}

	if other, err := s.localCollision(ctx, rec); err != nil {
		return nil, err
	} else if other != nil {
		return nil, fmt.Errorf("%w: %s", ErrCredentialConflict, strings.Join(identity.Colliding(other, rec), ","))
	}

	if req.Password != "" {
		cred, err := s.passwords.NewCredential(ctx, rec.ID, req.Password)
		if err != nil {
			return nil, err
		}
		rec.Credential = cred
	}

	if err := s.local.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("store identity: %w", err)
	}
	s.log.Info(ctx, "identity registered", "identity", rec.ID)

	if s.opts.PreferOffline || !s.reach.Reachable(ctx) {
		return rec, nil
	}
	if err := s.mirror(ctx, rec); err != nil {
		span.RecordError(err)
		var taken *IdentifierTakenError
		if errors.As(err, &taken) {
			return rec, fmt.Errorf("%w: %w", ErrCredentialConflict, taken)
		}
		s.log.Warn(ctx, "remote mirror failed, identity stays local", "identity", rec.ID, "error", err)
	}
	return rec, nil
}

func (s *AuthService) mirror(ctx context.Context, rec *identity.Record) error {
	cred, err := s.passwords.Export(ctx, rec)
	if err != nil {
		return err
	}
	out := rec.Clone()
	out.Credential = cred

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	if _, err := s.gw.Upsert(gctx, out); err != nil {
		if client.IsConflict(err) {
			return &IdentifierTakenError{Field: client.ConflictField(err)}
		}
		return err
	}
	return nil
}

// Logout forgets the current session.
func (s *AuthService) Logout(ctx context.Context) error {
	return s.sessions.ClearSession(ctx)
}

// CurrentSession returns the saved session if its token is still valid. An
// expired session is cleared.
func (s *AuthService) CurrentSession(ctx context.Context) (*identity.Session, error) {
	sess, err := s.sessions.LoadSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotLoggedIn
	}
	if _, err := s.tokens.Parse(sess.Token); err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			if err := s.sessions.ClearSession(ctx); err != nil {
				return nil, err
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrNotLoggedIn, err)
	}
	return sess, nil
}

// ResumeSession restores the saved session and its record when AutoLogin is
// enabled.
func (s *AuthService) ResumeSession(ctx context.Context) (*identity.Session, *identity.Record, error) {
	if !s.opts.AutoLogin {
		return nil, nil, ErrNotLoggedIn
	}
	sess, err := s.CurrentSession(ctx)
	if err != nil {
		return nil, nil, err
	}
	rec, err := s.local.GetByID(ctx, sess.IdentityID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, ErrNotLoggedIn
		}
		return nil, nil, err
	}
	return sess, rec, nil
}

// RecentLogins returns the recent-login index, most recent first.
func (s *AuthService) RecentLogins(ctx context.Context) ([]*identity.Record, error) {
	return s.local.Recent(ctx)
}

// Ping checks the remote store.
func (s *AuthService) Ping(ctx context.Context) error {
	if s.gw == nil {
		return ErrGatewayUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	if err := s.gw.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return nil
}

// Close releases the gateway connection.
func (s *AuthService) Close() error {
	if s.gw == nil {
		return nil
	}
	return s.gw.Close()
}
