package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dmitrijs2005/accountsync/internal/client/client"
	"github.com/dmitrijs2005/accountsync/internal/client/repositories/conflictlog"
	"github.com/dmitrijs2005/accountsync/internal/client/repositories/identities"
	"github.com/dmitrijs2005/accountsync/internal/common"
	"github.com/dmitrijs2005/accountsync/internal/identity"
	"github.com/dmitrijs2005/accountsync/internal/logging"
	"github.com/dmitrijs2005/accountsync/internal/telemetry"
)

// choiceFields is the audit label of a per-field resolution.
const choiceFields = "fields"

// ConflictService classifies divergences between the local and remote copy
// of an account and applies the user's resolution.
type ConflictService struct {
	gw             client.Gateway
	local          identities.Repository
	passwords      *PasswordService
	audit          conflictlog.Repository
	gatewayTimeout time.Duration
	log            logging.Logger
	now            func() time.Time
}

// NewConflictService builds the engine. gw may be nil on a device that never
// talks to a backend; audit may be nil to skip the resolution log.
func NewConflictService(gw client.Gateway, local identities.Repository, passwords *PasswordService,
	audit conflictlog.Repository, gatewayTimeout time.Duration, log logging.Logger) *ConflictService {
	if gatewayTimeout <= 0 {
		gatewayTimeout = 5 * time.Second
	}
	return &ConflictService{
		gw:             gw,
		local:          local,
		passwords:      passwords,
		audit:          audit,
		gatewayTimeout: gatewayTimeout,
		log:            log.With("module", "conflict"),
		now:            time.Now,
	}
}

// Classify compares the two copies. Either side may be nil. Rules apply in
// order: missing local, missing remote, different ids, differing fields.
func (c *ConflictService) Classify(local, remote *identity.Record) *identity.ConflictDescriptor {
	d := &identity.ConflictDescriptor{Local: local.Clone(), Remote: remote.Clone()}
	switch {
	case local == nil && remote == nil:
		d.Kind = identity.ConflictNone
	case local == nil:
		d.Kind = identity.RemoteOnly
	case remote == nil:
		d.Kind = identity.LocalOnly
	case local.ID != remote.ID:
		d.Kind = identity.CredentialConflict
		d.CollidingFields = identity.Colliding(local, remote)
	default:
		d.FieldDiffs = identity.Diff(local, remote)
		if len(d.FieldDiffs) > 0 {
			d.Kind = identity.DataConflict
		}
	}
	return d
}

// Resolve applies one global choice to d and returns the record both stores
// now agree on.
//
// DataConflict accepts local (or sync) and remote (or download). LocalOnly
// accepts sync (or local); RemoteOnly accepts download (or remote).
// CredentialConflict is never resolved here. The descriptor is rejected
// with ErrStaleConflict if either store changed since classification.
func (c *ConflictService) Resolve(ctx context.Context, d *identity.ConflictDescriptor, choice identity.Choice) (*identity.Record, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "conflict.Resolve")
	defer span.End()
	if d != nil {
		span.SetAttributes(
			attribute.String("conflict.kind", d.Kind.String()),
			attribute.String("conflict.choice", choice.String()),
		)
	}

	rec, err := c.resolve(ctx, d, choice)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return rec, err
}

func (c *ConflictService) resolve(ctx context.Context, d *identity.ConflictDescriptor, choice identity.Choice) (*identity.Record, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: no conflict to resolve", ErrValidation)
	}

	switch d.Kind {
	case identity.CredentialConflict:
		return nil, fmt.Errorf("%w: %s", ErrCredentialConflict, strings.Join(d.CollidingFields, ","))

	case identity.DataConflict:
		var side identity.Side
		switch choice {
		case identity.ChoiceLocal, identity.ChoiceSyncToCloud:
			side = identity.SideLocal
		case identity.ChoiceRemote, identity.ChoiceDownload:
			side = identity.SideRemote
		default:
			return nil, fmt.Errorf("%w: choice %s", ErrValidation, choice)
		}
		sides := make(map[string]identity.Side, len(d.FieldDiffs))
		for _, fd := range d.FieldDiffs {
			sides[fd.Field] = side
		}
		return c.resolveData(ctx, d, sides, choice.String())

	case identity.LocalOnly:
		if choice != identity.ChoiceSyncToCloud && choice != identity.ChoiceLocal {
			return nil, fmt.Errorf("%w: %s cannot be resolved with %s", ErrValidation, d.Kind, choice)
		}
		return c.syncToCloud(ctx, d)

	case identity.RemoteOnly:
		if choice != identity.ChoiceDownload && choice != identity.ChoiceRemote {
			return nil, fmt.Errorf("%w: %s cannot be resolved with %s", ErrValidation, d.Kind, choice)
		}
		return c.download(ctx, d)

	default:
		return nil, fmt.Errorf("%w: nothing to resolve", ErrValidation)
	}
}

// ResolveFields settles a DataConflict field by field. sides must name a
// side for every entry of d.FieldDiffs.
func (c *ConflictService) ResolveFields(ctx context.Context, d *identity.ConflictDescriptor, sides map[string]identity.Side) (*identity.Record, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "conflict.ResolveFields")
	defer span.End()

	if d == nil || d.Kind != identity.DataConflict {
		err := fmt.Errorf("%w: per-field resolution needs a data conflict", ErrValidation)
		span.RecordError(err)
		return nil, err
	}
	rec, err := c.resolveData(ctx, d, sides, choiceFields)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return rec, err
}

func (c *ConflictService) resolveData(ctx context.Context, d *identity.ConflictDescriptor, sides map[string]identity.Side, label string) (*identity.Record, error) {
	if d.Local == nil || d.Remote == nil {
		return nil, fmt.Errorf("%w: data conflict without both copies", ErrValidation)
	}

	merged := d.Local.Clone()
	pushRemote := false
	fields := make([]string, 0, len(d.FieldDiffs))
	for _, fd := range d.FieldDiffs {
		value := fd.Remote
		switch sides[fd.Field] {
		case identity.SideLocal:
			value = fd.Local
			pushRemote = true
		case identity.SideRemote:
		default:
			return nil, fmt.Errorf("%w: no side chosen for %s", ErrValidation, fd.Field)
		}
		if err := identity.SetFieldValue(merged, fd.Field, value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		fields = append(fields, fd.Field)
	}

	cur, err := c.checkFresh(ctx, d)
	if err != nil {
		return nil, err
	}

	// Profile fields come from d; the credential stays as stored locally.
	merged.Credential = cur.Credential
	merged.UpdatedAt = d.Remote.UpdatedAt
	if pushRemote {
		// The remote keeps its own credential; only profile data moves.
		out := merged.Clone()
		out.Credential = d.Remote.Credential
		out.UpdatedAt = c.now()
		stored, err := c.pushRemote(ctx, out)
		if err != nil {
			return nil, err
		}
		merged.UpdatedAt = stored.UpdatedAt
	}
	merged.Normalize()

	if err := c.finish(ctx, d, merged, label, fields); err != nil {
		return nil, err
	}
	return merged, nil
}

func (c *ConflictService) syncToCloud(ctx context.Context, d *identity.ConflictDescriptor) (*identity.Record, error) {
	if d.Local == nil {
		return nil, fmt.Errorf("%w: nothing to sync", ErrValidation)
	}
	cur, err := c.checkFresh(ctx, d)
	if err != nil {
		return nil, err
	}

	cred, err := c.passwords.Export(ctx, cur)
	if err != nil {
		return nil, fmt.Errorf("export credential: %w", err)
	}
	out := cur.Clone()
	out.Credential = cred
	out.UpdatedAt = c.now()

	stored, err := c.pushRemote(ctx, out)
	if err != nil {
		return nil, err
	}

	rec := cur.Clone()
	rec.UpdatedAt = stored.UpdatedAt
	if rec.Credential.IsLegacy() {
		rec.Credential = cred
	}
	rec.Normalize()
	if err := c.finish(ctx, d, rec, identity.ChoiceSyncToCloud.String(), nil); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *ConflictService) download(ctx context.Context, d *identity.ConflictDescriptor) (*identity.Record, error) {
	if d.Remote == nil {
		return nil, fmt.Errorf("%w: nothing to download", ErrValidation)
	}
	if _, err := c.checkFresh(ctx, d); err != nil {
		return nil, err
	}

	rec := d.Remote.Clone()
	rec.Normalize()
	if err := c.finish(ctx, d, rec, identity.ChoiceDownload.String(), nil); err != nil {
		return nil, err
	}
	return rec, nil
}

// pushRemote upserts rec on the gateway. A remote identifier collision
// becomes an IdentifierTakenError.
func (c *ConflictService) pushRemote(ctx context.Context, rec *identity.Record) (*identity.Record, error) {
	if c.gw == nil {
		return nil, ErrGatewayUnavailable
	}
	gctx, cancel := context.WithTimeout(ctx, c.gatewayTimeout)
	defer cancel()

	stored, err := c.gw.Upsert(gctx, rec)
	if err != nil {
		if client.IsConflict(err) {
			return nil, &IdentifierTakenError{Field: client.ConflictField(err)}
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if stored == nil {
		stored = rec
	}
	return stored, nil
}

// finish writes rec locally, moves it to the front of the recent logins and
// appends an audit entry.
func (c *ConflictService) finish(ctx context.Context, d *identity.ConflictDescriptor, rec *identity.Record, label string, fields []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.local.UpsertAndRecordLogin(ctx, rec); err != nil {
		return fmt.Errorf("store resolved identity: %w", err)
	}
	c.log.Info(ctx, "conflict resolved", "identity", rec.ID, "kind", d.Kind.String(), "choice", label)

	if c.audit == nil {
		return nil
	}
	entry := &conflictlog.Entry{
		IdentityID: rec.ID,
		Kind:       d.Kind.String(),
		Choice:     label,
		Fields:     fields,
	}
	if err := c.audit.Append(context.WithoutCancel(ctx), entry); err != nil {
		c.log.Warn(ctx, "failed to append conflict log", "identity", rec.ID, "error", err)
	}
	return nil
}

// checkFresh re-reads both stores and fails with ErrStaleConflict if either
// no longer matches the snapshot in d. It returns the current local copy,
// nil when d has none.
func (c *ConflictService) checkFresh(ctx context.Context, d *identity.ConflictDescriptor) (*identity.Record, error) {
	cur, err := c.checkLocalFresh(ctx, d)
	if err != nil {
		return nil, err
	}
	return cur, c.checkRemoteFresh(ctx, d)
}

func (c *ConflictService) checkLocalFresh(ctx context.Context, d *identity.ConflictDescriptor) (*identity.Record, error) {
	if d.Local == nil {
		_, err := c.local.GetByID(ctx, d.Remote.ID)
		switch {
		case err == nil:
			return nil, fmt.Errorf("%w: local copy of %s appeared", ErrStaleConflict, d.Remote.ID)
		case errors.Is(err, common.ErrorNotFound):
			return nil, nil
		default:
			return nil, fmt.Errorf("re-read local identity: %w", err)
		}
	}

	cur, err := c.local.GetByID(ctx, d.Local.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: local copy of %s is gone", ErrStaleConflict, d.Local.ID)
		}
		return nil, fmt.Errorf("re-read local identity: %w", err)
	}
	if !sameStamp(cur.UpdatedAt, d.Local.UpdatedAt) {
		return nil, fmt.Errorf("%w: local copy of %s changed", ErrStaleConflict, d.Local.ID)
	}
	return cur, nil
}

func (c *ConflictService) checkRemoteFresh(ctx context.Context, d *identity.ConflictDescriptor) error {
	probe := d.Remote
	if probe == nil {
		probe = d.Local
	}
	method, value, ok := lookupKey(probe)
	if !ok {
		return nil
	}
	if c.gw == nil {
		return ErrGatewayUnavailable
	}

	gctx, cancel := context.WithTimeout(ctx, c.gatewayTimeout)
	defer cancel()
	cur, err := c.gw.FindByCredential(gctx, method, value)

	if d.Remote == nil {
		switch {
		case client.IsNotFound(err):
			return nil
		case err != nil:
			return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		case cur.ID == d.Local.ID:
			return fmt.Errorf("%w: remote copy of %s appeared", ErrStaleConflict, d.Local.ID)
		default:
			// Another account owns the identifier; the upsert reports it.
			return nil
		}
	}

	switch {
	case client.IsNotFound(err):
		return fmt.Errorf("%w: remote copy of %s is gone", ErrStaleConflict, d.Remote.ID)
	case err != nil:
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	case cur.ID != d.Remote.ID || !sameStamp(cur.UpdatedAt, d.Remote.UpdatedAt):
		return fmt.Errorf("%w: remote copy of %s changed", ErrStaleConflict, d.Remote.ID)
	}
	return nil
}

// sameStamp compares at the millisecond precision both stores keep.
func sameStamp(a, b time.Time) bool {
	return a.Truncate(time.Millisecond).Equal(b.Truncate(time.Millisecond))
}

// lookupKey picks the identifier used to find rec again.
func lookupKey(rec *identity.Record) (identity.LoginMethod, string, bool) {
	switch {
	case rec.Email != "":
		return identity.LoginEmail, rec.Email, true
	case rec.Username != "":
		return identity.LoginUsername, rec.Username, true
	case rec.Phone != "":
		return identity.LoginPhone, rec.Phone, true
	}
	return 0, "", false
}
