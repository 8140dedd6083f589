package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountsync/internal/client/keystore"
	"github.com/dmitrijs2005/accountsync/internal/cryptox"
	"github.com/dmitrijs2005/accountsync/internal/identity"
	"github.com/dmitrijs2005/accountsync/internal/logging"
)

var ErrKeystoreUnavailable = errors.New("keystore unavailable")

// Verification is the outcome of checking a candidate password against a
// record.
type Verification struct {
	Matched bool
	// Strategy names the credential representation that was consulted.
	Strategy string
	// NeedsMigration is set when the record should be rewritten with a
	// fresh handle after a successful login.
	NeedsMigration bool
}

// credentialStrategy verifies one credential representation. Strategies are
// consulted in a fixed order; the first that handles the record's
// credential kind decides.
type credentialStrategy interface {
	name() string
	handles(kind identity.CredentialKind) bool
	verify(ctx context.Context, p *PasswordService, rec *identity.Record, plaintext string) (Verification, error)
}

type keystoreStrategy struct{}

func (keystoreStrategy) name() string { return identity.CredentialKeystore.String() }

func (keystoreStrategy) handles(k identity.CredentialKind) bool {
	return k == identity.CredentialKeystore
}

func (keystoreStrategy) verify(ctx context.Context, p *PasswordService, rec *identity.Record, plaintext string) (Verification, error) {
	v := Verification{Strategy: identity.CredentialKeystore.String()}
	handle, ok := p.FetchSecurely(ctx, rec.ID)
	if !ok {
		p.log.Warn(ctx, "keystore handle unavailable, credential cannot be verified", "identity", rec.ID)
		return v, nil
	}
	v.Matched = cryptox.Verify(plaintext, handle)
	v.NeedsMigration = v.Matched && cryptox.NeedsRehash(handle)
	return v, nil
}

type inlineStrategy struct{}

func (inlineStrategy) name() string { return identity.CredentialInlineHash.String() }

func (inlineStrategy) handles(k identity.CredentialKind) bool {
	return k == identity.CredentialInlineHash
}

func (inlineStrategy) verify(_ context.Context, p *PasswordService, rec *identity.Record, plaintext string) (Verification, error) {
	v := Verification{Strategy: identity.CredentialInlineHash.String()}
	v.Matched = cryptox.Verify(plaintext, rec.Credential.Value)
	v.NeedsMigration = v.Matched && (cryptox.NeedsRehash(rec.Credential.Value) || p.HasKeystore())
	return v, nil
}

type legacyPlaintextStrategy struct{}

func (legacyPlaintextStrategy) name() string { return identity.CredentialLegacyPlaintext.String() }

func (legacyPlaintextStrategy) handles(k identity.CredentialKind) bool {
	return k == identity.CredentialLegacyPlaintext
}

func (legacyPlaintextStrategy) verify(_ context.Context, _ *PasswordService, rec *identity.Record, plaintext string) (Verification, error) {
	v := Verification{Strategy: identity.CredentialLegacyPlaintext.String()}
	v.Matched = rec.Credential.Value != "" &&
		subtle.ConstantTimeCompare([]byte(plaintext), []byte(rec.Credential.Value)) == 1
	v.NeedsMigration = v.Matched
	return v, nil
}

var defaultStrategies = []credentialStrategy{
	keystoreStrategy{},
	inlineStrategy{},
	legacyPlaintextStrategy{},
}

// PasswordService hashes, verifies and migrates credentials. The keystore
// is optional; without one every handle is kept inline on the record.
type PasswordService struct {
	ks         keystore.Keystore
	timeout    time.Duration
	strategies []credentialStrategy
	log        logging.Logger
}

func NewPasswordService(ks keystore.Keystore, timeout time.Duration, log logging.Logger) *PasswordService {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &PasswordService{
		ks:         ks,
		timeout:    timeout,
		strategies: defaultStrategies,
		log:        log.With("module", "password"),
	}
}

func (p *PasswordService) HasKeystore() bool { return p.ks != nil }

func (p *PasswordService) Hash(plaintext string) (string, error) {
	return cryptox.Hash(plaintext)
}

func (p *PasswordService) Verify(plaintext, handle string) bool {
	return cryptox.Verify(plaintext, handle)
}

func (p *PasswordService) NeedsRehash(handle string) bool {
	return cryptox.NeedsRehash(handle)
}

// StoreSecurely puts handle into the keystore under identityID, bounded by
// the keystore timeout.
func (p *PasswordService) StoreSecurely(ctx context.Context, identityID, handle string) error {
	if p.ks == nil {
		return ErrKeystoreUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.ks.Put(ctx, identityID, handle); err != nil {
		return fmt.Errorf("%w: %v", ErrKeystoreUnavailable, err)
	}
	return nil
}

// FetchSecurely reads the handle for identityID. Missing entries, keystore
// errors and timeouts all report ok=false.
func (p *PasswordService) FetchSecurely(ctx context.Context, identityID string) (handle string, ok bool) {
	if p.ks == nil {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	handle, err := p.ks.Get(ctx, identityID)
	if err != nil {
		if !errors.Is(err, keystore.ErrNotFound) {
			p.log.Warn(ctx, "keystore read failed", "identity", identityID, "error", err)
		}
		return "", false
	}
	return handle, true
}

// VerifyRecord checks plaintext against rec's credential. A record with no
// credential never matches.
func (p *PasswordService) VerifyRecord(ctx context.Context, rec *identity.Record, plaintext string) (Verification, error) {
	for _, s := range p.strategies {
		if !s.handles(rec.Credential.Kind) {
			continue
		}
		v, err := s.verify(ctx, p, rec, plaintext)
		if err != nil {
			return v, err
		}
		p.log.Debug(ctx, "credential checked", "identity", rec.ID, "strategy", s.name(), "matched", v.Matched)
		return v, nil
	}
	return Verification{Strategy: identity.CredentialNone.String()}, nil
}

// Migrate returns a copy of rec whose credential is a fresh handle for
// plaintext, stored in the keystore when one is configured and reachable,
// inline otherwise. The plaintext never survives on the copy. Persisting
// the copy is up to the caller.
func (p *PasswordService) Migrate(ctx context.Context, rec *identity.Record, plaintext string) (*identity.Record, error) {
	handle, err := p.Hash(plaintext)
	if err != nil {
		return nil, err
	}

	out := rec.Clone()
	if p.ks != nil {
		err := p.StoreSecurely(ctx, rec.ID, handle)
		if err == nil {
			out.Credential = identity.CredentialRef{Kind: identity.CredentialKeystore}
			return out, nil
		}
		p.log.Warn(ctx, "keystore write failed, keeping handle inline", "identity", rec.ID, "error", err)
	}
	out.Credential = identity.CredentialRef{Kind: identity.CredentialInlineHash, Value: handle}
	return out, nil
}

// NewCredential hashes plaintext for a brand new record with id.
func (p *PasswordService) NewCredential(ctx context.Context, id, plaintext string) (identity.CredentialRef, error) {
	migrated, err := p.Migrate(ctx, &identity.Record{ID: id}, plaintext)
	if err != nil {
		return identity.CredentialRef{}, err
	}
	return migrated.Credential, nil
}

// Export returns a representation of rec's credential that can leave the
// device: keystore handles are inlined and legacy plaintext is hashed.
func (p *PasswordService) Export(ctx context.Context, rec *identity.Record) (identity.CredentialRef, error) {
	switch rec.Credential.Kind {
	case identity.CredentialKeystore:
		handle, ok := p.FetchSecurely(ctx, rec.ID)
		if !ok {
			return identity.CredentialRef{}, fmt.Errorf("%w: no handle for %s", ErrKeystoreUnavailable, rec.ID)
		}
		return identity.CredentialRef{Kind: identity.CredentialInlineHash, Value: handle}, nil
	case identity.CredentialLegacyPlaintext:
		handle, err := p.Hash(rec.Credential.Value)
		if err != nil {
			return identity.CredentialRef{}, err
		}
		return identity.CredentialRef{Kind: identity.CredentialInlineHash, Value: handle}, nil
	default:
		return rec.Credential, nil
	}
}
