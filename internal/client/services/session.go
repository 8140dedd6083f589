package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountsync/internal/common"
	"github.com/dmitrijs2005/accountsync/internal/identity"
	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are carried by a session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	AuthMethod string `json:"auth_method"`
	Mode       string `json:"mode"`
}

// TokenIssuer signs session tokens with HS256.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, ttl: ttl, now: time.Now}
}

// Issue builds the session for rec. A zero ttl means the token never expires.
func (t *TokenIssuer) Issue(rec *identity.Record, mode identity.Mode) (*identity.Session, error) {
	now := t.now().UTC().Truncate(time.Second)
	sess := &identity.Session{
		IdentityID: rec.ID,
		AuthMethod: rec.AuthMethod.String(),
		Mode:       mode,
		IssuedAt:   now,
	}

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  rec.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
		AuthMethod: sess.AuthMethod,
		Mode:       string(mode),
	}
	if t.ttl > 0 {
		exp := now.Add(t.ttl)
		sess.ExpiresAt = &exp
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}
	sess.Token = tok
	return sess, nil
}

// Parse validates token and returns its claims.
func (t *TokenIssuer) Parse(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tk *jwt.Token) (interface{}, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tk.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}
