// Package cryptox implements password hashing for stored credentials.
//
// New handles are argon2id in PHC string form:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
//
// with salt and key in unpadded standard base64. Legacy bcrypt handles
// ($2a$, $2b$, $2y$) are accepted by Verify but never produced.
package cryptox

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/accountsync/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Params are the argon2id cost parameters.
type Params struct {
	Memory  uint32 // KiB
	Time    uint32
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultParams is the current hashing policy.
var DefaultParams = Params{
	Memory:  64 * 1024,
	Time:    1,
	Threads: 4,
	SaltLen: 16,
	KeyLen:  32,
}

var ErrMalformedHandle = errors.New("malformed password handle")

var b64 = base64.RawStdEncoding

// DeriveKey runs argon2id with p over password and salt.
func DeriveKey(password, salt []byte, p Params) []byte {
	return argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, p.KeyLen)
}

// Hash derives a fresh handle for plaintext with a random salt.
func Hash(plaintext string) (string, error) {
	return HashWithParams(plaintext, DefaultParams)
}

func HashWithParams(plaintext string, p Params) (string, error) {
	if p.SaltLen == 0 || p.KeyLen == 0 || p.Threads == 0 || p.Time == 0 {
		return "", fmt.Errorf("invalid argon2 params %+v", p)
	}
	salt := common.GenerateRandByteArray(int(p.SaltLen))
	pw := []byte(plaintext)
	defer common.WipeByteArray(pw)

	key := DeriveKey(pw, salt, p)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Threads,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// Verify reports whether plaintext matches handle. Malformed or unknown
// handles never match; Verify does not panic on any input.
func Verify(plaintext, handle string) bool {
	if isBcrypt(handle) {
		return bcrypt.CompareHashAndPassword([]byte(handle), []byte(plaintext)) == nil
	}

	p, salt, key, err := decode(handle)
	if err != nil {
		return false
	}

	pw := []byte(plaintext)
	defer common.WipeByteArray(pw)

	got := DeriveKey(pw, salt, p)
	return subtle.ConstantTimeCompare(got, key) == 1
}

// NeedsRehash reports whether handle should be replaced by a fresh Hash:
// bcrypt handles always, argon2id handles weaker than DefaultParams.
// Unparseable handles are reported as needing a rehash.
func NeedsRehash(handle string) bool {
	if isBcrypt(handle) {
		return true
	}
	p, _, _, err := decode(handle)
	if err != nil {
		return true
	}
	return p.Memory < DefaultParams.Memory ||
		p.Time < DefaultParams.Time ||
		p.Threads < DefaultParams.Threads ||
		p.KeyLen < DefaultParams.KeyLen
}

// IsHandle reports whether s looks like a handle this package understands.
func IsHandle(s string) bool {
	if isBcrypt(s) {
		return true
	}
	_, _, _, err := decode(s)
	return err == nil
}

func isBcrypt(h string) bool {
	return strings.HasPrefix(h, "$2a$") || strings.HasPrefix(h, "$2b$") || strings.HasPrefix(h, "$2y$")
}

func decode(handle string) (Params, []byte, []byte, error) {
	var p Params

	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(handle, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return p, nil, nil, ErrMalformedHandle
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, ErrMalformedHandle
	}

	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &threads); err != nil {
		return p, nil, nil, ErrMalformedHandle
	}
	if p.Memory == 0 || p.Time == 0 || threads == 0 || threads > 255 {
		return p, nil, nil, ErrMalformedHandle
	}
	p.Threads = uint8(threads)

	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return p, nil, nil, ErrMalformedHandle
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, ErrMalformedHandle
	}

	p.SaltLen = uint32(len(salt))
	p.KeyLen = uint32(len(key))
	return p, salt, key, nil
}
