package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher produces and checks password digests.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) (bool, error)
}

// Rehasher is implemented by hashers that can tell when a stored digest
// should be replaced after a successful login.
type Rehasher interface {
	NeedsRehash(digest string) bool
}

// Argon2Params are the Argon2id cost settings.
type Argon2Params struct {
	Time    uint32 // iterations
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// DefaultArgon2Params follow the OWASP recommendation (64 MiB, t=3, p=1).
var DefaultArgon2Params = Argon2Params{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 1,
	KeyLen:  32,
	SaltLen: 16,
}

// DefaultHasher hashes with Argon2id and verifies both Argon2id and legacy
// bcrypt digests. The zero value uses DefaultArgon2Params.
type DefaultHasher struct {
	Params Argon2Params
}

func (h DefaultHasher) params() Argon2Params {
	if h.Params == (Argon2Params{}) {
		return DefaultArgon2Params
	}
	return h.Params
}

// Hash implements PasswordHasher.
func (h DefaultHasher) Hash(password string) (string, error) {
	return hashArgon2(password, h.params())
}

// Verify implements PasswordHasher.
func (h DefaultHasher) Verify(password, digest string) (bool, error) {
	return VerifyPassword(password, digest)
}

// NeedsRehash reports whether digest is bcrypt, unreadable, or Argon2id
// with weaker settings than the hasher's own.
func (h DefaultHasher) NeedsRehash(digest string) bool {
	if isBcrypt(digest) {
		return true
	}
	phc, err := parsePHC(digest)
	if err != nil {
		return true
	}
	p := h.params()
	return phc.time < p.Time || phc.memory < p.Memory || phc.threads < p.Threads ||
		uint32(len(phc.hash)) < p.KeyLen //nolint:gosec // G115: key length fits uint32
}

// HashPassword hashes with DefaultArgon2Params and returns a PHC string:
// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
func HashPassword(password string) (string, error) {
	return hashArgon2(password, DefaultArgon2Params)
}

func hashArgon2(password string, p Argon2Params) (string, error) {
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword checks password against an Argon2id PHC string or a
// bcrypt ($2a$, $2b$, $2y$) digest. A malformed digest is an error.
func VerifyPassword(password, digest string) (bool, error) {
	if isBcrypt(digest) {
		err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, fmt.Errorf("checking bcrypt digest: %w", err)
		}
	}

	phc, err := parsePHC(digest)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey([]byte(password), phc.salt, phc.time, phc.memory, phc.threads,
		uint32(len(phc.hash))) //nolint:gosec // G115: hash length fits uint32
	return subtle.ConstantTimeCompare(phc.hash, candidate) == 1, nil
}

func isBcrypt(digest string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(digest, prefix) {
			return true
		}
	}
	return false
}

// phcDigest is a decoded $argon2id$ string.
type phcDigest struct {
	time    uint32
	memory  uint32
	threads uint8
	salt    []byte
	hash    []byte
}

func parsePHC(encoded string) (*phcDigest, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, hash
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC hash format")
	}
	if parts[1] != "argon2id" {
		return nil, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return nil, fmt.Errorf("unsupported argon2 version: %s", parts[2])
	}

	d := &phcDigest{}
	for _, kv := range strings.Split(parts[3], ",") {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("parsing parameter %q", kv)
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parsing parameter %q: %w", kv, err)
		}
		switch key {
		case "m":
			d.memory = uint32(n)
		case "t":
			d.time = uint32(n)
		case "p":
			if n > 255 {
				return nil, fmt.Errorf("parallelism %d out of range", n)
			}
			d.threads = uint8(n)
		default:
			return nil, fmt.Errorf("unknown parameter %q", key)
		}
	}
	if d.memory == 0 || d.time == 0 || d.threads == 0 {
		return nil, errors.New("missing argon2 parameters")
	}

	var err error
	if d.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("decoding salt: %w", err)
	}
	if d.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, fmt.Errorf("decoding hash: %w", err)
	}
	if len(d.hash) == 0 {
		return nil, errors.New("empty hash")
	}
	return d, nil
}
