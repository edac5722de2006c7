package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/odaiidemos/k9-sub001/internal/core/port"
)

// Hash layout: argon2id$v=19$m=<KiB>,t=<iters>,p=<lanes>$<salt>$<digest>,
// salt and digest in unpadded standard base64.
const (
	argon2Variant = "argon2id"
	argon2Version = "v=19"
)

// Minimum acceptable work factors. Stored hashes encoding weaker factors are
// rejected on verify too, so a tampered row cannot cheapen the comparison.
const (
	argon2MinMemoryKiB  = 8 * 1024
	argon2MinSaltBytes  = 8
	argon2MinDigestSize = 16
)

var (
	errMalformedHash = errors.New("argon2: malformed encoded hash")
	errWeakParams    = errors.New("argon2: parameters below minimum")
)

// Argon2Config carries the Argon2id work factors. Memory is in KiB.
type Argon2Config struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (c Argon2Config) validate() error {
	switch {
	case c.Memory < argon2MinMemoryKiB:
		return fmt.Errorf("%w: memory must be at least %d KiB", errWeakParams, argon2MinMemoryKiB)
	case c.Iterations == 0:
		return fmt.Errorf("%w: iterations must be greater than zero", errWeakParams)
	case c.Parallelism == 0:
		return fmt.Errorf("%w: parallelism must be greater than zero", errWeakParams)
	case c.SaltLength < argon2MinSaltBytes:
		return fmt.Errorf("%w: salt length must be at least %d bytes", errWeakParams, argon2MinSaltBytes)
	case c.KeyLength < argon2MinDigestSize:
		return fmt.Errorf("%w: key length must be at least %d bytes", errWeakParams, argon2MinDigestSize)
	}
	return nil
}

func (c Argon2Config) derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, c.Iterations, c.Memory, c.Parallelism, c.KeyLength)
}

func (c Argon2Config) encode(salt, digest []byte) string {
	return fmt.Sprintf("%s$%s$m=%d,t=%d,p=%d$%s$%s",
		argon2Variant, argon2Version,
		c.Memory, c.Iterations, c.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)
}

// Argon2Hasher hashes passwords with the work factors fixed at construction.
// Verification reads the factors back out of each stored hash, so changing
// the configuration affects newly set passwords only.
type Argon2Hasher struct {
	cfg Argon2Config
}

// NewArgon2Hasher validates the work factors and returns a ready hasher.
func NewArgon2Hasher(cfg Argon2Config) (*Argon2Hasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2Hasher{cfg: cfg}, nil
}

// Hash derives an Argon2id hash of the password under a fresh random salt.
func (h *Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.cfg.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("argon2: generate salt: %w", err)
	}
	return h.cfg.encode(salt, h.cfg.derive(password, salt)), nil
}

// Verify compares the password against a stored hash in constant time. A
// malformed or weakly-parameterized stored hash is a non-match, never an
// error: login must not behave differently for corrupt rows than for wrong
// passwords.
func (h *Argon2Hasher) Verify(password, encoded string) (bool, error) {
	if password == "" || encoded == "" {
		return false, nil
	}

	cfg, salt, want, err := parseArgon2Hash(encoded)
	if err != nil {
		return false, nil
	}

	got := cfg.derive(password, salt)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

var _ port.PasswordHasher = (*Argon2Hasher)(nil)

// parseArgon2Hash splits a stored hash back into work factors, salt, and
// digest, holding decoded factors to the same minimums as NewArgon2Hasher.
func parseArgon2Hash(encoded string) (Argon2Config, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 {
		return Argon2Config{}, nil, nil, errMalformedHash
	}
	if parts[0] != argon2Variant || parts[1] != argon2Version {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: unsupported variant or version", errMalformedHash)
	}

	var cfg Argon2Config
	if strings.Count(parts[2], ",") != 2 {
		return Argon2Config{}, nil, nil, errMalformedHash
	}
	if _, err := fmt.Sscanf(parts[2], "m=%d,t=%d,p=%d", &cfg.Memory, &cfg.Iterations, &cfg.Parallelism); err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: %v", errMalformedHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: bad salt encoding", errMalformedHash)
	}
	digest, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: bad digest encoding", errMalformedHash)
	}

	cfg.SaltLength = uint32(len(salt))
	cfg.KeyLength = uint32(len(digest))
	if err := cfg.validate(); err != nil {
		return Argon2Config{}, nil, nil, err
	}

	return cfg, salt, digest, nil
}
