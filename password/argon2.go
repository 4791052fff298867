// Package password provides the Argon2id hasher backing the engine's
// credential-store reference implementation. Hashes use the standard
// PHC string format, so they interoperate with other Argon2 tooling.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Stable errors for callers.
var (
	ErrWeakPassword  = errors.New("password too short")
	ErrMalformedHash = errors.New("malformed password hash")
	ErrHasherConfig  = errors.New("invalid hasher config")
)

const (
	algorithmID  = "argon2id"
	minPassBytes = 10

	minMemoryKB   = 8 * 1024
	minSaltLength = 16
	minKeyLength  = 16
)

// Config holds the Argon2id cost parameters.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns interactive-login cost parameters.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        2,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2 hashes and verifies passwords with a fixed config. Configure
// once at startup and treat as immutable.
type Argon2 struct {
	config Config
}

// NewArgon2 validates the config and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, fmt.Errorf("%w: memory below %d KiB", ErrHasherConfig, minMemoryKB)
	case cfg.Time == 0:
		return nil, fmt.Errorf("%w: time cost must be positive", ErrHasherConfig)
	case cfg.Parallelism == 0:
		return nil, fmt.Errorf("%w: parallelism must be positive", ErrHasherConfig)
	case cfg.SaltLength < minSaltLength:
		return nil, fmt.Errorf("%w: salt below %d bytes", ErrHasherConfig, minSaltLength)
	case cfg.KeyLength < minKeyLength:
		return nil, fmt.Errorf("%w: key below %d bytes", ErrHasherConfig, minKeyLength)
	}
	return &Argon2{config: cfg}, nil
}

// Hash derives a PHC-formatted hash from the password. The password is
// hashed byte-for-byte as provided; no Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if len(password) < minPassBytes {
		return "", fmt.Errorf("%w: need at least %d bytes", ErrWeakPassword, minPassBytes)
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		a.config.Time,
		a.config.Memory,
		a.config.Parallelism,
		a.config.KeyLength,
	)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	), nil
}

// Verify compares a password against an encoded hash in constant time.
// Hashes carrying cost parameters far above the configured ones are
// refused, so a stored hash cannot demand pathological work at verify
// time.
func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	h, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}

	if h.memory > a.config.Memory*2 ||
		h.timeCost > a.config.Time*2 ||
		uint32(h.parallelism) > uint32(a.config.Parallelism)*2 {
		return false, fmt.Errorf("%w: cost parameters exceed configured bounds", ErrMalformedHash)
	}

	got := argon2.IDKey(
		[]byte(password),
		h.salt,
		h.timeCost,
		h.memory,
		h.parallelism,
		uint32(len(h.key)),
	)

	return subtle.ConstantTimeCompare(got, h.key) == 1, nil
}

type phcHash struct {
	memory      uint32
	timeCost    uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func decodePHC(encoded string) (phcHash, error) {
	// $argon2id$v=19$m=65536,t=2,p=2$<salt>$<key>
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return phcHash{}, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return phcHash{}, fmt.Errorf("%w: unsupported version", ErrMalformedHash)
	}

	var m, t, p uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return phcHash{}, fmt.Errorf("%w: bad cost parameters", ErrMalformedHash)
	}
	if m < minMemoryKB || t == 0 || p == 0 || p > 255 {
		return phcHash{}, fmt.Errorf("%w: bad cost parameters", ErrMalformedHash)
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) < minSaltLength {
		return phcHash{}, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) < minKeyLength {
		return phcHash{}, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}

	return phcHash{
		memory:      m,
		timeCost:    t,
		parallelism: uint8(p),
		salt:        salt,
		key:         key,
	}, nil
}
