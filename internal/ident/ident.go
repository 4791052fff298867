// Package ident generates the identifiers used across the engine:
// sortable session IDs, token IDs with an entropy floor, and opaque
// one-time action tokens.
package ident

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"

	"github.com/oklog/ulid/v2"
)

// minDistinctRatio is the minimum ratio of distinct characters to total
// length a token ID must reach. IDs below the floor are redrawn.
const minDistinctRatio = 0.7

const (
	jtiBytes        = 32
	jtiMaxDraws     = 32
	actionTokenSize = 32
)

// NewSessionID returns a ULID string. ULIDs sort by creation time, so
// "oldest session" reduces to a string sort over IDs.
func NewSessionID() string {
	return ulid.Make().String()
}

// NewJTI returns a random token identifier encoded as unpadded
// base64url. Draws below the distinct-character floor are redrawn at
// the same length; roughly two draws in three pass, so the bound is
// never reached in practice.
func NewJTI() (string, error) {
	var jti string
	for i := 0; i < jtiMaxDraws; i++ {
		var err error
		jti, err = randomToken(jtiBytes)
		if err != nil {
			return "", err
		}
		if distinctRatio(jti) >= minDistinctRatio {
			return jti, nil
		}
	}
	return jti, nil
}

// NewActionToken returns an opaque single-use token. Only the SHA-256
// digest of the token is ever stored server-side.
func NewActionToken() (string, error) {
	return randomToken(actionTokenSize)
}

// HashToken returns the hex SHA-256 digest of a token, the storage form
// for action tokens and refresh secrets.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func distinctRatio(s string) float64 {
	if s == "" {
		return 0
	}

	seen := make(map[rune]struct{}, len(s))
	for _, r := range s {
		seen[r] = struct{}{}
	}

	return float64(len(seen)) / float64(len(s))
}
