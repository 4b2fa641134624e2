package domain

import (
	"crypto/rand"
	"encoding/base64"
	"regexp"
)

const tokenBytes = 32

// tokenPattern matches the base64url form of a 32-byte token.
var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{43}$`)

// NewToken generates an unguessable verification token. The token is the
// sole public lookup key for a sealed document and is distinct from its
// primary id so internal ids cannot be enumerated.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ValidTokenFormat reports whether raw is shaped like a verification token.
// Format validation happens before any lookup so malformed input never
// reaches the database.
func ValidTokenFormat(raw string) bool {
	return tokenPattern.MatchString(raw)
}
