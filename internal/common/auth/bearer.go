package auth

import (
	"crypto/subtle"
	"strings"
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// SecretMatches compares a presented secret with the configured one in
// constant time.
func SecretMatches(presented, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}

// BearerMatches reports whether the Authorization header carries the
// expected secret. An empty expected secret disables the check.
func BearerMatches(header, expected string) bool {
	if expected == "" {
		return true
	}
	token, ok := BearerToken(header)
	return ok && SecretMatches(token, expected)
}
