// Package token mints cancellation tokens.
//
// A cancellation token is a bearer credential: whoever holds it can delete
// the signup it belongs to. Tokens are 32 bytes from crypto/rand encoded with
// unpadded base64url, so they can be embedded in a URL path without escaping.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
)

const byteLen = 32

// EncodedLen is the length of every token produced by New.
var EncodedLen = base64.RawURLEncoding.EncodedLen(byteLen)

var pattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func New() (string, error) {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// WellFormed reports whether s could have been produced by New. Used to reject
// garbage before it reaches the store; it does not normalise anything.
func WellFormed(s string) bool {
	return len(s) == EncodedLen && pattern.MatchString(s)
}

// CancelURL builds the self-service cancellation link.
func CancelURL(baseURL, tok string) string {
	for len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return baseURL + "/cancel/" + tok
}
