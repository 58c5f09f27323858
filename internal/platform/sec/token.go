// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// GenerateSecureToken returns a URL-safe random string built from byteLength
// bytes of CSPRNG output. Used for refresh tokens and one-time token secrets.
func GenerateSecureToken(byteLength int) (string, error) {
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("sec: failed to generate secure token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the hex-encoded SHA-256 digest of a token. Refresh tokens
// are stored and looked up by this digest, never in plaintext.
func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}

// SignValue produces a keyed MAC over a cookie value so the client cannot
// forge it. Used by the federated-reference cookie.
func SignValue(value string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(value))
	return value + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignedValue checks a value produced by [SignValue] and returns the
// embedded payload. The boolean is false on any tampering.
func VerifySignedValue(signed string, secret []byte) (string, bool) {
	idx := -1
	for i := len(signed) - 1; i >= 0; i-- {
		if signed[i] == '.' {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return "", false
	}

	value, tag := signed[:idx], signed[idx+1:]
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(value))
	expected := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(tag), []byte(expected)) {
		return "", false
	}
	return value, true
}
