package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidSigningKey = errors.New("invalid Ed25519 signing key")
	ErrInvalidToken      = errors.New("invalid session token")
	ErrTokenExpired      = errors.New("session token expired")
)

// ParseSigningKey decodes a base64-encoded Ed25519 seed into a private key.
func ParseSigningKey(seedB64 string) (ed25519.PrivateKey, error) {
	seed, err := base64.StdEncoding.DecodeString(seedB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 encoding", ErrInvalidSigningKey)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidSigningKey, ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// tokenPayload creates the canonical data to sign.
// Format: userID|expiresAtMs
func tokenPayload(userID string, expiresAt int64) []byte {
	return []byte(fmt.Sprintf("%s|%d", userID, expiresAt))
}

// SignToken mints a bearer session token for userID valid for ttl.
// Format: base64url(userID|expiresAtMs).base64url(signature)
func SignToken(key ed25519.PrivateKey, userID string, ttl time.Duration) string {
	expiresAt := time.Now().Add(ttl).UnixMilli()
	payload := tokenPayload(userID, expiresAt)
	sig := ed25519.Sign(key, payload)
	return base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(sig)
}

// VerifyToken checks a session token and returns the user id it was minted
// for. Expired or tampered tokens fail.
func VerifyToken(pub ed25519.PublicKey, token string) (string, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return "", ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64 encoding", ErrInvalidToken)
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64 encoding", ErrInvalidToken)
	}

	if !ed25519.Verify(pub, payload, sig) {
		return "", ErrInvalidToken
	}

	fields := strings.SplitN(string(payload), "|", 2)
	if len(fields) != 2 {
		return "", ErrInvalidToken
	}
	userID := fields[0]
	expiresAt, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}

	if time.Now().UnixMilli() > expiresAt {
		return "", ErrTokenExpired
	}
	return userID, nil
}
