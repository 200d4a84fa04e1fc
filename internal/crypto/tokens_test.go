package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

func generateTestKey(t *testing.T) (ed25519.PrivateKey, ed25519.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return priv, pub
}

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, pub := generateTestKey(t)

	token := SignToken(priv, "user-123", time.Hour)
	userID, err := VerifyToken(pub, token)
	if err != nil {
		t.Fatal(err)
	}
	if userID != "user-123" {
		t.Fatalf("expected 'user-123', got %q", userID)
	}
}

func TestExpiredToken(t *testing.T) {
	priv, pub := generateTestKey(t)

	token := SignToken(priv, "user-123", -time.Minute)
	_, err := VerifyToken(pub, token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTamperedToken(t *testing.T) {
	priv, pub := generateTestKey(t)

	token := SignToken(priv, "user-123", time.Hour)
	parts := strings.SplitN(token, ".", 2)
	forged := base64.RawURLEncoding.EncodeToString(tokenPayload("user-456", time.Now().Add(time.Hour).UnixMilli()))
	_, err := VerifyToken(pub, forged+"."+parts[1])
	if err == nil {
		t.Fatal("expected error for tampered payload")
	}
}

func TestWrongKeyFails(t *testing.T) {
	priv, _ := generateTestKey(t)
	_, otherPub := generateTestKey(t)

	token := SignToken(priv, "user-123", time.Hour)
	if _, err := VerifyToken(otherPub, token); err == nil {
		t.Fatal("expected error with wrong public key")
	}
}

func TestMalformedTokens(t *testing.T) {
	_, pub := generateTestKey(t)

	for _, token := range []string{"", "no-dot", "a.b", "!!!.???"} {
		if _, err := VerifyToken(pub, token); err == nil {
			t.Fatalf("expected error for token %q", token)
		}
	}
}

func TestParseSigningKey(t *testing.T) {
	priv, pub := generateTestKey(t)
	seedB64 := base64.StdEncoding.EncodeToString(priv.Seed())

	parsed, err := ParseSigningKey(seedB64)
	if err != nil {
		t.Fatal(err)
	}

	token := SignToken(parsed, "user-789", time.Hour)
	if _, err := VerifyToken(pub, token); err != nil {
		t.Fatalf("token from parsed key did not verify: %v", err)
	}

	if _, err := ParseSigningKey("not base64!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	short := base64.StdEncoding.EncodeToString(make([]byte, 16))
	if _, err := ParseSigningKey(short); err == nil {
		t.Fatal("expected error for wrong-length seed")
	}
}
