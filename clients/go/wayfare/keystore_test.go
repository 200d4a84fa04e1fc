package wayfare

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestKeystoreRoundTrip(t *testing.T) {
	ks := NewKeystore(t.TempDir())

	in := map[string]string{
		KeyAuthToken: "token-123",
		KeyUserID:    "user-1",
		KeyUserName:  "Alice",
	}
	if err := ks.Store(in); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	out, err := ks.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for key, want := range in {
		if out[key] != want {
			t.Errorf("%s: got %q, want %q", key, out[key], want)
		}
	}
}

func TestKeystoreEmptyWhenMissing(t *testing.T) {
	ks := NewKeystore(t.TempDir())

	out, err := ks.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty keystore, got %v", out)
	}
}

func TestKeystoreSealedAtRest(t *testing.T) {
	dir := t.TempDir()
	ks := NewKeystore(dir)

	token := "super-secret-token"
	if err := ks.Store(map[string]string{KeyAuthToken: token}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, valuesFile))
	if err != nil {
		t.Fatalf("reading sealed file failed: %v", err)
	}
	if bytes.Contains(raw, []byte(token)) {
		t.Fatal("token stored in the clear")
	}
}

func TestKeystoreClear(t *testing.T) {
	ks := NewKeystore(t.TempDir())

	if err := ks.Store(map[string]string{KeyUserID: "user-1"}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := ks.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if err := ks.Clear(); err != nil {
		t.Fatalf("second Clear should be a no-op: %v", err)
	}

	out, err := ks.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty keystore after clear, got %v", out)
	}
}

func TestKeystoreWrongSecretFails(t *testing.T) {
	dir := t.TempDir()
	ks := NewKeystore(dir)

	if err := ks.Store(map[string]string{KeyAuthToken: "token"}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	// Replace the machine secret; the sealed values must become
	// unreadable rather than silently wrong.
	fresh := make([]byte, 32)
	if err := os.WriteFile(filepath.Join(dir, secretFile), fresh, 0600); err != nil {
		t.Fatalf("overwriting secret failed: %v", err)
	}

	if _, err := ks.Load(); err == nil {
		t.Fatal("expected Load to fail with a different secret")
	}
}
