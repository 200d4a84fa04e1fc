package wayfare

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Keystore field names for the cached identity.
const (
	KeyAuthToken = "AUTH_TOKEN"
	KeyUserID    = "USER_ID"
	KeyUserName  = "USER_NAME"
	KeyUserEmail = "USER_EMAIL"
	KeyUserImg   = "USER_IMG"
)

const (
	secretFile = "keystore.secret"
	valuesFile = "keystore.sealed"
)

// Keystore holds the signed-in identity sealed at rest. Values are
// encrypted with ChaCha20-Poly1305 under a key derived from a random
// per-machine secret, so the session token never sits on disk in the
// clear.
type Keystore struct {
	dir string
}

// NewKeystore creates a keystore rooted at dir.
func NewKeystore(dir string) *Keystore {
	return &Keystore{dir: dir}
}

// secret loads the per-machine secret, creating it on first use.
func (k *Keystore) secret() ([]byte, error) {
	path := filepath.Join(k.dir, secretFile)

	secret, err := os.ReadFile(path)
	if err == nil && len(secret) == 32 {
		return secret, nil
	}

	secret = make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(k.dir, 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, secret, 0600); err != nil {
		return nil, err
	}
	return secret, nil
}

// sealKey derives the cipher key from the machine secret.
func (k *Keystore) sealKey() ([]byte, error) {
	secret, err := k.secret()
	if err != nil {
		return nil, err
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, secret, nil, []byte("wayfare-keystore-v1"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Store seals the given values to disk, replacing what was there.
func (k *Keystore) Store(values map[string]string) error {
	plaintext, err := json.Marshal(values)
	if err != nil {
		return err
	}

	key, err := k.sealKey()
	if err != nil {
		return err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return os.WriteFile(filepath.Join(k.dir, valuesFile), sealed, 0600)
}

// Load opens the sealed values. A missing keystore reads as empty.
func (k *Keystore) Load() (map[string]string, error) {
	sealed, err := os.ReadFile(filepath.Join(k.dir, valuesFile))
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	key, err := k.sealKey()
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("keystore corrupted")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("keystore unreadable, sign in again")
	}

	var values map[string]string
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// Clear removes the sealed values, keeping the machine secret.
func (k *Keystore) Clear() error {
	err := os.Remove(filepath.Join(k.dir, valuesFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
