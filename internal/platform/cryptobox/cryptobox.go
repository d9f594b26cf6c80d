// Package cryptobox seals chunk text and metadata at rest with
// ChaCha20-Poly1305. Key material lives outside the database: each key
// registry row carries only a version number, and the 256-bit secret for
// version N is read from CHUNK_KEY_V<N> (base64, 32 bytes decoded).
package cryptobox

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

type Keyring struct {
	keys map[int][]byte
}

// LoadKeyring reads every CHUNK_KEY_V<version> variable from the
// environment. At least one key must be present.
func LoadKeyring() (*Keyring, error) {
	const prefix = "CHUNK_KEY_V"
	keys := map[int][]byte{}
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(strings.TrimPrefix(name, prefix), "%d", &version); err != nil || version <= 0 {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		if len(raw) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("%s: want %d key bytes, got %d", name, chacha20poly1305.KeySize, len(raw))
		}
		keys[version] = raw
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no %s<version> keys in environment", prefix)
	}
	return &Keyring{keys: keys}, nil
}

// NewKeyring builds a keyring from explicit material. Test seam.
func NewKeyring(keys map[int][]byte) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("empty keyring")
	}
	for v, k := range keys {
		if len(k) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("key v%d: want %d bytes, got %d", v, chacha20poly1305.KeySize, len(k))
		}
	}
	return &Keyring{keys: keys}, nil
}

func (k *Keyring) HasVersion(version int) bool {
	_, ok := k.keys[version]
	return ok
}

// Seal encrypts plaintext under the given key version. Output is
// nonce || ciphertext; the nonce is random per call.
func (k *Keyring) Seal(version int, plaintext []byte) ([]byte, error) {
	key, ok := k.keys[version]
	if !ok {
		return nil, fmt.Errorf("no key material for version %d", version)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (k *Keyring) Open(version int, sealed []byte) ([]byte, error) {
	key, ok := k.keys[version]
	if !ok {
		return nil, fmt.Errorf("no key material for version %d", version)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("sealed payload too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}
