package cryptobox

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func testKey(b byte) []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = b
	}
	return k
}

func TestNewKeyringValidatesMaterial(t *testing.T) {
	if _, err := NewKeyring(nil); err == nil {
		t.Fatalf("empty keyring accepted")
	}
	if _, err := NewKeyring(map[int][]byte{1: []byte("short")}); err == nil {
		t.Fatalf("undersized key accepted")
	}
	if _, err := NewKeyring(map[int][]byte{1: testKey(0xAA)}); err != nil {
		t.Fatalf("valid keyring rejected: %v", err)
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	kr, err := NewKeyring(map[int][]byte{1: testKey(0x01), 2: testKey(0x02)})
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}

	plaintext := []byte("the quick brown fox, sealed at rest")
	sealed, err := kr.Seal(2, plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatalf("sealed output leaks plaintext")
	}

	opened, err := kr.Open(2, sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch: %q", opened)
	}

	// Nonces are per call: sealing twice never repeats bytes.
	again, err := kr.Seal(2, plaintext)
	if err != nil {
		t.Fatalf("seal again: %v", err)
	}
	if bytes.Equal(sealed, again) {
		t.Fatalf("two seals produced identical output")
	}
}

func TestOpenRejectsWrongVersionAndTampering(t *testing.T) {
	kr, err := NewKeyring(map[int][]byte{1: testKey(0x01), 2: testKey(0x02)})
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	sealed, err := kr.Seal(1, []byte("payload"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if _, err := kr.Open(2, sealed); err == nil {
		t.Fatalf("opened with the wrong key version")
	}
	if _, err := kr.Open(3, sealed); err == nil {
		t.Fatalf("opened with a version the ring does not hold")
	}

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0x01
	if _, err := kr.Open(1, tampered); err == nil {
		t.Fatalf("opened a tampered payload")
	}

	if _, err := kr.Open(1, []byte("tiny")); err == nil {
		t.Fatalf("opened a payload shorter than a nonce")
	}
}

func TestLoadKeyringFromEnvironment(t *testing.T) {
	t.Setenv("CHUNK_KEY_V1", base64.StdEncoding.EncodeToString(testKey(0x0F)))
	kr, err := LoadKeyring()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !kr.HasVersion(1) {
		t.Fatalf("loaded keyring misses version 1")
	}

	t.Setenv("CHUNK_KEY_V2", "not-base64!")
	if _, err := LoadKeyring(); err == nil {
		t.Fatalf("malformed key material accepted")
	}
}
