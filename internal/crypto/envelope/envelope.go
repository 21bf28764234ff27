// Package envelope implements the two-tier DEK/KEK scheme: per-revision
// data-encryption keys wrapped under a tenant KEK, and chunked streaming
// AEAD over content so memory stays bounded regardless of payload size.
package envelope

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	"github.com/hashicorp/go-kms-wrapping/v2/aead"
)

// KeySize is the DEK/KEK length in bytes (AES-256).
const KeySize = 32

// GenerateDEK returns a fresh random content key. The raw key lives only in
// memory for the duration of one encrypt/decrypt operation; callers wipe it
// when done.
func GenerateDEK() ([]byte, error) {
	dek := make([]byte, KeySize)
	if _, err := rand.Read(dek); err != nil {
		return nil, fmt.Errorf("generate dek: %w", err)
	}
	return dek, nil
}

// GenerateNonceBase returns the random per-revision nonce base that chunk
// nonces are derived from.
func GenerateNonceBase() ([]byte, error) {
	base := make([]byte, NonceSize)
	if _, err := rand.Read(base); err != nil {
		return nil, fmt.Errorf("generate nonce base: %w", err)
	}
	return base, nil
}

func newWrapper(ctx context.Context, key []byte) (wrapping.Wrapper, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("wrapping key must be %d bytes, got %d", KeySize, len(key))
	}
	w := aead.NewWrapper()
	// The AEAD wrapper expects a base64-encoded key.
	_, err := w.SetConfig(ctx, wrapping.WithConfigMap(map[string]string{
		"key": base64.StdEncoding.EncodeToString(key),
	}))
	if err != nil {
		return nil, fmt.Errorf("configure aead wrapper: %w", err)
	}
	return w, nil
}

// Wrap AEAD-encrypts plaintext (a DEK, or a KEK under root custody) with
// key. The returned blob is a marshaled BlobInfo carrying the IV alongside
// the ciphertext.
func Wrap(ctx context.Context, key, plaintext []byte) ([]byte, error) {
	w, err := newWrapper(ctx, key)
	if err != nil {
		return nil, err
	}
	blob, err := w.Encrypt(ctx, plaintext)
	if err != nil {
		return nil, fmt.Errorf("wrap: %w", err)
	}
	out, err := json.Marshal(blob)
	if err != nil {
		return nil, fmt.Errorf("marshal wrapped blob: %w", err)
	}
	return out, nil
}

// Unwrap is the inverse of Wrap. It fails when the key does not match the
// one that produced the blob, or when the blob was tampered with; callers
// translate that into the domain unwrap error with tenant context.
func Unwrap(ctx context.Context, key, wrapped []byte) ([]byte, error) {
	w, err := newWrapper(ctx, key)
	if err != nil {
		return nil, err
	}
	var blob wrapping.BlobInfo
	if err := json.Unmarshal(wrapped, &blob); err != nil {
		return nil, fmt.Errorf("unmarshal wrapped blob: %w", err)
	}
	plaintext, err := w.Decrypt(ctx, &blob)
	if err != nil {
		return nil, fmt.Errorf("unwrap: %w", err)
	}
	return plaintext, nil
}

// Wipe zeroes key material in place.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
