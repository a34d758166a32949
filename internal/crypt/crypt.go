// Package crypt is the encryption collaborator for pools created with an
// auth key: a pair of pure functions turning plaintext into authenticated
// ciphertext and back.
package crypt

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrAuthentication indicates the ciphertext could not be opened with the
// given key — either a wrong key or tampered/corrupt ciphertext.
var ErrAuthentication = errors.New("crypt: authentication failed")

// deriveKey stretches an arbitrary-length auth key into the fixed 32-byte
// key chacha20poly1305 requires. SHA-256 is a key-derivation boundary
// deliberately left on the standard library: this is mixing, not
// encrypting, and there's no dedicated KDF library (e.g.
// golang.org/x/crypto/hkdf) pulled in elsewhere for this kind of "stretch an
// opaque string into a fixed-size key" step.
func deriveKey(authKey []byte) [chacha20poly1305.KeySize]byte {
	return sha256.Sum256(authKey)
}

// Encrypt seals plaintext under authKey, returning nonce||ciphertext||tag.
func Encrypt(plaintext, authKey []byte) ([]byte, error) {
	key := deriveKey(authKey)

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypt: new aead: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypt: read nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)

	return sealed, nil
}

// Decrypt opens ciphertext produced by [Encrypt] using authKey.
//
// Returns [ErrAuthentication] if the key is wrong or the ciphertext was
// tampered with.
func Decrypt(ciphertext, authKey []byte) ([]byte, error) {
	key := deriveKey(authKey)

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypt: new aead: %w", err)
	}

	if len(ciphertext) < aead.NonceSize() {
		return nil, ErrAuthentication
	}

	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthentication
	}

	return plaintext, nil
}
