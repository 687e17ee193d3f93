// Package crypto decrypts the per-tenant connection strings stored by the
// control plane.
//
// Decryption is exclusively AES-256-GCM. This is the narrowest place in the
// admission core where a mistake compromises tenant isolation, so every
// failure path — wrong key, truncated input, tampered tag — collapses to
// one opaque error. The underlying reason is never returned to a caller and
// is logged, if at all, only as a generic "decrypt failed" event with no
// stage or exception text attached.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	apperr "github.com/carplatform/admission/internal/errors"
)

const (
	keySize   = 32 // AES-256
	nonceSize = 12
	tagSize   = 16
)

// Decryptor decrypts control-plane connection strings with a single,
// process-wide key.
type Decryptor struct {
	key []byte
}

// NewDecryptor builds a Decryptor from a URL-safe base64 encoding of
// exactly 32 bytes. Any other format is rejected — this is meant to be
// called once at startup so a bad key fails fast, not on the first request.
func NewDecryptor(base64Key string) (*Decryptor, error) {
	key, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(base64Key)
	if err != nil {
		// Tolerate a padded encoding too; operators copy-paste keys from
		// different tools that disagree about padding.
		key, err = base64.URLEncoding.DecodeString(base64Key)
		if err != nil {
			return nil, fmt.Errorf("crypto: ENCRYPTION_KEY is not valid URL-safe base64: %w", err)
		}
	}

	if len(key) != keySize {
		return nil, fmt.Errorf("crypto: ENCRYPTION_KEY must decode to exactly %d bytes, got %d", keySize, len(key))
	}

	return &Decryptor{key: key}, nil
}

// Decrypt decrypts ciphertext laid out as 12-byte nonce || ciphertext ||
// 16-byte tag, all base64url-encoded. aad, if non-empty, must match the
// value supplied at encryption time or decryption fails. All failure
// reasons — bad base64, short input, wrong key, forged tag — surface as
// the same apperr.UnexpectedCryptoFailure.
func (d *Decryptor) Decrypt(encoded string, aad []byte) ([]byte, error) {
	raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(encoded)
	if err != nil {
		raw, err = base64.URLEncoding.DecodeString(encoded)
		if err != nil {
			return nil, apperr.UnexpectedCryptoFailure()
		}
	}

	if len(raw) < nonceSize+tagSize {
		return nil, apperr.UnexpectedCryptoFailure()
	}

	block, err := aes.NewCipher(d.key)
	if err != nil {
		return nil, apperr.UnexpectedCryptoFailure()
	}

	gcm, err := cipher.NewGCMWithTagSize(block, tagSize)
	if err != nil {
		return nil, apperr.UnexpectedCryptoFailure()
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, apperr.UnexpectedCryptoFailure()
	}

	return plaintext, nil
}

// Encrypt is provided for tests and for tooling that seeds the control
// plane; the admission core itself never encrypts, only decrypts. Returns
// base64url(nonce || ciphertext || tag).
func (d *Decryptor) Encrypt(plaintext, aad []byte) (string, error) {
	block, err := aes.NewCipher(d.key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCMWithTagSize(block, tagSize)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, nonce, plaintext, aad)
	out := append(nonce, sealed...)

	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(out), nil
}
