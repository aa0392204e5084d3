// Package crypto provides the vault sealing primitives: an argon2id KDF over
// the owner passphrase and XChaCha20-Poly1305 authenticated encryption.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"legacycore/pkg/domain"
)

const (
	// KeyBytes is the derived key length.
	KeyBytes = chacha20poly1305.KeySize
	// SaltBytes is the KDF salt length.
	SaltBytes = 16
	// NonceBytes is the XChaCha20 nonce length.
	NonceBytes = chacha20poly1305.NonceSizeX

	// envelopeVersion is the current sealed envelope format.
	envelopeVersion = 1

	// argon2id parameters: 64 MiB, one pass, four lanes.
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// ErrDecrypt is returned when the passphrase is wrong or the ciphertext has
// been tampered with.
var ErrDecrypt = errors.New("wrong passphrase or corrupted envelope")

// NewSalt returns a fresh random KDF salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// NewKey returns a fresh random master key.
func NewKey() ([]byte, error) {
	key := make([]byte, KeyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// DeriveKey stretches a passphrase into key material with argon2id.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, KeyBytes)
}

// Fingerprint returns the hex SHA-256 digest of key material. Stored in place
// of the key so deposits and recoveries can be verified without retaining it.
func Fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:])
}

// Seal encrypts plaintext under a key derived from the passphrase and a fresh
// salt, returning a self-contained envelope.
func Seal(passphrase string, plaintext []byte) (domain.SealedEnvelope, error) {
	salt, err := NewSalt()
	if err != nil {
		return domain.SealedEnvelope{}, err
	}
	key := DeriveKey(passphrase, salt)
	defer Zero(key)
	return SealWithKey(key, salt, plaintext)
}

// SealWithKey encrypts plaintext under an already-derived key. The salt is
// recorded in the envelope so Open can re-derive the key from a passphrase.
func SealWithKey(key, salt, plaintext []byte) (domain.SealedEnvelope, error) {
	if len(key) != KeyBytes {
		return domain.SealedEnvelope{}, fmt.Errorf("bad key size %d", len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return domain.SealedEnvelope{}, err
	}
	nonce := make([]byte, NonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return domain.SealedEnvelope{}, fmt.Errorf("generate nonce: %w", err)
	}
	cipher := aead.Seal(nil, nonce, plaintext, salt)
	return domain.SealedEnvelope{
		Version: envelopeVersion,
		Salt:    append([]byte(nil), salt...),
		Nonce:   nonce,
		Cipher:  cipher,
	}, nil
}

// Open decrypts an envelope with the owner passphrase.
func Open(passphrase string, env domain.SealedEnvelope) ([]byte, error) {
	key := DeriveKey(passphrase, env.Salt)
	defer Zero(key)
	return OpenWithKey(key, env)
}

// OpenWithKey decrypts an envelope with a raw key.
func OpenWithKey(key []byte, env domain.SealedEnvelope) ([]byte, error) {
	if env.Version > envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", env.Version)
	}
	if len(key) != KeyBytes {
		return nil, fmt.Errorf("bad key size %d", len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Cipher, env.Salt)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// Zero wipes key material in place.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
