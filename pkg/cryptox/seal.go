package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// SaltSize is the length of the random salt used for key derivation.
const SaltSize = 16

// Argon2id parameters for deriving the sealing key from a master secret.
const (
	keyTime    = 1
	keyMemory  = 64 * 1024
	keyThreads = 4
	keyLength  = 32
)

// ErrCiphertextTooShort is returned when a sealed value cannot hold a nonce.
var ErrCiphertextTooShort = errors.New("cryptox: ciphertext too short")

// Sealer encrypts small values (credentials) with AES-256-GCM.
// Output format: [12-byte nonce][encrypted data][16-byte auth tag]
type Sealer struct {
	aead cipher.AEAD
}

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// NewSealer derives an AES-256 key from secret and salt using Argon2id.
func NewSealer(secret, salt []byte) (*Sealer, error) {
	if len(secret) == 0 {
		return nil, errors.New("cryptox: empty master secret")
	}
	if len(salt) < SaltSize {
		return nil, fmt.Errorf("cryptox: salt must be at least %d bytes", SaltSize)
	}

	key := argon2.IDKey(secret, salt, keyTime, keyMemory, keyThreads, keyLength)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Sealer{aead: gcm}, nil
}

// Seal encrypts and authenticates plaintext with a fresh random nonce.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, ErrCiphertextTooShort
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}

	return plaintext, nil
}
