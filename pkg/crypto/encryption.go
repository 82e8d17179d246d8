// Package crypto seals credential blobs at rest with AES-256-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length.
	NonceSize = 12

	sealedPrefix = "ENC[v"
)

var (
	ErrInvalidKey        = errors.New("invalid encryption key: must be 32 bytes")
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

// Encryptor seals and opens payloads with one key version.
type Encryptor struct {
	aead    cipher.AEAD
	version int
}

// NewEncryptor builds an Encryptor. key must be KeySize bytes.
func NewEncryptor(key []byte, version int) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Encryptor{aead: aead, version: version}, nil
}

// Seal returns ENC[vN]:base64(nonce || ciphertext || tag).
func (e *Encryptor) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+e.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, plaintext, nil)
	return sealedPrefix + strconv.Itoa(e.version) + "]:" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. The version prefix is not checked against e.version;
// KeyManager routes by version before calling Open.
func (e *Encryptor) Open(sealed string) ([]byte, error) {
	_, payload, ok := splitSealed(sealed)
	if !ok {
		return nil, ErrInvalidCiphertext
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	if len(data) < NonceSize+e.aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}
	plaintext, err := e.aead.Open(nil, data[:NonceSize], data[NonceSize:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// Version returns the key version stamped on sealed output.
func (e *Encryptor) Version() int {
	return e.version
}

// ParseVersion extracts N from an ENC[vN]: prefix, or 0 when absent.
func ParseVersion(sealed string) int {
	v, _, ok := splitSealed(sealed)
	if !ok {
		return 0
	}
	return v
}

// IsSealed reports whether s carries a version prefix.
func IsSealed(s string) bool {
	return ParseVersion(s) > 0
}

func splitSealed(s string) (version int, payload string, ok bool) {
	if !strings.HasPrefix(s, sealedPrefix) {
		return 0, "", false
	}
	end := strings.Index(s, "]:")
	if end < 0 {
		return 0, "", false
	}
	v, err := strconv.Atoi(s[len(sealedPrefix):end])
	if err != nil || v <= 0 {
		return 0, "", false
	}
	return v, s[end+2:], true
}
