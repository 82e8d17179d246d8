package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"sync"
)

const maxKeyVersions = 10

var (
	ErrKeyNotFound  = errors.New("encryption key not found")
	ErrKeyNotLoaded = errors.New("key manager not initialized")
)

// KeyManager holds every configured key version and seals with the newest.
type KeyManager struct {
	mu         sync.RWMutex
	current    int
	encryptors map[int]*Encryptor
}

// NewKeyManager loads base64 keys through lookup, usually os.Getenv:
// MASTER_ENCRYPTION_KEY is version 1, MASTER_ENCRYPTION_KEY_V2 version 2, and so on.
// Version 1 is required.
func NewKeyManager(lookup func(string) string) (*KeyManager, error) {
	keys := make(map[int][]byte)
	for v := 1; v <= maxKeyVersions; v++ {
		name := "MASTER_ENCRYPTION_KEY"
		if v > 1 {
			name = fmt.Sprintf("%s_V%d", name, v)
		}
		raw := lookup(name)
		if raw == "" {
			if v == 1 {
				return nil, fmt.Errorf("load primary key: %w", ErrKeyNotFound)
			}
			continue
		}
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("decode key %s: %w", name, err)
		}
		keys[v] = key
	}
	return NewKeyManagerFromKeys(keys)
}

// NewKeyManagerFromKeys builds a manager from raw keys indexed by version.
func NewKeyManagerFromKeys(keys map[int][]byte) (*KeyManager, error) {
	if len(keys) == 0 {
		return nil, ErrKeyNotFound
	}
	km := &KeyManager{encryptors: make(map[int]*Encryptor, len(keys))}
	versions := make([]int, 0, len(keys))
	for v := range keys {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	for _, v := range versions {
		enc, err := NewEncryptor(keys[v], v)
		if err != nil {
			return nil, fmt.Errorf("create encryptor v%d: %w", v, err)
		}
		km.encryptors[v] = enc
		km.current = v
	}
	return km, nil
}

// Seal encrypts with the current key version.
func (km *KeyManager) Seal(plaintext []byte) (string, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()
	enc, ok := km.encryptors[km.current]
	if !ok {
		return "", ErrKeyNotLoaded
	}
	return enc.Seal(plaintext)
}

// Open decrypts with whichever version sealed the input.
func (km *KeyManager) Open(sealed string) ([]byte, error) {
	version := ParseVersion(sealed)
	if version == 0 {
		return nil, ErrInvalidCiphertext
	}
	km.mu.RLock()
	enc, ok := km.encryptors[version]
	km.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("key version %d not available", version)
	}
	return enc.Open(sealed)
}

// Reseal opens with the old version and seals with the current one.
func (km *KeyManager) Reseal(sealed string) (string, error) {
	plaintext, err := km.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("decrypt for re-encryption: %w", err)
	}
	return km.Seal(plaintext)
}

// CurrentVersion returns the version new data is sealed with.
func (km *KeyManager) CurrentVersion() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.current
}

// GenerateKey returns a random base64 AES-256 key.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate random key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
