// Package password hashes account passwords with argon2id. The salt is kept
// apart from the hash so it can be stored in its own column.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	hashTime    uint32 = 3
	hashMemory  uint32 = 64 * 1024
	hashThreads uint8  = 2
	hashKeyLen  uint32 = 32
	saltLen            = 16
)

// Argon2Hasher implements ports.PasswordHasher.
type Argon2Hasher struct {
	time    uint32
	memory  uint32
	threads uint8
}

// NewArgon2Hasher returns a hasher with production parameters.
func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{time: hashTime, memory: hashMemory, threads: hashThreads}
}

// GenerateSalt returns a random base64 salt.
func (h *Argon2Hasher) GenerateSalt() (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}

// Hash derives the base64 argon2id key of password with salt.
func (h *Argon2Hasher) Hash(password, salt string) (string, error) {
	rawSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	sum := argon2.IDKey([]byte(password), rawSalt, h.time, h.memory, h.threads, hashKeyLen)
	return base64.StdEncoding.EncodeToString(sum), nil
}

// Verify compares in constant time.
func (h *Argon2Hasher) Verify(password, salt, hash string) bool {
	got, err := h.Hash(password, salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(hash)) == 1
}
