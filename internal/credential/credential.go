// Package credential encrypts provider API keys before they are written to
// the configuration table. Keys are sealed with AES-256-GCM under a key taken
// from SYNO_SECRET_KEY or, when unset, derived from the host and user.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// EncryptedPrefix marks sealed values in storage.
const EncryptedPrefix = "enc:v1:"

const machineSalt = "syno-credential-manager-v1"

var (
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrInvalidFormat    = errors.New("invalid encrypted format")
)

// Manager seals and opens secrets.
type Manager struct {
	aead cipher.AEAD
}

// NewManager uses SYNO_SECRET_KEY when set, otherwise a machine-bound key.
func NewManager() (*Manager, error) {
	if secret := os.Getenv("SYNO_SECRET_KEY"); secret != "" {
		return NewManagerWithKey(secret)
	}
	return newManager(machineKey())
}

// NewManagerWithKey derives the cipher key from a passphrase, so the same
// database can be read from several hosts.
func NewManagerWithKey(passphrase string) (*Manager, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}
	sum := sha256.Sum256([]byte(machineSalt + ":" + passphrase))
	return newManager(sum[:])
}

func newManager(key []byte) (*Manager, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Manager{aead: aead}, nil
}

// Encrypt seals plaintext. The empty string stays empty.
func (m *Manager) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, m.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := m.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a sealed value. Values without the prefix are returned
// unchanged so keys written before encryption still load.
func (m *Manager) Decrypt(stored string) (string, error) {
	if !IsEncrypted(stored) {
		return stored, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, EncryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrInvalidFormat, err)
	}

	n := m.aead.NonceSize()
	if len(raw) < n {
		return "", ErrInvalidFormat
	}

	plaintext, err := m.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// IsEncrypted checks if a value is already encrypted.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, EncryptedPrefix)
}

// IsSecretKey reports whether a configuration key holds a credential.
func IsSecretKey(key string) bool {
	k := strings.ToLower(key)
	return strings.HasSuffix(k, "api_key") || strings.HasSuffix(k, "_secret") || strings.HasSuffix(k, "password")
}

// MaskSecret keeps the first and last four characters of long secrets.
func MaskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

func machineKey() []byte {
	hostname, _ := os.Hostname()
	home, _ := os.UserHomeDir()

	parts := []string{hostname, home, runtime.GOOS, runtime.GOARCH, machineSalt}
	if uid := os.Getuid(); uid != -1 {
		parts = append(parts, fmt.Sprintf("uid:%d", uid))
	}
	if user := os.Getenv("USER"); user != "" {
		parts = append(parts, user)
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return sum[:]
}
