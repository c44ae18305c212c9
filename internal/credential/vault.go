package credential

import (
	"context"
	"fmt"
)

// ConfigStore is the key/value slice of the store the vault writes through.
type ConfigStore interface {
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, error)
}

// Vault stores configuration values, encrypting the ones IsSecretKey
// recognises.
type Vault struct {
	store ConfigStore
	mgr   *Manager
}

func NewVault(store ConfigStore, mgr *Manager) *Vault {
	return &Vault{store: store, mgr: mgr}
}

// Set writes value under key, sealed when key names a secret.
func (v *Vault) Set(ctx context.Context, key, value string) error {
	if IsSecretKey(key) {
		enc, err := v.mgr.Encrypt(value)
		if err != nil {
			return fmt.Errorf("failed to encrypt %s: %w", key, err)
		}
		value = enc
	}
	return v.store.SetConfig(ctx, key, value)
}

// Get returns the plaintext value for key, or "" when unset.
func (v *Vault) Get(ctx context.Context, key string) (string, error) {
	stored, err := v.store.GetConfig(ctx, key)
	if err != nil {
		return "", err
	}
	plain, err := v.mgr.Decrypt(stored)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt %s: %w", key, err)
	}
	return plain, nil
}
