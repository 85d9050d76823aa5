package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/collectionlab/oauthcore/pkg/lockfile"
	"github.com/collectionlab/oauthcore/pkg/oauth"
)

const keyringService = "oauthcore"

// KeyringProvider persists token bundles in the OS credential manager
// (macOS Keychain, Windows Credential Manager, the Secret Service / kwallet
// on Linux) via github.com/zalando/go-keyring. Each bundle is stored as a
// JSON string under an account name derived from its StoreKey.
type KeyringProvider struct{}

// NewKeyringProvider returns a Provider backed by the OS keyring.
func NewKeyringProvider() *KeyringProvider {
	return &KeyringProvider{}
}

// Get implements Provider.
func (*KeyringProvider) Get(key oauth.StoreKey) (*oauth.TokenBundle, error) {
	var result *oauth.TokenBundle
	err := lockfile.WithKeyLock(keyringAccount(key), func() error {
		raw, err := keyring.Get(keyringService, keyringAccount(key))
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read from OS keyring: %w", err)
		}
		var bundle oauth.TokenBundle
		if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
			return fmt.Errorf("parse keyring entry: %w", err)
		}
		result = &bundle
		return nil
	})
	return result, err
}

// Put implements Provider.
func (*KeyringProvider) Put(key oauth.StoreKey, bundle *oauth.TokenBundle) error {
	if !shouldPersist(bundle) {
		return nil
	}
	stamped := *bundle
	stamped.CreatedAt = nowMillis()

	return lockfile.WithKeyLock(keyringAccount(key), func() error {
		data, err := json.Marshal(stamped)
		if err != nil {
			return fmt.Errorf("marshal token bundle: %w", err)
		}
		if err := keyring.Set(keyringService, keyringAccount(key), string(data)); err != nil {
			return fmt.Errorf("write to OS keyring: %w", err)
		}
		return nil
	})
}

// Clear implements Provider.
func (*KeyringProvider) Clear(key oauth.StoreKey) error {
	return lockfile.WithKeyLock(keyringAccount(key), func() error {
		err := keyring.Delete(keyringService, keyringAccount(key))
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("delete from OS keyring: %w", err)
		}
		return nil
	})
}

func keyringAccount(key oauth.StoreKey) string {
	return key.String()
}
