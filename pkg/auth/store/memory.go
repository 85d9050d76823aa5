package store

import (
	"sync"

	"github.com/collectionlab/oauthcore/pkg/oauth"
)

// MemoryProvider is an in-memory Provider, used by tests (e.g. unit tests of
// higher-level components) and selectable with BackendMemory. NewProvider's
// default backend is BackendFile, not this one.
type MemoryProvider struct {
	mu      sync.RWMutex
	bundles map[string]oauth.TokenBundle
}

// NewMemoryProvider returns an empty in-memory store.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{bundles: make(map[string]oauth.TokenBundle)}
}

// Get implements Provider.
func (m *MemoryProvider) Get(key oauth.StoreKey) (*oauth.TokenBundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bundles[key.String()]
	if !ok {
		return nil, nil
	}
	clone := b
	return &clone, nil
}

// Put implements Provider.
func (m *MemoryProvider) Put(key oauth.StoreKey, bundle *oauth.TokenBundle) error {
	if !shouldPersist(bundle) {
		return nil
	}
	stamped := *bundle
	stamped.CreatedAt = nowMillis()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundles[key.String()] = stamped
	return nil
}

// Clear implements Provider.
func (m *MemoryProvider) Clear(key oauth.StoreKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bundles, key.String())
	return nil
}

// shouldPersist reports whether bundle passes C2's Put precondition: a
// non-empty access token and no error field.
func shouldPersist(bundle *oauth.TokenBundle) bool {
	return bundle != nil && bundle.AccessToken != "" && bundle.Error == ""
}
