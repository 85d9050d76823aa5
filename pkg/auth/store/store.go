// Package store implements the Credential Store (C2) and Freshness Oracle
// (C3). The Credential Store is a pluggable Provider: a file-backed JSON
// store by default, or an OS-keyring-backed store, selected via Options.
package store

import (
	"github.com/collectionlab/oauthcore/pkg/oauth"
)

// Provider is the Credential Store contract (C2). Implementations must
// serialize concurrent access per Key (see pkg/lockfile) and must never
// panic or error on a missing key.
type Provider interface {
	// Get returns the stored bundle for key, or nil if none is stored.
	Get(key oauth.StoreKey) (*oauth.TokenBundle, error)

	// Put stores bundle under key, stamping CreatedAt to now. Bundles with
	// an empty AccessToken or a non-empty Error are silently ignored.
	Put(key oauth.StoreKey, bundle *oauth.TokenBundle) error

	// Clear removes any bundle stored under key. Idempotent.
	Clear(key oauth.StoreKey) error
}

// nowMillis is overridden in tests to make CreatedAt deterministic.
var nowMillis = defaultNowMillis
