package oauth

import (
	"context"

	"github.com/collectionlab/oauthcore/pkg/auth/debug"
	"github.com/collectionlab/oauthcore/pkg/auth/store"
	"github.com/collectionlab/oauthcore/pkg/oauth"
)

// RefreshEngine is the Refresh Engine (C7): it exchanges a stored refresh
// token for a new bundle, clearing the store on any failure so a stale or
// revoked refresh token is never retried silently.
type RefreshEngine struct {
	store  store.Provider
	client *Client
}

// NewRefreshEngine returns a RefreshEngine backed by provider and client.
func NewRefreshEngine(provider store.Provider, client *Client) *RefreshEngine {
	return &RefreshEngine{store: provider, client: client}
}

// Refresh performs the refresh_token grant for key using cfg. It never
// returns an error to the caller: network and protocol failures clear the
// store and yield a nil bundle, leaving the decision of what to do next to
// the grant orchestrator.
func (e *RefreshEngine) Refresh(ctx context.Context, key oauth.StoreKey, cfg *oauth.RequestConfig, rec *debug.Recorder) *oauth.TokenBundle {
	url := cfg.EffectiveRefreshURL()

	stored, err := e.store.Get(key)
	if err != nil || stored == nil || stored.RefreshToken == "" {
		_ = e.store.Clear(key)
		return nil
	}

	bundle, trace, exchangeErr := e.client.ExchangeRefreshToken(ctx, cfg, url, stored.RefreshToken)
	record(rec, trace)

	if exchangeErr != nil || bundle == nil || bundle.Error != "" {
		_ = e.store.Clear(key)
		return nil
	}

	// A server that omits refresh_token from the refresh response is not
	// revoking it; preserve the prior value rather than losing it.
	if bundle.RefreshToken == "" {
		bundle.RefreshToken = stored.RefreshToken
	}

	if putErr := e.store.Put(key, bundle); putErr != nil {
		_ = e.store.Clear(key)
		return nil
	}
	return bundle
}
