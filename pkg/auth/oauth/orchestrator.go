package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/collectionlab/oauthcore/pkg/auth/debug"
	"github.com/collectionlab/oauthcore/pkg/auth/store"
	"github.com/collectionlab/oauthcore/pkg/networking"
	"github.com/collectionlab/oauthcore/pkg/oauth"
)

// ErrConfiguration reports a RequestConfig missing a field required by the
// requested grant type.
var ErrConfiguration = errors.New("oauthcore: missing required configuration field")

// Orchestrator implements the Grant Orchestrators (C8): the cache/refresh/
// fresh-acquisition decision tree shared by every grant type, plus the
// authorization-code escape hatch (operation 5 of the caller surface).
type Orchestrator struct {
	store    store.Provider
	client   *Client
	refresh  *RefreshEngine
	browser  *BrowserDriver
	sessions *SessionManager
}

// NewOrchestrator wires a Provider, token endpoint Client, and
// BrowserDriver into one Orchestrator.
func NewOrchestrator(provider store.Provider, client *Client, browserDriver *BrowserDriver) *Orchestrator {
	return &Orchestrator{
		store:    provider,
		client:   client,
		refresh:  NewRefreshEngine(provider, client),
		browser:  browserDriver,
		sessions: NewSessionManager(),
	}
}

func storeKey(cfg *oauth.RequestConfig, collectionUID string) oauth.StoreKey {
	return oauth.StoreKey{
		CollectionUID: collectionUID,
		TokenURL:      cfg.AccessTokenURL,
		CredentialsID: cfg.CredentialsID,
	}
}

// requireFields checks that cfg carries every field its grant needs, and
// that every endpoint URL it carries is a well-formed, safe http(s) URL
// (C6's callback is exempted from the https requirement: it always targets
// a local loopback listener).
func requireFields(cfg *oauth.RequestConfig, grant oauth.GrantType) error {
	if cfg.AccessTokenURL == "" {
		return fmt.Errorf("%w: accessTokenUrl is required for %s", ErrConfiguration, grant)
	}
	if err := networking.ValidateEndpointURL(cfg.AccessTokenURL); err != nil {
		return fmt.Errorf("%w: accessTokenUrl: %v", ErrConfiguration, err)
	}
	if cfg.RefreshTokenURL != "" {
		if err := networking.ValidateEndpointURL(cfg.RefreshTokenURL); err != nil {
			return fmt.Errorf("%w: refreshTokenUrl: %v", ErrConfiguration, err)
		}
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("%w: clientId is required for %s", ErrConfiguration, grant)
	}
	switch grant {
	case oauth.GrantAuthorizationCode:
		if cfg.AuthorizationURL == "" {
			return fmt.Errorf("%w: authorizationUrl is required for authorization_code", ErrConfiguration)
		}
		if err := networking.ValidateEndpointURL(cfg.AuthorizationURL); err != nil {
			return fmt.Errorf("%w: authorizationUrl: %v", ErrConfiguration, err)
		}
		if cfg.CallbackURL == "" {
			return fmt.Errorf("%w: callbackUrl is required for authorization_code", ErrConfiguration)
		}
		if err := networking.ValidateEndpointURLWithInsecure(cfg.CallbackURL, true); err != nil {
			return fmt.Errorf("%w: callbackUrl: %v", ErrConfiguration, err)
		}
	case oauth.GrantPassword:
		if cfg.Username == "" || cfg.Password == "" {
			return fmt.Errorf("%w: username and password are required for password grant", ErrConfiguration)
		}
	}
	return nil
}

// freshAcquirer performs the network-touching portion of a fresh token
// acquisition for one grant type and records every exchange to rec.
type freshAcquirer func(ctx context.Context, cfg *oauth.RequestConfig, rec *debug.Recorder) (*oauth.TokenBundle, error)

// acquire runs the cache/refresh/fresh-acquisition decision tree (spec
// §4.8) for one grant and returns the caller-facing result shape.
func (o *Orchestrator) acquire(
	ctx context.Context, cfg *oauth.RequestConfig, collectionUID string, forceFetch bool, grant oauth.GrantType, fresh freshAcquirer,
) (*oauth.TokenResult, error) {
	if err := requireFields(cfg, grant); err != nil {
		return nil, err
	}

	key := storeKey(cfg, collectionUID)
	rec := debug.New()
	result := func(bundle *oauth.TokenBundle) *oauth.TokenResult {
		return &oauth.TokenResult{
			CollectionUID: collectionUID,
			URL:           cfg.AccessTokenURL,
			Credentials:   bundle,
			CredentialsID: cfg.CredentialsID,
			DebugInfo:     rec.Exchanges(),
		}
	}

	if !forceFetch {
		stored, err := o.store.Get(key)
		if err != nil {
			return nil, fmt.Errorf("read credential store: %w", err)
		}

		if stored.Present() {
			if !store.IsExpired(stored) {
				return result(stored), nil
			}

			switch {
			case cfg.AutoRefreshToken && stored.RefreshToken != "":
				refreshed := o.refresh.Refresh(ctx, key, cfg, rec)
				if refreshed != nil {
					return result(refreshed), nil
				}
				if !cfg.AutoFetchToken {
					// Refresh failed but nothing further is attempted; the
					// stale bundle is still served, from cache.
					rec.MarkFromCache(cfg.AccessTokenURL)
					return result(stored), nil
				}
			case cfg.AutoRefreshToken:
				if !cfg.AutoFetchToken {
					rec.MarkFromCache(cfg.AccessTokenURL)
					return result(stored), nil
				}
				_ = o.store.Clear(key)
				o.sessions.Forget(collectionUID, cfg.AccessTokenURL)
			case cfg.AutoFetchToken:
				_ = o.store.Clear(key)
				o.sessions.Forget(collectionUID, cfg.AccessTokenURL)
			default:
				rec.MarkFromCache(cfg.AccessTokenURL)
				return result(stored), nil
			}
		} else if !cfg.AutoFetchToken {
			return result(nil), nil
		}
	}

	bundle, err := fresh(ctx, cfg, rec)
	if err != nil {
		return nil, err
	}
	if putErr := o.store.Put(key, bundle); putErr != nil {
		return nil, fmt.Errorf("persist credential: %w", putErr)
	}
	return result(bundle), nil
}

func (o *Orchestrator) acquireClientCredentials(ctx context.Context, cfg *oauth.RequestConfig, rec *debug.Recorder) (*oauth.TokenBundle, error) {
	bundle, trace, err := o.client.ExchangeClientCredentials(ctx, cfg)
	record(rec, trace)
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

func (o *Orchestrator) acquirePassword(ctx context.Context, cfg *oauth.RequestConfig, rec *debug.Recorder) (*oauth.TokenBundle, error) {
	bundle, trace, err := o.client.ExchangePassword(ctx, cfg)
	record(rec, trace)
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

func (o *Orchestrator) acquireAuthorizationCode(collectionUID string) freshAcquirer {
	return func(ctx context.Context, cfg *oauth.RequestConfig, rec *debug.Recorder) (*oauth.TokenBundle, error) {
		var codeChallenge, codeVerifier string
		if cfg.PKCE {
			pkce, err := GeneratePKCEParams()
			if err != nil {
				return nil, err
			}
			codeChallenge, codeVerifier = pkce.CodeChallenge, pkce.CodeVerifier
		}
		state := cfg.State
		if state == "" {
			var err error
			state, err = GenerateState()
			if err != nil {
				return nil, err
			}
		}

		code, authTrace, err := o.browser.Authorize(ctx, AuthorizeParams{
			AuthorizationURL: cfg.AuthorizationURL,
			CallbackURL:      cfg.CallbackURL,
			ClientID:         cfg.ClientID,
			Scope:            cfg.Scope,
			State:            state,
			CodeChallenge:    codeChallenge,
			SessionID:        o.sessions.SessionID(collectionUID, cfg.AccessTokenURL),
		})
		record(rec, authTrace)
		if err != nil {
			return nil, err
		}

		bundle, tokenTrace, err := o.client.ExchangeAuthorizationCode(ctx, cfg, code, codeVerifier)
		record(rec, tokenTrace)
		if err != nil {
			return nil, err
		}
		return bundle, nil
	}
}

// GetTokenUsingAuthorizationCode is caller-surface operation 1.
func (o *Orchestrator) GetTokenUsingAuthorizationCode(ctx context.Context, cfg *oauth.RequestConfig, collectionUID string, forceFetch bool) (*oauth.TokenResult, error) {
	return o.acquire(ctx, cfg, collectionUID, forceFetch, oauth.GrantAuthorizationCode, o.acquireAuthorizationCode(collectionUID))
}

// GetTokenUsingClientCredentials is caller-surface operation 2.
func (o *Orchestrator) GetTokenUsingClientCredentials(ctx context.Context, cfg *oauth.RequestConfig, collectionUID string, forceFetch bool) (*oauth.TokenResult, error) {
	return o.acquire(ctx, cfg, collectionUID, forceFetch, oauth.GrantClientCredentials, o.acquireClientCredentials)
}

// GetTokenUsingPasswordCredentials is caller-surface operation 3.
func (o *Orchestrator) GetTokenUsingPasswordCredentials(ctx context.Context, cfg *oauth.RequestConfig, collectionUID string, forceFetch bool) (*oauth.TokenResult, error) {
	return o.acquire(ctx, cfg, collectionUID, forceFetch, oauth.GrantPassword, o.acquirePassword)
}

// RefreshToken is caller-surface operation 4. Unlike the Get* operations it
// bypasses the cache decision tree entirely and drives C7 directly; the
// returned credentials may be nil.
func (o *Orchestrator) RefreshToken(ctx context.Context, cfg *oauth.RequestConfig, collectionUID string) (*oauth.TokenResult, error) {
	if err := requireFields(cfg, oauth.GrantRefreshToken); err != nil {
		return nil, err
	}
	key := storeKey(cfg, collectionUID)
	rec := debug.New()
	bundle := o.refresh.Refresh(ctx, key, cfg, rec)
	return &oauth.TokenResult{
		CollectionUID: collectionUID,
		URL:           cfg.AccessTokenURL,
		Credentials:   bundle,
		CredentialsID: cfg.CredentialsID,
		DebugInfo:     rec.Exchanges(),
	}, nil
}

// GetAuthorizationCode is caller-surface operation 5: a lower-level escape
// hatch that drives the browser authorization window and returns the raw
// authorization code without ever touching the token endpoint or the store.
func (o *Orchestrator) GetAuthorizationCode(ctx context.Context, cfg *oauth.RequestConfig, codeChallenge, collectionUID string) (string, []oauth.DebugExchange, error) {
	if err := requireFields(cfg, oauth.GrantAuthorizationCode); err != nil {
		return "", nil, err
	}
	rec := debug.New()
	code, trace, err := o.browser.Authorize(ctx, AuthorizeParams{
		AuthorizationURL: cfg.AuthorizationURL,
		CallbackURL:      cfg.CallbackURL,
		ClientID:         cfg.ClientID,
		Scope:            cfg.Scope,
		State:            cfg.State,
		CodeChallenge:    codeChallenge,
		SessionID:        o.sessions.SessionID(collectionUID, cfg.AccessTokenURL),
	})
	record(rec, trace)
	if err != nil {
		return "", rec.Exchanges(), err
	}
	return code, rec.Exchanges(), nil
}
