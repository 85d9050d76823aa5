// Package oauth defines the wire-level data model shared by every component
// of the OAuth token core: request configuration, the token bundle stored
// between acquisitions, and the composite store key that addresses it.
package oauth

import "encoding/json"

// GrantType identifies one of the OAuth 2.0 grants this core supports.
type GrantType string

// Supported grant types.
const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantClientCredentials GrantType = "client_credentials"
	GrantPassword          GrantType = "password"
	GrantRefreshToken      GrantType = "refresh_token"
)

// CredentialsPlacement controls how the client_id/client_secret pair is sent
// to the token endpoint.
type CredentialsPlacement string

// Supported credential placements.
const (
	PlacementBasicAuthHeader CredentialsPlacement = "basic_auth_header"
	PlacementBody            CredentialsPlacement = "body"
)

// RequestConfig is the input to every grant orchestrator. Fields not
// applicable to a given GrantType are ignored by that orchestrator.
type RequestConfig struct {
	GrantType GrantType

	AccessTokenURL  string
	RefreshTokenURL string

	AuthorizationURL string
	CallbackURL      string

	ClientID     string
	ClientSecret string

	Username string
	Password string

	Scope string
	State string
	PKCE  bool

	CredentialsPlacement CredentialsPlacement
	CredentialsID        string

	AutoRefreshToken bool
	AutoFetchToken   bool

	// ExtraAuthParams holds additional authorization-URL query parameters
	// (e.g. audience, resource, prompt). The grant orchestrators and
	// BuildAuthorizationURL do not read it, so none of these parameters
	// reach the authorization URL.
	ExtraAuthParams map[string]string
}

// EffectiveRefreshURL returns RefreshTokenURL, falling back to
// AccessTokenURL when unset.
func (c *RequestConfig) EffectiveRefreshURL() string {
	if c.RefreshTokenURL != "" {
		return c.RefreshTokenURL
	}
	return c.AccessTokenURL
}

// TokenBundle is the unit of credential persisted by the Credential Store.
// Unrecognized JSON fields returned by the token endpoint are preserved
// verbatim in Extra so debug views and re-serialization are lossless.
type TokenBundle struct {
	AccessToken  string `json:"access_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	ExpiresIn    *int64 `json:"expires_in,omitempty"`

	// CreatedAt is stamped, in epoch milliseconds, exactly once: the moment
	// the bundle is received by the Credential Store's Put.
	CreatedAt int64 `json:"created_at,omitempty"`

	// Error carries an OAuth error response (RFC 6749 §5.2); a bundle with
	// Error set is never persisted.
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Present reports whether the bundle represents an actual access token, as
// opposed to a zero-value placeholder.
func (b *TokenBundle) Present() bool {
	return b != nil && b.AccessToken != ""
}

// MarshalJSON flattens Extra alongside the typed fields so unknown fields
// from the token endpoint survive a store round-trip.
func (b TokenBundle) MarshalJSON() ([]byte, error) {
	type alias TokenBundle
	known, err := json.Marshal(alias(b))
	if err != nil {
		return nil, err
	}
	if len(b.Extra) == 0 {
		return known, nil
	}

	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range b.Extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON captures both the typed fields and any unrecognized ones
// into Extra.
func (b *TokenBundle) UnmarshalJSON(data []byte) error {
	type alias TokenBundle
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*b = TokenBundle(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	known := map[string]bool{
		"access_token": true, "token_type": true, "refresh_token": true,
		"scope": true, "expires_in": true, "created_at": true,
		"error": true, "error_description": true,
	}
	extra := map[string]json.RawMessage{}
	for k, v := range raw {
		if !known[k] {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		b.Extra = extra
	}
	return nil
}

// StoreKey uniquely addresses one token bundle. All three fields take part
// in the key (an empty field is a valid value); mismatched keys never alias.
type StoreKey struct {
	CollectionUID string
	TokenURL      string
	CredentialsID string
}

// String renders the key as a NUL-joined composite, safe for use as a map
// key or file-backed store key even if individual fields contain spaces.
func (k StoreKey) String() string {
	return k.CollectionUID + "\x00" + k.TokenURL + "\x00" + k.CredentialsID
}

// TokenResult is the shape returned by every caller-facing operation.
type TokenResult struct {
	CollectionUID string
	URL           string
	Credentials   *TokenBundle
	CredentialsID string
	DebugInfo     []DebugExchange
}
