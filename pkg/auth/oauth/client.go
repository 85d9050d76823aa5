package oauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/collectionlab/oauthcore/pkg/auth/debug"
	"github.com/collectionlab/oauthcore/pkg/oauth"
)

// ErrTokenEndpoint wraps a non-2xx or unparseable response from the token
// endpoint. The response body (or, on transport failure, the error text) is
// always included.
type ErrTokenEndpoint struct {
	StatusCode int
	Body       string
}

func (e *ErrTokenEndpoint) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("token endpoint request failed: %s", e.Body)
	}
	return fmt.Sprintf("token endpoint returned HTTP %d: %s", e.StatusCode, e.Body)
}

// HTTPDoer is satisfied by *http.Client; tests substitute a stub.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func newHTTPClient() HTTPDoer {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
		},
	}
}

// Client is the Token Endpoint Client (C5): it POSTs form-encoded grant
// requests and parses the JSON response.
type Client struct {
	httpClient HTTPDoer
}

// NewClient returns a Client using a default HTTP client with sane timeouts.
func NewClient() *Client {
	return &Client{httpClient: newHTTPClient()}
}

// NewClientWithHTTPDoer returns a Client using doer, for tests.
func NewClientWithHTTPDoer(doer HTTPDoer) *Client {
	return &Client{httpClient: doer}
}

// exchangeParams is the fully-resolved set of inputs for one grant request.
// tokenURL is resolved by the caller (accessTokenUrl, or refreshTokenUrl for
// refresh_token grants).
type exchangeParams struct {
	tokenURL             string
	grantType            oauth.GrantType
	clientID             string
	clientSecret         string
	credentialsPlacement oauth.CredentialsPlacement
	scope                string

	// grant-specific
	code         string
	redirectURI  string
	codeVerifier string
	username     string
	password     string
	refreshToken string
}

// Trace is the raw request/response pair of one token-endpoint HTTP
// round-trip. The Exchange* methods return it alongside the parsed
// TokenBundle candidate and do not record it themselves; the caller is
// responsible for recording it to a debug.Recorder.
type Trace struct {
	Request  oauth.DebugRequest
	Response oauth.DebugResponse
}

func (c *Client) exchange(ctx context.Context, p exchangeParams) (*oauth.TokenBundle, *Trace, error) {
	body := buildBody(p)
	bodyStr := body.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(bodyStr))
	if err != nil {
		return nil, nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if p.credentialsPlacement == oauth.PlacementBasicAuthHeader && p.clientID != "" {
		req.Header.Set("Authorization", "Basic "+basicAuth(p.clientID, p.clientSecret))
	}

	reqTrace := oauth.DebugRequest{
		URL:       p.tokenURL,
		Method:    http.MethodPost,
		Headers:   cloneHeader(req.Header),
		BodyText:  bodyStr,
		BodyBytes: []byte(bodyStr),
		Timestamp: time.Now(),
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		failTrace := debug.TransportFailureResponse(transportErrorCode(err), err)
		failTrace.URL = p.tokenURL
		failTrace.TimelineMS = time.Since(start).Milliseconds()
		return nil, &Trace{Request: reqTrace, Response: failTrace}, &ErrTokenEndpoint{Body: err.Error()}
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Trace{Request: reqTrace, Response: oauth.DebugResponse{
			URL:          p.tokenURL,
			Status:       fmt.Sprintf("%d", resp.StatusCode),
			StatusText:   resp.Status,
			Timestamp:    time.Now(),
			TimelineMS:   time.Since(start).Milliseconds(),
			ErrorMessage: err.Error(),
		}}, &ErrTokenEndpoint{StatusCode: resp.StatusCode, Body: err.Error()}
	}

	rawText := string(raw)
	var parsedBody any
	var bundle oauth.TokenBundle
	parseFailed := false
	if jsonErr := json.Unmarshal(raw, &bundle); jsonErr != nil {
		// Lenient parse failure: surface the raw string for debug visibility.
		parsedBody = rawText
		parseFailed = true
	} else {
		parsedBody = &bundle
	}

	respTrace := oauth.DebugResponse{
		URL:        p.tokenURL,
		Status:     fmt.Sprintf("%d", resp.StatusCode),
		StatusText: resp.Status,
		Headers:    cloneHeader(resp.Header),
		ParsedBody: parsedBody,
		RawBody:    raw,
		Timestamp:  time.Now(),
		TimelineMS: time.Since(start).Milliseconds(),
	}
	trace := &Trace{Request: reqTrace, Response: respTrace}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, trace, &ErrTokenEndpoint{StatusCode: resp.StatusCode, Body: rawText}
	}
	if parseFailed {
		return nil, trace, &ErrTokenEndpoint{StatusCode: resp.StatusCode, Body: rawText}
	}
	if bundle.Error != "" {
		return &bundle, trace, &ErrTokenEndpoint{StatusCode: resp.StatusCode, Body: rawText}
	}
	return &bundle, trace, nil
}

func buildBody(p exchangeParams) url.Values {
	v := url.Values{}
	v.Set("grant_type", string(p.grantType))
	v.Set("client_id", p.clientID)

	includeSecret := p.credentialsPlacement != oauth.PlacementBasicAuthHeader && p.clientSecret != ""
	if includeSecret {
		v.Set("client_secret", p.clientSecret)
	}

	switch p.grantType {
	case oauth.GrantAuthorizationCode:
		v.Set("code", p.code)
		v.Set("redirect_uri", p.redirectURI)
		if p.codeVerifier != "" {
			v.Set("code_verifier", p.codeVerifier)
		}
		if p.scope != "" {
			v.Set("scope", p.scope)
		}
	case oauth.GrantClientCredentials:
		if p.scope != "" {
			v.Set("scope", p.scope)
		}
	case oauth.GrantPassword:
		v.Set("username", p.username)
		v.Set("password", p.password)
		if p.scope != "" {
			v.Set("scope", p.scope)
		}
	case oauth.GrantRefreshToken:
		v.Set("refresh_token", p.refreshToken)
	}
	return v
}

func basicAuth(clientID, clientSecret string) string {
	return base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))
}

// transportErrorCode classifies a client-side transport failure (the
// request never received an HTTP response) into a short code for the
// X-Error-Class debug header.
func transportErrorCode(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "transport_error"
	}
}

func cloneHeader(h http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	for k, v := range h {
		out[k] = append([]string{}, v...)
	}
	return out
}

// ExchangeAuthorizationCode performs the authorization_code grant.
func (c *Client) ExchangeAuthorizationCode(
	ctx context.Context, cfg *oauth.RequestConfig, code, codeVerifier string,
) (*oauth.TokenBundle, *Trace, error) {
	return c.exchange(ctx, exchangeParams{
		tokenURL:             cfg.AccessTokenURL,
		grantType:            oauth.GrantAuthorizationCode,
		clientID:             cfg.ClientID,
		clientSecret:         cfg.ClientSecret,
		credentialsPlacement: cfg.CredentialsPlacement,
		scope:                cfg.Scope,
		code:                 code,
		redirectURI:          cfg.CallbackURL,
		codeVerifier:         codeVerifier,
	})
}

// ExchangeClientCredentials performs the client_credentials grant.
func (c *Client) ExchangeClientCredentials(ctx context.Context, cfg *oauth.RequestConfig) (*oauth.TokenBundle, *Trace, error) {
	return c.exchange(ctx, exchangeParams{
		tokenURL:             cfg.AccessTokenURL,
		grantType:            oauth.GrantClientCredentials,
		clientID:             cfg.ClientID,
		clientSecret:         cfg.ClientSecret,
		credentialsPlacement: cfg.CredentialsPlacement,
		scope:                cfg.Scope,
	})
}

// ExchangePassword performs the resource owner password credentials grant.
func (c *Client) ExchangePassword(ctx context.Context, cfg *oauth.RequestConfig) (*oauth.TokenBundle, *Trace, error) {
	return c.exchange(ctx, exchangeParams{
		tokenURL:             cfg.AccessTokenURL,
		grantType:            oauth.GrantPassword,
		clientID:             cfg.ClientID,
		clientSecret:         cfg.ClientSecret,
		credentialsPlacement: cfg.CredentialsPlacement,
		scope:                cfg.Scope,
		username:             cfg.Username,
		password:             cfg.Password,
	})
}

// ExchangeRefreshToken performs the refresh_token grant against url (the
// caller resolves RefreshTokenURL vs AccessTokenURL).
func (c *Client) ExchangeRefreshToken(
	ctx context.Context, cfg *oauth.RequestConfig, url, refreshToken string,
) (*oauth.TokenBundle, *Trace, error) {
	return c.exchange(ctx, exchangeParams{
		tokenURL:             url,
		grantType:            oauth.GrantRefreshToken,
		clientID:             cfg.ClientID,
		clientSecret:         cfg.ClientSecret,
		credentialsPlacement: cfg.CredentialsPlacement,
		refreshToken:         refreshToken,
	})
}
