package oauth

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectionlab/oauthcore/pkg/auth/store"
	"github.com/collectionlab/oauthcore/pkg/oauth"
)

func newTestOrchestrator(opener func(string) error) (*Orchestrator, *store.MemoryProvider) {
	mem := store.NewMemoryProvider()
	driver := NewBrowserDriverWithOpener(opener)
	o := NewOrchestrator(mem, NewClient(), driver)
	return o, mem
}

func TestOrchestrator_S1_CachedNonExpiredToken(t *testing.T) {
	o, mem := newTestOrchestrator(nil)
	key := oauth.StoreKey{CollectionUID: "col", TokenURL: "https://example.com/token"}
	require.NoError(t, mem.Put(key, &oauth.TokenBundle{
		AccessToken: "A",
		ExpiresIn:   int64Ptr(3600),
		CreatedAt:   time.Now().Add(-60*time.Second).UnixMilli(),
	}))

	cfg := &oauth.RequestConfig{AccessTokenURL: "https://example.com/token", ClientID: "c"}
	result, err := o.GetTokenUsingClientCredentials(context.Background(), cfg, "col", false)
	require.NoError(t, err)
	assert.Equal(t, "A", result.Credentials.AccessToken)
	assert.Empty(t, result.DebugInfo)
}

func TestOrchestrator_S2_ClientCredentialsFreshFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"T1","expires_in":7200}`))
	}))
	defer srv.Close()

	o, mem := newTestOrchestrator(nil)
	cfg := &oauth.RequestConfig{AccessTokenURL: srv.URL, ClientID: "c", AutoFetchToken: true}
	result, err := o.GetTokenUsingClientCredentials(context.Background(), cfg, "col", false)
	require.NoError(t, err)
	assert.Equal(t, "T1", result.Credentials.AccessToken)
	assert.Len(t, result.DebugInfo, 1)
	assert.Equal(t, "200", result.DebugInfo[0].Response.Status)

	stored, err := mem.Get(oauth.StoreKey{CollectionUID: "col", TokenURL: srv.URL})
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "T1", stored.AccessToken)
	assert.NotZero(t, stored.CreatedAt)
}

func TestOrchestrator_S3_AuthorizationCodeWithPKCE(t *testing.T) {
	var tokenBody url.Values
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		tokenBody, _ = url.ParseQuery(string(raw))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"T2","refresh_token":"R2","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	var authURLSeen string
	opener := func(authURL string) error {
		authURLSeen = authURL
		go func() {
			u, _ := url.Parse(authURL)
			redirect := u.Query().Get("redirect_uri") + "?code=abc&state=" + u.Query().Get("state")
			resp, err := http.Get(redirect)
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}

	o, mem := newTestOrchestrator(opener)

	// reserve a free loopback port for the callback listener.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	cfg := &oauth.RequestConfig{
		AccessTokenURL:   tokenSrv.URL,
		AuthorizationURL: "https://auth.example.com/authorize",
		CallbackURL:      "http://" + addr + "/callback",
		ClientID:         "c",
		Scope:            "read",
		PKCE:             true,
		AutoFetchToken:   true,
	}
	result, err := o.GetTokenUsingAuthorizationCode(context.Background(), cfg, "col", false)
	require.NoError(t, err)
	assert.Equal(t, "T2", result.Credentials.AccessToken)

	u, _ := url.Parse(authURLSeen)
	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))

	assert.Equal(t, "authorization_code", tokenBody.Get("grant_type"))
	assert.Equal(t, "abc", tokenBody.Get("code"))
	assert.NotEmpty(t, tokenBody.Get("code_verifier"))

	stored, err := mem.Get(oauth.StoreKey{CollectionUID: "col", TokenURL: tokenSrv.URL})
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "T2", stored.AccessToken)
}

func TestOrchestrator_S4_ExpiredWithAutoRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new","refresh_token":"R2","expires_in":3600}`))
	}))
	defer srv.Close()

	o, mem := newTestOrchestrator(nil)
	key := oauth.StoreKey{CollectionUID: "col", TokenURL: srv.URL}
	// Put stamps CreatedAt with the current time; a negative lifetime makes
	// the stored bundle expired already.
	require.NoError(t, mem.Put(key, &oauth.TokenBundle{
		AccessToken:  "old",
		RefreshToken: "R",
		ExpiresIn:    int64Ptr(-60),
	}))

	cfg := &oauth.RequestConfig{AccessTokenURL: srv.URL, ClientID: "c", AutoRefreshToken: true}
	result, err := o.GetTokenUsingClientCredentials(context.Background(), cfg, "col", false)
	require.NoError(t, err)
	assert.Equal(t, "new", result.Credentials.AccessToken)

	stored, err := mem.Get(key)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "new", stored.AccessToken)
	assert.Equal(t, "R2", stored.RefreshToken)
}

func TestOrchestrator_S5_RefreshFailsAutoFetchFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	o, mem := newTestOrchestrator(nil)
	key := oauth.StoreKey{CollectionUID: "col", TokenURL: srv.URL}
	// Put stamps CreatedAt with the current time; a negative lifetime makes
	// the stored bundle expired already.
	require.NoError(t, mem.Put(key, &oauth.TokenBundle{
		AccessToken:  "old",
		RefreshToken: "R",
		ExpiresIn:    int64Ptr(-60),
	}))

	cfg := &oauth.RequestConfig{AccessTokenURL: srv.URL, ClientID: "c", AutoRefreshToken: true, AutoFetchToken: false}
	result, err := o.GetTokenUsingClientCredentials(context.Background(), cfg, "col", false)
	require.NoError(t, err)
	assert.Equal(t, "old", result.Credentials.AccessToken)

	stored, err := mem.Get(key)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestOrchestrator_ForceFetch_SkipsStore(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","expires_in":3600}`))
	}))
	defer srv.Close()

	o, mem := newTestOrchestrator(nil)
	key := oauth.StoreKey{CollectionUID: "col", TokenURL: srv.URL}
	require.NoError(t, mem.Put(key, &oauth.TokenBundle{
		AccessToken: "cached",
		ExpiresIn:   int64Ptr(3600),
		CreatedAt:   time.Now().UnixMilli(),
	}))

	cfg := &oauth.RequestConfig{AccessTokenURL: srv.URL, ClientID: "c"}
	result, err := o.GetTokenUsingClientCredentials(context.Background(), cfg, "col", true)
	require.NoError(t, err)
	assert.Equal(t, "fresh", result.Credentials.AccessToken)
	assert.Equal(t, 1, hits)
}

func TestOrchestrator_NoStoredAndNoAutoFetch_ReturnsNone(t *testing.T) {
	o, _ := newTestOrchestrator(nil)
	cfg := &oauth.RequestConfig{AccessTokenURL: "https://example.com/token", ClientID: "c"}
	result, err := o.GetTokenUsingClientCredentials(context.Background(), cfg, "col", false)
	require.NoError(t, err)
	assert.Nil(t, result.Credentials)
	assert.Empty(t, result.DebugInfo)
}

func TestOrchestrator_DistinctCredentialsIDsNeverAlias(t *testing.T) {
	o, mem := newTestOrchestrator(nil)
	urlStr := "https://example.com/token"
	require.NoError(t, mem.Put(oauth.StoreKey{CollectionUID: "col", TokenURL: urlStr, CredentialsID: "a"}, &oauth.TokenBundle{AccessToken: "A", ExpiresIn: int64Ptr(3600), CreatedAt: time.Now().UnixMilli()}))
	require.NoError(t, mem.Put(oauth.StoreKey{CollectionUID: "col", TokenURL: urlStr, CredentialsID: "b"}, &oauth.TokenBundle{AccessToken: "B", ExpiresIn: int64Ptr(3600), CreatedAt: time.Now().UnixMilli()}))

	cfgA := &oauth.RequestConfig{AccessTokenURL: urlStr, ClientID: "c", CredentialsID: "a"}
	cfgB := &oauth.RequestConfig{AccessTokenURL: urlStr, ClientID: "c", CredentialsID: "b"}

	resA, err := o.GetTokenUsingClientCredentials(context.Background(), cfgA, "col", false)
	require.NoError(t, err)
	resB, err := o.GetTokenUsingClientCredentials(context.Background(), cfgB, "col", false)
	require.NoError(t, err)

	assert.Equal(t, "A", resA.Credentials.AccessToken)
	assert.Equal(t, "B", resB.Credentials.AccessToken)
}

func TestOrchestrator_RejectsMalformedAccessTokenURL(t *testing.T) {
	o, _ := newTestOrchestrator(nil)
	cfg := &oauth.RequestConfig{AccessTokenURL: "ftp://example.com/token", ClientID: "c"}
	_, err := o.GetTokenUsingClientCredentials(context.Background(), cfg, "col", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestOrchestrator_RejectsInsecureNonLocalAccessTokenURL(t *testing.T) {
	o, _ := newTestOrchestrator(nil)
	cfg := &oauth.RequestConfig{AccessTokenURL: "http://example.com/token", ClientID: "c"}
	_, err := o.GetTokenUsingClientCredentials(context.Background(), cfg, "col", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestOrchestrator_AllowsLocalhostCallbackOverHTTP(t *testing.T) {
	o, _ := newTestOrchestrator(nil)
	cfg := &oauth.RequestConfig{
		AccessTokenURL:   "https://example.com/token",
		AuthorizationURL: "https://example.com/authorize",
		CallbackURL:      "http://127.0.0.1:4000/callback",
		ClientID:         "c",
	}
	err := requireFields(cfg, oauth.GrantAuthorizationCode)
	assert.NoError(t, err)
}

func TestOrchestrator_ExpiredServedFromCache_MarksDebugInfo(t *testing.T) {
	o, mem := newTestOrchestrator(nil)
	key := oauth.StoreKey{CollectionUID: "col", TokenURL: "https://example.com/token"}
	// Put stamps CreatedAt with the current time; a negative lifetime makes
	// the stored bundle expired already.
	require.NoError(t, mem.Put(key, &oauth.TokenBundle{
		AccessToken: "stale",
		ExpiresIn:   int64Ptr(-60),
	}))

	cfg := &oauth.RequestConfig{AccessTokenURL: "https://example.com/token", ClientID: "c"}
	result, err := o.GetTokenUsingClientCredentials(context.Background(), cfg, "col", false)
	require.NoError(t, err)
	assert.Equal(t, "stale", result.Credentials.AccessToken)
	require.Len(t, result.DebugInfo, 1)
	assert.True(t, result.DebugInfo[0].FromCache)
}

func TestOrchestrator_FetchAfterClear_ForgetsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","expires_in":3600}`))
	}))
	defer srv.Close()

	o, mem := newTestOrchestrator(nil)
	key := oauth.StoreKey{CollectionUID: "col", TokenURL: srv.URL}
	// Put stamps CreatedAt with the current time; a negative lifetime makes
	// the stored bundle expired already.
	require.NoError(t, mem.Put(key, &oauth.TokenBundle{
		AccessToken: "stale",
		ExpiresIn:   int64Ptr(-60),
	}))

	firstSession := o.sessions.SessionID("col", srv.URL)

	cfg := &oauth.RequestConfig{AccessTokenURL: srv.URL, ClientID: "c", AutoFetchToken: true}
	result, err := o.GetTokenUsingClientCredentials(context.Background(), cfg, "col", false)
	require.NoError(t, err)
	assert.Equal(t, "fresh", result.Credentials.AccessToken)

	assert.NotEqual(t, firstSession, o.sessions.SessionID("col", srv.URL))
}

func int64Ptr(n int64) *int64 { return &n }
