package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/browser"
	"golang.org/x/sync/errgroup"

	"github.com/collectionlab/oauthcore/pkg/oauth"
)

// Sentinel errors returned by BrowserDriver.Authorize.
var (
	ErrAuthorizationAborted  = errors.New("authorization aborted before reaching the callback")
	ErrAuthorizationRejected = errors.New("authorization server returned an error at the callback")
	ErrAuthorizationTimeout  = errors.New("authorization timed out waiting for the callback")
)

// defaultAuthorizationTimeout bounds how long Authorize waits for the user
// to complete the browser flow when the caller's context carries no deadline.
const defaultAuthorizationTimeout = 5 * time.Minute

// AuthorizeParams describes one authorization_code browser round-trip.
type AuthorizeParams struct {
	AuthorizationURL string
	CallbackURL      string
	ClientID         string
	Scope            string
	State            string
	CodeChallenge    string // empty when PKCE is disabled
	SessionID        string
}

// BrowserDriver is the Browser Authorization Driver (C6). It opens the
// user's browser at the authorization URL, runs a local loopback HTTP
// server bound to the callback URL, and waits for the redirect carrying the
// authorization code.
type BrowserDriver struct {
	openURL func(string) error
	timeout time.Duration
}

// NewBrowserDriver returns a BrowserDriver that opens the system browser.
func NewBrowserDriver() *BrowserDriver {
	return &BrowserDriver{openURL: browser.OpenURL, timeout: defaultAuthorizationTimeout}
}

// NewBrowserDriverWithOpener returns a BrowserDriver using opener in place
// of the system browser, for tests.
func NewBrowserDriverWithOpener(opener func(string) error) *BrowserDriver {
	return &BrowserDriver{openURL: opener, timeout: defaultAuthorizationTimeout}
}

// BuildAuthorizationURL appends the authorization_code query parameters to
// p.AuthorizationURL per RFC 6749 §4.1.1 plus RFC 7636 §4.3 for PKCE.
func BuildAuthorizationURL(p AuthorizeParams) (string, error) {
	base, err := url.Parse(p.AuthorizationURL)
	if err != nil {
		return "", fmt.Errorf("parse authorization url: %w", err)
	}
	q := base.Query()
	q.Set("response_type", "code")
	q.Set("client_id", p.ClientID)
	if p.CallbackURL != "" {
		q.Set("redirect_uri", p.CallbackURL)
	}
	if p.Scope != "" {
		q.Set("scope", p.Scope)
	}
	if p.CodeChallenge != "" {
		q.Set("code_challenge", p.CodeChallenge)
		q.Set("code_challenge_method", "S256")
	}
	if p.State != "" {
		q.Set("state", p.State)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

type callbackResult struct {
	code string
	err  error
}

// Authorize drives the user through the authorization_code flow and returns
// the authorization code along with a debug Trace of the authorization
// window. It blocks until the callback arrives, ctx is canceled, or the
// driver's timeout elapses.
func (d *BrowserDriver) Authorize(ctx context.Context, p AuthorizeParams) (string, *Trace, error) {
	callback, err := url.Parse(p.CallbackURL)
	if err != nil {
		return "", nil, fmt.Errorf("parse callback url: %w", err)
	}

	listener, err := net.Listen("tcp", hostWithDefaultPort(callback))
	if err != nil {
		return "", nil, fmt.Errorf("listen for callback: %w", err)
	}

	authURL, err := BuildAuthorizationURL(p)
	if err != nil {
		listener.Close() //nolint:errcheck
		return "", nil, err
	}

	start := time.Now()
	reqTrace := oauth.DebugRequest{
		URL:       authURL,
		Method:    http.MethodGet,
		Timestamp: start,
	}

	resultCh := make(chan callbackResult, 1)
	path := callbackPath(callback)
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if errCode := q.Get("error"); errCode != "" {
			writeCallbackPage(w, false)
			select {
			case resultCh <- callbackResult{err: fmt.Errorf("%w: %s", ErrAuthorizationRejected, errCode)}:
			default:
			}
			return
		}
		code := q.Get("code")
		writeCallbackPage(w, code != "")
		select {
		case resultCh <- callbackResult{code: code}:
		default:
		}
	})
	if path != "/" {
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})
	}

	srv := &http.Server{Handler: mux}

	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	g, _ := errgroup.WithContext(runCtx)
	g.Go(func() error {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return nil
	})

	if openErr := d.openURL(authURL); openErr != nil {
		resultCh <- callbackResult{err: fmt.Errorf("%w: open browser: %v", ErrAuthorizationAborted, openErr)}
	}

	var code string
	var waitErr error
	select {
	case res := <-resultCh:
		code, waitErr = res.code, res.err
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			waitErr = ErrAuthorizationTimeout
		} else {
			waitErr = ErrAuthorizationAborted
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	_ = srv.Shutdown(shutdownCtx)
	shutdownCancel()
	_ = g.Wait()

	respTrace := oauth.DebugResponse{
		URL:        authURL,
		Timestamp:  time.Now(),
		TimelineMS: time.Since(start).Milliseconds(),
	}
	if waitErr != nil {
		respTrace.Status = "-"
		respTrace.ErrorMessage = waitErr.Error()
	} else {
		respTrace.Status = "200"
		respTrace.ParsedBody = map[string]string{"code": code}
	}
	trace := &Trace{Request: reqTrace, Response: respTrace}

	if waitErr != nil {
		return "", trace, waitErr
	}
	if code == "" {
		return "", trace, fmt.Errorf("%w: callback carried no code", ErrAuthorizationAborted)
	}
	return code, trace, nil
}

func hostWithDefaultPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "https" {
		return u.Hostname() + ":443"
	}
	return u.Hostname() + ":80"
}

func callbackPath(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

func writeCallbackPage(w http.ResponseWriter, ok bool) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if ok {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body>Authorization complete, you may close this window.</body></html>"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<html><body>Authorization failed, you may close this window.</body></html>"))
}
