// Package debug implements the Debug Recorder (C4): it holds a structured,
// ordered trace of every HTTP round-trip performed during a token
// acquisition. It does not wrap the token endpoint client or the browser
// authorization driver; callers record each exchange explicitly.
package debug

import (
	"time"

	"github.com/google/uuid"

	"github.com/collectionlab/oauthcore/pkg/oauth"
)

// Recorder accumulates DebugExchange entries for a single acquisition.
// It is not safe for concurrent use; one Recorder is created per
// orchestrator invocation.
type Recorder struct {
	exchanges []oauth.DebugExchange
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{}
}

// Begin records the outbound half of an exchange and returns its id so the
// caller can later call Complete or Fail with the matching response.
func (r *Recorder) Begin(req oauth.DebugRequest) string {
	id := uuid.NewString()
	r.exchanges = append(r.exchanges, oauth.DebugExchange{
		RequestID: id,
		Request:   req,
	})
	return id
}

// Complete attaches a successful response to the exchange started by id.
func (r *Recorder) Complete(id string, resp oauth.DebugResponse) {
	r.finish(id, &resp, true)
}

// Fail attaches a synthetic response representing a transport failure (no
// HTTP response was ever received) to the exchange started by id.
func (r *Recorder) Fail(id string, errCode string, err error) {
	resp := TransportFailureResponse(errCode, err)
	r.finish(id, &resp, true)
}

// TransportFailureResponse builds the synthetic DebugResponse recorded when
// a request never received an HTTP response at all (connection refused,
// DNS failure, client-side timeout, ...). It carries an X-Error-Class
// header the same way a real error response would, so debug consumers don't
// need a separate code path for transport-level failures. Shared by
// Recorder.Fail and callers, such as the token endpoint client, that build
// their own Trace outside of a Recorder.
func TransportFailureResponse(errCode string, err error) oauth.DebugResponse {
	return oauth.DebugResponse{
		Status:       "-",
		StatusText:   errCode,
		Headers:      map[string][]string{"X-Error-Class": {errCode}},
		Timestamp:    time.Now(),
		ErrorMessage: err.Error(),
	}
}

func (r *Recorder) finish(id string, resp *oauth.DebugResponse, completed bool) {
	for i := range r.exchanges {
		if r.exchanges[i].RequestID == id {
			r.exchanges[i].Response = resp
			r.exchanges[i].Completed = completed
			return
		}
	}
}

// MarkFromCache appends a zero-network exchange entry noting that cached
// credentials were served directly; used sparingly, since S1 expects an
// empty DebugInfo for a pure cache hit. Provided for callers that want an
// explicit cache-hit marker in their own tracing.
func (r *Recorder) MarkFromCache(url string) {
	r.exchanges = append(r.exchanges, oauth.DebugExchange{
		RequestID: uuid.NewString(),
		Request:   oauth.DebugRequest{URL: url, Timestamp: time.Now()},
		FromCache: true,
		Completed: true,
	})
}

// Exchanges returns the ordered trace collected so far.
func (r *Recorder) Exchanges() []oauth.DebugExchange {
	return r.exchanges
}
