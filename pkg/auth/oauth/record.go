package oauth

import "github.com/collectionlab/oauthcore/pkg/auth/debug"

// record appends trace to rec as one completed exchange. It is the common
// tail of every network-touching step (token exchange, browser window): the
// caller always has a Trace in hand and always wants it recorded regardless
// of whether the step itself succeeded.
func record(rec *debug.Recorder, trace *Trace) {
	if rec == nil || trace == nil {
		return
	}
	id := rec.Begin(trace.Request)
	rec.Complete(id, trace.Response)
}
