package store

import (
	"time"

	"github.com/collectionlab/oauthcore/pkg/oauth"
)

// IsExpired implements the Freshness Oracle (C3):
//   - true if bundle is absent or lacks an access token;
//   - false if the bundle has an access token but lacks ExpiresIn or
//     CreatedAt (it never expires by time);
//   - otherwise, true iff now is past CreatedAt + ExpiresIn seconds.
func IsExpired(bundle *oauth.TokenBundle) bool {
	return isExpiredAt(bundle, time.Now())
}

func isExpiredAt(bundle *oauth.TokenBundle, now time.Time) bool {
	if !bundle.Present() {
		return true
	}
	if bundle.ExpiresIn == nil || bundle.CreatedAt == 0 {
		return false
	}
	expiresAt := bundle.CreatedAt + *bundle.ExpiresIn*1000
	return now.UnixMilli() > expiresAt
}
