// internal/respond/headers.go
//
// Response headers owned by the pipeline.
//
// Every unauthorized or error response must be uncacheable, the persisted
// page-view id travels back in a correlation header, and API token
// failures carry an auth challenge.  Centralising the header names here
// keeps the stages from drifting apart.  The anti-forgery token header
// belongs to internal/csrf, which owns both its directions.
package respond

import "net/http"

const (
	// HeaderPageView carries the persisted page-view id so the client's
	// follow-up callback can amend the same record.
	HeaderPageView = "X-Campus-Page-View-Id"

	// HeaderChallenge is the auth challenge on invalid-access-token API
	// errors.
	HeaderChallenge = "WWW-Authenticate"

	// ChallengeValue is the Bearer challenge body.
	ChallengeValue = `Bearer realm="campus"`
)

// NoCache forces cache suppression.  Required on every unauthorized and
// error response so intermediaries never replay a denial, or worse, a
// grant, to a different principal.
func NoCache(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}
