// internal/problem/problem.go
//
// Expected-failure taxonomy for the request pipeline.
//
// Context
// -------
// Resolution and authorization failures are ordinary outcomes, not
// exceptions.  Each pipeline stage returns a Kind and the caller converts
// it to a response at the point of detection.  Only genuinely unexpected
// faults travel the error channel into internal/rescue.
package problem

// Kind tags an expected pipeline failure.
type Kind int

const (
	None Kind = iota

	// Context resolution.
	ContextNotFound
	ContextRequired
	LoginRequired

	// Authorization.
	AuthorizationDenied

	// Feed resolution.  The private/mismatched pair must render
	// identically on the wire; see internal/feed.
	FeedMismatchedToken
	FeedUnpublished
	FeedPrivate
	FeedInvalidToken
	FeedInvalidParameters
)

var kindNames = [...]string{
	None:                  "none",
	ContextNotFound:       "context_not_found",
	ContextRequired:       "context_required",
	LoginRequired:         "login_required",
	AuthorizationDenied:   "unauthorized",
	FeedMismatchedToken:   "feed_mismatched_token",
	FeedUnpublished:       "feed_unpublished",
	FeedPrivate:           "feed_private",
	FeedInvalidToken:      "feed_invalid_token",
	FeedInvalidParameters: "feed_invalid_parameters",
}

func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Feed reports whether k belongs to the feed-problem family.
func (k Kind) Feed() bool {
	switch k {
	case FeedMismatchedToken, FeedUnpublished, FeedPrivate,
		FeedInvalidToken, FeedInvalidParameters:
		return true
	}
	return false
}
