// internal/feed/feed.go
//
// Token-feed resolution: anonymous, context-scoped access via an opaque
// per-entity token embedded in a feed URL.
//
// Context
// -------
// A feed code is "kind_token", split on the first underscore.  The one
// exception is the group_membership kind, whose literal contains an
// underscore, so that prefix consumes the third underscore-delimited
// segment as the token.  Enrollment and group-membership codes derive
// both the context AND the acting principal from the token; this is the
// only path where the current user does not come from session state.
//
// Every problem renders the same body with HTTP 400.  A prober must not
// be able to distinguish a wrong token from a private resource or an
// unpublished course by the outer response shape; only the message text
// differs.
package feed

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/campushq/campus/internal/domain"
	"github.com/campushq/campus/internal/metrics"
	"github.com/campushq/campus/internal/problem"
)

// Problem is one expected feed-resolution failure.  Kind selects the
// message; the wire shape is identical for all kinds.
type Problem struct {
	Kind    problem.Kind
	Message string
}

// messages are the human-readable texts.  Deliberately bland: they never
// confirm whether the target exists.
var messages = map[problem.Kind]string{
	problem.FeedMismatchedToken:   "The verifier in this feed URL is not valid.",
	problem.FeedUnpublished:       "This feed is not available yet.",
	problem.FeedPrivate:           "This feed requires a valid verifier.",
	problem.FeedInvalidToken:      "This feed URL is not recognized.",
	problem.FeedInvalidParameters: "This feed URL is not valid for this resource.",
}

func newProblem(k problem.Kind) *Problem {
	metrics.FeedProblemsTotal.WithLabelValues(k.String()).Inc()
	return &Problem{Kind: k, Message: messages[k]}
}

// Resolver resolves feed codes into a context and an effective
// principal.
type Resolver struct {
	Entities domain.EntityFinder
	Members  domain.MembershipFinder
}

// SplitCode separates a feed code into kind and token.  The
// group_membership literal contains an underscore, so its token is the
// third underscore-delimited segment.
func SplitCode(code string) (kind, token string) {
	if strings.HasPrefix(code, "group_membership") {
		parts := strings.SplitN(code, "_", 3)
		if len(parts) == 3 {
			return "group_membership", parts[2]
		}
		return "group_membership", ""
	}
	kind, token, _ = strings.Cut(code, "_")
	return kind, token
}

// ResolveFeed resolves code into (context, effective principal).  When
// allowed is non-empty, a resolved context of an excluded kind is
// downgraded to FeedInvalidParameters.
func (rv *Resolver) ResolveFeed(ctx context.Context, code string, allowed []domain.Kind) (*domain.Context, *domain.User, *Problem) {
	kind, token := SplitCode(code)

	var (
		c    *domain.Context
		u    *domain.User
		prob *Problem
	)
	switch kind {
	case "enrollment":
		c, u, prob = rv.fromMembership(ctx, token, domain.KindCourse)
	case "group_membership":
		c, u, prob = rv.fromMembership(ctx, token, domain.KindGroup)
	default:
		c, prob = rv.fromEntityToken(ctx, kind, token)
	}
	if prob != nil {
		return nil, nil, prob
	}

	if len(allowed) > 0 && !kindAllowed(c.Kind, allowed) {
		return nil, nil, newProblem(problem.FeedInvalidParameters)
	}
	return c, u, nil
}

// fromMembership handles the enrollment and group_membership kinds,
// where the token binds to a membership and yields both the context and
// the acting principal.
func (rv *Resolver) fromMembership(ctx context.Context, token string, kind domain.Kind) (*domain.Context, *domain.User, *Problem) {
	var (
		m   *domain.Membership
		err error
	)
	if kind == domain.KindCourse {
		m, err = rv.Members.EnrollmentByFeedToken(ctx, token)
	} else {
		m, err = rv.Members.GroupMembershipByFeedToken(ctx, token)
	}
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			zap.L().Error("feed membership lookup", zap.Error(err))
		}
		return nil, nil, newProblem(problem.FeedMismatchedToken)
	}

	c, err := rv.Entities.Find(ctx, kind, m.ContextID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			zap.L().Error("feed context lookup", zap.Error(err))
		}
		return nil, nil, newProblem(problem.FeedMismatchedToken)
	}
	if !c.Published {
		return nil, nil, newProblem(problem.FeedUnpublished)
	}

	u, err := rv.Members.UserByID(ctx, m.UserID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			zap.L().Error("feed user lookup", zap.Error(err))
		}
		return nil, nil, newProblem(problem.FeedMismatchedToken)
	}
	return c, u, nil
}

// fromEntityToken handles every other kind as a generic entity lookup.
func (rv *Resolver) fromEntityToken(ctx context.Context, kindStr, token string) (*domain.Context, *Problem) {
	kind, ok := domain.ParseKind(kindStr)
	if !ok {
		return nil, newProblem(problem.FeedInvalidToken)
	}

	c, err := rv.Entities.FindByFeedToken(ctx, kind, token)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			zap.L().Error("feed entity lookup", zap.Error(err))
		}
		return nil, newProblem(problem.FeedMismatchedToken)
	}

	// The store lookup may match under a case-folding collation.  For a
	// non-public entity anything short of byte equality is a private
	// feed; public entities forgive the discrepancy.
	if !c.Public && c.FeedToken != token {
		return nil, newProblem(problem.FeedPrivate)
	}
	return c, nil
}

func kindAllowed(k domain.Kind, allowed []domain.Kind) bool {
	for _, a := range allowed {
		if a == k {
			return true
		}
	}
	return false
}
