// internal/pipeline/pipeline.go
//
// Request-lifecycle pipeline assembly.
//
// Control flow per request:
//
//	Entry (fresh state, format negotiation, session principal)
//	→ Rescue boundary
//	→ CSRF guard (once, before any resolution)
//	→ ContextResolver or TokenFeedResolver (selected by route kind)
//	→ PermissionGate (when the route names protected actions)
//	→ downstream handler
//	→ TelemetryRecorder finalize (regardless of handler outcome)
//
// The rescue handler may short-circuit at any point; the remaining
// stages are then skipped, except that its own report building always
// runs.  Every stage is a plain chi middleware so routes opt in to
// exactly the stages they need.
package pipeline

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/campushq/campus/internal/authz"
	"github.com/campushq/campus/internal/csrf"
	"github.com/campushq/campus/internal/domain"
	"github.com/campushq/campus/internal/feed"
	"github.com/campushq/campus/internal/problem"
	"github.com/campushq/campus/internal/reqstate"
	"github.com/campushq/campus/internal/rescue"
	"github.com/campushq/campus/internal/resolve"
	"github.com/campushq/campus/internal/respond"
	"github.com/campushq/campus/internal/session"
	"github.com/campushq/campus/internal/telemetry"
)

// Pipeline owns the five stages and their collaborators.
type Pipeline struct {
	Resolver *resolve.Resolver
	Feeds    *feed.Resolver
	Gate     *authz.Gate
	Recorder *telemetry.Recorder
	Rescue   *rescue.Handler
	Members  domain.MembershipFinder
}

// Entry allocates fresh per-request state, negotiates the response
// representation, and loads the session principal.  It must be the
// outermost middleware; everything downstream assumes the state exists.
func (p *Pipeline) Entry(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := reqstate.New()
		st.Format = respond.Negotiate(r)

		if sess := session.Current(r); sess != nil {
			u, err := p.Members.UserByID(r.Context(), sess.UserID)
			if err != nil {
				// A stale cookie is an anonymous caller, not a fault.
				if !errors.Is(err, domain.ErrNotFound) {
					zap.L().Error("session principal lookup", zap.Error(err))
				}
			} else {
				st.User = u
			}
		}

		next.ServeHTTP(w, r.WithContext(reqstate.WithState(r.Context(), st)))
	})
}

// RescueBoundary wraps downstream stages in the last-resort handler.
func (p *Pipeline) RescueBoundary(next http.Handler) http.Handler {
	return p.Rescue.Middleware(next)
}

// CSRFGuard verifies the anti-forgery token once per mutating request.
// Failures route through the rescue handler so the invalid-token
// condition gets its pinned 401 category and an error report.
func (p *Pipeline) CSRFGuard(next http.Handler) http.Handler {
	return csrf.Guard(func(w http.ResponseWriter, r *http.Request) {
		p.Rescue.HandleError(w, r, rescue.ErrInvalidCSRFToken)
	})(next)
}

// Protect resolves the request context, authorizes the given actions
// (any-match), and brackets the handler with telemetry.  Routes with no
// actions still get resolution and telemetry.
func (p *Pipeline) Protect(actions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := reqstate.FromContext(r.Context())

			if pk := p.Resolver.Resolve(r.Context(), st, mergedParams(r), r.URL.Path); pk != problem.None {
				p.renderResolveProblem(w, r, st, pk)
				return
			}

			if len(actions) > 0 && !p.Gate.Authorize(r.Context(), st, st.Context, st.User, actions...) {
				p.Gate.RenderUnauthorized(w, r, st)
				return
			}

			p.Recorder.Begin(st, r)
			if st.View != nil {
				w.Header().Set(respond.HeaderPageView, st.View.ID)
			}

			next.ServeHTTP(w, r)

			p.Recorder.Finalize(r.Context(), st)
		})
	}
}

// Feed authenticates an anonymous caller via the opaque feed code and
// installs the token-scoped context and effective principal.  This is
// the one path where the current user derives from the token, not the
// session.
func (p *Pipeline) Feed(allowed []domain.Kind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := reqstate.FromContext(r.Context())
			st.Format = reqstate.FormatFeed

			code := chi.URLParam(r, "feed_code")
			c, u, prob := p.Feeds.ResolveFeed(r.Context(), code, allowed)
			if prob != nil {
				// One body, one status, for every problem kind.
				respond.FeedProblemPage(w, prob.Message)
				return
			}

			st.SetContext(c, nil)
			if u != nil {
				st.User = u
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UpdatePageView is the follow-up callback merging interaction metrics
// into a previously issued page view.
func (p *Pipeline) UpdatePageView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "page_view_id")
	secs, _ := strconv.ParseFloat(r.FormValue("interaction_seconds"), 64)
	contributed := boolParam(r.FormValue("page_view_contributed"))

	err := p.Recorder.MergeFollowUp(r.Context(), id, secs, contributed)
	switch {
	case err == nil, errors.Is(err, telemetry.ErrViewFinalized):
		// A hand-finalized view suppresses the merge silently.
		respond.JSON(w, http.StatusOK, map[string]string{"page_view_id": id})
	case errors.Is(err, domain.ErrNotFound):
		respond.NoCache(w)
		respond.JSON(w, http.StatusNotFound, respond.ErrorBody{Status: "not_found"})
	default:
		p.Rescue.HandleError(w, r, err)
	}
}

// renderResolveProblem converts a resolution problem into a response at
// the point of detection.
func (p *Pipeline) renderResolveProblem(w http.ResponseWriter, r *http.Request, st *reqstate.State, pk problem.Kind) {
	respond.NoCache(w)

	loginable := pk == problem.LoginRequired ||
		(pk == problem.ContextRequired && st.User == nil)
	if loginable && st.Format == reqstate.FormatPage && p.Gate.LoginURL != "" {
		http.Redirect(w, r, p.Gate.LoginURL, http.StatusFound)
		return
	}

	switch st.Format {
	case reqstate.FormatJSON, reqstate.FormatText:
		respond.JSON(w, http.StatusNotFound, respond.ErrorBody{
			Status:  "not_found",
			Message: "The specified resource does not exist.",
		})
	default:
		respond.ErrorPage(w, http.StatusNotFound, "")
	}
}

// mergedParams overlays chi route params onto the query string so the
// resolver sees one parameter set.  Query values win; route wildcards
// are skipped.
func mergedParams(r *http.Request) url.Values {
	q := r.URL.Query()
	if rc := chi.RouteContext(r.Context()); rc != nil {
		for i, k := range rc.URLParams.Keys {
			if k == "*" || q.Get(k) != "" {
				continue
			}
			q.Set(k, rc.URLParams.Values[i])
		}
	}
	return q
}

func boolParam(v string) bool {
	return v == "1" || v == "true"
}
