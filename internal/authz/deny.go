// internal/authz/deny.go
//
// Denial rendering, per negotiated representation.
//
// Browser pages suppress navigational chrome, clear the breadcrumb
// trail, and pick a context-specific explanation.  Export callers are
// redirected to the same URL so the download retries cleanly after
// authentication.  API callers get a structured payload and never HTML.
// Every denial response is uncacheable.
package authz

import (
	"net/http"
	"time"

	"github.com/campushq/campus/internal/domain"
	"github.com/campushq/campus/internal/metrics"
	"github.com/campushq/campus/internal/reqstate"
	"github.com/campushq/campus/internal/respond"
)

// RenderUnauthorized writes the denial response for the request.
func (g *Gate) RenderUnauthorized(w http.ResponseWriter, r *http.Request, st *reqstate.State) {
	respond.NoCache(w)
	metrics.AuthzDenialsTotal.Inc()

	switch st.Format {
	case reqstate.FormatJSON:
		respond.JSON(w, http.StatusUnauthorized, respond.ErrorBody{
			Status:  "unauthorized",
			Message: "user not authorized to perform that action",
			Errors: []respond.ErrorMessage{
				{Message: "user not authorized to perform that action"},
			},
		})

	case reqstate.FormatExport:
		// Idempotent retry after the caller authenticates.
		http.Redirect(w, r, r.URL.String(), http.StatusFound)

	case reqstate.FormatText:
		respond.JSON(w, http.StatusUnauthorized, respond.ErrorBody{
			Status: "unauthorized",
		})

	default:
		// Anonymous browsers get a chance to log in before we give up.
		if st.User == nil && g.LoginURL != "" {
			http.Redirect(w, r, g.LoginURL, http.StatusFound)
			return
		}
		st.ClearCrumbs()
		respond.UnauthorizedPage(w, g.denialData(st))
	}
}

// denialData selects the explanation wording: unpublished context,
// membership not started yet (with the computed start date), or the
// generic message.
func (g *Gate) denialData(st *reqstate.State) respond.UnauthorizedData {
	data := respond.UnauthorizedData{}
	if st.Context == nil {
		return data
	}
	data.ContextType = st.ContextType
	data.ContextName = st.Context.Name

	switch {
	case st.Context.Kind == domain.KindCourse && !st.Context.Published,
		st.Context.Kind == domain.KindAccount && !st.Context.Published,
		st.Context.Kind == domain.KindGroup && !st.Context.Published:
		data.Unpublished = true

	case st.Membership.DateInactive(time.Now()):
		data.NotYet = true
		data.StartsAt = st.Membership.StartsAt
	}
	return data
}
