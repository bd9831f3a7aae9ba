// internal/resolve/resolver.go
//
// Context resolution.
//
// Context
// -------
// Exactly one domain entity is resolved per request, first-match-wins,
// against the parameter families in this priority: course_id, account_id
// (reserved aliases self, default, site_admin), group_id, user_id
// (reserved alias self), course_section_id, collection_item_id, then a
// set of path-prefix fallbacks that default the context to the current
// principal.  Resolution is idempotent: a second call on the same request
// state returns the cached context without another lookup.
//
// Reserved string tokens are resolved through an explicit alias table
// before the kind switch, never inline in the branches.
//
// Notes
// -----
// • Anonymous callers get a minimal visibility probe here: a private
//   entity behaves exactly like a missing one, so probers cannot
//   enumerate ids.  Authenticated callers always proceed to the
//   permission gate, which owns the rich denial wording.
// • Oxford commas, two spaces after periods.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/campushq/campus/internal/domain"
	"github.com/campushq/campus/internal/problem"
	"github.com/campushq/campus/internal/reqstate"
)

// Permitter answers "may this principal do any of these actions" without
// pulling the whole permission gate into the resolver.
type Permitter interface {
	Any(ctx context.Context, st *reqstate.State, obj *domain.Context, actions ...string) bool
}

// Aliases maps the reserved account tokens to concrete ids for this
// installation.
type Aliases struct {
	Self      uint64 // account_id=self
	Default   uint64 // account_id=default
	SiteAdmin uint64 // account_id=site_admin
}

// Resolve translates a reserved token or a numeric literal.  Unknown
// tokens resolve to (0, false).
func (a Aliases) Resolve(raw string) (uint64, bool) {
	switch raw {
	case "self":
		return a.Self, a.Self != 0
	case "default":
		return a.Default, a.Default != 0
	case "site_admin":
		return a.SiteAdmin, a.SiteAdmin != 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	return id, err == nil && id != 0
}

// pathFallbacks are tried in order when no id parameter matched.  The
// bare "/" entry is an exact match; the rest are prefixes.
var pathFallbacks = []string{
	"/profile",
	"/",
	"/dashboard/files",
	"/calendar",
	"/assignments",
	"/files",
}

// Resolver resolves the request context and its breadcrumb lineage.
type Resolver struct {
	Entities domain.EntityFinder
	Members  domain.MembershipFinder
	Perms    Permitter
	Aliases  Aliases
}

// Resolve populates st.Context, st.ContextType, st.Membership, and the
// breadcrumb trail from the query parameters and path.  The returned
// problem kind is None when a context was resolved, ContextNotFound when
// an explicit id parameter failed to resolve, ContextRequired when
// nothing matched, and LoginRequired under the /profile prefix (or for
// user_id=self without a session).
func (rv *Resolver) Resolve(ctx context.Context, st *reqstate.State, q url.Values, urlPath string) problem.Kind {
	if st.Context != nil {
		return problem.None
	}

	rv.parseContextFilters(st, q)

	type arm struct {
		param string
		kind  domain.Kind
	}
	arms := []arm{
		{"course_id", domain.KindCourse},
		{"account_id", domain.KindAccount},
		{"group_id", domain.KindGroup},
		{"user_id", domain.KindUser},
		{"course_section_id", domain.KindCourseSection},
		{"collection_item_id", domain.KindCollectionItem},
	}

	for _, a := range arms {
		raw := q.Get(a.param)
		if raw == "" {
			continue
		}
		id, pk := rv.resolveParam(st, a.kind, raw)
		if pk != problem.None {
			return pk
		}
		return rv.load(ctx, st, a.kind, id)
	}

	// Path-prefix fallbacks default the context to the current principal.
	for _, p := range pathFallbacks {
		if p == "/" {
			if urlPath != "/" {
				continue
			}
		} else if !strings.HasPrefix(urlPath, p) {
			continue
		}
		if st.User == nil {
			if p == "/profile" {
				return problem.LoginRequired
			}
			return problem.ContextRequired
		}
		return rv.load(ctx, st, domain.KindUser, st.User.ID)
	}

	return problem.ContextRequired
}

// resolveParam turns one raw parameter value into a concrete id,
// honouring the reserved alias tables.
func (rv *Resolver) resolveParam(st *reqstate.State, kind domain.Kind, raw string) (uint64, problem.Kind) {
	switch kind {
	case domain.KindAccount:
		id, ok := rv.Aliases.Resolve(raw)
		if !ok {
			return 0, problem.ContextNotFound
		}
		return id, problem.None
	case domain.KindUser:
		if raw == "self" {
			if st.User == nil {
				return 0, problem.LoginRequired
			}
			return st.User.ID, problem.None
		}
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, problem.ContextNotFound
	}
	return id, problem.None
}

// load fetches the entity, applies the allow-list and the anonymous
// visibility probe, and records context, membership, and breadcrumbs.
func (rv *Resolver) load(ctx context.Context, st *reqstate.State, kind domain.Kind, id uint64) problem.Kind {
	c, err := rv.Entities.Find(ctx, kind, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return problem.ContextNotFound
		}
		zap.L().Error("context lookup", zap.Stringer("kind", kind),
			zap.Uint64("id", id), zap.Error(err))
		return problem.ContextNotFound
	}

	if !st.ContextAllowed(c.Kind, c.ID) {
		return problem.ContextNotFound
	}

	// Anonymous probe: a private entity must be indistinguishable from a
	// missing one.  Authenticated callers go on to the permission gate.
	if st.User == nil && !c.Public {
		return problem.ContextRequired
	}

	var m *domain.Membership
	if st.User != nil && (kind == domain.KindCourse || kind == domain.KindGroup) {
		m, err = rv.Members.BestMembership(ctx, st.User.ID, kind, id)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			zap.L().Error("membership lookup", zap.Error(err))
		}
	}

	st.SetContext(c, m)
	rv.addBreadcrumbs(ctx, st, c)
	return problem.None
}

// parseContextFilters records only_contexts and include_contexts.  Both
// are idempotent per request: the first call wins.
func (rv *Resolver) parseContextFilters(st *reqstate.State, q url.Values) {
	if st.OnlyContexts == nil {
		if raw := q.Get("only_contexts"); raw != "" {
			st.OnlyContexts = parseOnlyContexts(raw)
		}
	}
	if st.IncludeContexts == nil {
		if raw := q.Get("include_contexts"); raw != "" {
			for _, ref := range strings.Split(raw, ",") {
				if ref = strings.TrimSpace(ref); ref != "" {
					st.IncludeContexts = append(st.IncludeContexts, ref)
				}
			}
		}
	}
}

// parseOnlyContexts parses "Course:123,Group:4" into the allow-list.
// Malformed pairs are dropped.
func parseOnlyContexts(raw string) map[domain.Kind]map[uint64]bool {
	out := make(map[domain.Kind]map[uint64]bool, 2)
	for _, pair := range strings.Split(raw, ",") {
		kindStr, idStr, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			continue
		}
		kind, ok := domain.ParseKind(kindStr)
		if !ok {
			continue
		}
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil || id == 0 {
			continue
		}
		if out[kind] == nil {
			out[kind] = make(map[uint64]bool, 4)
		}
		out[kind][id] = true
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// crumbHref builds the canonical path for a context entity.
func crumbHref(c *domain.Context) string {
	switch c.Kind {
	case domain.KindCourse:
		return fmt.Sprintf("/courses/%d", c.ID)
	case domain.KindAccount:
		return fmt.Sprintf("/accounts/%d", c.ID)
	case domain.KindGroup:
		return fmt.Sprintf("/groups/%d", c.ID)
	case domain.KindUser:
		return fmt.Sprintf("/users/%d", c.ID)
	case domain.KindCourseSection:
		return fmt.Sprintf("/sections/%d", c.ID)
	case domain.KindCollectionItem:
		return fmt.Sprintf("/collection_items/%d", c.ID)
	}
	return "/"
}
