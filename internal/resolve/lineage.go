// internal/resolve/lineage.go
//
// Account lineage breadcrumbs.
//
// A non-root account context carries the chain of ancestor accounts the
// principal may read.  Long chains are trimmed for display: at three or
// more links the middle collapses into a single ellipsis marker and only
// the first and final entries stay visible.  The trim is presentational
// but deterministic, and part of the public contract.
package resolve

import (
	"context"

	"go.uber.org/zap"

	"github.com/campushq/campus/internal/domain"
	"github.com/campushq/campus/internal/reqstate"
)

// Ellipsis is the collapsed-lineage marker label.
const Ellipsis = "…"

// addBreadcrumbs appends the lineage trail (accounts only) and then the
// resolved context itself.
func (rv *Resolver) addBreadcrumbs(ctx context.Context, st *reqstate.State, c *domain.Context) {
	if c.Kind == domain.KindAccount && !c.IsRootAccount() {
		for _, crumb := range rv.lineage(ctx, st, c) {
			st.Crumbs = append(st.Crumbs, crumb)
		}
	}
	st.AddCrumb(c.Name, crumbHref(c))
}

// lineage returns the trimmed, readable ancestor trail for an account.
func (rv *Resolver) lineage(ctx context.Context, st *reqstate.State, c *domain.Context) []reqstate.Crumb {
	chain, err := rv.Entities.AccountAncestors(ctx, c.ID)
	if err != nil {
		// Lineage is presentational; never fail resolution over it.
		zap.L().Warn("account lineage lookup", zap.Uint64("account", c.ID), zap.Error(err))
		return nil
	}

	readable := make([]reqstate.Crumb, 0, len(chain))
	for _, a := range chain {
		if rv.Perms != nil && !rv.Perms.Any(ctx, st, a, "read") {
			continue
		}
		readable = append(readable, reqstate.Crumb{Label: a.Name, Href: crumbHref(a)})
	}
	return TrimLineage(readable)
}

// TrimLineage collapses the middle of a chain of three or more entries
// into one ellipsis marker, keeping the first and final entries.
// Shorter chains pass through untouched.
func TrimLineage(crumbs []reqstate.Crumb) []reqstate.Crumb {
	if len(crumbs) < 3 {
		return crumbs
	}
	return []reqstate.Crumb{
		crumbs[0],
		{Label: Ellipsis},
		crumbs[len(crumbs)-1],
	}
}
