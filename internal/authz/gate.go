// internal/authz/gate.go
//
// Permission gate: evaluates and caches authorization decisions.
//
// Context
// -------
// Authorization is fail-closed.  Whatever goes wrong during evaluation —
// an error from the evaluator, a panic in a collaborator — the answer is
// denial, logged and counted, never a grant and never a propagated
// fault.
//
// The per-request permission cache is consulted only when the object is
// the request's resolved context AND the principal is the current
// authenticated user; any other (object, principal) pair bypasses the
// cache and evaluates directly.  Cache entries are keyed by (kind, id,
// user), so two pairs can never share a set within one request, and the
// cache itself dies with the request state.
package authz

import (
	"context"

	"go.uber.org/zap"

	"github.com/campushq/campus/internal/domain"
	"github.com/campushq/campus/internal/reqstate"
)

// Gate evaluates authorization decisions.
type Gate struct {
	Evaluator domain.PermissionEvaluator

	// LoginURL, when set, is the delegated-login redirect target offered
	// to unauthenticated browsers before the unauthorized page.
	LoginURL string
}

// Authorize reports whether principal may perform ANY of the requested
// actions on obj.  Nil obj or empty actions deny.
func (g *Gate) Authorize(ctx context.Context, st *reqstate.State, obj *domain.Context, principal *domain.User, actions ...string) (granted bool) {
	if obj == nil || len(actions) == 0 {
		return false
	}

	// Fail closed on any panic out of the evaluator or its collaborators.
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("authorize panic", zap.Any("panic", r),
				zap.Stringer("kind", obj.Kind), zap.Uint64("id", obj.ID))
			granted = false
		}
	}()

	var userID uint64
	if principal != nil {
		userID = principal.ID
	}

	set, ok := g.cachedSet(ctx, st, obj, principal, userID)
	if !ok {
		return false
	}
	return set.Any(actions...)
}

// Any adapts Authorize to the resolver's Permitter interface, acting for
// the request's current principal.
func (g *Gate) Any(ctx context.Context, st *reqstate.State, obj *domain.Context, actions ...string) bool {
	return g.Authorize(ctx, st, obj, st.User, actions...)
}

// cachedSet returns the permission set for (obj, principal), consulting
// the request cache only on the resolved-context/current-user fast path.
// ok is false when evaluation failed; the caller must deny.
func (g *Gate) cachedSet(ctx context.Context, st *reqstate.State, obj *domain.Context, principal *domain.User, userID uint64) (domain.PermissionSet, bool) {
	cacheable := st != nil &&
		obj.Same(st.Context) &&
		((principal == nil && st.User == nil) ||
			(principal != nil && st.User != nil && principal.ID == st.User.ID))

	if cacheable {
		if set, ok := st.CachedPermissions(obj, userID); ok {
			return set, true
		}
	}

	set, err := g.Evaluator.Evaluate(ctx, obj, userID)
	if err != nil {
		zap.L().Error("permission evaluation", zap.Error(err),
			zap.Stringer("kind", obj.Kind), zap.Uint64("id", obj.ID),
			zap.Uint64("user", userID))
		return nil, false
	}

	if cacheable {
		st.StorePermissions(obj, userID, set)
	}
	return set, true
}
