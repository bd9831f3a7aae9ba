// internal/domain/repos.go
//
// Collaborator interfaces.
//
// Context
// -------
// The pipeline treats persistence as an external collaborator: a lookup
// by id or token, a permission evaluation returning the set of granted
// actions, and an upsert for telemetry rows.  internal/store supplies the
// sqlx implementations; tests substitute small fakes.
package domain

import "context"

// PermissionSet maps action name to granted.  Computed per (context,
// user) pair and cached for one request only.
type PermissionSet map[string]bool

// Any reports whether at least one of the requested actions is granted.
func (p PermissionSet) Any(actions ...string) bool {
	for _, a := range actions {
		if p[a] {
			return true
		}
	}
	return false
}

// EntityFinder resolves context entities.
type EntityFinder interface {
	// Find returns the entity of the given kind and id, or ErrNotFound.
	Find(ctx context.Context, kind Kind, id uint64) (*Context, error)

	// FindByFeedToken returns the entity of the given kind whose feed
	// token matches.  The backing lookup may match loosely (collation);
	// callers must re-check exact equality.
	FindByFeedToken(ctx context.Context, kind Kind, token string) (*Context, error)

	// AccountAncestors returns the ancestor chain of an account ordered
	// root first, excluding the account itself.
	AccountAncestors(ctx context.Context, accountID uint64) ([]*Context, error)
}

// MembershipFinder resolves memberships and principals.
type MembershipFinder interface {
	// EnrollmentByFeedToken returns the course enrollment bound to the
	// token, or ErrNotFound.  Exact string equality.
	EnrollmentByFeedToken(ctx context.Context, token string) (*Membership, error)

	// GroupMembershipByFeedToken is the group-side twin.
	GroupMembershipByFeedToken(ctx context.Context, token string) (*Membership, error)

	// BestMembership returns the lowest-rank non-deleted membership of
	// user in the given context, or ErrNotFound.
	BestMembership(ctx context.Context, userID uint64, kind Kind, contextID uint64) (*Membership, error)

	// UserByID returns the principal, or ErrNotFound.
	UserByID(ctx context.Context, id uint64) (*User, error)
}

// PermissionEvaluator computes the granted action set for a principal
// against an entity.  userID zero means anonymous.
type PermissionEvaluator interface {
	Evaluate(ctx context.Context, obj *Context, userID uint64) (PermissionSet, error)
}

// PageViewStore persists page views.
type PageViewStore interface {
	Insert(ctx context.Context, v *PageView) error
	Find(ctx context.Context, id string) (*PageView, error)
	UpdateInteraction(ctx context.Context, id string, interactionSeconds float64, contributed bool) error
}

// AssetAccessStore persists the per-(user, asset) counters.
type AssetAccessStore interface {
	// LookupOrCreate returns the existing counter or a fresh one with
	// ViewCount zero.  The storage layer guarantees at-least
	// lookup-or-create atomicity.
	LookupOrCreate(ctx context.Context, userID uint64, assetCode string) (*AssetAccess, error)
	Save(ctx context.Context, a *AssetAccess) error
}

// ErrorReportStore persists write-once error reports.
type ErrorReportStore interface {
	Insert(ctx context.Context, r *ErrorReport) error
}
