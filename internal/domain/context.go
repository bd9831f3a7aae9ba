// internal/domain/context.go
//
// Context variants and the resolved-context aggregate.
//
// Context
// -------
// Every request concerns exactly one domain entity, the "context": a
// course, an account, a group, a user, a course section, or a collection
// item.  Rather than scattering type switches across callers, the variant
// is a closed Kind enum and resolution happens in one switch inside
// internal/resolve.  Adding a new variant means extending Kind, the table
// map in internal/store, and that single switch.
//
// Notes
// -----
// • Context values are read-only snapshots of persistent rows.  The
//   pipeline never writes them back.
// • Oxford commas, two spaces after periods.
package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by finders when no matching row exists.
var ErrNotFound = errors.New("domain: entity not found")

// Kind enumerates the closed set of context variants.
type Kind int

const (
	KindCourse Kind = iota
	KindAccount
	KindGroup
	KindUser
	KindCourseSection
	KindCollectionItem
)

var kindNames = [...]string{
	KindCourse:         "Course",
	KindAccount:        "Account",
	KindGroup:          "Group",
	KindUser:           "User",
	KindCourseSection:  "CourseSection",
	KindCollectionItem: "CollectionItem",
}

// String returns the canonical tag, e.g. "Course".
func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(kindNames) {
		return "Unknown"
	}
	return kindNames[k]
}

// ParseKind maps a tag to its Kind.  Both the canonical form ("Course")
// and the snake_case wire form ("course", "course_section") are accepted.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.ReplaceAll(s, "_", "")) {
	case "course":
		return KindCourse, true
	case "account":
		return KindAccount, true
	case "group":
		return KindGroup, true
	case "user":
		return KindUser, true
	case "coursesection":
		return KindCourseSection, true
	case "collectionitem":
		return KindCollectionItem, true
	}
	return 0, false
}

// Context is the resolved entity a request concerns.  One value is
// resolved per request and cached on the request state; repeat resolution
// returns the same pointer without another lookup.
type Context struct {
	Kind      Kind
	ID        uint64
	Name      string
	Published bool // availability flag; false means unpublished/concluded
	Public    bool // visibility flag; false means private

	// Account lineage.  ParentAccountID is zero for root accounts and for
	// every non-account kind.  RootAccountID is carried on all kinds so
	// telemetry can attribute records without a second lookup.
	ParentAccountID uint64
	RootAccountID   uint64

	// ParentCourseID is set for course sections only.
	ParentCourseID uint64

	// FeedToken is the opaque per-entity token for anonymous feed access.
	// Empty when the entity has none.
	FeedToken string

	// StartsAt is set for courses and sections with a future start date.
	StartsAt *time.Time
}

// IsRootAccount reports whether c is an account with no parent.
func (c *Context) IsRootAccount() bool {
	return c.Kind == KindAccount && c.ParentAccountID == 0
}

// Same reports variant identity: equal kind and id.
func (c *Context) Same(other *Context) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Kind == other.Kind && c.ID == other.ID
}
