// internal/reqstate/state.go
//
// Per-request pipeline state.
//
// Context
// -------
// Every pipeline stage reads and writes one *State allocated fresh at
// request entry and discarded at exit.  Nothing in here may survive a
// request: the resolved context, the permission cache, the breadcrumb
// trail, and the pending page view are all hard-scoped to one request.
// Cross-request reuse of any of these would be a correctness bug, not a
// missed optimization.
//
// Notes
// -----
// • State is mutated only by the goroutine serving the request, so no
//   locking is needed.
// • Oxford commas, two spaces after periods.
package reqstate

import (
	"time"

	"github.com/campushq/campus/internal/domain"
)

// Format is the negotiated response representation.  It governs response
// shape in the permission gate and the rescue handler.
type Format int

const (
	FormatPage   Format = iota // full browser page
	FormatJSON                 // API
	FormatText                 // XHR / plain-text
	FormatExport               // archive/export download
	FormatFeed                 // raw data feed (atom/ics)
)

var formatNames = [...]string{
	FormatPage:   "page",
	FormatJSON:   "json",
	FormatText:   "text",
	FormatExport: "export",
	FormatFeed:   "feed",
}

func (f Format) String() string {
	if int(f) < 0 || int(f) >= len(formatNames) {
		return "page"
	}
	return formatNames[f]
}

// Crumb is one breadcrumb entry.  An ellipsis marker has an empty Href.
type Crumb struct {
	Label string
	Href  string
}

// permKey scopes a cached permission set to one (context, user) pair.
type permKey struct {
	kind   domain.Kind
	id     uint64
	userID uint64
}

// State is the per-request aggregate threaded through every stage.
// The session cookie is consumed once at entry to load the principal;
// downstream stages only ever see User.
type State struct {
	Format Format
	User   *domain.User // authenticated principal; nil when anonymous

	// Resolved context.  Set exactly once; SetContext ignores repeats so
	// resolution stays idempotent.
	Context     *domain.Context
	ContextType string // derived tag for downstream formatting
	Membership  *domain.Membership

	// Context list modifiers from the query string.
	OnlyContexts    map[domain.Kind]map[uint64]bool
	IncludeContexts []string

	Crumbs []Crumb

	// Pending telemetry.  View is created at most once per request and
	// persisted at most once, after the downstream handler.
	View        *domain.PageView
	ViewDirty   bool
	Access      *domain.AssetAccess
	AccessDirty bool
	RenderStart time.Time

	perms map[permKey]domain.PermissionSet
}

// New allocates fresh per-request state.
func New() *State {
	return &State{RenderStart: time.Now()}
}

// UserID returns the acting principal's id, or zero for anonymous.
func (s *State) UserID() uint64 {
	if s.User == nil {
		return 0
	}
	return s.User.ID
}

// SetContext records the resolved context and its type tag.  Repeat calls
// are ignored so the first resolution wins for the request lifetime.
func (s *State) SetContext(c *domain.Context, m *domain.Membership) {
	if s.Context != nil {
		return
	}
	s.Context = c
	s.ContextType = c.Kind.String()
	s.Membership = m
}

// AddCrumb appends one breadcrumb entry.
func (s *State) AddCrumb(label, href string) {
	s.Crumbs = append(s.Crumbs, Crumb{Label: label, Href: href})
}

// ClearCrumbs drops the accumulated trail.  Unauthorized pages render
// without navigation chrome.
func (s *State) ClearCrumbs() { s.Crumbs = nil }

// CachedPermissions returns the per-request permission set for the pair,
// if present.
func (s *State) CachedPermissions(c *domain.Context, userID uint64) (domain.PermissionSet, bool) {
	if s.perms == nil {
		return nil, false
	}
	set, ok := s.perms[permKey{c.Kind, c.ID, userID}]
	return set, ok
}

// StorePermissions caches the evaluated set for the pair.  Entries are
// keyed by (kind, id, user) so two pairs can never share a set within
// one request.
func (s *State) StorePermissions(c *domain.Context, userID uint64, set domain.PermissionSet) {
	if s.perms == nil {
		s.perms = make(map[permKey]domain.PermissionSet, 2)
	}
	s.perms[permKey{c.Kind, c.ID, userID}] = set
}

// ContextAllowed applies the only_contexts allow-list.  An absent list
// allows everything.
func (s *State) ContextAllowed(kind domain.Kind, id uint64) bool {
	if s.OnlyContexts == nil {
		return true
	}
	ids, ok := s.OnlyContexts[kind]
	if !ok {
		return false
	}
	return ids[id]
}
