// internal/domain/membership.go
//
// Membership: a principal's relationship to a context.
//
// Enrollments (course) and group memberships share one shape here because
// the pipeline only reads them: lifecycle state, rank for picking the
// best of several, an optional start date, and the feed token minted by
// the enrollment collaborator at creation time.
package domain

import "time"

// MembershipState is the lifecycle of a membership row.
type MembershipState int

const (
	MembershipActive MembershipState = iota
	MembershipInvited
	MembershipInactive
	MembershipCompleted
	MembershipDeleted
)

var stateNames = [...]string{
	MembershipActive:    "active",
	MembershipInvited:   "invited",
	MembershipInactive:  "inactive",
	MembershipCompleted: "completed",
	MembershipDeleted:   "deleted",
}

func (s MembershipState) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// ParseMembershipState maps the persisted string form back to the enum.
func ParseMembershipState(s string) MembershipState {
	for i, n := range stateNames {
		if n == s {
			return MembershipState(i)
		}
	}
	return MembershipDeleted
}

// Membership joins a user to a context.  Read-only to the pipeline.
type Membership struct {
	ID          uint64
	UserID      uint64
	ContextKind Kind
	ContextID   uint64
	State       MembershipState
	Rank        int // lower rank wins when several memberships exist
	StartsAt    *time.Time
	FeedToken   string
}

// DateInactive reports whether the membership has not started yet as of
// now.  The permission gate uses this to pick the "not started" denial
// wording with the computed start date.
func (m *Membership) DateInactive(now time.Time) bool {
	return m != nil && m.StartsAt != nil && m.StartsAt.After(now)
}

// User is the acting principal.  The pipeline never mutates users.
type User struct {
	ID   uint64
	Name string
}
