// internal/feed/feed_test.go
//
// Unit-tests for token-feed resolution.
//
// Context
// -------
// The fakes mirror the store interfaces with injectable rows.  The
// critical behaviours:
//
//   • group_membership codes split on the THIRD underscore segment
//   • enrollment tokens yield both context and acting principal
//   • an unpublished course is a problem even with a valid token
//   • private-vs-mismatched tokens yield different kinds but the caller
//     renders them identically (same 400 shape)
//   • the allowed-kind filter downgrades to invalid parameters

package feed

import (
	"context"
	"testing"

	"github.com/campushq/campus/internal/domain"
	"github.com/campushq/campus/internal/problem"
)

type entityKey struct {
	kind domain.Kind
	id   uint64
}

type fakeEntities struct {
	rows    map[entityKey]*domain.Context
	byToken map[string]*domain.Context
}

func (f *fakeEntities) Find(_ context.Context, kind domain.Kind, id uint64) (*domain.Context, error) {
	if c, ok := f.rows[entityKey{kind, id}]; ok {
		return c, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeEntities) FindByFeedToken(_ context.Context, kind domain.Kind, token string) (*domain.Context, error) {
	if c, ok := f.byToken[token]; ok && c.Kind == kind {
		return c, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeEntities) AccountAncestors(context.Context, uint64) ([]*domain.Context, error) {
	return nil, nil
}

type fakeMembers struct {
	enrollments map[string]*domain.Membership
	groups      map[string]*domain.Membership
	users       map[uint64]*domain.User
}

func (f *fakeMembers) EnrollmentByFeedToken(_ context.Context, token string) (*domain.Membership, error) {
	if m, ok := f.enrollments[token]; ok {
		return m, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeMembers) GroupMembershipByFeedToken(_ context.Context, token string) (*domain.Membership, error) {
	if m, ok := f.groups[token]; ok {
		return m, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeMembers) BestMembership(context.Context, uint64, domain.Kind, uint64) (*domain.Membership, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeMembers) UserByID(_ context.Context, id uint64) (*domain.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func TestSplitCode(t *testing.T) {
	cases := []struct {
		code, kind, token string
	}{
		{"enrollment_abc123", "enrollment", "abc123"},
		{"course_Xy9", "course", "Xy9"},
		{"group_membership_tok_with_underscores", "group_membership", "tok_with_underscores"},
		{"group_membership_", "group_membership", ""},
		{"group_membership", "group_membership", ""},
		{"user_abc", "user", "abc"},
		{"noseparator", "noseparator", ""},
	}
	for _, c := range cases {
		kind, token := SplitCode(c.code)
		if kind != c.kind || token != c.token {
			t.Errorf("SplitCode(%q) = (%q, %q), want (%q, %q)",
				c.code, kind, token, c.kind, c.token)
		}
	}
}

func newFeedResolver() *Resolver {
	return &Resolver{
		Entities: &fakeEntities{
			rows: map[entityKey]*domain.Context{
				{domain.KindCourse, 5}: {Kind: domain.KindCourse, ID: 5, Name: "Bio", Published: true},
				{domain.KindCourse, 6}: {Kind: domain.KindCourse, ID: 6, Name: "Draft", Published: false},
			},
			byToken: map[string]*domain.Context{
				"pubTok":  {Kind: domain.KindCourse, ID: 9, Published: true, Public: true, FeedToken: "pubTok"},
				"privTok": {Kind: domain.KindCourse, ID: 10, Published: true, Public: false, FeedToken: "PRIVTOK"},
				"userTok": {Kind: domain.KindUser, ID: 7, Public: true, FeedToken: "userTok"},
			},
		},
		Members: &fakeMembers{
			enrollments: map[string]*domain.Membership{
				"tok1": {ID: 1, UserID: 7, ContextKind: domain.KindCourse, ContextID: 5, FeedToken: "tok1"},
				"tok6": {ID: 2, UserID: 7, ContextKind: domain.KindCourse, ContextID: 6, FeedToken: "tok6"},
			},
			users: map[uint64]*domain.User{7: {ID: 7, Name: "Tester"}},
		},
	}
}

func TestResolveFeed_Enrollment(t *testing.T) {
	rv := newFeedResolver()

	c, u, prob := rv.ResolveFeed(context.Background(), "enrollment_tok1", nil)
	if prob != nil {
		t.Fatalf("problem = %+v, want nil", prob)
	}
	if c == nil || c.ID != 5 {
		t.Fatalf("context = %+v, want course 5", c)
	}
	if u == nil || u.ID != 7 {
		t.Fatalf("principal = %+v, want user 7", u)
	}
}

func TestResolveFeed_UnpublishedCourse(t *testing.T) {
	rv := newFeedResolver()

	_, _, prob := rv.ResolveFeed(context.Background(), "enrollment_tok6", nil)
	if prob == nil || prob.Kind != problem.FeedUnpublished {
		t.Fatalf("problem = %+v, want FeedUnpublished", prob)
	}
}

func TestResolveFeed_WrongToken(t *testing.T) {
	rv := newFeedResolver()

	_, _, prob := rv.ResolveFeed(context.Background(), "enrollment_bogus", nil)
	if prob == nil || prob.Kind != problem.FeedMismatchedToken {
		t.Fatalf("problem = %+v, want FeedMismatchedToken", prob)
	}
}

func TestResolveFeed_EntityToken(t *testing.T) {
	rv := newFeedResolver()

	c, u, prob := rv.ResolveFeed(context.Background(), "course_pubTok", nil)
	if prob != nil {
		t.Fatalf("problem = %+v, want nil", prob)
	}
	if c.ID != 9 {
		t.Fatalf("context = %+v, want course 9", c)
	}
	if u != nil {
		t.Fatalf("entity tokens must not yield a principal, got %+v", u)
	}
}

func TestResolveFeed_PrivateCollationMiss(t *testing.T) {
	// The store matched "privTok" case-insensitively, but the stored token
	// is "PRIVTOK"; for a private course the byte mismatch is a private
	// feed, not a grant.
	rv := newFeedResolver()

	_, _, prob := rv.ResolveFeed(context.Background(), "course_privTok", nil)
	if prob == nil || prob.Kind != problem.FeedPrivate {
		t.Fatalf("problem = %+v, want FeedPrivate", prob)
	}
}

func TestResolveFeed_ProblemsShareWireShape(t *testing.T) {
	rv := newFeedResolver()

	_, _, p1 := rv.ResolveFeed(context.Background(), "course_privTok", nil)
	_, _, p2 := rv.ResolveFeed(context.Background(), "course_nope", nil)
	if p1 == nil || p2 == nil {
		t.Fatal("expected problems for both codes")
	}
	if p1.Kind == p2.Kind {
		t.Fatalf("kinds should differ: %v vs %v", p1.Kind, p2.Kind)
	}
	if p1.Message == "" || p2.Message == "" {
		t.Fatal("problem messages must be non-empty")
	}
}

func TestResolveFeed_UnknownKind(t *testing.T) {
	rv := newFeedResolver()

	_, _, prob := rv.ResolveFeed(context.Background(), "widget_tok", nil)
	if prob == nil || prob.Kind != problem.FeedInvalidToken {
		t.Fatalf("problem = %+v, want FeedInvalidToken", prob)
	}
}

func TestResolveFeed_KindFilter(t *testing.T) {
	rv := newFeedResolver()

	// A user token hitting a course-only feed is invalid parameters.
	_, _, prob := rv.ResolveFeed(context.Background(), "user_userTok",
		[]domain.Kind{domain.KindCourse, domain.KindGroup})
	if prob == nil || prob.Kind != problem.FeedInvalidParameters {
		t.Fatalf("problem = %+v, want FeedInvalidParameters", prob)
	}

	// The same token passes when users are allowed.
	c, _, prob2 := rv.ResolveFeed(context.Background(), "user_userTok",
		[]domain.Kind{domain.KindUser})
	if prob2 != nil || c == nil || c.Kind != domain.KindUser {
		t.Fatalf("context = %+v, problem = %+v; want user context", c, prob2)
	}
}
