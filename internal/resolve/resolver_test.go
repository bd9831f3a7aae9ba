// internal/resolve/resolver_test.go
//
// Unit-tests for context resolution.
//
// Context
// -------
// fakeEntities and fakeMembers are map-backed finders; allowAll satisfies
// Permitter so lineage filtering never interferes.  Each test drives
// Resolve with a crafted query/path pair and asserts the problem kind and
// the resulting request state.

package resolve

import (
	"context"
	"net/url"
	"testing"

	"github.com/campushq/campus/internal/domain"
	"github.com/campushq/campus/internal/problem"
	"github.com/campushq/campus/internal/reqstate"
)

type entityKey struct {
	kind domain.Kind
	id   uint64
}

// fakeEntities satisfies domain.EntityFinder with injectable rows.
type fakeEntities struct {
	rows      map[entityKey]*domain.Context
	ancestors map[uint64][]*domain.Context
	finds     int
}

func (f *fakeEntities) Find(_ context.Context, kind domain.Kind, id uint64) (*domain.Context, error) {
	f.finds++
	if c, ok := f.rows[entityKey{kind, id}]; ok {
		return c, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeEntities) FindByFeedToken(context.Context, domain.Kind, string) (*domain.Context, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeEntities) AccountAncestors(_ context.Context, id uint64) ([]*domain.Context, error) {
	return f.ancestors[id], nil
}

// fakeMembers satisfies domain.MembershipFinder.
type fakeMembers struct {
	memberships map[entityKey]*domain.Membership
}

func (f *fakeMembers) EnrollmentByFeedToken(context.Context, string) (*domain.Membership, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeMembers) GroupMembershipByFeedToken(context.Context, string) (*domain.Membership, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeMembers) BestMembership(_ context.Context, _ uint64, kind domain.Kind, id uint64) (*domain.Membership, error) {
	if m, ok := f.memberships[entityKey{kind, id}]; ok {
		return m, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeMembers) UserByID(_ context.Context, id uint64) (*domain.User, error) {
	return &domain.User{ID: id, Name: "user"}, nil
}

// allowAll grants every action.
type allowAll struct{}

func (allowAll) Any(context.Context, *reqstate.State, *domain.Context, ...string) bool {
	return true
}

func newResolver(ents *fakeEntities) *Resolver {
	return &Resolver{
		Entities: ents,
		Members:  &fakeMembers{},
		Perms:    allowAll{},
	}
}

func authedState() *reqstate.State {
	st := reqstate.New()
	st.User = &domain.User{ID: 7, Name: "Tester"}
	return st
}

func TestResolve_CourseBeatsAccount(t *testing.T) {
	ents := &fakeEntities{rows: map[entityKey]*domain.Context{
		{domain.KindCourse, 5}:  {Kind: domain.KindCourse, ID: 5, Name: "Bio", Published: true},
		{domain.KindAccount, 2}: {Kind: domain.KindAccount, ID: 2, Name: "Root"},
	}}
	rv := newResolver(ents)
	st := authedState()

	q := url.Values{"course_id": {"5"}, "account_id": {"2"}}
	if pk := rv.Resolve(context.Background(), st, q, "/courses/5"); pk != problem.None {
		t.Fatalf("problem = %v, want None", pk)
	}
	if st.Context == nil || st.Context.Kind != domain.KindCourse || st.Context.ID != 5 {
		t.Fatalf("resolved %+v, want course 5", st.Context)
	}
	if st.ContextType != "Course" {
		t.Fatalf("ContextType = %q, want Course", st.ContextType)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	ents := &fakeEntities{rows: map[entityKey]*domain.Context{
		{domain.KindCourse, 5}: {Kind: domain.KindCourse, ID: 5, Name: "Bio", Published: true},
	}}
	rv := newResolver(ents)
	st := authedState()
	q := url.Values{"course_id": {"5"}}

	rv.Resolve(context.Background(), st, q, "/courses/5")
	first := st.Context
	findsAfterFirst := ents.finds

	if pk := rv.Resolve(context.Background(), st, q, "/courses/5"); pk != problem.None {
		t.Fatalf("second resolve: problem = %v, want None", pk)
	}
	if st.Context != first {
		t.Fatalf("second resolve replaced the context")
	}
	if ents.finds != findsAfterFirst {
		t.Fatalf("second resolve hit the store: %d finds, want %d", ents.finds, findsAfterFirst)
	}
}

func TestResolve_AccountAliases(t *testing.T) {
	ents := &fakeEntities{rows: map[entityKey]*domain.Context{
		{domain.KindAccount, 1}: {Kind: domain.KindAccount, ID: 1, Name: "Site Admin"},
	}}
	rv := newResolver(ents)
	rv.Aliases = Aliases{SiteAdmin: 1}
	st := authedState()

	q := url.Values{"account_id": {"site_admin"}}
	if pk := rv.Resolve(context.Background(), st, q, "/accounts/site_admin"); pk != problem.None {
		t.Fatalf("problem = %v, want None", pk)
	}
	if st.Context.ID != 1 {
		t.Fatalf("resolved account %d, want 1", st.Context.ID)
	}
}

func TestResolve_UnknownAlias(t *testing.T) {
	rv := newResolver(&fakeEntities{})
	st := authedState()

	q := url.Values{"account_id": {"default"}} // alias table empty
	if pk := rv.Resolve(context.Background(), st, q, "/accounts/default"); pk != problem.ContextNotFound {
		t.Fatalf("problem = %v, want ContextNotFound", pk)
	}
}

func TestResolve_UserSelfAnonymous(t *testing.T) {
	rv := newResolver(&fakeEntities{})
	st := reqstate.New() // anonymous

	q := url.Values{"user_id": {"self"}}
	if pk := rv.Resolve(context.Background(), st, q, "/users/self"); pk != problem.LoginRequired {
		t.Fatalf("problem = %v, want LoginRequired", pk)
	}
}

func TestResolve_UserSelfAuthenticated(t *testing.T) {
	ents := &fakeEntities{rows: map[entityKey]*domain.Context{
		{domain.KindUser, 7}: {Kind: domain.KindUser, ID: 7, Name: "Tester", Public: false},
	}}
	rv := newResolver(ents)
	st := authedState()

	q := url.Values{"user_id": {"self"}}
	if pk := rv.Resolve(context.Background(), st, q, "/users/self"); pk != problem.None {
		t.Fatalf("problem = %v, want None", pk)
	}
	if st.Context.Kind != domain.KindUser || st.Context.ID != 7 {
		t.Fatalf("resolved %+v, want user 7", st.Context)
	}
}

func TestResolve_MissingEntity(t *testing.T) {
	rv := newResolver(&fakeEntities{})
	st := authedState()

	q := url.Values{"course_id": {"404"}}
	if pk := rv.Resolve(context.Background(), st, q, "/courses/404"); pk != problem.ContextNotFound {
		t.Fatalf("problem = %v, want ContextNotFound", pk)
	}
}

func TestResolve_AnonymousPrivateLooksMissing(t *testing.T) {
	ents := &fakeEntities{rows: map[entityKey]*domain.Context{
		{domain.KindCourse, 5}: {Kind: domain.KindCourse, ID: 5, Name: "Bio", Published: true, Public: false},
	}}
	rv := newResolver(ents)
	st := reqstate.New() // anonymous

	q := url.Values{"course_id": {"5"}}
	if pk := rv.Resolve(context.Background(), st, q, "/courses/5"); pk != problem.ContextRequired {
		t.Fatalf("problem = %v, want ContextRequired", pk)
	}
	if st.Context != nil {
		t.Fatalf("private context leaked to anonymous caller")
	}
}

func TestResolve_AnonymousPublicCourse(t *testing.T) {
	ents := &fakeEntities{rows: map[entityKey]*domain.Context{
		{domain.KindCourse, 5}: {Kind: domain.KindCourse, ID: 5, Name: "Open", Published: true, Public: true},
	}}
	rv := newResolver(ents)
	st := reqstate.New()

	q := url.Values{"course_id": {"5"}}
	if pk := rv.Resolve(context.Background(), st, q, "/courses/5"); pk != problem.None {
		t.Fatalf("problem = %v, want None", pk)
	}
}

func TestResolve_OnlyContextsFilter(t *testing.T) {
	ents := &fakeEntities{rows: map[entityKey]*domain.Context{
		{domain.KindCourse, 5}: {Kind: domain.KindCourse, ID: 5, Name: "Bio", Published: true},
	}}
	rv := newResolver(ents)
	st := authedState()

	q := url.Values{"course_id": {"5"}, "only_contexts": {"Group:9"}}
	if pk := rv.Resolve(context.Background(), st, q, "/courses/5"); pk != problem.ContextNotFound {
		t.Fatalf("problem = %v, want ContextNotFound", pk)
	}

	// A matching allow-list lets the same lookup through.
	st2 := authedState()
	q2 := url.Values{"course_id": {"5"}, "only_contexts": {"Course:5"}}
	if pk := rv.Resolve(context.Background(), st2, q2, "/courses/5"); pk != problem.None {
		t.Fatalf("problem = %v, want None", pk)
	}
}

func TestResolve_ProfileFallback(t *testing.T) {
	ents := &fakeEntities{rows: map[entityKey]*domain.Context{
		{domain.KindUser, 7}: {Kind: domain.KindUser, ID: 7, Name: "Tester"},
	}}
	rv := newResolver(ents)

	// Anonymous: /profile demands a login, not a bare missing-context.
	st := reqstate.New()
	if pk := rv.Resolve(context.Background(), st, url.Values{}, "/profile/settings"); pk != problem.LoginRequired {
		t.Fatalf("problem = %v, want LoginRequired", pk)
	}

	// Authenticated: the context defaults to the principal.
	st2 := authedState()
	if pk := rv.Resolve(context.Background(), st2, url.Values{}, "/profile/settings"); pk != problem.None {
		t.Fatalf("problem = %v, want None", pk)
	}
	if st2.Context.Kind != domain.KindUser || st2.Context.ID != 7 {
		t.Fatalf("resolved %+v, want user 7", st2.Context)
	}
}

func TestResolve_DashboardAnonymous(t *testing.T) {
	rv := newResolver(&fakeEntities{})
	st := reqstate.New()

	if pk := rv.Resolve(context.Background(), st, url.Values{}, "/calendar"); pk != problem.ContextRequired {
		t.Fatalf("problem = %v, want ContextRequired", pk)
	}
}

func TestResolve_RootPathExactMatchOnly(t *testing.T) {
	rv := newResolver(&fakeEntities{})
	st := reqstate.New()

	// "/quizzes" must not match the bare "/" fallback.
	if pk := rv.Resolve(context.Background(), st, url.Values{}, "/quizzes"); pk != problem.ContextRequired {
		t.Fatalf("problem = %v, want ContextRequired", pk)
	}
}

func TestResolve_MembershipLoaded(t *testing.T) {
	ents := &fakeEntities{rows: map[entityKey]*domain.Context{
		{domain.KindCourse, 5}: {Kind: domain.KindCourse, ID: 5, Name: "Bio", Published: true},
	}}
	rv := newResolver(ents)
	rv.Members = &fakeMembers{memberships: map[entityKey]*domain.Membership{
		{domain.KindCourse, 5}: {ID: 11, UserID: 7, ContextKind: domain.KindCourse, ContextID: 5},
	}}
	st := authedState()

	q := url.Values{"course_id": {"5"}}
	if pk := rv.Resolve(context.Background(), st, q, "/courses/5"); pk != problem.None {
		t.Fatalf("problem = %v, want None", pk)
	}
	if st.Membership == nil || st.Membership.ID != 11 {
		t.Fatalf("membership = %+v, want id 11", st.Membership)
	}
}
