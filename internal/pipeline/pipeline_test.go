// internal/pipeline/pipeline_test.go
//
// End-to-end tests for the assembled middleware chain.
//
// Context
// -------
// These tests wire the real stages around map-backed fakes and drive
// whole requests through a chi router, asserting the externally visible
// contract: stage ordering, the correlation header, the login redirect,
// and the uniform feed-problem response.

package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/campushq/campus/internal/authz"
	"github.com/campushq/campus/internal/domain"
	"github.com/campushq/campus/internal/feed"
	"github.com/campushq/campus/internal/reqstate"
	"github.com/campushq/campus/internal/rescue"
	"github.com/campushq/campus/internal/resolve"
	"github.com/campushq/campus/internal/respond"
	"github.com/campushq/campus/internal/session"
	"github.com/campushq/campus/internal/telemetry"
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
	users map[uint64]*domain.User
}

func (f *fakeMembers) EnrollmentByFeedToken(context.Context, string) (*domain.Membership, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeMembers) GroupMembershipByFeedToken(context.Context, string) (*domain.Membership, error) {
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

type fakeEvaluator struct {
	set domain.PermissionSet
}

func (f *fakeEvaluator) Evaluate(context.Context, *domain.Context, uint64) (domain.PermissionSet, error) {
	return f.set, nil
}

type fakeViews struct {
	inserted []*domain.PageView
}

func (f *fakeViews) Insert(_ context.Context, v *domain.PageView) error {
	f.inserted = append(f.inserted, v)
	return nil
}

func (f *fakeViews) Find(context.Context, string) (*domain.PageView, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeViews) UpdateInteraction(context.Context, string, float64, bool) error {
	return domain.ErrNotFound
}

type fakeAccesses struct {
	saved []*domain.AssetAccess
}

func (f *fakeAccesses) LookupOrCreate(_ context.Context, userID uint64, code string) (*domain.AssetAccess, error) {
	return &domain.AssetAccess{ID: 1, UserID: userID, AssetCode: code}, nil
}

func (f *fakeAccesses) Save(_ context.Context, a *domain.AssetAccess) error {
	f.saved = append(f.saved, a)
	return nil
}

type fakeReports struct {
	rows []*domain.ErrorReport
}

func (f *fakeReports) Insert(_ context.Context, r *domain.ErrorReport) error {
	f.rows = append(f.rows, r)
	return nil
}

func testPipeline() (*Pipeline, *fakeViews, *fakeReports) {
	ents := &fakeEntities{
		rows: map[entityKey]*domain.Context{
			{domain.KindCourse, 5}: {
				Kind: domain.KindCourse, ID: 5, Name: "Bio",
				Published: true, RootAccountID: 1,
			},
		},
		byToken: map[string]*domain.Context{
			"tokPub": {Kind: domain.KindCourse, ID: 5, Name: "Bio",
				Published: true, Public: true, FeedToken: "tokPub"},
		},
	}
	members := &fakeMembers{users: map[uint64]*domain.User{7: {ID: 7, Name: "Tester"}}}
	gate := &authz.Gate{
		Evaluator: &fakeEvaluator{set: domain.PermissionSet{"read": true}},
		LoginURL:  "/login",
	}
	views := &fakeViews{}
	reports := &fakeReports{}

	return &Pipeline{
		Resolver: &resolve.Resolver{Entities: ents, Members: members, Perms: gate},
		Feeds:    &feed.Resolver{Entities: ents, Members: members},
		Gate:     gate,
		Recorder: &telemetry.Recorder{Views: views, Accesses: &fakeAccesses{}, Enabled: true},
		Rescue:   &rescue.Handler{Reports: reports},
		Members:  members,
	}, views, reports
}

func testRouter(p *Pipeline) chi.Router {
	r := chi.NewRouter()
	r.Use(p.Entry, p.RescueBoundary, p.CSRFGuard)
	r.With(p.Protect("read")).Get("/courses/{course_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.With(p.Feed([]domain.Kind{domain.KindCourse})).
		Get("/feeds/calendars/{feed_code}.ics", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	r.Put("/page_views/{page_view_id}", p.UpdatePageView)
	return r
}

func loginCookie(t *testing.T, userID uint64) *http.Cookie {
	t.Helper()
	rr := httptest.NewRecorder()
	session.Login(rr, httptest.NewRequest(http.MethodPost, "/login", nil), userID)
	return rr.Result().Cookies()[0]
}

func browserGet(t *testing.T, target string, authed bool) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, target, nil)
	r.Header.Set("User-Agent",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36")
	if authed {
		r.AddCookie(loginCookie(t, 7))
	}
	return r
}

func TestChain_AuthorizedRequestGetsViewHeader(t *testing.T) {
	p, views, _ := testPipeline()
	router := testRouter(p)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, browserGet(t, "/courses/5", true))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	id := rr.Header().Get(respond.HeaderPageView)
	if id == "" {
		t.Fatal("correlation header missing")
	}
	if len(views.inserted) != 1 || views.inserted[0].ID != id {
		t.Fatalf("persisted views = %+v, want one with id %q", views.inserted, id)
	}
}

func TestChain_AnonymousPrivateCourseRedirectsToLogin(t *testing.T) {
	p, _, _ := testPipeline()
	router := testRouter(p)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, browserGet(t, "/courses/5", false))

	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/login" {
		t.Fatalf("status/Location = %d/%q, want 302 /login",
			rr.Code, rr.Header().Get("Location"))
	}
}

func TestChain_DeniedActionRendersUnauthorized(t *testing.T) {
	p, views, _ := testPipeline()
	p.Gate.Evaluator = &fakeEvaluator{set: domain.PermissionSet{}} // no grants
	router := testRouter(p)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, browserGet(t, "/courses/5", true))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if len(views.inserted) != 0 {
		t.Fatal("denied requests must not persist page views")
	}
}

func TestChain_MissingCourseIs404(t *testing.T) {
	p, _, _ := testPipeline()
	router := testRouter(p)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, browserGet(t, "/courses/404", true))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestChain_FeedTokenServesAnonymously(t *testing.T) {
	p, _, _ := testPipeline()
	router := testRouter(p)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet,
		"/feeds/calendars/course_tokPub.ics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 without any session", rr.Code)
	}
}

func TestChain_FeedProblemIsUniform400(t *testing.T) {
	p, _, _ := testPipeline()
	router := testRouter(p)

	for _, code := range []string{"course_wrong", "widget_x", "enrollment_nope"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet,
			"/feeds/calendars/"+code+".ics", nil))

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("code %q: status = %d, want 400", code, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "Feed Unavailable") {
			t.Fatalf("code %q: body lacks the shared template", code)
		}
	}
}

func TestChain_FileRouteSavesAssetAccess(t *testing.T) {
	p, _, _ := testPipeline()

	r := chi.NewRouter()
	r.Use(p.Entry, p.RescueBoundary, p.CSRFGuard)
	r.With(p.Protect("read")).Get("/courses/{course_id}/files/{file_id}",
		func(w http.ResponseWriter, r *http.Request) {
			st := reqstate.FromContext(r.Context())
			p.Recorder.RecordAssetAccess(r.Context(), st,
				"course_5:file_9", "files", domain.LevelView)
			w.WriteHeader(http.StatusOK)
		})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, browserGet(t, "/courses/5/files/9", true))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	fa := p.Recorder.Accesses.(*fakeAccesses)
	if len(fa.saved) != 1 || fa.saved[0].AssetCode != "course_5:file_9" {
		t.Fatalf("saved accesses = %+v, want one for course_5:file_9", fa.saved)
	}
	if fa.saved[0].ViewCount != 1 {
		t.Fatalf("ViewCount = %d, want 1", fa.saved[0].ViewCount)
	}
}

func TestChain_CSRFFailureGoesThroughRescue(t *testing.T) {
	p, _, reports := testPipeline()
	router := testRouter(p)

	form := url.Values{"name": {"x"}}
	req := httptest.NewRequest(http.MethodPut, "/page_views/abc",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if len(reports.rows) != 1 || reports.rows[0].Category != "invalid_authenticity_token" {
		t.Fatalf("reports = %+v, want one invalid_authenticity_token", reports.rows)
	}
}

func TestChain_PanicIsRescued(t *testing.T) {
	p, _, reports := testPipeline()

	r := chi.NewRouter()
	r.Use(p.Entry, p.RescueBoundary)
	r.Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, browserGet(t, "/boom", false))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if len(reports.rows) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports.rows))
	}
}
