// internal/respond/page.go
//
// Browser-facing error and denial pages.
//
// Context
// -------
// Full theme rendering is the view layer's business; the pipeline only
// ever renders chrome-less status pages, so the templates live here as
// one parsed set.  Lookup mirrors the view engine's fallback rule: a
// status-specific template ("404") wins, the generic "500" template is
// the fallback for any status without its own.
package respond

import (
	"html/template"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// UnauthorizedData selects the explanation wording on the unauthorized
// page.  Exactly one of the booleans is set by the permission gate.
type UnauthorizedData struct {
	ContextType string // "Course", "Account", "Group", …
	ContextName string

	Unpublished bool       // context awaiting publication
	NotYet      bool       // enrollment is date-inactive
	StartsAt    *time.Time // shown with NotYet
}

const pageTemplates = `
{{define "unauthorized"}}<!DOCTYPE html>
<html><head><title>Unauthorized</title></head><body class="plain">
{{if .Unpublished}}<h1>This {{.ContextType}} Isn&rsquo;t Available Yet</h1>
<p>{{.ContextName}} has not been published by its owner.  Check back later,
or contact the owner for access.</p>
{{else if .NotYet}}<h1>You Can&rsquo;t Get In Yet</h1>
<p>Your membership in {{.ContextName}} starts
{{if .StartsAt}}on {{.StartsAt.Format "Jan 2, 2006"}}{{else}}later{{end}}.
Come back then.</p>
{{else}}<h1>Unauthorized</h1>
<p>You are not authorized to view this page.</p>
{{end}}</body></html>
{{end}}

{{define "feed_problem"}}<!DOCTYPE html>
<html><head><title>Feed Unavailable</title></head><body class="plain">
<h1>Feed Unavailable</h1>
<p>{{.Message}}</p>
</body></html>
{{end}}

{{define "401"}}<!DOCTYPE html>
<html><head><title>Unauthorized</title></head><body class="plain">
<h1>Unauthorized</h1>
<p>You need to log in before you can view this page.</p>
{{if .ReportID}}<p class="report">Reference: {{.ReportID}}</p>{{end}}
</body></html>
{{end}}

{{define "404"}}<!DOCTYPE html>
<html><head><title>Page Not Found</title></head><body class="plain">
<h1>Page Not Found</h1>
<p>The page you were looking for doesn&rsquo;t exist, or you don&rsquo;t
have access to it.</p>
{{if .ReportID}}<p class="report">Reference: {{.ReportID}}</p>{{end}}
</body></html>
{{end}}

{{define "500"}}<!DOCTYPE html>
<html><head><title>Something Broke</title></head><body class="plain">
<h1>Something Broke</h1>
<p>An unexpected error occurred and has been reported.</p>
{{if .ReportID}}<p class="report">Reference: {{.ReportID}}</p>{{end}}
</body></html>
{{end}}
`

// FallbackPage is the static last-resort body served when template
// execution itself fails inside the rescue handler.
const FallbackPage = `<!DOCTYPE html>
<html><head><title>Error</title></head><body>
<h1>Something went wrong</h1>
<p>An unexpected error occurred.</p>
</body></html>
`

var pages = template.Must(template.New("pipeline").Parse(pageTemplates))

// ErrorPage renders the status-specific template, falling back to the
// generic 500 page when the status has no template of its own.  A render
// failure falls through to the static FallbackPage so the caller always
// gets a body.
func ErrorPage(w http.ResponseWriter, status int, reportID string) {
	name := strconv.Itoa(status)
	if pages.Lookup(name) == nil {
		name = "500"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	data := struct{ ReportID string }{reportID}
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		zap.L().Error("error page render", zap.String("template", name), zap.Error(err))
		_, _ = w.Write([]byte(FallbackPage))
	}
}

// UnauthorizedPage renders the chrome-less denial page.
func UnauthorizedPage(w http.ResponseWriter, data UnauthorizedData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	if err := pages.ExecuteTemplate(w, "unauthorized", data); err != nil {
		zap.L().Error("unauthorized page render", zap.Error(err))
		_, _ = w.Write([]byte(FallbackPage))
	}
}

// FeedProblemPage renders the single shared feed-problem body.  Every
// feed problem uses this template with HTTP 400 so the outer response
// shape never distinguishes a wrong token from a private or unpublished
// resource; only the message text varies.
func FeedProblemPage(w http.ResponseWriter, message string) {
	NoCache(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	data := struct{ Message string }{message}
	if err := pages.ExecuteTemplate(w, "feed_problem", data); err != nil {
		zap.L().Error("feed problem render", zap.Error(err))
		_, _ = w.Write([]byte(FallbackPage))
	}
}
