// internal/respond/format.go
//
// Representation negotiation.
//
// Context
// -------
// The pipeline distinguishes four caller protocols: full browser page,
// JSON API, plain-text/XHR, and archive/export download, plus the raw
// feed representation used by the token-feed endpoints.  The negotiated
// Format is fixed once at request entry and governs response shape in
// the permission gate and the rescue handler.
package respond

import (
	"net/http"
	"path"
	"strings"

	"github.com/campushq/campus/internal/reqstate"
)

// Negotiate picks the response representation for r.  Precedence: the
// explicit path extension, then the API path prefix, then the XHR
// marker, then the Accept header.  Browsers send broad Accept values,
// so the page format is the fallback, never a match.
func Negotiate(r *http.Request) reqstate.Format {
	switch strings.ToLower(path.Ext(r.URL.Path)) {
	case ".json":
		return reqstate.FormatJSON
	case ".atom", ".ics":
		return reqstate.FormatFeed
	case ".zip", ".imscc":
		return reqstate.FormatExport
	case ".txt":
		return reqstate.FormatText
	}

	if strings.HasPrefix(r.URL.Path, "/api/") {
		return reqstate.FormatJSON
	}
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return reqstate.FormatText
	}

	accept := r.Header.Get("Accept")
	switch {
	case strings.Contains(accept, "application/json"):
		return reqstate.FormatJSON
	case strings.Contains(accept, "application/atom+xml"),
		strings.Contains(accept, "text/calendar"):
		return reqstate.FormatFeed
	case strings.Contains(accept, "text/plain"):
		return reqstate.FormatText
	}
	return reqstate.FormatPage
}
