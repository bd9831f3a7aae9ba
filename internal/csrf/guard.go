// internal/csrf/guard.go
//
// CSRF enforcement middleware.
//
// The guard runs once per request, strictly before context or feed
// resolution.  Safe methods pass through; session-mutating methods must
// carry a valid token in the X-CSRF-Token header or the
// authenticity_token form field.  Verified mutating requests also get a
// refreshed token in the response header so single-page clients can
// rotate without a page load.
package csrf

import (
	"net/http"

	"go.uber.org/zap"
)

// headerName doubles as the inbound carrier and the refresh header.
const headerName = "X-CSRF-Token"

// formField is the conventional hidden-input name.
const formField = "authenticity_token"

// Guard enforces the token on mutating methods.  onFail owns the
// failure response (the rescue handler, in production wiring).
func Guard(onFail func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			tok := r.Header.Get(headerName)
			if tok == "" {
				tok = r.PostFormValue(formField)
			}
			if !VerifyToken(tok) {
				onFail(w, r)
				return
			}

			// Refresh after any session-mutating action.
			if fresh, err := GenerateToken(); err == nil {
				w.Header().Set(headerName, fresh)
			} else {
				zap.L().Error("csrf token refresh", zap.Error(err))
			}

			next.ServeHTTP(w, r)
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	return true
}
