// internal/rescue/classify.go
//
// Exception classification: error identity → HTTP status and a coarse
// machine-readable category.
//
// The invalid-CSRF condition gets its own 401 category, deliberately
// distinct from ordinary authorization denial so clients can tell "log
// in again" apart from "refresh the form".
package rescue

import (
	"errors"
	"net/http"

	"github.com/campushq/campus/internal/domain"
)

// Sentinels raised by upstream layers and classified here.  Anything
// else is an unclassified fault.
var (
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrInvalidCSRFToken   = errors.New("invalid authenticity token")
	ErrQuotaExceeded      = errors.New("storage quota exceeded")
)

// Classify maps an error to (status, category).
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrInvalidAccessToken):
		return http.StatusUnauthorized, "invalid_access_token"
	case errors.Is(err, ErrInvalidCSRFToken):
		return http.StatusUnauthorized, "invalid_authenticity_token"
	case errors.Is(err, ErrQuotaExceeded):
		return http.StatusForbidden, "quota_exceeded"
	}
	return http.StatusInternalServerError, "error"
}

// publicMessage is the human text sent to callers.  Internal error
// strings never leave the process; reports carry them instead.
func publicMessage(category string) string {
	switch category {
	case "not_found":
		return "The specified resource does not exist."
	case "invalid_access_token":
		return "Invalid access token."
	case "invalid_authenticity_token":
		return "Invalid authenticity token."
	case "quota_exceeded":
		return "Storage quota exceeded."
	}
	return "An unexpected error occurred."
}
