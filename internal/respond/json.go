// internal/respond/json.go
//
// JSON envelopes for API and XHR callers.
package respond

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ErrorBody is the structured error payload for API callers.
type ErrorBody struct {
	Status        string         `json:"status"`
	Message       string         `json:"message,omitempty"`
	ErrorReportID string         `json:"error_report_id,omitempty"`
	Errors        []ErrorMessage `json:"errors,omitempty"`
}

// ErrorMessage is one human-readable entry inside ErrorBody.
type ErrorMessage struct {
	Message string `json:"message"`
}

// JSON writes v with the given status.  Encode failures are logged and
// swallowed; by the time encoding runs the status line is already on the
// wire and there is nothing better to send.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("respond json encode", zap.Error(err))
	}
}
