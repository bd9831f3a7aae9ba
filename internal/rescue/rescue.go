// internal/rescue/rescue.go
//
// Centralized error rescue: the sole last-resort boundary.
//
// Context
// -------
// Expected pipeline problems are converted to responses where they are
// detected; only genuinely unexpected faults land here, either as a
// recovered panic from the wrapped chain or as an explicit HandleError
// call (the CSRF guard uses the latter).  Handling is a short state
// machine: build the report, classify the status, respond per the
// negotiated representation.  If responding itself blows up, a static
// fallback page goes out and one more report is attempted outside the
// normal path.  Nothing ever propagates past this handler.
package rescue

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushq/campus/internal/domain"
	"github.com/campushq/campus/internal/metrics"
	"github.com/campushq/campus/internal/reqstate"
	"github.com/campushq/campus/internal/respond"
)

// Handler is the rescue boundary.
type Handler struct {
	Reports domain.ErrorReportStore
}

// Middleware wraps the entire pipeline.  It must be the outermost stage
// after state allocation so every downstream panic lands here.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					// The server handles this one; re-raise.
					panic(v)
				}
				h.HandleError(w, r, toError(v))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// HandleError converts err into a response.  BuildReport runs exactly
// once per observed error on the normal path, and once more if the
// respond step itself fails.
func (h *Handler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	st := reqstate.FromContext(r.Context())
	status, category := Classify(err)

	rep := h.buildReport(r, st, category, err)

	defer func() {
		if v := recover(); v != nil {
			zap.L().Error("rescue respond failed", zap.Any("panic", v))
			respond.NoCache(w)
			_, _ = w.Write([]byte(respond.FallbackPage))
			h.buildReport(r, st, "error", fmt.Errorf("rescue respond: %v", v))
		}
	}()
	h.respond(w, r, st, status, category, rep.ID)
}

// respond branches on the negotiated representation.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, st *reqstate.State, status int, category, reportID string) {
	respond.NoCache(w)

	format := reqstate.FormatPage
	if st != nil {
		format = st.Format
	}

	switch format {
	case reqstate.FormatJSON:
		if category == "invalid_access_token" {
			w.Header().Set(respond.HeaderChallenge, respond.ChallengeValue)
		}
		respond.JSON(w, status, respond.ErrorBody{
			Status:        category,
			Message:       publicMessage(category),
			ErrorReportID: reportID,
			Errors: []respond.ErrorMessage{
				{Message: publicMessage(category)},
			},
		})

	case reqstate.FormatText:
		respond.JSON(w, status, respond.ErrorBody{
			Status:        category,
			ErrorReportID: reportID,
		})

	default:
		respond.ErrorPage(w, status, reportID)
	}
}

// buildReport persists one write-once error report and returns it.  A
// failing insert is logged and swallowed; report building must never
// raise.
func (h *Handler) buildReport(r *http.Request, st *reqstate.State, category string, err error) *domain.ErrorReport {
	rep := &domain.ErrorReport{
		ID:        uuid.NewString(),
		Category:  category,
		Message:   err.Error(),
		URL:       r.URL.String(),
		UserAgent: r.UserAgent(),
		Method:    r.Method,
		CreatedAt: time.Now(),
	}
	if st != nil {
		rep.Format = st.Format.String()
		rep.UserID = st.UserID()
		if st.Context != nil {
			rep.AccountID = st.Context.RootAccountID
			if st.Context.Kind == domain.KindAccount && rep.AccountID == 0 {
				rep.AccountID = st.Context.ID
			}
		}
	}

	zap.L().Error("request failed",
		zap.String("report", rep.ID),
		zap.String("category", category),
		zap.String("url", rep.URL),
		zap.Error(err),
	)

	if h.Reports != nil {
		if ierr := h.Reports.Insert(r.Context(), rep); ierr != nil {
			zap.L().Error("error report insert", zap.String("report", rep.ID), zap.Error(ierr))
		}
	}
	metrics.ErrorReportsTotal.Inc()
	return rep
}

// toError normalizes recovered panic values.
func toError(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", v)
}
