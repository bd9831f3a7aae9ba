// internal/telemetry/recorder.go
//
// Page-view and asset-access instrumentation.
//
// Context
// -------
// Two independently gated sub-behaviors share one recorder:
//
//   - Page views.  Created only when telemetry is enabled and the
//     request is a human, non-XHR GET from an authenticated principal,
//     or an API request explicitly flagged as a user request.  The view
//     id is minted up front so the correlation header can be written
//     before the handler streams its body; the row itself is persisted
//     once, after the handler, and only if something changed.
//
//   - Asset accesses.  A (user, asset code) counter touched by handlers;
//     the access level escalates within one event but never regresses.
//
// Telemetry must never fail the request: every persistence or clock
// fault here is logged and swallowed.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushq/campus/internal/domain"
	"github.com/campushq/campus/internal/metrics"
	"github.com/campushq/campus/internal/reqstate"
	"github.com/campushq/campus/internal/ua"
)

// ErrViewFinalized marks a follow-up against a hand-generated view; the
// merge is suppressed, not an error the caller should surface.
var ErrViewFinalized = errors.New("telemetry: page view already finalized by hand")

// Recorder tracks page views and asset accesses for one deployment.
// Per-request mutable state lives on reqstate.State, never here.
type Recorder struct {
	Views    domain.PageViewStore
	Accesses domain.AssetAccessStore
	Geo      *Geo
	Enabled  bool
}

// Begin decides whether this request earns a page view and, if so,
// creates the pending record on the request state.  Must run before the
// downstream handler so the correlation header can be set.
func (rec *Recorder) Begin(st *reqstate.State, r *http.Request) {
	if !rec.Enabled || st.User == nil {
		return
	}

	apiRequest := isAPIUserRequest(r)
	info := ua.Parse(r.UserAgent())

	if !apiRequest {
		human := r.Method == http.MethodGet &&
			!isXHR(r) &&
			!info.IsBot
		if !human {
			return
		}
	}

	st.View = &domain.PageView{
		ID:              uuid.NewString(),
		UserID:          st.User.ID,
		URL:             r.URL.String(),
		GeneratedByHand: apiRequest,
		UserAgent:       info.Summary(),
		Country:         rec.Geo.Country(clientIP(r)),
		CreatedAt:       time.Now(),
	}
	st.ViewDirty = true
	st.RenderStart = st.View.CreatedAt
}

// RecordAssetAccess touches the (user, asset) counter for the current
// request.  The level defaults to view; participate and submit escalate
// the counter and mark the pending page view as participated.  All
// faults are swallowed.
func (rec *Recorder) RecordAssetAccess(ctx context.Context, st *reqstate.State, assetCode, category string, level domain.AccessLevel) {
	if st.User == nil || st.Context == nil || assetCode == "" {
		return
	}

	acc := st.Access
	if acc == nil || acc.AssetCode != assetCode {
		var err error
		acc, err = rec.Accesses.LookupOrCreate(ctx, st.User.ID, assetCode)
		if err != nil {
			zap.L().Error("asset access lookup", zap.String("asset", assetCode), zap.Error(err))
			return
		}
		st.Access = acc
	}

	acc.Escalate(level)
	acc.ViewCount++
	acc.LastAccess = time.Now()
	if category != "" {
		acc.Category = category
	}
	st.AccessDirty = true

	if st.View != nil {
		// The flag follows the escalated level, so a later view-level
		// touch never demotes a participated view.
		st.View.Participated = acc.Level.Participatory()
		st.View.AssetAccessID = acc.ID
		st.ViewDirty = true
	}
}

// Finalize persists the pending telemetry exactly once, after the
// downstream handler.  A view that no longer qualifies (telemetry
// disabled mid-flight, principal gone) is discarded, never persisted.
func (rec *Recorder) Finalize(ctx context.Context, st *reqstate.State) {
	if st.Access != nil && st.AccessDirty {
		if err := rec.Accesses.Save(ctx, st.Access); err != nil {
			zap.L().Error("asset access save", zap.Error(err))
		} else {
			metrics.AssetAccessesTotal.Inc()
		}
		st.AccessDirty = false
	}

	if st.View == nil || !st.ViewDirty {
		return
	}
	if !rec.Enabled || st.User == nil {
		st.View = nil
		st.ViewDirty = false
		return
	}

	// Render time is the delta between the pre-render timestamp captured
	// at creation and now.  A zero or backwards clock yields zero.
	if !st.RenderStart.IsZero() {
		if d := time.Since(st.RenderStart); d > 0 {
			st.View.RenderTime = d
		}
	}

	if st.Context != nil {
		st.View.AccountID = st.Context.RootAccountID
		if st.Context.Kind == domain.KindAccount && st.View.AccountID == 0 {
			st.View.AccountID = st.Context.ID
		}
		if st.View.ContextID == 0 {
			st.View.ContextKind = st.Context.Kind
			st.View.ContextID = st.Context.ID
		}
	}

	if err := rec.Views.Insert(ctx, st.View); err != nil {
		zap.L().Error("page view insert", zap.String("id", st.View.ID), zap.Error(err))
	} else {
		metrics.PageViewsTotal.Inc()
	}
	st.ViewDirty = false
}

// MergeFollowUp amends a previously issued view with the client's async
// interaction metrics.  Views created by hand are final; the merge is
// suppressed for them.
func (rec *Recorder) MergeFollowUp(ctx context.Context, viewID string, interactionSeconds float64, contributed bool) error {
	v, err := rec.Views.Find(ctx, viewID)
	if err != nil {
		return err
	}
	if v.GeneratedByHand {
		return ErrViewFinalized
	}
	return rec.Views.UpdateInteraction(ctx, viewID, interactionSeconds, contributed)
}

// isAPIUserRequest reports the explicit "this is a user request" flag an
// API client may send.
func isAPIUserRequest(r *http.Request) bool {
	switch r.URL.Query().Get("user_request") {
	case "1", "true":
		return true
	}
	return false
}

// isXHR recognizes the conventional XMLHttpRequest marker.
func isXHR(r *http.Request) bool {
	return r.Header.Get("X-Requested-With") == "XMLHttpRequest"
}
