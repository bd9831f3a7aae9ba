// internal/store/pageviews.go
//
// Page-view persistence.
//
// A page view is written once after the downstream handler completes,
// then optionally amended by the client's follow-up callback.  The
// follow-up adds interaction time and the contributed flag onto the same
// row; it never creates a second record.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campushq/campus/internal/domain"
)

// PageViews implements domain.PageViewStore against sqlx.
type PageViews struct {
	db *sqlx.DB
}

// NewPageViews wraps the pool.
func NewPageViews(db *sqlx.DB) *PageViews {
	return &PageViews{db: db}
}

const insertPageViewQ = `
	INSERT INTO page_views
	       (id, user_id, context_type, context_id, account_id, url,
	        participated, render_time_ms, generated_by_hand,
	        interaction_seconds, contributed, user_agent, country,
	        asset_access_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Insert persists a freshly created page view.
func (p *PageViews) Insert(ctx context.Context, v *domain.PageView) error {
	_, err := p.db.ExecContext(ctx, insertPageViewQ,
		v.ID, v.UserID, v.ContextKind.String(), v.ContextID, v.AccountID,
		v.URL, v.Participated, v.RenderTime.Milliseconds(),
		v.GeneratedByHand, v.Interaction.Seconds(), v.Contributed,
		v.UserAgent, v.Country, v.AssetAccessID, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert page view %s: %w", v.ID, err)
	}
	return nil
}

type pageViewRow struct {
	ID              string  `db:"id"`
	UserID          uint64  `db:"user_id"`
	ContextType     string  `db:"context_type"`
	ContextID       uint64  `db:"context_id"`
	AccountID       uint64  `db:"account_id"`
	URL             string  `db:"url"`
	Participated    bool    `db:"participated"`
	GeneratedByHand bool    `db:"generated_by_hand"`
	Interaction     float64 `db:"interaction_seconds"`
	Contributed     bool    `db:"contributed"`
}

const findPageViewQ = `
	SELECT id, user_id, context_type, context_id, account_id, url,
	       participated, generated_by_hand, interaction_seconds, contributed
	  FROM page_views
	 WHERE id = ?
	 LIMIT 1`

// Find returns the persisted view, or domain.ErrNotFound.
func (p *PageViews) Find(ctx context.Context, id string) (*domain.PageView, error) {
	var row pageViewRow
	if err := p.db.GetContext(ctx, &row, findPageViewQ, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("store: find page view %s: %w", id, err)
	}

	kind, _ := domain.ParseKind(row.ContextType)
	return &domain.PageView{
		ID:              row.ID,
		UserID:          row.UserID,
		ContextKind:     kind,
		ContextID:       row.ContextID,
		AccountID:       row.AccountID,
		URL:             row.URL,
		Participated:    row.Participated,
		GeneratedByHand: row.GeneratedByHand,
		Contributed:     row.Contributed,
	}, nil
}

const updateInteractionQ = `
	UPDATE page_views
	   SET interaction_seconds = interaction_seconds + ?,
	       contributed = contributed OR ?
	 WHERE id = ?`

// UpdateInteraction merges the follow-up metrics onto the existing row.
func (p *PageViews) UpdateInteraction(ctx context.Context, id string, interactionSeconds float64, contributed bool) error {
	res, err := p.db.ExecContext(ctx, updateInteractionQ, interactionSeconds, contributed, id)
	if err != nil {
		return fmt.Errorf("store: update page view %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
