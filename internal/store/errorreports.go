// internal/store/errorreports.go
//
// Write-once error reports built by the rescue handler.
package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campushq/campus/internal/domain"
)

// ErrorReports implements domain.ErrorReportStore against sqlx.
type ErrorReports struct {
	db *sqlx.DB
}

// NewErrorReports wraps the pool.
func NewErrorReports(db *sqlx.DB) *ErrorReports {
	return &ErrorReports{db: db}
}

const insertReportQ = `
	INSERT INTO error_reports
	       (id, category, message, url, user_id, account_id,
	        user_agent, http_method, format, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Insert persists one report.  Reports are never updated.
func (e *ErrorReports) Insert(ctx context.Context, r *domain.ErrorReport) error {
	_, err := e.db.ExecContext(ctx, insertReportQ,
		r.ID, r.Category, r.Message, r.URL, r.UserID, r.AccountID,
		r.UserAgent, r.Method, r.Format, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert error report %s: %w", r.ID, err)
	}
	return nil
}
