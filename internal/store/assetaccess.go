// internal/store/assetaccess.go
//
// Asset-access counters keyed by (user id, asset code).
//
// LookupOrCreate leans on a unique index over (user_id, asset_code): a
// concurrent insert race loses to the index and falls back to the read,
// which gives the at-least lookup-or-create atomicity the recorder
// assumes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campushq/campus/internal/domain"
)

// AssetAccesses implements domain.AssetAccessStore against sqlx.
type AssetAccesses struct {
	db *sqlx.DB
}

// NewAssetAccesses wraps the pool.
func NewAssetAccesses(db *sqlx.DB) *AssetAccesses {
	return &AssetAccesses{db: db}
}

type assetAccessRow struct {
	ID         uint64    `db:"id"`
	UserID     uint64    `db:"user_id"`
	AssetCode  string    `db:"asset_code"`
	Category   string    `db:"category"`
	Level      string    `db:"access_level"`
	ViewCount  int       `db:"view_count"`
	LastAccess time.Time `db:"last_access"`
}

const findAccessQ = `
	SELECT id, user_id, asset_code, category, access_level,
	       view_count, last_access
	  FROM asset_user_accesses
	 WHERE user_id = ? AND asset_code = ?
	 LIMIT 1`

const insertAccessQ = `
	INSERT INTO asset_user_accesses
	       (user_id, asset_code, category, access_level, view_count, last_access)
	VALUES (?, ?, '', 'view', 0, ?)`

// LookupOrCreate returns the existing counter or inserts a fresh one.
func (a *AssetAccesses) LookupOrCreate(ctx context.Context, userID uint64, assetCode string) (*domain.AssetAccess, error) {
	row, err := a.find(ctx, userID, assetCode)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	res, err := a.db.ExecContext(ctx, insertAccessQ, userID, assetCode, time.Now())
	if err != nil {
		// Unique-index race: another request created the row first.
		if row, ferr := a.find(ctx, userID, assetCode); ferr == nil {
			return row, nil
		}
		return nil, fmt.Errorf("store: create asset access: %w", err)
	}

	id, _ := res.LastInsertId()
	return &domain.AssetAccess{
		ID:        uint64(id),
		UserID:    userID,
		AssetCode: assetCode,
		Level:     domain.LevelView,
	}, nil
}

func (a *AssetAccesses) find(ctx context.Context, userID uint64, assetCode string) (*domain.AssetAccess, error) {
	var row assetAccessRow
	if err := a.db.GetContext(ctx, &row, findAccessQ, userID, assetCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("store: find asset access: %w", err)
	}
	return &domain.AssetAccess{
		ID:         row.ID,
		UserID:     row.UserID,
		AssetCode:  row.AssetCode,
		Category:   row.Category,
		Level:      domain.ParseAccessLevel(row.Level),
		ViewCount:  row.ViewCount,
		LastAccess: row.LastAccess,
	}, nil
}

const saveAccessQ = `
	UPDATE asset_user_accesses
	   SET view_count = ?, access_level = ?, category = ?, last_access = ?
	 WHERE id = ?`

// Save writes the escalated counter back.
func (a *AssetAccesses) Save(ctx context.Context, acc *domain.AssetAccess) error {
	_, err := a.db.ExecContext(ctx, saveAccessQ,
		acc.ViewCount, acc.Level.String(), acc.Category, acc.LastAccess, acc.ID)
	if err != nil {
		return fmt.Errorf("store: save asset access %d: %w", acc.ID, err)
	}
	return nil
}
