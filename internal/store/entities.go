// internal/store/entities.go
//
// Entity lookups for context resolution.
//
// Context
// -------
// Each context variant maps to one table.  The tables share a common
// column shape, so the per-kind queries are generated from a small spec
// and scanned into one row struct; columns a table lacks are selected as
// constants.  Account rows additionally feed the ancestor-chain lookup
// used for breadcrumb lineage, which goes through a read-through cache
// (expirable LRU + singleflight) because ancestor accounts are immutable
// for the life of the process and shared across requests.
//
// Notes
// -----
// • Request-scoped state is never cached here; only global entity rows.
// • Oxford commas, two spaces after periods.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/singleflight"

	"github.com/campushq/campus/internal/domain"
)

const (
	accountCacheSize = 1024
	accountCacheTTL  = 5 * time.Minute
)

// tableSpec describes the column shape of one entity table.
type tableSpec struct {
	table      string
	hasParent  bool // parent_account_id column (accounts only)
	hasStarts  bool // starts_at column (courses, sections)
	hasCourse  bool // course_id column (sections only)
	plainUsers bool // users table carries no availability columns
}

var specs = map[domain.Kind]tableSpec{
	domain.KindCourse:         {table: "courses", hasStarts: true},
	domain.KindAccount:        {table: "accounts", hasParent: true},
	domain.KindGroup:          {table: "groups"},
	domain.KindUser:           {table: "users", plainUsers: true},
	domain.KindCourseSection:  {table: "course_sections", hasStarts: true, hasCourse: true},
	domain.KindCollectionItem: {table: "collection_items"},
}

// entityRow is the shared scan target.
type entityRow struct {
	ID              uint64         `db:"id"`
	Name            string         `db:"name"`
	Published       bool           `db:"published"`
	Public          bool           `db:"is_public"`
	FeedToken       sql.NullString `db:"feed_token"`
	RootAccountID   sql.NullInt64  `db:"root_account_id"`
	ParentAccountID sql.NullInt64  `db:"parent_account_id"`
	CourseID        sql.NullInt64  `db:"course_id"`
	StartsAt        sql.NullTime   `db:"starts_at"`
}

func (s tableSpec) columns() string {
	cols := "id, name, published, is_public, feed_token, root_account_id"
	if s.plainUsers {
		cols = "id, name, TRUE AS published, FALSE AS is_public, " +
			"NULL AS feed_token, NULL AS root_account_id"
	}
	if s.hasParent {
		cols += ", parent_account_id"
	} else {
		cols += ", NULL AS parent_account_id"
	}
	if s.hasCourse {
		cols += ", course_id"
	} else {
		cols += ", NULL AS course_id"
	}
	if s.hasStarts {
		cols += ", starts_at"
	} else {
		cols += ", NULL AS starts_at"
	}
	return cols
}

func (r *entityRow) toDomain(kind domain.Kind) *domain.Context {
	c := &domain.Context{
		Kind:            kind,
		ID:              r.ID,
		Name:            r.Name,
		Published:       r.Published,
		Public:          r.Public,
		FeedToken:       r.FeedToken.String,
		RootAccountID:   uint64(r.RootAccountID.Int64),
		ParentAccountID: uint64(r.ParentAccountID.Int64),
		ParentCourseID:  uint64(r.CourseID.Int64),
	}
	if r.StartsAt.Valid {
		t := r.StartsAt.Time
		c.StartsAt = &t
	}
	return c
}

// Entities implements domain.EntityFinder against sqlx.
type Entities struct {
	db       *sqlx.DB
	accounts *lru.LRU[uint64, *domain.Context]
	sfg      singleflight.Group
}

// NewEntities wraps the pool and allocates the account cache.
func NewEntities(db *sqlx.DB) *Entities {
	return &Entities{
		db:       db,
		accounts: lru.NewLRU[uint64, *domain.Context](accountCacheSize, nil, accountCacheTTL),
	}
}

// Find returns the entity of the given kind and id, or domain.ErrNotFound.
func (e *Entities) Find(ctx context.Context, kind domain.Kind, id uint64) (*domain.Context, error) {
	spec, ok := specs[kind]
	if !ok {
		return nil, domain.ErrNotFound
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = ? LIMIT 1", spec.columns(), spec.table)

	var row entityRow
	if err := e.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("store: find %s %d: %w", kind, id, err)
	}
	return row.toDomain(kind), nil
}

// FindByFeedToken returns the entity of the given kind whose feed token
// matches.  MySQL string comparison follows the column collation, which
// may be case-insensitive; callers must re-check byte equality before
// trusting the match.
func (e *Entities) FindByFeedToken(ctx context.Context, kind domain.Kind, token string) (*domain.Context, error) {
	spec, ok := specs[kind]
	if !ok || spec.plainUsers {
		return nil, domain.ErrNotFound
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE feed_token = ? LIMIT 1", spec.columns(), spec.table)

	var row entityRow
	if err := e.db.GetContext(ctx, &row, q, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("store: find %s by token: %w", kind, err)
	}
	return row.toDomain(kind), nil
}

// AccountAncestors returns the ancestor chain of accountID ordered root
// first, excluding the account itself.  A broken link (missing parent)
// truncates the chain rather than failing the request.
func (e *Entities) AccountAncestors(ctx context.Context, accountID uint64) ([]*domain.Context, error) {
	acct, err := e.account(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var chain []*domain.Context
	for parent := acct.ParentAccountID; parent != 0; {
		a, err := e.account(ctx, parent)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				break
			}
			return nil, err
		}
		chain = append([]*domain.Context{a}, chain...)
		parent = a.ParentAccountID
	}
	return chain, nil
}

// account is the cached account lookup.  Concurrent misses for the same
// id collapse behind one query via singleflight.
func (e *Entities) account(ctx context.Context, id uint64) (*domain.Context, error) {
	if a, ok := e.accounts.Get(id); ok {
		return a, nil
	}

	v, err, _ := e.sfg.Do(fmt.Sprintf("account:%d", id), func() (interface{}, error) {
		if a, ok := e.accounts.Get(id); ok {
			return a, nil
		}
		a, err := e.Find(ctx, domain.KindAccount, id)
		if err != nil {
			return nil, err
		}
		e.accounts.Add(id, a)
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Context), nil
}
