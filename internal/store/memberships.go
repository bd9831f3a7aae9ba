// internal/store/memberships.go
//
// Membership and principal lookups.
//
// Enrollments and group memberships live in separate tables but share
// one row shape here.  Feed-token lookups re-check byte equality after
// the indexed query because the column collation may fold case; a loose
// match must look exactly like no match.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campushq/campus/internal/domain"
)

// Memberships implements domain.MembershipFinder against sqlx.
type Memberships struct {
	db *sqlx.DB
}

// NewMemberships wraps the pool.
func NewMemberships(db *sqlx.DB) *Memberships {
	return &Memberships{db: db}
}

type membershipRow struct {
	ID        uint64       `db:"id"`
	UserID    uint64       `db:"user_id"`
	ContextID uint64       `db:"context_id"`
	State     string       `db:"workflow_state"`
	Rank      int          `db:"rank"`
	StartsAt  sql.NullTime `db:"starts_at"`
	FeedToken string       `db:"feed_token"`
}

func (r *membershipRow) toDomain(kind domain.Kind) *domain.Membership {
	m := &domain.Membership{
		ID:          r.ID,
		UserID:      r.UserID,
		ContextKind: kind,
		ContextID:   r.ContextID,
		State:       domain.ParseMembershipState(r.State),
		Rank:        r.Rank,
		FeedToken:   r.FeedToken,
	}
	if r.StartsAt.Valid {
		t := r.StartsAt.Time
		m.StartsAt = &t
	}
	return m
}

const enrollmentByTokenQ = `
	SELECT id, user_id, course_id AS context_id, workflow_state,
	       rank, starts_at, feed_token
	  FROM enrollments
	 WHERE feed_token = ?
	 LIMIT 1`

const groupMembershipByTokenQ = `
	SELECT id, user_id, group_id AS context_id, workflow_state,
	       rank, starts_at, feed_token
	  FROM group_memberships
	 WHERE feed_token = ?
	 LIMIT 1`

// EnrollmentByFeedToken returns the enrollment bound to token.  Exact
// string equality is required for a match.
func (m *Memberships) EnrollmentByFeedToken(ctx context.Context, token string) (*domain.Membership, error) {
	return m.byToken(ctx, enrollmentByTokenQ, domain.KindCourse, token)
}

// GroupMembershipByFeedToken is the group-side twin.
func (m *Memberships) GroupMembershipByFeedToken(ctx context.Context, token string) (*domain.Membership, error) {
	return m.byToken(ctx, groupMembershipByTokenQ, domain.KindGroup, token)
}

func (m *Memberships) byToken(ctx context.Context, q string, kind domain.Kind, token string) (*domain.Membership, error) {
	if token == "" {
		return nil, domain.ErrNotFound
	}
	var row membershipRow
	if err := m.db.GetContext(ctx, &row, q, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("store: membership by token: %w", err)
	}
	// Collation may have folded case; only a byte-exact token is a match.
	if row.FeedToken != token {
		return nil, domain.ErrNotFound
	}
	return row.toDomain(kind), nil
}

// BestMembership returns the lowest-rank non-deleted membership of user
// in the given context, or domain.ErrNotFound.  Only course and group
// contexts carry memberships.
func (m *Memberships) BestMembership(ctx context.Context, userID uint64, kind domain.Kind, contextID uint64) (*domain.Membership, error) {
	var q string
	switch kind {
	case domain.KindCourse:
		q = `SELECT id, user_id, course_id AS context_id, workflow_state,
		            rank, starts_at, feed_token
		       FROM enrollments
		      WHERE user_id = ? AND course_id = ?
		        AND workflow_state <> 'deleted'
		      ORDER BY rank
		      LIMIT 1`
	case domain.KindGroup:
		q = `SELECT id, user_id, group_id AS context_id, workflow_state,
		            rank, starts_at, feed_token
		       FROM group_memberships
		      WHERE user_id = ? AND group_id = ?
		        AND workflow_state <> 'deleted'
		      ORDER BY rank
		      LIMIT 1`
	default:
		return nil, domain.ErrNotFound
	}

	var row membershipRow
	if err := m.db.GetContext(ctx, &row, q, userID, contextID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("store: best membership: %w", err)
	}
	return row.toDomain(kind), nil
}

// UserByID returns the principal, or domain.ErrNotFound.
func (m *Memberships) UserByID(ctx context.Context, id uint64) (*domain.User, error) {
	const q = `SELECT id, name FROM users WHERE id = ? LIMIT 1`

	var u domain.User
	if err := m.db.GetContext(ctx, &u, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("store: user %d: %w", id, err)
	}
	return &u, nil
}
