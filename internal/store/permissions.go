// internal/store/permissions.go
//
// Permission evaluation.
//
// Context
// -------
// Granted actions come from the principal's active memberships in the
// target context: each membership carries a role, and role_permissions
// maps roles to enabled actions.  The result is a plain action→bool set;
// caching it per request is the permission gate's business, never this
// layer's.
//
// Anonymous principals get read on public, published entities and
// nothing else.
package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campushq/campus/internal/domain"
)

// Permissions implements domain.PermissionEvaluator against sqlx.
type Permissions struct {
	db *sqlx.DB
}

// NewPermissions wraps the pool.
func NewPermissions(db *sqlx.DB) *Permissions {
	return &Permissions{db: db}
}

const coursePermsQ = `
	SELECT rp.action
	  FROM enrollments e
	  JOIN role_permissions rp ON rp.role = e.role
	 WHERE e.user_id = ? AND e.course_id = ?
	   AND e.workflow_state = 'active'
	   AND rp.enabled = TRUE`

const groupPermsQ = `
	SELECT rp.action
	  FROM group_memberships gm
	  JOIN role_permissions rp ON rp.role = gm.role
	 WHERE gm.user_id = ? AND gm.group_id = ?
	   AND gm.workflow_state = 'active'
	   AND rp.enabled = TRUE`

const accountPermsQ = `
	SELECT rp.action
	  FROM account_users au
	  JOIN role_permissions rp ON rp.role = au.role
	 WHERE au.user_id = ? AND au.account_id = ?
	   AND au.workflow_state = 'active'
	   AND rp.enabled = TRUE`

// Evaluate computes the granted action set for userID against obj.
func (p *Permissions) Evaluate(ctx context.Context, obj *domain.Context, userID uint64) (domain.PermissionSet, error) {
	if obj == nil {
		return domain.PermissionSet{}, nil
	}

	if userID == 0 {
		set := domain.PermissionSet{}
		if obj.Public && obj.Published {
			set["read"] = true
		}
		return set, nil
	}

	var q string
	switch obj.Kind {
	case domain.KindCourse, domain.KindCourseSection:
		q = coursePermsQ
	case domain.KindGroup:
		q = groupPermsQ
	case domain.KindAccount:
		q = accountPermsQ
	case domain.KindUser:
		// A user context grants everything to itself, nothing to others.
		set := domain.PermissionSet{}
		if obj.ID == userID {
			set["read"] = true
			set["update"] = true
			set["manage"] = true
		}
		return set, nil
	default:
		return domain.PermissionSet{}, nil
	}

	// Sections inherit their course's grants.
	contextID := obj.ID
	if obj.Kind == domain.KindCourseSection && obj.ParentCourseID != 0 {
		contextID = obj.ParentCourseID
	}

	rows, err := p.db.QueryContext(ctx, q, userID, contextID)
	if err != nil {
		return nil, fmt.Errorf("store: evaluate permissions: %w", err)
	}
	defer rows.Close()

	set := make(domain.PermissionSet, 8)
	for rows.Next() {
		var action string
		if err := rows.Scan(&action); err != nil {
			return nil, fmt.Errorf("store: scan permission: %w", err)
		}
		set[action] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: permission rows: %w", err)
	}

	// Public entities are readable regardless of membership.
	if obj.Public && obj.Published {
		set["read"] = true
	}
	return set, nil
}
