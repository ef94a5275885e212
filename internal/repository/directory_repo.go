package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"expensetracker/internal/model"
)

// DirectoryRepository 只读地查询组织成员 / 部门成员
type DirectoryRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewDirectoryRepository(db *pgxpool.Pool, logger *zap.Logger) *DirectoryRepository {
	return &DirectoryRepository{db: db, logger: logger}
}

// ListMembersByRole returns the user ids of members holding role. The role
// column may be a comma-separated list, so LIKE narrows and MembershipRoles
// does the exact match.
func (r *DirectoryRepository) ListMembersByRole(ctx context.Context, orgID string, role model.Role) ([]string, error) {
	defer observe("select", "member", time.Now())

	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidRole, role)
	}

	rows, err := r.db.Query(ctx, `
        SELECT user_id, role
        FROM member
        WHERE organization_id = $1 AND role LIKE '%' || $2 || '%'
    `, orgID, string(role))
	if err != nil {
		return nil, fmt.Errorf("list members by role: %w", err)
	}
	defer rows.Close()

	userIDs := []string{}
	for rows.Next() {
		var userID, column string
		if err := rows.Scan(&userID, &column); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		roles, _ := model.MembershipRoles(column)
		for _, held := range roles {
			if held == role {
				userIDs = append(userIDs, userID)
				break
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list members by role: %w", err)
	}
	return userIDs, nil
}

// ListDepartmentMembers 部门成员（仍是组织成员的）
func (r *DirectoryRepository) ListDepartmentMembers(ctx context.Context, orgID, departmentID string) ([]string, error) {
	defer observe("select", "department_members", time.Now())

	if uuid.Validate(departmentID) != nil {
		return []string{}, nil
	}

	rows, err := r.db.Query(ctx, `
        SELECT DISTINCT dm.user_id
        FROM department_members dm
        JOIN member m ON m.user_id = dm.user_id AND m.organization_id = dm.org_id
        WHERE dm.org_id = $1 AND dm.department_id = $2
    `, orgID, departmentID)
	if err != nil {
		return nil, fmt.Errorf("list department members: %w", err)
	}
	defer rows.Close()

	userIDs := []string{}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan department member: %w", err)
		}
		userIDs = append(userIDs, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list department members: %w", err)
	}
	return userIDs, nil
}

// ResolveDepartmentMember maps a department membership id to its user id.
// A malformed id, a missing membership, or a user who is no longer a member
// of the org yields ErrNotFound.
func (r *DirectoryRepository) ResolveDepartmentMember(ctx context.Context, orgID, membershipID string) (string, error) {
	defer observe("select", "department_members", time.Now())

	if uuid.Validate(membershipID) != nil {
		return "", fmt.Errorf("resolve department member: %w", ErrNotFound)
	}

	// 已离开组织的成员视为失效
	var userID string
	err := r.db.QueryRow(ctx, `
        SELECT dm.user_id
        FROM department_members dm
        JOIN member m ON m.user_id = dm.user_id AND m.organization_id = dm.org_id
        WHERE dm.id = $1 AND dm.org_id = $2
    `, membershipID, orgID).Scan(&userID)
	if err != nil {
		return "", notFound(err, "resolve department member")
	}
	return userID, nil
}
