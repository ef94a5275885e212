package forwarding

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"expensetracker/internal/model"
	"expensetracker/internal/repository"
)

// Recipients is a set of user ids.
type Recipients map[string]struct{}

func (r Recipients) Add(userIDs ...string) {
	for _, id := range userIDs {
		if id != "" {
			r[id] = struct{}{}
		}
	}
}

func (r Recipients) Has(userID string) bool {
	_, ok := r[userID]
	return ok
}

// Sorted returns the user ids in ascending order.
func (r Recipients) Sorted() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type Resolver struct {
	dir    Directory
	logger *zap.Logger
}

func NewResolver(dir Directory, logger *zap.Logger) *Resolver {
	return &Resolver{dir: dir, logger: logger}
}

// ResolveRecipients 展开规则的四类目标并取并集。
// 失效的角色 / 部门 / 成员引用直接跳过，其它存储错误向上返回。
func (r *Resolver) ResolveRecipients(ctx context.Context, cache *RequestCache, rule *model.ForwardingRule, orgID string) (Recipients, error) {
	out := Recipients{}

	for _, role := range rule.NotifyRoles {
		ids, err := r.roleMembers(ctx, cache, orgID, role)
		if err != nil {
			return nil, err
		}
		out.Add(ids...)
	}

	out.Add(rule.NotifyUserIDs...)

	for _, deptID := range rule.NotifyDepartmentIDs {
		ids, err := r.departmentMembers(ctx, cache, orgID, deptID)
		if err != nil {
			return nil, err
		}
		out.Add(ids...)
	}

	for _, membershipID := range rule.NotifyDepartmentMemberIDs {
		userID, err := r.departmentMember(ctx, cache, orgID, membershipID)
		if err != nil {
			return nil, err
		}
		out.Add(userID)
	}

	r.logger.Debug("Resolved rule recipients",
		zap.String("org_id", orgID),
		zap.String("rule_id", rule.ID),
		zap.Int("recipients", len(out)),
	)
	return out, nil
}

func (r *Resolver) roleMembers(ctx context.Context, cache *RequestCache, orgID string, role model.Role) ([]string, error) {
	if ids, ok := cache.getRoleMembers(orgID, role); ok {
		return ids, nil
	}
	ids, err := r.dir.ListMembersByRole(ctx, orgID, role)
	if err != nil {
		if stale(err) {
			r.logger.Debug("Skipping unresolvable role", zap.String("org_id", orgID), zap.String("role", string(role)))
			ids = nil
		} else {
			return nil, fmt.Errorf("list members by role %s: %w", role, err)
		}
	}
	cache.putRoleMembers(orgID, role, ids)
	return ids, nil
}

func (r *Resolver) departmentMembers(ctx context.Context, cache *RequestCache, orgID, deptID string) ([]string, error) {
	if ids, ok := cache.getDeptMembers(orgID, deptID); ok {
		return ids, nil
	}
	ids, err := r.dir.ListDepartmentMembers(ctx, orgID, deptID)
	if err != nil {
		if stale(err) {
			r.logger.Debug("Skipping unknown department", zap.String("org_id", orgID), zap.String("department_id", deptID))
			ids = nil
		} else {
			return nil, fmt.Errorf("list department members %s: %w", deptID, err)
		}
	}
	cache.putDeptMembers(orgID, deptID, ids)
	return ids, nil
}

func (r *Resolver) departmentMember(ctx context.Context, cache *RequestCache, orgID, membershipID string) (string, error) {
	if userID, ok := cache.getDeptMember(orgID, membershipID); ok {
		return userID, nil
	}
	userID, err := r.dir.ResolveDepartmentMember(ctx, orgID, membershipID)
	if err != nil {
		if !stale(err) {
			return "", fmt.Errorf("resolve department member %s: %w", membershipID, err)
		}
		r.logger.Debug("Skipping stale department membership",
			zap.String("org_id", orgID),
			zap.String("membership_id", membershipID),
		)
		userID = ""
	}
	cache.putDeptMember(orgID, membershipID, userID)
	return userID, nil
}

// stale 目标已不存在（成员被移出组织等）
func stale(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, model.ErrInvalidRole)
}
