// Package forwarding matches categorized emails against an org's forwarding
// rules, resolves the recipients of each rule and fans out in-app
// notifications and the forwarded flag.
package forwarding

import (
	"context"

	"expensetracker/internal/model"
)

// RuleStore is the part of the rule repository the matcher needs.
type RuleStore interface {
	ListActiveByCategory(ctx context.Context, orgID, categoryID string) ([]model.ForwardingRule, error)
}

// Directory 组织成员 / 部门查询
type Directory interface {
	ListMembersByRole(ctx context.Context, orgID string, role model.Role) ([]string, error)
	ListDepartmentMembers(ctx context.Context, orgID, departmentID string) ([]string, error)
	ResolveDepartmentMember(ctx context.Context, orgID, membershipID string) (string, error)
}

type NotificationStore interface {
	InsertBatch(ctx context.Context, rows []model.NewNotification) (int, error)
}

type EmailStore interface {
	MarkForwarded(ctx context.Context, orgID, emailID string) error
}
