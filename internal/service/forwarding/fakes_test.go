package forwarding_test

import (
	"context"
	"errors"
	"sync"

	"expensetracker/internal/model"
	"expensetracker/internal/repository"
)

type fakeRules struct {
	rules   []model.ForwardingRule
	failFor map[string]error
	calls   int
}

func (f *fakeRules) ListActiveByCategory(_ context.Context, orgID, categoryID string) ([]model.ForwardingRule, error) {
	f.calls++
	if err, ok := f.failFor[categoryID]; ok {
		return nil, err
	}
	var out []model.ForwardingRule
	for _, r := range f.rules {
		// 故意不过滤 is_active，验证匹配器自身的过滤
		if r.OrgID == orgID && r.CategoryID == categoryID {
			out = append(out, r)
		}
	}
	return out, nil
}

type member struct {
	userID string
	roles  string
}

type fakeDirectory struct {
	members     []member
	departments map[string][]string
	memberships map[string]string
	// 已离开组织的用户：部门成员关系还在，但 member 行已删除
	departed map[string]bool
	roleErr  error

	roleCalls       int
	deptCalls       int
	membershipCalls int
}

func (f *fakeDirectory) ListMembersByRole(_ context.Context, _ string, role model.Role) ([]string, error) {
	f.roleCalls++
	if f.roleErr != nil {
		return nil, f.roleErr
	}
	var ids []string
	for _, m := range f.members {
		roles, _ := model.MembershipRoles(m.roles)
		for _, r := range roles {
			if r == role {
				ids = append(ids, m.userID)
				break
			}
		}
	}
	return ids, nil
}

func (f *fakeDirectory) ListDepartmentMembers(_ context.Context, _ string, departmentID string) ([]string, error) {
	f.deptCalls++
	return f.departments[departmentID], nil
}

func (f *fakeDirectory) ResolveDepartmentMember(_ context.Context, _ string, membershipID string) (string, error) {
	f.membershipCalls++
	userID, ok := f.memberships[membershipID]
	if !ok || f.departed[userID] {
		return "", repository.ErrNotFound
	}
	return userID, nil
}

type fakeNotifications struct {
	mu      sync.Mutex
	rows    []model.NewNotification
	batches int
	err     error
}

func (f *fakeNotifications) InsertBatch(_ context.Context, rows []model.NewNotification) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.batches++
	f.rows = append(f.rows, rows...)
	return len(rows), nil
}

func (f *fakeNotifications) forUser(userID string) []model.NewNotification {
	var out []model.NewNotification
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

type fakeEmails struct {
	forwarded map[string]int
	err       error
}

func (f *fakeEmails) MarkForwarded(_ context.Context, _, emailID string) error {
	if f.err != nil {
		return f.err
	}
	if f.forwarded == nil {
		f.forwarded = map[string]int{}
	}
	f.forwarded[emailID]++
	return nil
}

var errStoreDown = errors.New("connection refused")

func strPtr(s string) *string { return &s }

func categorizedEmail(id, orgID, categoryID string) model.DetectedEmail {
	return model.DetectedEmail{
		ID:          id,
		OrgID:       orgID,
		SenderEmail: "billing@vendor.example",
		SenderName:  strPtr("Vendor Billing"),
		Subject:     "Invoice " + id,
		CategoryID:  strPtr(categoryID),
		Category:    &model.CategoryRef{ID: categoryID, Name: "Invoices", Color: "#ff0000"},
	}
}
