package model

import "time"

// ForwardingRule 把一个分类绑定到一组通知目标
type ForwardingRule struct {
	ID                        string    `json:"id"`
	OrgID                     string    `json:"org_id"`
	Name                      string    `json:"name"`
	Description               *string   `json:"description"`
	CategoryID                string    `json:"category_id"`
	NotifyRoles               []Role    `json:"notify_roles"`
	NotifyUserIDs             []string  `json:"notify_user_ids"`
	NotifyDepartmentIDs       []string  `json:"notify_department_ids"`
	NotifyDepartmentMemberIDs []string  `json:"notify_department_member_ids"`
	NotifyInApp               bool      `json:"notify_in_app"`
	ForwardEmail              bool      `json:"forward_email"`
	IsActive                  bool      `json:"is_active"`
	CreatedBy                 string    `json:"created_by"`
	CreatedAt                 time.Time `json:"created_at"`
	UpdatedAt                 time.Time `json:"updated_at"`
	// Category 列表 / 详情查询时 join 出来的分类
	Category *CategoryRef `json:"email_categories,omitempty"`
}

// HasTargets reports whether any of the four target lists is non-empty.
func (r *ForwardingRule) HasTargets() bool {
	return len(r.NotifyRoles) > 0 ||
		len(r.NotifyUserIDs) > 0 ||
		len(r.NotifyDepartmentIDs) > 0 ||
		len(r.NotifyDepartmentMemberIDs) > 0
}

type CreateRuleInput struct {
	Name                      string
	Description               *string
	CategoryID                string
	NotifyRoles               []Role
	NotifyUserIDs             []string
	NotifyDepartmentIDs       []string
	NotifyDepartmentMemberIDs []string
	NotifyInApp               bool
	ForwardEmail              bool
}

type UpdateRuleInput struct {
	Name                      *string
	Description               *string
	CategoryID                *string
	NotifyRoles               *[]Role
	NotifyUserIDs             *[]string
	NotifyDepartmentIDs       *[]string
	NotifyDepartmentMemberIDs *[]string
	NotifyInApp               *bool
	ForwardEmail              *bool
	IsActive                  *bool
}

// RuleWithOrg 跨组织列表的一行
type RuleWithOrg struct {
	ForwardingRule
	Organization *OrgRef `json:"organization"`
}
