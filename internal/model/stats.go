package model

// OrgCount 单个组织的启用数 / 总数
type OrgCount struct {
	OrgID   string `json:"org_id"`
	OrgName string `json:"org_name"`
	Active  int    `json:"active"`
	Total   int    `json:"total"`
}

// CrossOrgStats 跨组织统计（superadmin 控制台使用）
type CrossOrgStats struct {
	TotalCount  int        `json:"total_count"`
	ActiveCount int        `json:"active_count"`
	ByOrg       []OrgCount `json:"by_org"`
}

// OrgRef 跨组织列表里 join 出来的组织信息
type OrgRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CrossOrgQuery superadmin 跨组织列表的过滤 / 排序 / 分页条件。
// IsActive 非 nil 时精确过滤；否则 IncludeInactive 为 false 时只看启用的。
type CrossOrgQuery struct {
	OrgID           string
	Search          string
	IsActive        *bool
	IncludeInactive bool
	SortBy          string
	SortDesc        bool
	Page            int
	Limit           int
}

// Normalize 与 EmailFilter 相同的分页默认值
func (q *CrossOrgQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
}

// CrossOrgPage is one page of a cross-org listing.
type CrossOrgPage[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}
