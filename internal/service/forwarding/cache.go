package forwarding

import "expensetracker/internal/model"

// RequestCache memoizes directory and rule lookups for one batch.
// Create one per ProcessBatch call; it is not safe for concurrent use.
type RequestCache struct {
	rules       map[string][]model.ForwardingRule
	roleMembers map[string][]string
	deptMembers map[string][]string
	deptMember  map[string]string
}

func NewRequestCache() *RequestCache {
	return &RequestCache{
		rules:       make(map[string][]model.ForwardingRule),
		roleMembers: make(map[string][]string),
		deptMembers: make(map[string][]string),
		deptMember:  make(map[string]string),
	}
}

func cacheKey(orgID, id string) string {
	return orgID + "/" + id
}

// nil 缓存等同于不缓存
func (c *RequestCache) getRules(orgID, categoryID string) ([]model.ForwardingRule, bool) {
	if c == nil {
		return nil, false
	}
	rules, ok := c.rules[cacheKey(orgID, categoryID)]
	return rules, ok
}

func (c *RequestCache) putRules(orgID, categoryID string, rules []model.ForwardingRule) {
	if c != nil {
		c.rules[cacheKey(orgID, categoryID)] = rules
	}
}

func (c *RequestCache) getRoleMembers(orgID string, role model.Role) ([]string, bool) {
	if c == nil {
		return nil, false
	}
	ids, ok := c.roleMembers[cacheKey(orgID, string(role))]
	return ids, ok
}

func (c *RequestCache) putRoleMembers(orgID string, role model.Role, ids []string) {
	if c != nil {
		c.roleMembers[cacheKey(orgID, string(role))] = ids
	}
}

func (c *RequestCache) getDeptMembers(orgID, departmentID string) ([]string, bool) {
	if c == nil {
		return nil, false
	}
	ids, ok := c.deptMembers[cacheKey(orgID, departmentID)]
	return ids, ok
}

func (c *RequestCache) putDeptMembers(orgID, departmentID string, ids []string) {
	if c != nil {
		c.deptMembers[cacheKey(orgID, departmentID)] = ids
	}
}

// getDeptMember 的空字符串表示成员引用已失效
func (c *RequestCache) getDeptMember(orgID, membershipID string) (string, bool) {
	if c == nil {
		return "", false
	}
	userID, ok := c.deptMember[cacheKey(orgID, membershipID)]
	return userID, ok
}

func (c *RequestCache) putDeptMember(orgID, membershipID, userID string) {
	if c != nil {
		c.deptMember[cacheKey(orgID, membershipID)] = userID
	}
}
