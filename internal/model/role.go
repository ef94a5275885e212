package model

import (
	"errors"
	"fmt"
	"strings"
)

// Role 组织内角色，封闭枚举
type Role string

const (
	RoleOrgAdmin  Role = "org_admin"
	RoleFinance   Role = "finance"
	RoleInventory Role = "inventory"
	RoleViewer    Role = "viewer"
)

var ErrInvalidRole = errors.New("invalid role")

// AllRoles lists every role an org member can hold.
var AllRoles = []Role{RoleOrgAdmin, RoleFinance, RoleInventory, RoleViewer}

func (r Role) Valid() bool {
	switch r {
	case RoleOrgAdmin, RoleFinance, RoleInventory, RoleViewer:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// ParseRole 解析单个角色名
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// ParseRoles 严格解析角色列表，任何未知角色都会返回错误（用于写入规则）
func ParseRoles(names []string) ([]Role, error) {
	roles := make([]Role, 0, len(names))
	for _, n := range names {
		r, err := ParseRole(n)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// MembershipRoles 解析成员表中逗号分隔的角色字段，如 "finance,viewer"。
// 未知角色被忽略并通过 unknown 返回。
func MembershipRoles(column string) (roles []Role, unknown []string) {
	for _, part := range strings.Split(column, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		r := Role(part)
		if !r.Valid() {
			unknown = append(unknown, part)
			continue
		}
		roles = append(roles, r)
	}
	return roles, unknown
}

// RoleStrings converts roles back to their storage form.
func RoleStrings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
