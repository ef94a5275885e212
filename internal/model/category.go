package model

import "time"

// EmailCategory 邮件分类；keywords / sender_patterns 只是元数据
type EmailCategory struct {
	ID             string    `json:"id"`
	OrgID          string    `json:"org_id"`
	Name           string    `json:"name"`
	Description    *string   `json:"description"`
	Color          string    `json:"color"`
	Keywords       []string  `json:"keywords"`
	SenderPatterns []string  `json:"sender_patterns"`
	IsActive       bool      `json:"is_active"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type CreateCategoryInput struct {
	Name           string
	Description    *string
	Color          string
	Keywords       []string
	SenderPatterns []string
}

type UpdateCategoryInput struct {
	Name           *string
	Description    *string
	Color          *string
	Keywords       *[]string
	SenderPatterns *[]string
	IsActive       *bool
}

// CategoryWithOrg 跨组织列表的一行
type CategoryWithOrg struct {
	EmailCategory
	Organization *OrgRef `json:"organization"`
}
