package model

import "time"

// CategoryRef 邮件上嵌入的分类摘要（join email_categories 得到）
type CategoryRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// DetectedEmail 同步进来的邮件元数据
type DetectedEmail struct {
	ID            string       `json:"id"`
	OrgID         string       `json:"org_id"`
	IntegrationID string       `json:"integration_id"`
	SenderEmail   string       `json:"sender_email"`
	SenderName    *string      `json:"sender_name"`
	Subject       string       `json:"subject"`
	Snippet       string       `json:"snippet"`
	ReceivedAt    time.Time    `json:"received_at"`
	CategoryID    *string      `json:"category_id"`
	IsRead        bool         `json:"is_read"`
	IsArchived    bool         `json:"is_archived"`
	IsForwarded   bool         `json:"is_forwarded"`
	CreatedAt     time.Time    `json:"created_at"`
	Category      *CategoryRef `json:"email_categories,omitempty"`
}

// HasCategory reports whether the email was categorized before forwarding.
func (e *DetectedEmail) HasCategory() bool {
	return e.CategoryID != nil && *e.CategoryID != ""
}

// Sender 返回 "Name <addr>" 或仅地址
func (e *DetectedEmail) Sender() string {
	if e.SenderName != nil && *e.SenderName != "" {
		return *e.SenderName + " <" + e.SenderEmail + ">"
	}
	return e.SenderEmail
}

// EmailFilter 邮件列表查询条件
type EmailFilter struct {
	CategoryID *string
	IsRead     *bool
	IsArchived *bool
	Page       int
	Limit      int
}

// Normalize 填充分页默认值：page 从 1 开始，limit 默认 20，最大 100
func (f *EmailFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
}

// EmailPatch 邮件的部分更新，nil 字段不修改。
// ClearCategory 为 true 时把 category_id 置空。
type EmailPatch struct {
	IsRead        *bool
	IsArchived    *bool
	CategoryID    *string
	ClearCategory bool
}
