package model

import "time"

// NotificationType 通知类型
type NotificationType string

const (
	NotificationEmailForwarded NotificationType = "email_forwarded"
	NotificationRuleTriggered  NotificationType = "rule_triggered"
	NotificationSystem         NotificationType = "system"
	NotificationInfo           NotificationType = "info"
)

// RelatedTypeDetectedEmail is the related_type of notifications caused by an email.
const RelatedTypeDetectedEmail = "detected_email"

// Notification 用户在某组织下的一条站内通知
type Notification struct {
	ID          string                 `json:"id"`
	OrgID       string                 `json:"org_id"`
	UserID      string                 `json:"user_id"`
	Type        NotificationType       `json:"type"`
	Title       string                 `json:"title"`
	Message     *string                `json:"message"`
	RelatedType *string                `json:"related_type"`
	RelatedID   *string                `json:"related_id"`
	Metadata    map[string]interface{} `json:"metadata"`
	IsRead      bool                   `json:"is_read"`
	ReadAt      *time.Time             `json:"read_at"`
	CreatedAt   time.Time              `json:"created_at"`
}

// NewNotification 是待插入的一行，id / created_at 由数据库生成
type NewNotification struct {
	OrgID       string
	UserID      string
	Type        NotificationType
	Title       string
	Message     *string
	RelatedType *string
	RelatedID   *string
	Metadata    map[string]interface{}
}

// NotificationPage 通知列表 + 未读数
type NotificationPage struct {
	Items       []Notification `json:"items"`
	UnreadCount int            `json:"unread_count"`
}
