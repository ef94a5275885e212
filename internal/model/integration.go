package model

import (
	"errors"
	"time"
)

type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
	ProviderOther   Provider = "other"
)

// EmailIntegration 组织连接的邮箱账号
type EmailIntegration struct {
	ID           string     `json:"id"`
	OrgID        string     `json:"org_id"`
	UserID       string     `json:"user_id"`
	Provider     Provider   `json:"provider"`
	EmailAddress string     `json:"email_address"`
	IsActive     bool       `json:"is_active"`
	LastSyncAt   *time.Time `json:"last_sync_at"`
	SyncError    *string    `json:"sync_error"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (p Provider) Valid() bool {
	switch p {
	case ProviderGmail, ProviderOutlook, ProviderOther:
		return true
	}
	return false
}

// ErrInvalidProvider 不支持的邮箱服务商
var ErrInvalidProvider = errors.New("invalid provider")

type ConnectIntegrationInput struct {
	Provider     Provider
	EmailAddress string
}

// IntegrationPatch 只允许修改 provider / is_active
type IntegrationPatch struct {
	Provider *Provider
	IsActive *bool
}

// IntegrationWithOrg 跨组织列表的一行
type IntegrationWithOrg struct {
	EmailIntegration
	Organization *OrgRef `json:"organization"`
}
