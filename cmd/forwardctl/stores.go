package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"expensetracker/internal/model"
	"expensetracker/pkg/config"
)

type categoryStore interface {
	List(ctx context.Context, orgID string, includeInactive bool) ([]model.EmailCategory, int, error)
	Get(ctx context.Context, orgID, id string) (*model.EmailCategory, error)
	Create(ctx context.Context, orgID, userID string, in model.CreateCategoryInput) (*model.EmailCategory, error)
	Update(ctx context.Context, orgID, id string, in model.UpdateCategoryInput) (*model.EmailCategory, error)
	Delete(ctx context.Context, orgID, id string) error
	ListAll(ctx context.Context, q model.CrossOrgQuery) (*model.CrossOrgPage[model.CategoryWithOrg], error)
	Stats(ctx context.Context) (*model.CrossOrgStats, error)
}

type ruleStore interface {
	List(ctx context.Context, orgID string, includeInactive bool) ([]model.ForwardingRule, int, error)
	Get(ctx context.Context, orgID, id string) (*model.ForwardingRule, error)
	Create(ctx context.Context, orgID, userID string, in model.CreateRuleInput) (*model.ForwardingRule, error)
	Update(ctx context.Context, orgID, id string, in model.UpdateRuleInput) (*model.ForwardingRule, error)
	Delete(ctx context.Context, orgID, id string) error
	ListAll(ctx context.Context, q model.CrossOrgQuery) (*model.CrossOrgPage[model.RuleWithOrg], error)
	Stats(ctx context.Context) (*model.CrossOrgStats, error)
}

type emailStore interface {
	List(ctx context.Context, orgID string, f model.EmailFilter) ([]model.DetectedEmail, int, error)
	Get(ctx context.Context, orgID, id string) (*model.DetectedEmail, error)
	Update(ctx context.Context, orgID, id string, p model.EmailPatch) (*model.DetectedEmail, error)
}

type notificationStore interface {
	List(ctx context.Context, orgID, userID string, limit int, includeRead bool) (*model.NotificationPage, error)
	UnreadCount(ctx context.Context, orgID, userID string) (int, error)
	MarkRead(ctx context.Context, orgID, userID, id string) error
	MarkAllRead(ctx context.Context, orgID, userID string) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type integrationStore interface {
	List(ctx context.Context, orgID string, includeInactive bool) ([]model.EmailIntegration, int, error)
	Get(ctx context.Context, orgID, id string) (*model.EmailIntegration, error)
	Connect(ctx context.Context, orgID, userID string, in model.ConnectIntegrationInput) (*model.EmailIntegration, error)
	Update(ctx context.Context, orgID, id string, p model.IntegrationPatch) (*model.EmailIntegration, error)
	Disconnect(ctx context.Context, orgID, id string) error
	ListAll(ctx context.Context, q model.CrossOrgQuery) (*model.CrossOrgPage[model.IntegrationWithOrg], error)
	Stats(ctx context.Context) (*model.CrossOrgStats, error)
}

type stores struct {
	cfg           *config.Config
	log           *zap.Logger
	categories    categoryStore
	rules         ruleStore
	emails        emailStore
	notifications notificationStore
	integrations  integrationStore
}

// listResult 组织内列表的输出格式
type listResult[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// 以下 changed* 只在 flag 被显式传入时返回非 nil，用于部分更新

func changedString(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

func changedBool(cmd *cobra.Command, name string) *bool {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetBool(name)
	return &v
}

func changedStrings(cmd *cobra.Command, name string) *[]string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetStringSlice(name)
	return &v
}

// orgScoped 给分组命令加上必填的 --org
func orgScoped(cmd *cobra.Command) *cobra.Command {
	cmd.PersistentFlags().String("org", "", "organization id")
	_ = cmd.MarkPersistentFlagRequired("org")
	return cmd
}

func orgID(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("org")
	return v
}
