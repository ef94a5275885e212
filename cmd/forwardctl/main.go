package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"expensetracker/internal/model"
	"expensetracker/internal/repository"
	"expensetracker/internal/service/cleanup"
	"expensetracker/pkg/config"
	"expensetracker/pkg/db"
	"expensetracker/pkg/logger"
)

// opener 建立一次命令执行所需的存储层，返回的 close 函数负责释放连接
type opener func(ctx context.Context) (*stores, func(), error)

type app struct {
	open opener
}

func newRootCmd(open opener) *cobra.Command {
	a := &app{open: open}

	root := &cobra.Command{
		Use:           "forwardctl",
		Short:         "Maintenance commands for the email forwarding pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Duration("timeout", 5*time.Minute, "maximum run time")

	root.AddCommand(
		a.cleanupCmd(),
		a.statsCmd(),
		a.listCmd(),
		a.categoriesCmd(),
		a.rulesCmd(),
		a.emailsCmd(),
		a.notificationsCmd(),
		a.integrationsCmd(),
	)
	return root
}

// run 打开存储层并在 --timeout 内执行 fn
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, s *stores) error) error {
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	s, closeStores, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer closeStores()
	return fn(ctx, s)
}

func (a *app) cleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Purge old in-app notifications",
		Long:  "Deletes notifications older than the retention window (notification.retention_days unless overridden)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				retentionDays := s.cfg.Notification.RetentionDays
				if cmd.Flags().Changed("retention-days") {
					retentionDays, _ = cmd.Flags().GetInt("retention-days")
				}
				deleted, err := cleanup.NewService(s.notifications, retentionDays, s.log).Run(ctx)
				if err != nil {
					return err
				}
				s.log.Info("Cleanup complete",
					zap.Int("retention_days", retentionDays),
					zap.Int64("deleted", deleted),
				)
				return printJSON(cmd, map[string]int64{"deleted": deleted})
			})
		},
	}
	cmd.Flags().Int("retention-days", 0, "override notification.retention_days")
	return cmd
}

// statsCmd 输出各组织的分类 / 规则 / 邮箱连接数量
func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print per-organization category, rule and integration counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *stores) error {
				categories, err := s.categories.Stats(ctx)
				if err != nil {
					return err
				}
				rules, err := s.rules.Stats(ctx)
				if err != nil {
					return err
				}
				integrations, err := s.integrations.Stats(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, struct {
					Categories   *model.CrossOrgStats `json:"categories"`
					Rules        *model.CrossOrgStats `json:"rules"`
					Integrations *model.CrossOrgStats `json:"integrations"`
				}{categories, rules, integrations})
			})
		},
	}
}

func openDB(ctx context.Context) (*stores, func(), error) {
	log := logger.NewLogger()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}

	s := &stores{
		cfg:           cfg,
		log:           log,
		categories:    repository.NewCategoryRepository(pool, log),
		rules:         repository.NewRuleRepository(pool, log),
		emails:        repository.NewEmailRepository(pool, log),
		notifications: repository.NewNotificationRepository(pool, log),
		integrations:  repository.NewIntegrationRepository(pool, log),
	}
	return s, func() {
		pool.Close()
		_ = log.Sync()
	}, nil
}

func main() {
	if err := newRootCmd(openDB).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
