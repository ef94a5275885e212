package emailsync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"expensetracker/internal/model"
	"expensetracker/internal/service/forwarding"
	"expensetracker/pkg/logger"
)

type IntegrationStore interface {
	Get(ctx context.Context, orgID, id string) (*model.EmailIntegration, error)
	// MarkSynced 记录同步时间；syncErr 为空表示全部成功
	MarkSynced(ctx context.Context, orgID, id, syncErr string) error
	MarkSyncFailed(ctx context.Context, orgID, id, msg string) error
}

type EmailSource interface {
	ListUnforwarded(ctx context.Context, orgID string, limit int) ([]model.DetectedEmail, error)
}

type BatchProcessor interface {
	ProcessBatch(ctx context.Context, orgID string, emails []model.DetectedEmail) *forwarding.BatchResult
}

// Result 一次同步的汇总
type Result struct {
	IntegrationID     string `json:"integration_id"`
	SyncedCount       int    `json:"synced_count"`
	NotificationsSent int    `json:"notifications_sent"`
	EmailsForwarded   int    `json:"emails_forwarded"`
	Failed            int    `json:"failed"`
}

type Service struct {
	integrations IntegrationStore
	emails       EmailSource
	processor    BatchProcessor
	batchLimit   int
	logger       *zap.Logger
}

func NewService(integrations IntegrationStore, emails EmailSource, processor BatchProcessor, batchLimit int, logger *zap.Logger) *Service {
	if batchLimit <= 0 {
		batchLimit = 10
	}
	return &Service{
		integrations: integrations,
		emails:       emails,
		processor:    processor,
		batchLimit:   batchLimit,
		logger:       logger,
	}
}

// Sync loads the org's latest unforwarded categorized emails, runs them
// through the forwarding pipeline and records the sync on the integration.
func (s *Service) Sync(ctx context.Context, orgID, integrationID string) (*Result, error) {
	log := logger.WithTrace(ctx, s.logger).With(
		zap.String("org_id", orgID),
		zap.String("integration_id", integrationID),
	)

	integration, err := s.integrations.Get(ctx, orgID, integrationID)
	if err != nil {
		return nil, fmt.Errorf("load integration: %w", err)
	}
	if !integration.IsActive {
		log.Info("Integration inactive, skipping sync")
		return &Result{IntegrationID: integrationID}, nil
	}

	emails, err := s.emails.ListUnforwarded(ctx, orgID, s.batchLimit)
	if err != nil {
		s.recordFailure(ctx, log, orgID, integrationID, err)
		return nil, fmt.Errorf("load unforwarded emails: %w", err)
	}

	res := &Result{IntegrationID: integrationID, SyncedCount: len(emails)}
	if len(emails) > 0 {
		batch := s.processor.ProcessBatch(ctx, orgID, emails)
		res.NotificationsSent = batch.NotificationsSent
		res.EmailsForwarded = batch.EmailsForwarded
		res.Failed = batch.Failed
	}

	if err := s.integrations.MarkSynced(ctx, orgID, integrationID, partialFailure(res)); err != nil {
		s.recordFailure(ctx, log, orgID, integrationID, err)
		return nil, fmt.Errorf("mark integration synced: %w", err)
	}

	log.Info("Email integration synced",
		zap.Int("synced", res.SyncedCount),
		zap.Int("notifications_sent", res.NotificationsSent),
		zap.Int("emails_forwarded", res.EmailsForwarded),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (s *Service) recordFailure(ctx context.Context, log *zap.Logger, orgID, integrationID string, cause error) {
	if err := s.integrations.MarkSyncFailed(ctx, orgID, integrationID, cause.Error()); err != nil {
		log.Warn("Failed to record sync error", zap.Error(err))
	}
}

// partialFailure 部分邮件转发失败时写入 sync_error 的摘要
func partialFailure(res *Result) string {
	if res.Failed == 0 {
		return ""
	}
	return fmt.Sprintf("%d of %d emails failed to forward", res.Failed, res.SyncedCount)
}
