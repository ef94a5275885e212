package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	mqcontracts "expensetracker/contracts/mq"
	"expensetracker/internal/repository"
	"expensetracker/internal/service/emailsync"
	"expensetracker/pkg/logger"
	"expensetracker/pkg/mq"
	"expensetracker/pkg/trace"
	"expensetracker/pkg/util"
)

const handlerName = "forwarding"

type Syncer interface {
	Sync(ctx context.Context, orgID, integrationID string) (*emailsync.Result, error)
}

type Deduper interface {
	AcquireOnce(ctx context.Context, handler, eventID string) bool
	Release(ctx context.Context, handler, eventID string)
}

type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError string) error
}

type EmailSyncedHandler struct {
	syncer       Syncer
	deduper      Deduper
	retryCounter RetryCounter
	publisher    Publisher
	maxRetries   int64
	logger       *zap.Logger
}

func NewEmailSyncedHandler(
	syncer Syncer,
	deduper Deduper,
	retryCounter RetryCounter,
	publisher Publisher,
	maxRetries int,
	logger *zap.Logger,
) *EmailSyncedHandler {
	return &EmailSyncedHandler{
		syncer:       syncer,
		deduper:      deduper,
		retryCounter: retryCounter,
		publisher:    publisher,
		maxRetries:   int64(maxRetries),
		logger:       logger,
	}
}

// Handle runs the forwarding pipeline for one email.synced event.
// It returns an error only when the delivery should be nacked and requeued;
// malformed and permanently failing events go to the DLQ and are acked.
func (h *EmailSyncedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.EmailSyncedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal email synced payload (non-retryable, sending to DLQ)",
			zap.Error(err),
			zap.String("raw_payload", string(raw)),
		)
		h.deadLetter(ctx, h.logger, raw, fmt.Errorf("json_unmarshal_error: %w", err))
		return nil
	}
	if p.OrgID == "" || p.IntegrationID == "" {
		h.logger.Error("Email synced payload missing org_id or integration_id", zap.String("raw_payload", string(raw)))
		h.deadLetter(ctx, h.logger, raw, errors.New("invalid_payload: org_id and integration_id are required"))
		return nil
	}

	ctx = trace.Ensure(ctx, p.TraceID)
	log := logger.WithTrace(ctx, h.logger).With(
		zap.String("org_id", p.OrgID),
		zap.String("integration_id", p.IntegrationID),
	)

	// 同一事件的重复投递只处理一次；转发流水线本身不幂等
	eventID := p.DedupID()
	if eventID != "" && !h.deduper.AcquireOnce(ctx, handlerName, eventID) {
		log.Info("Skipped duplicated email synced event", zap.String("event_id", eventID))
		return nil
	}

	res, err := h.sync(ctx, log, p, eventID)
	if err != nil {
		return h.handleFailure(ctx, log, raw, eventID, err)
	}

	if eventID != "" {
		if err := h.retryCounter.Reset(ctx, util.FormatRetryKey(handlerName, eventID)); err != nil {
			log.Warn("Failed to reset retry count", zap.Error(err))
		}
	}

	completed := mqcontracts.ForwardingCompletedPayload{
		EventID:           p.EventID,
		OrgID:             p.OrgID,
		IntegrationID:     p.IntegrationID,
		TraceID:           trace.FromContext(ctx),
		SyncedCount:       res.SyncedCount,
		NotificationsSent: res.NotificationsSent,
		EmailsForwarded:   res.EmailsForwarded,
		Failed:            res.Failed,
		CompletedAt:       time.Now().UTC(),
	}
	if err := h.publisher.Publish(ctx, mq.RoutingKeyForwardingCompleted, completed); err != nil {
		// 结果事件丢失不影响已写入的通知，不重试
		log.Warn("Failed to publish forwarding completed event", zap.Error(err))
	}
	return nil
}

// sync 调用同步服务；panic 时先释放去重 key 再继续向上抛，
// 否则 consumer 重新入队的消息会被当成重复事件直接 ack
func (h *EmailSyncedHandler) sync(ctx context.Context, log *zap.Logger, p mqcontracts.EmailSyncedPayload, eventID string) (*emailsync.Result, error) {
	if eventID != "" {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Email sync panicked, releasing dedup key", zap.Any("panic", r))
				h.deduper.Release(ctx, handlerName, eventID)
				panic(r)
			}
		}()
	}
	return h.syncer.Sync(ctx, p.OrgID, p.IntegrationID)
}

func (h *EmailSyncedHandler) handleFailure(ctx context.Context, log *zap.Logger, raw []byte, eventID string, err error) error {
	retryable, errType := util.IsRetryableError(err)
	if errors.Is(err, repository.ErrNotFound) {
		retryable, errType = false, "not_found"
	}

	log.Error("Email sync failed",
		zap.String("error_type", errType),
		zap.Bool("retryable", retryable),
		zap.Error(err),
	)

	// 没有事件 id 就无法计数重试，直接进 DLQ
	if !retryable || eventID == "" {
		h.deadLetter(ctx, log, raw, err)
		return nil
	}

	retryKey := util.FormatRetryKey(handlerName, eventID)
	count, cerr := h.retryCounter.IncrementAndGet(ctx, retryKey)
	if cerr != nil {
		// Redis 不可用时按第一次处理
		log.Warn("Failed to get retry count, continuing anyway", zap.Error(cerr))
		count = 1
	}

	if util.ShouldRetry(count, h.maxRetries, retryable) {
		// 释放去重 key，让重新投递的消息能再次处理
		h.deduper.Release(ctx, handlerName, eventID)
		log.Warn("Requeueing email synced event",
			zap.Int64("retry_count", count),
			zap.Int64("max_retries", h.maxRetries),
		)
		return err
	}

	log.Error("Max retries exceeded, sending to DLQ",
		zap.Int64("retry_count", count),
		zap.Int64("max_retries", h.maxRetries),
	)
	h.deadLetter(ctx, log, raw, err)
	if rerr := h.retryCounter.Reset(ctx, retryKey); rerr != nil {
		log.Warn("Failed to reset retry count", zap.Error(rerr))
	}
	return nil
}

func (h *EmailSyncedHandler) deadLetter(ctx context.Context, log *zap.Logger, raw []byte, cause error) {
	if err := h.publisher.PublishToDLQ(ctx, mq.RoutingKeyEmailSynced, raw, cause.Error()); err != nil {
		log.Error("Failed to publish to DLQ", zap.Error(err))
	}
}
