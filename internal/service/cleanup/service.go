package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type NotificationPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service 按保留天数清理站内通知
type Service struct {
	notifications NotificationPurger
	retention     time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

func NewService(notifications NotificationPurger, retentionDays int, logger *zap.Logger) *Service {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &Service{
		notifications: notifications,
		retention:     time.Duration(retentionDays) * 24 * time.Hour,
		now:           time.Now,
		logger:        logger,
	}
}

// Run deletes notifications created before now minus the retention window.
func (s *Service) Run(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	deleted, err := s.notifications.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	s.logger.Info("Notification cleanup finished",
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", deleted),
	)
	return deleted, nil
}
