package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"expensetracker/internal/model"
)

const notificationColumns = `id, org_id, user_id, type, title, message, related_type, related_id,
       metadata, is_read, read_at, created_at`

// 每条 INSERT 的行数上限，8 个参数/行，远低于 65535 参数限制
const notificationInsertChunk = 1000

type NotificationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewNotificationRepository(db *pgxpool.Pool, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

func scanNotification(row scanner) (*model.Notification, error) {
	var n model.Notification
	var metadata []byte
	err := row.Scan(
		&n.ID,
		&n.OrgID,
		&n.UserID,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.RelatedType,
		&n.RelatedID,
		&metadata,
		&n.IsRead,
		&n.ReadAt,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Metadata = map[string]interface{}{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
			return nil, fmt.Errorf("decode notification metadata: %w", err)
		}
	}
	return &n, nil
}

// buildInsert 生成多行 INSERT 语句和参数
func buildNotificationInsert(rows []model.NewNotification) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO notifications
        (org_id, user_id, type, title, message, related_type, related_id, metadata)
        VALUES `)

	args := make([]any, 0, len(rows)*8)
	for i, n := range rows {
		metadata := n.Metadata
		if metadata == nil {
			metadata = map[string]interface{}{}
		}
		raw, err := json.Marshal(metadata)
		if err != nil {
			return "", nil, fmt.Errorf("encode notification metadata: %w", err)
		}

		if i > 0 {
			sb.WriteString(", ")
		}
		base := len(args)
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d::jsonb)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)
		args = append(args,
			n.OrgID, n.UserID, string(n.Type), n.Title, n.Message, n.RelatedType, n.RelatedID, string(raw),
		)
	}
	return sb.String(), args, nil
}

// InsertBatch 批量插入通知：全部成功或全部失败
func (r *NotificationRepository) InsertBatch(ctx context.Context, rows []model.NewNotification) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	defer observe("insert", "notifications", time.Now())

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for start := 0; start < len(rows); start += notificationInsertChunk {
		end := start + notificationInsertChunk
		if end > len(rows) {
			end = len(rows)
		}
		query, args, err := buildNotificationInsert(rows[start:end])
		if err != nil {
			return 0, err
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			r.logger.Error("Failed to insert notifications", zap.Int("rows", end-start), zap.Error(err))
			return 0, fmt.Errorf("insert notifications: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit notifications: %w", err)
	}

	r.logger.Debug("Notifications inserted", zap.Int("count", inserted))
	return inserted, nil
}

// List 返回用户在组织下的通知（最新在前）以及未读数
func (r *NotificationRepository) List(ctx context.Context, orgID, userID string, limit int, includeRead bool) (*model.NotificationPage, error) {
	defer observe("select", "notifications", time.Now())

	if limit <= 0 {
		limit = 20
	}

	query := `
        SELECT ` + notificationColumns + `
        FROM notifications
        WHERE org_id = $1 AND user_id = $2 AND ($3 OR is_read = FALSE)
        ORDER BY created_at DESC
        LIMIT $4
    `
	rows, err := r.db.Query(ctx, query, orgID, userID, includeRead, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	page := &model.NotificationPage{Items: []model.Notification{}}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		page.Items = append(page.Items, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	page.UnreadCount, err = r.UnreadCount(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (r *NotificationRepository) UnreadCount(ctx context.Context, orgID, userID string) (int, error) {
	defer observe("select", "notifications", time.Now())

	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE org_id = $1 AND user_id = $2 AND is_read = FALSE`,
		orgID, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead 只能标记属于该用户的通知
func (r *NotificationRepository) MarkRead(ctx context.Context, orgID, userID, id string) error {
	defer observe("update", "notifications", time.Now())

	tag, err := r.db.Exec(ctx, `
        UPDATE notifications
        SET is_read = TRUE, read_at = COALESCE(read_at, NOW())
        WHERE id = $1 AND user_id = $2 AND org_id = $3
    `, id, userID, orgID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark notification read: %w", ErrNotFound)
	}
	return nil
}

// MarkAllRead returns how many notifications flipped to read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, orgID, userID string) (int64, error) {
	defer observe("update", "notifications", time.Now())

	tag, err := r.db.Exec(ctx, `
        UPDATE notifications
        SET is_read = TRUE, read_at = NOW()
        WHERE user_id = $1 AND org_id = $2 AND is_read = FALSE
    `, userID, orgID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteOlderThan 清理 created_at 早于 cutoff 的通知
func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	defer observe("delete", "notifications", time.Now())

	tag, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old notifications: %w", err)
	}
	r.logger.Info("Old notifications deleted",
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", tag.RowsAffected()),
	)
	return tag.RowsAffected(), nil
}
