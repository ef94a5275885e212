package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"expensetracker/internal/model"
)

// 带分类 join 的列，e = detected_emails, c = email_categories
const emailColumns = `e.id, e.org_id, e.integration_id, e.sender_email, e.sender_name, e.subject,
       e.snippet, e.received_at, e.category_id, e.is_read, e.is_archived, e.is_forwarded,
       e.created_at, c.id, c.name, c.color`

const emailFrom = `detected_emails e
        LEFT JOIN email_categories c ON c.id = e.category_id`

type EmailRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewEmailRepository(db *pgxpool.Pool, logger *zap.Logger) *EmailRepository {
	return &EmailRepository{db: db, logger: logger}
}

func scanEmail(row scanner, extra ...any) (*model.DetectedEmail, error) {
	var e model.DetectedEmail
	var catID, catName, catColor *string

	dest := []any{
		&e.ID,
		&e.OrgID,
		&e.IntegrationID,
		&e.SenderEmail,
		&e.SenderName,
		&e.Subject,
		&e.Snippet,
		&e.ReceivedAt,
		&e.CategoryID,
		&e.IsRead,
		&e.IsArchived,
		&e.IsForwarded,
		&e.CreatedAt,
		&catID,
		&catName,
		&catColor,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if catID != nil {
		e.Category = &model.CategoryRef{ID: *catID}
		if catName != nil {
			e.Category.Name = *catName
		}
		if catColor != nil {
			e.Category.Color = *catColor
		}
	}
	return &e, nil
}

// List 分页查询邮件，按 received_at 倒序，返回总数
func (r *EmailRepository) List(ctx context.Context, orgID string, f model.EmailFilter) ([]model.DetectedEmail, int, error) {
	defer observe("select", "detected_emails", time.Now())
	f.Normalize()

	where := []string{"e.org_id = $1"}
	args := []any{orgID}
	if f.CategoryID != nil {
		args = append(args, *f.CategoryID)
		where = append(where, fmt.Sprintf("e.category_id = $%d", len(args)))
	}
	if f.IsRead != nil {
		args = append(args, *f.IsRead)
		where = append(where, fmt.Sprintf("e.is_read = $%d", len(args)))
	}
	if f.IsArchived != nil {
		args = append(args, *f.IsArchived)
		where = append(where, fmt.Sprintf("e.is_archived = $%d", len(args)))
	}
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	query := fmt.Sprintf(`
        SELECT %s, COUNT(*) OVER() AS total
        FROM %s
        WHERE %s
        ORDER BY e.received_at DESC
        LIMIT $%d OFFSET $%d
    `, emailColumns, emailFrom, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list detected emails: %w", err)
	}
	defer rows.Close()

	items := []model.DetectedEmail{}
	total := 0
	for rows.Next() {
		e, err := scanEmail(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan detected email: %w", err)
		}
		items = append(items, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list detected emails: %w", err)
	}
	return items, total, nil
}

func (r *EmailRepository) Get(ctx context.Context, orgID, id string) (*model.DetectedEmail, error) {
	defer observe("select", "detected_emails", time.Now())

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE e.id = $1 AND e.org_id = $2`, emailColumns, emailFrom)
	e, err := scanEmail(r.db.QueryRow(ctx, query, id, orgID))
	if err != nil {
		return nil, notFound(err, "get detected email")
	}
	return e, nil
}

// Update 修改已读 / 归档 / 分类状态
func (r *EmailRepository) Update(ctx context.Context, orgID, id string, p model.EmailPatch) (*model.DetectedEmail, error) {
	defer observe("update", "detected_emails", time.Now())

	var b updateBuilder
	if p.IsRead != nil {
		b.set("is_read", *p.IsRead)
	}
	if p.IsArchived != nil {
		b.set("is_archived", *p.IsArchived)
	}
	if p.ClearCategory {
		b.setRaw("category_id = NULL")
	} else if p.CategoryID != nil {
		b.set("category_id", *p.CategoryID)
	}
	if b.empty() {
		return r.Get(ctx, orgID, id)
	}

	query := fmt.Sprintf(
		`UPDATE detected_emails SET %s WHERE id = %s AND org_id = %s`,
		b.clause(), b.arg(id), b.arg(orgID),
	)
	tag, err := r.db.Exec(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("update detected email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("update detected email: %w", ErrNotFound)
	}
	return r.Get(ctx, orgID, id)
}

// ListUnforwarded 返回已分类但尚未转发的邮件（最新的在前）
func (r *EmailRepository) ListUnforwarded(ctx context.Context, orgID string, limit int) ([]model.DetectedEmail, error) {
	defer observe("select", "detected_emails", time.Now())

	query := fmt.Sprintf(`
        SELECT %s
        FROM %s
        WHERE e.org_id = $1
          AND e.is_forwarded = FALSE
          AND e.category_id IS NOT NULL
        ORDER BY e.received_at DESC
        LIMIT $2
    `, emailColumns, emailFrom)

	rows, err := r.db.Query(ctx, query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("list unforwarded emails: %w", err)
	}
	defer rows.Close()

	var emails []model.DetectedEmail
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan detected email: %w", err)
		}
		emails = append(emails, *e)
	}
	return emails, rows.Err()
}

// MarkForwarded sets is_forwarded = true. Calling it twice is harmless.
func (r *EmailRepository) MarkForwarded(ctx context.Context, orgID, id string) error {
	defer observe("update", "detected_emails", time.Now())

	tag, err := r.db.Exec(ctx,
		`UPDATE detected_emails SET is_forwarded = TRUE WHERE id = $1 AND org_id = $2`,
		id, orgID,
	)
	if err != nil {
		r.logger.Error("Failed to mark email forwarded",
			zap.String("org_id", orgID),
			zap.String("email_id", id),
			zap.Error(err),
		)
		return fmt.Errorf("mark email forwarded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark email forwarded: %w", ErrNotFound)
	}
	return nil
}
