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

const integrationColumns = `id, org_id, user_id, provider, email_address, is_active,
       last_sync_at, sync_error, created_at, updated_at`

type IntegrationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewIntegrationRepository(db *pgxpool.Pool, logger *zap.Logger) *IntegrationRepository {
	return &IntegrationRepository{db: db, logger: logger}
}

func scanIntegration(row scanner, extra ...any) (*model.EmailIntegration, error) {
	var in model.EmailIntegration
	dest := []any{
		&in.ID,
		&in.OrgID,
		&in.UserID,
		&in.Provider,
		&in.EmailAddress,
		&in.IsActive,
		&in.LastSyncAt,
		&in.SyncError,
		&in.CreatedAt,
		&in.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &in, nil
}

// List 组织下的邮箱连接，最新的在前
func (r *IntegrationRepository) List(ctx context.Context, orgID string, includeInactive bool) ([]model.EmailIntegration, int, error) {
	defer observe("select", "email_integrations", time.Now())

	rows, err := r.db.Query(ctx, `
        SELECT `+integrationColumns+`
        FROM email_integrations
        WHERE org_id = $1 AND ($2 OR is_active)
        ORDER BY created_at DESC
    `, orgID, includeInactive)
	if err != nil {
		return nil, 0, fmt.Errorf("list email integrations: %w", err)
	}
	defer rows.Close()

	items := []model.EmailIntegration{}
	for rows.Next() {
		in, err := scanIntegration(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan email integration: %w", err)
		}
		items = append(items, *in)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list email integrations: %w", err)
	}
	return items, len(items), nil
}

func (r *IntegrationRepository) Get(ctx context.Context, orgID, id string) (*model.EmailIntegration, error) {
	defer observe("select", "email_integrations", time.Now())

	in, err := scanIntegration(r.db.QueryRow(ctx,
		`SELECT `+integrationColumns+` FROM email_integrations WHERE id = $1 AND org_id = $2`,
		id, orgID,
	))
	if err != nil {
		return nil, notFound(err, "get email integration")
	}
	return in, nil
}

// Connect 新建一个启用状态的邮箱连接。OAuth token 由上游写入，这里不处理。
func (r *IntegrationRepository) Connect(ctx context.Context, orgID, userID string, in model.ConnectIntegrationInput) (*model.EmailIntegration, error) {
	defer observe("insert", "email_integrations", time.Now())

	if !in.Provider.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidProvider, in.Provider)
	}
	address := strings.TrimSpace(in.EmailAddress)
	if address == "" {
		return nil, fmt.Errorf("connect email integration: email address is required")
	}

	created, err := scanIntegration(r.db.QueryRow(ctx, `
        INSERT INTO email_integrations (org_id, user_id, provider, email_address, is_active)
        VALUES ($1, $2, $3, $4, TRUE)
        RETURNING `+integrationColumns,
		orgID, userID, string(in.Provider), address,
	))
	if err != nil {
		r.logger.Error("Failed to connect email integration", zap.String("org_id", orgID), zap.Error(err))
		return nil, fmt.Errorf("connect email integration: %w", err)
	}

	r.logger.Info("Email integration connected",
		zap.String("org_id", orgID),
		zap.String("integration_id", created.ID),
		zap.String("provider", string(created.Provider)),
	)
	return created, nil
}

func (r *IntegrationRepository) Update(ctx context.Context, orgID, id string, p model.IntegrationPatch) (*model.EmailIntegration, error) {
	defer observe("update", "email_integrations", time.Now())

	var b updateBuilder
	b.setRaw("updated_at = NOW()")
	if p.Provider != nil {
		if !p.Provider.Valid() {
			return nil, fmt.Errorf("%w: %q", model.ErrInvalidProvider, *p.Provider)
		}
		b.set("provider", string(*p.Provider))
	}
	if p.IsActive != nil {
		b.set("is_active", *p.IsActive)
	}

	query := fmt.Sprintf(
		`UPDATE email_integrations SET %s WHERE id = %s AND org_id = %s RETURNING %s`,
		b.clause(), b.arg(id), b.arg(orgID), integrationColumns,
	)
	in, err := scanIntegration(r.db.QueryRow(ctx, query, b.args...))
	if err != nil {
		return nil, notFound(err, "update email integration")
	}
	return in, nil
}

// Disconnect 删除邮箱连接
func (r *IntegrationRepository) Disconnect(ctx context.Context, orgID, id string) error {
	defer observe("delete", "email_integrations", time.Now())

	tag, err := r.db.Exec(ctx, `DELETE FROM email_integrations WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("disconnect email integration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("disconnect email integration: %w", ErrNotFound)
	}
	r.logger.Info("Email integration disconnected", zap.String("org_id", orgID), zap.String("integration_id", id))
	return nil
}

// MarkSynced 记录同步时间；syncErr 为空时清空 sync_error
func (r *IntegrationRepository) MarkSynced(ctx context.Context, orgID, id, syncErr string) error {
	defer observe("update", "email_integrations", time.Now())

	tag, err := r.db.Exec(ctx, `
        UPDATE email_integrations
        SET last_sync_at = NOW(), sync_error = NULLIF($3, ''), updated_at = NOW()
        WHERE id = $1 AND org_id = $2
    `, id, orgID, syncErr)
	if err != nil {
		return fmt.Errorf("mark integration synced: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark integration synced: %w", ErrNotFound)
	}
	return nil
}

func (r *IntegrationRepository) MarkSyncFailed(ctx context.Context, orgID, id, msg string) error {
	defer observe("update", "email_integrations", time.Now())

	_, err := r.db.Exec(ctx, `
        UPDATE email_integrations
        SET sync_error = $3, updated_at = NOW()
        WHERE id = $1 AND org_id = $2
    `, id, orgID, msg)
	if err != nil {
		r.logger.Error("Failed to record sync error",
			zap.String("org_id", orgID),
			zap.String("integration_id", id),
			zap.Error(err),
		)
		return fmt.Errorf("mark integration sync failed: %w", err)
	}
	return nil
}

var integrationListing = crossOrgListing{
	alias:        "i",
	searchColumn: "email_address",
	defaultSort:  "email_address",
	sortable: map[string]bool{
		"email_address": true,
		"provider":      true,
		"created_at":    true,
		"last_sync_at":  true,
	},
}

// ListAll 跨组织列出邮箱连接（superadmin）
func (r *IntegrationRepository) ListAll(ctx context.Context, q model.CrossOrgQuery) (*model.CrossOrgPage[model.IntegrationWithOrg], error) {
	defer observe("select", "email_integrations", time.Now())

	q.Normalize()
	where, tail, args, err := integrationListing.clauses(q)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
        SELECT %s, o.id, o.name, COUNT(*) OVER() AS total
        FROM email_integrations i
        LEFT JOIN organization o ON o.id = i.org_id
        WHERE %s
        %s
    `, qualify("i", integrationColumns), where, tail)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list all email integrations: %w", err)
	}
	defer rows.Close()

	page := &model.CrossOrgPage[model.IntegrationWithOrg]{Items: []model.IntegrationWithOrg{}, Page: q.Page, Limit: q.Limit}
	for rows.Next() {
		var orgID, orgName *string
		in, err := scanIntegration(rows, &orgID, &orgName, &page.Total)
		if err != nil {
			return nil, fmt.Errorf("scan email integration: %w", err)
		}
		page.Items = append(page.Items, model.IntegrationWithOrg{EmailIntegration: *in, Organization: orgRef(orgID, orgName)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list all email integrations: %w", err)
	}
	return page, nil
}

// Stats 跨组织统计邮箱连接数量
func (r *IntegrationRepository) Stats(ctx context.Context) (*model.CrossOrgStats, error) {
	defer observe("select", "email_integrations", time.Now())
	return crossOrgStats(ctx, r.db, "email_integrations")
}
