package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"expensetracker/internal/model"
)

const categoryColumns = `id, org_id, name, description, color, keywords, sender_patterns,
       is_active, created_by, created_at, updated_at`

type CategoryRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewCategoryRepository(db *pgxpool.Pool, logger *zap.Logger) *CategoryRepository {
	return &CategoryRepository{db: db, logger: logger}
}

func scanCategory(row scanner, extra ...any) (*model.EmailCategory, error) {
	var c model.EmailCategory
	dest := []any{
		&c.ID,
		&c.OrgID,
		&c.Name,
		&c.Description,
		&c.Color,
		&c.Keywords,
		&c.SenderPatterns,
		&c.IsActive,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns the org's categories ordered by name, plus the total count.
func (r *CategoryRepository) List(ctx context.Context, orgID string, includeInactive bool) ([]model.EmailCategory, int, error) {
	defer observe("select", "email_categories", time.Now())

	query := `
        SELECT ` + categoryColumns + `
        FROM email_categories
        WHERE org_id = $1 AND ($2 OR is_active)
        ORDER BY name ASC
    `
	rows, err := r.db.Query(ctx, query, orgID, includeInactive)
	if err != nil {
		return nil, 0, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	items := []model.EmailCategory{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list categories: %w", err)
	}
	return items, len(items), nil
}

func (r *CategoryRepository) Get(ctx context.Context, orgID, id string) (*model.EmailCategory, error) {
	defer observe("select", "email_categories", time.Now())

	query := `SELECT ` + categoryColumns + ` FROM email_categories WHERE id = $1 AND org_id = $2`
	c, err := scanCategory(r.db.QueryRow(ctx, query, id, orgID))
	if err != nil {
		return nil, notFound(err, "get category")
	}
	return c, nil
}

func (r *CategoryRepository) Create(ctx context.Context, orgID, userID string, in model.CreateCategoryInput) (*model.EmailCategory, error) {
	defer observe("insert", "email_categories", time.Now())

	query := `
        INSERT INTO email_categories
            (org_id, name, description, color, keywords, sender_patterns, is_active, created_by)
        VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
        RETURNING ` + categoryColumns
	c, err := scanCategory(r.db.QueryRow(ctx, query,
		orgID, in.Name, in.Description, in.Color, emptyIfNil(in.Keywords), emptyIfNil(in.SenderPatterns), userID,
	))
	if err != nil {
		r.logger.Error("Failed to create category", zap.String("org_id", orgID), zap.Error(err))
		return nil, fmt.Errorf("create category: %w", err)
	}

	r.logger.Info("Category created",
		zap.String("org_id", orgID),
		zap.String("category_id", c.ID),
		zap.String("name", c.Name),
	)
	return c, nil
}

// Update applies a partial update and bumps updated_at.
func (r *CategoryRepository) Update(ctx context.Context, orgID, id string, in model.UpdateCategoryInput) (*model.EmailCategory, error) {
	defer observe("update", "email_categories", time.Now())

	var b updateBuilder
	b.setRaw("updated_at = NOW()")
	if in.Name != nil {
		b.set("name", *in.Name)
	}
	if in.Description != nil {
		b.set("description", *in.Description)
	}
	if in.Color != nil {
		b.set("color", *in.Color)
	}
	if in.Keywords != nil {
		b.set("keywords", emptyIfNil(*in.Keywords))
	}
	if in.SenderPatterns != nil {
		b.set("sender_patterns", emptyIfNil(*in.SenderPatterns))
	}
	if in.IsActive != nil {
		b.set("is_active", *in.IsActive)
	}

	query := fmt.Sprintf(
		`UPDATE email_categories SET %s WHERE id = %s AND org_id = %s RETURNING %s`,
		b.clause(), b.arg(id), b.arg(orgID), categoryColumns,
	)
	c, err := scanCategory(r.db.QueryRow(ctx, query, b.args...))
	if err != nil {
		return nil, notFound(err, "update category")
	}
	return c, nil
}

// Delete removes a category and nulls category_id on the org's detected emails
// in the same transaction.
func (r *CategoryRepository) Delete(ctx context.Context, orgID, id string) error {
	defer observe("delete", "email_categories", time.Now())

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE detected_emails SET category_id = NULL WHERE org_id = $1 AND category_id = $2`,
		orgID, id,
	)
	if err != nil {
		return fmt.Errorf("detach emails from category: %w", err)
	}
	detached := tag.RowsAffected()

	tag, err = tx.Exec(ctx, `DELETE FROM email_categories WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete category: %w", ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete category: %w", err)
	}

	r.logger.Info("Category deleted",
		zap.String("org_id", orgID),
		zap.String("category_id", id),
		zap.Int64("emails_detached", detached),
	)
	return nil
}

var categoryListing = crossOrgListing{
	alias:        "c",
	searchColumn: "name",
	defaultSort:  "name",
	sortable:     map[string]bool{"name": true, "created_at": true, "updated_at": true},
}

// ListAll 跨组织列出分类（superadmin）
func (r *CategoryRepository) ListAll(ctx context.Context, q model.CrossOrgQuery) (*model.CrossOrgPage[model.CategoryWithOrg], error) {
	defer observe("select", "email_categories", time.Now())

	q.Normalize()
	where, tail, args, err := categoryListing.clauses(q)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
        SELECT %s, o.id, o.name, COUNT(*) OVER() AS total
        FROM email_categories c
        LEFT JOIN organization o ON o.id = c.org_id
        WHERE %s
        %s
    `, qualify("c", categoryColumns), where, tail)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list all categories: %w", err)
	}
	defer rows.Close()

	page := &model.CrossOrgPage[model.CategoryWithOrg]{Items: []model.CategoryWithOrg{}, Page: q.Page, Limit: q.Limit}
	for rows.Next() {
		var orgID, orgName *string
		c, err := scanCategory(rows, &orgID, &orgName, &page.Total)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		page.Items = append(page.Items, model.CategoryWithOrg{EmailCategory: *c, Organization: orgRef(orgID, orgName)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list all categories: %w", err)
	}
	return page, nil
}

// Stats 跨组织统计分类数量
func (r *CategoryRepository) Stats(ctx context.Context) (*model.CrossOrgStats, error) {
	defer observe("select", "email_categories", time.Now())
	return crossOrgStats(ctx, r.db, "email_categories")
}
