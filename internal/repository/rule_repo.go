package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"expensetracker/internal/model"
)

// r = email_forwarding_rules, c = email_categories
const ruleColumns = `r.id, r.org_id, r.name, r.description, r.category_id, r.notify_roles,
       r.notify_user_ids, r.notify_department_ids, r.notify_department_member_ids,
       r.notify_in_app, r.forward_email, r.is_active, r.created_by, r.created_at,
       r.updated_at, c.id, c.name, c.color`

const ruleFrom = `email_forwarding_rules r
        LEFT JOIN email_categories c ON c.id = r.category_id`

type RuleRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewRuleRepository(db *pgxpool.Pool, logger *zap.Logger) *RuleRepository {
	return &RuleRepository{db: db, logger: logger}
}

func (r *RuleRepository) scanRule(row scanner, extra ...any) (*model.ForwardingRule, error) {
	var rule model.ForwardingRule
	var roles []string
	var catID, catName, catColor *string

	dest := []any{
		&rule.ID,
		&rule.OrgID,
		&rule.Name,
		&rule.Description,
		&rule.CategoryID,
		&roles,
		&rule.NotifyUserIDs,
		&rule.NotifyDepartmentIDs,
		&rule.NotifyDepartmentMemberIDs,
		&rule.NotifyInApp,
		&rule.ForwardEmail,
		&rule.IsActive,
		&rule.CreatedBy,
		&rule.CreatedAt,
		&rule.UpdatedAt,
		&catID,
		&catName,
		&catColor,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	// 存储层里的角色是字符串，未知角色丢弃并告警
	valid, unknown := model.MembershipRoles(strings.Join(roles, ","))
	if len(unknown) > 0 {
		r.logger.Warn("Forwarding rule references unknown roles",
			zap.String("rule_id", rule.ID),
			zap.Strings("roles", unknown),
		)
	}
	rule.NotifyRoles = valid

	if catID != nil {
		rule.Category = &model.CategoryRef{ID: *catID}
		if catName != nil {
			rule.Category.Name = *catName
		}
		if catColor != nil {
			rule.Category.Color = *catColor
		}
	}
	return &rule, nil
}

func (r *RuleRepository) queryRules(ctx context.Context, what, query string, args ...any) ([]model.ForwardingRule, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()

	rules := []model.ForwardingRule{}
	for rows.Next() {
		rule, err := r.scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan forwarding rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return rules, nil
}

// List returns the org's rules ordered by name.
func (r *RuleRepository) List(ctx context.Context, orgID string, includeInactive bool) ([]model.ForwardingRule, int, error) {
	defer observe("select", "email_forwarding_rules", time.Now())

	query := fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE r.org_id = $1 AND ($2 OR r.is_active)
        ORDER BY r.name ASC
    `, ruleColumns, ruleFrom)
	rules, err := r.queryRules(ctx, "list forwarding rules", query, orgID, includeInactive)
	if err != nil {
		return nil, 0, err
	}
	return rules, len(rules), nil
}

// ListActiveByCategory 规则匹配：同组织、启用、分类一致
func (r *RuleRepository) ListActiveByCategory(ctx context.Context, orgID, categoryID string) ([]model.ForwardingRule, error) {
	defer observe("select", "email_forwarding_rules", time.Now())

	query := fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE r.org_id = $1 AND r.category_id = $2 AND r.is_active = TRUE
    `, ruleColumns, ruleFrom)
	return r.queryRules(ctx, "list active rules by category", query, orgID, categoryID)
}

func (r *RuleRepository) Get(ctx context.Context, orgID, id string) (*model.ForwardingRule, error) {
	defer observe("select", "email_forwarding_rules", time.Now())

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE r.id = $1 AND r.org_id = $2`, ruleColumns, ruleFrom)
	rule, err := r.scanRule(r.db.QueryRow(ctx, query, id, orgID))
	if err != nil {
		return nil, notFound(err, "get forwarding rule")
	}
	return rule, nil
}

// ensureCategory 校验分类属于同一组织
func ensureCategory(ctx context.Context, tx pgx.Tx, orgID, categoryID string) error {
	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM email_categories WHERE id = $1 AND org_id = $2)`,
		categoryID, orgID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check category: %w", err)
	}
	if !exists {
		return ErrCategoryNotFound
	}
	return nil
}

func validateRoles(roles []model.Role) error {
	for _, role := range roles {
		if !role.Valid() {
			return fmt.Errorf("%w: %q", model.ErrInvalidRole, role)
		}
	}
	return nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (r *RuleRepository) Create(ctx context.Context, orgID, userID string, in model.CreateRuleInput) (*model.ForwardingRule, error) {
	defer observe("insert", "email_forwarding_rules", time.Now())

	if err := validateRoles(in.NotifyRoles); err != nil {
		return nil, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := ensureCategory(ctx, tx, orgID, in.CategoryID); err != nil {
		return nil, err
	}

	var id string
	err = tx.QueryRow(ctx, `
        INSERT INTO email_forwarding_rules
            (org_id, name, description, category_id, notify_roles, notify_user_ids,
             notify_department_ids, notify_department_member_ids, notify_in_app,
             forward_email, is_active, created_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, $11)
        RETURNING id
    `,
		orgID, in.Name, in.Description, in.CategoryID,
		emptyIfNil(model.RoleStrings(in.NotifyRoles)),
		emptyIfNil(in.NotifyUserIDs),
		emptyIfNil(in.NotifyDepartmentIDs),
		emptyIfNil(in.NotifyDepartmentMemberIDs),
		in.NotifyInApp, in.ForwardEmail, userID,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("create forwarding rule: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create forwarding rule: %w", err)
	}

	r.logger.Info("Forwarding rule created",
		zap.String("org_id", orgID),
		zap.String("rule_id", id),
		zap.String("category_id", in.CategoryID),
	)
	return r.Get(ctx, orgID, id)
}

// Update applies a partial update; a new category must belong to the same org.
func (r *RuleRepository) Update(ctx context.Context, orgID, id string, in model.UpdateRuleInput) (*model.ForwardingRule, error) {
	defer observe("update", "email_forwarding_rules", time.Now())

	var b updateBuilder
	b.setRaw("updated_at = NOW()")
	if in.Name != nil {
		b.set("name", *in.Name)
	}
	if in.Description != nil {
		b.set("description", *in.Description)
	}
	if in.CategoryID != nil {
		b.set("category_id", *in.CategoryID)
	}
	if in.NotifyRoles != nil {
		if err := validateRoles(*in.NotifyRoles); err != nil {
			return nil, err
		}
		b.set("notify_roles", emptyIfNil(model.RoleStrings(*in.NotifyRoles)))
	}
	if in.NotifyUserIDs != nil {
		b.set("notify_user_ids", emptyIfNil(*in.NotifyUserIDs))
	}
	if in.NotifyDepartmentIDs != nil {
		b.set("notify_department_ids", emptyIfNil(*in.NotifyDepartmentIDs))
	}
	if in.NotifyDepartmentMemberIDs != nil {
		b.set("notify_department_member_ids", emptyIfNil(*in.NotifyDepartmentMemberIDs))
	}
	if in.NotifyInApp != nil {
		b.set("notify_in_app", *in.NotifyInApp)
	}
	if in.ForwardEmail != nil {
		b.set("forward_email", *in.ForwardEmail)
	}
	if in.IsActive != nil {
		b.set("is_active", *in.IsActive)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if in.CategoryID != nil {
		if err := ensureCategory(ctx, tx, orgID, *in.CategoryID); err != nil {
			return nil, err
		}
	}

	query := fmt.Sprintf(
		`UPDATE email_forwarding_rules SET %s WHERE id = %s AND org_id = %s`,
		b.clause(), b.arg(id), b.arg(orgID),
	)
	tag, err := tx.Exec(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("update forwarding rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("update forwarding rule: %w", ErrNotFound)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update forwarding rule: %w", err)
	}

	return r.Get(ctx, orgID, id)
}

func (r *RuleRepository) Delete(ctx context.Context, orgID, id string) error {
	defer observe("delete", "email_forwarding_rules", time.Now())

	tag, err := r.db.Exec(ctx, `DELETE FROM email_forwarding_rules WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("delete forwarding rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete forwarding rule: %w", ErrNotFound)
	}
	r.logger.Info("Forwarding rule deleted", zap.String("org_id", orgID), zap.String("rule_id", id))
	return nil
}

var ruleListing = crossOrgListing{
	alias:        "r",
	searchColumn: "name",
	defaultSort:  "name",
	sortable:     map[string]bool{"name": true, "created_at": true, "updated_at": true},
}

// ListAll lists rules across every organization, with the organization
// joined in. Superadmin only.
func (r *RuleRepository) ListAll(ctx context.Context, q model.CrossOrgQuery) (*model.CrossOrgPage[model.RuleWithOrg], error) {
	defer observe("select", "email_forwarding_rules", time.Now())

	q.Normalize()
	where, tail, args, err := ruleListing.clauses(q)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
        SELECT %s, o.id, o.name, COUNT(*) OVER() AS total
        FROM %s
        LEFT JOIN organization o ON o.id = r.org_id
        WHERE %s
        %s
    `, ruleColumns, ruleFrom, where, tail)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list all forwarding rules: %w", err)
	}
	defer rows.Close()

	page := &model.CrossOrgPage[model.RuleWithOrg]{Items: []model.RuleWithOrg{}, Page: q.Page, Limit: q.Limit}
	for rows.Next() {
		var orgID, orgName *string
		rule, err := r.scanRule(rows, &orgID, &orgName, &page.Total)
		if err != nil {
			return nil, fmt.Errorf("scan forwarding rule: %w", err)
		}
		page.Items = append(page.Items, model.RuleWithOrg{ForwardingRule: *rule, Organization: orgRef(orgID, orgName)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list all forwarding rules: %w", err)
	}
	return page, nil
}

// Stats 跨组织统计规则数量
func (r *RuleRepository) Stats(ctx context.Context) (*model.CrossOrgStats, error) {
	defer observe("select", "email_forwarding_rules", time.Now())
	return crossOrgStats(ctx, r.db, "email_forwarding_rules")
}
