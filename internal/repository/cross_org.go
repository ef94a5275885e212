package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"expensetracker/internal/model"
)

var ErrInvalidSort = errors.New("invalid sort column")

// crossOrgListing 描述一张可以跨组织分页列出的表
type crossOrgListing struct {
	alias        string
	searchColumn string
	defaultSort  string
	sortable     map[string]bool
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// clauses builds the WHERE condition and the ORDER BY / LIMIT / OFFSET tail
// for q. q must already be normalized.
func (l crossOrgListing) clauses(q model.CrossOrgQuery) (where, tail string, args []any, err error) {
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = l.defaultSort
	}
	if !l.sortable[sortBy] {
		return "", "", nil, fmt.Errorf("%w: %q", ErrInvalidSort, sortBy)
	}

	var conds []string
	add := func(format string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(format, len(args)))
	}
	if q.OrgID != "" {
		add(l.alias+".org_id = $%d", q.OrgID)
	}
	switch {
	case q.IsActive != nil:
		add(l.alias+".is_active = $%d", *q.IsActive)
	case !q.IncludeInactive:
		conds = append(conds, l.alias+".is_active")
	}
	if q.Search != "" {
		add(l.alias+"."+l.searchColumn+" ILIKE $%d", "%"+likeEscaper.Replace(q.Search)+"%")
	}

	where = "TRUE"
	if len(conds) > 0 {
		where = strings.Join(conds, " AND ")
	}

	dir := "ASC"
	if q.SortDesc {
		dir = "DESC"
	}
	args = append(args, q.Limit, (q.Page-1)*q.Limit)
	tail = fmt.Sprintf("ORDER BY %s.%s %s, %s.id ASC LIMIT $%d OFFSET $%d",
		l.alias, sortBy, dir, l.alias, len(args)-1, len(args))
	return where, tail, args, nil
}

// qualify 给逗号分隔的列名加上表别名
func qualify(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func orgRef(id, name *string) *model.OrgRef {
	if id == nil {
		return nil
	}
	ref := &model.OrgRef{ID: *id}
	if name != nil {
		ref.Name = *name
	}
	return ref
}

// crossOrgStats 对带 org_id / is_active 的表做按组织聚合
func crossOrgStats(ctx context.Context, db *pgxpool.Pool, table string) (*model.CrossOrgStats, error) {
	query := fmt.Sprintf(`
        SELECT t.org_id,
               COALESCE(o.name, 'Unknown') AS org_name,
               COUNT(*) FILTER (WHERE t.is_active) AS active,
               COUNT(*) AS total
        FROM %s t
        LEFT JOIN organization o ON o.id = t.org_id
        GROUP BY t.org_id, o.name
        ORDER BY org_name ASC
    `, table)

	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s stats: %w", table, err)
	}
	defer rows.Close()

	stats := &model.CrossOrgStats{ByOrg: []model.OrgCount{}}
	for rows.Next() {
		var oc model.OrgCount
		if err := rows.Scan(&oc.OrgID, &oc.OrgName, &oc.Active, &oc.Total); err != nil {
			return nil, fmt.Errorf("scan %s stats: %w", table, err)
		}
		stats.ByOrg = append(stats.ByOrg, oc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s stats: %w", table, err)
	}

	stats.TotalCount, stats.ActiveCount = sumOrgCounts(stats.ByOrg)
	return stats, nil
}

func sumOrgCounts(byOrg []model.OrgCount) (total, active int) {
	for _, oc := range byOrg {
		total += oc.Total
		active += oc.Active
	}
	return total, active
}
