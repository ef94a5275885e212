package forwarding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"expensetracker/internal/model"
)

type Matcher struct {
	rules  RuleStore
	logger *zap.Logger
}

func NewMatcher(rules RuleStore, logger *zap.Logger) *Matcher {
	return &Matcher{rules: rules, logger: logger}
}

// FindApplicableRules returns the org's active rules bound to categoryID.
// An empty categoryID matches nothing.
func (m *Matcher) FindApplicableRules(ctx context.Context, cache *RequestCache, orgID, categoryID string) ([]model.ForwardingRule, error) {
	if categoryID == "" {
		return nil, nil
	}

	if rules, ok := cache.getRules(orgID, categoryID); ok {
		return rules, nil
	}

	stored, err := m.rules.ListActiveByCategory(ctx, orgID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("find applicable rules: %w", err)
	}

	// 再过滤一次：停用规则、跨组织 / 跨分类的行永远不参与匹配
	rules := make([]model.ForwardingRule, 0, len(stored))
	for _, r := range stored {
		if !r.IsActive || r.OrgID != orgID || r.CategoryID != categoryID {
			continue
		}
		rules = append(rules, r)
	}

	m.logger.Debug("Matched forwarding rules",
		zap.String("org_id", orgID),
		zap.String("category_id", categoryID),
		zap.Int("rules", len(rules)),
	)
	cache.putRules(orgID, categoryID, rules)
	return rules, nil
}
