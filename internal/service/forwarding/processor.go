package forwarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"expensetracker/internal/model"
	"expensetracker/pkg/logger"
	"expensetracker/pkg/metrics"
)

var ErrOrgMismatch = errors.New("email belongs to another organization")

// EmailResult is the outcome for one email of a batch. A failed email reports
// zero counts and carries its error.
type EmailResult struct {
	EmailID           string `json:"email_id"`
	RulesMatched      int    `json:"rules_matched"`
	NotificationsSent int    `json:"notifications_sent"`
	EmailForwarded    bool   `json:"email_forwarded"`
	Skipped           bool   `json:"skipped,omitempty"`
	Err               error  `json:"-"`
}

type BatchResult struct {
	Results           []EmailResult `json:"results"`
	NotificationsSent int           `json:"notifications_sent"`
	EmailsForwarded   int           `json:"emails_forwarded"`
	Failed            int           `json:"failed"`
}

// Processor 批处理编排：匹配 → 解析收件人 → 投递，逐封顺序执行
type Processor struct {
	matcher  *Matcher
	resolver *Resolver
	notifier *Notifier
	logger   *zap.Logger
}

func NewProcessor(matcher *Matcher, resolver *Resolver, notifier *Notifier, logger *zap.Logger) *Processor {
	return &Processor{
		matcher:  matcher,
		resolver: resolver,
		notifier: notifier,
		logger:   logger,
	}
}

// New wires a Processor straight from its stores.
func New(rules RuleStore, dir Directory, notifications NotificationStore, emails EmailStore, log *zap.Logger) *Processor {
	return NewProcessor(
		NewMatcher(rules, log),
		NewResolver(dir, log),
		NewNotifier(notifications, emails, log),
		log,
	)
}

// ProcessBatch runs the pipeline for every email and returns one result per
// input email plus totals. A failing email is logged and counted as zero; it
// never stops the rest of the batch.
func (p *Processor) ProcessBatch(ctx context.Context, orgID string, emails []model.DetectedEmail) *BatchResult {
	start := time.Now()
	log := logger.WithTrace(ctx, p.logger).With(zap.String("org_id", orgID))
	cache := NewRequestCache()

	out := &BatchResult{Results: make([]EmailResult, 0, len(emails))}
	for i := range emails {
		email := &emails[i]

		res, err := p.processEmail(ctx, cache, orgID, email)
		if err != nil {
			log.Error("Failed to forward email",
				zap.String("email_id", email.ID),
				zap.Error(err),
			)
			metrics.IncrementEmailProcessed("failed")
			out.Failed++
			out.Results = append(out.Results, EmailResult{EmailID: email.ID, Err: err})
			continue
		}

		switch {
		case res.Skipped:
			metrics.IncrementEmailProcessed("skipped")
		case res.RulesMatched == 0:
			metrics.IncrementEmailProcessed("no_rules")
		default:
			metrics.IncrementEmailProcessed("processed")
		}

		out.NotificationsSent += res.NotificationsSent
		if res.EmailForwarded {
			out.EmailsForwarded++
		}
		out.Results = append(out.Results, res)
	}

	metrics.RecordForwardingBatch(time.Since(start))
	log.Info("Forwarding batch processed",
		zap.Int("emails", len(emails)),
		zap.Int("notifications_sent", out.NotificationsSent),
		zap.Int("emails_forwarded", out.EmailsForwarded),
		zap.Int("failed", out.Failed),
		zap.Duration("duration", time.Since(start)),
	)
	return out
}

func (p *Processor) processEmail(ctx context.Context, cache *RequestCache, orgID string, email *model.DetectedEmail) (EmailResult, error) {
	res := EmailResult{EmailID: email.ID}

	if email.OrgID != orgID {
		return res, fmt.Errorf("email %s: %w", email.ID, ErrOrgMismatch)
	}
	// 未分类邮件不参与转发
	if !email.HasCategory() {
		res.Skipped = true
		return res, nil
	}

	rules, err := p.matcher.FindApplicableRules(ctx, cache, orgID, *email.CategoryID)
	if err != nil {
		return EmailResult{EmailID: email.ID}, err
	}
	res.RulesMatched = len(rules)
	metrics.AddRulesMatched(len(rules))

	for i := range rules {
		rule := &rules[i]

		recipients, err := p.resolver.ResolveRecipients(ctx, cache, rule, orgID)
		if err != nil {
			return EmailResult{EmailID: email.ID}, err
		}

		fo, err := p.notifier.FanOut(ctx, email, rule, recipients)
		if err != nil {
			return EmailResult{EmailID: email.ID}, err
		}
		res.NotificationsSent += fo.NotificationsSent
		if fo.EmailForwarded {
			res.EmailForwarded = true
		}
	}
	return res, nil
}
