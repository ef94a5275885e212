package forwarding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"expensetracker/internal/model"
	"expensetracker/pkg/metrics"
)

// FanOutResult 单条规则对单封邮件的投递结果
type FanOutResult struct {
	NotificationsSent int  `json:"notifications_sent"`
	EmailForwarded    bool `json:"email_forwarded"`
}

// Notifier writes in-app notifications and flips the forwarded flag.
type Notifier struct {
	notifications NotificationStore
	emails        EmailStore
	logger        *zap.Logger
}

func NewNotifier(notifications NotificationStore, emails EmailStore, logger *zap.Logger) *Notifier {
	return &Notifier{
		notifications: notifications,
		emails:        emails,
		logger:        logger,
	}
}

// FanOut creates one notification per recipient in a single batch insert when
// the rule notifies in-app, and marks the email forwarded when the rule
// forwards. The two channels are independent. Calling it twice for the same
// email and rule creates duplicate notifications.
func (n *Notifier) FanOut(ctx context.Context, email *model.DetectedEmail, rule *model.ForwardingRule, recipients Recipients) (FanOutResult, error) {
	var res FanOutResult

	if rule.NotifyInApp && len(recipients) > 0 {
		rows := buildNotifications(email, rule, recipients)
		inserted, err := n.notifications.InsertBatch(ctx, rows)
		if err != nil {
			return FanOutResult{}, fmt.Errorf("insert notifications for rule %s: %w", rule.ID, err)
		}
		if inserted != len(rows) {
			n.logger.Warn("Notification insert count mismatch",
				zap.String("email_id", email.ID),
				zap.String("rule_id", rule.ID),
				zap.Int("expected", len(rows)),
				zap.Int("inserted", inserted),
			)
		}
		res.NotificationsSent = len(rows)
		metrics.AddNotificationsCreated(string(model.NotificationEmailForwarded), len(rows))
	}

	if rule.ForwardEmail {
		if err := n.emails.MarkForwarded(ctx, email.OrgID, email.ID); err != nil {
			return FanOutResult{}, fmt.Errorf("mark email %s forwarded: %w", email.ID, err)
		}
		res.EmailForwarded = true
	}

	n.logger.Debug("Fan-out done",
		zap.String("email_id", email.ID),
		zap.String("rule_id", rule.ID),
		zap.Int("notifications_sent", res.NotificationsSent),
		zap.Bool("email_forwarded", res.EmailForwarded),
	)
	return res, nil
}

func categoryName(email *model.DetectedEmail, rule *model.ForwardingRule) string {
	if email.Category != nil && email.Category.Name != "" {
		return email.Category.Name
	}
	if rule.Category != nil && rule.Category.Name != "" {
		return rule.Category.Name
	}
	return "Uncategorized"
}

func notificationTitle(email *model.DetectedEmail, category string) string {
	subject := email.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	return fmt.Sprintf("[%s] %s", category, subject)
}

func notificationMessage(email *model.DetectedEmail, rule *model.ForwardingRule) string {
	return fmt.Sprintf("New email from %s matched rule %q.", email.Sender(), rule.Name)
}

// buildNotifications 每个收件人一行，按 user id 排序保证插入顺序稳定
func buildNotifications(email *model.DetectedEmail, rule *model.ForwardingRule, recipients Recipients) []model.NewNotification {
	category := categoryName(email, rule)
	title := notificationTitle(email, category)
	message := notificationMessage(email, rule)
	relatedType := model.RelatedTypeDetectedEmail
	relatedID := email.ID

	categoryID := rule.CategoryID
	if email.CategoryID != nil {
		categoryID = *email.CategoryID
	}

	rows := make([]model.NewNotification, 0, len(recipients))
	for _, userID := range recipients.Sorted() {
		rows = append(rows, model.NewNotification{
			OrgID:       email.OrgID,
			UserID:      userID,
			Type:        model.NotificationEmailForwarded,
			Title:       title,
			Message:     &message,
			RelatedType: &relatedType,
			RelatedID:   &relatedID,
			Metadata: map[string]interface{}{
				"rule_id":       rule.ID,
				"rule_name":     rule.Name,
				"category_id":   categoryID,
				"category_name": category,
				"sender_email":  email.SenderEmail,
			},
		})
	}
	return rows
}
