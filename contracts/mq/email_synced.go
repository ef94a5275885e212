package mq

import "time"

// EmailSyncedPayload 邮箱同步完成事件，触发转发流水线
type EmailSyncedPayload struct {
	EventID       string    `json:"event_id"`
	OrgID         string    `json:"org_id"`
	IntegrationID string    `json:"integration_id"`
	TraceID       string    `json:"trace_id,omitempty"`
	SyncedAt      time.Time `json:"synced_at"`
}

// DedupID 优先使用 event_id，缺省时由 integration + 同步时间拼出
func (p EmailSyncedPayload) DedupID() string {
	if p.EventID != "" {
		return p.EventID
	}
	if p.SyncedAt.IsZero() {
		return ""
	}
	return p.IntegrationID + ":" + p.SyncedAt.UTC().Format(time.RFC3339Nano)
}

// ForwardingCompletedPayload is published after a sync event went through
// the forwarding pipeline.
type ForwardingCompletedPayload struct {
	EventID           string    `json:"event_id"`
	OrgID             string    `json:"org_id"`
	IntegrationID     string    `json:"integration_id"`
	TraceID           string    `json:"trace_id,omitempty"`
	SyncedCount       int       `json:"synced_count"`
	NotificationsSent int       `json:"notifications_sent"`
	EmailsForwarded   int       `json:"emails_forwarded"`
	Failed            int       `json:"failed"`
	CompletedAt       time.Time `json:"completed_at"`
}
