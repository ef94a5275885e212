package mq

import (
	"testing"
	"time"
)

func TestEmailSyncedPayload_DedupID(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		name string
		p    EmailSyncedPayload
		want string
	}{
		{"event id wins", EmailSyncedPayload{EventID: "ev-1", IntegrationID: "int-1", SyncedAt: at}, "ev-1"},
		{"derived from integration and time", EmailSyncedPayload{IntegrationID: "int-1", SyncedAt: at}, "int-1:2024-05-01T09:00:00Z"},
		{"nothing to dedup on", EmailSyncedPayload{IntegrationID: "int-1"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.DedupID(); got != tt.want {
				t.Errorf("DedupID() = %q, want %q", got, tt.want)
			}
		})
	}
}
