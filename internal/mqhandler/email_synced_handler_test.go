package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	mqcontracts "expensetracker/contracts/mq"
	"expensetracker/internal/repository"
	"expensetracker/internal/service/emailsync"
	"expensetracker/pkg/mq"
	"expensetracker/pkg/trace"
)

type fakeSyncer struct {
	err      error
	calls    int
	traceIDs []string
	// panicOnCall 为 n 时第 n 次调用 panic
	panicOnCall int
}

func (f *fakeSyncer) Sync(ctx context.Context, orgID, integrationID string) (*emailsync.Result, error) {
	f.calls++
	f.traceIDs = append(f.traceIDs, trace.FromContext(ctx))
	if f.calls == f.panicOnCall {
		panic("sync exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &emailsync.Result{IntegrationID: integrationID, SyncedCount: 2, NotificationsSent: 5, EmailsForwarded: 1}, nil
}

type fakeDeduper struct {
	seen     map[string]bool
	released []string
}

func (f *fakeDeduper) AcquireOnce(_ context.Context, handler, eventID string) bool {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	key := handler + ":" + eventID
	if f.seen[key] {
		return false
	}
	f.seen[key] = true
	return true
}

func (f *fakeDeduper) Release(_ context.Context, handler, eventID string) {
	delete(f.seen, handler+":"+eventID)
	f.released = append(f.released, eventID)
}

type fakeRetryCounter struct {
	counts map[string]int64
	resets int
}

func (f *fakeRetryCounter) IncrementAndGet(_ context.Context, key string) (int64, error) {
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRetryCounter) Reset(_ context.Context, key string) error {
	delete(f.counts, key)
	f.resets++
	return nil
}

type published struct {
	routingKey string
	payload    any
}

type fakePublisher struct {
	events []published
	dlq    []string
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, payload any) error {
	f.events = append(f.events, published{routingKey: routingKey, payload: payload})
	return nil
}

func (f *fakePublisher) PublishToDLQ(_ context.Context, routingKey string, _ []byte, originalError string) error {
	f.dlq = append(f.dlq, routingKey+": "+originalError)
	return nil
}

type fixture struct {
	syncer  *fakeSyncer
	deduper *fakeDeduper
	retries *fakeRetryCounter
	pub     *fakePublisher
	handler *EmailSyncedHandler
}

func newFixture(syncErr error) *fixture {
	f := &fixture{
		syncer:  &fakeSyncer{err: syncErr},
		deduper: &fakeDeduper{},
		retries: &fakeRetryCounter{},
		pub:     &fakePublisher{},
	}
	f.handler = NewEmailSyncedHandler(f.syncer, f.deduper, f.retries, f.pub, 3, zap.NewNop())
	return f
}

func payload(t *testing.T, p mqcontracts.EmailSyncedPayload) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func TestHandle_PublishesCompletedEvent(t *testing.T) {
	f := newFixture(nil)
	raw := payload(t, mqcontracts.EmailSyncedPayload{EventID: "ev-1", OrgID: "org-1", IntegrationID: "int-1", TraceID: "abc"})

	if err := f.handler.Handle(context.Background(), raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.pub.events) != 1 || f.pub.events[0].routingKey != mq.RoutingKeyForwardingCompleted {
		t.Fatalf("expected one completed event, got %+v", f.pub.events)
	}
	done := f.pub.events[0].payload.(mqcontracts.ForwardingCompletedPayload)
	if done.NotificationsSent != 5 || done.EmailsForwarded != 1 || done.TraceID != "abc" {
		t.Errorf("unexpected completed payload %+v", done)
	}
	if f.syncer.traceIDs[0] != "abc" {
		t.Errorf("expected trace id propagated to sync, got %q", f.syncer.traceIDs[0])
	}
}

func TestHandle_GeneratesTraceIDWhenMissing(t *testing.T) {
	f := newFixture(nil)
	raw := payload(t, mqcontracts.EmailSyncedPayload{EventID: "ev-1", OrgID: "org-1", IntegrationID: "int-1"})

	if err := f.handler.Handle(context.Background(), raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.syncer.traceIDs[0]) != 32 {
		t.Errorf("expected generated 32-char trace id, got %q", f.syncer.traceIDs[0])
	}
}

func TestHandle_DuplicateEventProcessedOnce(t *testing.T) {
	f := newFixture(nil)
	raw := payload(t, mqcontracts.EmailSyncedPayload{EventID: "ev-1", OrgID: "org-1", IntegrationID: "int-1"})

	for i := 0; i < 2; i++ {
		if err := f.handler.Handle(context.Background(), raw); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if f.syncer.calls != 1 {
		t.Errorf("expected sync to run once, got %d", f.syncer.calls)
	}
}

func TestHandle_MalformedPayloadGoesToDLQ(t *testing.T) {
	f := newFixture(nil)

	if err := f.handler.Handle(context.Background(), json.RawMessage(`{"org_id":`)); err != nil {
		t.Fatalf("malformed payload must be acked, got %v", err)
	}
	if len(f.pub.dlq) != 1 {
		t.Errorf("expected DLQ publish, got %v", f.pub.dlq)
	}
	if f.syncer.calls != 0 {
		t.Error("sync must not run")
	}
}

func TestHandle_MissingIDsGoToDLQ(t *testing.T) {
	f := newFixture(nil)
	raw := payload(t, mqcontracts.EmailSyncedPayload{EventID: "ev-1", OrgID: "org-1"})

	if err := f.handler.Handle(context.Background(), raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.pub.dlq) != 1 || f.syncer.calls != 0 {
		t.Errorf("expected DLQ without sync, dlq=%v calls=%d", f.pub.dlq, f.syncer.calls)
	}
}

func TestHandle_NotFoundIsNotRetried(t *testing.T) {
	f := newFixture(fmt.Errorf("load integration: %w", repository.ErrNotFound))
	raw := payload(t, mqcontracts.EmailSyncedPayload{EventID: "ev-1", OrgID: "org-1", IntegrationID: "gone"})

	if err := f.handler.Handle(context.Background(), raw); err != nil {
		t.Fatalf("not found must be acked, got %v", err)
	}
	if len(f.pub.dlq) != 1 {
		t.Errorf("expected DLQ publish, got %v", f.pub.dlq)
	}
}

func TestHandle_RetriesThenDeadLetters(t *testing.T) {
	f := newFixture(errors.New("connection refused"))
	raw := payload(t, mqcontracts.EmailSyncedPayload{EventID: "ev-1", OrgID: "org-1", IntegrationID: "int-1"})

	for i := 1; i <= 3; i++ {
		if err := f.handler.Handle(context.Background(), raw); err == nil {
			t.Fatalf("attempt %d: expected error to requeue", i)
		}
	}
	if len(f.deduper.released) != 3 {
		t.Errorf("dedup key should be released on each retry, got %d", len(f.deduper.released))
	}
	if len(f.pub.dlq) != 0 {
		t.Fatalf("nothing should be dead-lettered yet, got %v", f.pub.dlq)
	}

	if err := f.handler.Handle(context.Background(), raw); err != nil {
		t.Fatalf("expected ack after max retries, got %v", err)
	}
	if len(f.pub.dlq) != 1 {
		t.Errorf("expected DLQ publish after max retries, got %v", f.pub.dlq)
	}
	if f.syncer.calls != 4 {
		t.Errorf("expected 4 sync attempts, got %d", f.syncer.calls)
	}
	if len(f.pub.events) != 0 {
		t.Error("no completed event should be published on failure")
	}
}

func TestHandle_PanicReleasesDedupKeyForRedelivery(t *testing.T) {
	f := newFixture(nil)
	f.syncer.panicOnCall = 1
	raw := payload(t, mqcontracts.EmailSyncedPayload{EventID: "ev-1", OrgID: "org-1", IntegrationID: "int-1"})

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected the panic to reach the consumer")
			}
		}()
		_ = f.handler.Handle(context.Background(), raw)
	}()

	if len(f.deduper.released) != 1 || f.deduper.released[0] != "ev-1" {
		t.Fatalf("expected dedup key released after panic, got %v", f.deduper.released)
	}

	// consumer nack + requeue 之后的重新投递
	if err := f.handler.Handle(context.Background(), raw); err != nil {
		t.Fatalf("unexpected error on redelivery: %v", err)
	}
	if f.syncer.calls != 2 {
		t.Errorf("redelivery must run sync again, got %d calls", f.syncer.calls)
	}
	if len(f.pub.events) != 1 {
		t.Errorf("expected completed event after redelivery, got %d", len(f.pub.events))
	}
}
