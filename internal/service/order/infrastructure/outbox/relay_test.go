package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"meridian/internal/service/order/domain"
)

type fakeOutboxRepo struct {
	mu      sync.Mutex
	entries map[string]*domain.OutboxEntry
	order   []string

	findErr error
}

func newFakeOutboxRepo(entries ...*domain.OutboxEntry) *fakeOutboxRepo {
	r := &fakeOutboxRepo{entries: make(map[string]*domain.OutboxEntry)}
	for _, e := range entries {
		r.entries[e.ID] = e
		r.order = append(r.order, e.ID)
	}
	return r
}

func (r *fakeOutboxRepo) FindPending(ctx context.Context, limit int) ([]*domain.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []*domain.OutboxEntry
	for _, id := range r.order {
		if len(out) == limit {
			break
		}
		if entry := r.entries[id]; entry.Status == domain.OutboxStatusPending {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *fakeOutboxRepo) MarkPublished(ctx context.Context, id string) error {
	return r.setStatus(id, domain.OutboxStatusPublished)
}

func (r *fakeOutboxRepo) MarkFailed(ctx context.Context, id string) error {
	return r.setStatus(id, domain.OutboxStatusFailed)
}

func (r *fakeOutboxRepo) setStatus(id string, status domain.OutboxStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return errors.New("no such entry")
	}
	entry.Status = status
	return nil
}

func (r *fakeOutboxRepo) status(id string) domain.OutboxStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[id].Status
}

// fakeBusWriter 按 key 决定成败，记录写出的消息。
type fakeBusWriter struct {
	mu      sync.Mutex
	written []kafka.Message
	failFor map[string]error
}

func (w *fakeBusWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, msg := range msgs {
		if err, ok := w.failFor[string(msg.Key)]; ok {
			return err
		}
		w.written = append(w.written, msg)
	}
	return nil
}

func pendingEntry(id, aggregateID string) *domain.OutboxEntry {
	return &domain.OutboxEntry{
		ID:          id,
		AggregateID: aggregateID,
		Type:        domain.EventTypeOrderCreated,
		Payload:     []byte(`{"orderId":"` + aggregateID + `"}`),
		Status:      domain.OutboxStatusPending,
		CreatedAt:   time.Now(),
	}
}

func testRelay(repo *fakeOutboxRepo, writer BusWriter) *Relay {
	return NewRelay(repo, writer, nil, NopLeaser{}, noop.NewTracerProvider().Tracer("test"), time.Second, 100)
}

func TestSweepPublishesPendingEntries(t *testing.T) {
	repo := newFakeOutboxRepo(pendingEntry("ob-1", "order-1"), pendingEntry("ob-2", "order-2"))
	writer := &fakeBusWriter{}
	relay := testRelay(repo, writer)

	relay.sweep(context.Background())

	assert.Equal(t, domain.OutboxStatusPublished, repo.status("ob-1"))
	assert.Equal(t, domain.OutboxStatusPublished, repo.status("ob-2"))

	require.Len(t, writer.written, 2)
	msg := writer.written[0]
	assert.Equal(t, "order-created", msg.Topic)
	assert.Equal(t, "order-1", string(msg.Key))
	assert.JSONEq(t, `{"orderId":"order-1"}`, string(msg.Value))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, domain.EventTypeOrderCreated, headers["event-type"])
	assert.Equal(t, "ob-1", headers["outbox-id"])
}

func TestSweepRoutesEntriesToPerTypeTopics(t *testing.T) {
	paid := pendingEntry("ob-2", "order-1")
	paid.Type = domain.EventTypeOrderPaid
	cancelled := pendingEntry("ob-3", "order-2")
	cancelled.Type = domain.EventTypeOrderCancelled

	repo := newFakeOutboxRepo(pendingEntry("ob-1", "order-1"), paid, cancelled)
	writer := &fakeBusWriter{}
	resolver := ResolveTopics(map[string]string{domain.EventTypeOrderPaid: "billing-order-paid"})
	relay := NewRelay(repo, writer, resolver, NopLeaser{}, noop.NewTracerProvider().Tracer("test"), time.Second, 100)

	relay.sweep(context.Background())

	require.Len(t, writer.written, 3)
	assert.Equal(t, "order-created", writer.written[0].Topic)
	// 显式映射优先于按类型推导
	assert.Equal(t, "billing-order-paid", writer.written[1].Topic)
	assert.Equal(t, "order-cancelled", writer.written[2].Topic)
}

func TestSweepMarksFailedEntryTerminal(t *testing.T) {
	repo := newFakeOutboxRepo(pendingEntry("ob-1", "order-1"), pendingEntry("ob-2", "order-2"))
	writer := &fakeBusWriter{failFor: map[string]error{"order-1": errors.New("broker unreachable")}}
	relay := testRelay(repo, writer)

	relay.sweep(context.Background())

	// 失败的条目进入终态 FAILED，不影响后续条目
	assert.Equal(t, domain.OutboxStatusFailed, repo.status("ob-1"))
	assert.Equal(t, domain.OutboxStatusPublished, repo.status("ob-2"))

	// 再扫一轮不会重拾 FAILED 条目
	relay.sweep(context.Background())
	assert.Equal(t, domain.OutboxStatusFailed, repo.status("ob-1"))
	require.Len(t, writer.written, 1)
}

func TestSweepRespectsBatchLimit(t *testing.T) {
	repo := newFakeOutboxRepo(pendingEntry("ob-1", "order-1"), pendingEntry("ob-2", "order-2"), pendingEntry("ob-3", "order-3"))
	writer := &fakeBusWriter{}
	relay := NewRelay(repo, writer, nil, NopLeaser{}, noop.NewTracerProvider().Tracer("test"), time.Second, 2)

	relay.sweep(context.Background())
	assert.Len(t, writer.written, 2)
	assert.Equal(t, domain.OutboxStatusPending, repo.status("ob-3"))

	relay.sweep(context.Background())
	assert.Equal(t, domain.OutboxStatusPublished, repo.status("ob-3"))
}

func TestRelayStartAndShutdown(t *testing.T) {
	repo := newFakeOutboxRepo(pendingEntry("ob-1", "order-1"))
	writer := &fakeBusWriter{}
	relay := NewRelay(repo, writer, nil, NopLeaser{}, noop.NewTracerProvider().Tracer("test"), 10*time.Millisecond, 100)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, relay.Start(ctx))

	assert.Eventually(t, func() bool {
		return repo.status("ob-1") == domain.OutboxStatusPublished
	}, time.Second, 5*time.Millisecond)

	cancel()
	relay.Wait()
}
