package dispatch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"catalog/internal/dispatch"
	"catalog/internal/domain/event"
	"catalog/internal/domain/model"
	"catalog/internal/infra/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// done を呼ぶタイミングをテスト側で決める Publisher
type publisherStub struct {
	mu    sync.Mutex
	envs  []dispatch.Envelope
	dones []dispatch.DoneFunc
}

func (p *publisherStub) Publish(env dispatch.Envelope, done dispatch.DoneFunc) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
	p.dones = append(p.dones, done)
	return true
}

func (p *publisherStub) finishAll(ok bool) {
	p.mu.Lock()
	dones := p.dones
	p.dones = nil
	p.mu.Unlock()
	for _, d := range dones {
		d(ok)
	}
}

func (p *publisherStub) published() []dispatch.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]dispatch.Envelope(nil), p.envs...)
}

func addPendingRow(t *testing.T, store *memory.WriteStore, id string) {
	t.Helper()
	env := createdEnvelope(t)
	require.NoError(t, store.Outbox().Add(context.Background(), model.OutboxEvent{
		ID:          id,
		EventID:     env.EventID,
		TenantID:    env.TenantID,
		AggregateID: env.AggregateID,
		EventType:   string(env.Type),
		Version:     env.Version,
		Payload:     datatypes.JSON(env.Payload),
		Status:      model.OutboxStatusPending,
		CreatedAt:   time.Now(),
	}))
}

func pendingCount(t *testing.T, store *memory.WriteStore) int64 {
	t.Helper()
	n, err := store.Outbox().CountPending(context.Background())
	require.NoError(t, err)
	return n
}

func TestRelay_MarksPublishedAfterAllHandlersFinish(t *testing.T) {
	store := memory.NewWriteStore()
	addPendingRow(t, store, "row-1")
	pub := &publisherStub{}
	relay := dispatch.NewRelay(store.Outbox(), pub, time.Hour, 10, zap.NewNop())

	n, err := relay.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, relay.InFlight())
	assert.Equal(t, int64(1), pendingCount(t, store))

	// 配送中は拾い直さない
	n, err = relay.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	pub.finishAll(true)
	assert.Equal(t, 0, relay.InFlight())
	assert.Equal(t, int64(0), pendingCount(t, store))

	envs := pub.published()
	require.Len(t, envs, 1)
	assert.Equal(t, "row-1", envs[0].OutboxID)
	assert.Equal(t, event.TypeProductCreated, envs[0].Type)
}

func TestRelay_FailedDeliveryStaysPendingAndIsRetried(t *testing.T) {
	store := memory.NewWriteStore()
	addPendingRow(t, store, "row-1")
	pub := &publisherStub{}
	relay := dispatch.NewRelay(store.Outbox(), pub, time.Hour, 10, zap.NewNop())

	_, err := relay.PollOnce(context.Background())
	require.NoError(t, err)
	pub.finishAll(false)

	assert.Equal(t, int64(1), pendingCount(t, store))
	assert.Equal(t, 0, relay.InFlight())

	n, err := relay.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, pub.published(), 2)
}

func TestRelay_BatchSizeLimitsPoll(t *testing.T) {
	store := memory.NewWriteStore()
	addPendingRow(t, store, "row-1")
	addPendingRow(t, store, "row-2")
	addPendingRow(t, store, "row-3")
	pub := &publisherStub{}
	relay := dispatch.NewRelay(store.Outbox(), pub, time.Hour, 2, zap.NewNop())

	n, err := relay.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRelay_InFlightRowsDoNotStarveNewer(t *testing.T) {
	store := memory.NewWriteStore()
	addPendingRow(t, store, "row-1")
	addPendingRow(t, store, "row-2")
	pub := &publisherStub{}
	relay := dispatch.NewRelay(store.Outbox(), pub, time.Hour, 2, zap.NewNop())

	n, err := relay.PollOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// row-1/row-2 はリトライ待ちで pending のまま
	addPendingRow(t, store, "row-3")
	addPendingRow(t, store, "row-4")
	addPendingRow(t, store, "row-5")

	n, err = relay.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 4, relay.InFlight())

	envs := pub.published()
	require.Len(t, envs, 4)
	assert.Equal(t, "row-3", envs[2].OutboxID)
	assert.Equal(t, "row-4", envs[3].OutboxID)
}

func TestRelay_RunWithDispatcher_DeliversOnNotify(t *testing.T) {
	store := memory.NewWriteStore()
	h := &countingHandler{}
	reg := dispatch.NewRegistry()
	reg.Register(event.TypeProductCreated, "read_model", h.Handle)
	f := newDispatchFixture(t, reg)

	relay := dispatch.NewRelay(store.Outbox(), f.d, time.Hour, 10, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = relay.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	addPendingRow(t, store, "row-1")
	relay.Notify()

	assert.Eventually(t, func() bool {
		return pendingCount(t, store) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, h.count())
}
