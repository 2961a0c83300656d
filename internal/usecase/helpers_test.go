package usecase_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"catalog/internal/domain/event"
	"catalog/internal/domain/model"
	"catalog/internal/infra/memory"
	"catalog/internal/usecase"
	"catalog/internal/validator"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", g.n)
}

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type notifierCounter struct{ n atomic.Int32 }

func (c *notifierCounter) Notify() { c.n.Add(1) }

var now = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

type commandFixture struct {
	store    *memory.WriteStore
	notifier *notifierCounter
	uc       *usecase.ProductCommandUsecase
}

func newCommandFixture(t *testing.T, chunkSize int) *commandFixture {
	t.Helper()
	store := memory.NewWriteStore()
	n := &notifierCounter{}
	uc := usecase.NewProductCommandUsecase(
		store,
		validator.NewProductValidator(store.Products()),
		&seqIDs{},
		&fixedClock{now: now},
		n,
		chunkSize,
		zap.NewNop(),
	)
	return &commandFixture{store: store, notifier: n, uc: uc}
}

func (f *commandFixture) outbox() []model.OutboxEvent {
	return f.store.Outbox().All()
}

func input(sku, name, price string) usecase.ProductInput {
	return usecase.ProductInput{
		Sku:         sku,
		Name:        name,
		Price:       decimal.RequireFromString(price),
		IsAvailable: true,
	}
}

func decodeOutbox(t *testing.T, row model.OutboxEvent) event.Event {
	t.Helper()
	ev, err := event.Decode(event.Type(row.EventType), row.Payload)
	require.NoError(t, err)
	return ev
}
