package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"catalog/internal/dispatch"
	"catalog/internal/domain/event"
	"catalog/internal/domain/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// =====================
// fakes
// =====================

type sinkStub struct {
	mu   sync.Mutex
	rows []model.DeadLetter
	err  error
}

func (s *sinkStub) Create(ctx context.Context, dl model.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, dl)
	return nil
}

func (s *sinkStub) all() []model.DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.DeadLetter(nil), s.rows...)
}

type alerterStub struct {
	mu     sync.Mutex
	alerts []dispatch.Alert
}

func (a *alerterStub) Alert(_ context.Context, al dispatch.Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, al)
}

func (a *alerterStub) all() []dispatch.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]dispatch.Alert(nil), a.alerts...)
}

// 待たずに遅延だけ記録する
type waitRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	cancel bool
}

func (w *waitRecorder) wait(ctx context.Context, d time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.delays = append(w.delays, d)
	return !w.cancel && ctx.Err() == nil
}

func (w *waitRecorder) all() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.delays...)
}

type countingHandler struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) error
}

func (h *countingHandler) Handle(ctx context.Context, ev event.Event) error {
	h.mu.Lock()
	h.calls++
	call := h.calls
	h.mu.Unlock()
	if h.fn == nil {
		return nil
	}
	return h.fn(call)
}

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

// =====================
// helper
// =====================

func createdEnvelope(t *testing.T) dispatch.Envelope {
	t.Helper()

	ev := event.ProductCreated{
		Metadata: event.Metadata{
			EventID:    "11111111-1111-1111-1111-111111111111",
			TenantID:   "tenant-a",
			Version:    1,
			OccurredAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		ProductID: "22222222-2222-2222-2222-222222222222",
		Sku:       "SKU-1",
		Name:      "Laptop",
		Price:     decimal.RequireFromString("999.99"),
		Tags:      []string{},
		ImageURLs: []string{},
	}
	payload, err := event.Encode(ev)
	require.NoError(t, err)

	return dispatch.Envelope{
		OutboxID:    "33333333-3333-3333-3333-333333333333",
		EventID:     ev.EventID,
		TenantID:    ev.TenantID,
		AggregateID: ev.ProductID,
		Type:        ev.Type(),
		Version:     ev.Version,
		Payload:     payload,
	}
}

type doneResult struct {
	ch chan bool
}

func newDone() doneResult {
	return doneResult{ch: make(chan bool, 1)}
}

func (d doneResult) fn() dispatch.DoneFunc {
	return func(ok bool) { d.ch <- ok }
}

func (d doneResult) await(t *testing.T) bool {
	t.Helper()
	select {
	case ok := <-d.ch:
		return ok
	case <-time.After(5 * time.Second):
		t.Fatal("delivery did not finish")
		return false
	}
}

var errBoom = errors.New("boom")
