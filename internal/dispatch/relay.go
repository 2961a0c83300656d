package dispatch

import (
	"context"
	"sync"
	"time"

	"catalog/internal/domain/model"

	"go.uber.org/zap"
)

// relay が使う outbox の口
type OutboxStore interface {
	ListPending(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
}

type Publisher interface {
	Publish(env Envelope, done DoneFunc) bool
}

// Relay は outbox の pending を拾って Publisher に渡す。
// 全ハンドラが終端に達した行だけ published にする（少なくとも1回配送）。
type Relay struct {
	outbox    OutboxStore
	publisher Publisher
	interval  time.Duration
	batchSize int
	now       func() time.Time
	logger    *zap.Logger

	notify chan struct{}

	mu       sync.Mutex
	inFlight map[string]struct{}
	baseCtx  context.Context
}

func NewRelay(outbox OutboxStore, publisher Publisher, interval time.Duration, batchSize int, logger *zap.Logger) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
		logger:    logger.Named("relay"),
		notify:    make(chan struct{}, 1),
		inFlight:  make(map[string]struct{}),
		baseCtx:   context.Background(),
	}
}

// コミット後に呼ぶ。ブロックしない。
func (r *Relay) Notify() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// ctx が切れるまでポーリングを続ける
func (r *Relay) Run(ctx context.Context) error {
	r.mu.Lock()
	r.baseCtx = ctx
	r.mu.Unlock()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", zap.Duration("interval", r.interval), zap.Int("batch_size", r.batchSize))
	for {
		if _, err := r.PollOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("outbox poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-r.notify:
		case <-ticker.C:
		}
	}
}

// pending を1回拾って渡す。渡した件数を返す。
// 配送中の行も pending のまま返ってくるので、その分多めに読む
func (r *Relay) PollOnce(ctx context.Context) (int, error) {
	rows, err := r.outbox.ListPending(ctx, r.batchSize+r.InFlight())
	if err != nil {
		return 0, err
	}

	n := 0
	for _, row := range rows {
		if n >= r.batchSize {
			break
		}
		// 配送中の行は拾い直さない
		if !r.claim(row.ID) {
			continue
		}
		n++
		row := row
		r.publisher.Publish(EnvelopeFromOutbox(row), func(ok bool) {
			r.settle(row, ok)
		})
	}
	return n, nil
}

func (r *Relay) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inFlight)
}

func (r *Relay) claim(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[id]; busy {
		return false
	}
	r.inFlight[id] = struct{}{}
	return true
}

func (r *Relay) settle(row model.OutboxEvent, ok bool) {
	defer r.release(row.ID)
	if !ok {
		r.logger.Debug("outbox row left pending", zap.String("outbox_id", row.ID), zap.String("event_id", row.EventID))
		return
	}

	r.mu.Lock()
	base := r.baseCtx
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(base), 5*time.Second)
	defer cancel()
	if err := r.outbox.MarkPublished(ctx, row.ID, r.now()); err != nil {
		// 次のポーリングで再送される（ハンドラは冪等）
		r.logger.Warn("mark published failed", zap.String("outbox_id", row.ID), zap.Error(err))
	}
}

func (r *Relay) release(id string) {
	r.mu.Lock()
	delete(r.inFlight, id)
	r.mu.Unlock()
}
