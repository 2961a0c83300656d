package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"catalog/internal/apperr"
	"catalog/internal/domain/event"
	"catalog/internal/domain/model"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Envelope は outbox の1行ぶん。Payload は Event に戻す前の生データ。
type Envelope struct {
	OutboxID    string
	EventID     string
	TenantID    string
	AggregateID string
	Type        event.Type
	Version     int64
	Payload     []byte
}

func EnvelopeFromOutbox(row model.OutboxEvent) Envelope {
	return Envelope{
		OutboxID:    row.ID,
		EventID:     row.EventID,
		TenantID:    row.TenantID,
		AggregateID: row.AggregateID,
		Type:        event.Type(row.EventType),
		Version:     row.Version,
		Payload:     []byte(row.Payload),
	}
}

// デッドレターの保存先
type DeadLetterSink interface {
	Create(ctx context.Context, dl model.DeadLetter) error
}

// 全ハンドラが終端に達したら1回だけ呼ばれる。
// ok=false は途中で止まった配送がある（停止、デッドレター保存失敗）。
type DoneFunc func(ok bool)

// 1つのエンベロープに対する配送の集計
type tracker struct {
	pending atomic.Int32
	failed  atomic.Bool
	done    DoneFunc
}

func (t *tracker) finish(ok bool) {
	if !ok {
		t.failed.Store(true)
	}
	if t.pending.Add(-1) == 0 && t.done != nil {
		t.done(!t.failed.Load())
	}
}

// (イベント, ハンドラ) 1組の配送
type delivery struct {
	env     Envelope
	ev      event.Event
	decErr  error
	reg     Registration
	attempt int
	tr      *tracker
}

type Option func(*Dispatcher)

func WithPolicies(p PolicyTable) Option { return func(d *Dispatcher) { d.policies = p } }
func WithWorkers(n int) Option          { return func(d *Dispatcher) { d.workers = n } }
func WithQueueBuffer(n int) Option      { return func(d *Dispatcher) { d.buffer = n } }
func WithAlerter(a Alerter) Option      { return func(d *Dispatcher) { d.alerter = a } }
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// リトライ待ちの実装を差し替える（テスト用）。false ならキャンセル。
func WithWait(wait func(ctx context.Context, delay time.Duration) bool) Option {
	return func(d *Dispatcher) { d.wait = wait }
}

// Dispatcher は固定数のワーカーで配送する。
// リトライはタイマーで待つのでワーカーを占有しない。
type Dispatcher struct {
	registry    *Registry
	policies    PolicyTable
	deadLetters DeadLetterSink
	alerter     Alerter
	workers     int
	buffer      int
	now         func() time.Time
	wait        func(ctx context.Context, delay time.Duration) bool
	logger      *zap.Logger

	q           *queue
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	outstanding atomic.Int64
}

func New(registry *Registry, deadLetters DeadLetterSink, logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		registry:    registry,
		policies:    DefaultPolicies(),
		deadLetters: deadLetters,
		workers:     4,
		buffer:      64,
		now:         time.Now,
		wait:        sleepCtx,
		logger:      logger.Named("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.alerter == nil {
		d.alerter = NewLogAlerter(logger)
	}
	if d.workers <= 0 {
		d.workers = 1
	}
	d.q = newQueue(d.buffer, d.logger)
	return d
}

func (d *Dispatcher) Start(parent context.Context) {
	d.ctx, d.cancel = context.WithCancel(parent)
	d.q.start(d.ctx, d.buffer*4)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(d.ctx)
	}
	d.logger.Info("dispatcher started", zap.Int("workers", d.workers))
}

// 受付を止めてワーカーとリトライ待ちを止める。
// 終わっていない配送は outbox に pending のまま残り、次回起動時に再送される。
func (d *Dispatcher) Stop() {
	d.q.closeIntake()
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// ハンドラごとに配送を積む。停止中なら false を返し、done(false) が呼ばれる。
func (d *Dispatcher) Publish(env Envelope, done DoneFunc) bool {
	regs := d.registry.Handlers(env.Type)
	if len(regs) == 0 {
		d.logger.Debug("no handler registered", zap.String("event_type", string(env.Type)))
		if done != nil {
			done(true)
		}
		return true
	}

	ev, decErr := event.Decode(env.Type, env.Payload)
	if decErr == nil {
		decErr = ev.Validate()
	}

	tr := &tracker{done: done}
	tr.pending.Store(int32(len(regs)))

	items := make([]*delivery, len(regs))
	for i, reg := range regs {
		items[i] = &delivery{env: env, ev: ev, decErr: decErr, reg: reg, tr: tr}
	}

	d.outstanding.Add(int64(len(items)))
	accepted := true
	for _, it := range items {
		if !d.q.enqueue(it) {
			// 積めなかった分は未完了として数える
			d.complete(it, false)
			accepted = false
		}
	}
	return accepted
}

// 配送中の (イベント, ハンドラ) の数
func (d *Dispatcher) Outstanding() int64 { return d.outstanding.Load() }

func (d *Dispatcher) QueueDepth() int { return d.q.depth() }

// 全配送が終わるか ctx が切れるまで待つ
func (d *Dispatcher) Drain(ctx context.Context) bool {
	for {
		if d.outstanding.Load() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-d.q.outCh():
			d.deliver(ctx, it)
			d.q.markProcessed()
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, it *delivery) {
	it.attempt++
	err := d.invoke(ctx, it)
	if err == nil {
		if it.attempt > 1 {
			d.logger.Info("delivery succeeded after retry", d.fields(it)...)
		}
		d.complete(it, true)
		return
	}

	kind := apperr.KindOf(err)
	p := d.policies.For(kind)

	if delay, ok := p.NextDelay(it.attempt); ok {
		d.logger.Warn("delivery failed, retrying",
			append(d.fields(it),
				zap.Stringer("kind", kind),
				zap.Duration("delay", delay),
				zap.Error(err),
			)...)
		d.retryAfter(ctx, delay, it)
		return
	}

	if p.Alert {
		d.alerter.Alert(ctx, Alert{
			EventID:   it.env.EventID,
			EventType: string(it.env.Type),
			TenantID:  it.env.TenantID,
			Handler:   it.reg.Name,
			Kind:      kind,
			Attempts:  it.attempt,
			Outcome:   p.OnExhausted,
			Err:       err,
		})
	}

	if p.OnExhausted == ExhaustedDiscard {
		d.logger.Warn("delivery discarded", append(d.fields(it), zap.Stringer("kind", kind), zap.Error(err))...)
		d.complete(it, true)
		return
	}

	if derr := d.deadLetter(ctx, it, kind, err); derr != nil {
		// 保存できなければ outbox に残して再送させる
		d.logger.Error("dead letter write failed", append(d.fields(it), zap.Error(derr))...)
		d.complete(it, false)
		return
	}
	d.logger.Warn("delivery dead-lettered", append(d.fields(it), zap.Stringer("kind", kind), zap.Error(err))...)
	d.complete(it, true)
}

// ハンドラ呼び出し。panic は Unknown として扱う。
func (d *Dispatcher) invoke(ctx context.Context, it *delivery) (err error) {
	if it.decErr != nil {
		return it.decErr
	}
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Unknown("handler panic", fmt.Errorf("%v", r))
		}
	}()
	return it.reg.Handle(ctx, it.ev)
}

func (d *Dispatcher) retryAfter(ctx context.Context, delay time.Duration, it *delivery) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if !d.wait(ctx, delay) || !d.q.enqueue(it) {
			d.complete(it, false)
		}
	}()
}

func (d *Dispatcher) deadLetter(ctx context.Context, it *delivery, kind apperr.Kind, cause error) error {
	if d.deadLetters == nil {
		return fmt.Errorf("no dead letter sink")
	}
	now := d.now()
	return d.deadLetters.Create(ctx, model.DeadLetter{
		EventID:     it.env.EventID,
		TenantID:    it.env.TenantID,
		AggregateID: it.env.AggregateID,
		EventType:   string(it.env.Type),
		Version:     it.env.Version,
		Handler:     it.reg.Name,
		Payload:     datatypes.JSON(it.env.Payload),
		FailureKind: kind.String(),
		LastError:   cause.Error(),
		Attempts:    it.attempt,
		Status:      model.DeadLetterStatusDead,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (d *Dispatcher) complete(it *delivery, ok bool) {
	d.outstanding.Add(-1)
	it.tr.finish(ok)
}

func (d *Dispatcher) fields(it *delivery) []zap.Field {
	return []zap.Field{
		zap.String("event_id", it.env.EventID),
		zap.String("event_type", string(it.env.Type)),
		zap.String("tenant_id", it.env.TenantID),
		zap.String("aggregate_id", it.env.AggregateID),
		zap.String("handler", it.reg.Name),
		zap.Int("attempt", it.attempt),
	}
}

func sleepCtx(ctx context.Context, delay time.Duration) bool {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
