package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// queue は配送待ちのバックログ。broker がバッファ付きの out に流す。
// Enqueue はブロックしない。
type queue struct {
	mu           sync.Mutex
	backlog      []*delivery
	notify       chan struct{}
	out          chan *delivery
	shuttingDown atomic.Bool

	enqueued  atomic.Uint64
	processed atomic.Uint64

	logger *zap.Logger
}

func newQueue(outBuffer int, logger *zap.Logger) *queue {
	if outBuffer <= 0 {
		outBuffer = 64
	}
	return &queue{
		notify: make(chan struct{}, 1),
		out:    make(chan *delivery, outBuffer),
		logger: logger,
	}
}

func (q *queue) start(ctx context.Context, highWatermark int) {
	go q.broker(ctx, highWatermark)
}

func (q *queue) broker(ctx context.Context, highWatermark int) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		q.flushOnce()
		if highWatermark > 0 {
			if sz := q.backlogSize(); sz > highWatermark {
				q.logger.Warn("dispatch backlog exceeds high watermark",
					zap.Int("backlog_size", sz),
					zap.Int("high_watermark", highWatermark),
				)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-q.notify:
		case <-ticker.C:
		}
	}
}

func (q *queue) flushOnce() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.backlog) > 0 && len(q.out) < cap(q.out) {
		item := q.backlog[0]
		q.backlog[0] = nil
		q.backlog = q.backlog[1:]
		q.out <- item
	}
}

// 停止中は false
func (q *queue) enqueue(d *delivery) bool {
	if q.shuttingDown.Load() {
		return false
	}
	q.enqueued.Add(1)
	q.mu.Lock()
	q.backlog = append(q.backlog, d)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

func (q *queue) outCh() <-chan *delivery { return q.out }

func (q *queue) backlogSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// backlog + out にある件数
func (q *queue) depth() int {
	q.mu.Lock()
	bl := len(q.backlog)
	q.mu.Unlock()
	return bl + len(q.out)
}

func (q *queue) markProcessed() { q.processed.Add(1) }

func (q *queue) closeIntake() { q.shuttingDown.Store(true) }
