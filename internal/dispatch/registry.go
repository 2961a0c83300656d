// Package dispatch は outbox から拾ったイベントを登録済みハンドラに配る。
// (イベント, ハンドラ) ごとに独立してリトライし、使い切ったらデッドレターに送る。
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"catalog/internal/domain/event"
)

type HandlerFunc func(ctx context.Context, ev event.Event) error

type Registration struct {
	Name   string
	Handle HandlerFunc
}

// イベント種別 → ハンドラの対応表。起動時に明示的に組み立てる。
type Registry struct {
	mu       sync.RWMutex
	handlers map[event.Type][]Registration
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[event.Type][]Registration)}
}

// 同じ種別に同じ名前を2回登録するのは配線ミスなので panic
func (r *Registry) Register(t event.Type, name string, h HandlerFunc) {
	if name == "" || h == nil {
		panic(fmt.Sprintf("dispatch: invalid registration for %s", t))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.handlers[t] {
		if reg.Name == name {
			panic(fmt.Sprintf("dispatch: handler %q already registered for %s", name, t))
		}
	}
	r.handlers[t] = append(r.handlers[t], Registration{Name: name, Handle: h})
}

func (r *Registry) Handlers(t event.Type) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Registration, len(r.handlers[t]))
	copy(out, r.handlers[t])
	return out
}
