package dispatch

import (
	"time"

	"catalog/internal/apperr"
)

// リトライを使い切ったときの扱い
type Exhausted int

const (
	ExhaustedDeadLetter Exhausted = iota
	ExhaustedDiscard
)

func (e Exhausted) String() string {
	if e == ExhaustedDiscard {
		return "discard"
	}
	return "dead_letter"
}

// Policy は1つの失敗種別に対するリトライ方針。
// 最大試行回数は len(Delays)+1。
type Policy struct {
	Delays      []time.Duration
	OnExhausted Exhausted
	Alert       bool
}

func (p Policy) MaxAttempts() int {
	return len(p.Delays) + 1
}

// attempt 回目が失敗した後の待ち時間。false なら打ち切り。
func (p Policy) NextDelay(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > len(p.Delays) {
		return 0, false
	}
	return p.Delays[attempt-1], true
}

// PolicyTable は apperr.Kind ごとの方針表。未登録の種別は fallback。
type PolicyTable struct {
	byKind   map[apperr.Kind]Policy
	fallback Policy
}

func NewPolicyTable(fallback Policy, byKind map[apperr.Kind]Policy) PolicyTable {
	m := make(map[apperr.Kind]Policy, len(byKind))
	for k, p := range byKind {
		m[k] = p
	}
	return PolicyTable{byKind: m, fallback: fallback}
}

// 既定の方針
//   - validation: 即破棄してアラート
//   - transient: 1s, 2s, 5s で3回リトライしてデッドレター
//   - それ以外: 計5回（1s, 2s, 5s, 5s）試してデッドレター
func DefaultPolicies() PolicyTable {
	return NewPolicyTable(
		Policy{
			Delays:      []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second, 5 * time.Second},
			OnExhausted: ExhaustedDeadLetter,
			Alert:       true,
		},
		map[apperr.Kind]Policy{
			apperr.KindValidation: {
				OnExhausted: ExhaustedDiscard,
				Alert:       true,
			},
			apperr.KindTransient: {
				Delays:      []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second},
				OnExhausted: ExhaustedDeadLetter,
				Alert:       true,
			},
		},
	)
}

func (t PolicyTable) For(kind apperr.Kind) Policy {
	if p, ok := t.byKind[kind]; ok {
		return p
	}
	return t.fallback
}
