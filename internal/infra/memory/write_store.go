// Package memory はプロセス内で完結するストア。ローカル起動とテスト用。
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"catalog/internal/domain/model"
	repo "catalog/internal/repository"

	"gorm.io/gorm"
)

type writeData struct {
	products    map[string]model.Product
	outbox      []model.OutboxEvent
	deadLetters []model.DeadLetter
	auditLogs   []model.AuditLog
	nextDLID    int64
	nextAuditID int64
}

func (d *writeData) clone() *writeData {
	return &writeData{
		products:    maps.Clone(d.products),
		outbox:      slices.Clone(d.outbox),
		deadLetters: slices.Clone(d.deadLetters),
		auditLogs:   slices.Clone(d.auditLogs),
		nextDLID:    d.nextDLID,
		nextAuditID: d.nextAuditID,
	}
}

// WriteStore は書き込みストア。Tx はコピーに対して動き、成功時だけ差し替える。
// Tx は1本ずつ直列に流す。
type WriteStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *writeData
}

func NewWriteStore() *WriteStore {
	return &WriteStore{data: &writeData{products: make(map[string]model.Product), nextDLID: 1, nextAuditID: 1}}
}

func (s *WriteStore) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.data.clone()
	s.mu.RUnlock()

	if err := fn(txRepos{d: work}); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = work
	s.mu.Unlock()
	return nil
}

func (s *WriteStore) read(fn func(d *writeData)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.data)
}

// Tx の外で使う口
func (s *WriteStore) Products() *ProductView       { return &ProductView{s: s} }
func (s *WriteStore) Outbox() *OutboxView           { return &OutboxView{s: s} }
func (s *WriteStore) DeadLetters() *DeadLetterView { return &DeadLetterView{s: s} }
func (s *WriteStore) AuditLogs() *AuditLogView     { return &AuditLogView{s: s} }

type txRepos struct {
	d *writeData
}

func (r txRepos) Products() repo.ProductRepository       { return txProducts{r.d} }
func (r txRepos) Outbox() repo.OutboxRepository           { return txOutbox{r.d} }
func (r txRepos) DeadLetters() repo.DeadLetterRepository { return txDeadLetters{r.d} }
func (r txRepos) AuditLogs() repo.AuditLogRepository     { return txAuditLogs{r.d} }

// ===== products =====

type txProducts struct{ d *writeData }

func (t txProducts) FindByID(ctx context.Context, tenantID string, id string) (model.Product, error) {
	p, ok := t.d.products[id]
	if !ok || p.TenantID != tenantID || p.DeletedAt.Valid {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

func (t txProducts) ExistsBySku(ctx context.Context, tenantID string, sku string) (bool, error) {
	for _, p := range t.d.products {
		if p.TenantID == tenantID && p.Sku == sku {
			return true, nil
		}
	}
	return false, nil
}

func (t txProducts) ExistingSkus(ctx context.Context, tenantID string, skus []string) ([]string, error) {
	want := make(map[string]struct{}, len(skus))
	for _, s := range skus {
		want[s] = struct{}{}
	}
	out := []string{}
	for _, p := range t.d.products {
		if p.TenantID != tenantID {
			continue
		}
		if _, ok := want[p.Sku]; ok {
			out = append(out, p.Sku)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (t txProducts) Create(ctx context.Context, p model.Product) (model.Product, error) {
	if exists, _ := t.ExistsBySku(ctx, p.TenantID, p.Sku); exists {
		return model.Product{}, repo.ErrDuplicateSku
	}
	t.d.products[p.ID] = p
	return p, nil
}

func (t txProducts) CreateBatch(ctx context.Context, ps []model.Product) error {
	for _, p := range ps {
		if _, err := t.Create(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (t txProducts) Update(ctx context.Context, p model.Product, expectedVersion int64) error {
	cur, ok := t.d.products[p.ID]
	if !ok || cur.TenantID != p.TenantID || cur.DeletedAt.Valid || cur.Version != expectedVersion {
		return repo.ErrVersionConflict
	}
	// sku/作成日時/削除状態は変えない
	p.Sku = cur.Sku
	p.CreatedAt = cur.CreatedAt
	p.IsActive = cur.IsActive
	p.DeletedAt = cur.DeletedAt
	t.d.products[p.ID] = p
	return nil
}

func (t txProducts) SoftDelete(ctx context.Context, tenantID string, id string, expectedVersion int64, at time.Time) error {
	cur, ok := t.d.products[id]
	if !ok || cur.TenantID != tenantID || cur.DeletedAt.Valid || cur.Version != expectedVersion {
		return repo.ErrVersionConflict
	}
	cur.IsActive = false
	cur.DeletedAt = gorm.DeletedAt{Time: at, Valid: true}
	cur.Version = expectedVersion + 1
	cur.UpdatedAt = at
	t.d.products[id] = cur
	return nil
}

func (t txProducts) FindByIDs(ctx context.Context, tenantID string, ids []string) ([]model.Product, error) {
	out := make([]model.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := t.d.products[id]; ok && p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out, nil
}

// ProductView は Tx の外から読む口（バリデータと投影ハンドラ用）
type ProductView struct{ s *WriteStore }

func (v *ProductView) FindByID(ctx context.Context, tenantID string, id string) (p model.Product, err error) {
	v.s.read(func(d *writeData) { p, err = txProducts{d}.FindByID(ctx, tenantID, id) })
	return p, err
}

func (v *ProductView) ExistsBySku(ctx context.Context, tenantID string, sku string) (ok bool, err error) {
	v.s.read(func(d *writeData) { ok, err = txProducts{d}.ExistsBySku(ctx, tenantID, sku) })
	return ok, err
}

func (v *ProductView) ExistingSkus(ctx context.Context, tenantID string, skus []string) (out []string, err error) {
	v.s.read(func(d *writeData) { out, err = txProducts{d}.ExistingSkus(ctx, tenantID, skus) })
	return out, err
}

func (v *ProductView) FindByIDs(ctx context.Context, tenantID string, ids []string) (out []model.Product, err error) {
	v.s.read(func(d *writeData) { out, err = txProducts{d}.FindByIDs(ctx, tenantID, ids) })
	return out, err
}

// ===== outbox =====

type txOutbox struct{ d *writeData }

func (t txOutbox) Add(ctx context.Context, ev model.OutboxEvent) error {
	t.d.outbox = append(t.d.outbox, ev)
	return nil
}

func (t txOutbox) ListPending(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	out := []model.OutboxEvent{}
	for _, ev := range t.d.outbox {
		if ev.Status != model.OutboxStatusPending {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// 配送済みの行は残さない（Tx ごとのコピーを pending 分だけに保つ）
func (t txOutbox) MarkPublished(ctx context.Context, id string, at time.Time) error {
	t.d.outbox = slices.DeleteFunc(t.d.outbox, func(ev model.OutboxEvent) bool {
		return ev.ID == id && ev.Status == model.OutboxStatusPending
	})
	return nil
}

func (t txOutbox) CountPending(ctx context.Context) (int64, error) {
	var n int64
	for _, ev := range t.d.outbox {
		if ev.Status == model.OutboxStatusPending {
			n++
		}
	}
	return n, nil
}

type OutboxView struct{ s *WriteStore }

func (v *OutboxView) Add(ctx context.Context, ev model.OutboxEvent) error {
	return v.s.WithinTx(ctx, func(r repo.TxRepos) error { return r.Outbox().Add(ctx, ev) })
}

func (v *OutboxView) ListPending(ctx context.Context, limit int) (out []model.OutboxEvent, err error) {
	v.s.read(func(d *writeData) { out, err = txOutbox{d}.ListPending(ctx, limit) })
	return out, err
}

func (v *OutboxView) MarkPublished(ctx context.Context, id string, at time.Time) error {
	return v.s.WithinTx(ctx, func(r repo.TxRepos) error { return r.Outbox().MarkPublished(ctx, id, at) })
}

func (v *OutboxView) CountPending(ctx context.Context) (n int64, err error) {
	v.s.read(func(d *writeData) { n, err = txOutbox{d}.CountPending(ctx) })
	return n, err
}

// 未配送の全件（テスト用）
func (v *OutboxView) All() []model.OutboxEvent {
	var out []model.OutboxEvent
	v.s.read(func(d *writeData) { out = slices.Clone(d.outbox) })
	return out
}

// ===== dead letters =====

type txDeadLetters struct{ d *writeData }

func (t txDeadLetters) Create(ctx context.Context, dl model.DeadLetter) error {
	dl.ID = t.d.nextDLID
	t.d.nextDLID++
	t.d.deadLetters = append(t.d.deadLetters, dl)
	return nil
}

func (t txDeadLetters) FindByID(ctx context.Context, id int64) (model.DeadLetter, error) {
	for _, dl := range t.d.deadLetters {
		if dl.ID == id {
			return dl, nil
		}
	}
	return model.DeadLetter{}, repo.ErrNotFound
}

func (t txDeadLetters) List(ctx context.Context, f repo.DeadLetterFilter) ([]model.DeadLetter, error) {
	out := []model.DeadLetter{}
	// 新しい順
	for i := len(t.d.deadLetters) - 1; i >= 0; i-- {
		dl := t.d.deadLetters[i]
		if f.TenantID != nil && dl.TenantID != *f.TenantID {
			continue
		}
		if f.Status != nil && dl.Status != *f.Status {
			continue
		}
		if f.EventType != nil && dl.EventType != *f.EventType {
			continue
		}
		out = append(out, dl)
	}
	return page(out, f.Offset, f.Limit), nil
}

func (t txDeadLetters) MarkRequeued(ctx context.Context, id int64, at time.Time) error {
	for i, dl := range t.d.deadLetters {
		if dl.ID != id {
			continue
		}
		if dl.Status != model.DeadLetterStatusDead {
			return repo.ErrVersionConflict
		}
		dl.Status = model.DeadLetterStatusRequeued
		dl.UpdatedAt = at
		t.d.deadLetters[i] = dl
		return nil
	}
	return repo.ErrNotFound
}

type DeadLetterView struct{ s *WriteStore }

func (v *DeadLetterView) Create(ctx context.Context, dl model.DeadLetter) error {
	return v.s.WithinTx(ctx, func(r repo.TxRepos) error { return r.DeadLetters().Create(ctx, dl) })
}

func (v *DeadLetterView) FindByID(ctx context.Context, id int64) (dl model.DeadLetter, err error) {
	v.s.read(func(d *writeData) { dl, err = txDeadLetters{d}.FindByID(ctx, id) })
	return dl, err
}

func (v *DeadLetterView) List(ctx context.Context, f repo.DeadLetterFilter) (out []model.DeadLetter, err error) {
	v.s.read(func(d *writeData) { out, err = txDeadLetters{d}.List(ctx, f) })
	return out, err
}

// ===== audit logs =====

type txAuditLogs struct{ d *writeData }

func (t txAuditLogs) Create(ctx context.Context, log model.AuditLog) error {
	log.ID = t.d.nextAuditID
	t.d.nextAuditID++
	t.d.auditLogs = append(t.d.auditLogs, log)
	return nil
}

func (t txAuditLogs) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	out := []model.AuditLog{}
	for i := len(t.d.auditLogs) - 1; i >= 0; i-- {
		l := t.d.auditLogs[i]
		if f.ActorID != nil && l.ActorID != *f.ActorID {
			continue
		}
		if f.Action != nil && l.Action != *f.Action {
			continue
		}
		if f.ResourceType != nil && l.ResourceType != *f.ResourceType {
			continue
		}
		if f.ResourceID != nil && l.ResourceID != *f.ResourceID {
			continue
		}
		if f.CreatedFrom != nil && l.CreatedAt.Before(*f.CreatedFrom) {
			continue
		}
		if f.CreatedTo != nil && l.CreatedAt.After(*f.CreatedTo) {
			continue
		}
		out = append(out, l)
	}
	return page(out, f.Offset, f.Limit), nil
}

type AuditLogView struct{ s *WriteStore }

func (v *AuditLogView) List(ctx context.Context, f repo.AuditLogFilter) (out []model.AuditLog, err error) {
	v.s.read(func(d *writeData) { out, err = txAuditLogs{d}.List(ctx, f) })
	return out, err
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
