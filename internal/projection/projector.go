// Package projection はドメインイベントを読み取りモデルに反映する。
// どのハンドラも冪等で、集約の Version で順序を判定する。
package projection

import (
	"context"
	"errors"
	"fmt"

	"catalog/internal/apperr"
	"catalog/internal/dispatch"
	"catalog/internal/domain/event"
	"catalog/internal/domain/model"
	repo "catalog/internal/repository"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// dispatch に登録するハンドラ名（デッドレターにも残る）
const HandlerName = "product_read_model"

type Projector struct {
	store  repo.ProductProjectionRepository
	source repo.ProductSource
	logger *zap.Logger
}

func NewProjector(store repo.ProductProjectionRepository, source repo.ProductSource, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{store: store, source: source, logger: logger.Named("projection")}
}

// 4種類のイベントを登録する
func (p *Projector) Register(r *dispatch.Registry) {
	for _, t := range []event.Type{
		event.TypeProductCreated,
		event.TypeProductUpdated,
		event.TypeProductDeleted,
		event.TypeProductsBulkImported,
	} {
		r.Register(t, HandlerName, p.Handle)
	}
}

func (p *Projector) Handle(ctx context.Context, ev event.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	switch e := ev.(type) {
	case event.ProductCreated:
		return p.OnProductCreated(ctx, e)
	case event.ProductUpdated:
		return p.OnProductUpdated(ctx, e)
	case event.ProductDeleted:
		return p.OnProductDeleted(ctx, e)
	case event.ProductsBulkImported:
		return p.OnProductsBulkImported(ctx, e)
	default:
		return apperr.Validation(fmt.Sprintf("unsupported event %T", ev))
	}
}

// スナップショットを丸ごと書く。保存済みより新しいときだけ。
func (p *Projector) OnProductCreated(ctx context.Context, e event.ProductCreated) error {
	row := model.ProductReadModel{
		ID:            e.ProductID,
		TenantID:      e.TenantID,
		Sku:           e.Sku,
		Name:          e.Name,
		Description:   e.Description,
		Price:         e.Price,
		B2bPrice:      e.B2bPrice,
		Category:      e.Category,
		StockQuantity: e.StockQuantity,
		IsAvailable:   e.IsAvailable,
		Tags:          stringArray(e.Tags),
		ImageURLs:     stringArray(e.ImageURLs),
		SearchText:    model.BuildSearchText(e.Name, e.Description, e.Sku),
		IsDeleted:     false,
		Version:       e.Version,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.CreatedAt,
	}

	applied, err := p.store.UpsertIfNewer(ctx, row)
	if err != nil {
		return fmt.Errorf("project %s %s: %w", e.Type(), e.ProductID, err)
	}
	p.logApplied(e, applied)
	return nil
}

// 差分を当てる。Version がちょうど次のときだけ。
//   - 保存済み以下: 重複なので何もしない
//   - 飛んでいる/行がない: 前のイベント待ちで Transient
func (p *Projector) OnProductUpdated(ctx context.Context, e event.ProductUpdated) error {
	cur, err := p.store.Get(ctx, e.TenantID, e.ProductID)
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.Transient(fmt.Sprintf("read model %s not projected yet (event version %d)", e.ProductID, e.Version), err)
	}
	if err != nil {
		return fmt.Errorf("project %s %s: %w", e.Type(), e.ProductID, err)
	}

	if e.Version <= cur.Version {
		p.logApplied(e, false)
		return nil
	}
	if e.Version != cur.Version+1 {
		return apperr.Transient(fmt.Sprintf("version gap on %s: stored %d, event %d", e.ProductID, cur.Version, e.Version), nil)
	}

	next := applyChanges(cur, e.Changes)
	if e.Changes.TouchesSearchText() {
		next.SearchText = model.BuildSearchText(next.Name, next.Description, next.Sku)
	}
	next.Version = e.Version
	next.UpdatedAt = e.UpdatedAt

	ok, err := p.store.ReplaceAtVersion(ctx, next, cur.Version)
	if err != nil {
		return fmt.Errorf("project %s %s: %w", e.Type(), e.ProductID, err)
	}
	if !ok {
		// 読んだ後に別の配送が書いた。リトライすれば重複判定に落ちる
		return apperr.Transient(fmt.Sprintf("read model %s changed concurrently", e.ProductID), nil)
	}
	p.logApplied(e, true)
	return nil
}

// 墓標を書く。行がなくても書くので、遅れて来た Created は無視される。
func (p *Projector) OnProductDeleted(ctx context.Context, e event.ProductDeleted) error {
	cur, err := p.store.Get(ctx, e.TenantID, e.ProductID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		cur = model.ProductReadModel{
			ID:        e.ProductID,
			TenantID:  e.TenantID,
			Sku:       e.Sku,
			CreatedAt: e.DeletedAt,
		}
	case err != nil:
		return fmt.Errorf("project %s %s: %w", e.Type(), e.ProductID, err)
	}

	if e.Version <= cur.Version {
		p.logApplied(e, false)
		return nil
	}

	tomb := cur
	tomb.IsDeleted = true
	tomb.Version = e.Version
	tomb.UpdatedAt = e.DeletedAt

	applied, err := p.store.UpsertIfNewer(ctx, tomb)
	if err != nil {
		return fmt.Errorf("project %s %s: %w", e.Type(), e.ProductID, err)
	}
	p.logApplied(e, applied)
	return nil
}

// バッチは書き込みストアから読み直して1件ずつスナップショットとして書く
func (p *Projector) OnProductsBulkImported(ctx context.Context, e event.ProductsBulkImported) error {
	products, err := p.source.FindByIDs(ctx, e.TenantID, e.ProductIDs)
	if err != nil {
		return fmt.Errorf("reload bulk batch %s: %w", e.EventID, err)
	}
	if len(products) != len(e.ProductIDs) {
		// まだ見えていない（レプリカ遅延など）
		return apperr.Transient(fmt.Sprintf("bulk batch %s: %d of %d products visible", e.EventID, len(products), len(e.ProductIDs)), nil)
	}

	applied := 0
	for _, prod := range products {
		ok, err := p.store.UpsertIfNewer(ctx, model.ReadModelFromProduct(prod))
		if err != nil {
			return fmt.Errorf("project bulk item %s: %w", prod.ID, err)
		}
		if ok {
			applied++
		}
	}

	p.logger.Debug("bulk batch projected",
		zap.String("event_id", e.EventID),
		zap.String("tenant_id", e.TenantID),
		zap.Int("total", len(products)),
		zap.Int("applied", applied),
	)
	return nil
}

func (p *Projector) logApplied(ev event.Event, applied bool) {
	meta := ev.Meta()
	msg := "event projected"
	if !applied {
		msg = "stale or duplicate event skipped"
	}
	p.logger.Debug(msg,
		zap.String("event_type", string(ev.Type())),
		zap.String("event_id", meta.EventID),
		zap.String("tenant_id", meta.TenantID),
		zap.String("aggregate_id", ev.AggregateID()),
		zap.Int64("version", meta.Version),
	)
}

func applyChanges(row model.ProductReadModel, c event.ProductChanges) model.ProductReadModel {
	if v, ok := c.Name.Get(); ok {
		row.Name = v
	}
	if v, ok := c.Description.Get(); ok {
		row.Description = v
	}
	if v, ok := c.Price.Get(); ok {
		row.Price = v
	}
	if v, ok := c.B2bPrice.Get(); ok {
		row.B2bPrice = v
	}
	if v, ok := c.Category.Get(); ok {
		row.Category = v
	}
	if v, ok := c.StockQuantity.Get(); ok {
		row.StockQuantity = v
	}
	if v, ok := c.IsAvailable.Get(); ok {
		row.IsAvailable = v
	}
	if v, ok := c.Tags.Get(); ok {
		row.Tags = stringArray(v)
	}
	if v, ok := c.ImageURLs.Get(); ok {
		row.ImageURLs = stringArray(v)
	}
	return row
}

func stringArray(s []string) pq.StringArray {
	out := make(pq.StringArray, len(s))
	copy(out, s)
	return out
}
