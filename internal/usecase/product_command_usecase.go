package usecase

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"catalog/internal/apperr"
	"catalog/internal/domain/event"
	"catalog/internal/domain/model"
	repo "catalog/internal/repository"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultBulkChunkSize = 500

// 商品の書き込み側。変更と outbox は必ず同じTxで保存する。
type ProductCommandUsecase struct {
	tx        repo.TransactionManager
	validator ProductValidator
	idGen     IDGenerator
	clock     Clock
	notifier  OutboxNotifier
	chunkSize int
	logger    *zap.Logger
}

func NewProductCommandUsecase(
	tx repo.TransactionManager,
	validator ProductValidator,
	idGen IDGenerator,
	clock Clock,
	notifier OutboxNotifier,
	chunkSize int,
	logger *zap.Logger,
) *ProductCommandUsecase {
	if chunkSize <= 0 {
		chunkSize = defaultBulkChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductCommandUsecase{
		tx:        tx,
		validator: validator,
		idGen:     idGen,
		clock:     clock,
		notifier:  notifier,
		chunkSize: chunkSize,
		logger:    logger.Named("product_command"),
	}
}

// 商品作成
func (u *ProductCommandUsecase) CreateProduct(ctx context.Context, cmd CreateProductCommand) (CommandResult, error) {
	cmd.ProductInput = cmd.ProductInput.normalized()

	fields, err := u.validator.ValidateCreate(ctx, cmd)
	if err != nil {
		return u.fail("create", storeError(err))
	}
	if err := apperr.FromFields(fields); err != nil {
		return u.fail("create", err)
	}

	now := u.clock.Now()
	p := newProduct(cmd.TenantID, u.idGen.NewID(), cmd.ProductInput, now)

	ev := event.ProductCreated{
		Metadata:      event.Metadata{EventID: u.idGen.NewID(), TenantID: p.TenantID, Version: p.Version, OccurredAt: now},
		ProductID:     p.ID,
		Sku:           p.Sku,
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price,
		B2bPrice:      p.B2bPrice,
		Category:      p.Category,
		StockQuantity: p.StockQuantity,
		IsAvailable:   p.IsAvailable,
		Tags:          []string(p.Tags),
		ImageURLs:     []string(p.ImageURLs),
		CreatedAt:     now,
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if _, err := r.Products().Create(ctx, p); err != nil {
			return err
		}
		return appendOutbox(ctx, r.Outbox(), u.idGen.NewID(), ev, now)
	})
	if err != nil {
		return u.fail("create", storeError(err))
	}

	u.notify()
	u.logger.Info("product created",
		zap.String("tenant_id", p.TenantID),
		zap.String("product_id", p.ID),
		zap.String("sku", p.Sku),
	)
	return CommandResult{Success: true, ProductID: p.ID}, nil
}

// 部分更新。実際に値が変わったフィールドだけをイベントに載せる。
// 何も変わらなければ成功扱いでイベントは出さない。
func (u *ProductCommandUsecase) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (CommandResult, error) {
	cmd.Changes = normalizeChanges(cmd.Changes)

	fields, err := u.validator.ValidateUpdate(ctx, cmd)
	if err != nil {
		return u.fail("update", storeError(err))
	}
	if err := apperr.FromFields(fields); err != nil {
		return u.fail("update", err)
	}

	now := u.clock.Now()
	var (
		emitted bool
		version int64
	)

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		current, err := r.Products().FindByID(ctx, cmd.TenantID, cmd.ProductID)
		if err != nil {
			return err
		}

		diff := diffChanges(current, cmd.Changes)
		if diff.IsEmpty() {
			return nil
		}

		next := applyChanges(current, diff)
		if err := apperr.FromFields(u.validator.ValidateProduct(next)); err != nil {
			return err
		}
		next.Version = current.Version + 1
		next.UpdatedAt = now

		if err := r.Products().Update(ctx, next, current.Version); err != nil {
			return err
		}

		ev := event.ProductUpdated{
			Metadata:  event.Metadata{EventID: u.idGen.NewID(), TenantID: next.TenantID, Version: next.Version, OccurredAt: now},
			ProductID: next.ID,
			Changes:   diff,
			UpdatedAt: now,
		}
		if err := appendOutbox(ctx, r.Outbox(), u.idGen.NewID(), ev, now); err != nil {
			return err
		}
		emitted = true
		version = next.Version
		return nil
	})
	if err != nil {
		return u.fail("update", storeError(err))
	}

	if !emitted {
		u.logger.Debug("product update was a no-op",
			zap.String("tenant_id", cmd.TenantID),
			zap.String("product_id", cmd.ProductID),
		)
		return CommandResult{Success: true, ProductID: cmd.ProductID}, nil
	}

	u.notify()
	u.logger.Info("product updated",
		zap.String("tenant_id", cmd.TenantID),
		zap.String("product_id", cmd.ProductID),
		zap.Int64("version", version),
	)
	return CommandResult{Success: true, ProductID: cmd.ProductID}, nil
}

// 論理削除。削除済みは NotFound。
func (u *ProductCommandUsecase) DeleteProduct(ctx context.Context, cmd DeleteProductCommand) (CommandResult, error) {
	fields, err := u.validator.ValidateDelete(ctx, cmd)
	if err != nil {
		return u.fail("delete", storeError(err))
	}
	if err := apperr.FromFields(fields); err != nil {
		return u.fail("delete", err)
	}

	now := u.clock.Now()
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		current, err := r.Products().FindByID(ctx, cmd.TenantID, cmd.ProductID)
		if err != nil {
			return err
		}
		if err := r.Products().SoftDelete(ctx, cmd.TenantID, cmd.ProductID, current.Version, now); err != nil {
			return err
		}

		ev := event.ProductDeleted{
			Metadata:  event.Metadata{EventID: u.idGen.NewID(), TenantID: cmd.TenantID, Version: current.Version + 1, OccurredAt: now},
			ProductID: current.ID,
			Sku:       current.Sku,
			DeletedAt: now,
		}
		return appendOutbox(ctx, r.Outbox(), u.idGen.NewID(), ev, now)
	})
	if err != nil {
		return u.fail("delete", storeError(err))
	}

	u.notify()
	u.logger.Info("product deleted",
		zap.String("tenant_id", cmd.TenantID),
		zap.String("product_id", cmd.ProductID),
	)
	return CommandResult{Success: true, ProductID: cmd.ProductID}, nil
}

// 一括登録。全件成功か全件失敗のどちらか。
// イベントはバッチ1件につき1つだけ。
func (u *ProductCommandUsecase) BulkImportProducts(ctx context.Context, cmd BulkImportProductsCommand) (CommandResult, error) {
	// 件数超過はここでは正規化もしない
	if len(cmd.Items) <= MaxBulkImportItems {
		items := make([]ProductInput, len(cmd.Items))
		for i, in := range cmd.Items {
			items[i] = in.normalized()
		}
		cmd.Items = items
	}

	fields, err := u.validator.ValidateBulkImport(ctx, cmd)
	if err != nil {
		return u.fail("bulk_import", storeError(err))
	}
	if err := apperr.FromFields(fields); err != nil {
		return u.fail("bulk_import", err)
	}

	now := u.clock.Now()
	products := make([]model.Product, len(cmd.Items))
	ids := make([]string, len(cmd.Items))
	for i, in := range cmd.Items {
		products[i] = newProduct(cmd.TenantID, u.idGen.NewID(), in, now)
		ids[i] = products[i].ID
	}

	ev := event.ProductsBulkImported{
		Metadata:   event.Metadata{EventID: u.idGen.NewID(), TenantID: cmd.TenantID, Version: 1, OccurredAt: now},
		ProductIDs: ids,
		TotalCount: len(ids),
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		for start := 0; start < len(products); start += u.chunkSize {
			// チャンクの合間でキャンセルを見る（Txごと捨てる）
			if err := ctx.Err(); err != nil {
				return err
			}
			end := min(start+u.chunkSize, len(products))
			if err := r.Products().CreateBatch(ctx, products[start:end]); err != nil {
				return err
			}
		}
		return appendOutbox(ctx, r.Outbox(), u.idGen.NewID(), ev, now)
	})
	if err != nil {
		return u.fail("bulk_import", storeError(err))
	}

	u.notify()
	u.logger.Info("products bulk imported",
		zap.String("tenant_id", cmd.TenantID),
		zap.Int("count", len(ids)),
		zap.String("event_id", ev.EventID),
	)
	return CommandResult{Success: true, ProductIDs: ids}, nil
}

func (u *ProductCommandUsecase) notify() {
	if u.notifier != nil {
		u.notifier.Notify()
	}
}

func (u *ProductCommandUsecase) fail(op string, err error) (CommandResult, error) {
	kind := apperr.KindOf(err)
	switch kind {
	case apperr.KindValidation, apperr.KindConflict, apperr.KindNotFound:
		u.logger.Debug("command rejected", zap.String("op", op), zap.Stringer("kind", kind), zap.Error(err))
	default:
		u.logger.Error("command failed", zap.String("op", op), zap.Stringer("kind", kind), zap.Error(err))
	}
	return rejected(err), err
}

// ストアのエラーを分類する
func storeError(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, repo.ErrDuplicateSku):
		return apperr.Conflict("sku already exists",
			apperr.FieldError{Field: "sku", Code: apperr.CodeConflict, Message: "sku already exists"})
	case errors.Is(err, repo.ErrNotFound):
		return apperr.NotFound("product not found")
	case errors.Is(err, repo.ErrVersionConflict):
		return apperr.Conflict("product was modified concurrently",
			apperr.FieldError{Field: "version", Code: apperr.CodeConflict, Message: "product was modified concurrently"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperr.Transient("request canceled", err)
	default:
		return apperr.Unknown("db error", err)
	}
}

func newProduct(tenantID, id string, in ProductInput, now time.Time) model.Product {
	return model.Product{
		ID:            id,
		TenantID:      tenantID,
		Sku:           in.Sku,
		Name:          in.Name,
		Description:   in.Description,
		Price:         in.Price,
		B2bPrice:      in.B2bPrice,
		Category:      in.Category,
		StockQuantity: in.StockQuantity,
		IsAvailable:   in.IsAvailable,
		IsActive:      true,
		Tags:          stringArray(in.Tags),
		ImageURLs:     stringArray(in.ImageURLs),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// text[] に NULL を入れない
func stringArray(s []string) pq.StringArray {
	out := make(pq.StringArray, len(s))
	copy(out, s)
	return out
}

func normalizeChanges(c event.ProductChanges) event.ProductChanges {
	if name, ok := c.Name.Get(); ok {
		c.Name = event.Some(strings.TrimSpace(name))
	}
	if cat, ok := c.Category.Get(); ok {
		c.Category = event.Some(trimmedPtr(cat))
	}
	return c
}

// 現在値と同じフィールドは落とす
func diffChanges(p model.Product, c event.ProductChanges) event.ProductChanges {
	var d event.ProductChanges
	if v, ok := c.Name.Get(); ok && v != p.Name {
		d.Name = c.Name
	}
	if v, ok := c.Description.Get(); ok && !equalStringPtr(v, p.Description) {
		d.Description = c.Description
	}
	if v, ok := c.Price.Get(); ok && !v.Equal(p.Price) {
		d.Price = c.Price
	}
	if v, ok := c.B2bPrice.Get(); ok && !equalNullDecimal(v, p.B2bPrice) {
		d.B2bPrice = c.B2bPrice
	}
	if v, ok := c.Category.Get(); ok && !equalStringPtr(v, p.Category) {
		d.Category = c.Category
	}
	if v, ok := c.StockQuantity.Get(); ok && v != p.StockQuantity {
		d.StockQuantity = c.StockQuantity
	}
	if v, ok := c.IsAvailable.Get(); ok && v != p.IsAvailable {
		d.IsAvailable = c.IsAvailable
	}
	if v, ok := c.Tags.Get(); ok && !slices.Equal(v, []string(p.Tags)) {
		d.Tags = event.Some(slices.Clone(v))
	}
	if v, ok := c.ImageURLs.Get(); ok && !slices.Equal(v, []string(p.ImageURLs)) {
		d.ImageURLs = event.Some(slices.Clone(v))
	}
	return d
}

func applyChanges(p model.Product, c event.ProductChanges) model.Product {
	if v, ok := c.Name.Get(); ok {
		p.Name = v
	}
	if v, ok := c.Description.Get(); ok {
		p.Description = v
	}
	if v, ok := c.Price.Get(); ok {
		p.Price = v
	}
	if v, ok := c.B2bPrice.Get(); ok {
		p.B2bPrice = v
	}
	if v, ok := c.Category.Get(); ok {
		p.Category = v
	}
	if v, ok := c.StockQuantity.Get(); ok {
		p.StockQuantity = v
	}
	if v, ok := c.IsAvailable.Get(); ok {
		p.IsAvailable = v
	}
	if v, ok := c.Tags.Get(); ok {
		p.Tags = stringArray(v)
	}
	if v, ok := c.ImageURLs.Get(); ok {
		p.ImageURLs = stringArray(v)
	}
	return p
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalNullDecimal(a, b decimal.NullDecimal) bool {
	if !a.Valid || !b.Valid {
		return a.Valid == b.Valid
	}
	return a.Decimal.Equal(b.Decimal)
}
