package repository

import (
	"context"
	"time"

	"catalog/internal/domain/model"
	repo "catalog/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IN 句1回あたりの件数
const inChunkSize = 1000

// id 列は uuid 型。形式が違う id はどの行にも一致しないので、DBに投げる前に弾く
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func validIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUUID(id) {
			out = append(out, id)
		}
	}
	return out
}

// 書き込みストアの商品。どのクエリも tenant_id で絞る。
type ProductGormRepository struct {
	db *gorm.DB
}

// DI
func NewProductGormRepository(db *gorm.DB) *ProductGormRepository {
	return &ProductGormRepository{db: db}
}

// IDで商品を取得（論理削除済みは見えない）
func (r *ProductGormRepository) FindByID(ctx context.Context, tenantID string, id string) (model.Product, error) {
	if !isUUID(id) {
		return model.Product{}, repo.ErrNotFound
	}
	var p model.Product
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&p).Error
	if err != nil {
		return model.Product{}, translate(err)
	}
	return p, nil
}

// ユニーク制約と同じ範囲で見るので Unscoped
func (r *ProductGormRepository) ExistsBySku(ctx context.Context, tenantID string, sku string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Unscoped().
		Model(&model.Product{}).
		Where("tenant_id = ? AND sku = ?", tenantID, sku).
		Count(&n).Error
	if err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

func (r *ProductGormRepository) ExistingSkus(ctx context.Context, tenantID string, skus []string) ([]string, error) {
	out := []string{}
	for start := 0; start < len(skus); start += inChunkSize {
		end := min(start+inChunkSize, len(skus))

		var found []string
		err := r.db.WithContext(ctx).Unscoped().
			Model(&model.Product{}).
			Where("tenant_id = ? AND sku IN ?", tenantID, skus[start:end]).
			Pluck("sku", &found).Error
		if err != nil {
			return nil, translate(err)
		}
		out = append(out, found...)
	}
	return out, nil
}

// 商品の作成
func (r *ProductGormRepository) Create(ctx context.Context, p model.Product) (model.Product, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return model.Product{}, translateProductWrite(err)
	}
	return p, nil
}

// まとめて作成（呼び出し側がチャンクに分ける）
func (r *ProductGormRepository) CreateBatch(ctx context.Context, ps []model.Product) error {
	if len(ps) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&ps).Error; err != nil {
		return translateProductWrite(err)
	}
	return nil
}

// 楽観ロック付きの全項目更新
func (r *ProductGormRepository) Update(ctx context.Context, p model.Product, expectedVersion int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("tenant_id = ? AND id = ? AND version = ?", p.TenantID, p.ID, expectedVersion).
		Select("name", "description", "price", "b2b_price", "category", "stock_quantity",
			"is_available", "tags", "image_urls", "version", "updated_at").
		Updates(&p)
	if res.Error != nil {
		return translateProductWrite(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrVersionConflict
	}
	return nil
}

// 商品削除（行は残す）
func (r *ProductGormRepository) SoftDelete(ctx context.Context, tenantID string, id string, expectedVersion int64, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("tenant_id = ? AND id = ? AND version = ?", tenantID, id, expectedVersion).
		Updates(map[string]interface{}{
			"is_active":  false,
			"deleted_at": at,
			"version":    gorm.Expr("version + 1"),
			"updated_at": at,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrVersionConflict
	}
	return nil
}

// 投影ハンドラ用。論理削除済みも返す
func (r *ProductGormRepository) FindByIDs(ctx context.Context, tenantID string, ids []string) ([]model.Product, error) {
	ids = validIDs(ids)
	out := make([]model.Product, 0, len(ids))
	for start := 0; start < len(ids); start += inChunkSize {
		end := min(start+inChunkSize, len(ids))

		var ps []model.Product
		err := r.db.WithContext(ctx).Unscoped().
			Where("tenant_id = ? AND id IN ?", tenantID, ids[start:end]).
			Order("created_at ASC, id ASC").
			Find(&ps).Error
		if err != nil {
			return nil, translate(err)
		}
		out = append(out, ps...)
	}
	return out, nil
}
