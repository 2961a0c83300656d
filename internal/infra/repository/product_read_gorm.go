package repository

import (
	"context"
	"strings"
	"time"

	"catalog/internal/domain/model"
	repo "catalog/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 読み取りストア。クエリ側と投影ハンドラの両方の口を持つ。
type ProductReadGormRepository struct {
	db *gorm.DB
}

func NewProductReadGormRepository(db *gorm.DB) *ProductReadGormRepository {
	return &ProductReadGormRepository{db: db}
}

// ===== クエリ側 =====

func (r *ProductReadGormRepository) FindByID(ctx context.Context, tenantID string, id string) (model.ProductReadModel, error) {
	if !isUUID(id) {
		return model.ProductReadModel{}, repo.ErrNotFound
	}
	var row model.ProductReadModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ? AND is_deleted = ?", tenantID, id, false).
		First(&row).Error
	if err != nil {
		return model.ProductReadModel{}, translate(err)
	}
	return row, nil
}

// フィルタ/検索/ソート/ページング付きの一覧
func (r *ProductReadGormRepository) List(ctx context.Context, q repo.ProductReadQuery) ([]model.ProductReadModel, int64, error) {
	var rows []model.ProductReadModel
	var total int64

	tx := r.db.WithContext(ctx).Model(&model.ProductReadModel{}).
		Where("tenant_id = ? AND is_deleted = ?", q.TenantID, false)

	if q.Category != nil {
		tx = tx.Where("category = ?", *q.Category)
	}
	// search_text は小文字で保存済み
	if term := strings.TrimSpace(q.SearchTerm); term != "" {
		tx = tx.Where("search_text ILIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(term))+"%")
	}
	if q.MinPrice != nil {
		tx = tx.Where("price >= ?", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		tx = tx.Where("price <= ?", *q.MaxPrice)
	}
	if q.AvailableOnly {
		tx = tx.Where("is_available = ?", true)
	}

	//total（件数）。Count は別セッションで流して一覧側の Statement を汚さない
	if err := tx.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return []model.ProductReadModel{}, 0, translate(err)
	}

	//sort（id で同順位を固定）
	switch q.Sort {
	case repo.SortName:
		tx = tx.Order("name ASC").Order("id ASC")
	case repo.SortPrice:
		tx = tx.Order("price ASC").Order("id ASC")
	case repo.SortPriceDesc:
		tx = tx.Order("price DESC").Order("id ASC")
	case repo.SortUpdated:
		tx = tx.Order("updated_at DESC").Order("id ASC")
	default:
		tx = tx.Order("created_at ASC").Order("id ASC")
	}

	offset := (q.Page - 1) * q.PageSize
	if err := tx.Offset(offset).Limit(q.PageSize).Find(&rows).Error; err != nil {
		return []model.ProductReadModel{}, 0, translate(err)
	}
	return rows, total, nil
}

type statsRow struct {
	TotalProducts   int64
	ActiveProducts  int64
	AveragePrice    decimal.NullDecimal
	MinPrice        decimal.NullDecimal
	MaxPrice        decimal.NullDecimal
	TotalCategories int64
	LastUpdated     *time.Time
}

// 削除済みを除いた集計を1クエリで取る
func (r *ProductReadGormRepository) Stats(ctx context.Context, tenantID string, activeThreshold *decimal.Decimal) (repo.CatalogStats, error) {
	activeExpr := "COUNT(*) FILTER (WHERE is_available)"
	args := []interface{}{}
	if activeThreshold != nil {
		activeExpr = "COUNT(*) FILTER (WHERE is_available AND price > ?)"
		args = append(args, *activeThreshold)
	}

	var row statsRow
	err := r.db.WithContext(ctx).Model(&model.ProductReadModel{}).
		Select("COUNT(*) AS total_products, "+activeExpr+" AS active_products, "+
			"AVG(price) AS average_price, MIN(price) AS min_price, MAX(price) AS max_price, "+
			"COUNT(DISTINCT category) AS total_categories, MAX(updated_at) AS last_updated", args...).
		Where("tenant_id = ? AND is_deleted = ?", tenantID, false).
		Scan(&row).Error
	if err != nil {
		return repo.CatalogStats{}, translate(err)
	}

	stats := repo.CatalogStats{
		TotalProducts:   row.TotalProducts,
		ActiveProducts:  row.ActiveProducts,
		AveragePrice:    row.AveragePrice.Decimal.Round(2),
		MinPrice:        row.MinPrice.Decimal,
		MaxPrice:        row.MaxPrice.Decimal,
		TotalCategories: row.TotalCategories,
	}
	if row.LastUpdated != nil {
		stats.LastUpdated = row.LastUpdated.UTC()
	}
	return stats, nil
}

// ===== 投影側 =====

func (r *ProductReadGormRepository) Get(ctx context.Context, tenantID string, id string) (model.ProductReadModel, error) {
	if !isUUID(id) {
		return model.ProductReadModel{}, repo.ErrNotFound
	}
	var row model.ProductReadModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&row).Error
	if err != nil {
		return model.ProductReadModel{}, translate(err)
	}
	return row, nil
}

// INSERT ... ON CONFLICT (id) DO UPDATE ... WHERE version < excluded.version
func (r *ProductReadGormRepository) UpsertIfNewer(ctx context.Context, row model.ProductReadModel) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"sku", "name", "description", "price", "b2b_price", "category", "stock_quantity",
			"is_available", "tags", "image_urls", "search_text", "is_deleted", "version",
			"created_at", "updated_at",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "product_read_models.version < excluded.version AND product_read_models.tenant_id = excluded.tenant_id"},
		}},
	}).Create(&row)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *ProductReadGormRepository) ReplaceAtVersion(ctx context.Context, row model.ProductReadModel, expectedVersion int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.ProductReadModel{}).
		Where("tenant_id = ? AND id = ? AND version = ?", row.TenantID, row.ID, expectedVersion).
		Select("name", "description", "price", "b2b_price", "category", "stock_quantity",
			"is_available", "tags", "image_urls", "search_text", "is_deleted", "version", "updated_at").
		Updates(&row)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// LIKE のワイルドカードをエスケープ
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
