package repository

import (
	"context"
	"time"

	"catalog/internal/domain/model"

	"github.com/shopspring/decimal"
)

// 一覧/検索の条件。TenantID は必須。
type ProductReadQuery struct {
	TenantID      string
	Category      *string
	SearchTerm    string
	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
	AvailableOnly bool
	Sort          string
	Page          int
	PageSize      int
}

// 並び順
const (
	SortCreated   = "created"
	SortName      = "name"
	SortPrice     = "price"
	SortPriceDesc = "price_desc"
	SortUpdated   = "updated"
)

type CatalogStats struct {
	TotalProducts   int64           `json:"total_products"`
	ActiveProducts  int64           `json:"active_products"`
	AveragePrice    decimal.Decimal `json:"average_price"`
	MinPrice        decimal.Decimal `json:"min_price"`
	MaxPrice        decimal.Decimal `json:"max_price"`
	TotalCategories int64           `json:"total_categories"`
	LastUpdated     time.Time       `json:"last_updated"`
}

// クエリ側が使う読み取り専用の口。削除済みの行は返さない。
type ProductReadRepository interface {
	FindByID(ctx context.Context, tenantID string, id string) (model.ProductReadModel, error)
	List(ctx context.Context, q ProductReadQuery) ([]model.ProductReadModel, int64, error)

	// activeThreshold があれば price > threshold も active の条件にする
	Stats(ctx context.Context, tenantID string, activeThreshold *decimal.Decimal) (CatalogStats, error)
}

// 投影ハンドラだけが使う書き込みの口。
type ProductProjectionRepository interface {
	// 削除済みも含めて1件取得
	Get(ctx context.Context, tenantID string, id string) (model.ProductReadModel, error)

	// 行がない or 保存済み Version < row.Version のときだけ丸ごと置き換える
	UpsertIfNewer(ctx context.Context, row model.ProductReadModel) (bool, error)

	// 保存済み Version == expectedVersion のときだけ置き換える
	ReplaceAtVersion(ctx context.Context, row model.ProductReadModel, expectedVersion int64) (bool, error)
}
