package repository

import (
	"catalog/internal/domain/model"
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")

	// (tenant_id, sku) のユニーク制約違反
	ErrDuplicateSku = errors.New("duplicate sku")

	// 楽観ロック失敗（他のコマンドが先に更新した）
	ErrVersionConflict = errors.New("version conflict")
)

// 書き込みストアの商品。全メソッドが tenantID で絞り込む。
type ProductRepository interface {
	FindByID(ctx context.Context, tenantID string, id string) (model.Product, error)

	// 論理削除済みも含めて存在確認（ユニーク制約と同じ範囲）
	ExistsBySku(ctx context.Context, tenantID string, sku string) (bool, error)
	ExistingSkus(ctx context.Context, tenantID string, skus []string) ([]string, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
	CreateBatch(ctx context.Context, ps []model.Product) error

	// 保存済み Version == expectedVersion のときだけ p で置き換える（p.Version は呼び出し側で+1済み）
	Update(ctx context.Context, p model.Product, expectedVersion int64) error
	// is_active=false, deleted_at=at, version=expectedVersion+1
	SoftDelete(ctx context.Context, tenantID string, id string, expectedVersion int64, at time.Time) error
}

// 投影ハンドラが書き込みストアを読み直すための読み取り専用の口。
type ProductSource interface {
	// 論理削除済みも含めて返す
	FindByIDs(ctx context.Context, tenantID string, ids []string) ([]model.Product, error)
}
