package usecase

import (
	"context"
	"strings"
	"time"

	"catalog/internal/apperr"
	"catalog/internal/domain/event"
	"catalog/internal/domain/model"

	"github.com/shopspring/decimal"
)

// 一括登録の上限
const MaxBulkImportItems = 10000

// 商品の属性（作成と一括登録で共通）
type ProductInput struct {
	Sku           string
	Name          string
	Description   *string
	Price         decimal.Decimal
	B2bPrice      decimal.NullDecimal
	Category      *string
	StockQuantity int64
	IsAvailable   bool
	Tags          []string
	ImageURLs     []string
}

type CreateProductCommand struct {
	TenantID string
	ProductInput
}

// 指定されたフィールドだけ変更する
type UpdateProductCommand struct {
	TenantID  string
	ProductID string
	Changes   event.ProductChanges
}

type DeleteProductCommand struct {
	TenantID  string
	ProductID string
}

type BulkImportProductsCommand struct {
	TenantID string
	Items    []ProductInput
}

// コマンドの結果。失敗時は Errors にフィールドエラーが入る。
type CommandResult struct {
	Success    bool                `json:"success"`
	ProductID  string              `json:"product_id,omitempty"`
	ProductIDs []string            `json:"product_ids,omitempty"`
	Errors     []apperr.FieldError `json:"errors,omitempty"`
}

// usecaseがValidatorに依存する約束
type ProductValidator interface {
	ValidateCreate(ctx context.Context, cmd CreateProductCommand) ([]apperr.FieldError, error)
	ValidateUpdate(ctx context.Context, cmd UpdateProductCommand) ([]apperr.FieldError, error)
	ValidateDelete(ctx context.Context, cmd DeleteProductCommand) ([]apperr.FieldError, error)
	ValidateBulkImport(ctx context.Context, cmd BulkImportProductsCommand) ([]apperr.FieldError, error)

	// 部分更新をマージした後の集約全体のチェック（B2bPrice <= Price など）
	ValidateProduct(p model.Product) []apperr.FieldError
}

// UUID 等のIDを作る約束
type IDGenerator interface {
	NewID() string
}

// 現在の時間
type Clock interface {
	Now() time.Time
}

// コミット後に relay を起こす
type OutboxNotifier interface {
	Notify()
}

func (in ProductInput) normalized() ProductInput {
	in.Sku = strings.TrimSpace(in.Sku)
	in.Name = strings.TrimSpace(in.Name)
	in.Category = trimmedPtr(in.Category)
	return in
}

func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func rejected(err error) CommandResult {
	return CommandResult{Success: false, Errors: apperr.FieldsOf(err)}
}
