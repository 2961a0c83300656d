// Package event は書き込み側から読み取り側へ流れるドメインイベント。
// イベントは不変で、振る舞いは自己検証だけ。
package event

import (
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeProductCreated       Type = "product.created"
	TypeProductUpdated       Type = "product.updated"
	TypeProductDeleted       Type = "product.deleted"
	TypeProductsBulkImported Type = "products.bulk_imported"
)

// Metadata は全イベント共通のヘッダ。
// Version は集約ごとの連番で、投影側の順序判定に使う。
type Metadata struct {
	EventID    string    `json:"event_id"`
	TenantID   string    `json:"tenant_id"`
	Version    int64     `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Event interface {
	Type() Type
	Meta() Metadata
	AggregateID() string
	Validate() error
}

// Optional は部分更新の「指定あり/なし」を型で表す。
type Optional[T any] struct {
	Set   bool `json:"set"`
	Value T    `json:"value"`
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Set
}

// 作成時のスナップショット
type ProductCreated struct {
	Metadata
	ProductID     string              `json:"product_id"`
	Sku           string              `json:"sku"`
	Name          string              `json:"name"`
	Description   *string             `json:"description,omitempty"`
	Price         decimal.Decimal     `json:"price"`
	B2bPrice      decimal.NullDecimal `json:"b2b_price"`
	Category      *string             `json:"category,omitempty"`
	StockQuantity int64               `json:"stock_quantity"`
	IsAvailable   bool                `json:"is_available"`
	Tags          []string            `json:"tags"`
	ImageURLs     []string            `json:"image_urls"`
	CreatedAt     time.Time           `json:"created_at"`
}

func (e ProductCreated) Type() Type          { return TypeProductCreated }
func (e ProductCreated) Meta() Metadata      { return e.Metadata }
func (e ProductCreated) AggregateID() string { return e.ProductID }

// 変更されたフィールドだけ Set=true
type ProductChanges struct {
	Name          Optional[string]              `json:"name"`
	Description   Optional[*string]             `json:"description"`
	Price         Optional[decimal.Decimal]     `json:"price"`
	B2bPrice      Optional[decimal.NullDecimal] `json:"b2b_price"`
	Category      Optional[*string]             `json:"category"`
	StockQuantity Optional[int64]               `json:"stock_quantity"`
	IsAvailable   Optional[bool]                `json:"is_available"`
	Tags          Optional[[]string]            `json:"tags"`
	ImageURLs     Optional[[]string]            `json:"image_urls"`
}

func (c ProductChanges) IsEmpty() bool {
	return !c.Name.Set && !c.Description.Set && !c.Price.Set && !c.B2bPrice.Set &&
		!c.Category.Set && !c.StockQuantity.Set && !c.IsAvailable.Set &&
		!c.Tags.Set && !c.ImageURLs.Set
}

// SearchText の再計算が必要か
func (c ProductChanges) TouchesSearchText() bool {
	return c.Name.Set || c.Description.Set
}

type ProductUpdated struct {
	Metadata
	ProductID string         `json:"product_id"`
	Changes   ProductChanges `json:"changes"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (e ProductUpdated) Type() Type          { return TypeProductUpdated }
func (e ProductUpdated) Meta() Metadata      { return e.Metadata }
func (e ProductUpdated) AggregateID() string { return e.ProductID }

type ProductDeleted struct {
	Metadata
	ProductID string    `json:"product_id"`
	Sku       string    `json:"sku"`
	DeletedAt time.Time `json:"deleted_at"`
}

func (e ProductDeleted) Type() Type          { return TypeProductDeleted }
func (e ProductDeleted) Meta() Metadata      { return e.Metadata }
func (e ProductDeleted) AggregateID() string { return e.ProductID }

// 一括登録のサマリ。行データは持たないので投影側は書き込みストアを読み直す。
type ProductsBulkImported struct {
	Metadata
	ProductIDs []string `json:"product_ids"`
	TotalCount int      `json:"total_count"`
}

func (e ProductsBulkImported) Type() Type { return TypeProductsBulkImported }
func (e ProductsBulkImported) Meta() Metadata {
	return e.Metadata
}

// バッチ自体を集約とみなす
func (e ProductsBulkImported) AggregateID() string { return e.EventID }
