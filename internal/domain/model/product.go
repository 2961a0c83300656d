package model

import (
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 書き込み側（正）の商品。コマンドハンドラだけがトランザクション内で更新する。
type Product struct {
	ID            string              `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID      string              `gorm:"type:varchar(64);not null;uniqueIndex:ux_products_tenant_sku,priority:1" json:"tenant_id"`
	Sku           string              `gorm:"type:varchar(100);not null;uniqueIndex:ux_products_tenant_sku,priority:2" json:"sku"`
	Name          string              `gorm:"type:varchar(255);not null" json:"name"`
	Description   *string             `gorm:"type:text" json:"description,omitempty"`
	Price         decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"price"`
	B2bPrice      decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"b2b_price"`
	Category      *string             `gorm:"type:varchar(100);index" json:"category,omitempty"`
	StockQuantity int64               `gorm:"not null;default:0" json:"stock_quantity"`
	IsAvailable   bool                `gorm:"not null" json:"is_available"`
	IsActive      bool                `gorm:"not null" json:"is_active"`
	Tags          pq.StringArray      `gorm:"type:text[]" json:"tags"`
	ImageURLs     pq.StringArray      `gorm:"type:text[]" json:"image_urls"`

	// 集約ごとの連番。変更のたびに+1、イベントにも載せる
	Version int64 `gorm:"not null;default:1" json:"version"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// SearchText 用の文字列（name + description + sku を小文字で連結）
func BuildSearchText(name string, description *string, sku string) string {
	desc := ""
	if description != nil {
		desc = *description
	}
	return strings.ToLower(name + " " + desc + " " + sku)
}
