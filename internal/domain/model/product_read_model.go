package model

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// 読み取り側の非正規化モデル。投影ハンドラだけが書き込む。
type ProductReadModel struct {
	ID            string              `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID      string              `gorm:"type:varchar(64);not null;index:ix_read_tenant_category,priority:1;index:ix_read_tenant_created,priority:1" json:"tenant_id"`
	Sku           string              `gorm:"type:varchar(100);not null" json:"sku"`
	Name          string              `gorm:"type:varchar(255);not null" json:"name"`
	Description   *string             `gorm:"type:text" json:"description,omitempty"`
	Price         decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"price"`
	B2bPrice      decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"b2b_price"`
	Category      *string             `gorm:"type:varchar(100);index:ix_read_tenant_category,priority:2" json:"category,omitempty"`
	StockQuantity int64               `gorm:"not null" json:"stock_quantity"`
	IsAvailable   bool                `gorm:"not null" json:"is_available"`
	Tags          pq.StringArray      `gorm:"type:text[]" json:"tags"`
	ImageURLs     pq.StringArray      `gorm:"type:text[]" json:"image_urls"`

	SearchText string `gorm:"type:text;not null" json:"-"`
	IsDeleted  bool   `gorm:"not null;default:false;index" json:"-"`

	// 最後に反映したイベントの Version
	Version int64 `gorm:"not null" json:"version"`

	CreatedAt time.Time `gorm:"not null;index:ix_read_tenant_created,priority:2" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ProductReadModel) TableName() string {
	return "product_read_models"
}

// 書き込み側のスナップショットから読み取りモデルを作る
func ReadModelFromProduct(p Product) ProductReadModel {
	return ProductReadModel{
		ID:            p.ID,
		TenantID:      p.TenantID,
		Sku:           p.Sku,
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price,
		B2bPrice:      p.B2bPrice,
		Category:      p.Category,
		StockQuantity: p.StockQuantity,
		IsAvailable:   p.IsAvailable,
		Tags:          p.Tags,
		ImageURLs:     p.ImageURLs,
		SearchText:    BuildSearchText(p.Name, p.Description, p.Sku),
		IsDeleted:     !p.IsActive || p.DeletedAt.Valid,
		Version:       p.Version,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}
