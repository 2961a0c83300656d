package validator

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"catalog/internal/apperr"
	"catalog/internal/domain/model"
	"catalog/internal/usecase"

	"github.com/shopspring/decimal"
)

// 入力の上限
const (
	MaxNameLength        = 255
	MaxSkuLength         = 100
	MaxDescriptionLength = 2000
	MaxCategoryLength    = 100
	MaxTags              = 20
	MaxTagLength         = 50
	MaxImageURLs         = 10

	// 価格列は numeric(12,2)
	PriceScale = 2
)

var MaxPrice = decimal.RequireFromString("9999999999.99")

// SKU重複チェックに必要なストアの口（論理削除済みも含む）
type SkuLookup interface {
	ExistsBySku(ctx context.Context, tenantID string, sku string) (bool, error)
	ExistingSkus(ctx context.Context, tenantID string, skus []string) ([]string, error)
}

type productValidator struct {
	products SkuLookup
}

// Usecaseは interface を依存注入
func NewProductValidator(products SkuLookup) usecase.ProductValidator {
	return &productValidator{products: products}
}

// 作成の入力を検証
func (v *productValidator) ValidateCreate(ctx context.Context, cmd usecase.CreateProductCommand) ([]apperr.FieldError, error) {
	fields := checkTenant(cmd.TenantID)
	fields = append(fields, checkInput("", cmd.ProductInput)...)

	// 形式エラーがあればDBは見ない
	if len(fields) > 0 {
		return fields, nil
	}

	// SKU重複チェック（DBが必要）
	exists, err := v.products.ExistsBySku(ctx, cmd.TenantID, cmd.Sku)
	if err != nil {
		return nil, err
	}
	if exists {
		fields = append(fields, apperr.FieldError{Field: "sku", Code: apperr.CodeConflict, Message: "sku already exists"})
	}
	return fields, nil
}

// 更新の入力を検証。存在確認はハンドラ側でやる
func (v *productValidator) ValidateUpdate(ctx context.Context, cmd usecase.UpdateProductCommand) ([]apperr.FieldError, error) {
	fields := checkTenant(cmd.TenantID)
	fields = append(fields, checkProductID(cmd.ProductID)...)

	c := cmd.Changes
	if c.IsEmpty() {
		fields = append(fields, apperr.FieldError{Field: "changes", Code: apperr.CodeRequired, Message: "at least one field must be supplied"})
	}
	if name, ok := c.Name.Get(); ok {
		fields = append(fields, checkName("", name)...)
	}
	if desc, ok := c.Description.Get(); ok {
		fields = append(fields, checkDescription("", desc)...)
	}
	if price, ok := c.Price.Get(); ok {
		fields = append(fields, checkPrice("", "price", price)...)
	}
	if b2b, ok := c.B2bPrice.Get(); ok && b2b.Valid {
		fields = append(fields, checkPrice("", "b2b_price", b2b.Decimal)...)
	}
	if cat, ok := c.Category.Get(); ok {
		fields = append(fields, checkCategory("", cat)...)
	}
	if qty, ok := c.StockQuantity.Get(); ok {
		fields = append(fields, checkStock("", qty)...)
	}
	if tags, ok := c.Tags.Get(); ok {
		fields = append(fields, checkTags("", tags)...)
	}
	if urls, ok := c.ImageURLs.Get(); ok {
		fields = append(fields, checkImageURLs("", urls)...)
	}
	return fields, nil
}

// 削除の入力を検証
func (v *productValidator) ValidateDelete(ctx context.Context, cmd usecase.DeleteProductCommand) ([]apperr.FieldError, error) {
	fields := checkTenant(cmd.TenantID)
	fields = append(fields, checkProductID(cmd.ProductID)...)
	return fields, nil
}

// 一括登録の入力を検証。件数超過なら行は見ない
func (v *productValidator) ValidateBulkImport(ctx context.Context, cmd usecase.BulkImportProductsCommand) ([]apperr.FieldError, error) {
	fields := checkTenant(cmd.TenantID)

	switch {
	case len(cmd.Items) == 0:
		return append(fields, apperr.FieldError{Field: "items", Code: apperr.CodeRequired, Message: "items required"}), nil
	case len(cmd.Items) > usecase.MaxBulkImportItems:
		return append(fields, apperr.FieldError{
			Field:   "items",
			Code:    apperr.CodeTooMany,
			Message: fmt.Sprintf("at most %d items allowed", usecase.MaxBulkImportItems),
		}), nil
	}

	seen := make(map[string]int, len(cmd.Items))
	skus := make([]string, 0, len(cmd.Items))
	for i, item := range cmd.Items {
		prefix := fmt.Sprintf("items[%d].", i)
		fields = append(fields, checkInput(prefix, item)...)

		if item.Sku == "" {
			continue
		}
		if first, dup := seen[item.Sku]; dup {
			fields = append(fields, apperr.FieldError{
				Field:   prefix + "sku",
				Code:    apperr.CodeDuplicate,
				Message: fmt.Sprintf("duplicate sku in batch (same as items[%d])", first),
			})
			continue
		}
		seen[item.Sku] = i
		skus = append(skus, item.Sku)
	}
	if len(fields) > 0 {
		return fields, nil
	}

	existing, err := v.products.ExistingSkus(ctx, cmd.TenantID, skus)
	if err != nil {
		return nil, err
	}
	for _, sku := range existing {
		fields = append(fields, apperr.FieldError{
			Field:   fmt.Sprintf("items[%d].sku", seen[sku]),
			Code:    apperr.CodeConflict,
			Message: "sku already exists",
		})
	}
	return fields, nil
}

// マージ後の集約を検証
func (v *productValidator) ValidateProduct(p model.Product) []apperr.FieldError {
	return checkInput("", usecase.ProductInput{
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
	})
}

func checkTenant(tenantID string) []apperr.FieldError {
	if strings.TrimSpace(tenantID) == "" {
		return []apperr.FieldError{{Field: "tenant_id", Code: apperr.CodeRequired, Message: "tenant id required"}}
	}
	return nil
}

func checkProductID(id string) []apperr.FieldError {
	if strings.TrimSpace(id) == "" {
		return []apperr.FieldError{{Field: "product_id", Code: apperr.CodeRequired, Message: "product id required"}}
	}
	return nil
}

func checkInput(prefix string, in usecase.ProductInput) []apperr.FieldError {
	var fields []apperr.FieldError

	// 必須チェック
	if strings.TrimSpace(in.Sku) == "" {
		fields = append(fields, apperr.FieldError{Field: prefix + "sku", Code: apperr.CodeRequired, Message: "sku required"})
	} else if utf8.RuneCountInString(in.Sku) > MaxSkuLength {
		fields = append(fields, apperr.FieldError{Field: prefix + "sku", Code: apperr.CodeTooLong, Message: fmt.Sprintf("sku must be at most %d characters", MaxSkuLength)})
	}
	fields = append(fields, checkName(prefix, in.Name)...)
	fields = append(fields, checkDescription(prefix, in.Description)...)
	fields = append(fields, checkPrice(prefix, "price", in.Price)...)

	// B2B価格は通常価格以下
	if in.B2bPrice.Valid {
		if errs := checkPrice(prefix, "b2b_price", in.B2bPrice.Decimal); len(errs) > 0 {
			fields = append(fields, errs...)
		} else if in.B2bPrice.Decimal.GreaterThan(in.Price) {
			fields = append(fields, apperr.FieldError{Field: prefix + "b2b_price", Code: apperr.CodeOutOfRange, Message: "b2b_price must be <= price"})
		}
	}

	fields = append(fields, checkCategory(prefix, in.Category)...)
	fields = append(fields, checkStock(prefix, in.StockQuantity)...)
	fields = append(fields, checkTags(prefix, in.Tags)...)
	fields = append(fields, checkImageURLs(prefix, in.ImageURLs)...)
	return fields
}

func checkName(prefix string, name string) []apperr.FieldError {
	if strings.TrimSpace(name) == "" {
		return []apperr.FieldError{{Field: prefix + "name", Code: apperr.CodeRequired, Message: "name required"}}
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return []apperr.FieldError{{Field: prefix + "name", Code: apperr.CodeTooLong, Message: fmt.Sprintf("name must be at most %d characters", MaxNameLength)}}
	}
	return nil
}

func checkDescription(prefix string, desc *string) []apperr.FieldError {
	if desc != nil && utf8.RuneCountInString(*desc) > MaxDescriptionLength {
		return []apperr.FieldError{{Field: prefix + "description", Code: apperr.CodeTooLong, Message: fmt.Sprintf("description must be at most %d characters", MaxDescriptionLength)}}
	}
	return nil
}

// 0 以上、MaxPrice 以下、小数は2桁まで
func checkPrice(prefix, name string, price decimal.Decimal) []apperr.FieldError {
	switch {
	case price.IsNegative():
		return []apperr.FieldError{{Field: prefix + name, Code: apperr.CodeOutOfRange, Message: name + " must be >= 0"}}
	case price.GreaterThan(MaxPrice):
		return []apperr.FieldError{{Field: prefix + name, Code: apperr.CodeOutOfRange, Message: fmt.Sprintf("%s must be <= %s", name, MaxPrice.String())}}
	case !price.Equal(price.Truncate(PriceScale)):
		return []apperr.FieldError{{Field: prefix + name, Code: apperr.CodeInvalid, Message: fmt.Sprintf("%s must have at most %d decimal places", name, PriceScale)}}
	}
	return nil
}

func checkCategory(prefix string, cat *string) []apperr.FieldError {
	if cat != nil && utf8.RuneCountInString(*cat) > MaxCategoryLength {
		return []apperr.FieldError{{Field: prefix + "category", Code: apperr.CodeTooLong, Message: fmt.Sprintf("category must be at most %d characters", MaxCategoryLength)}}
	}
	return nil
}

func checkStock(prefix string, qty int64) []apperr.FieldError {
	if qty < 0 {
		return []apperr.FieldError{{Field: prefix + "stock_quantity", Code: apperr.CodeOutOfRange, Message: "stock_quantity must be >= 0"}}
	}
	return nil
}

func checkTags(prefix string, tags []string) []apperr.FieldError {
	if len(tags) > MaxTags {
		return []apperr.FieldError{{Field: prefix + "tags", Code: apperr.CodeTooMany, Message: fmt.Sprintf("at most %d tags allowed", MaxTags)}}
	}
	var fields []apperr.FieldError
	for i, tag := range tags {
		field := fmt.Sprintf("%stags[%d]", prefix, i)
		switch {
		case strings.TrimSpace(tag) == "":
			fields = append(fields, apperr.FieldError{Field: field, Code: apperr.CodeRequired, Message: "tag must not be empty"})
		case utf8.RuneCountInString(tag) > MaxTagLength:
			fields = append(fields, apperr.FieldError{Field: field, Code: apperr.CodeTooLong, Message: fmt.Sprintf("tag must be at most %d characters", MaxTagLength)})
		}
	}
	return fields
}

func checkImageURLs(prefix string, urls []string) []apperr.FieldError {
	if len(urls) > MaxImageURLs {
		return []apperr.FieldError{{Field: prefix + "image_urls", Code: apperr.CodeTooMany, Message: fmt.Sprintf("at most %d image urls allowed", MaxImageURLs)}}
	}
	var fields []apperr.FieldError
	for i, raw := range urls {
		if !isAbsoluteURL(raw) {
			fields = append(fields, apperr.FieldError{
				Field:   fmt.Sprintf("%simage_urls[%d]", prefix, i),
				Code:    apperr.CodeInvalid,
				Message: "image url must be an absolute http(s) url",
			})
		}
	}
	return fields
}

// http/https の絶対URLだけ許可
func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
