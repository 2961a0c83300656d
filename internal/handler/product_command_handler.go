package handler

import (
	"bytes"
	"encoding/json"
	"net/http"

	"catalog/internal/domain/event"
	"catalog/internal/middleware"
	"catalog/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// 作成/一括登録の1商品ぶん
type ProductRequest struct {
	Sku           string              `json:"sku"`
	Name          string              `json:"name"`
	Description   *string             `json:"description"`
	Price         decimal.Decimal     `json:"price"`
	B2bPrice      decimal.NullDecimal `json:"b2b_price"`
	Category      *string             `json:"category"`
	StockQuantity int64               `json:"stock_quantity"`
	IsAvailable   *bool               `json:"is_available"` // 省略時 true
	Tags          []string            `json:"tags"`
	ImageURLs     []string            `json:"image_urls"`
}

func (r ProductRequest) toInput() usecase.ProductInput {
	available := true
	if r.IsAvailable != nil {
		available = *r.IsAvailable
	}
	return usecase.ProductInput{
		Sku:           r.Sku,
		Name:          r.Name,
		Description:   r.Description,
		Price:         r.Price,
		B2bPrice:      r.B2bPrice,
		Category:      r.Category,
		StockQuantity: r.StockQuantity,
		IsAvailable:   available,
		Tags:          r.Tags,
		ImageURLs:     r.ImageURLs,
	}
}

type BulkImportRequest struct {
	Items []ProductRequest `json:"items"`
}

// patchField は「キーがあったか」「null だったか」を覚える
type patchField[T any] struct {
	Set   bool
	Null  bool
	Value T
}

func (f *patchField[T]) UnmarshalJSON(b []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		f.Null = true
		return nil
	}
	return json.Unmarshal(b, &f.Value)
}

func (f patchField[T]) optional() event.Optional[T] {
	if !f.Set {
		return event.Optional[T]{}
	}
	return event.Some(f.Value)
}

// PATCH の本文。null を許すのは description / b2b_price / category だけ
type ProductPatchRequest struct {
	Name          patchField[string]              `json:"name"`
	Description   patchField[*string]             `json:"description"`
	Price         patchField[decimal.Decimal]     `json:"price"`
	B2bPrice      patchField[decimal.NullDecimal] `json:"b2b_price"`
	Category      patchField[*string]             `json:"category"`
	StockQuantity patchField[int64]               `json:"stock_quantity"`
	IsAvailable   patchField[bool]                `json:"is_available"`
	Tags          patchField[[]string]            `json:"tags"`
	ImageURLs     patchField[[]string]            `json:"image_urls"`
}

// null 不可のフィールドに null が来たらその名前を返す
func (r ProductPatchRequest) nullViolation() string {
	switch {
	case r.Name.Null:
		return "name"
	case r.Price.Null:
		return "price"
	case r.StockQuantity.Null:
		return "stock_quantity"
	case r.IsAvailable.Null:
		return "is_available"
	}
	return ""
}

func (r ProductPatchRequest) toChanges() event.ProductChanges {
	c := event.ProductChanges{
		Name:          r.Name.optional(),
		Description:   r.Description.optional(),
		Price:         r.Price.optional(),
		B2bPrice:      r.B2bPrice.optional(),
		Category:      r.Category.optional(),
		StockQuantity: r.StockQuantity.optional(),
		IsAvailable:   r.IsAvailable.optional(),
		Tags:          r.Tags.optional(),
		ImageURLs:     r.ImageURLs.optional(),
	}
	// tags/image_urls の null は空にする
	if r.Tags.Null {
		c.Tags = event.Some([]string{})
	}
	if r.ImageURLs.Null {
		c.ImageURLs = event.Some([]string{})
	}
	return c
}

// 商品の更新API（/products の POST/PATCH/DELETE）
type ProductCommandHandler struct {
	uc *usecase.ProductCommandUsecase
}

// DI
func NewProductCommandHandler(uc *usecase.ProductCommandUsecase) *ProductCommandHandler {
	return &ProductCommandHandler{uc: uc}
}

func (h *ProductCommandHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/products", h.create)
	g.POST("/products/bulk", h.bulkImport)
	g.PATCH("/products/:id", h.update)
	g.DELETE("/products/:id", h.delete)
}

func (h *ProductCommandHandler) create(c echo.Context) error {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	res, err := h.uc.CreateProduct(c.Request().Context(), usecase.CreateProductCommand{
		TenantID:     tenantID,
		ProductInput: req.toInput(),
	})
	return writeCommandResult(c, http.StatusCreated, res, err)
}

func (h *ProductCommandHandler) update(c echo.Context) error {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req ProductPatchRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if field := req.nullViolation(); field != "" {
		return badRequest(c, field+" must not be null")
	}

	res, err := h.uc.UpdateProduct(c.Request().Context(), usecase.UpdateProductCommand{
		TenantID:  tenantID,
		ProductID: c.Param("id"),
		Changes:   req.toChanges(),
	})
	return writeCommandResult(c, http.StatusOK, res, err)
}

func (h *ProductCommandHandler) delete(c echo.Context) error {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	res, err := h.uc.DeleteProduct(c.Request().Context(), usecase.DeleteProductCommand{
		TenantID:  tenantID,
		ProductID: c.Param("id"),
	})
	return writeCommandResult(c, http.StatusOK, res, err)
}

func (h *ProductCommandHandler) bulkImport(c echo.Context) error {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req BulkImportRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	items := make([]usecase.ProductInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = it.toInput()
	}

	res, err := h.uc.BulkImportProducts(c.Request().Context(), usecase.BulkImportProductsCommand{
		TenantID: tenantID,
		Items:    items,
	})
	return writeCommandResult(c, http.StatusCreated, res, err)
}

// 失敗時もCommandResultの形で返す（ステータスはエラーの種類）
func writeCommandResult(c echo.Context, okStatus int, res usecase.CommandResult, err error) error {
	if err == nil {
		return c.JSON(okStatus, res)
	}
	status := statusOf(err)
	if status >= http.StatusInternalServerError || len(res.Errors) == 0 {
		return writeError(c, err)
	}
	return c.JSON(status, res)
}
