package handler

import (
	"net/http"
	"strconv"
	"strings"

	"catalog/internal/apperr"
	"catalog/internal/middleware"
	"catalog/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Error  string              `json:"error"`
	Fields []apperr.FieldError `json:"fields,omitempty"`
}

// apperr の種類 → HTTPステータス
func statusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	status := statusOf(err)

	//500/503は中身を出さない
	if status >= http.StatusInternalServerError {
		c.Logger().Error(err)
		msg := "internal error"
		if status == http.StatusServiceUnavailable {
			msg = "temporarily unavailable"
		}
		return c.JSON(status, ErrorResponse{Error: msg})
	}

	e, _ := apperr.As(err)
	msg := err.Error()
	if e != nil {
		msg = e.Message
	}
	return c.JSON(status, ErrorResponse{Error: msg, Fields: apperr.FieldsOf(err)})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// 商品の参照API（/products の GET）
type ProductHandler struct {
	uc *usecase.ProductQueryUsecase
}

// DI
func NewProductHandler(uc *usecase.ProductQueryUsecase) *ProductHandler {
	return &ProductHandler{uc: uc}
}

// 参照系のルートを登録（g は JWT 済み）
func (h *ProductHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/products", h.list)
	g.GET("/products/search", h.search)
	g.GET("/products/stats", h.stats)
	g.GET("/products/:id", h.detail)
}

func (h *ProductHandler) list(c echo.Context) error {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	page, pageSize, err := parsePaging(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	minPrice, err := parseDecimalParam(c, "min_price")
	if err != nil {
		return badRequest(c, "invalid min_price")
	}
	maxPrice, err := parseDecimalParam(c, "max_price")
	if err != nil {
		return badRequest(c, "invalid max_price")
	}

	availableOnly := false
	if v := c.QueryParam("available_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return badRequest(c, "invalid available_only")
		}
		availableOnly = b
	}

	out, err := h.uc.GetProductsPaged(c.Request().Context(), usecase.GetProductsPagedInput{
		TenantID:      tenantID,
		Category:      optionalParam(c, "category"),
		SearchTerm:    c.QueryParam("q"),
		MinPrice:      minPrice,
		MaxPrice:      maxPrice,
		AvailableOnly: availableOnly,
		Sort:          c.QueryParam("sort"),
		Page:          page,
		PageSize:      pageSize,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *ProductHandler) search(c echo.Context) error {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	page, pageSize, err := parsePaging(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	out, err := h.uc.SearchProducts(c.Request().Context(), usecase.SearchProductsInput{
		TenantID:   tenantID,
		SearchTerm: c.QueryParam("q"),
		Category:   optionalParam(c, "category"),
		Sort:       c.QueryParam("sort"),
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *ProductHandler) stats(c echo.Context) error {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.GetCatalogStats(c.Request().Context(), tenantID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ProductHandler) detail(c echo.Context) error {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	p, err := h.uc.GetProductByID(c.Request().Context(), tenantID, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, p)
}

type paramError string

func (e paramError) Error() string { return string(e) }

// page（default 1）と page_size（default 20）
func parsePaging(c echo.Context) (int, int, error) {
	page := 1
	if v := c.QueryParam("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, paramError("invalid page")
		}
		page = p
	}

	pageSize := 20
	if v := c.QueryParam("page_size"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, paramError("invalid page_size")
		}
		pageSize = l
	}
	return page, pageSize, nil
}

func parseDecimalParam(c echo.Context, name string) (*decimal.Decimal, error) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func optionalParam(c echo.Context, name string) *string {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return nil
	}
	return &v
}
