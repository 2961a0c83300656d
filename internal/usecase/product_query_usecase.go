package usecase

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"catalog/internal/apperr"
	"catalog/internal/domain/model"
	repo "catalog/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	MaxPageSize       = 100
	MaxSearchTermSize = 200
)

// 読み取り側。読み取りストアしか触らない。
type ProductQueryUsecase struct {
	readRepo        repo.ProductReadRepository
	activeThreshold *decimal.Decimal
	logger          *zap.Logger
}

// activeThreshold は nil なら IsAvailable だけで active を数える
func NewProductQueryUsecase(readRepo repo.ProductReadRepository, activeThreshold *decimal.Decimal, logger *zap.Logger) *ProductQueryUsecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductQueryUsecase{
		readRepo:        readRepo,
		activeThreshold: activeThreshold,
		logger:          logger.Named("product_query"),
	}
}

type GetProductsPagedInput struct {
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

type SearchProductsInput struct {
	TenantID   string
	SearchTerm string
	Category   *string
	Sort       string
	Page       int
	PageSize   int
}

type PagedResult struct {
	Items      []model.ProductReadModel `json:"items"`
	TotalCount int64                    `json:"total_count"`
	Page       int                      `json:"page"`
	PageSize   int                      `json:"page_size"`
	TotalPages int                      `json:"total_pages"`
}

// 1件取得。削除済みは NotFound
func (u *ProductQueryUsecase) GetProductByID(ctx context.Context, tenantID, productID string) (model.ProductReadModel, error) {
	var fields []apperr.FieldError
	if strings.TrimSpace(tenantID) == "" {
		fields = append(fields, apperr.FieldError{Field: "tenant_id", Code: apperr.CodeRequired, Message: "tenant id required"})
	}
	if strings.TrimSpace(productID) == "" {
		fields = append(fields, apperr.FieldError{Field: "product_id", Code: apperr.CodeRequired, Message: "product id required"})
	}
	if err := apperr.FromFields(fields); err != nil {
		return model.ProductReadModel{}, err
	}

	p, err := u.readRepo.FindByID(ctx, tenantID, productID)
	if err != nil {
		return model.ProductReadModel{}, u.queryError("get_by_id", err)
	}
	return p, nil
}

// 一覧（ページング）
func (u *ProductQueryUsecase) GetProductsPaged(ctx context.Context, in GetProductsPagedInput) (PagedResult, error) {
	q := repo.ProductReadQuery{
		TenantID:      in.TenantID,
		Category:      trimmedPtr(in.Category),
		SearchTerm:    strings.TrimSpace(in.SearchTerm),
		MinPrice:      in.MinPrice,
		MaxPrice:      in.MaxPrice,
		AvailableOnly: in.AvailableOnly,
		Sort:          strings.TrimSpace(in.Sort),
		Page:          in.Page,
		PageSize:      in.PageSize,
	}

	fields := checkReadQuery(q)
	if in.MinPrice != nil && in.MinPrice.IsNegative() {
		fields = append(fields, apperr.FieldError{Field: "min_price", Code: apperr.CodeOutOfRange, Message: "min_price must be >= 0"})
	}
	if in.MinPrice != nil && in.MaxPrice != nil && in.MinPrice.GreaterThan(*in.MaxPrice) {
		fields = append(fields, apperr.FieldError{Field: "max_price", Code: apperr.CodeOutOfRange, Message: "max_price must be >= min_price"})
	}
	if err := apperr.FromFields(fields); err != nil {
		return PagedResult{}, err
	}

	return u.list(ctx, "paged", q)
}

// 部分一致検索（大文字小文字は無視）
func (u *ProductQueryUsecase) SearchProducts(ctx context.Context, in SearchProductsInput) (PagedResult, error) {
	q := repo.ProductReadQuery{
		TenantID:   in.TenantID,
		Category:   trimmedPtr(in.Category),
		SearchTerm: strings.TrimSpace(in.SearchTerm),
		Sort:       strings.TrimSpace(in.Sort),
		Page:       in.Page,
		PageSize:   in.PageSize,
	}

	fields := checkReadQuery(q)
	if q.SearchTerm == "" {
		fields = append(fields, apperr.FieldError{Field: "q", Code: apperr.CodeRequired, Message: "search term required"})
	}
	if err := apperr.FromFields(fields); err != nil {
		return PagedResult{}, err
	}

	return u.list(ctx, "search", q)
}

// 統計（削除済みは除外）
func (u *ProductQueryUsecase) GetCatalogStats(ctx context.Context, tenantID string) (repo.CatalogStats, error) {
	if strings.TrimSpace(tenantID) == "" {
		return repo.CatalogStats{}, apperr.Validation("validation error",
			apperr.FieldError{Field: "tenant_id", Code: apperr.CodeRequired, Message: "tenant id required"})
	}

	stats, err := u.readRepo.Stats(ctx, tenantID, u.activeThreshold)
	if err != nil {
		return repo.CatalogStats{}, u.queryError("stats", err)
	}
	return stats, nil
}

func (u *ProductQueryUsecase) list(ctx context.Context, op string, q repo.ProductReadQuery) (PagedResult, error) {
	if q.Sort == "" {
		q.Sort = repo.SortCreated
	}

	items, total, err := u.readRepo.List(ctx, q)
	if err != nil {
		return PagedResult{}, u.queryError(op, err)
	}
	if items == nil {
		items = []model.ProductReadModel{}
	}

	return PagedResult{
		Items:      items,
		TotalCount: total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: int((total + int64(q.PageSize) - 1) / int64(q.PageSize)),
	}, nil
}

func (u *ProductQueryUsecase) queryError(op string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.NotFound("product not found")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Transient("request canceled", err)
	}
	u.logger.Error("query failed", zap.String("op", op), zap.Error(err))
	return apperr.Unknown("db error", err)
}

// page/pageSize/sort の最低限チェック
func checkReadQuery(q repo.ProductReadQuery) []apperr.FieldError {
	var fields []apperr.FieldError
	if strings.TrimSpace(q.TenantID) == "" {
		fields = append(fields, apperr.FieldError{Field: "tenant_id", Code: apperr.CodeRequired, Message: "tenant id required"})
	}
	if q.Page < 1 {
		fields = append(fields, apperr.FieldError{Field: "page", Code: apperr.CodeOutOfRange, Message: "invalid page"})
	}
	if q.PageSize < 1 || q.PageSize > MaxPageSize {
		fields = append(fields, apperr.FieldError{Field: "page_size", Code: apperr.CodeOutOfRange, Message: "invalid page_size"})
	}
	switch q.Sort {
	case "", repo.SortCreated, repo.SortName, repo.SortPrice, repo.SortPriceDesc, repo.SortUpdated:
		// OK
	default:
		fields = append(fields, apperr.FieldError{Field: "sort", Code: apperr.CodeInvalid, Message: "invalid sort"})
	}
	if utf8.RuneCountInString(q.SearchTerm) > MaxSearchTermSize {
		fields = append(fields, apperr.FieldError{Field: "q", Code: apperr.CodeTooLong, Message: "search term too long"})
	}
	return fields
}
