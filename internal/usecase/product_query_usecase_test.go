package usecase_test

import (
	"context"
	"testing"

	"catalog/internal/apperr"
	"catalog/internal/domain/model"
	repo "catalog/internal/repository"
	"catalog/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type ReadRepoMock struct{ mock.Mock }

func (m *ReadRepoMock) FindByID(ctx context.Context, tenantID string, id string) (model.ProductReadModel, error) {
	args := m.Called(ctx, tenantID, id)
	p, _ := args.Get(0).(model.ProductReadModel)
	return p, args.Error(1)
}

func (m *ReadRepoMock) List(ctx context.Context, q repo.ProductReadQuery) ([]model.ProductReadModel, int64, error) {
	args := m.Called(ctx, q)
	items, _ := args.Get(0).([]model.ProductReadModel)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *ReadRepoMock) Stats(ctx context.Context, tenantID string, activeThreshold *decimal.Decimal) (repo.CatalogStats, error) {
	args := m.Called(ctx, tenantID, activeThreshold)
	s, _ := args.Get(0).(repo.CatalogStats)
	return s, args.Error(1)
}

var _ repo.ProductReadRepository = (*ReadRepoMock)(nil)

func TestGetProductByID_NotFound(t *testing.T) {
	r := new(ReadRepoMock)
	r.On("FindByID", mock.Anything, "tenant-a", "p-1").Return(nil, repo.ErrNotFound)
	uc := usecase.NewProductQueryUsecase(r, nil, zap.NewNop())

	_, err := uc.GetProductByID(context.Background(), "tenant-a", "p-1")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestGetProductByID_RequiresTenant(t *testing.T) {
	r := new(ReadRepoMock)
	uc := usecase.NewProductQueryUsecase(r, nil, zap.NewNop())

	_, err := uc.GetProductByID(context.Background(), "", "p-1")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	r.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetProductsPaged_DefaultsSortAndComputesPages(t *testing.T) {
	r := new(ReadRepoMock)
	cat := "electronics"
	q := repo.ProductReadQuery{TenantID: "tenant-a", Category: &cat, Sort: repo.SortCreated, Page: 2, PageSize: 10}
	r.On("List", mock.Anything, q).Return([]model.ProductReadModel{{ID: "p-11"}}, int64(21), nil)
	uc := usecase.NewProductQueryUsecase(r, nil, zap.NewNop())

	spaced := " electronics "
	out, err := uc.GetProductsPaged(context.Background(), usecase.GetProductsPagedInput{TenantID: "tenant-a", Category: &spaced, Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(21), out.TotalCount)
	assert.Equal(t, 3, out.TotalPages)
	assert.Equal(t, 2, out.Page)
	assert.Len(t, out.Items, 1)
	r.AssertExpectations(t)
}

func TestGetProductsPaged_EmptyResultIsNotNil(t *testing.T) {
	r := new(ReadRepoMock)
	r.On("List", mock.Anything, mock.Anything).Return(nil, int64(0), nil)
	uc := usecase.NewProductQueryUsecase(r, nil, zap.NewNop())

	out, err := uc.GetProductsPaged(context.Background(), usecase.GetProductsPagedInput{TenantID: "tenant-a", Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.NotNil(t, out.Items)
	assert.Equal(t, 0, out.TotalPages)
}

func TestGetProductsPaged_InvalidInput(t *testing.T) {
	r := new(ReadRepoMock)
	uc := usecase.NewProductQueryUsecase(r, nil, zap.NewNop())
	minP := decimal.NewFromInt(50)
	maxP := decimal.NewFromInt(10)

	_, err := uc.GetProductsPaged(context.Background(), usecase.GetProductsPagedInput{
		TenantID: "tenant-a",
		MinPrice: &minP,
		MaxPrice: &maxP,
		Sort:     "random",
		Page:     0,
		PageSize: usecase.MaxPageSize + 1,
	})
	require.Error(t, err)
	fields := apperr.FieldsOf(err)
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Field
	}
	assert.ElementsMatch(t, []string{"page", "page_size", "sort", "max_price"}, names)
	r.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestSearchProducts_BlankTermRejected(t *testing.T) {
	r := new(ReadRepoMock)
	uc := usecase.NewProductQueryUsecase(r, nil, zap.NewNop())

	_, err := uc.SearchProducts(context.Background(), usecase.SearchProductsInput{TenantID: "tenant-a", SearchTerm: "   ", Page: 1, PageSize: 20})
	require.Error(t, err)
	assert.Equal(t, "q", apperr.FieldsOf(err)[0].Field)
}

func TestSearchProducts_PassesTrimmedTerm(t *testing.T) {
	r := new(ReadRepoMock)
	r.On("List", mock.Anything, repo.ProductReadQuery{TenantID: "tenant-a", SearchTerm: "LAPTOP", Sort: repo.SortCreated, Page: 1, PageSize: 20}).
		Return([]model.ProductReadModel{}, int64(0), nil)
	uc := usecase.NewProductQueryUsecase(r, nil, zap.NewNop())

	_, err := uc.SearchProducts(context.Background(), usecase.SearchProductsInput{TenantID: "tenant-a", SearchTerm: " LAPTOP ", Page: 1, PageSize: 20})
	require.NoError(t, err)
	r.AssertExpectations(t)
}

func TestGetCatalogStats_PassesThreshold(t *testing.T) {
	r := new(ReadRepoMock)
	threshold := decimal.NewFromInt(15)
	r.On("Stats", mock.Anything, "tenant-a", &threshold).Return(repo.CatalogStats{TotalProducts: 5, ActiveProducts: 4}, nil)
	uc := usecase.NewProductQueryUsecase(r, &threshold, zap.NewNop())

	stats, err := uc.GetCatalogStats(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.ActiveProducts)
}

func TestGetCatalogStats_StoreFailureIsUnknown(t *testing.T) {
	r := new(ReadRepoMock)
	r.On("Stats", mock.Anything, "tenant-a", (*decimal.Decimal)(nil)).Return(nil, assert.AnError)
	uc := usecase.NewProductQueryUsecase(r, nil, zap.NewNop())

	_, err := uc.GetCatalogStats(context.Background(), "tenant-a")
	assert.Equal(t, apperr.KindUnknown, apperr.KindOf(err))
}
