package validator_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"catalog/internal/apperr"
	"catalog/internal/domain/event"
	"catalog/internal/domain/model"
	"catalog/internal/usecase"
	"catalog/internal/validator"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type SkuLookupMock struct{ mock.Mock }

func (m *SkuLookupMock) ExistsBySku(ctx context.Context, tenantID string, sku string) (bool, error) {
	args := m.Called(ctx, tenantID, sku)
	return args.Bool(0), args.Error(1)
}

func (m *SkuLookupMock) ExistingSkus(ctx context.Context, tenantID string, skus []string) ([]string, error) {
	args := m.Called(ctx, tenantID, skus)
	out, _ := args.Get(0).([]string)
	return out, args.Error(1)
}

func validInput(sku string) usecase.ProductInput {
	return usecase.ProductInput{
		Sku:           sku,
		Name:          "Laptop",
		Price:         decimal.RequireFromString("999.99"),
		StockQuantity: 3,
		IsAvailable:   true,
		Tags:          []string{"electronics"},
		ImageURLs:     []string{"https://cdn.example.com/a.png"},
	}
}

func fieldNames(fields []apperr.FieldError) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Field
	}
	return out
}

func findField(t *testing.T, fields []apperr.FieldError, name string) apperr.FieldError {
	t.Helper()
	for _, f := range fields {
		if f.Field == name {
			return f
		}
	}
	t.Fatalf("field %q not found in %v", name, fieldNames(fields))
	return apperr.FieldError{}
}

// =====================
// Create
// =====================

func TestValidateCreate_Valid(t *testing.T) {
	skus := new(SkuLookupMock)
	skus.On("ExistsBySku", mock.Anything, "tenant-a", "LAP-001").Return(false, nil)
	v := validator.NewProductValidator(skus)

	fields, err := v.ValidateCreate(context.Background(), usecase.CreateProductCommand{TenantID: "tenant-a", ProductInput: validInput("LAP-001")})
	require.NoError(t, err)
	assert.Empty(t, fields)
	skus.AssertExpectations(t)
}

func TestValidateCreate_StructuralErrors_SkipLookup(t *testing.T) {
	skus := new(SkuLookupMock)
	v := validator.NewProductValidator(skus)

	in := validInput("")
	in.Name = "  "
	in.Price = decimal.NewFromInt(-1)
	in.StockQuantity = -5

	fields, err := v.ValidateCreate(context.Background(), usecase.CreateProductCommand{TenantID: "", ProductInput: in})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tenant_id", "sku", "name", "price", "stock_quantity"}, fieldNames(fields))
	skus.AssertNotCalled(t, "ExistsBySku", mock.Anything, mock.Anything, mock.Anything)
}

func TestValidateCreate_DuplicateSku_IsConflict(t *testing.T) {
	skus := new(SkuLookupMock)
	skus.On("ExistsBySku", mock.Anything, "tenant-a", "LAP-001").Return(true, nil)
	v := validator.NewProductValidator(skus)

	fields, err := v.ValidateCreate(context.Background(), usecase.CreateProductCommand{TenantID: "tenant-a", ProductInput: validInput("LAP-001")})
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "sku", fields[0].Field)
	assert.Equal(t, apperr.CodeConflict, fields[0].Code)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(apperr.FromFields(fields)))
}

func TestValidateCreate_LookupError_IsReturned(t *testing.T) {
	skus := new(SkuLookupMock)
	skus.On("ExistsBySku", mock.Anything, "tenant-a", "LAP-001").Return(false, errors.New("db down"))
	v := validator.NewProductValidator(skus)

	_, err := v.ValidateCreate(context.Background(), usecase.CreateProductCommand{TenantID: "tenant-a", ProductInput: validInput("LAP-001")})
	assert.Error(t, err)
}

func TestValidateCreate_B2bPriceAbovePrice(t *testing.T) {
	v := validator.NewProductValidator(new(SkuLookupMock))

	in := validInput("LAP-001")
	in.B2bPrice = decimal.NewNullDecimal(decimal.RequireFromString("1000.00"))

	fields, err := v.ValidateCreate(context.Background(), usecase.CreateProductCommand{TenantID: "tenant-a", ProductInput: in})
	require.NoError(t, err)
	f := findField(t, fields, "b2b_price")
	assert.Equal(t, apperr.CodeOutOfRange, f.Code)
}

func TestValidateCreate_PriceFitsStoredPrecision(t *testing.T) {
	tests := []struct {
		name  string
		price string
		b2b   string
		field string
		code  string
	}{
		{name: "too large", price: "100000000000", field: "price", code: apperr.CodeOutOfRange},
		{name: "three decimals", price: "10.555", field: "price", code: apperr.CodeInvalid},
		{name: "b2b three decimals", price: "10.00", b2b: "9.999", field: "b2b_price", code: apperr.CodeInvalid},
		{name: "max price", price: "9999999999.99"},
		{name: "trailing zeros", price: "10.500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			skus := new(SkuLookupMock)
			skus.On("ExistsBySku", mock.Anything, "tenant-a", "LAP-001").Return(false, nil).Maybe()
			v := validator.NewProductValidator(skus)

			in := validInput("LAP-001")
			in.Price = decimal.RequireFromString(tt.price)
			if tt.b2b != "" {
				in.B2bPrice = decimal.NewNullDecimal(decimal.RequireFromString(tt.b2b))
			}

			fields, err := v.ValidateCreate(context.Background(), usecase.CreateProductCommand{TenantID: "tenant-a", ProductInput: in})
			require.NoError(t, err)
			if tt.field == "" {
				assert.Empty(t, fields)
				return
			}
			f := findField(t, fields, tt.field)
			assert.Equal(t, tt.code, f.Code)
		})
	}
}

func TestValidateUpdate_PricePrecision(t *testing.T) {
	v := validator.NewProductValidator(new(SkuLookupMock))

	fields, err := v.ValidateUpdate(context.Background(), usecase.UpdateProductCommand{
		TenantID:  "tenant-a",
		ProductID: "p-1",
		Changes: event.ProductChanges{
			Price:    event.Some(decimal.RequireFromString("1.001")),
			B2bPrice: event.Some(decimal.NewNullDecimal(decimal.RequireFromString("1e11"))),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, apperr.CodeInvalid, findField(t, fields, "price").Code)
	assert.Equal(t, apperr.CodeOutOfRange, findField(t, fields, "b2b_price").Code)
}

func TestValidateCreate_Limits(t *testing.T) {
	v := validator.NewProductValidator(new(SkuLookupMock))

	in := validInput(strings.Repeat("S", validator.MaxSkuLength+1))
	in.Name = strings.Repeat("n", validator.MaxNameLength+1)
	desc := strings.Repeat("d", validator.MaxDescriptionLength+1)
	in.Description = &desc
	cat := strings.Repeat("c", validator.MaxCategoryLength+1)
	in.Category = &cat
	in.Tags = make([]string, validator.MaxTags+1)
	in.ImageURLs = make([]string, validator.MaxImageURLs+1)

	fields, err := v.ValidateCreate(context.Background(), usecase.CreateProductCommand{TenantID: "tenant-a", ProductInput: in})
	require.NoError(t, err)

	assert.Equal(t, apperr.CodeTooLong, findField(t, fields, "sku").Code)
	assert.Equal(t, apperr.CodeTooLong, findField(t, fields, "name").Code)
	assert.Equal(t, apperr.CodeTooLong, findField(t, fields, "description").Code)
	assert.Equal(t, apperr.CodeTooLong, findField(t, fields, "category").Code)
	assert.Equal(t, apperr.CodeTooMany, findField(t, fields, "tags").Code)
	assert.Equal(t, apperr.CodeTooMany, findField(t, fields, "image_urls").Code)
}

func TestValidateCreate_NameLengthCountsRunes(t *testing.T) {
	skus := new(SkuLookupMock)
	skus.On("ExistsBySku", mock.Anything, "tenant-a", "LAP-001").Return(false, nil)
	v := validator.NewProductValidator(skus)

	in := validInput("LAP-001")
	in.Name = strings.Repeat("商", validator.MaxNameLength)

	fields, err := v.ValidateCreate(context.Background(), usecase.CreateProductCommand{TenantID: "tenant-a", ProductInput: in})
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestValidateCreate_TagsAndImageURLs(t *testing.T) {
	v := validator.NewProductValidator(new(SkuLookupMock))

	in := validInput("LAP-001")
	in.Tags = []string{"ok", " ", strings.Repeat("t", validator.MaxTagLength+1)}
	in.ImageURLs = []string{"https://cdn.example.com/ok.png", "/relative.png", "ftp://example.com/x.png"}

	fields, err := v.ValidateCreate(context.Background(), usecase.CreateProductCommand{TenantID: "tenant-a", ProductInput: in})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tags[1]", "tags[2]", "image_urls[1]", "image_urls[2]"}, fieldNames(fields))
}

// =====================
// Update / Delete
// =====================

func TestValidateUpdate_EmptyChanges(t *testing.T) {
	v := validator.NewProductValidator(new(SkuLookupMock))

	fields, err := v.ValidateUpdate(context.Background(), usecase.UpdateProductCommand{TenantID: "tenant-a", ProductID: "p-1"})
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "changes", fields[0].Field)
}

func TestValidateUpdate_OnlySuppliedFieldsChecked(t *testing.T) {
	v := validator.NewProductValidator(new(SkuLookupMock))

	fields, err := v.ValidateUpdate(context.Background(), usecase.UpdateProductCommand{
		TenantID:  "tenant-a",
		ProductID: "p-1",
		Changes:   event.ProductChanges{Price: event.Some(decimal.RequireFromString("19.99"))},
	})
	require.NoError(t, err)
	assert.Empty(t, fields)

	fields, err = v.ValidateUpdate(context.Background(), usecase.UpdateProductCommand{
		TenantID:  "tenant-a",
		ProductID: "p-1",
		Changes: event.ProductChanges{
			Name:          event.Some(""),
			StockQuantity: event.Some(int64(-1)),
		},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"name", "stock_quantity"}, fieldNames(fields))
}

func TestValidateDelete_RequiresIDs(t *testing.T) {
	v := validator.NewProductValidator(new(SkuLookupMock))

	fields, err := v.ValidateDelete(context.Background(), usecase.DeleteProductCommand{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tenant_id", "product_id"}, fieldNames(fields))
}

func TestValidateProduct_MergedAggregate(t *testing.T) {
	v := validator.NewProductValidator(new(SkuLookupMock))

	// 価格だけ下げて B2B 価格を超える
	fields := v.ValidateProduct(model.Product{
		Sku:      "LAP-001",
		Name:     "Laptop",
		Price:    decimal.NewFromInt(50),
		B2bPrice: decimal.NewNullDecimal(decimal.NewFromInt(80)),
	})
	require.Len(t, fields, 1)
	assert.Equal(t, "b2b_price", fields[0].Field)
}

// =====================
// BulkImport
// =====================

func TestValidateBulkImport_Empty(t *testing.T) {
	v := validator.NewProductValidator(new(SkuLookupMock))

	fields, err := v.ValidateBulkImport(context.Background(), usecase.BulkImportProductsCommand{TenantID: "tenant-a"})
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, apperr.CodeRequired, fields[0].Code)
}

func TestValidateBulkImport_TooMany_SkipsRows(t *testing.T) {
	skus := new(SkuLookupMock)
	v := validator.NewProductValidator(skus)

	items := make([]usecase.ProductInput, usecase.MaxBulkImportItems+1)
	fields, err := v.ValidateBulkImport(context.Background(), usecase.BulkImportProductsCommand{TenantID: "tenant-a", Items: items})
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "items", fields[0].Field)
	assert.Equal(t, apperr.CodeTooMany, fields[0].Code)
	skus.AssertNotCalled(t, "ExistingSkus", mock.Anything, mock.Anything, mock.Anything)
}

func TestValidateBulkImport_DuplicateInBatch(t *testing.T) {
	skus := new(SkuLookupMock)
	v := validator.NewProductValidator(skus)

	fields, err := v.ValidateBulkImport(context.Background(), usecase.BulkImportProductsCommand{
		TenantID: "tenant-a",
		Items:    []usecase.ProductInput{validInput("A-1"), validInput("B-1"), validInput("A-1")},
	})
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "items[2].sku", fields[0].Field)
	assert.Equal(t, apperr.CodeDuplicate, fields[0].Code)
	skus.AssertNotCalled(t, "ExistingSkus", mock.Anything, mock.Anything, mock.Anything)
}

func TestValidateBulkImport_RowErrorsArePrefixed(t *testing.T) {
	v := validator.NewProductValidator(new(SkuLookupMock))

	bad := validInput("B-1")
	bad.Price = decimal.NewFromInt(-3)
	fields, err := v.ValidateBulkImport(context.Background(), usecase.BulkImportProductsCommand{
		TenantID: "tenant-a",
		Items:    []usecase.ProductInput{validInput("A-1"), bad},
	})
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "items[1].price", fields[0].Field)
}

func TestValidateBulkImport_ExistingSkus_AreConflicts(t *testing.T) {
	skus := new(SkuLookupMock)
	skus.On("ExistingSkus", mock.Anything, "tenant-a", []string{"A-1", "B-1"}).Return([]string{"B-1"}, nil)
	v := validator.NewProductValidator(skus)

	fields, err := v.ValidateBulkImport(context.Background(), usecase.BulkImportProductsCommand{
		TenantID: "tenant-a",
		Items:    []usecase.ProductInput{validInput("A-1"), validInput("B-1")},
	})
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "items[1].sku", fields[0].Field)
	assert.Equal(t, apperr.CodeConflict, fields[0].Code)
}
