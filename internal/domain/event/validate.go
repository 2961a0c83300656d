package event

import (
	"catalog/internal/apperr"
)

func (m Metadata) validate() []apperr.FieldError {
	var fields []apperr.FieldError
	if m.EventID == "" {
		fields = append(fields, apperr.FieldError{Field: "event_id", Code: apperr.CodeRequired, Message: "event id required"})
	}
	if m.TenantID == "" {
		fields = append(fields, apperr.FieldError{Field: "tenant_id", Code: apperr.CodeRequired, Message: "tenant id required"})
	}
	if m.Version < 1 {
		fields = append(fields, apperr.FieldError{Field: "version", Code: apperr.CodeOutOfRange, Message: "version must be >= 1"})
	}
	return fields
}

func (e ProductCreated) Validate() error {
	fields := e.Metadata.validate()
	if e.ProductID == "" {
		fields = append(fields, apperr.FieldError{Field: "product_id", Code: apperr.CodeRequired, Message: "product id required"})
	}
	if e.Sku == "" {
		fields = append(fields, apperr.FieldError{Field: "sku", Code: apperr.CodeRequired, Message: "sku required"})
	}
	if e.Name == "" {
		fields = append(fields, apperr.FieldError{Field: "name", Code: apperr.CodeRequired, Message: "name required"})
	}
	if e.Price.IsNegative() {
		fields = append(fields, apperr.FieldError{Field: "price", Code: apperr.CodeOutOfRange, Message: "price must be >= 0"})
	}
	return invalidEvent(e.Type(), fields)
}

func (e ProductUpdated) Validate() error {
	fields := e.Metadata.validate()
	if e.ProductID == "" {
		fields = append(fields, apperr.FieldError{Field: "product_id", Code: apperr.CodeRequired, Message: "product id required"})
	}
	if e.Changes.IsEmpty() {
		fields = append(fields, apperr.FieldError{Field: "changes", Code: apperr.CodeRequired, Message: "changes must not be empty"})
	}
	return invalidEvent(e.Type(), fields)
}

func (e ProductDeleted) Validate() error {
	fields := e.Metadata.validate()
	if e.ProductID == "" {
		fields = append(fields, apperr.FieldError{Field: "product_id", Code: apperr.CodeRequired, Message: "product id required"})
	}
	return invalidEvent(e.Type(), fields)
}

func (e ProductsBulkImported) Validate() error {
	fields := e.Metadata.validate()
	if len(e.ProductIDs) == 0 {
		fields = append(fields, apperr.FieldError{Field: "product_ids", Code: apperr.CodeRequired, Message: "product ids required"})
	}
	if e.TotalCount != len(e.ProductIDs) {
		fields = append(fields, apperr.FieldError{Field: "total_count", Code: apperr.CodeInvalid, Message: "total count must equal number of product ids"})
	}
	return invalidEvent(e.Type(), fields)
}

func invalidEvent(t Type, fields []apperr.FieldError) error {
	if len(fields) == 0 {
		return nil
	}
	return apperr.Validation("invalid "+string(t)+" event", fields...)
}
