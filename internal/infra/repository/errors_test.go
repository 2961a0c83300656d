package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"catalog/internal/apperr"
	repo "catalog/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestTranslate(t *testing.T) {
	plain := errors.New("syntax error")

	tests := []struct {
		name     string
		err      error
		wantIs   error
		wantKind apperr.Kind
	}{
		{name: "not found", err: gorm.ErrRecordNotFound, wantIs: repo.ErrNotFound},
		{name: "wrapped not found", err: fmt.Errorf("first: %w", gorm.ErrRecordNotFound), wantIs: repo.ErrNotFound},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, wantKind: apperr.KindTransient},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, wantKind: apperr.KindTransient},
		{name: "connection exception", err: &pgconn.PgError{Code: "08006"}, wantKind: apperr.KindTransient},
		{name: "deadline", err: context.DeadlineExceeded, wantKind: apperr.KindTransient},
		{name: "other pg error", err: &pgconn.PgError{Code: "42601"}, wantIs: nil, wantKind: apperr.KindUnknown},
		{name: "plain", err: plain, wantIs: plain, wantKind: apperr.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(tt.err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, got, tt.wantIs)
				return
			}
			assert.Equal(t, tt.wantKind, apperr.KindOf(got))
		})
	}

	assert.NoError(t, translate(nil))
}

func TestTranslate_KeepsAppErr(t *testing.T) {
	in := apperr.Conflict("already")
	assert.Same(t, in, translate(in))
}

func TestTranslateProductWrite_UniqueViolation(t *testing.T) {
	sku := &pgconn.PgError{Code: "23505", ConstraintName: productSkuConstraint}
	assert.ErrorIs(t, translateProductWrite(sku), repo.ErrDuplicateSku)

	other := &pgconn.PgError{Code: "23505", ConstraintName: "products_pkey"}
	assert.NotErrorIs(t, translateProductWrite(other), repo.ErrDuplicateSku)

	assert.Equal(t, apperr.KindTransient, apperr.KindOf(translateProductWrite(&pgconn.PgError{Code: "57P01"})))
}
