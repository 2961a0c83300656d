package repository

import (
	"context"
	"errors"

	"catalog/internal/apperr"
	repo "catalog/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Postgres のエラーコード
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgTooManyConnections   = "53300"
	pgAdminShutdown        = "57P01"
	pgCannotConnectNow     = "57P03"
)

// model.Product の uniqueIndex 名
const productSkuConstraint = "ux_products_tenant_sku"

// ドライバのエラーを repository の番兵/apperr に寄せる
func translate(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repo.ErrNotFound
	}
	if isTransient(err) {
		return apperr.Transient("database temporarily unavailable", err)
	}
	return err
}

// 商品の (tenant_id, sku) ユニーク違反だけ ErrDuplicateSku にする
func translateProductWrite(err error) error {
	if _, ok := apperr.As(err); !ok && isUniqueViolation(err) {
		return repo.ErrDuplicateSku
	}
	return translate(err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return pgErr.ConstraintName == "" || pgErr.ConstraintName == productSkuConstraint
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgTooManyConnections, pgAdminShutdown, pgCannotConnectNow:
			return true
		}
		// 08xxx: connection exception
		return len(pgErr.Code) == 5 && pgErr.Code[:2] == "08"
	}
	return pgconn.Timeout(err) || pgconn.SafeToRetry(err)
}
