package repository

import (
	"context"

	repo "catalog/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	products    repo.ProductRepository
	outbox      repo.OutboxRepository
	deadLetters repo.DeadLetterRepository
	auditLogs   repo.AuditLogRepository
}

func (r *txReposGorm) Products() repo.ProductRepository       { return r.products }
func (r *txReposGorm) Outbox() repo.OutboxRepository           { return r.outbox }
func (r *txReposGorm) DeadLetters() repo.DeadLetterRepository { return r.deadLetters }
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository     { return r.auditLogs }

// 書き込みストアのTx
type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	err := tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		r := &txReposGorm{
			products:    NewProductGormRepository(tx),
			outbox:      NewOutboxGormRepository(tx),
			deadLetters: NewDeadLetterGormRepository(tx),
			auditLogs:   NewAuditLogGormRepository(tx),
		}
		return fn(r)
	})
	// BEGIN/COMMIT 自体の失敗
	return translateProductWrite(err)
}
