package repository

import (
	"context"
	"time"

	"catalog/internal/domain/model"

	"gorm.io/gorm"
)

type OutboxGormRepository struct {
	db *gorm.DB
}

func NewOutboxGormRepository(db *gorm.DB) *OutboxGormRepository {
	return &OutboxGormRepository{db: db}
}

func (r *OutboxGormRepository) Add(ctx context.Context, ev model.OutboxEvent) error {
	if err := r.db.WithContext(ctx).Create(&ev).Error; err != nil {
		return translate(err)
	}
	return nil
}

// 古い順
func (r *OutboxGormRepository) ListPending(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var rows []model.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("created_at ASC").Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	return rows, nil
}

// すでに published なら何もしない
func (r *OutboxGormRepository) MarkPublished(ctx context.Context, id string, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("id = ? AND status = ?", id, model.OutboxStatusPending).
		Updates(map[string]interface{}{
			"status":       model.OutboxStatusPublished,
			"published_at": at,
		}).Error
	return translate(err)
}

func (r *OutboxGormRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("status = ?", model.OutboxStatusPending).
		Count(&n).Error
	if err != nil {
		return 0, translate(err)
	}
	return n, nil
}
