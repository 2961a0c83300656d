package repository

import (
	"context"
	"time"

	"catalog/internal/domain/model"
	repo "catalog/internal/repository"

	"gorm.io/gorm"
)

type DeadLetterGormRepository struct {
	db *gorm.DB
}

func NewDeadLetterGormRepository(db *gorm.DB) *DeadLetterGormRepository {
	return &DeadLetterGormRepository{db: db}
}

func (r *DeadLetterGormRepository) Create(ctx context.Context, dl model.DeadLetter) error {
	if err := r.db.WithContext(ctx).Create(&dl).Error; err != nil {
		return translate(err)
	}
	return nil
}

func (r *DeadLetterGormRepository) FindByID(ctx context.Context, id int64) (model.DeadLetter, error) {
	var dl model.DeadLetter
	if err := r.db.WithContext(ctx).First(&dl, id).Error; err != nil {
		return model.DeadLetter{}, translate(err)
	}
	return dl, nil
}

func (r *DeadLetterGormRepository) List(ctx context.Context, filter repo.DeadLetterFilter) ([]model.DeadLetter, error) {
	q := r.db.WithContext(ctx).Model(&model.DeadLetter{})

	if filter.TenantID != nil {
		q = q.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.EventType != nil {
		q = q.Where("event_type = ?", *filter.EventType)
	}

	//新しい順
	q = q.Order("id DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var rows []model.DeadLetter
	if err := q.Limit(limit).Offset(filter.Offset).Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return rows, nil
}

// dead → requeued（同時に2回は通らない）
func (r *DeadLetterGormRepository) MarkRequeued(ctx context.Context, id int64, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&model.DeadLetter{}).
		Where("id = ? AND status = ?", id, model.DeadLetterStatusDead).
		Updates(map[string]interface{}{
			"status":     model.DeadLetterStatusRequeued,
			"updated_at": at,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrVersionConflict
	}
	return nil
}
