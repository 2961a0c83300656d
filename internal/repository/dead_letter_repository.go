package repository

import (
	"context"
	"time"

	"catalog/internal/domain/model"
)

// デッドレターの絞り込み条件。
type DeadLetterFilter struct {
	TenantID  *string
	Status    *model.DeadLetterStatus
	EventType *string
	Limit     int
	Offset    int
}

type DeadLetterRepository interface {
	Create(ctx context.Context, dl model.DeadLetter) error
	FindByID(ctx context.Context, id int64) (model.DeadLetter, error)
	List(ctx context.Context, filter DeadLetterFilter) ([]model.DeadLetter, error)

	// dead のときだけ requeued にする。dead でなければ ErrVersionConflict
	MarkRequeued(ctx context.Context, id int64, at time.Time) error
}
