package repository

import (
	"context"
	"time"

	"catalog/internal/domain/model"
)

type OutboxRepository interface {
	Add(ctx context.Context, ev model.OutboxEvent) error

	// 古い順に pending を返す
	ListPending(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	CountPending(ctx context.Context) (int64, error)
}
