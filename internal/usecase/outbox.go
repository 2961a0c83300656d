package usecase

import (
	"context"
	"time"

	"catalog/internal/apperr"
	"catalog/internal/domain/event"
	"catalog/internal/domain/model"
	repo "catalog/internal/repository"

	"gorm.io/datatypes"
)

// 書き込みと同じTxで outbox に積む。
// 自己検証に落ちるイベントはバグなので Unknown。
func appendOutbox(ctx context.Context, outbox repo.OutboxRepository, id string, ev event.Event, now time.Time) error {
	if err := ev.Validate(); err != nil {
		return apperr.Unknown("invalid domain event", err)
	}
	payload, err := event.Encode(ev)
	if err != nil {
		return apperr.Unknown("encode event", err)
	}

	meta := ev.Meta()
	return outbox.Add(ctx, model.OutboxEvent{
		ID:          id,
		EventID:     meta.EventID,
		TenantID:    meta.TenantID,
		AggregateID: ev.AggregateID(),
		EventType:   string(ev.Type()),
		Version:     meta.Version,
		Payload:     datatypes.JSON(payload),
		Status:      model.OutboxStatusPending,
		CreatedAt:   now,
	})
}
