package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"catalog/internal/apperr"
	"catalog/internal/domain/model"
	repo "catalog/internal/repository"

	"go.uber.org/zap"
)

// デッドレターの一覧と再投入（オペレーター用）
type DeadLetterUsecase struct {
	tx       repo.TransactionManager
	idGen    IDGenerator
	clock    Clock
	notifier OutboxNotifier
	logger   *zap.Logger
}

func NewDeadLetterUsecase(tx repo.TransactionManager, idGen IDGenerator, clock Clock, notifier OutboxNotifier, logger *zap.Logger) *DeadLetterUsecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeadLetterUsecase{tx: tx, idGen: idGen, clock: clock, notifier: notifier, logger: logger.Named("dead_letter")}
}

type ListDeadLettersInput struct {
	TenantID  string
	Status    string
	EventType string
	Page      int
	Limit     int
}

func (u *DeadLetterUsecase) List(ctx context.Context, in ListDeadLettersInput) ([]model.DeadLetter, error) {
	// page/limitの最低限チェック
	if in.Page < 1 {
		return nil, apperr.Validation("invalid page",
			apperr.FieldError{Field: "page", Code: apperr.CodeOutOfRange, Message: "invalid page"})
	}
	if in.Limit < 1 || in.Limit > MaxPageSize {
		return nil, apperr.Validation("invalid limit",
			apperr.FieldError{Field: "limit", Code: apperr.CodeOutOfRange, Message: "invalid limit"})
	}

	f := repo.DeadLetterFilter{Limit: in.Limit, Offset: (in.Page - 1) * in.Limit}
	if v := strings.TrimSpace(in.TenantID); v != "" {
		f.TenantID = &v
	}
	if v := strings.TrimSpace(in.EventType); v != "" {
		f.EventType = &v
	}
	switch status := model.DeadLetterStatus(strings.TrimSpace(in.Status)); status {
	case "":
	case model.DeadLetterStatusDead, model.DeadLetterStatusRequeued:
		f.Status = &status
	default:
		return nil, apperr.Validation("invalid status",
			apperr.FieldError{Field: "status", Code: apperr.CodeInvalid, Message: "invalid status"})
	}

	var out []model.DeadLetter
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		items, err := r.DeadLetters().List(ctx, f)
		if err != nil {
			return err
		}
		out = items
		return nil
	})
	if err != nil {
		return nil, u.storeError(err)
	}
	if out == nil {
		out = []model.DeadLetter{}
	}
	return out, nil
}

type ListAuditLogsInput struct {
	ResourceID string
	Page       int
	Limit      int
}

// 再投入の監査ログ（新しい順）
func (u *DeadLetterUsecase) ListAuditLogs(ctx context.Context, in ListAuditLogsInput) ([]model.AuditLog, error) {
	if in.Page < 1 || in.Limit < 1 || in.Limit > MaxPageSize {
		return nil, apperr.Validation("invalid paging",
			apperr.FieldError{Field: "limit", Code: apperr.CodeOutOfRange, Message: "invalid page or limit"})
	}

	resourceType := model.AuditResourceDeadLetter
	f := repo.AuditLogFilter{ResourceType: &resourceType, Limit: in.Limit, Offset: (in.Page - 1) * in.Limit}
	if v := strings.TrimSpace(in.ResourceID); v != "" {
		f.ResourceID = &v
	}

	var out []model.AuditLog
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		items, err := r.AuditLogs().List(ctx, f)
		out = items
		return err
	})
	if err != nil {
		return nil, u.storeError(err)
	}
	if out == nil {
		out = []model.AuditLog{}
	}
	return out, nil
}

// 再投入。outbox に同じイベントを積み直し、全ハンドラに配り直す（ハンドラは冪等）。
// 状態変更、outbox、監査ログは1つのTx。
func (u *DeadLetterUsecase) Requeue(ctx context.Context, actorID string, id int64) (model.DeadLetter, error) {
	if strings.TrimSpace(actorID) == "" {
		return model.DeadLetter{}, apperr.Validation("actor required",
			apperr.FieldError{Field: "actor_id", Code: apperr.CodeRequired, Message: "actor required"})
	}
	if id <= 0 {
		return model.DeadLetter{}, apperr.Validation("invalid id",
			apperr.FieldError{Field: "id", Code: apperr.CodeInvalid, Message: "invalid id"})
	}

	now := u.clock.Now()
	outboxID := u.idGen.NewID()
	var dl model.DeadLetter

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cur, err := r.DeadLetters().FindByID(ctx, id)
		if err != nil {
			return err
		}
		// 二重再投入ガード
		if cur.Status != model.DeadLetterStatusDead {
			return apperr.Conflict("dead letter already requeued",
				apperr.FieldError{Field: "status", Code: apperr.CodeConflict, Message: "dead letter is " + string(cur.Status)})
		}

		if err := r.DeadLetters().MarkRequeued(ctx, id, now); err != nil {
			return err
		}

		if err := r.Outbox().Add(ctx, model.OutboxEvent{
			ID:          outboxID,
			EventID:     cur.EventID,
			TenantID:    cur.TenantID,
			AggregateID: cur.AggregateID,
			EventType:   cur.EventType,
			Version:     cur.Version,
			Payload:     cur.Payload,
			Status:      model.OutboxStatusPending,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		// ★監査ログ（REQUEUE_DEAD_LETTER）
		before, _ := json.Marshal(map[string]any{"status": cur.Status, "attempts": cur.Attempts, "handler": cur.Handler})
		after, _ := json.Marshal(map[string]any{"status": model.DeadLetterStatusRequeued, "outbox_id": outboxID})
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorID:      actorID,
			Action:       model.AuditActionRequeueDeadLetter,
			ResourceType: model.AuditResourceDeadLetter,
			ResourceID:   strconv.FormatInt(id, 10),
			BeforeJSON:   string(before),
			AfterJSON:    string(after),
			CreatedAt:    now,
		}); err != nil {
			return err
		}

		dl = cur
		dl.Status = model.DeadLetterStatusRequeued
		dl.UpdatedAt = now
		return nil
	})
	if err != nil {
		return model.DeadLetter{}, u.storeError(err)
	}

	if u.notifier != nil {
		u.notifier.Notify()
	}
	u.logger.Info("dead letter requeued",
		zap.Int64("dead_letter_id", id),
		zap.String("event_id", dl.EventID),
		zap.String("handler", dl.Handler),
		zap.String("actor_id", actorID),
	)
	return dl, nil
}

func (u *DeadLetterUsecase) storeError(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.NotFound("dead letter not found")
	}
	if errors.Is(err, repo.ErrVersionConflict) {
		return apperr.Conflict("dead letter already requeued")
	}
	u.logger.Error("dead letter store failed", zap.Error(err))
	return apperr.Unknown("db error", err)
}
