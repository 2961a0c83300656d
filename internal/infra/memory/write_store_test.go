package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"catalog/internal/domain/model"
	"catalog/internal/infra/memory"
	repo "catalog/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func product(id, tenantID, sku string) model.Product {
	return model.Product{
		ID:        id,
		TenantID:  tenantID,
		Sku:       sku,
		Name:      "Item " + sku,
		Price:     decimal.NewFromInt(10),
		IsActive:  true,
		Version:   1,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestWriteStore_RollbackDiscardsEverything(t *testing.T) {
	ctx := context.Background()
	s := memory.NewWriteStore()

	err := s.WithinTx(ctx, func(r repo.TxRepos) error {
		if _, err := r.Products().Create(ctx, product("p-1", "tenant-a", "A-1")); err != nil {
			return err
		}
		if err := r.Outbox().Add(ctx, model.OutboxEvent{ID: "o-1", Status: model.OutboxStatusPending}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	_, err = s.Products().FindByID(ctx, "tenant-a", "p-1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.Empty(t, s.Outbox().All())
}

func TestWriteStore_DuplicateSkuPerTenant(t *testing.T) {
	ctx := context.Background()
	s := memory.NewWriteStore()

	err := s.WithinTx(ctx, func(r repo.TxRepos) error {
		if _, err := r.Products().Create(ctx, product("p-1", "tenant-a", "A-1")); err != nil {
			return err
		}
		if _, err := r.Products().Create(ctx, product("p-2", "tenant-b", "A-1")); err != nil {
			return err
		}
		_, err := r.Products().Create(ctx, product("p-3", "tenant-a", "A-1"))
		return err
	})
	assert.ErrorIs(t, err, repo.ErrDuplicateSku)
}

func TestWriteStore_OptimisticUpdate(t *testing.T) {
	ctx := context.Background()
	s := memory.NewWriteStore()
	require.NoError(t, s.WithinTx(ctx, func(r repo.TxRepos) error {
		_, err := r.Products().Create(ctx, product("p-1", "tenant-a", "A-1"))
		return err
	}))

	next := product("p-1", "tenant-a", "A-1")
	next.Name = "Renamed"
	next.Version = 2

	require.NoError(t, s.WithinTx(ctx, func(r repo.TxRepos) error {
		return r.Products().Update(ctx, next, 1)
	}))

	// 古い version での更新は負ける
	err := s.WithinTx(ctx, func(r repo.TxRepos) error {
		return r.Products().Update(ctx, next, 1)
	})
	assert.ErrorIs(t, err, repo.ErrVersionConflict)

	require.NoError(t, s.WithinTx(ctx, func(r repo.TxRepos) error {
		return r.Products().SoftDelete(ctx, "tenant-a", "p-1", 2, at)
	}))
	ps, err := s.Products().FindByIDs(ctx, "tenant-a", []string{"p-1"})
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, int64(3), ps[0].Version)
	assert.False(t, ps[0].IsActive)
	assert.True(t, ps[0].DeletedAt.Valid)
}

func TestWriteStore_OutboxLifecycle(t *testing.T) {
	ctx := context.Background()
	s := memory.NewWriteStore()
	for _, id := range []string{"o-1", "o-2"} {
		require.NoError(t, s.Outbox().Add(ctx, model.OutboxEvent{ID: id, Status: model.OutboxStatusPending}))
	}

	require.NoError(t, s.Outbox().MarkPublished(ctx, "o-1", at))

	pending, err := s.Outbox().ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "o-2", pending[0].ID)

	n, err := s.Outbox().CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// 配送済みは捨てる。二度目の MarkPublished は何もしない
	rows := s.Outbox().All()
	require.Len(t, rows, 1)
	assert.Equal(t, "o-2", rows[0].ID)
	require.NoError(t, s.Outbox().MarkPublished(ctx, "o-1", at))
	assert.Len(t, s.Outbox().All(), 1)
}

func TestWriteStore_DeadLetterRequeueOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := memory.NewWriteStore()
	require.NoError(t, s.DeadLetters().Create(ctx, model.DeadLetter{Status: model.DeadLetterStatusDead}))

	markRequeued := func() error {
		return s.WithinTx(ctx, func(r repo.TxRepos) error {
			return r.DeadLetters().MarkRequeued(ctx, 1, at)
		})
	}
	require.NoError(t, markRequeued())
	assert.ErrorIs(t, markRequeued(), repo.ErrVersionConflict)

	dl, err := s.DeadLetters().FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.DeadLetterStatusRequeued, dl.Status)
}
