package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"catalog/internal/domain/model"
	repo "catalog/internal/repository"

	"github.com/shopspring/decimal"
)

// ReadStore は読み取りモデル。クエリ側と投影ハンドラの両方の口を持つ。
type ReadStore struct {
	mu   sync.RWMutex
	rows map[string]model.ProductReadModel
}

func NewReadStore() *ReadStore {
	return &ReadStore{rows: make(map[string]model.ProductReadModel)}
}

// ===== クエリ側 =====

func (s *ReadStore) FindByID(ctx context.Context, tenantID string, id string) (model.ProductReadModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok || row.TenantID != tenantID || row.IsDeleted {
		return model.ProductReadModel{}, repo.ErrNotFound
	}
	return row, nil
}

func (s *ReadStore) List(ctx context.Context, q repo.ProductReadQuery) ([]model.ProductReadModel, int64, error) {
	s.mu.RLock()
	matched := make([]model.ProductReadModel, 0)
	term := strings.ToLower(strings.TrimSpace(q.SearchTerm))
	for _, row := range s.rows {
		if row.TenantID != q.TenantID || row.IsDeleted {
			continue
		}
		if q.Category != nil && (row.Category == nil || *row.Category != *q.Category) {
			continue
		}
		if term != "" && !strings.Contains(row.SearchText, term) {
			continue
		}
		if q.MinPrice != nil && row.Price.LessThan(*q.MinPrice) {
			continue
		}
		if q.MaxPrice != nil && row.Price.GreaterThan(*q.MaxPrice) {
			continue
		}
		if q.AvailableOnly && !row.IsAvailable {
			continue
		}
		matched = append(matched, row)
	}
	s.mu.RUnlock()

	sortRows(matched, q.Sort)
	total := int64(len(matched))
	return page(matched, (q.Page-1)*q.PageSize, q.PageSize), total, nil
}

func sortRows(rows []model.ProductReadModel, by string) {
	less := func(a, b model.ProductReadModel) int {
		switch by {
		case repo.SortName:
			return strings.Compare(a.Name, b.Name)
		case repo.SortPrice:
			return a.Price.Cmp(b.Price)
		case repo.SortPriceDesc:
			return b.Price.Cmp(a.Price)
		case repo.SortUpdated:
			return b.UpdatedAt.Compare(a.UpdatedAt)
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if c := less(rows[i], rows[j]); c != 0 {
			return c < 0
		}
		return rows[i].ID < rows[j].ID
	})
}

func (s *ReadStore) Stats(ctx context.Context, tenantID string, activeThreshold *decimal.Decimal) (repo.CatalogStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		stats      repo.CatalogStats
		sum        decimal.Decimal
		categories = map[string]struct{}{}
		last       time.Time
	)
	for _, row := range s.rows {
		if row.TenantID != tenantID || row.IsDeleted {
			continue
		}
		if stats.TotalProducts == 0 || row.Price.LessThan(stats.MinPrice) {
			stats.MinPrice = row.Price
		}
		if stats.TotalProducts == 0 || row.Price.GreaterThan(stats.MaxPrice) {
			stats.MaxPrice = row.Price
		}
		stats.TotalProducts++
		sum = sum.Add(row.Price)

		if row.IsAvailable && (activeThreshold == nil || row.Price.GreaterThan(*activeThreshold)) {
			stats.ActiveProducts++
		}
		if row.Category != nil {
			categories[*row.Category] = struct{}{}
		}
		if row.UpdatedAt.After(last) {
			last = row.UpdatedAt
		}
	}

	if stats.TotalProducts > 0 {
		stats.AveragePrice = sum.Div(decimal.NewFromInt(stats.TotalProducts)).Round(2)
	}
	stats.TotalCategories = int64(len(categories))
	if !last.IsZero() {
		stats.LastUpdated = last.UTC()
	}
	return stats, nil
}

// ===== 投影側 =====

func (s *ReadStore) Get(ctx context.Context, tenantID string, id string) (model.ProductReadModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok || row.TenantID != tenantID {
		return model.ProductReadModel{}, repo.ErrNotFound
	}
	return row, nil
}

func (s *ReadStore) UpsertIfNewer(ctx context.Context, row model.ProductReadModel) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rows[row.ID]
	if ok && (cur.TenantID != row.TenantID || cur.Version >= row.Version) {
		return false, nil
	}
	s.rows[row.ID] = row
	return true, nil
}

func (s *ReadStore) ReplaceAtVersion(ctx context.Context, row model.ProductReadModel, expectedVersion int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rows[row.ID]
	if !ok || cur.TenantID != row.TenantID || cur.Version != expectedVersion {
		return false, nil
	}
	row.CreatedAt = cur.CreatedAt
	s.rows[row.ID] = row
	return true, nil
}
