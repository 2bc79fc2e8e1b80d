package db

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/markdave123-py/docloader/internal/core"
	"github.com/markdave123-py/docloader/internal/models"
)

var _ core.DbClient = (*MemoryClient)(nil)

// MemoryClient keeps the load history in a map. Used when DATABASE_URL is unset.
type MemoryClient struct {
	mu      sync.RWMutex
	records map[string]models.LoadRecord
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{records: make(map[string]models.LoadRecord)}
}

func (m *MemoryClient) RecordLoad(_ context.Context, rec *models.LoadRecord) error {
	if rec == nil {
		return errors.New("nil load record")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.records[rec.ID]; ok {
		rec.CreatedAt = prev.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.records[rec.ID] = *rec
	return nil
}

// GetLoadRecord returns nil, nil when no record has the id.
func (m *MemoryClient) GetLoadRecord(_ context.Context, id string) (*models.LoadRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// ListLoadRecords returns the newest records first.
func (m *MemoryClient) ListLoadRecords(_ context.Context, limit int) ([]models.LoadRecord, error) {
	m.mu.RLock()
	out := make([]models.LoadRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if n := clampLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MemoryClient) Close() error { return nil }
