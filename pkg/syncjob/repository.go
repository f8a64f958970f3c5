package syncjob

import (
	"context"
	"sync"

	"github.com/ajitpratap0/syncflow/pkg/errors"
)

// Repository persists syncs and runs
type Repository interface {
	SaveSync(ctx context.Context, s *Sync) error
	GetSync(ctx context.Context, id string) (*Sync, error)
	ListSyncs(ctx context.Context) ([]*Sync, error)

	SaveRun(ctx context.Context, r *SyncRun) error
	GetRun(ctx context.Context, id string) (*SyncRun, error)
	ListRuns(ctx context.Context, syncID string) ([]*SyncRun, error)
}

// MemoryRepository keeps entities in process, in insertion order
type MemoryRepository struct {
	mu        sync.RWMutex
	syncs     map[string]*Sync
	syncOrder []string
	runs      map[string]*SyncRun
	runOrder  []string
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		syncs: make(map[string]*Sync),
		runs:  make(map[string]*SyncRun),
	}
}

// SaveSync implements Repository
func (m *MemoryRepository) SaveSync(ctx context.Context, s *Sync) error {
	if s.ID == "" {
		return errors.New(errors.ErrorTypeValidation, "sync id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.syncs[s.ID]; !ok {
		m.syncOrder = append(m.syncOrder, s.ID)
	}
	m.syncs[s.ID] = s
	return nil
}

// GetSync implements Repository
func (m *MemoryRepository) GetSync(ctx context.Context, id string) (*Sync, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.syncs[id]
	if !ok {
		return nil, errors.New(errors.ErrorTypeNotFound, "sync not found").WithDetail("sync_id", id)
	}
	return s, nil
}

// ListSyncs implements Repository
func (m *MemoryRepository) ListSyncs(ctx context.Context) ([]*Sync, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Sync, 0, len(m.syncOrder))
	for _, id := range m.syncOrder {
		out = append(out, m.syncs[id])
	}
	return out, nil
}

// SaveRun implements Repository
func (m *MemoryRepository) SaveRun(ctx context.Context, r *SyncRun) error {
	if r.ID == "" {
		return errors.New(errors.ErrorTypeValidation, "sync run id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[r.ID]; !ok {
		m.runOrder = append(m.runOrder, r.ID)
	}
	m.runs[r.ID] = r
	return nil
}

// GetRun implements Repository
func (m *MemoryRepository) GetRun(ctx context.Context, id string) (*SyncRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, errors.New(errors.ErrorTypeNotFound, "sync run not found").WithDetail("sync_run_id", id)
	}
	return r, nil
}

// ListRuns implements Repository
func (m *MemoryRepository) ListRuns(ctx context.Context, syncID string) ([]*SyncRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*SyncRun
	for _, id := range m.runOrder {
		if r := m.runs[id]; r.SyncID == syncID {
			out = append(out, r)
		}
	}
	return out, nil
}
