package store

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store used when no database is configured.
type Memory struct {
	mu      sync.RWMutex
	records map[string]map[string]*memoryRecord
	seq     uint64
	now     func() time.Time
}

type memoryRecord struct {
	Record
	seq uint64
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]map[string]*memoryRecord),
		now:     time.Now,
	}
}

func (m *Memory) Create(ctx context.Context, kind string, data map[string]any, createdBy string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.insertLocked(kind, uuid.NewString(), data, createdBy).clone(), nil
}

func (m *Memory) Ensure(ctx context.Context, kind, id string, data map[string]any, createdBy string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[kind][id]; ok {
		return rec.clone(), nil
	}
	return m.insertLocked(kind, id, data, createdBy).clone(), nil
}

func (m *Memory) insertLocked(kind, id string, data map[string]any, createdBy string) *memoryRecord {
	now := m.now().UTC()
	m.seq++
	rec := &memoryRecord{
		Record: Record{
			ID:        id,
			Kind:      kind,
			Data:      sanitize(data),
			CreatedBy: createdBy,
			CreatedAt: now,
			UpdatedAt: now,
		},
		seq: m.seq,
	}

	if m.records[kind] == nil {
		m.records[kind] = make(map[string]*memoryRecord)
	}
	m.records[kind][id] = rec
	return rec
}

func (m *Memory) Get(ctx context.Context, kind, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[kind][id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.clone(), nil
}

func (m *Memory) List(ctx context.Context, kind string, limit, offset int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*memoryRecord, 0, len(m.records[kind]))
	for _, rec := range m.records[kind] {
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq > all[j].seq })

	if offset >= len(all) {
		return []*Record{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}

	out := make([]*Record, 0, len(all))
	for _, rec := range all {
		out = append(out, rec.clone())
	}
	return out, nil
}

func (m *Memory) Update(ctx context.Context, kind, id string, patch map[string]any) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[kind][id]
	if !ok {
		return nil, ErrNotFound
	}
	maps.Copy(rec.Data, sanitize(patch))
	rec.UpdatedAt = m.now().UTC()
	return rec.clone(), nil
}

func (m *Memory) Modify(ctx context.Context, kind, id string, fn func(data map[string]any) error) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[kind][id]
	if !ok {
		return nil, ErrNotFound
	}
	data := maps.Clone(rec.Data)
	if err := fn(data); err != nil {
		return nil, err
	}
	rec.Data = sanitize(data)
	rec.UpdatedAt = m.now().UTC()
	return rec.clone(), nil
}

func (m *Memory) Delete(ctx context.Context, kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[kind][id]; !ok {
		return ErrNotFound
	}
	delete(m.records[kind], id)
	return nil
}

func (r *memoryRecord) clone() *Record {
	out := r.Record
	out.Data = maps.Clone(r.Data)
	return &out
}
