package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mistakeknot/tapcall/internal/core"
)

// ErrDuplicateID is returned when a caller hands Insert a record that already
// carries an id. Ids are allocated by the store only.
var ErrDuplicateID = errors.New("request id already assigned")

// Filter selects records in List. Zero fields match everything.
type Filter struct {
	Status   core.Status
	TenantID string
	Match    func(core.Request) bool
}

func (f Filter) matches(r core.Request) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.TenantID != "" && r.TenantID != f.TenantID {
		return false
	}
	if f.Match != nil && !f.Match(r) {
		return false
	}
	return true
}

// Mutator applies a transition to a record in place. Returning an error
// aborts the update and leaves the record untouched.
type Mutator func(*core.Request) error

type Store interface {
	Insert(ctx context.Context, r core.Request) (core.Request, error)
	Get(ctx context.Context, id int64) (core.Request, error)
	// List returns matching records oldest first.
	List(ctx context.Context, f Filter) ([]core.Request, error)
	Update(ctx context.Context, id int64, fn Mutator) (core.Request, error)
	Count(ctx context.Context) (int, error)
}

// InMemory keeps every request for the life of the process.
type InMemory struct {
	mu     sync.Mutex
	nextID int64
	items  []core.Request
	index  map[int64]int
}

func NewInMemory() *InMemory {
	return &InMemory{
		nextID: 1,
		index:  make(map[int64]int),
	}
}

func (m *InMemory) Insert(_ context.Context, r core.Request) (core.Request, error) {
	if r.ID != 0 {
		return core.Request{}, fmt.Errorf("insert %d: %w", r.ID, ErrDuplicateID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = m.nextID
	m.nextID++
	m.index[r.ID] = len(m.items)
	m.items = append(m.items, r)
	return clone(r), nil
}

func (m *InMemory) Get(_ context.Context, id int64) (core.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[id]
	if !ok {
		return core.Request{}, core.ErrNotFound
	}
	return clone(m.items[i]), nil
}

func (m *InMemory) List(_ context.Context, f Filter) ([]core.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Request, 0)
	for _, r := range m.items {
		if f.matches(r) {
			out = append(out, clone(r))
		}
	}
	return out, nil
}

func (m *InMemory) Update(_ context.Context, id int64, fn Mutator) (core.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[id]
	if !ok {
		return core.Request{}, core.ErrNotFound
	}
	// mutate a copy so a failing mutator leaves the stored record intact
	r := clone(m.items[i])
	if err := fn(&r); err != nil {
		return core.Request{}, err
	}
	r.ID = id
	m.items[i] = r
	return clone(r), nil
}

func (m *InMemory) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items), nil
}

func clone(r core.Request) core.Request {
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		r.CompletedAt = &t
	}
	return r
}
