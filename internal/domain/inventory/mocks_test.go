package inventory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// memoryStore mirrors the clamped conditional update under a mutex
type memoryStore struct {
	mu       sync.Mutex
	stock    map[uuid.UUID]*int
	failFor  map[uuid.UUID]error
	appliedN int
	// net units removed per reference and bundle
	taken map[string]map[uuid.UUID]int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		stock:   make(map[uuid.UUID]*int),
		failFor: make(map[uuid.UUID]error),
		taken:   make(map[string]map[uuid.UUID]int),
	}
}

func (m *memoryStore) set(id uuid.UUID, limit *int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[id] = limit
}

func (m *memoryStore) get(id uuid.UUID) *int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[id]
}

func (m *memoryStore) Decrement(_ context.Context, id uuid.UUID, qty int, ref Reference) (Outcome, error) {
	return m.apply(id, qty, ref, func(cur int) int {
		if cur-qty < 0 {
			return 0
		}
		return cur - qty
	})
}

func (m *memoryStore) Increment(_ context.Context, id uuid.UUID, qty int, ref Reference) (Outcome, error) {
	return m.apply(id, qty, ref, func(cur int) int { return cur + qty })
}

func (m *memoryStore) apply(id uuid.UUID, qty int, ref Reference, next func(int) int) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failFor[id]; err != nil {
		return Outcome{}, err
	}
	limit, ok := m.stock[id]
	if !ok {
		return Outcome{}, ErrBundleNotFound
	}
	out := Outcome{BundleID: id, Quantity: qty}
	if limit == nil {
		out.Unlimited = true
		return out, nil
	}

	prev := *limit
	updated := next(prev)
	m.stock[id] = &updated
	m.appliedN++
	key := ref.Type + ":" + ref.ID
	if m.taken[key] == nil {
		m.taken[key] = make(map[uuid.UUID]int)
	}
	m.taken[key][id] += prev - updated

	out.PreviousStock = &prev
	out.NewStock = &updated
	out.IsNowOutOfStock = updated == 0
	return out, nil
}

func (m *memoryStore) Outstanding(_ context.Context, ref Reference) ([]Adjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Adjustment
	for id, n := range m.taken[ref.Type+":"+ref.ID] {
		if n > 0 {
			out = append(out, Adjustment{BundleID: id, Quantity: n})
		}
	}
	return out, nil
}

var errStoreDown = errors.New("connection reset by peer")
