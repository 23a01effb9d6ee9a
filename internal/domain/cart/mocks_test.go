package cart

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/your-org/storefront-backend/internal/domain/catalog"
)

type memoryStore struct {
	mu      sync.Mutex
	carts   map[uuid.UUID]*Cart
	items   map[uuid.UUID]*CartItem
	listErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		carts: make(map[uuid.UUID]*Cart),
		items: make(map[uuid.UUID]*CartItem),
	}
}

func (m *memoryStore) FindOrCreateCart(_ context.Context, ownerID uuid.UUID) (*Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.carts[ownerID]; ok {
		return c, nil
	}
	c := &Cart{ID: uuid.New(), OwnerID: ownerID, CreatedAt: time.Now()}
	m.carts[ownerID] = c
	return c, nil
}

func (m *memoryStore) ListItems(_ context.Context, cartID uuid.UUID) ([]CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []CartItem
	for _, item := range m.items {
		if item.CartID == cartID {
			out = append(out, *item)
		}
	}
	sortItems(out)
	return out, nil
}

func (m *memoryStore) AddOrIncrement(_ context.Context, cartID uuid.UUID, ref ItemRef, qty int) (*CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.CartID != cartID {
			continue
		}
		if sameRef(item.BundleID, ref.BundleID) && sameRef(item.ProductID, ref.ProductID) {
			item.Quantity += qty
			copied := *item
			return &copied, nil
		}
	}
	item := &CartItem{
		ID:        uuid.New(),
		CartID:    cartID,
		BundleID:  ref.BundleID,
		ProductID: ref.ProductID,
		Quantity:  qty,
		CreatedAt: time.Now().Add(time.Duration(len(m.items)) * time.Millisecond),
	}
	m.items[item.ID] = item
	copied := *item
	return &copied, nil
}

func (m *memoryStore) SetQuantity(_ context.Context, cartID, itemID uuid.UUID, qty int) (*CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok || item.CartID != cartID {
		return nil, ErrCartItemNotFound
	}
	item.Quantity = qty
	copied := *item
	return &copied, nil
}

func (m *memoryStore) DeleteItem(_ context.Context, cartID, itemID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok || item.CartID != cartID {
		return ErrCartItemNotFound
	}
	delete(m.items, itemID)
	return nil
}

func (m *memoryStore) DeleteAll(_ context.Context, cartID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, item := range m.items {
		if item.CartID == cartID {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

func sameRef(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sortItems(items []CartItem) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].CreatedAt.Before(items[j-1].CreatedAt); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

type fakeCatalog struct {
	bundles  map[uuid.UUID]catalog.Bundle
	products map[uuid.UUID]catalog.Product
}

func (f *fakeCatalog) BundlesByID(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Bundle, error) {
	out := make(map[uuid.UUID]catalog.Bundle)
	for _, id := range ids {
		if b, ok := f.bundles[id]; ok {
			out[id] = b
		}
	}
	return out, nil
}

func (f *fakeCatalog) ProductsByID(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Product, error) {
	out := make(map[uuid.UUID]catalog.Product)
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
