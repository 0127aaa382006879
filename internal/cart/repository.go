package cart

import (
	"context"
	"sync"
)

// Repository persists cart lines between sessions.
// Load returns ErrCartNotFound when nothing was saved for cartID.
type Repository interface {
	Load(ctx context.Context, cartID string) ([]Item, error)
	Save(ctx context.Context, cartID string, items []Item) error
	Clear(ctx context.Context, cartID string) error
}

// MemoryRepository keeps carts in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	carts map[string][]Item
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{carts: make(map[string][]Item)}
}

func (m *MemoryRepository) Load(_ context.Context, cartID string) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items, ok := m.carts[cartID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return copyItems(items), nil
}

func (m *MemoryRepository) Save(_ context.Context, cartID string, items []Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.carts[cartID] = copyItems(items)
	return nil
}

func (m *MemoryRepository) Clear(_ context.Context, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.carts, cartID)
	return nil
}
