package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/vyrodovalexey/cors-demo/internal/model"
)

// MemoryStore implements Store with an ordered in-memory slice.
type MemoryStore struct {
	mu    sync.RWMutex
	items []model.Item
}

// NewMemoryStore creates a MemoryStore holding a copy of seed.
func NewMemoryStore(seed ...model.Item) *MemoryStore {
	items := make([]model.Item, len(seed))
	copy(items, seed)

	return &MemoryStore{
		items: items,
	}
}

// List returns all items from the store.
func (s *MemoryStore) List(ctx context.Context) ([]model.Item, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("list items: %w", ctx.Err())
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]model.Item, len(s.items))
	copy(items, s.items)

	return items, nil
}

// Get retrieves an item by its ID.
func (s *MemoryStore) Get(ctx context.Context, id int) (*model.Item, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("get item: %w", ctx.Err())
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, ErrNotFound
	}

	item := s.items[i]
	return &item, nil
}

// Create appends a new item. Its ID is one above the current maximum,
// or 1 when the store is empty.
func (s *MemoryStore) Create(ctx context.Context, item *model.Item) (*model.Item, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("create item: %w", ctx.Err())
	default:
	}

	if item == nil {
		return nil, fmt.Errorf("create item: %w", ErrNilItem)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	newItem := model.Item{
		ID:          s.nextID(),
		Name:        item.Name,
		Description: item.Description,
	}
	s.items = append(s.items, newItem)

	return &newItem, nil
}

// Update overwrites the fields present in patch.
func (s *MemoryStore) Update(ctx context.Context, id int, patch *model.ItemPatch) (*model.Item, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("update item: %w", ctx.Err())
	default:
	}

	if patch == nil {
		return nil, fmt.Errorf("update item: %w", ErrNilItem)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, ErrNotFound
	}

	patch.Apply(&s.items[i])

	updated := s.items[i]
	return &updated, nil
}

// Delete removes an item from the store by its ID.
func (s *MemoryStore) Delete(ctx context.Context, id int) (*model.Item, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("delete item: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, ErrNotFound
	}

	removed := s.items[i]
	s.items = append(s.items[:i], s.items[i+1:]...)

	return &removed, nil
}

// Len returns the number of stored items.
func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("count items: %w", ctx.Err())
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.items), nil
}

// indexOf returns the slice position of id or -1. Callers hold the lock.
func (s *MemoryStore) indexOf(id int) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

// nextID is max(id)+1. Callers hold the write lock.
func (s *MemoryStore) nextID() int {
	maxID := 0
	for _, item := range s.items {
		if item.ID > maxID {
			maxID = item.ID
		}
	}
	return maxID + 1
}
