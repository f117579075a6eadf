// Package store provides data storage interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/vyrodovalexey/cors-demo/internal/model"
)

// Store errors.
var (
	ErrNotFound = errors.New("item not found")
	ErrNilItem  = errors.New("item cannot be nil")
)

// Store defines the interface for item storage operations.
// Implementations keep items in insertion order.
type Store interface {
	// List returns all items in insertion order.
	List(ctx context.Context) ([]model.Item, error)

	// Get retrieves an item by its ID.
	Get(ctx context.Context, id int) (*model.Item, error)

	// Create appends a new item and returns it with its assigned ID.
	Create(ctx context.Context, item *model.Item) (*model.Item, error)

	// Update applies patch to an existing item and returns the merged item.
	Update(ctx context.Context, id int, patch *model.ItemPatch) (*model.Item, error)

	// Delete removes an item by its ID and returns the removed item.
	Delete(ctx context.Context, id int) (*model.Item, error)

	// Len returns the number of stored items.
	Len(ctx context.Context) (int, error)
}

// DefaultItems returns the demo items the service starts with.
func DefaultItems() []model.Item {
	return []model.Item{
		{ID: 1, Name: "Item 1", Description: "This is item 1"},
		{ID: 2, Name: "Item 2", Description: "This is item 2"},
		{ID: 3, Name: "Item 3", Description: "This is item 3"},
	}
}
