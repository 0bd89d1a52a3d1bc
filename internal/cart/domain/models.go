package domain

import (
	"context"
	"errors"
	"sort"

	"github.com/glowhub/portal/internal/catalog"
)

// Collection is the document collection holding cart items.
const Collection = "cart"

// Status is the cart item lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusPurchased Status = "purchased"
	StatusRemoved   Status = "removed"
)

// Item is one cart line. Kind tags whether ItemID points at a service
// or a product; services are singleton lines, products carry a quantity.
// Price is in minor currency units.
type Item struct {
	ID         string       `json:"id"`
	CustomerID string       `json:"customerId"`
	Kind       catalog.Kind `json:"kind"`
	ItemID     string       `json:"itemId"`
	Name       string       `json:"name"`
	Price      int64        `json:"price"`
	Quantity   int64        `json:"quantity"`
	Status     Status       `json:"status"`
	AddedAt    string       `json:"addedAt,omitempty"`
}

// Subtotal is the line total in minor units.
func (i Item) Subtotal() int64 {
	return i.Price * i.Quantity
}

var (
	ErrInvalidCustomer  = errors.New("invalid_customer")
	ErrItemNotFound     = errors.New("cart_item_not_found")
	ErrDuplicateService = errors.New("duplicate_service_item")
)

// Service is the cart aggregator. Mutations apply to the local
// projection synchronously; remote writes settle asynchronously except
// for Purge, which checkout calls on its own blocking path.
type Service interface {
	AddItem(ctx context.Context, customerID string, kind catalog.Kind, catalogItemID string) (Item, error)
	UpdateQuantity(ctx context.Context, customerID, cartItemID string, quantity int64) error
	RemoveItem(ctx context.Context, customerID, cartItemID string) error

	// Items returns the active lines of the local projection, sorted by id.
	Items(customerID string) []Item

	// Purge deletes the given lines locally and remotely, synchronously,
	// after any queued writes for them have settled.
	Purge(ctx context.Context, customerID string, cartItemIDs ...string) error

	// ApplySnapshot replaces the projection from an authoritative remote
	// snapshot. It reports whether the projection actually changed.
	ApplySnapshot(customerID string, items []Item) bool
}

// SortItems orders lines deterministically by id, for snapshot diffing.
func SortItems(items []Item) {
	sort.Slice(items, func(a, b int) bool { return items[a].ID < items[b].ID })
}
