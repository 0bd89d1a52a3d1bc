package wallet

import (
	"strings"
	"sync"
)

// Cache is the single owner of in-memory wallet state. Every mutation
// goes through Mutate under the per-customer lock; views read through
// Load; only the reconciliation layer may Replace a wallet wholesale
// with authoritative remote state.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu     sync.Mutex
	wallet Wallet
	loaded bool
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

func (c *Cache) entryFor(customerID string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[customerID]
	if !ok {
		e = &entry{}
		c.entries[customerID] = e
	}
	return e
}

// Load returns the current projection for a customer.
func (c *Cache) Load(customerID string) (Wallet, bool) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Wallet{}, false
	}

	e := c.entryFor(customerID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wallet, e.loaded
}

// Seed installs a wallet only when none is loaded yet. It returns the
// resident value either way.
func (c *Cache) Seed(customerID string, w Wallet) Wallet {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return w
	}

	e := c.entryFor(customerID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		w.CustomerID = customerID
		e.wallet = w
		e.loaded = true
	}
	return e.wallet
}

// Mutate applies fn to the wallet under the per-customer lock. The
// mutation is rejected when it would break the accounting invariant.
func (c *Cache) Mutate(customerID string, fn func(*Wallet) error) (Wallet, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Wallet{}, ErrInvalidCustomer
	}

	e := c.entryFor(customerID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return Wallet{}, ErrNotLoaded
	}

	candidate := e.wallet
	if err := fn(&candidate); err != nil {
		return e.wallet, err
	}
	if err := candidate.Validate(); err != nil {
		return e.wallet, err
	}
	candidate.CustomerID = customerID
	e.wallet = candidate
	return candidate, nil
}

// Replace overwrites the projection with authoritative remote state.
func (c *Cache) Replace(customerID string, w Wallet) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return
	}

	e := c.entryFor(customerID)
	e.mu.Lock()
	defer e.mu.Unlock()
	w.CustomerID = customerID
	e.wallet = w
	e.loaded = true
}
