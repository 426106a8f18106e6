package catalogs

import (
	"context"
	"sync"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/id"
)

// MemoryLookup is an in-process Lookup used by tests and local tooling.
type MemoryLookup struct {
	mu        sync.RWMutex
	stores    map[id.ID]*Store
	products  map[id.ID]*Product
	suppliers map[id.ID]*Supplier
	clients   map[id.ID]*Client
	members   map[[2]id.ID]bool
}

// NewMemoryLookup creates an empty MemoryLookup.
func NewMemoryLookup() *MemoryLookup {
	return &MemoryLookup{
		stores:    make(map[id.ID]*Store),
		products:  make(map[id.ID]*Product),
		suppliers: make(map[id.ID]*Supplier),
		clients:   make(map[id.ID]*Client),
		members:   make(map[[2]id.ID]bool),
	}
}

func (m *MemoryLookup) AddStore(s *Store) *MemoryLookup {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[s.ID] = s
	return m
}

func (m *MemoryLookup) AddProduct(p *Product) *MemoryLookup {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return m
}

func (m *MemoryLookup) AddSupplier(s *Supplier) *MemoryLookup {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppliers[s.ID] = s
	return m
}

func (m *MemoryLookup) AddClient(c *Client) *MemoryLookup {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ID] = c
	return m
}

// Approve records an approved membership of clientID in storeID.
func (m *MemoryLookup) Approve(clientID, storeID id.ID) *MemoryLookup {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[[2]id.ID{clientID, storeID}] = true
	return m
}

func (m *MemoryLookup) Store(_ context.Context, storeID id.ID) (*Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.stores[storeID]; ok {
		return s, nil
	}
	return nil, apperror.NewNotFound("store", storeID.String())
}

func (m *MemoryLookup) Product(_ context.Context, productID id.ID) (*Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.products[productID]; ok {
		return p, nil
	}
	return nil, apperror.NewNotFound("product", productID.String())
}

func (m *MemoryLookup) Supplier(_ context.Context, supplierID id.ID) (*Supplier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.suppliers[supplierID]; ok {
		return s, nil
	}
	return nil, apperror.NewNotFound("supplier", supplierID.String())
}

func (m *MemoryLookup) Client(_ context.Context, clientID id.ID) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.clients[clientID]; ok {
		return c, nil
	}
	return nil, apperror.NewNotFound("client", clientID.String())
}

func (m *MemoryLookup) IsApprovedMember(_ context.Context, clientID, storeID id.ID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.members[[2]id.ID{clientID, storeID}], nil
}

var _ Lookup = (*MemoryLookup)(nil)
