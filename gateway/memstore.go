package gateway

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and standalone runs. Operations
// are serialized by a single mutex, which makes each one trivially atomic.
type MemStore struct {
	mu           sync.RWMutex
	customers    map[int64]Customer
	tickets      map[int64]Ticket
	nextCustomer int64
	nextTicket   int64
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		customers:    make(map[int64]Customer),
		tickets:      make(map[int64]Ticket),
		nextCustomer: 1,
		nextTicket:   1,
	}
}

// AddCustomer inserts a customer and returns its assigned id.
func (s *MemStore) AddCustomer(c Customer) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.nextCustomer
	s.nextCustomer++
	if c.Status == "" {
		c.Status = CustomerStatusActive
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.customers[c.ID] = c
	return c.ID
}

// Seed loads the demo customers into an empty store.
func (s *MemStore) Seed() {
	s.mu.RLock()
	populated := len(s.customers) > 0
	s.mu.RUnlock()
	if populated {
		return
	}
	for _, c := range SeedCustomers() {
		s.AddCustomer(c)
	}
}

// DeleteCustomer removes a customer and cascades to their tickets, matching
// the Postgres foreign-key behavior.
func (s *MemStore) DeleteCustomer(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.customers, id)
	for tid, t := range s.tickets {
		if t.CustomerID == id {
			delete(s.tickets, tid)
		}
	}
}

func (s *MemStore) GetCustomer(_ context.Context, id int64) (*Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	return &c, nil
}

func (s *MemStore) ListCustomers(_ context.Context, status string, limit int) ([]Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Customer, 0, limit)
	for _, c := range s.customers {
		if status != "" && status != "any" && c.Status != status {
			continue
		}
		out = append(out, c)
	}
	// Newest first, same ordering the SQL store documents.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) UpdateCustomer(_ context.Context, id int64, patch CustomerPatch) (*Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, ErrCustomerNotFound
	}

	if patch.Email != nil {
		email := strings.TrimSpace(*patch.Email)
		for otherID, other := range s.customers {
			if otherID != id && strings.EqualFold(other.Email, email) {
				return nil, ErrEmailTaken
			}
		}
		c.Email = email
	}
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.Phone != nil {
		c.Phone = *patch.Phone
	}
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	c.UpdatedAt = time.Now().UTC()

	s.customers[id] = c
	return &c, nil
}

func (s *MemStore) CreateTicket(_ context.Context, t *Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[t.CustomerID]; !ok {
		return ErrCustomerNotFound
	}

	t.ID = s.nextTicket
	s.nextTicket++
	if t.Status == "" {
		t.Status = TicketStatusOpen
	}
	t.CreatedAt = time.Now().UTC()
	s.tickets[t.ID] = *t
	return nil
}

func (s *MemStore) TicketsForCustomer(_ context.Context, customerID int64) ([]Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Ticket, 0)
	for _, t := range s.tickets {
		if t.CustomerID == customerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
