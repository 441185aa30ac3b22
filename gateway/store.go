// Package gateway implements the tool-invocation gateway: the sole path by
// which any agent touches persisted customer and ticket state. Agents call
// named operations over HTTP; the gateway validates arguments, executes one
// atomic store operation, and returns a structured result or a structured
// fault.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/bun"
)

const (
	CustomerStatusActive   = "active"
	CustomerStatusDisabled = "disabled"
)

const (
	TicketStatusOpen       = "open"
	TicketStatusInProgress = "in_progress"
	TicketStatusResolved   = "resolved"
)

type Customer struct {
	bun.BaseModel `bun:"table:customers,alias:c"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Email     string    `bun:"email,notnull,unique" json:"email"`
	Phone     string    `bun:"phone" json:"phone,omitempty"`
	Status    string    `bun:"status,notnull,default:'active'" json:"status"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

type Ticket struct {
	bun.BaseModel `bun:"table:tickets,alias:t"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	CustomerID int64     `bun:"customer_id,notnull" json:"customer_id"`
	Issue      string    `bun:"issue,notnull" json:"issue"`
	Status     string    `bun:"status,notnull,default:'open'" json:"status"`
	Priority   string    `bun:"priority,notnull,default:'medium'" json:"priority"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// CustomerPatch carries the updatable customer fields; nil means unchanged.
type CustomerPatch struct {
	Name   *string
	Email  *string
	Phone  *string
	Status *string
}

func (p CustomerPatch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Phone == nil && p.Status == nil
}

var (
	ErrCustomerNotFound = errors.New("customer not found")
	ErrEmailTaken       = errors.New("email already in use")
)

// Store is the persistence contract behind the gateway operations. Each
// method is one atomic unit against the backing store.
type Store interface {
	// GetCustomer returns the customer or ErrCustomerNotFound.
	GetCustomer(ctx context.Context, id int64) (*Customer, error)

	// ListCustomers returns customers newest first. An empty or "any"
	// status returns all; limit must be >= 1.
	ListCustomers(ctx context.Context, status string, limit int) ([]Customer, error)

	// UpdateCustomer applies the patch and refreshes updated_at. Returns
	// ErrCustomerNotFound or ErrEmailTaken.
	UpdateCustomer(ctx context.Context, id int64, patch CustomerPatch) (*Customer, error)

	// CreateTicket inserts the ticket after verifying the customer exists;
	// the assigned id is written back into t.
	CreateTicket(ctx context.Context, t *Ticket) error

	// TicketsForCustomer returns the customer's tickets newest first. An
	// unknown customer yields an empty slice, not an error.
	TicketsForCustomer(ctx context.Context, customerID int64) ([]Ticket, error)
}

// SeedCustomers is the demo data set loaded into an empty store at startup.
func SeedCustomers() []Customer {
	return []Customer{
		{Name: "Alice Johnson", Email: "alice@example.com", Phone: "555-0101", Status: CustomerStatusActive},
		{Name: "Bob Smith", Email: "bob@example.com", Phone: "555-0102", Status: CustomerStatusActive},
		{Name: "Carol Davis", Email: "carol@example.com", Phone: "555-0103", Status: CustomerStatusActive},
		{Name: "David Wilson", Email: "david@example.com", Phone: "555-0104", Status: CustomerStatusDisabled},
		{Name: "Emma Brown", Email: "emma@example.com", Phone: "555-0105", Status: CustomerStatusActive},
		{Name: "Frank Miller", Email: "frank@example.com", Phone: "555-0106", Status: CustomerStatusActive},
		{Name: "Grace Lee", Email: "grace@example.com", Phone: "555-0107", Status: CustomerStatusActive},
	}
}

func ValidCustomerStatus(status string) bool {
	switch status {
	case CustomerStatusActive, CustomerStatusDisabled:
		return true
	default:
		return false
	}
}
