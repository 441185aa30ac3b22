package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type DBConfig struct {
	DSN          string        `envconfig:"DSN" split_words:"true" required:"true"`
	Timeout      time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" split_words:"true" default:"8"`
}

// BunStore persists customers and tickets in Postgres through bun.
type BunStore struct {
	db *bun.DB
}

var _ Store = (*BunStore)(nil)

func NewBunStore(cfg DBConfig) (*BunStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(cfg.Timeout),
	))
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)

	return &BunStore{db: bun.NewDB(sqldb, pgdialect.New())}, nil
}

func (s *BunStore) Close() error {
	return s.db.Close()
}

// Bootstrap creates the schema. Tickets carry a cascading foreign key so
// deleting a customer deletes their tickets.
func (s *BunStore) Bootstrap(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*Customer)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create customers table: %w", err)
	}

	if _, err := s.db.NewCreateTable().
		Model((*Ticket)(nil)).
		IfNotExists().
		WithForeignKeys().
		ForeignKey(`("customer_id") REFERENCES "customers" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return fmt.Errorf("create tickets table: %w", err)
	}

	return nil
}

// Seed inserts a small demo data set when the customers table is empty.
func (s *BunStore) Seed(ctx context.Context) error {
	count, err := s.db.NewSelect().Model((*Customer)(nil)).Count(ctx)
	if err != nil {
		return fmt.Errorf("count customers: %w", err)
	}
	if count > 0 {
		return nil
	}

	customers := SeedCustomers()
	if _, err := s.db.NewInsert().Model(&customers).Exec(ctx); err != nil {
		return fmt.Errorf("seed customers: %w", err)
	}

	log.Info().Int("customers", len(customers)).Msg("seeded demo data")
	return nil
}

func (s *BunStore) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	c := new(Customer)
	err := s.db.NewSelect().Model(c).Where("c.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select customer: %w", err)
	}
	return c, nil
}

func (s *BunStore) ListCustomers(ctx context.Context, status string, limit int) ([]Customer, error) {
	customers := make([]Customer, 0, limit)
	q := s.db.NewSelect().Model(&customers).OrderExpr("c.id DESC").Limit(limit)
	if status != "" && status != "any" {
		q = q.Where("c.status = ?", status)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return customers, nil
}

func (s *BunStore) UpdateCustomer(ctx context.Context, id int64, patch CustomerPatch) (*Customer, error) {
	c := &Customer{ID: id, UpdatedAt: time.Now().UTC()}
	columns := []string{"updated_at"}

	if patch.Name != nil {
		c.Name = *patch.Name
		columns = append(columns, "name")
	}
	if patch.Email != nil {
		c.Email = *patch.Email
		columns = append(columns, "email")
	}
	if patch.Phone != nil {
		c.Phone = *patch.Phone
		columns = append(columns, "phone")
	}
	if patch.Status != nil {
		c.Status = *patch.Status
		columns = append(columns, "status")
	}

	res, err := s.db.NewUpdate().
		Model(c).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("update customer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update customer rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrCustomerNotFound
	}

	return s.GetCustomer(ctx, id)
}

func (s *BunStore) CreateTicket(ctx context.Context, t *Ticket) error {
	if _, err := s.GetCustomer(ctx, t.CustomerID); err != nil {
		return err
	}

	if t.Status == "" {
		t.Status = TicketStatusOpen
	}
	t.CreatedAt = time.Now().UTC()

	if _, err := s.db.NewInsert().Model(t).Exec(ctx); err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (s *BunStore) TicketsForCustomer(ctx context.Context, customerID int64) ([]Ticket, error) {
	tickets := make([]Ticket, 0)
	err := s.db.NewSelect().
		Model(&tickets).
		Where("t.customer_id = ?", customerID).
		OrderExpr("t.created_at DESC, t.id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.IntegrityViolation()
}
