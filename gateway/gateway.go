package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
)

const (
	OpFetchCustomer      = "fetch_customer"
	OpListCustomers      = "list_customers"
	OpUpdateCustomer     = "update_customer"
	OpCreateTicket       = "create_ticket"
	OpFetchTicketHistory = "fetch_ticket_history"
)

const defaultListLimit = 10

// ReadOnlyOps lists the operations that are safe to retry: they never write.
var ReadOnlyOps = map[string]bool{
	OpFetchCustomer:      true,
	OpListCustomers:      true,
	OpFetchTicketHistory: true,
}

// Gateway dispatches named tool operations against the store, owning all
// argument validation so agents never embed store-specific logic.
type Gateway struct {
	store Store
}

func New(store Store) (*Gateway, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	return &Gateway{store: store}, nil
}

// Execute runs one named operation. Tool-level failures come back inside the
// result as a Fault; the error return is reserved for programming errors.
func (g *Gateway) Execute(ctx context.Context, req contractx.ToolRequest) contractx.ToolResult {
	result := contractx.ToolResult{Tool: req.Tool}

	payload, fault := g.dispatch(ctx, req)
	if fault != nil {
		log.Debug().Str("tool", req.Tool).Str("kind", string(fault.Kind)).Msg("tool operation failed")
		result.Error = fault
		return result
	}

	result.Result = payload
	return result
}

func (g *Gateway) dispatch(ctx context.Context, req contractx.ToolRequest) (any, *contractx.Fault) {
	switch req.Tool {
	case OpFetchCustomer:
		return g.fetchCustomer(ctx, req.Args)
	case OpListCustomers:
		return g.listCustomers(ctx, req.Args)
	case OpUpdateCustomer:
		return g.updateCustomer(ctx, req.Args)
	case OpCreateTicket:
		return g.createTicket(ctx, req.Args)
	case OpFetchTicketHistory:
		return g.fetchTicketHistory(ctx, req.Args)
	default:
		return nil, contractx.NewFault(contractx.KindValidation, "unknown tool %q", req.Tool)
	}
}

func (g *Gateway) fetchCustomer(ctx context.Context, args map[string]any) (any, *contractx.Fault) {
	id, fault := customerIDArg(args)
	if fault != nil {
		return nil, fault
	}

	c, err := g.store.GetCustomer(ctx, id)
	if err != nil {
		return nil, storeFault(err, "customer %d", id)
	}
	return c, nil
}

func (g *Gateway) listCustomers(ctx context.Context, args map[string]any) (any, *contractx.Fault) {
	status := strings.TrimSpace(stringArg(args, "status"))
	if status != "" && status != "any" && !ValidCustomerStatus(status) {
		return nil, contractx.NewFault(contractx.KindValidation,
			"status must be one of active, disabled, any; got %q", status)
	}

	limit := defaultListLimit
	if raw, ok := args["limit"]; ok {
		n, err := intFrom(raw)
		if err != nil || n < 1 {
			return nil, contractx.NewFault(contractx.KindValidation, "limit must be a positive integer")
		}
		limit = int(n)
	}

	customers, err := g.store.ListCustomers(ctx, status, limit)
	if err != nil {
		return nil, storeFault(err, "list customers")
	}
	return customers, nil
}

func (g *Gateway) updateCustomer(ctx context.Context, args map[string]any) (any, *contractx.Fault) {
	id, fault := customerIDArg(args)
	if fault != nil {
		return nil, fault
	}

	var patch CustomerPatch
	if v, ok := args["name"]; ok {
		patch.Name = strPtr(v)
	}
	if v, ok := args["email"]; ok {
		patch.Email = strPtr(v)
	}
	if v, ok := args["phone"]; ok {
		patch.Phone = strPtr(v)
	}
	if v, ok := args["status"]; ok {
		patch.Status = strPtr(v)
	}

	if patch.Empty() {
		return nil, contractx.NewFault(contractx.KindValidation,
			"at least one of name, email, phone, status is required")
	}
	if patch.Status != nil && !ValidCustomerStatus(*patch.Status) {
		return nil, contractx.NewFault(contractx.KindValidation,
			"status must be active or disabled; got %q", *patch.Status)
	}
	if patch.Email != nil && !strings.Contains(*patch.Email, "@") {
		return nil, contractx.NewFault(contractx.KindValidation, "email %q is not valid", *patch.Email)
	}

	c, err := g.store.UpdateCustomer(ctx, id, patch)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, contractx.NewFault(contractx.KindValidation, "email %q is already in use", *patch.Email)
		}
		return nil, storeFault(err, "customer %d", id)
	}
	return c, nil
}

func (g *Gateway) createTicket(ctx context.Context, args map[string]any) (any, *contractx.Fault) {
	id, fault := customerIDArg(args)
	if fault != nil {
		return nil, fault
	}

	issue := strings.TrimSpace(stringArg(args, "issue"))
	if issue == "" {
		return nil, contractx.NewFault(contractx.KindValidation, "issue must not be empty")
	}

	priority := contractx.Priority(strings.TrimSpace(stringArg(args, "priority")))
	if priority == "" {
		priority = contractx.PriorityMedium
	}
	if !contractx.ValidPriority(priority) {
		return nil, contractx.NewFault(contractx.KindValidation,
			"priority must be one of low, medium, high; got %q", priority)
	}

	ticket := &Ticket{
		CustomerID: id,
		Issue:      issue,
		Status:     TicketStatusOpen,
		Priority:   string(priority),
	}
	if err := g.store.CreateTicket(ctx, ticket); err != nil {
		return nil, storeFault(err, "customer %d", id)
	}

	log.Info().Int64("ticket_id", ticket.ID).Int64("customer_id", id).
		Str("priority", string(priority)).Msg("ticket created")
	return ticket, nil
}

func (g *Gateway) fetchTicketHistory(ctx context.Context, args map[string]any) (any, *contractx.Fault) {
	id, fault := customerIDArg(args)
	if fault != nil {
		return nil, fault
	}

	tickets, err := g.store.TicketsForCustomer(ctx, id)
	if err != nil {
		return nil, storeFault(err, "tickets for customer %d", id)
	}
	return tickets, nil
}

func customerIDArg(args map[string]any) (int64, *contractx.Fault) {
	raw, ok := args["customer_id"]
	if !ok {
		return 0, contractx.NewFault(contractx.KindValidation, "customer_id is required")
	}
	id, err := intFrom(raw)
	if err != nil || id <= 0 {
		return 0, contractx.NewFault(contractx.KindValidation, "customer_id must be a positive integer")
	}
	return id, nil
}

func storeFault(err error, format string, args ...any) *contractx.Fault {
	subject := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, ErrCustomerNotFound):
		return contractx.NewFault(contractx.KindNotFound, "%s: customer not found", subject)
	case errors.Is(err, context.DeadlineExceeded):
		return contractx.NewFault(contractx.KindTimeout, "%s: %v", subject, err)
	default:
		return contractx.NewFault(contractx.KindInternal, "%s: %v", subject, err)
	}
}

// intFrom accepts the numeric encodings JSON decoding can produce.
func intFrom(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("not an integer: %v", v)
		}
		return int64(v), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	default:
		return 0, fmt.Errorf("not an integer: %T", raw)
	}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func strPtr(v any) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	empty := fmt.Sprint(v)
	return &empty
}
