package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
	taskx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/task"
	"github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/gateway"
)

// fakeInvoker replays scripted results per tool and records every request.
type fakeInvoker struct {
	results  map[string]contractx.ToolResult
	requests []contractx.ToolRequest
}

func (f *fakeInvoker) Invoke(_ context.Context, req contractx.ToolRequest) (contractx.ToolResult, error) {
	f.requests = append(f.requests, req)
	if result, ok := f.results[req.Tool]; ok {
		return result, nil
	}
	return contractx.ToolResult{}, errors.New("unscripted tool: " + req.Tool)
}

// stubPolicy returns the same decision every step.
type stubPolicy struct {
	name     string
	tools    []string
	decision Decision
	err      error
}

func (p stubPolicy) Name() string           { return p.name }
func (p stubPolicy) AllowedTools() []string { return p.tools }
func (p stubPolicy) Decide(context.Context, StepInput) (Decision, error) {
	return p.decision, p.err
}

func newTask(t *testing.T, store taskx.Store, text string) *taskx.Task {
	t.Helper()
	tk := taskx.New("", contractx.UserMessage(text))
	if err := store.Create(context.Background(), tk); err != nil {
		t.Fatalf("create task: %v", err)
	}
	return tk
}

func TestDataPolicyFetchCompletes(t *testing.T) {
	t.Parallel()

	store := taskx.NewMemoryStore()
	defer store.Close()
	invoker := &fakeInvoker{results: map[string]contractx.ToolResult{
		gateway.OpFetchCustomer: {
			Tool:   gateway.OpFetchCustomer,
			Result: &gateway.Customer{ID: 1, Name: "Ada Lovelace", Email: "ada@example.com"},
		},
	}}
	exec, err := New(DataPolicy{}, invoker, store)
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}

	tk := newTask(t, store, "Get customer information for customer ID 1")
	exec.Process(context.Background(), tk)

	if tk.Status != taskx.StatusCompleted {
		t.Fatalf("status = %s, want %s (fault: %v)", tk.Status, taskx.StatusCompleted, tk.Fault)
	}
	if !strings.Contains(tk.Result, "Ada Lovelace") {
		t.Errorf("result %q does not mention the customer", tk.Result)
	}
	if len(invoker.requests) != 1 || invoker.requests[0].Tool != gateway.OpFetchCustomer {
		t.Fatalf("requests = %+v, want one fetch_customer call", invoker.requests)
	}
	if got := invoker.requests[0].Args["customer_id"]; got != int64(1) {
		t.Errorf("customer_id arg = %v (%T), want int64(1)", got, got)
	}

	stored, err := store.Get(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("get stored task: %v", err)
	}
	if stored.Status != taskx.StatusCompleted {
		t.Errorf("stored status = %s, want %s", stored.Status, taskx.StatusCompleted)
	}
}

func TestDataPolicyAsksForMissingCustomerID(t *testing.T) {
	t.Parallel()

	store := taskx.NewMemoryStore()
	defer store.Close()
	invoker := &fakeInvoker{results: map[string]contractx.ToolResult{
		gateway.OpFetchCustomer: {
			Tool:   gateway.OpFetchCustomer,
			Result: &gateway.Customer{ID: 4, Name: "Grace Hopper"},
		},
	}}
	exec, err := New(DataPolicy{}, invoker, store)
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}

	tk := newTask(t, store, "Can you look up that customer for me?")
	exec.Process(context.Background(), tk)

	if tk.Status != taskx.StatusInputRequired {
		t.Fatalf("status = %s, want %s", tk.Status, taskx.StatusInputRequired)
	}
	if len(invoker.requests) != 0 {
		t.Fatalf("no tool should run before the id is known, got %+v", invoker.requests)
	}

	// Answering the question resumes the same task to completion.
	if err := tk.AppendMessage(contractx.UserMessage("It is customer id 4")); err != nil {
		t.Fatalf("append answer: %v", err)
	}
	exec.Process(context.Background(), tk)

	if tk.Status != taskx.StatusCompleted {
		t.Fatalf("resumed status = %s, want %s (fault: %v)", tk.Status, taskx.StatusCompleted, tk.Fault)
	}
	if !strings.Contains(tk.Result, "Grace Hopper") {
		t.Errorf("result %q does not mention the customer", tk.Result)
	}
}

func TestSupportPolicyFilesHighPriorityTicket(t *testing.T) {
	t.Parallel()

	store := taskx.NewMemoryStore()
	defer store.Close()
	invoker := &fakeInvoker{results: map[string]contractx.ToolResult{
		gateway.OpCreateTicket: {
			Tool:   gateway.OpCreateTicket,
			Result: &gateway.Ticket{ID: 42, CustomerID: 2, Priority: "high"},
		},
	}}
	exec, err := New(NewSupportPolicy(nil), invoker, store)
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}

	tk := newTask(t, store, "Customer ID 2: I was charged twice and need a refund immediately!")
	exec.Process(context.Background(), tk)

	if tk.Status != taskx.StatusCompleted {
		t.Fatalf("status = %s, want %s (fault: %v)", tk.Status, taskx.StatusCompleted, tk.Fault)
	}
	if !strings.Contains(tk.Result, "ticket #42") {
		t.Errorf("result %q does not name the ticket", tk.Result)
	}
	if len(invoker.requests) != 1 {
		t.Fatalf("requests = %+v, want a single create_ticket call", invoker.requests)
	}
	req := invoker.requests[0]
	if req.Tool != gateway.OpCreateTicket {
		t.Fatalf("tool = %s, want %s", req.Tool, gateway.OpCreateTicket)
	}
	if got := req.Args["priority"]; got != "high" {
		t.Errorf("priority = %v, want high", got)
	}
	if got := req.Args["customer_id"]; got != int64(2) {
		t.Errorf("customer_id = %v, want int64(2)", got)
	}
}

func TestSupportPolicyChecksHistoryOnRecurrence(t *testing.T) {
	t.Parallel()

	store := taskx.NewMemoryStore()
	defer store.Close()
	invoker := &fakeInvoker{results: map[string]contractx.ToolResult{
		gateway.OpFetchTicketHistory: {
			Tool:   gateway.OpFetchTicketHistory,
			Result: []gateway.Ticket{{ID: 7, CustomerID: 5}, {ID: 3, CustomerID: 5}},
		},
		gateway.OpCreateTicket: {
			Tool:   gateway.OpCreateTicket,
			Result: &gateway.Ticket{ID: 43, CustomerID: 5, Priority: "medium"},
		},
	}}
	exec, err := New(NewSupportPolicy(nil), invoker, store)
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}

	tk := newTask(t, store, "Customer ID 5: the export keeps failing, same issue as before")
	exec.Process(context.Background(), tk)

	if tk.Status != taskx.StatusCompleted {
		t.Fatalf("status = %s, want %s (fault: %v)", tk.Status, taskx.StatusCompleted, tk.Fault)
	}
	if len(invoker.requests) != 2 {
		t.Fatalf("requests = %+v, want history then create", invoker.requests)
	}
	if invoker.requests[0].Tool != gateway.OpFetchTicketHistory {
		t.Errorf("first tool = %s, want %s", invoker.requests[0].Tool, gateway.OpFetchTicketHistory)
	}
	issue, _ := invoker.requests[1].Args["issue"].(string)
	if !strings.Contains(issue, "2 prior tickets") {
		t.Errorf("issue %q does not note the prior tickets", issue)
	}
}

func TestStepLimitFailsTask(t *testing.T) {
	t.Parallel()

	store := taskx.NewMemoryStore()
	defer store.Close()
	invoker := &fakeInvoker{results: map[string]contractx.ToolResult{
		gateway.OpFetchCustomer: {Tool: gateway.OpFetchCustomer, Result: map[string]any{"id": 1}},
	}}
	looping := stubPolicy{
		name:     "loop",
		tools:    []string{gateway.OpFetchCustomer},
		decision: Decision{Tool: &contractx.ToolRequest{Tool: gateway.OpFetchCustomer}},
	}
	exec, err := New(looping, invoker, store, WithMaxSteps(3))
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}

	tk := newTask(t, store, "round and round")
	exec.Process(context.Background(), tk)

	if tk.Status != taskx.StatusFailed {
		t.Fatalf("status = %s, want %s", tk.Status, taskx.StatusFailed)
	}
	if tk.Fault == nil || tk.Fault.Kind != contractx.KindStepLimit {
		t.Fatalf("fault = %+v, want kind %s", tk.Fault, contractx.KindStepLimit)
	}
	if len(invoker.requests) != 3 {
		t.Errorf("tool calls = %d, want 3 before the limit trips", len(invoker.requests))
	}
}

func TestDisallowedToolFailsTask(t *testing.T) {
	t.Parallel()

	store := taskx.NewMemoryStore()
	defer store.Close()
	invoker := &fakeInvoker{}
	rogue := stubPolicy{
		name:     "rogue",
		tools:    []string{gateway.OpFetchCustomer},
		decision: Decision{Tool: &contractx.ToolRequest{Tool: gateway.OpCreateTicket}},
	}
	exec, err := New(rogue, invoker, store)
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}

	tk := newTask(t, store, "file a ticket")
	exec.Process(context.Background(), tk)

	if tk.Status != taskx.StatusFailed {
		t.Fatalf("status = %s, want %s", tk.Status, taskx.StatusFailed)
	}
	if tk.Fault == nil || tk.Fault.Kind != contractx.KindValidation {
		t.Fatalf("fault = %+v, want kind %s", tk.Fault, contractx.KindValidation)
	}
	if len(invoker.requests) != 0 {
		t.Errorf("disallowed tool must never reach the invoker, got %+v", invoker.requests)
	}
}

func TestCanceledContextCancelsTask(t *testing.T) {
	t.Parallel()

	store := taskx.NewMemoryStore()
	defer store.Close()
	exec, err := New(DataPolicy{}, &fakeInvoker{}, store)
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tk := newTask(t, store, "Get customer information for customer ID 1")
	exec.Process(ctx, tk)

	if tk.Status != taskx.StatusCanceled {
		t.Fatalf("status = %s, want %s", tk.Status, taskx.StatusCanceled)
	}
	stored, err := store.Get(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("get stored task: %v", err)
	}
	if stored.Status != taskx.StatusCanceled {
		t.Errorf("stored status = %s, want %s", stored.Status, taskx.StatusCanceled)
	}
}

func TestPolicyErrorFailsTask(t *testing.T) {
	t.Parallel()

	store := taskx.NewMemoryStore()
	defer store.Close()
	broken := stubPolicy{name: "broken", err: contractx.NewFault(contractx.KindUpstream, "model unavailable")}
	exec, err := New(broken, &fakeInvoker{}, store)
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}

	tk := newTask(t, store, "anything")
	exec.Process(context.Background(), tk)

	if tk.Status != taskx.StatusFailed {
		t.Fatalf("status = %s, want %s", tk.Status, taskx.StatusFailed)
	}
	if tk.Fault == nil || tk.Fault.Kind != contractx.KindUpstream {
		t.Fatalf("fault = %+v, want kind %s", tk.Fault, contractx.KindUpstream)
	}
}
