package router

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/a2a"
	"github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/classify"
	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
	taskx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/task"
)

// fakeAgent is a scripted specialist: it records what it was asked and
// settles every sub-task the same way.
type fakeAgent struct {
	mu       sync.Mutex
	submits  []string
	canceled []string
	respond  func(taskID, message string) (*taskx.Task, error)
}

func (f *fakeAgent) Submit(_ context.Context, taskID, message string) (*taskx.Task, error) {
	f.mu.Lock()
	f.submits = append(f.submits, message)
	f.mu.Unlock()
	return f.respond(taskID, message)
}

func (f *fakeAgent) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	f.canceled = append(f.canceled, id)
	f.mu.Unlock()
	return nil
}

func answering(answer string) *fakeAgent {
	return &fakeAgent{respond: func(taskID, message string) (*taskx.Task, error) {
		sub := taskx.New(taskID, contractx.UserMessage(message))
		_ = sub.Accept()
		_ = sub.Complete(answer)
		return sub, nil
	}}
}

func failing(fault *contractx.Fault) *fakeAgent {
	return &fakeAgent{respond: func(taskID, message string) (*taskx.Task, error) {
		sub := taskx.New(taskID, contractx.UserMessage(message))
		_ = sub.Accept()
		_ = sub.Fail(fault)
		return sub, nil
	}}
}

func asking(question string) *fakeAgent {
	return &fakeAgent{respond: func(taskID, message string) (*taskx.Task, error) {
		sub := taskx.New(taskID, contractx.UserMessage(message))
		_ = sub.Accept()
		_ = sub.RequireInput(question)
		return sub, nil
	}}
}

func newTestRouter(t *testing.T, store taskx.Store, data, support Agent, opts ...Option) *Router {
	t.Helper()
	directory := NewDirectory()
	if data != nil {
		directory.Register(contractx.CapabilityDataLookup, data)
	}
	if support != nil {
		directory.Register(contractx.CapabilityTicketCreation, support)
	}
	r, err := New(classify.RuleIntent{}, directory, store, opts...)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return r
}

func routeText(t *testing.T, r *Router, store taskx.Store, text string) *taskx.Task {
	t.Helper()
	tk := taskx.New("", contractx.UserMessage(text))
	if err := store.Create(context.Background(), tk); err != nil {
		t.Fatalf("create task: %v", err)
	}
	r.Process(context.Background(), tk)
	return tk
}

func TestRoutesDataLookupOnly(t *testing.T) {
	t.Parallel()

	store := taskx.NewMemoryStore()
	defer store.Close()
	data := answering("Customer record: Ada Lovelace")
	support := answering("should not be called")
	r := newTestRouter(t, store, data, support)

	tk := routeText(t, r, store, "Get customer information for customer ID 1")

	if tk.Status != taskx.StatusCompleted {
		t.Fatalf("status = %s, want %s (fault: %v)", tk.Status, taskx.StatusCompleted, tk.Fault)
	}
	if !strings.Contains(tk.Result, "Ada Lovelace") {
		t.Errorf("reply %q does not carry the data answer", tk.Result)
	}
	if len(data.submits) != 1 {
		t.Errorf("data agent submits = %d, want 1", len(data.submits))
	}
	if len(support.submits) != 0 {
		t.Errorf("support agent was called for a pure lookup: %v", support.submits)
	}
}

func TestRoutesTicketCreationOnly(t *testing.T) {
	t.Parallel()

	store := taskx.NewMemoryStore()
	defer store.Close()
	data := answering("should not be called")
	support := answering("Created ticket #7 (high priority).")
	r := newTestRouter(t, store, data, support)

	tk := routeText(t, r, store, "I was charged twice and I need a refund immediately!")

	if tk.Status != taskx.StatusCompleted {
		t.Fatalf("status = %s, want %s (fault: %v)", tk.Status, taskx.StatusCompleted, tk.Fault)
	}
	if !strings.Contains(tk.Result, "ticket #7") {
		t.Errorf("reply %q does not carry the ticket confirmation", tk.Result)
	}
	if len(data.submits) != 0 {
		t.Errorf("data agent was called for a pure complaint: %v", data.submits)
	}
}

func TestSequentialDelegationFoldsContext(t *testing.T) {
	t.Parallel()

	store := taskx.NewMemoryStore()
	defer store.Close()
	data := answering(`{"id":3,"name":"Lin Wong","plan":"starter"}`)
	support := answering("Created ticket #9 (medium priority) for customer 3.")
	r := newTestRouter(t, store, data, support)

	tk := routeText(t, r, store, "Customer ID 3 needs help upgrading their account")

	if tk.Status != taskx.StatusCompleted {
		t.Fatalf("status = %s, want %s (fault: %v)", tk.Status, taskx.StatusCompleted, tk.Fault)
	}
	if len(data.submits) != 1 || len(support.submits) != 1 {
		t.Fatalf("submits = data %d / support %d, want 1 each", len(data.submits), len(support.submits))
	}
	if !strings.Contains(data.submits[0], "customer id 3") {
		t.Errorf("data instruction %q does not name the customer", data.submits[0])
	}
	if !strings.Contains(support.submits[0], "Lin Wong") {
		t.Errorf("support instruction %q does not carry the data agent's answer", support.submits[0])
	}
	// Both answers appear, lookup first.
	dataAt := strings.Index(tk.Result, "Lin Wong")
	ticketAt := strings.Index(tk.Result, "ticket #9")
	if dataAt < 0 || ticketAt < 0 || dataAt > ticketAt {
		t.Errorf("reply %q should carry the lookup before the ticket", tk.Result)
	}
}

func TestParallelDelegationAwaitsBothAnswers(t *testing.T) {
	t.Parallel()

	store := taskx.NewMemoryStore()
	defer store.Close()
	// The data agent is deliberately slower than the support agent, so
	// premature aggregation would drop its answer.
	data := &fakeAgent{respond: func(taskID, message string) (*taskx.Task, error) {
		time.Sleep(150 * time.Millisecond)
		sub := taskx.New(taskID, contractx.UserMessage(message))
		_ = sub.Accept()
		_ = sub.Complete("7 active customers on file")
		return sub, nil
	}}
	support := answering("Created ticket #11 (medium priority).")
	r := newTestRouter(t, store, data, support)

	tk := routeText(t, r, store, "List all customers, and separately open a ticket: the status page is broken")

	if tk.Status != taskx.StatusCompleted {
		t.Fatalf("status = %s, want %s (fault: %v)", tk.Status, taskx.StatusCompleted, tk.Fault)
	}
	if len(data.submits) != 1 || len(support.submits) != 1 {
		t.Fatalf("submits = data %d / support %d, want 1 each", len(data.submits), len(support.submits))
	}
	if !strings.Contains(tk.Result, "7 active customers") || !strings.Contains(tk.Result, "ticket #11") {
		t.Fatalf("reply %q should aggregate both specialists' answers", tk.Result)
	}
	// Neither step waited on the other: the ticket instruction carries no
	// lookup context.
	if strings.Contains(support.submits[0], "7 active customers") {
		t.Errorf("support instruction %q should not fold the data answer for independent steps", support.submits[0])
	}
}

func TestUnroutableRequestFails(t *testing.T) {
	t.Parallel()

	store := taskx.NewMemoryStore()
	defer store.Close()
	r := newTestRouter(t, store, answering("x"), answering("y"))

	tk := routeText(t, r, store, "What is the weather in Bangkok today?")

	if tk.Status != taskx.StatusFailed {
		t.Fatalf("status = %s, want %s", tk.Status, taskx.StatusFailed)
	}
	if tk.Fault == nil || tk.Fault.Kind != contractx.KindUnroutable {
		t.Fatalf("fault = %+v, want kind %s", tk.Fault, contractx.KindUnroutable)
	}
}

func TestMissingCapabilityIsUnroutable(t *testing.T) {
	t.Parallel()

	store := taskx.NewMemoryStore()
	defer store.Close()
	// Only a data agent is registered; ticket requests have nowhere to go.
	r := newTestRouter(t, store, answering("record"), nil)

	tk := routeText(t, r, store, "My app keeps crashing, please open a ticket")

	if tk.Status != taskx.StatusFailed {
		t.Fatalf("status = %s, want %s", tk.Status, taskx.StatusFailed)
	}
	if tk.Fault == nil || tk.Fault.Kind != contractx.KindUnroutable {
		t.Fatalf("fault = %+v, want kind %s", tk.Fault, contractx.KindUnroutable)
	}
}

func TestRequiredDelegationFailureFailsTask(t *testing.T) {
	t.Parallel()

	store := taskx.NewMemoryStore()
	defer store.Close()
	support := failing(contractx.NewFault(contractx.KindInternal, "ticket store unavailable"))
	r := newTestRouter(t, store, answering("x"), support)

	tk := routeText(t, r, store, "I need a refund, this is broken")

	if tk.Status != taskx.StatusFailed {
		t.Fatalf("status = %s, want %s", tk.Status, taskx.StatusFailed)
	}
	if tk.Fault == nil || tk.Fault.Kind != contractx.KindUpstream {
		t.Fatalf("fault = %+v, want kind %s", tk.Fault, contractx.KindUpstream)
	}
	if !strings.Contains(tk.Fault.Message, "ticket store unavailable") {
		t.Errorf("fault message %q does not carry the specialist's reason", tk.Fault.Message)
	}
}

func TestSpecialistQuestionParksTask(t *testing.T) {
	t.Parallel()

	store := taskx.NewMemoryStore()
	defer store.Close()
	data := asking("Which customer id should I look up?")
	r := newTestRouter(t, store, data, answering("y"))

	tk := routeText(t, r, store, "Look up the customer record for me")

	if tk.Status != taskx.StatusInputRequired {
		t.Fatalf("status = %s, want %s (fault: %v)", tk.Status, taskx.StatusInputRequired, tk.Fault)
	}
	if q := tk.LatestAgentText(); !strings.Contains(q, "Which customer id") {
		t.Errorf("question %q was not surfaced to the caller", q)
	}
}

func TestDiscoverReadsAgentCards(t *testing.T) {
	t.Parallel()

	store := taskx.NewMemoryStore()
	defer store.Close()

	card := contractx.AgentCard{
		Name: "data-agent",
		URL:  "http://localhost:5002",
		Skills: []contractx.AgentSkill{
			{ID: string(contractx.CapabilityDataLookup), Name: "Customer data lookup"},
			{ID: "time-travel", Name: "Not a capability we route"},
		},
	}
	srv, err := a2a.NewServer(card, store, noopProcessor{}, "localhost:0")
	if err != nil {
		t.Fatalf("new a2a server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	peer, err := a2a.NewClient(ts.URL)
	if err != nil {
		t.Fatalf("new a2a client: %v", err)
	}
	directory, err := Discover(context.Background(), peer)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	if _, ok := directory.AgentFor(contractx.CapabilityDataLookup); !ok {
		t.Error("data-lookup capability was not registered from the card")
	}
	if _, ok := directory.AgentFor(contractx.CapabilityTicketCreation); ok {
		t.Error("ticket-creation should not be registered")
	}
}

type noopProcessor struct{}

func (noopProcessor) Process(_ context.Context, tk *taskx.Task) {
	_ = tk.Accept()
	_ = tk.Complete("ok")
}
