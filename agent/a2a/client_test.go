package a2a

import (
	"context"
	"errors"
	"testing"

	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
	taskx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/task"
)

func TestClientRoundTrip(t *testing.T) {
	t.Parallel()

	store := taskx.NewMemoryStore()
	defer store.Close()
	ts := newTestServer(t, store, completing(store, "answer"))

	client, err := NewClient(ts.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	card, err := client.FetchCard(context.Background())
	if err != nil {
		t.Fatalf("fetch card: %v", err)
	}
	if card.Name != "data-agent" {
		t.Errorf("card name = %q, want data-agent", card.Name)
	}

	tk, err := client.Submit(context.Background(), "", "look up customer 1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if tk.Status != taskx.StatusCompleted || tk.Result != "answer" {
		t.Errorf("task = %s/%q, want completed/answer", tk.Status, tk.Result)
	}

	polled, err := client.GetTask(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if polled.ID != tk.ID || polled.Status != taskx.StatusCompleted {
		t.Errorf("polled task = %s/%s, want %s/completed", polled.ID, polled.Status, tk.ID)
	}
}

func TestClientSurfacesRemoteFaults(t *testing.T) {
	t.Parallel()

	store := taskx.NewMemoryStore()
	defer store.Close()
	ts := newTestServer(t, store, completing(store, "answer"))

	client, err := NewClient(ts.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.GetTask(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected an error for an unknown task")
	}
	var fault *contractx.Fault
	if !errors.As(err, &fault) {
		t.Fatalf("err = %v (%T), want *contract.Fault", err, err)
	}
	if fault.Kind != contractx.KindNotFound {
		t.Errorf("fault kind = %s, want %s", fault.Kind, contractx.KindNotFound)
	}
	if !errors.Is(err, contractx.ErrNotFound) {
		t.Error("fault should unwrap to ErrNotFound")
	}
}

func TestClientCancelIsIdempotentEnough(t *testing.T) {
	t.Parallel()

	store := taskx.NewMemoryStore()
	defer store.Close()
	ts := newTestServer(t, store, completing(store, "answer"))

	tk := taskx.New("", contractx.UserMessage("park me"))
	if err := store.Create(context.Background(), tk); err != nil {
		t.Fatalf("create task: %v", err)
	}

	client, err := NewClient(ts.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if err := client.Cancel(context.Background(), tk.ID); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	// Second cancel hits an already-terminal task; the fault comes back as a
	// plain error, not a panic or transport failure.
	err = client.Cancel(context.Background(), tk.ID)
	if err == nil {
		t.Fatal("expected a fault canceling a terminal task")
	}
	var fault *contractx.Fault
	if !errors.As(err, &fault) {
		t.Fatalf("err = %v (%T), want *contract.Fault", err, err)
	}
}

func TestClientValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient("   "); err == nil {
		t.Error("empty base URL must be rejected")
	}
	if _, err := NewClient("http://localhost:5002/"); err != nil {
		t.Errorf("trailing slash should be accepted: %v", err)
	}
}
