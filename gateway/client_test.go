package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
)

func TestClientRoundTrip(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	client, err := NewClient(ts.URL)
	if err != nil {
		t.Fatal(err)
	}

	result, err := client.Invoke(context.Background(), contractx.ToolRequest{
		Tool: OpFetchCustomer,
		Args: map[string]any{"customer_id": 1},
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if result.Error != nil {
		t.Fatalf("fault = %v", result.Error)
	}
	if result.Tool != OpFetchCustomer {
		t.Fatalf("tool = %q", result.Tool)
	}
}

func TestClientSurfacesStructuredFaults(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	client, err := NewClient(ts.URL)
	if err != nil {
		t.Fatal(err)
	}

	result, err := client.Invoke(context.Background(), contractx.ToolRequest{
		Tool: OpFetchCustomer,
		Args: map[string]any{"customer_id": 9999},
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v, structured faults should not be transport errors", err)
	}
	if result.Error == nil || result.Error.Kind != contractx.KindNotFound {
		t.Fatalf("fault = %+v, want NotFound", result.Error)
	}
}

func TestClientRetriesIdempotentReads(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusGatewayTimeout)
			w.Write([]byte(`{"error":{"kind":"TIMEOUT","message":"slow"}}`))
			return
		}
		w.Write([]byte(`{"tool":"fetch_customer","result":{"id":1,"name":"Alice","email":"a@example.com","status":"active"}}`))
	}))
	t.Cleanup(flaky.Close)

	client, err := NewClient(flaky.URL, WithClientTimeout(time.Second))
	if err != nil {
		t.Fatal(err)
	}

	result, err := client.Invoke(context.Background(), contractx.ToolRequest{
		Tool: OpFetchCustomer,
		Args: map[string]any{"customer_id": 1},
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if result.Error != nil {
		t.Fatalf("fault = %v", result.Error)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("calls = %d, want 2 (one retry)", got)
	}
}

func TestClientNeverRetriesCreateTicket(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGatewayTimeout)
		w.Write([]byte(`{"error":{"kind":"TIMEOUT","message":"slow"}}`))
	}))
	t.Cleanup(flaky.Close)

	client, err := NewClient(flaky.URL, WithClientTimeout(time.Second))
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.Invoke(context.Background(), contractx.ToolRequest{
		Tool: OpCreateTicket,
		Args: map[string]any{"customer_id": 1, "issue": "x"},
	})
	if err == nil {
		t.Fatal("expected error for timed-out write")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want exactly 1 (no retry on writes)", got)
	}
}

func TestClientConfigValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient("  "); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewClient("::bad::"); err == nil {
		t.Fatal("expected error for invalid url")
	}
}
