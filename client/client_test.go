package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mistakeknot/tapcall/pkg/embedded"
)

func startServer(t *testing.T, cfg embedded.Config) *embedded.Server {
	t.Helper()
	srv, err := embedded.New(cfg)
	if err != nil {
		t.Fatalf("embedded: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func TestClientWithoutServer(t *testing.T) {
	c := New("http://127.0.0.1:1")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := c.CreateRequest(ctx, NewRequest{TableID: "1"}); err == nil {
		t.Fatalf("expected failure without server")
	}
}

func TestClientRequestLifecycle(t *testing.T) {
	srv := startServer(t, embedded.Config{})
	c := New(srv.URL())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := c.CreateRequest(ctx, NewRequest{TableID: "5"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if req.Status != "pending" || req.TableName != "Table 5" || req.Type != "waiter" {
		t.Fatalf("unexpected request %+v", req)
	}
	bill, err := c.CreateRequest(ctx, NewRequest{TableID: "6", Type: "bill"})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}

	pending, err := c.ListPending(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}

	done, err := c.Complete(ctx, req.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != "completed" || done.CompletedAt == nil {
		t.Fatalf("unexpected completed request %+v", done)
	}
	if _, err := c.Cancel(ctx, bill.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	_, err = c.Cancel(ctx, bill.ID)
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.Status != http.StatusBadRequest || apiErr.Message != "Request cannot be cancelled" {
		t.Fatalf("expected 400 cannot be cancelled, got %v", err)
	}
	if _, err := c.Complete(ctx, 999); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	pending, err = c.ListPending(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending requests, got %d", len(pending))
	}
}

func TestClientQRCode(t *testing.T) {
	srv := startServer(t, embedded.Config{BaseURL: "https://cafe.example.com"})
	c := New(srv.URL())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	code, err := c.QRCode(ctx, "8", "Garden 8")
	if err != nil {
		t.Fatalf("qr: %v", err)
	}
	if code.CustomerURL != "https://cafe.example.com/customer/index.html?table_id=8&table_name=Garden+8" {
		t.Fatalf("unexpected link %s", code.CustomerURL)
	}
	png, err := code.PNG()
	if err != nil || len(png) == 0 {
		t.Fatalf("png: %v", err)
	}
}

func TestClientTenantScope(t *testing.T) {
	srv := startServer(t, embedded.Config{Tenants: map[string]string{"cafe-a": "Café A", "cafe-b": "Bistro B"}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := New(srv.URL(), WithTenant("cafe-a"))
	b := New(srv.URL(), WithTenant("cafe-b"))
	if _, err := a.CreateRequest(ctx, NewRequest{TableID: "1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	pending, err := b.ListPending(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("cafe-b saw cafe-a requests: %+v", pending)
	}

	_, err = New(srv.URL()).ListPending(ctx)
	if apiErr, ok := err.(*APIError); !ok || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 without tenant, got %v", err)
	}
}

func TestClientDecodesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Request not found"})
	}))
	defer srv.Close()

	_, err := New(srv.URL).Complete(context.Background(), 3)
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err.(*APIError).Message != "Request not found" {
		t.Fatalf("unexpected message %q", err.(*APIError).Message)
	}
}

func TestTableIDJSON(t *testing.T) {
	var r NewRequest
	if err := json.Unmarshal([]byte(`{"table_id":12}`), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.TableID != "12" {
		t.Fatalf("unexpected table id %q", r.TableID)
	}
	out, _ := json.Marshal(NewRequest{TableID: "patio"})
	if string(out) != `{"table_id":"patio"}` {
		t.Fatalf("unexpected json %s", out)
	}
}
