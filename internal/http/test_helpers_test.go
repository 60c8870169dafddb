package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mistakeknot/tapcall/internal/metrics"
	"github.com/mistakeknot/tapcall/internal/qr"
	"github.com/mistakeknot/tapcall/internal/service"
	"github.com/mistakeknot/tapcall/internal/storage"
	"github.com/mistakeknot/tapcall/internal/tenant"
	"github.com/mistakeknot/tapcall/internal/ws"
)

// testEnv bundles a request service, hub and httptest.Server for handler tests.
type testEnv struct {
	srv     *httptest.Server
	hub     *ws.Hub
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithTenants(t, tenant.Disabled())
}

func newTestEnvWithTenants(t *testing.T, reg *tenant.Registry) *testEnv {
	t.Helper()
	m := metrics.New()
	hub := ws.NewHub(ws.WithTenants(reg), ws.WithMetrics(m))
	requests := service.New(storage.NewInMemory(),
		service.WithPublisher(hub),
		service.WithTenants(reg),
		service.WithMetrics(m))
	gen := qr.NewGenerator(qr.Options{
		BaseURL:    "http://localhost:3000",
		Size:       128,
		ScanText:   "Scan to call waiter",
		FooterText: "Powered by TapCall",
		Metrics:    m,
	})
	router := NewRouter(NewService(requests, gen), RouterOptions{WS: hub.Handler(), Metrics: m})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, hub: hub, metrics: m}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(e.srv.URL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func (e *testEnv) put(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, e.srv.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT %s: %v", path, err)
	}
	return resp
}

// dialWS subscribes to the hub and waits for the subscription to register.
func (e *testEnv) dialWS(t *testing.T, tenantID string) *websocket.Conn {
	t.Helper()
	before := e.hub.Count()
	wsURL := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws?tenant_id=" + tenantID
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for e.hub.Count() <= before {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

type wsEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readWSEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var ev wsEvent
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d", want, resp.StatusCode)
	}
}
