package httpapi

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/mistakeknot/tapcall/internal/tenant"
)

func TestQRDataURL(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/api/qr-dataurl/12?table_name="+url.QueryEscape("Window 12"))
	requireStatus(t, resp, http.StatusOK)
	out := decodeJSON[qrDataURLResponse](t, resp)
	if !out.Success || out.TableID != "12" || out.TableName != "Window 12" {
		t.Fatalf("unexpected response %+v", out)
	}
	if out.CustomerURL != "http://localhost:3000/customer/index.html?table_id=12&table_name=Window+12" {
		t.Fatalf("unexpected customer url %s", out.CustomerURL)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(out.DataURL, "data:image/png;base64,"))
	if err != nil {
		t.Fatalf("decode data url: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(raw)); err != nil {
		t.Fatalf("not a png: %v", err)
	}
}

func TestQRDataURLCustomBaseAndDecoration(t *testing.T) {
	env := newTestEnv(t)

	q := url.Values{}
	q.Set("custom_url", "https://cafe.example.com")
	q.Set("business", "Café A")
	q.Set("decorate", "true")
	resp := env.get(t, "/api/qr-dataurl/3?"+q.Encode())
	requireStatus(t, resp, http.StatusOK)
	out := decodeJSON[qrDataURLResponse](t, resp)
	if !strings.HasPrefix(out.CustomerURL, "https://cafe.example.com/customer/index.html?table_id=3") {
		t.Fatalf("custom url ignored: %s", out.CustomerURL)
	}
	if out.TableName != "Table 3" {
		t.Fatalf("expected default table name, got %s", out.TableName)
	}
}

func TestQRDownload(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/api/qr-download/4")
	requireStatus(t, resp, http.StatusOK)
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content type %s", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="table-4-qr.png"` {
		t.Fatalf("unexpected disposition %s", cd)
	}
	body, _ := io.ReadAll(resp.Body)
	if _, err := png.Decode(bytes.NewReader(body)); err != nil {
		t.Fatalf("not a png: %v", err)
	}
}

func TestQRTenantValidation(t *testing.T) {
	reg, err := tenant.NewRegistry(true, tenant.Tenant{ID: "cafe-a"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	env := newTestEnvWithTenants(t, reg)

	resp := env.get(t, "/api/qr-download/1?tenant_id=cafe-z")
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = env.get(t, "/api/qr-dataurl/1?tenant_id=cafe-a")
	requireStatus(t, resp, http.StatusOK)
	out := decodeJSON[qrDataURLResponse](t, resp)
	if !strings.HasSuffix(out.CustomerURL, "&tenant_id=cafe-a") {
		t.Fatalf("tenant missing from link: %s", out.CustomerURL)
	}
}

func TestQRRenderFailure(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/api/qr-dataurl/1?table_name="+strings.Repeat("x", 5000))
	requireStatus(t, resp, http.StatusInternalServerError)
	out := decodeJSON[errorResponse](t, resp)
	if out.Error != "failed to generate QR code" {
		t.Fatalf("unexpected error %q", out.Error)
	}
}
