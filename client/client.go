// Package client provides a Go client for the TapCall request board.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Tenant  string
}

type Option func(*Client)

// WithTenant scopes every call to one café.
func WithTenant(tenantID string) Option {
	return func(c *Client) {
		c.Tenant = strings.TrimSpace(tenantID)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.HTTP = httpClient
		}
	}
}

// TableID is a table identifier that may travel as a JSON number or string.
type TableID string

func (t TableID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(t), 10, 64); err == nil {
		return json.Marshal(n)
	}
	return json.Marshal(string(t))
}

func (t *TableID) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*t = TableID(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = TableID(s)
	return nil
}

type Request struct {
	ID          int64      `json:"id"`
	TenantID    string     `json:"tenant_id,omitempty"`
	TableID     TableID    `json:"table_id"`
	TableName   string     `json:"table_name"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewRequest is the body of a customer call. Type defaults to "waiter".
type NewRequest struct {
	TableID   TableID `json:"table_id"`
	TableName string  `json:"table_name,omitempty"`
	Type      string  `json:"type,omitempty"`
	TenantID  string  `json:"tenant_id,omitempty"`
}

type QRCode struct {
	DataURL     string  `json:"dataUrl"`
	CustomerURL string  `json:"customerUrl"`
	TableID     TableID `json:"tableId"`
	TableName   string  `json:"tableName"`
}

// PNG decodes the embedded data URL.
func (q QRCode) PNG() ([]byte, error) {
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(q.DataURL, prefix) {
		return nil, fmt.Errorf("unexpected data url prefix")
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(q.DataURL, prefix))
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tapcall: %d %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) CreateRequest(ctx context.Context, req NewRequest) (Request, error) {
	if req.TenantID == "" {
		req.TenantID = c.Tenant
	}
	var out struct {
		Request Request `json:"request"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/requests", req, &out); err != nil {
		return Request{}, err
	}
	return out.Request, nil
}

// ListPending returns the pending requests, oldest first.
func (c *Client) ListPending(ctx context.Context) ([]Request, error) {
	path := "/api/requests"
	if c.Tenant != "" {
		path += "?tenant_id=" + url.QueryEscape(c.Tenant)
	}
	var out struct {
		Requests []Request `json:"requests"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Requests, nil
}

func (c *Client) Complete(ctx context.Context, id int64) (Request, error) {
	return c.transition(ctx, id, "complete")
}

func (c *Client) Cancel(ctx context.Context, id int64) (Request, error) {
	return c.transition(ctx, id, "cancel")
}

func (c *Client) transition(ctx context.Context, id int64, action string) (Request, error) {
	var out struct {
		Request Request `json:"request"`
	}
	path := fmt.Sprintf("/api/requests/%d/%s", id, action)
	if err := c.do(ctx, http.MethodPut, path, nil, &out); err != nil {
		return Request{}, err
	}
	return out.Request, nil
}

// QRCode fetches the code for a table. An empty tableName uses the server default.
func (c *Client) QRCode(ctx context.Context, tableID, tableName string) (QRCode, error) {
	values := url.Values{}
	if tableName != "" {
		values.Set("table_name", tableName)
	}
	if c.Tenant != "" {
		values.Set("tenant_id", c.Tenant)
	}
	path := "/api/qr-dataurl/" + url.PathEscape(tableID)
	if len(values) > 0 {
		path += "?" + values.Encode()
	}
	var out QRCode
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return QRCode{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var fail struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&fail)
		return &APIError{Status: resp.StatusCode, Message: fail.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
