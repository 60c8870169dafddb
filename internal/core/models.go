package core

import (
	"encoding/json"
	"strconv"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// RequestType is an open enumeration: unknown values are stored verbatim.
type RequestType string

const (
	TypeWaiter RequestType = "waiter"
	TypeBill   RequestType = "bill"
)

type EventType string

const (
	EventRequestCreated   EventType = "new-request"
	EventRequestCompleted EventType = "request-completed"
	EventRequestCancelled EventType = "request-cancelled"
)

// TableID identifies the originating table. Numeric ids are echoed back as
// JSON numbers, everything else as strings.
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

func (t TableID) String() string { return string(t) }

type Request struct {
	ID          int64       `json:"id"`
	TenantID    string      `json:"tenant_id,omitempty"`
	TableID     TableID     `json:"table_id"`
	TableName   string      `json:"table_name"`
	Type        RequestType `json:"type"`
	Status      Status      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// DefaultTableName is the display name used when none is supplied.
func DefaultTableName(table TableID) string {
	return "Table " + string(table)
}

// Event is one broadcast unit. Data is the full record for creation events
// and the request id for completion and cancellation.
type Event struct {
	Type     EventType
	TenantID string
	Data     any
}
