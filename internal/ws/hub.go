package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mistakeknot/tapcall/internal/core"
	"github.com/mistakeknot/tapcall/internal/logging"
	"github.com/mistakeknot/tapcall/internal/metrics"
	"github.com/mistakeknot/tapcall/internal/tenant"
)

const (
	defaultBufferSize   = 64
	defaultWriteTimeout = 5 * time.Second
)

// Hub fans every published event out to the subscribers of the event's
// tenant scope. Delivery is best-effort with no replay: a subscriber that
// cannot keep up is dropped.
type Hub struct {
	pubMu sync.Mutex // one broadcast at a time keeps per-subscriber order

	mu   sync.RWMutex
	subs map[*Subscription]struct{}

	bufferSize   int
	writeTimeout time.Duration
	tenants      *tenant.Registry
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

type Option func(*Hub)

func WithBufferSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithTenants makes the websocket handler validate the tenant_id query
// parameter against reg.
func WithTenants(reg *tenant.Registry) Option {
	return func(h *Hub) { h.tenants = reg }
}

func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) { h.logger = logging.OrNop(l) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs:         make(map[*Subscription]struct{}),
		bufferSize:   defaultBufferSize,
		writeTimeout: defaultWriteTimeout,
		tenants:      tenant.Disabled(),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscription is one subscriber's ordered event stream.
type Subscription struct {
	ID       string
	TenantID string

	hub  *Hub
	ch   chan core.Event
	once sync.Once
}

// Events is closed when the subscription ends, either by Close or because
// the subscriber fell behind.
func (s *Subscription) Events() <-chan core.Event {
	return s.ch
}

func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Subscribe registers a subscriber for tenantID ("" in single-tenant mode).
func (h *Hub) Subscribe(tenantID string) *Subscription {
	sub := &Subscription{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		hub:      h,
		ch:       make(chan core.Event, h.bufferSize),
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	h.setGauge(n)
	h.logger.Debug("subscriber connected", zap.String("subscriber", sub.ID), zap.String("tenant_id", tenantID))
	return sub
}

// Publish delivers ev to every current subscriber whose scope matches.
func (h *Hub) Publish(ev core.Event) {
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	if h.metrics != nil {
		h.metrics.HubEventsTotal.WithLabelValues(string(ev.Type)).Inc()
	}

	var lagging []*Subscription
	h.mu.RLock()
	for sub := range h.subs {
		if sub.TenantID != ev.TenantID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			lagging = append(lagging, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range lagging {
		h.logger.Warn("dropping slow subscriber", zap.String("subscriber", sub.ID), zap.String("tenant_id", sub.TenantID))
		if h.metrics != nil {
			h.metrics.HubDroppedTotal.Inc()
		}
		h.remove(sub)
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) remove(sub *Subscription) {
	sub.once.Do(func() {
		h.mu.Lock()
		delete(h.subs, sub)
		// closing under the write lock: Publish only sends while holding the read lock
		close(sub.ch)
		n := len(h.subs)
		h.mu.Unlock()

		h.setGauge(n)
		h.logger.Debug("subscriber disconnected", zap.String("subscriber", sub.ID))
	})
}

func (h *Hub) setGauge(n int) {
	if h.metrics != nil {
		h.metrics.HubSubscribers.Set(float64(n))
	}
}
