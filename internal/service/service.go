// Package service owns the request lifecycle: it is the only writer to the
// store and the only publisher of request events.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mistakeknot/tapcall/internal/core"
	"github.com/mistakeknot/tapcall/internal/logging"
	"github.com/mistakeknot/tapcall/internal/metrics"
	"github.com/mistakeknot/tapcall/internal/storage"
	"github.com/mistakeknot/tapcall/internal/tenant"
)

// Publisher receives one event per successful mutation.
type Publisher interface {
	Publish(ev core.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(core.Event) {}

type Service struct {
	store   storage.Store
	bus     Publisher
	tenants *tenant.Registry
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	// held across mutate+publish so subscribers see events in mutation order
	pubMu sync.Mutex
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.bus = p
		}
	}
}

func WithTenants(r *tenant.Registry) Option {
	return func(s *Service) {
		if r != nil {
			s.tenants = r
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(l) }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store storage.Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		bus:     nopPublisher{},
		tenants: tenant.Disabled(),
		logger:  zap.NewNop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tenants exposes the registry the service validates against.
func (s *Service) Tenants() *tenant.Registry {
	return s.tenants
}

type CreateInput struct {
	TenantID  string
	TableID   core.TableID
	TableName string
	Type      core.RequestType
}

func (s *Service) CreateRequest(ctx context.Context, in CreateInput) (core.Request, error) {
	table := core.TableID(strings.TrimSpace(string(in.TableID)))
	if table == "" {
		return core.Request{}, fmt.Errorf("table_id is required: %w", core.ErrInvalidInput)
	}
	tenantID, err := s.tenants.Resolve(in.TenantID)
	if err != nil {
		return core.Request{}, err
	}
	name := strings.TrimSpace(in.TableName)
	if name == "" {
		name = core.DefaultTableName(table)
	}
	typ := core.RequestType(strings.TrimSpace(string(in.Type)))
	if typ == "" {
		typ = core.TypeWaiter
	}

	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	req, err := s.store.Insert(ctx, core.Request{
		TenantID:  tenantID,
		TableID:   table,
		TableName: name,
		Type:      typ,
		Status:    core.StatusPending,
		CreatedAt: s.now(),
	})
	if err != nil {
		return core.Request{}, fmt.Errorf("create request: %w", err)
	}
	s.bus.Publish(core.Event{Type: core.EventRequestCreated, TenantID: tenantID, Data: req})

	if s.metrics != nil {
		s.metrics.RequestsCreatedTotal.WithLabelValues(string(typ)).Inc()
	}
	s.logger.Info("request created",
		zap.Int64("request_id", req.ID),
		zap.String("table_id", string(table)),
		zap.String("type", string(typ)),
		zap.String("tenant_id", tenantID))
	return req, nil
}

// ListPending returns pending requests oldest first, scoped to tenantID when
// tenancy is enabled.
func (s *Service) ListPending(ctx context.Context, tenantID string) ([]core.Request, error) {
	scope, err := s.tenants.Resolve(tenantID)
	if err != nil {
		return nil, err
	}
	out, err := s.store.List(ctx, storage.Filter{Status: core.StatusPending, TenantID: scope})
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return out, nil
}

// CompleteRequest moves a pending request to completed.
func (s *Service) CompleteRequest(ctx context.Context, id int64) (core.Request, error) {
	req, err := s.transition(ctx, id, core.StatusCompleted, core.EventRequestCompleted)
	if err != nil {
		return core.Request{}, err
	}
	if s.metrics != nil {
		s.metrics.RequestsCompletedTotal.Inc()
	}
	return req, nil
}

// CancelRequest moves a pending request to cancelled.
func (s *Service) CancelRequest(ctx context.Context, id int64) (core.Request, error) {
	req, err := s.transition(ctx, id, core.StatusCancelled, core.EventRequestCancelled)
	if err != nil {
		return core.Request{}, err
	}
	if s.metrics != nil {
		s.metrics.RequestsCancelledTotal.Inc()
	}
	return req, nil
}

// Stats returns the total number of requests ever created.
func (s *Service) Stats(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

func (s *Service) transition(ctx context.Context, id int64, to core.Status, ev core.EventType) (core.Request, error) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	now := s.now()
	req, err := s.store.Update(ctx, id, func(r *core.Request) error {
		if r.Status != core.StatusPending {
			return fmt.Errorf("request %d is %s: %w", id, r.Status, core.ErrInvalidTransition)
		}
		r.Status = to
		r.CompletedAt = &now
		return nil
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.TransitionsRejected.WithLabelValues(string(to)).Inc()
		}
		s.logger.Debug("transition rejected", zap.Int64("request_id", id), zap.String("to", string(to)), zap.Error(err))
		return core.Request{}, err
	}
	s.bus.Publish(core.Event{Type: ev, TenantID: req.TenantID, Data: req.ID})

	s.logger.Info("request "+string(to),
		zap.Int64("request_id", req.ID),
		zap.String("table_id", string(req.TableID)),
		zap.String("tenant_id", req.TenantID))
	return req, nil
}
