package sqlite

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mistakeknot/tapcall/internal/core"
	"github.com/mistakeknot/tapcall/internal/storage"
)

var _ storage.Store = (*ResilientStore)(nil)

// ResilientStore runs every Store call through a CircuitBreaker and retries
// SQLite lock contention.
type ResilientStore struct {
	inner *Store
	cb    *CircuitBreaker
	retry RetryConfig
}

// NewResilient wraps inner with threshold=5, resetTimeout=30s.
func NewResilient(inner *Store, logger *zap.Logger) *ResilientStore {
	return NewResilientWithBreaker(inner, NewCircuitBreaker(5, 30*time.Second, countsAsStoreFailure), logger)
}

func NewResilientWithBreaker(inner *Store, cb *CircuitBreaker, logger *zap.Logger) *ResilientStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb.OnStateChange(func(from, to BreakerState) {
		logger.Warn("store circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	})
	return &ResilientStore{inner: inner, cb: cb, retry: DefaultRetryConfig()}
}

// countsAsStoreFailure separates infrastructure faults from domain outcomes
// that a healthy database also produces.
func countsAsStoreFailure(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, core.ErrNotFound),
		errors.Is(err, core.ErrInvalidTransition),
		errors.Is(err, core.ErrInvalidTenant),
		errors.Is(err, core.ErrInvalidInput),
		errors.Is(err, storage.ErrDuplicateID),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func (r *ResilientStore) CircuitBreakerState() string {
	return r.cb.State().String()
}

func (r *ResilientStore) Close() error {
	return r.inner.Close()
}

func (r *ResilientStore) do(ctx context.Context, fn func() error) error {
	return r.cb.Execute(func() error {
		return retryOnBusy(ctx, r.retry, fn)
	})
}

func (r *ResilientStore) Insert(ctx context.Context, req core.Request) (core.Request, error) {
	var out core.Request
	err := r.do(ctx, func() error {
		var err error
		out, err = r.inner.Insert(ctx, req)
		return err
	})
	return out, err
}

func (r *ResilientStore) Get(ctx context.Context, id int64) (core.Request, error) {
	var out core.Request
	err := r.do(ctx, func() error {
		var err error
		out, err = r.inner.Get(ctx, id)
		return err
	})
	return out, err
}

func (r *ResilientStore) List(ctx context.Context, f storage.Filter) ([]core.Request, error) {
	var out []core.Request
	err := r.do(ctx, func() error {
		var err error
		out, err = r.inner.List(ctx, f)
		return err
	})
	return out, err
}

func (r *ResilientStore) Update(ctx context.Context, id int64, fn storage.Mutator) (core.Request, error) {
	var out core.Request
	err := r.do(ctx, func() error {
		var err error
		out, err = r.inner.Update(ctx, id, fn)
		return err
	})
	return out, err
}

func (r *ResilientStore) Count(ctx context.Context) (int, error) {
	var out int
	err := r.do(ctx, func() error {
		var err error
		out, err = r.inner.Count(ctx)
		return err
	})
	return out, err
}
