package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mistakeknot/tapcall/internal/core"
	"github.com/mistakeknot/tapcall/internal/storage"
)

func pending(tenant, table string) core.Request {
	return core.Request{
		TenantID:  tenant,
		TableID:   core.TableID(table),
		TableName: core.DefaultTableName(core.TableID(table)),
		Type:      core.TypeWaiter,
		Status:    core.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func TestInsertAndGet(t *testing.T) {
	st := NewSQLiteTest(t)
	ctx := context.Background()

	r, err := st.Insert(ctx, pending("", "5"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if r.ID != 1 {
		t.Fatalf("expected id 1, got %d", r.ID)
	}
	got, err := st.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TableID != "5" || got.TableName != "Table 5" || got.Status != core.StatusPending || got.CompletedAt != nil {
		t.Fatalf("unexpected record: %+v", got)
	}
	if _, err := st.Get(ctx, 99); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertRejectsPresetID(t *testing.T) {
	st := NewSQLiteTest(t)
	if _, err := st.Insert(context.Background(), core.Request{ID: 3}); !errors.Is(err, storage.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestListFiltersAndOrders(t *testing.T) {
	st := NewSQLiteTest(t)
	ctx := context.Background()
	for _, r := range []core.Request{pending("a", "1"), pending("b", "2"), pending("a", "3")} {
		if _, err := st.Insert(ctx, r); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	got, err := st.List(ctx, storage.Filter{TenantID: "a", Status: core.StatusPending})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].TableID != "1" || got[1].TableID != "3" {
		t.Fatalf("unexpected list: %+v", got)
	}

	odd, err := st.List(ctx, storage.Filter{Match: func(r core.Request) bool { return r.ID%2 == 1 }})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(odd) != 2 {
		t.Fatalf("expected 2 odd ids, got %d", len(odd))
	}
}

func TestUpdateTransitionAndRollback(t *testing.T) {
	st := NewSQLiteTest(t)
	ctx := context.Background()
	r, _ := st.Insert(ctx, pending("", "7"))

	_, err := st.Update(ctx, r.ID, func(req *core.Request) error {
		req.Status = core.StatusCancelled
		return core.ErrInvalidTransition
	})
	if !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("expected mutator error, got %v", err)
	}
	if got, _ := st.Get(ctx, r.ID); got.Status != core.StatusPending {
		t.Fatalf("rolled back update leaked: %s", got.Status)
	}

	now := time.Now().UTC()
	updated, err := st.Update(ctx, r.ID, func(req *core.Request) error {
		req.Status = core.StatusCompleted
		req.CompletedAt = &now
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := st.Get(ctx, r.ID)
	if got.Status != core.StatusCompleted || got.CompletedAt == nil || !got.CompletedAt.Equal(now) {
		t.Fatalf("unexpected stored record: %+v (returned %+v)", got, updated)
	}
	if _, err := st.Update(ctx, 404, func(*core.Request) error { return nil }); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentInsertsGetUniqueIDs(t *testing.T) {
	st := NewSQLiteTest(t)
	ctx := context.Background()

	const n = 50
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := st.Insert(ctx, pending("", "1"))
			if err != nil {
				t.Errorf("insert: %v", err)
				return
			}
			ids <- r.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if count, _ := st.Count(ctx); count != n {
		t.Fatalf("expected %d rows, got %d", n, count)
	}
}

func TestNewFileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tapcall.db")
	st, err := New(path, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer st.Close()
	if _, err := st.Insert(context.Background(), pending("", "1")); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestResilientStorePassesDomainErrors(t *testing.T) {
	rs := NewResilient(NewSQLiteTest(t), nil)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if _, err := rs.Get(ctx, 12345); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if rs.CircuitBreakerState() != "closed" {
		t.Fatalf("expected closed breaker, got %s", rs.CircuitBreakerState())
	}
	r, err := rs.Insert(ctx, pending("", "2"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if n, _ := rs.Count(ctx); n != 1 || r.ID != 1 {
		t.Fatalf("unexpected state: count=%d id=%d", n, r.ID)
	}
}
