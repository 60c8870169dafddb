package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mistakeknot/tapcall/internal/core"
)

func TestInsertAssignsIncreasingIDs(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	var last int64
	for i := 0; i < 5; i++ {
		r, err := st.Insert(ctx, core.Request{TableID: "1", Status: core.StatusPending})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		if r.ID <= last {
			t.Fatalf("expected id > %d, got %d", last, r.ID)
		}
		last = r.ID
	}
}

func TestInsertRejectsPresetID(t *testing.T) {
	st := NewInMemory()
	_, err := st.Insert(context.Background(), core.Request{ID: 9})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestGetUnknownIsNotFound(t *testing.T) {
	st := NewInMemory()
	if _, err := st.Get(context.Background(), 42); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListTenantScopedInInsertionOrder(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	_, _ = st.Insert(ctx, core.Request{TenantID: "cafe-a", TableID: "1", Status: core.StatusPending})
	_, _ = st.Insert(ctx, core.Request{TenantID: "cafe-b", TableID: "2", Status: core.StatusPending})
	_, _ = st.Insert(ctx, core.Request{TenantID: "cafe-a", TableID: "3", Status: core.StatusCompleted})
	_, _ = st.Insert(ctx, core.Request{TenantID: "cafe-a", TableID: "4", Status: core.StatusPending})

	got, err := st.List(ctx, Filter{TenantID: "cafe-a", Status: core.StatusPending})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].TableID != "1" || got[1].TableID != "4" {
		t.Fatalf("unexpected list result: %+v", got)
	}

	all, _ := st.List(ctx, Filter{})
	if len(all) != 4 {
		t.Fatalf("expected 4 records, got %d", len(all))
	}
}

func TestUpdateFailingMutatorLeavesRecord(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	r, _ := st.Insert(ctx, core.Request{TableID: "1", Status: core.StatusPending})

	boom := errors.New("boom")
	_, err := st.Update(ctx, r.ID, func(req *core.Request) error {
		req.Status = core.StatusCancelled
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutator error, got %v", err)
	}
	got, _ := st.Get(ctx, r.ID)
	if got.Status != core.StatusPending {
		t.Fatalf("record changed after failed mutation: %s", got.Status)
	}
}

func TestUpdateAppliesMutation(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	r, _ := st.Insert(ctx, core.Request{TableID: "1", Status: core.StatusPending})

	now := time.Now().UTC()
	updated, err := st.Update(ctx, r.ID, func(req *core.Request) error {
		req.Status = core.StatusCompleted
		req.CompletedAt = &now
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != core.StatusCompleted || updated.CompletedAt == nil {
		t.Fatalf("unexpected record: %+v", updated)
	}
	if _, err := st.Update(ctx, 999, func(*core.Request) error { return nil }); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n, _ := st.Count(ctx); n != 1 {
		t.Fatalf("expected count 1, got %d", n)
	}
}
