package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/ledgerline/ledgerline/internal/store"
)

func TestTransitionItemCAS(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateItem(ctx, &store.BatchItem{ID: "i1", BatchID: "b1", Status: store.ItemQueued}); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	ok, err := s.TransitionItem(ctx, "i1", store.ItemQueued, store.ItemProcessing)
	if err != nil || !ok {
		t.Fatalf("first transition = %v, %v; want true, nil", ok, err)
	}

	// Second identical transition must fail the CAS.
	ok, err = s.TransitionItem(ctx, "i1", store.ItemQueued, store.ItemProcessing)
	if err != nil {
		t.Fatalf("second transition error = %v", err)
	}
	if ok {
		t.Error("second transition = true, want false (item no longer queued)")
	}
}

func TestTransitionItemConcurrentSingleWinner(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.CreateItem(ctx, &store.BatchItem{ID: "i1", BatchID: "b1", Status: store.ItemQueued}); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	const racers = 16
	wins := make(chan bool, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.TransitionItem(ctx, "i1", store.ItemQueued, store.ItemProcessing)
			if err != nil {
				t.Errorf("TransitionItem: %v", err)
				return
			}
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for ok := range wins {
		if ok {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
}

func TestFinishItemRejectsNonTerminal(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.CreateItem(ctx, &store.BatchItem{ID: "i1", BatchID: "b1"}); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	if err := s.FinishItem(ctx, "i1", store.ItemProcessing, "", ""); err == nil {
		t.Error("FinishItem(processing) error = nil, want error")
	}
	if err := s.FinishItem(ctx, "i1", store.ItemCompleted, "", "doc-1"); err != nil {
		t.Errorf("FinishItem(completed) error = %v", err)
	}

	item, _ := s.GetItem(ctx, "i1")
	if item.Status != store.ItemCompleted || item.DocumentID != "doc-1" {
		t.Errorf("item = %+v", item)
	}
}

func TestGetItemReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.CreateItem(ctx, &store.BatchItem{ID: "i1", BatchID: "b1", FileName: "a.csv"}); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	item, _ := s.GetItem(ctx, "i1")
	item.FileName = "mutated.csv"

	again, _ := s.GetItem(ctx, "i1")
	if again.FileName != "a.csv" {
		t.Error("store state mutated through a returned copy")
	}
}

func TestListItemsOrdered(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, it := range []*store.BatchItem{
		{ID: "i2", BatchID: "b1", Order: 2},
		{ID: "i0", BatchID: "b1", Order: 0},
		{ID: "i1", BatchID: "b1", Order: 1},
		{ID: "other", BatchID: "b2", Order: 0},
	} {
		if err := s.CreateItem(ctx, it); err != nil {
			t.Fatalf("CreateItem: %v", err)
		}
	}

	items, err := s.ListItems(ctx, "b1")
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}
	for i, item := range items {
		if item.Order != i {
			t.Errorf("items[%d].Order = %d, want %d", i, item.Order, i)
		}
	}
}

func TestFileHashScopedByUser(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.RecordFileHash(ctx, "u1", "abc", "doc-1"); err != nil {
		t.Fatalf("RecordFileHash: %v", err)
	}

	got, err := s.FindFileHash(ctx, "u1", "abc")
	if err != nil || got != "doc-1" {
		t.Errorf("FindFileHash(u1) = %q, %v; want doc-1", got, err)
	}

	// Same checksum under another user is not a duplicate.
	got, err = s.FindFileHash(ctx, "u2", "abc")
	if err != nil || got != "" {
		t.Errorf("FindFileHash(u2) = %q, %v; want empty", got, err)
	}
}

func TestCancelBatch(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.CreateBatch(ctx, &store.Batch{ID: "b1", UserID: "u1"}); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	if err := s.CancelBatch(ctx, "b1"); err != nil {
		t.Fatalf("CancelBatch: %v", err)
	}
	b, _ := s.GetBatch(ctx, "b1")
	if !b.Cancelled {
		t.Error("Cancelled = false, want true")
	}
}
