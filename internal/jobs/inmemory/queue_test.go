package inmemory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ledgerline/ledgerline/internal/batch"
	"github.com/ledgerline/ledgerline/internal/jobs"
)

func TestQueueDeliversJobs(t *testing.T) {
	q := NewQueue(10, 2)
	defer q.Close()

	var mu sync.Mutex
	seen := map[string]bool{}
	done := make(chan struct{}, 3)

	handler := func(_ context.Context, job *jobs.Job) error {
		mu.Lock()
		seen[job.Payload.BatchItemID] = true
		mu.Unlock()
		done <- struct{}{}
		return nil
	}

	ctx := context.Background()
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for _, id := range []string{"i1", "i2", "i3"} {
		err := q.Publish(ctx, &jobs.Job{Payload: batch.JobPayload{BatchItemID: id}})
		if err != nil {
			t.Fatalf("Publish(%s): %v", id, err)
		}
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for deliveries")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Errorf("seen = %v, want all three items", seen)
	}
}

func TestQueueRetriesWithBackoff(t *testing.T) {
	q := NewQueue(10, 1)
	defer q.Close()

	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})

	handler := func(_ context.Context, _ *jobs.Job) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 2 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}

	ctx := context.Background()
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := q.Publish(ctx, &jobs.Job{Payload: batch.JobPayload{BatchItemID: "i1"}, MaxRetries: 3}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not redelivered")
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestQueueStopsRetryingAtBudget(t *testing.T) {
	q := NewQueue(10, 1)
	defer q.Close()

	var mu sync.Mutex
	attempts := 0

	handler := func(_ context.Context, _ *jobs.Job) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("always fails")
	}

	ctx := context.Background()
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := q.Publish(ctx, &jobs.Job{Payload: batch.JobPayload{BatchItemID: "i1"}, MaxRetries: 1}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// 1 initial attempt + 1 retry at 1s backoff.
	time.Sleep(2500 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2 (initial + one retry)", attempts)
	}
}

func TestQueuePublishAfterClose(t *testing.T) {
	q := NewQueue(1, 1)
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	err := q.Publish(context.Background(), &jobs.Job{})
	if err == nil {
		t.Error("Publish after Close = nil, want error")
	}
}

func TestQueueDefaults(t *testing.T) {
	q := NewQueue(1, 1)
	defer q.Close()

	job := &jobs.Job{Payload: batch.JobPayload{BatchItemID: "i1"}}
	if err := q.Publish(context.Background(), job); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if job.JobID == "" {
		t.Error("JobID not assigned")
	}
	if job.Status != jobs.StatusPending {
		t.Errorf("Status = %s, want pending", job.Status)
	}
	if job.MaxRetries != defaultMaxRetries {
		t.Errorf("MaxRetries = %d, want default %d", job.MaxRetries, defaultMaxRetries)
	}
}
