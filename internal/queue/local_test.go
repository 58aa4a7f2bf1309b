package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
)

func TestLocalQueueDeliversTask(t *testing.T) {
	q := NewLocalQueue(8, 3, time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan domain.ExportTask, 1)
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, task domain.ExportTask) error {
			received <- task
			return nil
		})
	}()

	if err := q.Enqueue(ctx, domain.ExportTask{JobID: "job-1", LeadID: "lead-1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case task := <-received:
		if task.JobID != "job-1" {
			t.Fatalf("expected job-1, got %s", task.JobID)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for delivery")
	}
}

func TestLocalQueueRetriesWithIncrementedAttempt(t *testing.T) {
	q := NewLocalQueue(8, 3, time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := make(chan int, 4)
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, task domain.ExportTask) error {
			attempts <- task.Attempt
			if task.Attempt == 0 {
				return errors.New("transient")
			}
			return nil
		})
	}()

	if err := q.Enqueue(ctx, domain.ExportTask{JobID: "job-1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for _, want := range []int{0, 1} {
		select {
		case got := <-attempts:
			if got != want {
				t.Fatalf("expected attempt %d, got %d", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for attempt %d", want)
		}
	}
	if q.DLQSize() != 0 {
		t.Fatalf("expected empty DLQ after successful retry, got %d", q.DLQSize())
	}
}

func TestLocalQueueExhaustedAttemptsGoToDLQ(t *testing.T) {
	q := NewLocalQueue(8, 3, time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled atomic.Int32
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, _ domain.ExportTask) error {
			handled.Add(1)
			return errors.New("permanent failure")
		})
	}()

	if err := q.Enqueue(ctx, domain.ExportTask{JobID: "job-doomed"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if q.DLQSize() == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if q.DLQSize() != 1 {
		t.Fatalf("expected one DLQ entry, got %d", q.DLQSize())
	}
	// Attempts 0, 1 and 2 were delivered; attempt 3 hit the cap.
	if got := handled.Load(); got != 3 {
		t.Fatalf("expected 3 handler invocations, got %d", got)
	}
}

func TestRetryDelayDoublesPerAttempt(t *testing.T) {
	base := 2 * time.Second
	cases := map[int]time.Duration{
		1: 2 * time.Second,
		2: 4 * time.Second,
		3: 8 * time.Second,
	}
	for attempt, want := range cases {
		if got := retryDelay(base, attempt); got != want {
			t.Fatalf("retryDelay(%d) = %v, want %v", attempt, got, want)
		}
	}
}
