package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
)

// LocalQueue is a fallback queue used when Redis is not configured.
// It mirrors the streams queue's retry policy with an in-memory DLQ.
type LocalQueue struct {
	ch          chan domain.ExportTask
	maxAttempts int
	backoffBase time.Duration
	logger      *log.Logger

	dlqMu sync.Mutex
	dlq   []domain.ExportTask
}

func NewLocalQueue(bufferSize, maxAttempts int, backoffBase time.Duration, logger *log.Logger) *LocalQueue {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoffBase <= 0 {
		backoffBase = 2 * time.Second
	}
	return &LocalQueue{
		ch:          make(chan domain.ExportTask, bufferSize),
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		logger:      logger,
		dlq:         make([]domain.ExportTask, 0),
	}
}

func (q *LocalQueue) Enqueue(ctx context.Context, task domain.ExportTask) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- task:
		return nil
	}
}

func (q *LocalQueue) Consume(ctx context.Context, handler func(context.Context, domain.ExportTask) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-q.ch:
			err := handler(ctx, task)
			if err == nil {
				continue
			}

			task.Attempt++
			if task.Attempt >= q.maxAttempts {
				q.dlqMu.Lock()
				q.dlq = append(q.dlq, task)
				q.dlqMu.Unlock()
				if q.logger != nil {
					q.logger.Printf("local queue moved task to DLQ job_id=%s err=%v", task.JobID, err)
				}
				continue
			}

			delay := retryDelay(q.backoffBase, task.Attempt)
			go func(retryTask domain.ExportTask) {
				timer := time.NewTimer(delay)
				defer timer.Stop()
				select {
				case <-ctx.Done():
					return
				case <-timer.C:
					q.ch <- retryTask
				}
			}(task)
		}
	}
}

func (q *LocalQueue) DLQSize() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return len(q.dlq)
}
