package queue

import (
	"context"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
)

// Producer sends export tasks to a queue backend.
type Producer interface {
	Enqueue(ctx context.Context, task domain.ExportTask) error
}

// Consumer receives export tasks and executes handlers. Delivery is
// at-least-once per task with no ordering guarantee across tasks; a
// handler error triggers redelivery with exponential backoff until the
// attempt cap, after which the task is retained on the dead-letter
// stream for inspection.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, domain.ExportTask) error) error
}
