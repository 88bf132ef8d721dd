package notifications

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chukwumela909/taskhub-server/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const defaultFanOut = 8

// Dispatcher tells active taskers about new tasks in their categories.
// Delivery is best effort: failures are logged and never reported back.
type Dispatcher struct {
	taskers domain.TaskerDirectory
	sink    Sink
	logger  *log.Logger
	tracer  trace.Tracer
	fanOut  int
	now     func() time.Time
}

func NewDispatcher(taskers domain.TaskerDirectory, sink Sink, logger *log.Logger, tracer trace.Tracer) *Dispatcher {
	return &Dispatcher{
		taskers: taskers,
		sink:    sink,
		logger:  logger,
		tracer:  tracer,
		fanOut:  defaultFanOut,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) OnTaskCreated(ctx context.Context, task *domain.Task) {
	ctx, span := d.tracer.Start(ctx, "Dispatcher.OnTaskCreated")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", task.ID))

	taskers, err := d.taskers.FindByCategories(ctx, task.Categories)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		d.logger.Printf("failed to find taskers for task %s: %v\n", task.ID, err)
		return
	}
	if len(taskers) == 0 {
		d.logger.Printf("no matching taskers found for categories: %s\n", strings.Join(task.Categories, ", "))
		return
	}

	var delivered, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.fanOut)
	for _, tasker := range taskers {
		if task.IsOwnedBy(tasker.ID) {
			continue
		}
		n := d.newNotification(task, tasker)
		g.Go(func() error {
			if err := d.sink.Deliver(gctx, n); err != nil {
				failed.Add(1)
				d.logger.Printf("failed to notify tasker %s about task %s: %v\n", n.UserID, task.ID, err)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(attribute.Int64("notifications.delivered", delivered.Load()), attribute.Int64("notifications.failed", failed.Load()))
	d.logger.Printf("task %s: notified %d matching taskers, %d failed\n", task.ID, delivered.Load(), failed.Load())
}

func (d *Dispatcher) newNotification(task *domain.Task, tasker *domain.TaskerProfile) *Notification {
	var matches []string
	for _, c := range tasker.Categories {
		if task.HasCategory(c) {
			matches = append(matches, c)
		}
	}
	return &Notification{
		ID:        uuid.NewString(),
		UserID:    tasker.ID,
		TaskID:    task.ID,
		Message:   fmt.Sprintf("New %q task available: %q (matches: %s)", strings.Join(task.Categories, ", "), task.Title, strings.Join(matches, ", ")),
		CreatedAt: d.now(),
	}
}
