package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chukwumela909/taskhub-server/domain"
	"github.com/chukwumela909/taskhub-server/geo"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultNotifyTimeout = 30 * time.Second

type CreateTaskCommand struct {
	OwnerID        string
	Title          string
	Description    string
	Categories     []string
	Tags           []string
	Images         []domain.Image
	Budget         decimal.Decimal
	BiddingEnabled bool
	Location       *geo.Point
	Deadline       *time.Time
}

// UpdateTaskCommand carries the fields to change. Nil fields are left as is.
type UpdateTaskCommand struct {
	TaskID         string
	OwnerID        string
	Title          *string
	Description    *string
	Categories     []string
	Tags           []string
	Images         []domain.Image
	Budget         *decimal.Decimal
	BiddingEnabled *bool
	Location       *geo.Point
	Deadline       *time.Time
}

type ChangeStatusCommand struct {
	TaskID  string
	ActorID string
	Status  domain.TaskStatus
}

type TaskListQuery struct {
	Status         *domain.TaskStatus
	Category       string
	BiddingEnabled *bool
	Page           int
	PageSize       int
}

type TaskPage struct {
	Tasks      domain.Tasks `json:"tasks"`
	Pagination Pagination   `json:"pagination"`
}

type TaskService struct {
	store         domain.Store
	categories    domain.CategoryDirectory
	notifier      domain.NotificationDispatcher
	logger        *log.Logger
	tracer        trace.Tracer
	now           func() time.Time
	notifyTimeout time.Duration
	inflight      sync.WaitGroup
}

func NewTaskService(store domain.Store, categories domain.CategoryDirectory, notifier domain.NotificationDispatcher, logger *log.Logger, tracer trace.Tracer) *TaskService {
	return &TaskService{
		store:         store,
		categories:    categories,
		notifier:      notifier,
		logger:        logger,
		tracer:        tracer,
		now:           func() time.Time { return time.Now().UTC() },
		notifyTimeout: defaultNotifyTimeout,
	}
}

func (s *TaskService) Create(ctx context.Context, cmd CreateTaskCommand) (_ *domain.Task, err error) {
	ctx, span := s.tracer.Start(ctx, "TaskService.Create")
	defer func() { endSpan(span, err) }()

	now := s.now()
	task := &domain.Task{
		OwnerID:        cmd.OwnerID,
		Title:          cmd.Title,
		Description:    cmd.Description,
		Categories:     dedupe(cmd.Categories),
		Tags:           orEmpty(cmd.Tags),
		Images:         cmd.Images,
		Budget:         cmd.Budget,
		BiddingEnabled: cmd.BiddingEnabled,
		Location:       cmd.Location,
		Deadline:       cmd.Deadline,
		Status:         domain.TaskOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if task.Images == nil {
		task.Images = []domain.Image{}
	}
	if err = task.Validate(now); err != nil {
		return nil, err
	}
	if err = s.checkCategories(ctx, task.Categories); err != nil {
		return nil, err
	}
	if err = s.store.Tasks().Insert(ctx, task); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("task.id", task.ID))
	s.logger.Printf("task %s created by %s\n", task.ID, task.OwnerID)

	s.notify(ctx, task)
	return task, nil
}

// notify hands the task to the dispatcher in the background. The request
// context only contributes its values: the dispatch outlives the request.
func (s *TaskService) notify(ctx context.Context, task *domain.Task) {
	if s.notifier == nil {
		return
	}
	snapshot := *task
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Printf("notification dispatch for task %s panicked: %v\n", snapshot.ID, r)
			}
		}()
		s.notifier.OnTaskCreated(ctx, &snapshot)
	}()
}

// Wait blocks until background notifications finish or ctx is done.
func (s *TaskService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *TaskService) checkCategories(ctx context.Context, ids []string) error {
	active, err := s.categories.ActiveCategories(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := active[id]; !ok {
			return fmt.Errorf("%w: category %q does not exist or is inactive", domain.ErrInvalidArgument(), id)
		}
	}
	return nil
}

func (s *TaskService) Get(ctx context.Context, id string) (_ *domain.Task, err error) {
	ctx, span := s.tracer.Start(ctx, "TaskService.Get")
	defer func() { endSpan(span, err) }()

	return s.store.Tasks().FindByID(ctx, id)
}

func (s *TaskService) List(ctx context.Context, query TaskListQuery) (_ *TaskPage, err error) {
	ctx, span := s.tracer.Start(ctx, "TaskService.List")
	defer func() { endSpan(span, err) }()

	filter := domain.TaskFilter{Status: query.Status, BiddingEnabled: query.BiddingEnabled}
	if query.Category != "" {
		filter.AnyCategory = []string{query.Category}
	}
	return s.find(ctx, filter, query.Page, query.PageSize)
}

func (s *TaskService) ListForOwner(ctx context.Context, ownerID string, status *domain.TaskStatus, page, pageSize int) (_ *TaskPage, err error) {
	ctx, span := s.tracer.Start(ctx, "TaskService.ListForOwner")
	defer func() { endSpan(span, err) }()

	return s.find(ctx, domain.TaskFilter{OwnerID: ownerID, Status: status}, page, pageSize)
}

func (s *TaskService) find(ctx context.Context, filter domain.TaskFilter, page, pageSize int) (*TaskPage, error) {
	page, pageSize = normalizePage(page, pageSize)
	tasks, total, err := s.store.Tasks().Find(ctx, filter, storePage(page, pageSize))
	if err != nil {
		return nil, err
	}
	return &TaskPage{Tasks: tasks, Pagination: newPagination(page, pageSize, total)}, nil
}

// ChangeStatus applies a manual transition. The write only succeeds if the
// task still has the status the transition was checked against.
func (s *TaskService) ChangeStatus(ctx context.Context, cmd ChangeStatusCommand) (_ *domain.Task, err error) {
	ctx, span := s.tracer.Start(ctx, "TaskService.ChangeStatus")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("task.id", cmd.TaskID), attribute.String("task.status", cmd.Status.String()))

	task, err := s.store.Tasks().FindByID(ctx, cmd.TaskID)
	if err != nil {
		return nil, err
	}
	if err = task.CheckTransition(cmd.ActorID, cmd.Status); err != nil {
		return nil, err
	}
	if err = s.store.Tasks().UpdateStatus(ctx, task.ID, task.Status, cmd.Status); err != nil {
		return nil, err
	}

	s.logger.Printf("task %s moved from %s to %s by %s\n", task.ID, task.Status, cmd.Status, cmd.ActorID)
	task.Status = cmd.Status
	if !cmd.Status.HasAssignee() {
		task.AssignedTasker = ""
	}
	task.UpdatedAt = s.now()
	return task, nil
}

// Update edits the requester-controlled fields of a task. The bidding mode
// is only switchable while the task is open and has no bids, and the budget
// of a fixed-price task is frozen once someone applied at that price. The
// bid count and the write share a transaction so a concurrent submit cannot
// pin a budget that is about to change.
func (s *TaskService) Update(ctx context.Context, cmd UpdateTaskCommand) (_ *domain.Task, err error) {
	ctx, span := s.tracer.Start(ctx, "TaskService.Update")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("task.id", cmd.TaskID))

	now := s.now()

	// fail fast outside the transaction; categories are not part of it
	task, err := s.store.Tasks().FindByID(ctx, cmd.TaskID)
	if err != nil {
		return nil, err
	}
	if _, err = s.prepareUpdate(ctx, s.store, task, cmd, now); err != nil {
		return nil, err
	}
	if cmd.Categories != nil {
		if err = s.checkCategories(ctx, dedupe(cmd.Categories)); err != nil {
			return nil, err
		}
	}

	var updated *domain.Task
	err = s.store.WithTransaction(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		task, err := uow.Tasks().FindByID(ctx, cmd.TaskID)
		if err != nil {
			return err
		}
		u, err := s.prepareUpdate(ctx, uow, task, cmd, now)
		if err != nil {
			return err
		}
		if err := uow.Tasks().Update(ctx, u); err != nil {
			return err
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// prepareUpdate checks cmd against task and returns the edited copy.
func (s *TaskService) prepareUpdate(ctx context.Context, uow domain.UnitOfWork, task *domain.Task, cmd UpdateTaskCommand, now time.Time) (*domain.Task, error) {
	if !task.IsOwnedBy(cmd.OwnerID) {
		return nil, fmt.Errorf("%w: you are not authorized to update this task", domain.ErrForbidden())
	}

	biddingChange := cmd.BiddingEnabled != nil && *cmd.BiddingEnabled != task.BiddingEnabled
	budgetChange := cmd.Budget != nil && !cmd.Budget.Equal(task.Budget)
	if biddingChange && task.Status != domain.TaskOpen {
		return nil, fmt.Errorf("%w: cannot modify bidding settings for a task that is %s", domain.ErrInvalidState(), task.Status)
	}
	if biddingChange || (budgetChange && !task.BiddingEnabled) {
		bids, err := uow.Bids().CountByTask(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		if bids > 0 && biddingChange {
			return nil, fmt.Errorf("%w: cannot modify bidding settings once the task has bids", domain.ErrInvalidOperation())
		}
		if bids > 0 {
			return nil, fmt.Errorf("%w: cannot change the budget of a fixed-price task that has applications", domain.ErrInvalidOperation())
		}
	}

	updated := *task
	if cmd.Title != nil {
		updated.Title = *cmd.Title
	}
	if cmd.Description != nil {
		updated.Description = *cmd.Description
	}
	if cmd.Categories != nil {
		updated.Categories = dedupe(cmd.Categories)
	}
	if cmd.Tags != nil {
		updated.Tags = cmd.Tags
	}
	if cmd.Images != nil {
		updated.Images = cmd.Images
	}
	if cmd.Budget != nil {
		updated.Budget = *cmd.Budget
	}
	if cmd.BiddingEnabled != nil {
		updated.BiddingEnabled = *cmd.BiddingEnabled
	}
	if cmd.Location != nil {
		updated.Location = cmd.Location
	}

	// an untouched deadline may have passed since creation
	updated.Deadline = cmd.Deadline
	if err := updated.Validate(now); err != nil {
		return nil, err
	}
	if cmd.Deadline == nil {
		updated.Deadline = task.Deadline
	}
	updated.UpdatedAt = now
	return &updated, nil
}

// Delete removes a task together with every bid on it. The owner can
// delete a task until work on it has started.
func (s *TaskService) Delete(ctx context.Context, taskID, ownerID string) (err error) {
	ctx, span := s.tracer.Start(ctx, "TaskService.Delete")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("task.id", taskID))

	var removed int64
	err = s.store.WithTransaction(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		task, err := uow.Tasks().FindByID(ctx, taskID)
		if err != nil {
			return err
		}
		if err := task.CheckDeletable(ownerID); err != nil {
			return err
		}
		if err := uow.Tasks().Delete(ctx, task.ID, task.Status); err != nil {
			return lostRace(err, "task changed while it was being deleted")
		}
		removed, err = uow.Bids().DeleteByTask(ctx, task.ID)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Printf("task %s deleted by %s, %d bids removed\n", taskID, ownerID, removed)
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
