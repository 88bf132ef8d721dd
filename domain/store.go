package domain

import (
	"context"

	"github.com/chukwumela909/taskhub-server/geo"
	"github.com/shopspring/decimal"
)

// Page selects a window of a sorted result set. A zero Limit means no limit.
type Page struct {
	Offset int
	Limit  int
}

// TaskFilter narrows task queries. Zero values do not filter.
type TaskFilter struct {
	Status         *TaskStatus
	OwnerID        string
	AnyCategory    []string
	BiddingEnabled *bool
	BudgetMin      *decimal.Decimal
	BudgetMax      *decimal.Decimal
	// Box restricts results to tasks whose location lies inside the box.
	// Tasks without a location never match a box.
	Box *geo.BoundingBox
}

type BidFilter struct {
	TaskerID string
	Status   *BidStatus
}

type TaskRepository interface {
	Insert(ctx context.Context, task *Task) error
	FindByID(ctx context.Context, id string) (*Task, error)
	// Find returns tasks matching filter, newest first, and the total number
	// of matches before paging.
	Find(ctx context.Context, filter TaskFilter, page Page) (Tasks, int64, error)
	// Update writes the requester-editable fields of task.
	Update(ctx context.Context, task *Task) error
	// UpdateStatus moves the task from one status to another and fails with
	// ErrConflict if the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to TaskStatus) error
	// Assign moves an open task to TaskAssigned with the given tasker and
	// fails with ErrConflict if the task is no longer open.
	Assign(ctx context.Context, id, taskerID string) error
	// ClaimOpen bumps the revision of an open task so that concurrent
	// writers to the same task serialize. It fails with ErrConflict and
	// ErrStaleWrite if the task is no longer open.
	ClaimOpen(ctx context.Context, id string) error
	// Delete removes the task while its stored status is still expected,
	// ErrConflict otherwise.
	Delete(ctx context.Context, id string, expected TaskStatus) error
}

type BidRepository interface {
	// Insert fails with ErrAlreadyExists if the tasker already bid on the task.
	Insert(ctx context.Context, bid *Bid) error
	FindByID(ctx context.Context, id string) (*Bid, error)
	ListByTask(ctx context.Context, taskID string) (Bids, error)
	ListByTasker(ctx context.Context, filter BidFilter, page Page) (Bids, int64, error)
	// FindByTaskerForTasks maps task id to the tasker's bid on it.
	FindByTaskerForTasks(ctx context.Context, taskerID string, taskIDs []string) (map[string]*Bid, error)
	CountByTask(ctx context.Context, taskID string) (int64, error)
	// UpdatePending writes amount and message of a pending bid and fails
	// with ErrConflict if the bid left BidPending meanwhile.
	UpdatePending(ctx context.Context, bid *Bid) error
	// DeletePending removes a pending bid, ErrConflict otherwise.
	DeletePending(ctx context.Context, id string) error
	// MarkAccepted moves a pending bid to BidAccepted, ErrConflict otherwise.
	MarkAccepted(ctx context.Context, id string) error
	// RejectOthers sets every other bid on the task to BidRejected.
	RejectOthers(ctx context.Context, taskID, exceptBidID string) (int64, error)
	// DeleteByTask removes every bid on the task whatever its status.
	DeleteByTask(ctx context.Context, taskID string) (int64, error)
}

// UnitOfWork exposes repositories bound to one transaction.
type UnitOfWork interface {
	Tasks() TaskRepository
	Bids() BidRepository
}

type Store interface {
	UnitOfWork
	// WithTransaction runs fn inside a single transaction that is committed
	// when fn returns nil and rolled back on any error or panic.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
	Close(ctx context.Context) error
}

type TaskerProfile struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Categories []string   `json:"categories"`
	Location   *geo.Point `json:"location,omitempty"`
	Active     bool       `json:"active"`
}

type TaskerDirectory interface {
	Profile(ctx context.Context, taskerID string) (*TaskerProfile, error)
	// FindByCategories returns active taskers sharing at least one category.
	FindByCategories(ctx context.Context, categories []string) ([]*TaskerProfile, error)
}

type CategoryDirectory interface {
	// ActiveCategories returns the subset of ids naming active categories.
	ActiveCategories(ctx context.Context, ids []string) (map[string]struct{}, error)
}

type NotificationDispatcher interface {
	OnTaskCreated(ctx context.Context, task *Task)
}
