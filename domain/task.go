package domain

import (
	"fmt"
	"time"

	"github.com/chukwumela909/taskhub-server/geo"
	"github.com/shopspring/decimal"
)

func init() {
	// budgets and amounts travel as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in-progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

func (s TaskStatus) String() string {
	return string(s)
}

func TaskStatusFromString(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case TaskOpen, TaskAssigned, TaskInProgress, TaskCompleted, TaskCancelled:
		return TaskStatus(s), nil
	default:
		return "", fmt.Errorf("%w: unknown task status %q", errInvalidArgument, s)
	}
}

// HasAssignee reports whether a task in this status must carry an assigned tasker.
func (s TaskStatus) HasAssignee() bool {
	return s == TaskAssigned || s == TaskInProgress || s == TaskCompleted
}

type Image struct {
	URL string `bson:"url" json:"url"`
}

type Task struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"owner"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Categories     []string        `json:"categories"`
	Tags           []string        `json:"tags"`
	Images         []Image         `json:"images"`
	Budget         decimal.Decimal `json:"budget"`
	BiddingEnabled bool            `json:"biddingEnabled"`
	Location       *geo.Point      `json:"location,omitempty"`
	Deadline       *time.Time      `json:"deadline,omitempty"`
	Status         TaskStatus      `json:"status"`
	AssignedTasker string          `json:"assignedTasker,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type Tasks []*Task

func (t *Task) IsOwnedBy(userID string) bool {
	return userID != "" && t.OwnerID == userID
}

func (t *Task) IsAssignedTo(userID string) bool {
	return userID != "" && t.AssignedTasker == userID
}

func (t *Task) HasCategory(id string) bool {
	for _, c := range t.Categories {
		if c == id {
			return true
		}
	}
	return false
}

// SharesCategory reports whether the task and the given set overlap.
func (t *Task) SharesCategory(ids []string) bool {
	for _, id := range ids {
		if t.HasCategory(id) {
			return true
		}
	}
	return false
}

// BidType is the type every bid on this task gets.
func (t *Task) BidType() BidType {
	if t.BiddingEnabled {
		return BidCustom
	}
	return BidFixed
}

// ApplicationDescriptor tells a tasker how they can apply to a task.
type ApplicationDescriptor struct {
	ApplicationMode string           `json:"applicationMode"`
	PriceEditable   bool             `json:"priceEditable"`
	FixedPrice      *decimal.Decimal `json:"fixedPrice,omitempty"`
}

func (t *Task) Application() ApplicationDescriptor {
	if t.BiddingEnabled {
		return ApplicationDescriptor{ApplicationMode: "bidding", PriceEditable: true}
	}
	price := t.Budget
	return ApplicationDescriptor{ApplicationMode: "fixed", PriceEditable: false, FixedPrice: &price}
}

// CheckTransition decides whether actorID may move the task to status to.
// Entering TaskAssigned is never allowed here: that only happens by
// accepting a bid.
func (t *Task) CheckTransition(actorID string, to TaskStatus) error {
	switch to {
	case TaskAssigned:
		return fmt.Errorf("%w: tasks are assigned by accepting a bid", errForbidden)
	case TaskCancelled:
		if !t.IsOwnedBy(actorID) {
			return fmt.Errorf("%w: only the task owner can cancel a task", errForbidden)
		}
		switch t.Status {
		case TaskInProgress, TaskCompleted, TaskCancelled:
			return fmt.Errorf("%w: cannot cancel a task that is %s", errInvalidState, t.Status)
		}
		return nil
	case TaskInProgress:
		if !t.IsAssignedTo(actorID) {
			return fmt.Errorf("%w: only the assigned tasker can start a task", errForbidden)
		}
		if t.Status != TaskAssigned {
			return fmt.Errorf("%w: cannot change status from '%s' to '%s'", errInvalidState, t.Status, to)
		}
		return nil
	case TaskCompleted:
		if !t.IsAssignedTo(actorID) {
			return fmt.Errorf("%w: only the assigned tasker can complete a task", errForbidden)
		}
		if t.Status != TaskInProgress {
			return fmt.Errorf("%w: cannot change status from '%s' to '%s'", errInvalidState, t.Status, to)
		}
		return nil
	case TaskOpen:
		return fmt.Errorf("%w: a task cannot be reopened", errInvalidState)
	default:
		return fmt.Errorf("%w: unknown task status %q", errInvalidArgument, to)
	}
}

// CheckDeletable allows the owner to remove a task until work on it starts.
func (t *Task) CheckDeletable(actorID string) error {
	if !t.IsOwnedBy(actorID) {
		return fmt.Errorf("%w: you are not authorized to delete this task", errForbidden)
	}
	switch t.Status {
	case TaskInProgress, TaskCompleted:
		return fmt.Errorf("%w: cannot delete a task that is %s", errInvalidState, t.Status)
	}
	return nil
}

// Validate checks the fields a requester supplies when posting or editing a task.
func (t *Task) Validate(now time.Time) error {
	if t.Title == "" {
		return fmt.Errorf("%w: title is required", errInvalidArgument)
	}
	if t.Description == "" {
		return fmt.Errorf("%w: description is required", errInvalidArgument)
	}
	if len(t.Categories) == 0 {
		return fmt.Errorf("%w: at least one category is required", errInvalidArgument)
	}
	for _, c := range t.Categories {
		if c == "" {
			return fmt.Errorf("%w: empty category id", errInvalidArgument)
		}
	}
	if !t.Budget.IsPositive() {
		return fmt.Errorf("%w: budget must be a positive number", errInvalidArgument)
	}
	if t.Location == nil {
		return fmt.Errorf("%w: location is required", errInvalidArgument)
	}
	if err := t.Location.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errInvalidArgument, err)
	}
	if t.Deadline != nil && !t.Deadline.After(now) {
		return fmt.Errorf("%w: deadline must be a valid future date", errInvalidArgument)
	}
	for i, img := range t.Images {
		if img.URL == "" {
			return fmt.Errorf("%w: image at index %d is missing the URL", errInvalidArgument, i)
		}
	}
	return nil
}
