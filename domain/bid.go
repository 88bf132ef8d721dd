package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type BidStatus string

const (
	BidPending  BidStatus = "pending"
	BidAccepted BidStatus = "accepted"
	BidRejected BidStatus = "rejected"
)

func BidStatusFromString(s string) (BidStatus, error) {
	switch BidStatus(s) {
	case BidPending, BidAccepted, BidRejected:
		return BidStatus(s), nil
	default:
		return "", fmt.Errorf("%w: unknown bid status %q", errInvalidArgument, s)
	}
}

type BidType string

const (
	// BidFixed is an application at the task's posted budget.
	BidFixed BidType = "fixed"
	// BidCustom carries a tasker-chosen amount.
	BidCustom BidType = "custom"
)

type Bid struct {
	ID        string          `json:"id"`
	TaskID    string          `json:"task"`
	TaskerID  string          `json:"tasker"`
	Amount    decimal.Decimal `json:"amount"`
	Type      BidType         `json:"type"`
	Message   string          `json:"message"`
	Status    BidStatus       `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type Bids []*Bid

func (b *Bid) IsOwnedBy(taskerID string) bool {
	return taskerID != "" && b.TaskerID == taskerID
}

// CheckEditable is the shared precondition of update and withdraw: the
// actor owns the bid and both the bid and its task are still in their
// initial states.
func (b *Bid) CheckEditable(task *Task, taskerID string) error {
	if !b.IsOwnedBy(taskerID) {
		return fmt.Errorf("%w: you are not authorized to modify this bid", errForbidden)
	}
	if b.Status != BidPending {
		return fmt.Errorf("%w: cannot modify a bid that is %s", errInvalidState, b.Status)
	}
	if task == nil {
		return fmt.Errorf("%w: task not found for this bid", errNotFound)
	}
	if task.Status != TaskOpen {
		return fmt.Errorf("%w: cannot modify a bid for a task that is %s", errInvalidState, task.Status)
	}
	return nil
}

// CheckAcceptable holds the preconditions of accepting b on task for requesterID.
func CheckAcceptable(task *Task, b *Bid, requesterID string) error {
	if task == nil {
		return fmt.Errorf("%w: task not found for this bid", errNotFound)
	}
	if !task.IsOwnedBy(requesterID) {
		return fmt.Errorf("%w: you are not authorized to accept bids for this task", errForbidden)
	}
	if task.Status != TaskOpen {
		return fmt.Errorf("%w: cannot accept a bid for a task that is %s", errInvalidState, task.Status)
	}
	if b.Status != BidPending {
		return fmt.Errorf("%w: cannot accept a bid that is %s", errInvalidState, b.Status)
	}
	return nil
}
