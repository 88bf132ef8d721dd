package notifications

import (
	"context"
	"time"
)

// Notification is one message addressed to one user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TaskID    string    `json:"task_id,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	IsRead    bool      `json:"is_read"`
}

// Sink delivers notifications to their recipients.
type Sink interface {
	Deliver(ctx context.Context, n *Notification) error
}
