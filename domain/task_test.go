package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/chukwumela909/taskhub-server/geo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskCheckTransition(t *testing.T) {
	const owner, tasker, stranger = "owner-1", "tasker-1", "tasker-2"

	task := func(status TaskStatus) *Task {
		tk := &Task{ID: "t1", OwnerID: owner, Status: status}
		if status.HasAssignee() {
			tk.AssignedTasker = tasker
		}
		return tk
	}

	tests := []struct {
		name    string
		from    TaskStatus
		actor   string
		to      TaskStatus
		wantErr error
	}{
		{"owner cannot assign directly", TaskOpen, owner, TaskAssigned, ErrForbidden()},
		{"owner cancels open task", TaskOpen, owner, TaskCancelled, nil},
		{"owner cancels assigned task", TaskAssigned, owner, TaskCancelled, nil},
		{"tasker cannot cancel", TaskOpen, tasker, TaskCancelled, ErrForbidden()},
		{"cannot cancel in-progress", TaskInProgress, owner, TaskCancelled, ErrInvalidState()},
		{"cannot cancel completed", TaskCompleted, owner, TaskCancelled, ErrInvalidState()},
		{"cannot cancel twice", TaskCancelled, owner, TaskCancelled, ErrInvalidState()},
		{"assigned tasker starts", TaskAssigned, tasker, TaskInProgress, nil},
		{"other tasker cannot start", TaskAssigned, stranger, TaskInProgress, ErrForbidden()},
		{"owner cannot start", TaskAssigned, owner, TaskInProgress, ErrForbidden()},
		{"complete before start", TaskAssigned, tasker, TaskCompleted, ErrInvalidState()},
		{"assigned tasker completes", TaskInProgress, tasker, TaskCompleted, nil},
		{"no one reopens", TaskCancelled, owner, TaskOpen, ErrInvalidState()},
		{"unknown status", TaskOpen, owner, TaskStatus("paused"), ErrInvalidArgument()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := task(tt.from).CheckTransition(tt.actor, tt.to)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTaskCheckDeletable(t *testing.T) {
	tests := []struct {
		status  TaskStatus
		actor   string
		wantErr error
	}{
		{TaskOpen, "owner-1", nil},
		{TaskAssigned, "owner-1", nil},
		{TaskCancelled, "owner-1", nil},
		{TaskInProgress, "owner-1", ErrInvalidState()},
		{TaskCompleted, "owner-1", ErrInvalidState()},
		{TaskOpen, "tasker-1", ErrForbidden()},
	}
	for _, tt := range tests {
		t.Run(string(tt.status)+"/"+tt.actor, func(t *testing.T) {
			err := (&Task{ID: "t1", OwnerID: "owner-1", Status: tt.status}).CheckDeletable(tt.actor)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTaskApplication(t *testing.T) {
	budget := decimal.RequireFromString("150.00")

	fixed := (&Task{Budget: budget}).Application()
	assert.Equal(t, "fixed", fixed.ApplicationMode)
	assert.False(t, fixed.PriceEditable)
	if assert.NotNil(t, fixed.FixedPrice) {
		assert.True(t, fixed.FixedPrice.Equal(budget))
	}

	bidding := (&Task{Budget: budget, BiddingEnabled: true}).Application()
	assert.Equal(t, "bidding", bidding.ApplicationMode)
	assert.True(t, bidding.PriceEditable)
	assert.Nil(t, bidding.FixedPrice)
}

func TestTaskValidate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	valid := func() *Task {
		return &Task{
			Title:       "Fix sink",
			Description: "Kitchen sink leaks",
			Categories:  []string{"plumbing"},
			Budget:      decimal.NewFromInt(80),
			Location:    &geo.Point{Latitude: 40, Longitude: -74},
			Deadline:    &future,
		}
	}

	assert.NoError(t, valid().Validate(now))

	tests := []struct {
		name   string
		mutate func(*Task)
	}{
		{"missing title", func(t *Task) { t.Title = "" }},
		{"missing description", func(t *Task) { t.Description = "" }},
		{"no categories", func(t *Task) { t.Categories = nil }},
		{"zero budget", func(t *Task) { t.Budget = decimal.Zero }},
		{"negative budget", func(t *Task) { t.Budget = decimal.NewFromInt(-5) }},
		{"missing location", func(t *Task) { t.Location = nil }},
		{"bad latitude", func(t *Task) { t.Location = &geo.Point{Latitude: 91} }},
		{"past deadline", func(t *Task) { t.Deadline = &past }},
		{"image without url", func(t *Task) { t.Images = []Image{{URL: ""}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := valid()
			tt.mutate(task)
			assert.ErrorIs(t, task.Validate(now), ErrInvalidArgument())
		})
	}
}

func TestCheckAcceptable(t *testing.T) {
	open := &Task{ID: "t1", OwnerID: "owner", Status: TaskOpen}
	pending := &Bid{ID: "b1", TaskID: "t1", TaskerID: "tasker", Status: BidPending}

	assert.NoError(t, CheckAcceptable(open, pending, "owner"))
	assert.ErrorIs(t, CheckAcceptable(nil, pending, "owner"), ErrNotFound())
	assert.ErrorIs(t, CheckAcceptable(open, pending, "someone"), ErrForbidden())
	assert.ErrorIs(t, CheckAcceptable(&Task{OwnerID: "owner", Status: TaskAssigned}, pending, "owner"), ErrInvalidState())
	assert.ErrorIs(t, CheckAcceptable(open, &Bid{Status: BidRejected}, "owner"), ErrInvalidState())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrConflict()))
	assert.True(t, IsRetryable(ErrUnavailable()))
	assert.False(t, IsRetryable(ErrNotFound()))
	assert.False(t, IsRetryable(ErrAlreadyExists()))
}

func TestMoneyMarshalsAsNumber(t *testing.T) {
	task := &Task{ID: "t1", Budget: decimal.RequireFromString("120.50")}
	raw, err := json.Marshal(task)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, 120.5, decoded["budget"])

	var back Task
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.Budget.Equal(task.Budget))
}
