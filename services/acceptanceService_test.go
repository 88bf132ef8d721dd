package services

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/chukwumela909/taskhub-server/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

var errRejectFailed = errors.New("reject failed")

// failingStore breaks RejectOthers inside transactions.
type failingStore struct {
	domain.Store
}

func (s failingStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, uow domain.UnitOfWork) error) error {
	return s.Store.WithTransaction(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		return fn(ctx, failingUnit{uow})
	})
}

type failingUnit struct {
	domain.UnitOfWork
}

func (u failingUnit) Bids() domain.BidRepository {
	return failingBids{u.UnitOfWork.Bids()}
}

type failingBids struct {
	domain.BidRepository
}

func (failingBids) RejectOthers(context.Context, string, string) (int64, error) {
	return 0, errRejectFailed
}

func TestAcceptanceService_Accept(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	task := env.createTask(t, "requester-1", true, "plumbing")
	winner := env.submit(t, task.ID, "tasker-1", "50")
	rivals := []*domain.Bid{env.submit(t, task.ID, "tasker-2", "60"), env.submit(t, task.ID, "tasker-3", "70")}

	result, err := env.accept.Accept(ctx, winner.ID, "requester-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.RejectedBids)
	assert.Equal(t, domain.TaskAssigned, result.Task.Status)
	assert.Equal(t, "tasker-1", result.Task.AssignedTasker)
	assert.Equal(t, domain.BidAccepted, result.Bid.Status)

	stored := env.reloadTask(t, task.ID)
	assert.Equal(t, domain.TaskAssigned, stored.Status)
	assert.Equal(t, "tasker-1", stored.AssignedTasker)
	assert.Equal(t, domain.BidAccepted, env.reloadBid(t, winner.ID).Status)
	for _, rival := range rivals {
		assert.Equal(t, domain.BidRejected, env.reloadBid(t, rival.ID).Status)
	}

	_, err = env.accept.Accept(ctx, rivals[0].ID, "requester-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState())
}

func TestAcceptanceService_Preconditions(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	task := env.createTask(t, "requester-1", true, "plumbing")
	bid := env.submit(t, task.ID, "tasker-1", "50")

	_, err := env.accept.Accept(ctx, "missing", "requester-1")
	assert.ErrorIs(t, err, domain.ErrNotFound())

	_, err = env.accept.Accept(ctx, bid.ID, "requester-2")
	assert.ErrorIs(t, err, domain.ErrForbidden())

	_, err = env.accept.Accept(ctx, bid.ID, "tasker-1")
	assert.ErrorIs(t, err, domain.ErrForbidden())

	assert.Equal(t, domain.BidPending, env.reloadBid(t, bid.ID).Status)
	assert.Equal(t, domain.TaskOpen, env.reloadTask(t, task.ID).Status)

	_, err = env.tasks.ChangeStatus(ctx, ChangeStatusCommand{TaskID: task.ID, ActorID: "requester-1", Status: domain.TaskCancelled})
	require.NoError(t, err)
	_, err = env.accept.Accept(ctx, bid.ID, "requester-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState())
	assert.Equal(t, domain.BidPending, env.reloadBid(t, bid.ID).Status)
}

func TestAcceptanceService_ConcurrentAccept(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	for round := 0; round < 5; round++ {
		task := env.createTask(t, "requester-1", true, "plumbing")
		bids := []*domain.Bid{env.submit(t, task.ID, "tasker-1", "50"), env.submit(t, task.ID, "tasker-2", "55")}

		errs := make([]error, len(bids))
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i, bid := range bids {
			wg.Add(1)
			go func(i int, bidID string) {
				defer wg.Done()
				<-start
				_, errs[i] = env.accept.Accept(ctx, bidID, "requester-1")
			}(i, bid.ID)
		}
		close(start)
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.True(t, errors.Is(err, domain.ErrInvalidState()) || errors.Is(err, domain.ErrConflict()), "unexpected error: %v", err)
		}
		require.Equal(t, 1, succeeded, "round %d", round)

		stored := env.reloadTask(t, task.ID)
		assert.Equal(t, domain.TaskAssigned, stored.Status)

		accepted := 0
		for _, bid := range bids {
			b := env.reloadBid(t, bid.ID)
			if b.Status == domain.BidAccepted {
				accepted++
				assert.Equal(t, b.TaskerID, stored.AssignedTasker)
			} else {
				assert.Equal(t, domain.BidRejected, b.Status)
			}
		}
		assert.Equal(t, 1, accepted)
	}
}

func TestAcceptanceService_RollsBackOnFailure(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	task := env.createTask(t, "requester-1", true, "plumbing")
	bid := env.submit(t, task.ID, "tasker-1", "50")
	rival := env.submit(t, task.ID, "tasker-2", "60")

	svc := NewAcceptanceService(failingStore{env.store}, log.New(io.Discard, "", 0), noop.NewTracerProvider().Tracer("test"))
	_, err := svc.Accept(ctx, bid.ID, "requester-1")
	require.ErrorIs(t, err, errRejectFailed)

	stored := env.reloadTask(t, task.ID)
	assert.Equal(t, domain.TaskOpen, stored.Status)
	assert.Empty(t, stored.AssignedTasker)
	assert.Equal(t, domain.BidPending, env.reloadBid(t, bid.ID).Status)
	assert.Equal(t, domain.BidPending, env.reloadBid(t, rival.ID).Status)
}

func TestLostRace(t *testing.T) {
	stale := errors.Join(domain.ErrConflict(), domain.ErrStaleWrite())
	err := lostRace(stale, "task is no longer open")
	assert.ErrorIs(t, err, domain.ErrInvalidState())
	assert.NotErrorIs(t, err, domain.ErrConflict())

	assert.ErrorIs(t, lostRace(domain.ErrUnavailable(), "x"), domain.ErrUnavailable())
}
