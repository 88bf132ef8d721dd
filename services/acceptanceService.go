package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chukwumela909/taskhub-server/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type AcceptResult struct {
	Task         *domain.Task `json:"task"`
	Bid          *domain.Bid  `json:"bid"`
	RejectedBids int64        `json:"rejectedBids"`
}

type AcceptanceService struct {
	store  domain.Store
	logger *log.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func NewAcceptanceService(store domain.Store, logger *log.Logger, tracer trace.Tracer) *AcceptanceService {
	return &AcceptanceService{
		store:  store,
		logger: logger,
		tracer: tracer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Accept assigns the bid's task to its tasker and rejects every other bid
// on the task. All three writes commit together or not at all.
func (s *AcceptanceService) Accept(ctx context.Context, bidID, requesterID string) (_ *AcceptResult, err error) {
	ctx, span := s.tracer.Start(ctx, "AcceptanceService.Accept")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("bid.id", bidID))

	// fail fast outside the transaction
	if _, _, err = loadAcceptable(ctx, s.store, bidID, requesterID); err != nil {
		return nil, err
	}

	var result *AcceptResult
	err = s.store.WithTransaction(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		bid, task, err := loadAcceptable(ctx, uow, bidID, requesterID)
		if err != nil {
			return err
		}
		if err := uow.Bids().MarkAccepted(ctx, bid.ID); err != nil {
			return lostRace(err, "bid is no longer pending")
		}
		if err := uow.Tasks().Assign(ctx, task.ID, bid.TaskerID); err != nil {
			return lostRace(err, "task is no longer open")
		}
		rejected, err := uow.Bids().RejectOthers(ctx, task.ID, bid.ID)
		if err != nil {
			return err
		}

		now := s.now()
		bid.Status = domain.BidAccepted
		bid.UpdatedAt = now
		task.Status = domain.TaskAssigned
		task.AssignedTasker = bid.TaskerID
		task.UpdatedAt = now
		result = &AcceptResult{Task: task, Bid: bid, RejectedBids: rejected}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Printf("bid %s accepted, task %s assigned to %s, %d bids rejected\n",
		bidID, result.Task.ID, result.Bid.TaskerID, result.RejectedBids)
	return result, nil
}

func loadAcceptable(ctx context.Context, uow domain.UnitOfWork, bidID, requesterID string) (*domain.Bid, *domain.Task, error) {
	bid, err := uow.Bids().FindByID(ctx, bidID)
	if err != nil {
		return nil, nil, err
	}
	task, err := uow.Tasks().FindByID(ctx, bid.TaskID)
	if err != nil && !errors.Is(err, domain.ErrNotFound()) {
		return nil, nil, err
	}
	if err := domain.CheckAcceptable(task, bid, requesterID); err != nil {
		return nil, nil, err
	}
	return bid, task, nil
}

// lostRace turns a conditional write that matched nothing into the state
// error the losing caller sees.
func lostRace(err error, msg string) error {
	if errors.Is(err, domain.ErrStaleWrite()) {
		return fmt.Errorf("%w: %s", domain.ErrInvalidState(), msg)
	}
	return err
}
