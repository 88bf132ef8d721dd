package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chukwumela909/taskhub-server/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type SubmitBidCommand struct {
	TaskID   string
	TaskerID string
	// Amount is required on bidding tasks and ignored on fixed-price ones.
	Amount  *decimal.Decimal
	Message *string
}

type UpdateBidCommand struct {
	BidID    string
	TaskerID string
	Amount   *decimal.Decimal
	Message  *string
}

type BidPage struct {
	Bids       domain.Bids `json:"bids"`
	Pagination Pagination  `json:"pagination"`
}

type BidService struct {
	store  domain.Store
	logger *log.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func NewBidService(store domain.Store, logger *log.Logger, tracer trace.Tracer) *BidService {
	return &BidService{
		store:  store,
		logger: logger,
		tracer: tracer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Submit places a pending bid. Fixed-price tasks pin the amount to the
// task budget. The open check and the insert share a transaction, and the
// task is claimed at the store so an acceptance committing in between makes
// the submit fail instead of leaving a pending bid on an assigned task.
func (s *BidService) Submit(ctx context.Context, cmd SubmitBidCommand) (_ *domain.Bid, err error) {
	ctx, span := s.tracer.Start(ctx, "BidService.Submit")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("task.id", cmd.TaskID), attribute.String("tasker.id", cmd.TaskerID))

	var bid *domain.Bid
	err = s.store.WithTransaction(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		task, err := uow.Tasks().FindByID(ctx, cmd.TaskID)
		if err != nil {
			return err
		}
		b, err := s.newBid(task, cmd)
		if err != nil {
			return err
		}
		if err := uow.Tasks().ClaimOpen(ctx, task.ID); err != nil {
			return lostRace(err, "task is no longer open for bidding")
		}
		if err := uow.Bids().Insert(ctx, b); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists()) {
				return fmt.Errorf("%w: you have already placed a bid on this task", domain.ErrAlreadyExists())
			}
			return err
		}
		bid = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Printf("bid %s placed on task %s by %s\n", bid.ID, bid.TaskID, cmd.TaskerID)
	return bid, nil
}

func (s *BidService) newBid(task *domain.Task, cmd SubmitBidCommand) (*domain.Bid, error) {
	if task.Status != domain.TaskOpen {
		return nil, fmt.Errorf("%w: task is not open for bidding, current status is '%s'", domain.ErrInvalidState(), task.Status)
	}
	if task.IsOwnedBy(cmd.TaskerID) {
		return nil, fmt.Errorf("%w: you cannot bid on your own task", domain.ErrForbidden())
	}

	amount := task.Budget
	if task.BiddingEnabled {
		if cmd.Amount == nil {
			return nil, fmt.Errorf("%w: amount is required for bidding tasks", domain.ErrInvalidArgument())
		}
		if !cmd.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: amount must be a positive number", domain.ErrInvalidArgument())
		}
		amount = *cmd.Amount
	}

	now := s.now()
	bid := &domain.Bid{
		TaskID:    task.ID,
		TaskerID:  cmd.TaskerID,
		Amount:    amount,
		Type:      task.BidType(),
		Status:    domain.BidPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if cmd.Message != nil {
		bid.Message = *cmd.Message
	}
	return bid, nil
}

func (s *BidService) Update(ctx context.Context, cmd UpdateBidCommand) (_ *domain.Bid, err error) {
	ctx, span := s.tracer.Start(ctx, "BidService.Update")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("bid.id", cmd.BidID))

	bid, task, err := s.loadEditable(ctx, cmd.BidID, cmd.TaskerID)
	if err != nil {
		return nil, err
	}

	if cmd.Amount != nil {
		if bid.Type == domain.BidFixed || !task.BiddingEnabled {
			return nil, fmt.Errorf("%w: the amount of a fixed-price application cannot be changed", domain.ErrInvalidOperation())
		}
		if !cmd.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: amount must be a positive number", domain.ErrInvalidArgument())
		}
		bid.Amount = *cmd.Amount
	}
	if cmd.Message != nil {
		bid.Message = *cmd.Message
	}
	bid.UpdatedAt = s.now()

	if err = s.store.Bids().UpdatePending(ctx, bid); err != nil {
		return nil, pendingWriteError(err)
	}
	return bid, nil
}

// Withdraw deletes a pending bid. The task stays open.
func (s *BidService) Withdraw(ctx context.Context, bidID, taskerID string) (err error) {
	ctx, span := s.tracer.Start(ctx, "BidService.Withdraw")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("bid.id", bidID))

	if _, _, err = s.loadEditable(ctx, bidID, taskerID); err != nil {
		return err
	}
	if err = s.store.Bids().DeletePending(ctx, bidID); err != nil {
		return pendingWriteError(err)
	}
	s.logger.Printf("bid %s withdrawn by %s\n", bidID, taskerID)
	return nil
}

func (s *BidService) loadEditable(ctx context.Context, bidID, taskerID string) (*domain.Bid, *domain.Task, error) {
	bid, err := s.store.Bids().FindByID(ctx, bidID)
	if err != nil {
		return nil, nil, err
	}
	task, err := s.store.Tasks().FindByID(ctx, bid.TaskID)
	if err != nil && !errors.Is(err, domain.ErrNotFound()) {
		return nil, nil, err
	}
	if err := bid.CheckEditable(task, taskerID); err != nil {
		return nil, nil, err
	}
	return bid, task, nil
}

// pendingWriteError reports a lost race with an acceptance as a state error.
func pendingWriteError(err error) error {
	if errors.Is(err, domain.ErrStaleWrite()) {
		return fmt.Errorf("%w: bid is no longer pending", domain.ErrInvalidState())
	}
	return err
}

// Get returns a bid to the tasker who placed it or the owner of its task.
func (s *BidService) Get(ctx context.Context, bidID, actorID string) (_ *domain.Bid, err error) {
	ctx, span := s.tracer.Start(ctx, "BidService.Get")
	defer func() { endSpan(span, err) }()

	bid, err := s.store.Bids().FindByID(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.IsOwnedBy(actorID) {
		return bid, nil
	}
	task, err := s.store.Tasks().FindByID(ctx, bid.TaskID)
	if err != nil && !errors.Is(err, domain.ErrNotFound()) {
		return nil, err
	}
	if task == nil || !task.IsOwnedBy(actorID) {
		return nil, fmt.Errorf("%w: you are not authorized to view this bid", domain.ErrForbidden())
	}
	return bid, nil
}

func (s *BidService) ListForTask(ctx context.Context, taskID, requesterID string) (_ domain.Bids, err error) {
	ctx, span := s.tracer.Start(ctx, "BidService.ListForTask")
	defer func() { endSpan(span, err) }()

	task, err := s.store.Tasks().FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.IsOwnedBy(requesterID) {
		return nil, fmt.Errorf("%w: you are not authorized to view bids for this task", domain.ErrForbidden())
	}
	return s.store.Bids().ListByTask(ctx, taskID)
}

func (s *BidService) ListForTasker(ctx context.Context, taskerID string, status *domain.BidStatus, page, pageSize int) (_ *BidPage, err error) {
	ctx, span := s.tracer.Start(ctx, "BidService.ListForTasker")
	defer func() { endSpan(span, err) }()

	page, pageSize = normalizePage(page, pageSize)
	bids, total, err := s.store.Bids().ListByTasker(ctx, domain.BidFilter{TaskerID: taskerID, Status: status}, storePage(page, pageSize))
	if err != nil {
		return nil, err
	}
	return &BidPage{Bids: bids, Pagination: newPagination(page, pageSize, total)}, nil
}

// endSpan closes span, flagging unexpected failures. Domain rejections are
// part of normal operation and leave the span status unset.
func endSpan(span trace.Span, err error) {
	if err != nil && (domain.IsRetryable(err) || !isDomainError(err)) {
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func isDomainError(err error) bool {
	for _, target := range []error{
		domain.ErrNotFound(), domain.ErrForbidden(), domain.ErrInvalidState(),
		domain.ErrInvalidArgument(), domain.ErrInvalidOperation(), domain.ErrAlreadyExists(),
		domain.ErrConflict(), domain.ErrUnavailable(),
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
