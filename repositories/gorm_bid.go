package repositories

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/chukwumela909/taskhub-server/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

type GormBidRepo struct {
	db      *gorm.DB
	logger  *log.Logger
	tracer  trace.Tracer
	timeout time.Duration
}

func (r *GormBidRepo) Insert(ctx context.Context, bid *domain.Bid) (err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.Insert")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if bid.ID == "" {
		bid.ID = uuid.NewString()
	}
	if err = r.db.WithContext(ctx).Create(newBidRow(bid)).Error; err != nil {
		r.logger.Println("failed to insert bid:", err)
		return translateGormError(err, "bid on task "+bid.TaskID+" by "+bid.TaskerID)
	}
	return nil
}

func (r *GormBidRepo) FindByID(ctx context.Context, id string) (_ *domain.Bid, err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.FindByID")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row bidRow
	if err = r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translateGormError(err, "bid "+id)
	}
	return row.toDomain(), nil
}

func (r *GormBidRepo) ListByTask(ctx context.Context, taskID string) (_ domain.Bids, err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.ListByTask")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []*bidRow
	err = r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at DESC").Order("id DESC").
		Find(&rows).Error
	if err != nil {
		r.logger.Println("failed to list bids for task:", err)
		return nil, translateGormError(err, "list bids")
	}
	return toDomainBids(rows), nil
}

func (r *GormBidRepo) ListByTasker(ctx context.Context, filter domain.BidFilter, page domain.Page) (_ domain.Bids, _ int64, err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.ListByTasker")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	q := r.db.WithContext(ctx).Model(&bidRow{}).Where("tasker_id = ?", filter.TaskerID)
	if filter.Status != nil {
		q = q.Where("status = ?", string(*filter.Status))
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err = q.Count(&total).Error; err != nil {
		return nil, 0, translateGormError(err, "count bids")
	}

	q = q.Order("created_at DESC").Order("id DESC")
	if page.Offset > 0 {
		q = q.Offset(page.Offset)
	}
	if page.Limit > 0 {
		q = q.Limit(page.Limit)
	}
	var rows []*bidRow
	if err = q.Find(&rows).Error; err != nil {
		r.logger.Println("failed to list bids for tasker:", err)
		return nil, 0, translateGormError(err, "list bids")
	}
	return toDomainBids(rows), total, nil
}

func (r *GormBidRepo) FindByTaskerForTasks(ctx context.Context, taskerID string, taskIDs []string) (_ map[string]*domain.Bid, err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.FindByTaskerForTasks")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	byTask := make(map[string]*domain.Bid)
	q := r.db.WithContext(ctx).Where("tasker_id = ?", taskerID)
	if taskIDs != nil {
		if len(taskIDs) == 0 {
			return byTask, nil
		}
		q = q.Where("task_id IN ?", taskIDs)
	}
	var rows []*bidRow
	if err = q.Find(&rows).Error; err != nil {
		return nil, translateGormError(err, "find bids")
	}
	for _, row := range rows {
		byTask[row.TaskID] = row.toDomain()
	}
	return byTask, nil
}

func (r *GormBidRepo) CountByTask(ctx context.Context, taskID string) (_ int64, err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.CountByTask")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	if err = r.db.WithContext(ctx).Model(&bidRow{}).Where("task_id = ?", taskID).Count(&count).Error; err != nil {
		return 0, translateGormError(err, "count bids")
	}
	return count, nil
}

func (r *GormBidRepo) UpdatePending(ctx context.Context, bid *domain.Bid) (err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.UpdatePending")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res := r.db.WithContext(ctx).Model(&bidRow{}).
		Where("id = ? AND status = ?", bid.ID, string(domain.BidPending)).
		Updates(map[string]any{
			"amount":     bid.Amount,
			"message":    bid.Message,
			"updated_at": bid.UpdatedAt,
		})
	return r.checkPendingWrite(ctx, bid.ID, res)
}

func (r *GormBidRepo) DeletePending(ctx context.Context, id string) (err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.DeletePending")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, string(domain.BidPending)).
		Delete(&bidRow{})
	return r.checkPendingWrite(ctx, id, res)
}

func (r *GormBidRepo) MarkAccepted(ctx context.Context, id string) (err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.MarkAccepted")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res := r.db.WithContext(ctx).Model(&bidRow{}).
		Where("id = ? AND status = ?", id, string(domain.BidPending)).
		Updates(map[string]any{"status": string(domain.BidAccepted), "updated_at": time.Now().UTC()})
	return r.checkPendingWrite(ctx, id, res)
}

func (r *GormBidRepo) RejectOthers(ctx context.Context, taskID, exceptBidID string) (_ int64, err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.RejectOthers")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res := r.db.WithContext(ctx).Model(&bidRow{}).
		Where("task_id = ? AND id <> ?", taskID, exceptBidID).
		Updates(map[string]any{"status": string(domain.BidRejected), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		r.logger.Println("failed to reject bids:", res.Error)
		return 0, translateGormError(res.Error, "reject bids")
	}
	return res.RowsAffected, nil
}

// checkPendingWrite turns a write that matched no pending bid into
// ErrNotFound or ErrConflict.
func (r *GormBidRepo) DeleteByTask(ctx context.Context, taskID string) (_ int64, err error) {
	ctx, span := r.tracer.Start(ctx, "BidRepo.DeleteByTask")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res := r.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&bidRow{})
	if res.Error != nil {
		r.logger.Println("failed to delete bids:", res.Error)
		return 0, translateGormError(res.Error, "bids of task "+taskID)
	}
	return res.RowsAffected, nil
}

func (r *GormBidRepo) checkPendingWrite(ctx context.Context, id string, res *gorm.DB) error {
	if res.Error != nil {
		r.logger.Println("failed to write bid:", res.Error)
		return translateGormError(res.Error, "bid "+id)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&bidRow{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return translateGormError(err, "bid "+id)
	}
	if count == 0 {
		return fmt.Errorf("%w: bid %s", domain.ErrNotFound(), id)
	}
	return fmt.Errorf("%w: %w: bid %s is no longer pending", domain.ErrConflict(), domain.ErrStaleWrite(), id)
}

func toDomainBids(rows []*bidRow) domain.Bids {
	bids := make(domain.Bids, 0, len(rows))
	for _, row := range rows {
		bids = append(bids, row.toDomain())
	}
	return bids
}
