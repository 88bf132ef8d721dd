package repositories

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chukwumela909/taskhub-server/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

type GormTaskRepo struct {
	db      *gorm.DB
	logger  *log.Logger
	tracer  trace.Tracer
	timeout time.Duration
}

func (r *GormTaskRepo) Insert(ctx context.Context, task *domain.Task) (err error) {
	ctx, span := r.tracer.Start(ctx, "TaskRepo.Insert")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if err = r.db.WithContext(ctx).Create(newTaskRow(task)).Error; err != nil {
		r.logger.Println("failed to insert task:", err)
		return translateGormError(err, "insert task")
	}
	return nil
}

func (r *GormTaskRepo) FindByID(ctx context.Context, id string) (_ *domain.Task, err error) {
	ctx, span := r.tracer.Start(ctx, "TaskRepo.FindByID")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row taskRow
	if err = r.db.WithContext(ctx).Preload("Categories").First(&row, "id = ?", id).Error; err != nil {
		return nil, translateGormError(err, "task "+id)
	}
	return row.toDomain(), nil
}

func (r *GormTaskRepo) Find(ctx context.Context, filter domain.TaskFilter, page domain.Page) (_ domain.Tasks, _ int64, err error) {
	ctx, span := r.tracer.Start(ctx, "TaskRepo.Find")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	q := applyTaskFilter(r.db.WithContext(ctx).Model(&taskRow{}), filter).Session(&gorm.Session{})

	var total int64
	if err = q.Count(&total).Error; err != nil {
		r.logger.Println("failed to count tasks:", err)
		return nil, 0, translateGormError(err, "count tasks")
	}

	q = q.Preload("Categories").Order("created_at DESC").Order("id DESC")
	if page.Offset > 0 {
		q = q.Offset(page.Offset)
	}
	if page.Limit > 0 {
		q = q.Limit(page.Limit)
	}
	var rows []*taskRow
	if err = q.Find(&rows).Error; err != nil {
		r.logger.Println("failed to find tasks:", err)
		return nil, 0, translateGormError(err, "find tasks")
	}

	tasks := make(domain.Tasks, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.toDomain())
	}
	return tasks, total, nil
}

func applyTaskFilter(q *gorm.DB, f domain.TaskFilter) *gorm.DB {
	if f.Status != nil {
		q = q.Where("tasks.status = ?", string(*f.Status))
	}
	if f.OwnerID != "" {
		q = q.Where("tasks.owner_id = ?", f.OwnerID)
	}
	if len(f.AnyCategory) > 0 {
		q = q.Where("EXISTS (SELECT 1 FROM task_categories tc WHERE tc.task_id = tasks.id AND tc.category_id IN ?)", f.AnyCategory)
	}
	if f.BiddingEnabled != nil {
		q = q.Where("tasks.bidding_enabled = ?", *f.BiddingEnabled)
	}
	if f.BudgetMin != nil {
		q = q.Where("tasks.budget >= ?", f.BudgetMin.InexactFloat64())
	}
	if f.BudgetMax != nil {
		q = q.Where("tasks.budget <= ?", f.BudgetMax.InexactFloat64())
	}
	if f.Box != nil {
		q = q.Where("tasks.latitude IS NOT NULL AND tasks.longitude IS NOT NULL").
			Where("tasks.latitude BETWEEN ? AND ?", f.Box.MinLatitude, f.Box.MaxLatitude)
		ranges := f.Box.LongitudeRanges()
		clauses := make([]string, 0, len(ranges))
		args := make([]any, 0, 2*len(ranges))
		for _, lr := range ranges {
			clauses = append(clauses, "tasks.longitude BETWEEN ? AND ?")
			args = append(args, lr[0], lr[1])
		}
		q = q.Where("("+strings.Join(clauses, " OR ")+")", args...)
	}
	return q
}

func (r *GormTaskRepo) Update(ctx context.Context, task *domain.Task) (err error) {
	ctx, span := r.tracer.Start(ctx, "TaskRepo.Update")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := newTaskRow(task)
	categories := row.Categories
	row.Categories = nil
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&taskRow{ID: task.ID}).
			Select("title", "description", "tags", "images", "budget", "bidding_enabled",
				"latitude", "longitude", "deadline", "updated_at").
			Updates(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("task_id = ?", task.ID).Delete(&taskCategoryRow{}).Error; err != nil {
			return err
		}
		if len(categories) == 0 {
			return nil
		}
		return tx.Create(&categories).Error
	})
	if err != nil {
		r.logger.Println("failed to update task:", err)
		return translateGormError(err, "task "+task.ID)
	}
	return nil
}

func (r *GormTaskRepo) UpdateStatus(ctx context.Context, id string, from, to domain.TaskStatus) (err error) {
	ctx, span := r.tracer.Start(ctx, "TaskRepo.UpdateStatus")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	changes := map[string]any{"status": string(to), "updated_at": time.Now().UTC()}
	if !to.HasAssignee() {
		changes["assigned_tasker"] = ""
	}
	return r.conditionalUpdate(ctx, id, from, changes)
}

func (r *GormTaskRepo) Assign(ctx context.Context, id, taskerID string) (err error) {
	ctx, span := r.tracer.Start(ctx, "TaskRepo.Assign")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.conditionalUpdate(ctx, id, domain.TaskOpen, map[string]any{
		"status":          string(domain.TaskAssigned),
		"assigned_tasker": taskerID,
		"updated_at":      time.Now().UTC(),
	})
}

func (r *GormTaskRepo) ClaimOpen(ctx context.Context, id string) (err error) {
	ctx, span := r.tracer.Start(ctx, "TaskRepo.ClaimOpen")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// UpdateColumn leaves updated_at alone
	res := r.db.WithContext(ctx).Model(&taskRow{}).
		Where("id = ? AND status = ?", id, string(domain.TaskOpen)).
		UpdateColumn("revision", gorm.Expr("revision + 1"))
	if res.Error != nil {
		r.logger.Println("failed to claim task:", res.Error)
		return translateGormError(res.Error, "task "+id)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return r.missOrStale(ctx, id, domain.TaskOpen)
}

func (r *GormTaskRepo) Delete(ctx context.Context, id string, expected domain.TaskStatus) (err error) {
	ctx, span := r.tracer.Start(ctx, "TaskRepo.Delete")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var deleted int64
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND status = ?", id, string(expected)).Delete(&taskRow{})
		if res.Error != nil {
			return res.Error
		}
		if deleted = res.RowsAffected; deleted == 0 {
			return nil
		}
		return tx.Where("task_id = ?", id).Delete(&taskCategoryRow{}).Error
	})
	if err != nil {
		r.logger.Println("failed to delete task:", err)
		return translateGormError(err, "task "+id)
	}
	if deleted > 0 {
		return nil
	}
	return r.missOrStale(ctx, id, expected)
}

// conditionalUpdate applies changes only while the stored status equals
// expected.
func (r *GormTaskRepo) conditionalUpdate(ctx context.Context, id string, expected domain.TaskStatus, changes map[string]any) error {
	res := r.db.WithContext(ctx).Model(&taskRow{}).
		Where("id = ? AND status = ?", id, string(expected)).
		Updates(changes)
	if res.Error != nil {
		r.logger.Println("failed to update task status:", res.Error)
		return translateGormError(res.Error, "task "+id)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return r.missOrStale(ctx, id, expected)
}

// missOrStale explains a conditional write that matched no row.
func (r *GormTaskRepo) missOrStale(ctx context.Context, id string, expected domain.TaskStatus) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&taskRow{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return translateGormError(err, "task "+id)
	}
	if count == 0 {
		return fmt.Errorf("%w: task %s", domain.ErrNotFound(), id)
	}
	return fmt.Errorf("%w: %w: task %s is no longer %s", domain.ErrConflict(), domain.ErrStaleWrite(), id, expected)
}
