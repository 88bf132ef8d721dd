package repositories

import (
	"context"
	"log"
	"time"

	"github.com/chukwumela909/taskhub-server/domain"

	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTaskerRepo is the read side of the tasker profiles owned by the
// users service, plus the upsert used to seed them.
type GormTaskerRepo struct {
	db      *gorm.DB
	logger  *log.Logger
	tracer  trace.Tracer
	timeout time.Duration
}

func (r *GormTaskerRepo) Profile(ctx context.Context, taskerID string) (_ *domain.TaskerProfile, err error) {
	ctx, span := r.tracer.Start(ctx, "TaskerRepo.Profile")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row taskerRow
	if err = r.db.WithContext(ctx).Preload("Categories").First(&row, "id = ?", taskerID).Error; err != nil {
		return nil, translateGormError(err, "tasker "+taskerID)
	}
	return row.toDomain(), nil
}

func (r *GormTaskerRepo) FindByCategories(ctx context.Context, categories []string) (_ []*domain.TaskerProfile, err error) {
	ctx, span := r.tracer.Start(ctx, "TaskerRepo.FindByCategories")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if len(categories) == 0 {
		return nil, nil
	}
	var rows []*taskerRow
	err = r.db.WithContext(ctx).Preload("Categories").
		Where("active = ?", true).
		Where("EXISTS (SELECT 1 FROM tasker_categories tc WHERE tc.tasker_id = taskers.id AND tc.category_id IN ?)", categories).
		Order("id").
		Find(&rows).Error
	if err != nil {
		r.logger.Println("failed to find taskers by category:", err)
		return nil, translateGormError(err, "find taskers")
	}
	profiles := make([]*domain.TaskerProfile, 0, len(rows))
	for _, row := range rows {
		profiles = append(profiles, row.toDomain())
	}
	return profiles, nil
}

// Upsert replaces the stored profile, categories included.
func (r *GormTaskerRepo) Upsert(ctx context.Context, p *domain.TaskerProfile) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := newTaskerRow(p)
	categories := row.Categories
	row.Categories = nil
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error; err != nil {
			return err
		}
		if err := tx.Where("tasker_id = ?", p.ID).Delete(&taskerCategoryRow{}).Error; err != nil {
			return err
		}
		if len(categories) == 0 {
			return nil
		}
		return tx.Create(&categories).Error
	})
	return translateGormError(err, "upsert tasker "+p.ID)
}

type GormCategoryRepo struct {
	db      *gorm.DB
	logger  *log.Logger
	tracer  trace.Tracer
	timeout time.Duration
}

func (r *GormCategoryRepo) ActiveCategories(ctx context.Context, ids []string) (_ map[string]struct{}, err error) {
	ctx, span := r.tracer.Start(ctx, "CategoryRepo.ActiveCategories")
	defer func() { markSpan(span, err); span.End() }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	active := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return active, nil
	}
	var found []string
	err = r.db.WithContext(ctx).Model(&categoryRow{}).
		Where("id IN ? AND active = ?", ids, true).
		Pluck("id", &found).Error
	if err != nil {
		return nil, translateGormError(err, "active categories")
	}
	for _, id := range found {
		active[id] = struct{}{}
	}
	return active, nil
}

func (r *GormCategoryRepo) Upsert(ctx context.Context, id, name string, active bool) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := &categoryRow{ID: id, Name: name, Active: active}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
	return translateGormError(err, "upsert category "+id)
}
