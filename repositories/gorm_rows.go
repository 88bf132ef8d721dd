package repositories

import (
	"time"

	"github.com/chukwumela909/taskhub-server/domain"
	"github.com/chukwumela909/taskhub-server/geo"

	"github.com/shopspring/decimal"
)

type taskRow struct {
	ID             string          `gorm:"primaryKey;size:36"`
	OwnerID        string          `gorm:"index:idx_task_owner_created,priority:1;not null"`
	Title          string          `gorm:"not null"`
	Description    string          `gorm:"not null"`
	Tags           []string        `gorm:"serializer:json"`
	Images         []domain.Image  `gorm:"serializer:json"`
	Budget         decimal.Decimal `gorm:"type:numeric;not null"`
	BiddingEnabled bool            `gorm:"not null"`
	Latitude       *float64        `gorm:"index:idx_task_location,priority:1"`
	Longitude      *float64        `gorm:"index:idx_task_location,priority:2"`
	Deadline       *time.Time
	Status         string `gorm:"index:idx_task_status_created,priority:1;not null"`
	AssignedTasker string
	Revision       int64     `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"index:idx_task_status_created,priority:2;index:idx_task_owner_created,priority:2"`
	UpdatedAt      time.Time

	Categories []taskCategoryRow `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
}

func (taskRow) TableName() string { return "tasks" }

type taskCategoryRow struct {
	TaskID     string `gorm:"primaryKey;size:36"`
	CategoryID string `gorm:"primaryKey;index"`
}

func (taskCategoryRow) TableName() string { return "task_categories" }

type bidRow struct {
	ID        string          `gorm:"primaryKey;size:36"`
	TaskID    string          `gorm:"uniqueIndex:idx_bid_task_tasker,priority:1;not null"`
	TaskerID  string          `gorm:"uniqueIndex:idx_bid_task_tasker,priority:2;index;not null"`
	Amount    decimal.Decimal `gorm:"type:numeric;not null"`
	Type      string          `gorm:"not null"`
	Message   string
	Status    string `gorm:"index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (bidRow) TableName() string { return "bids" }

type taskerRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string
	Email     string
	Latitude  *float64
	Longitude *float64
	Active    bool `gorm:"not null"`

	Categories []taskerCategoryRow `gorm:"foreignKey:TaskerID;constraint:OnDelete:CASCADE"`
}

func (taskerRow) TableName() string { return "taskers" }

type taskerCategoryRow struct {
	TaskerID   string `gorm:"primaryKey;size:36"`
	CategoryID string `gorm:"primaryKey;index"`
}

func (taskerCategoryRow) TableName() string { return "tasker_categories" }

type categoryRow struct {
	ID     string `gorm:"primaryKey"`
	Name   string
	Active bool `gorm:"not null"`
}

func (categoryRow) TableName() string { return "categories" }

func allRows() []any {
	return []any{&taskRow{}, &taskCategoryRow{}, &bidRow{}, &taskerRow{}, &taskerCategoryRow{}, &categoryRow{}}
}

func newTaskRow(t *domain.Task) *taskRow {
	row := &taskRow{
		ID:             t.ID,
		OwnerID:        t.OwnerID,
		Title:          t.Title,
		Description:    t.Description,
		Tags:           t.Tags,
		Images:         t.Images,
		Budget:         t.Budget,
		BiddingEnabled: t.BiddingEnabled,
		Deadline:       t.Deadline,
		Status:         string(t.Status),
		AssignedTasker: t.AssignedTasker,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
	if t.Location != nil {
		lat, lng := t.Location.Latitude, t.Location.Longitude
		row.Latitude, row.Longitude = &lat, &lng
	}
	for _, c := range t.Categories {
		row.Categories = append(row.Categories, taskCategoryRow{TaskID: t.ID, CategoryID: c})
	}
	return row
}

func (r *taskRow) toDomain() *domain.Task {
	t := &domain.Task{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		Title:          r.Title,
		Description:    r.Description,
		Tags:           r.Tags,
		Images:         r.Images,
		Budget:         r.Budget,
		BiddingEnabled: r.BiddingEnabled,
		Deadline:       r.Deadline,
		Status:         domain.TaskStatus(r.Status),
		AssignedTasker: r.AssignedTasker,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.Latitude != nil && r.Longitude != nil {
		t.Location = &geo.Point{Latitude: *r.Latitude, Longitude: *r.Longitude}
	}
	for _, c := range r.Categories {
		t.Categories = append(t.Categories, c.CategoryID)
	}
	return t
}

func newBidRow(b *domain.Bid) *bidRow {
	return &bidRow{
		ID:        b.ID,
		TaskID:    b.TaskID,
		TaskerID:  b.TaskerID,
		Amount:    b.Amount,
		Type:      string(b.Type),
		Message:   b.Message,
		Status:    string(b.Status),
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

func (r *bidRow) toDomain() *domain.Bid {
	return &domain.Bid{
		ID:        r.ID,
		TaskID:    r.TaskID,
		TaskerID:  r.TaskerID,
		Amount:    r.Amount,
		Type:      domain.BidType(r.Type),
		Message:   r.Message,
		Status:    domain.BidStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func newTaskerRow(p *domain.TaskerProfile) *taskerRow {
	row := &taskerRow{ID: p.ID, Name: p.Name, Email: p.Email, Active: p.Active}
	if p.Location != nil {
		lat, lng := p.Location.Latitude, p.Location.Longitude
		row.Latitude, row.Longitude = &lat, &lng
	}
	for _, c := range p.Categories {
		row.Categories = append(row.Categories, taskerCategoryRow{TaskerID: p.ID, CategoryID: c})
	}
	return row
}

func (r *taskerRow) toDomain() *domain.TaskerProfile {
	p := &domain.TaskerProfile{ID: r.ID, Name: r.Name, Email: r.Email, Active: r.Active}
	if r.Latitude != nil && r.Longitude != nil {
		p.Location = &geo.Point{Latitude: *r.Latitude, Longitude: *r.Longitude}
	}
	for _, c := range r.Categories {
		p.Categories = append(p.Categories, c.CategoryID)
	}
	return p
}
