package services

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/chukwumela909/taskhub-server/domain"
	"github.com/chukwumela909/taskhub-server/geo"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxDistanceMiles = 200.0
	NoCategoriesHint        = "set your categories to see matching tasks"
)

type FeedFilters struct {
	BiddingOnly bool
	BudgetMin   *decimal.Decimal
	BudgetMax   *decimal.Decimal
	// MaxDistanceMiles defaults to DefaultMaxDistanceMiles when nil.
	MaxDistanceMiles *float64
}

type FeedQuery struct {
	TaskerID string
	Filters  FeedFilters
	Page     int
	PageSize int
}

// FeedBid summarises the tasker's own bid on a feed task.
type FeedBid struct {
	ID     string           `json:"id"`
	Amount decimal.Decimal  `json:"amount"`
	Type   domain.BidType   `json:"type"`
	Status domain.BidStatus `json:"status"`
}

type FeedItem struct {
	*domain.Task
	domain.ApplicationDescriptor
	HasBid        bool     `json:"hasBid"`
	Bid           *FeedBid `json:"bid,omitempty"`
	DistanceMiles *float64 `json:"distanceMiles,omitempty"`
}

type FeedResult struct {
	Items      []*FeedItem `json:"tasks"`
	Pagination Pagination  `json:"pagination"`
	// LocationApplied reports whether a distance filter was used.
	LocationApplied  bool    `json:"locationApplied"`
	MaxDistanceMiles float64 `json:"maxDistanceMiles"`
	Hint             string  `json:"hint,omitempty"`
}

type FeedService struct {
	store       domain.UnitOfWork
	taskers     domain.TaskerDirectory
	logger      *log.Logger
	tracer      trace.Tracer
	maxPageSize int
}

func NewFeedService(store domain.UnitOfWork, taskers domain.TaskerDirectory, logger *log.Logger, tracer trace.Tracer, maxPageSize int) *FeedService {
	if maxPageSize <= 0 || maxPageSize > MaxPageSize {
		maxPageSize = MaxPageSize
	}
	return &FeedService{
		store:       store,
		taskers:     taskers,
		logger:      logger,
		tracer:      tracer,
		maxPageSize: maxPageSize,
	}
}

// Feed lists the open tasks a tasker can apply to: matching at least one of
// their categories and, when their location is known, within the distance
// limit. Paging applies to the final filtered set.
func (s *FeedService) Feed(ctx context.Context, q FeedQuery) (_ *FeedResult, err error) {
	ctx, span := s.tracer.Start(ctx, "FeedService.Feed")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("tasker.id", q.TaskerID))

	page, pageSize := normalizePage(q.Page, q.PageSize)
	if pageSize > s.maxPageSize {
		pageSize = s.maxPageSize
	}
	maxMiles, err := validateFeedFilters(q.Filters)
	if err != nil {
		return nil, err
	}

	profile, err := s.taskers.Profile(ctx, q.TaskerID)
	if err != nil {
		return nil, err
	}
	result := &FeedResult{Items: []*FeedItem{}, MaxDistanceMiles: maxMiles}
	if len(profile.Categories) == 0 {
		result.Pagination = newPagination(page, pageSize, 0)
		result.Hint = NoCategoriesHint
		return result, nil
	}

	open := domain.TaskOpen
	filter := domain.TaskFilter{
		Status:      &open,
		AnyCategory: profile.Categories,
		BudgetMin:   q.Filters.BudgetMin,
		BudgetMax:   q.Filters.BudgetMax,
	}
	if q.Filters.BiddingOnly {
		bidding := true
		filter.BiddingEnabled = &bidding
	}
	if profile.Location != nil {
		box := geo.BoundingBoxMiles(*profile.Location, maxMiles)
		filter.Box = &box
		result.LocationApplied = true
	}

	var (
		candidates domain.Tasks
		bids       map[string]*domain.Bid
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		candidates, _, err = s.store.Tasks().Find(gctx, filter, domain.Page{})
		return err
	})
	g.Go(func() error {
		var err error
		bids, err = s.store.Bids().FindByTaskerForTasks(gctx, q.TaskerID, nil)
		return err
	})
	if err = g.Wait(); err != nil {
		s.logger.Println("failed to load feed candidates:", err)
		return nil, err
	}

	items := make([]*FeedItem, 0, len(candidates))
	radius := geo.MilesToMeters(maxMiles)
	for _, task := range candidates {
		item := &FeedItem{Task: task, ApplicationDescriptor: task.Application()}
		if profile.Location != nil {
			if task.Location == nil {
				continue
			}
			meters := geo.DistanceMeters(*profile.Location, *task.Location)
			if meters > radius {
				continue
			}
			miles := math.Round(geo.MetersToMiles(meters)*100) / 100
			item.DistanceMiles = &miles
		}
		if bid, ok := bids[task.ID]; ok {
			item.HasBid = true
			item.Bid = &FeedBid{ID: bid.ID, Amount: bid.Amount, Type: bid.Type, Status: bid.Status}
		}
		items = append(items, item)
	}

	span.SetAttributes(attribute.Int("feed.candidates", len(candidates)), attribute.Int("feed.matches", len(items)))
	result.Items = pageSlice(items, page, pageSize)
	result.Pagination = newPagination(page, pageSize, int64(len(items)))
	return result, nil
}

func validateFeedFilters(f FeedFilters) (float64, error) {
	if f.BudgetMin != nil && f.BudgetMin.IsNegative() {
		return 0, fmt.Errorf("%w: budgetMin must not be negative", domain.ErrInvalidArgument())
	}
	if f.BudgetMin != nil && f.BudgetMax != nil && f.BudgetMin.GreaterThan(*f.BudgetMax) {
		return 0, fmt.Errorf("%w: budgetMin must not exceed budgetMax", domain.ErrInvalidArgument())
	}
	if f.MaxDistanceMiles == nil {
		return DefaultMaxDistanceMiles, nil
	}
	miles := *f.MaxDistanceMiles
	if math.IsNaN(miles) || math.IsInf(miles, 0) || miles <= 0 {
		return 0, fmt.Errorf("%w: maxDistance must be a positive number of miles", domain.ErrInvalidArgument())
	}
	return miles, nil
}
