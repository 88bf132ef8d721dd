package services

import (
	"context"
	"testing"

	"github.com/chukwumela909/taskhub-server/domain"
	"github.com/chukwumela909/taskhub-server/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// northOf returns the point the given number of miles due north of p.
func northOf(p geo.Point, miles float64) *geo.Point {
	return &geo.Point{Latitude: p.Latitude + miles/geo.MilesPerDegreeLatitude, Longitude: p.Longitude}
}

func (e *testEnv) addTasker(t *testing.T, id string, location *geo.Point, categories ...string) {
	t.Helper()
	require.NoError(t, e.store.Taskers().Upsert(context.Background(), &domain.TaskerProfile{
		ID:         id,
		Name:       id,
		Email:      id + "@example.com",
		Categories: categories,
		Location:   location,
		Active:     true,
	}))
}

func (e *testEnv) createTaskAt(t *testing.T, location *geo.Point, bidding bool, categories ...string) *domain.Task {
	t.Helper()
	cmd := validCreate("requester-1", bidding, categories...)
	cmd.Location = location
	task, err := e.tasks.Create(context.Background(), cmd)
	require.NoError(t, err)
	<-e.notifier.created
	return task
}

func feedIDs(result *FeedResult) []string {
	ids := make([]string, 0, len(result.Items))
	for _, item := range result.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

func TestFeedService_Scenario(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	home := geo.Point{Latitude: 40.0, Longitude: -74.0}
	env.addTasker(t, "tasker-1", &home, "plumbing")

	near := env.createTaskAt(t, northOf(home, 5), true, "plumbing")
	env.createTaskAt(t, northOf(home, 50), true, "plumbing")
	env.createTaskAt(t, northOf(home, 1), true, "electrical")
	assigned := env.createTaskAt(t, northOf(home, 2), true, "plumbing")
	bid := env.submit(t, assigned.ID, "tasker-2", "40")
	_, err := env.accept.Accept(ctx, bid.ID, "requester-1")
	require.NoError(t, err)

	ten := 10.0
	result, err := env.feed.Feed(ctx, FeedQuery{TaskerID: "tasker-1", Filters: FeedFilters{MaxDistanceMiles: &ten}})
	require.NoError(t, err)
	assert.Equal(t, []string{near.ID}, feedIDs(result))
	assert.True(t, result.LocationApplied)
	assert.Equal(t, Pagination{Page: 1, PageSize: 10, Total: 1, TotalPages: 1}, result.Pagination)

	item := result.Items[0]
	require.NotNil(t, item.DistanceMiles)
	assert.InDelta(t, 5.0, *item.DistanceMiles, 0.1)
	assert.False(t, item.HasBid)
	assert.Equal(t, "bidding", item.ApplicationMode)
	assert.True(t, item.PriceEditable)
	assert.Nil(t, item.FixedPrice)

	// the 50 mile task shows up with the default distance
	result, err = env.feed.Feed(ctx, FeedQuery{TaskerID: "tasker-1"})
	require.NoError(t, err)
	assert.Len(t, result.Items, 2)
	assert.Equal(t, DefaultMaxDistanceMiles, result.MaxDistanceMiles)
}

func TestFeedService_BidsAndApplicationMode(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	home := geo.Point{Latitude: 51.5, Longitude: -0.12}
	env.addTasker(t, "tasker-1", &home, "plumbing", "cleaning")

	fixed := env.createTaskAt(t, northOf(home, 1), false, "cleaning")
	bidding := env.createTaskAt(t, northOf(home, 2), true, "plumbing")
	bid := env.submit(t, bidding.ID, "tasker-1", "33.25")

	result, err := env.feed.Feed(ctx, FeedQuery{TaskerID: "tasker-1"})
	require.NoError(t, err)
	require.Equal(t, []string{bidding.ID, fixed.ID}, feedIDs(result))

	withBid := result.Items[0]
	assert.True(t, withBid.HasBid)
	require.NotNil(t, withBid.Bid)
	assert.Equal(t, bid.ID, withBid.Bid.ID)
	assert.True(t, withBid.Bid.Amount.Equal(bid.Amount))
	assert.Equal(t, domain.BidCustom, withBid.Bid.Type)

	fixedItem := result.Items[1]
	assert.False(t, fixedItem.HasBid)
	assert.Equal(t, "fixed", fixedItem.ApplicationMode)
	assert.False(t, fixedItem.PriceEditable)
	require.NotNil(t, fixedItem.FixedPrice)
	assert.True(t, fixedItem.FixedPrice.Equal(fixed.Budget))

	result, err = env.feed.Feed(ctx, FeedQuery{TaskerID: "tasker-1", Filters: FeedFilters{BiddingOnly: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{bidding.ID}, feedIDs(result))

	result, err = env.feed.Feed(ctx, FeedQuery{TaskerID: "tasker-1", Filters: FeedFilters{BudgetMax: decimalPtr("100")}})
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Equal(t, 0, result.Pagination.TotalPages)
}

func TestFeedService_WithoutLocation(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.addTasker(t, "tasker-1", nil, "plumbing")

	far := env.createTaskAt(t, &geo.Point{Latitude: -33.86, Longitude: 151.2}, true, "plumbing")
	near := env.createTaskAt(t, &geo.Point{Latitude: 40, Longitude: -74}, true, "plumbing")

	result, err := env.feed.Feed(ctx, FeedQuery{TaskerID: "tasker-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{near.ID, far.ID}, feedIDs(result))
	assert.False(t, result.LocationApplied)
	assert.Nil(t, result.Items[0].DistanceMiles)
}

func TestFeedService_PaginatesFilteredSet(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	home := geo.Point{Latitude: 40.0, Longitude: -74.0}
	env.addTasker(t, "tasker-1", &home, "plumbing")

	var inRange []string
	for i := 0; i < 5; i++ {
		inRange = append(inRange, env.createTaskAt(t, northOf(home, float64(i+1)), true, "plumbing").ID)
		// inside the coarse box, outside the circle
		env.createTaskAt(t, &geo.Point{Latitude: 40 + 9.5/geo.MilesPerDegreeLatitude, Longitude: -74 + 9.5/(geo.MilesPerDegreeLatitude*0.766)}, true, "plumbing")
	}

	ten := 10.0
	result, err := env.feed.Feed(ctx, FeedQuery{TaskerID: "tasker-1", Filters: FeedFilters{MaxDistanceMiles: &ten}, Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, Pagination{Page: 2, PageSize: 2, Total: 5, TotalPages: 3}, result.Pagination)
	assert.Equal(t, []string{inRange[2], inRange[1]}, feedIDs(result))
}

func TestFeedService_Errors(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.addTasker(t, "tasker-1", nil)

	_, err := env.feed.Feed(ctx, FeedQuery{TaskerID: "nobody"})
	assert.ErrorIs(t, err, domain.ErrNotFound())

	result, err := env.feed.Feed(ctx, FeedQuery{TaskerID: "tasker-1"})
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Equal(t, NoCategoriesHint, result.Hint)

	_, err = env.feed.Feed(ctx, FeedQuery{TaskerID: "tasker-1", Filters: FeedFilters{BudgetMin: decimalPtr("50"), BudgetMax: decimalPtr("10")}})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument())

	zero := 0.0
	_, err = env.feed.Feed(ctx, FeedQuery{TaskerID: "tasker-1", Filters: FeedFilters{MaxDistanceMiles: &zero}})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument())
}
