package handlers

import (
	"context"
	"net/http"

	"github.com/chukwumela909/taskhub-server/notifications"
	"github.com/chukwumela909/taskhub-server/services"

	"go.opentelemetry.io/otel/trace"
)

type FeedHandler struct {
	feed   *services.FeedService
	tracer trace.Tracer
}

func NewFeedHandler(f *services.FeedService, t trace.Tracer) *FeedHandler {
	return &FeedHandler{f, t}
}

// Get - GET /feed?biddingOnly=&budgetMin=&budgetMax=&maxDistance=&page=&limit=
func (h FeedHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "FeedHandler.Get")
	defer span.End()

	var filters services.FeedFilters
	bidding, err := queryBool(r, "biddingOnly")
	if err != nil {
		writeErrorResp(err, w)
		return
	}
	filters.BiddingOnly = bidding != nil && *bidding
	if filters.BudgetMin, err = queryDecimal(r, "budgetMin"); err != nil {
		writeErrorResp(err, w)
		return
	}
	if filters.BudgetMax, err = queryDecimal(r, "budgetMax"); err != nil {
		writeErrorResp(err, w)
		return
	}
	if filters.MaxDistanceMiles, err = queryFloat(r, "maxDistance"); err != nil {
		writeErrorResp(err, w)
		return
	}
	principal, _ := principalFrom(r)

	result, err := h.feed.Feed(ctx, services.FeedQuery{
		TaskerID: principal.ID,
		Filters:  filters,
		Page:     queryInt(r, "page"),
		PageSize: queryInt(r, "limit"),
	})
	if err != nil {
		writeErrorResp(err, w)
		return
	}
	writeResp(struct {
		Status string `json:"status"`
		Count  int    `json:"count"`
		*services.FeedResult
	}{"success", len(result.Items), result}, http.StatusOK, w)
}

// Inbox lists notifications already delivered to a user, newest first.
type Inbox interface {
	ForUser(ctx context.Context, userID string, limit int) ([]notifications.Notification, error)
}

type NotificationHandler struct {
	inbox  Inbox
	tracer trace.Tracer
}

func NewNotificationHandler(i Inbox, t trace.Tracer) *NotificationHandler {
	return &NotificationHandler{i, t}
}

// GetMine - GET /notifications/mine?limit=
func (h NotificationHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "NotificationHandler.GetMine")
	defer span.End()

	limit := queryInt(r, "limit")
	if limit <= 0 || limit > services.MaxPageSize {
		limit = services.DefaultPageSize
	}
	principal, _ := principalFrom(r)

	inbox, err := h.inbox.ForUser(ctx, principal.ID, limit)
	if err != nil {
		writeErrorResp(err, w)
		return
	}
	if inbox == nil {
		inbox = []notifications.Notification{}
	}
	writeResp(struct {
		Status        string                       `json:"status"`
		Count         int                          `json:"count"`
		Notifications []notifications.Notification `json:"notifications"`
	}{"success", len(inbox), inbox}, http.StatusOK, w)
}
