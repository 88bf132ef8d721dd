package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/chukwumela909/taskhub-server/auth"
	"github.com/chukwumela909/taskhub-server/domain"
	"github.com/chukwumela909/taskhub-server/geo"
	"github.com/chukwumela909/taskhub-server/notifications"
	"github.com/chukwumela909/taskhub-server/repositories"
	"github.com/chukwumela909/taskhub-server/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

type testServer struct {
	router   http.Handler
	store    *repositories.GormStore
	provider *auth.Provider
}

func setupServer(t *testing.T) *testServer {
	t.Helper()

	db, err := repositories.OpenSQLite(filepath.Join(t.TempDir(), "taskhub.db"))
	require.NoError(t, err)

	logger := log.New(io.Discard, "", 0)
	tracer := noop.NewTracerProvider().Tracer("test")
	store := repositories.NewGormStore(db, logger, tracer, 5*time.Second, 5*time.Second)
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(func() { _ = store.Close(ctx) })

	for _, c := range []string{"plumbing", "electrical"} {
		require.NoError(t, store.Categories().Upsert(ctx, c, c, true))
	}
	require.NoError(t, store.Taskers().Upsert(ctx, &domain.TaskerProfile{
		ID:         "tasker-1",
		Name:       "Ada",
		Categories: []string{"plumbing"},
		Location:   &geo.Point{Latitude: 40, Longitude: -74},
		Active:     true,
	}))

	provider, err := auth.NewProvider("s3cret", "taskhub")
	require.NoError(t, err)

	dispatcher := notifications.NewDispatcher(store.Taskers(), notifications.NewLogSink(logger), logger, tracer)
	tasks := services.NewTaskService(store, store.Categories(), dispatcher, logger, tracer)
	t.Cleanup(func() { _ = tasks.Wait(ctx) })
	bids := services.NewBidService(store, logger, tracer)

	router := NewRouter(Handlers{
		Auth:  NewAuthHandler(provider, logger),
		Tasks: NewTaskHandler(tasks, bids, tracer),
		Bids:  NewBidHandler(bids, services.NewAcceptanceService(store, logger, tracer), tracer),
		Feed:  NewFeedHandler(services.NewFeedService(store, store.Taskers(), logger, tracer, 50), tracer),
	})
	return &testServer{router: router, store: store, provider: provider}
}

func (s *testServer) token(t *testing.T, id string, role domain.Role) string {
	t.Helper()
	token, err := s.provider.Issue(domain.Principal{ID: id, Role: role}, time.Hour)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	}
	return rec, decoded
}

func taskBody(bidding bool) map[string]any {
	return map[string]any{
		"title":            "Fix the sink",
		"description":      "Kitchen sink is leaking",
		"categories":       []string{"plumbing"},
		"budget":           120,
		"isBiddingEnabled": bidding,
		"location":         map[string]float64{"latitude": 40.05, "longitude": -74},
	}
}

func (s *testServer) createTask(t *testing.T, owner string, bidding bool) string {
	t.Helper()
	rec, body := s.do(t, http.MethodPost, "/tasks", s.token(t, owner, domain.RoleRequester), taskBody(bidding))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return body["task"].(map[string]any)["id"].(string)
}

func TestRouter_Authentication(t *testing.T) {
	s := setupServer(t)

	rec, body := s.do(t, http.MethodPost, "/tasks", "", taskBody(false))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "error", body["status"])

	rec, _ = s.do(t, http.MethodPost, "/tasks", "not-a-token", taskBody(false))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/tasks", s.token(t, "tasker-1", domain.RoleTasker), taskBody(false))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/feed", s.token(t, "owner-1", domain.RoleRequester), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_PublicTaskReads(t *testing.T) {
	s := setupServer(t)
	id := s.createTask(t, "owner-1", false)
	s.createTask(t, "owner-1", true)

	rec, body := s.do(t, http.MethodGet, "/tasks/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	task := body["task"].(map[string]any)
	assert.Equal(t, "open", task["status"])
	assert.Equal(t, "owner-1", task["owner"])
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec, body = s.do(t, http.MethodGet, "/tasks?biddingEnabled=true&limit=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])
	assert.EqualValues(t, 1, body["currentPage"])

	rec, body = s.do(t, http.MethodGet, "/tasks?isBiddingEnabled=false", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])
	assert.EqualValues(t, 120, body["tasks"].([]any)[0].(map[string]any)["budget"])

	rec, _ = s.do(t, http.MethodGet, "/tasks?isBiddingEnabled=maybe", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/tasks?status=archived", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/tasks/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_CreateValidation(t *testing.T) {
	s := setupServer(t)
	token := s.token(t, "owner-1", domain.RoleRequester)

	rec, _ := s.do(t, http.MethodPost, "/tasks", token, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := taskBody(false)
	body["categories"] = []string{"astrology"}
	rec, resp := s.do(t, http.MethodPost, "/tasks", token, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp["message"], "astrology")
}

func TestRouter_BidAndAccept(t *testing.T) {
	s := setupServer(t)
	owner := s.token(t, "owner-1", domain.RoleRequester)
	tasker := s.token(t, "tasker-1", domain.RoleTasker)
	other := s.token(t, "tasker-2", domain.RoleTasker)
	taskID := s.createTask(t, "owner-1", true)

	rec, body := s.do(t, http.MethodPost, "/bids", tasker, map[string]any{"taskId": taskID, "amount": "95.50", "message": "today"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bidID := body["bid"].(map[string]any)["id"].(string)

	rec, _ = s.do(t, http.MethodPost, "/bids", tasker, map[string]any{"taskId": taskID, "amount": "90"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = s.do(t, http.MethodPost, "/bids", other, map[string]any{"taskId": taskID, "amount": "80"})
	require.Equal(t, http.StatusCreated, rec.Code)
	otherBid := body["bid"].(map[string]any)["id"].(string)

	rec, _ = s.do(t, http.MethodGet, "/bids/"+bidID, other, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = s.do(t, http.MethodGet, "/bids/"+bidID, owner, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = s.do(t, http.MethodGet, "/tasks/"+taskID+"/bids", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["count"])

	rec, body = s.do(t, http.MethodPatch, "/bids/"+bidID+"/accept", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, body["rejectedBids"])
	assert.Equal(t, "assigned", body["task"].(map[string]any)["status"])
	assert.Equal(t, "tasker-1", body["task"].(map[string]any)["assignedTasker"])

	rec, _ = s.do(t, http.MethodPatch, "/bids/"+otherBid+"/accept", owner, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = s.do(t, http.MethodDelete, "/bids/"+bidID, tasker, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = s.do(t, http.MethodGet, "/bids/mine?status=accepted", tasker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])

	rec, body = s.do(t, http.MethodPatch, "/tasks/"+taskID+"/status", tasker, map[string]string{"status": "in-progress"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "in-progress", body["task"].(map[string]any)["status"])

	rec, _ = s.do(t, http.MethodPatch, "/tasks/"+taskID+"/status", owner, map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_UpdateAndWithdrawBid(t *testing.T) {
	s := setupServer(t)
	tasker := s.token(t, "tasker-1", domain.RoleTasker)
	taskID := s.createTask(t, "owner-1", false)

	rec, body := s.do(t, http.MethodPost, "/bids", tasker, map[string]any{"taskId": taskID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bid := body["bid"].(map[string]any)
	assert.EqualValues(t, 120, bid["amount"])
	assert.Equal(t, "fixed", bid["type"])

	rec, _ = s.do(t, http.MethodPut, "/bids/"+bid["id"].(string), tasker, map[string]any{"amount": "100"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = s.do(t, http.MethodPut, "/bids/"+bid["id"].(string), tasker, map[string]any{"amount": 120})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = s.do(t, http.MethodPut, "/bids/"+bid["id"].(string), tasker, map[string]any{"message": "can start now"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "can start now", body["bid"].(map[string]any)["message"])

	rec, _ = s.do(t, http.MethodDelete, "/bids/"+bid["id"].(string), tasker, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = s.do(t, http.MethodGet, "/bids/"+bid["id"].(string), tasker, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_UpdateTask(t *testing.T) {
	s := setupServer(t)
	owner := s.token(t, "owner-1", domain.RoleRequester)
	taskID := s.createTask(t, "owner-1", false)

	rec, body := s.do(t, http.MethodPatch, "/tasks/"+taskID, owner, map[string]any{"title": "Fix both sinks", "budget": 150})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Fix both sinks", body["task"].(map[string]any)["title"])

	rec, _ = s.do(t, http.MethodPatch, "/tasks/"+taskID, s.token(t, "owner-2", domain.RoleRequester), map[string]any{"title": "mine now"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = s.do(t, http.MethodGet, "/users/me/tasks", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])
}

func TestRouter_Feed(t *testing.T) {
	s := setupServer(t)
	tasker := s.token(t, "tasker-1", domain.RoleTasker)
	s.createTask(t, "owner-1", true)

	rec, body := s.do(t, http.MethodGet, "/feed?maxDistance=10&biddingOnly=true", tasker, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, body["count"])
	assert.Equal(t, true, body["locationApplied"])
	items := body["tasks"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, false, item["hasBid"])
	assert.Equal(t, "bidding", item["applicationMode"])
	assert.InDelta(t, 3.45, item["distanceMiles"], 0.05)

	rec, _ = s.do(t, http.MethodGet, "/feed?maxDistance=far", tasker, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/feed?budgetMin=200&budgetMax=100", tasker, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/feed", s.token(t, "tasker-unknown", domain.RoleTasker), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWriteErrorResp(t *testing.T) {
	cases := []struct {
		err       error
		code      int
		retryable bool
	}{
		{domain.ErrNotFound(), http.StatusNotFound, false},
		{domain.ErrForbidden(), http.StatusForbidden, false},
		{domain.ErrInvalidArgument(), http.StatusBadRequest, false},
		{domain.ErrInvalidOperation(), http.StatusBadRequest, false},
		{domain.ErrInvalidState(), http.StatusConflict, false},
		{domain.ErrAlreadyExists(), http.StatusConflict, false},
		{domain.ErrConflict(), http.StatusConflict, true},
		{domain.ErrUnavailable(), http.StatusServiceUnavailable, true},
		{auth.ErrTokenExpired(), http.StatusUnauthorized, false},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError, false},
	}
	for _, c := range cases {
		t.Run(c.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeErrorResp(c.err, rec)
			assert.Equal(t, c.code, rec.Code)
			assert.Equal(t, c.retryable, rec.Header().Get("Retry-After") != "")
			assert.Contains(t, rec.Body.String(), `"status":"error"`)
		})
	}
}

func TestRouter_DeleteTask(t *testing.T) {
	s := setupServer(t)
	owner := s.token(t, "owner-1", domain.RoleRequester)
	tasker := s.token(t, "tasker-1", domain.RoleTasker)
	taskID := s.createTask(t, "owner-1", true)

	rec, _ := s.do(t, http.MethodPost, "/bids", tasker, map[string]any{"taskId": taskID, "amount": 90})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, _ = s.do(t, http.MethodDelete, "/tasks/"+taskID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = s.do(t, http.MethodDelete, "/tasks/"+taskID, tasker, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = s.do(t, http.MethodDelete, "/tasks/"+taskID, s.token(t, "owner-2", domain.RoleRequester), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body := s.do(t, http.MethodDelete, "/tasks/"+taskID, owner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "success", body["status"])

	rec, _ = s.do(t, http.MethodGet, "/tasks/"+taskID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, body = s.do(t, http.MethodGet, "/bids/mine", tasker, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["count"])
}
