package handlers

import (
	"net/http"
	"time"

	"github.com/chukwumela909/taskhub-server/domain"
	"github.com/chukwumela909/taskhub-server/geo"
	"github.com/chukwumela909/taskhub-server/services"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

type TaskHandler struct {
	tasks  *services.TaskService
	bids   *services.BidService
	tracer trace.Tracer
}

func NewTaskHandler(t *services.TaskService, b *services.BidService, tr trace.Tracer) *TaskHandler {
	return &TaskHandler{t, b, tr}
}

type taskResp struct {
	Status  string       `json:"status"`
	Message string       `json:"message,omitempty"`
	Task    *domain.Task `json:"task"`
}

type taskListResp struct {
	Status      string       `json:"status"`
	Count       int          `json:"count"`
	Total       int64        `json:"total"`
	TotalPages  int          `json:"totalPages"`
	CurrentPage int          `json:"currentPage"`
	Tasks       domain.Tasks `json:"tasks"`
}

func newTaskListResp(page *services.TaskPage) taskListResp {
	return taskListResp{
		Status:      "success",
		Count:       len(page.Tasks),
		Total:       page.Pagination.Total,
		TotalPages:  page.Pagination.TotalPages,
		CurrentPage: page.Pagination.Page,
		Tasks:       page.Tasks,
	}
}

// Create - POST /tasks
func (h TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "TaskHandler.Create")
	defer span.End()

	req := &struct {
		Title       string          `json:"title"`
		Description string          `json:"description"`
		Categories  []string        `json:"categories"`
		Category    []string        `json:"category"`
		Tags        []string        `json:"tags"`
		Images      []domain.Image  `json:"images"`
		Location    *geo.Point      `json:"location"`
		Budget      decimal.Decimal `json:"budget"`
		Bidding     bool            `json:"isBiddingEnabled"`
		Deadline    *time.Time      `json:"deadline"`
	}{}
	if err := readReq(req, r, w); err != nil {
		return
	}
	principal, _ := principalFrom(r)

	task, err := h.tasks.Create(ctx, services.CreateTaskCommand{
		OwnerID:        principal.ID,
		Title:          req.Title,
		Description:    req.Description,
		Categories:     append(req.Categories, req.Category...),
		Tags:           req.Tags,
		Images:         req.Images,
		Budget:         req.Budget,
		BiddingEnabled: req.Bidding,
		Location:       req.Location,
		Deadline:       req.Deadline,
	})
	if err != nil {
		writeErrorResp(err, w)
		return
	}
	writeResp(taskResp{Status: "success", Message: "Task created successfully", Task: task}, http.StatusCreated, w)
}

// GetAll - GET /tasks?status=&category=&biddingEnabled=&page=&limit=
func (h TaskHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "TaskHandler.GetAll")
	defer span.End()

	status, err := queryTaskStatus(r)
	if err != nil {
		writeErrorResp(err, w)
		return
	}
	// same name as the request bodies, biddingEnabled is accepted too
	bidding, err := queryBool(r, "isBiddingEnabled")
	if err != nil {
		writeErrorResp(err, w)
		return
	}
	if bidding == nil {
		if bidding, err = queryBool(r, "biddingEnabled"); err != nil {
			writeErrorResp(err, w)
			return
		}
	}

	page, err := h.tasks.List(ctx, services.TaskListQuery{
		Status:         status,
		Category:       r.URL.Query().Get("category"),
		BiddingEnabled: bidding,
		Page:           queryInt(r, "page"),
		PageSize:       queryInt(r, "limit"),
	})
	if err != nil {
		writeErrorResp(err, w)
		return
	}
	writeResp(newTaskListResp(page), http.StatusOK, w)
}

func (h TaskHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "TaskHandler.GetByID")
	defer span.End()

	task, err := h.tasks.Get(ctx, mux.Vars(r)["id"])
	if err != nil {
		writeErrorResp(err, w)
		return
	}
	writeResp(taskResp{Status: "success", Task: task}, http.StatusOK, w)
}

// GetMine - GET /users/me/tasks, the requester's own tasks.
func (h TaskHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "TaskHandler.GetMine")
	defer span.End()

	status, err := queryTaskStatus(r)
	if err != nil {
		writeErrorResp(err, w)
		return
	}
	principal, _ := principalFrom(r)

	page, err := h.tasks.ListForOwner(ctx, principal.ID, status, queryInt(r, "page"), queryInt(r, "limit"))
	if err != nil {
		writeErrorResp(err, w)
		return
	}
	writeResp(newTaskListResp(page), http.StatusOK, w)
}

// Update - PATCH /tasks/{id}. Omitted fields stay unchanged.
func (h TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "TaskHandler.Update")
	defer span.End()

	req := &struct {
		Title       *string          `json:"title"`
		Description *string          `json:"description"`
		Categories  []string         `json:"categories"`
		Tags        []string         `json:"tags"`
		Images      []domain.Image   `json:"images"`
		Location    *geo.Point       `json:"location"`
		Budget      *decimal.Decimal `json:"budget"`
		Bidding     *bool            `json:"isBiddingEnabled"`
		Deadline    *time.Time       `json:"deadline"`
	}{}
	if err := readReq(req, r, w); err != nil {
		return
	}
	principal, _ := principalFrom(r)

	task, err := h.tasks.Update(ctx, services.UpdateTaskCommand{
		TaskID:         mux.Vars(r)["id"],
		OwnerID:        principal.ID,
		Title:          req.Title,
		Description:    req.Description,
		Categories:     req.Categories,
		Tags:           req.Tags,
		Images:         req.Images,
		Budget:         req.Budget,
		BiddingEnabled: req.Bidding,
		Location:       req.Location,
		Deadline:       req.Deadline,
	})
	if err != nil {
		writeErrorResp(err, w)
		return
	}
	writeResp(taskResp{Status: "success", Message: "Task updated successfully", Task: task}, http.StatusOK, w)
}

// ChangeStatus - PATCH /tasks/{id}/status. Requesters cancel, the assigned
// tasker starts and completes.
func (h TaskHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "TaskHandler.ChangeStatus")
	defer span.End()

	req := &struct {
		Status string `json:"status"`
	}{}
	if err := readReq(req, r, w); err != nil {
		return
	}
	status, err := domain.TaskStatusFromString(req.Status)
	if err != nil {
		writeErrorResp(err, w)
		return
	}
	principal, _ := principalFrom(r)

	task, err := h.tasks.ChangeStatus(ctx, services.ChangeStatusCommand{
		TaskID:  mux.Vars(r)["id"],
		ActorID: principal.ID,
		Status:  status,
	})
	if err != nil {
		writeErrorResp(err, w)
		return
	}
	writeResp(taskResp{Status: "success", Message: "Task status updated successfully", Task: task}, http.StatusOK, w)
}

// Delete - DELETE /tasks/{id}, removes the task and its bids.
func (h TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "TaskHandler.Delete")
	defer span.End()

	principal, _ := principalFrom(r)
	if err := h.tasks.Delete(ctx, mux.Vars(r)["id"], principal.ID); err != nil {
		writeErrorResp(err, w)
		return
	}
	writeResp(statusResp{Status: "success", Message: "Task deleted successfully"}, http.StatusOK, w)
}

// GetBids - GET /tasks/{id}/bids, visible to the task owner only.
func (h TaskHandler) GetBids(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "TaskHandler.GetBids")
	defer span.End()

	principal, _ := principalFrom(r)
	bids, err := h.bids.ListForTask(ctx, mux.Vars(r)["id"], principal.ID)
	if err != nil {
		writeErrorResp(err, w)
		return
	}
	writeResp(bidListResp{Status: "success", Count: len(bids), Bids: bids}, http.StatusOK, w)
}
