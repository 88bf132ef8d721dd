package handlers

import (
	"net/http"

	"github.com/chukwumela909/taskhub-server/domain"
	"github.com/chukwumela909/taskhub-server/services"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

type BidHandler struct {
	bids   *services.BidService
	accept *services.AcceptanceService
	tracer trace.Tracer
}

func NewBidHandler(b *services.BidService, a *services.AcceptanceService, t trace.Tracer) *BidHandler {
	return &BidHandler{b, a, t}
}

type bidResp struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Bid     *domain.Bid `json:"bid"`
}

type bidListResp struct {
	Status      string      `json:"status"`
	Count       int         `json:"count"`
	Total       int64       `json:"total,omitempty"`
	TotalPages  int         `json:"totalPages,omitempty"`
	CurrentPage int         `json:"currentPage,omitempty"`
	Bids        domain.Bids `json:"bids"`
}

type bidWriteReq struct {
	TaskID  string           `json:"taskId"`
	Amount  *decimal.Decimal `json:"amount"`
	Message *string          `json:"message"`
}

// Create - POST /bids
func (h BidHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "BidHandler.Create")
	defer span.End()

	req := &bidWriteReq{}
	if err := readReq(req, r, w); err != nil {
		return
	}
	principal, _ := principalFrom(r)

	bid, err := h.bids.Submit(ctx, services.SubmitBidCommand{
		TaskID:   req.TaskID,
		TaskerID: principal.ID,
		Amount:   req.Amount,
		Message:  req.Message,
	})
	if err != nil {
		writeErrorResp(err, w)
		return
	}
	writeResp(bidResp{Status: "success", Message: "Bid placed successfully", Bid: bid}, http.StatusCreated, w)
}

// Update - PUT /bids/{id}
func (h BidHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "BidHandler.Update")
	defer span.End()

	req := &bidWriteReq{}
	if err := readReq(req, r, w); err != nil {
		return
	}
	principal, _ := principalFrom(r)

	bid, err := h.bids.Update(ctx, services.UpdateBidCommand{
		BidID:    mux.Vars(r)["id"],
		TaskerID: principal.ID,
		Amount:   req.Amount,
		Message:  req.Message,
	})
	if err != nil {
		writeErrorResp(err, w)
		return
	}
	writeResp(bidResp{Status: "success", Message: "Bid updated successfully", Bid: bid}, http.StatusOK, w)
}

// Delete - DELETE /bids/{id}
func (h BidHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "BidHandler.Delete")
	defer span.End()

	principal, _ := principalFrom(r)
	if err := h.bids.Withdraw(ctx, mux.Vars(r)["id"], principal.ID); err != nil {
		writeErrorResp(err, w)
		return
	}
	writeResp(statusResp{Status: "success", Message: "Bid deleted successfully"}, http.StatusOK, w)
}

func (h BidHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "BidHandler.GetByID")
	defer span.End()

	principal, _ := principalFrom(r)
	bid, err := h.bids.Get(ctx, mux.Vars(r)["id"], principal.ID)
	if err != nil {
		writeErrorResp(err, w)
		return
	}
	writeResp(bidResp{Status: "success", Bid: bid}, http.StatusOK, w)
}

// GetMine - GET /bids/mine?status=&page=&limit=
func (h BidHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "BidHandler.GetMine")
	defer span.End()

	status, err := queryBidStatus(r)
	if err != nil {
		writeErrorResp(err, w)
		return
	}
	principal, _ := principalFrom(r)

	page, err := h.bids.ListForTasker(ctx, principal.ID, status, queryInt(r, "page"), queryInt(r, "limit"))
	if err != nil {
		writeErrorResp(err, w)
		return
	}
	writeResp(bidListResp{
		Status:      "success",
		Count:       len(page.Bids),
		Total:       page.Pagination.Total,
		TotalPages:  page.Pagination.TotalPages,
		CurrentPage: page.Pagination.Page,
		Bids:        page.Bids,
	}, http.StatusOK, w)
}

// Accept - PATCH /bids/{id}/accept
func (h BidHandler) Accept(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "BidHandler.Accept")
	defer span.End()

	principal, _ := principalFrom(r)
	result, err := h.accept.Accept(ctx, mux.Vars(r)["id"], principal.ID)
	if err != nil {
		writeErrorResp(err, w)
		return
	}
	writeResp(struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		*services.AcceptResult
	}{"success", "Bid accepted successfully", result}, http.StatusOK, w)
}
