package handlers

import (
	"net/http"

	"github.com/chukwumela909/taskhub-server/domain"

	"github.com/gorilla/mux"
)

type Handlers struct {
	Auth  *AuthHandler
	Tasks *TaskHandler
	Bids  *BidHandler
	Feed  *FeedHandler
	// Notifications is optional; the inbox route is only mounted when set.
	Notifications *NotificationHandler
}

func NewRouter(h Handlers) *mux.Router {
	router := mux.NewRouter()
	router.Use(MiddlewareContentTypeSet)
	router.Use(ExtractTraceInfoMiddleware)

	// private routes carry the auth middleware, role routers add a role check
	privateRouter := router.NewRoute().Subrouter()
	privateRouter.Use(h.Auth.MiddlewareAuth)

	requesterRouter := privateRouter.NewRoute().Subrouter()
	requesterRouter.Use(RequireRole(domain.RoleRequester))

	taskerRouter := privateRouter.NewRoute().Subrouter()
	taskerRouter.Use(RequireRole(domain.RoleTasker))

	getRouter := router.Methods(http.MethodGet).Subrouter()
	getRouter.HandleFunc("/tasks", h.Tasks.GetAll)
	getRouter.HandleFunc("/tasks/{id}", h.Tasks.GetByID)

	requesterGet := requesterRouter.Methods(http.MethodGet).Subrouter()
	requesterGet.HandleFunc("/users/me/tasks", h.Tasks.GetMine)
	requesterGet.HandleFunc("/tasks/{id}/bids", h.Tasks.GetBids)

	taskerGet := taskerRouter.Methods(http.MethodGet).Subrouter()
	taskerGet.HandleFunc("/feed", h.Feed.Get)
	taskerGet.HandleFunc("/bids/mine", h.Bids.GetMine)

	privateGet := privateRouter.Methods(http.MethodGet).Subrouter()
	privateGet.HandleFunc("/bids/{id}", h.Bids.GetByID)
	if h.Notifications != nil {
		privateGet.HandleFunc("/notifications/mine", h.Notifications.GetMine)
	}

	requesterPost := requesterRouter.Methods(http.MethodPost).Subrouter()
	requesterPost.HandleFunc("/tasks", h.Tasks.Create)

	taskerPost := taskerRouter.Methods(http.MethodPost).Subrouter()
	taskerPost.HandleFunc("/bids", h.Bids.Create)

	requesterPatch := requesterRouter.Methods(http.MethodPatch).Subrouter()
	requesterPatch.HandleFunc("/tasks/{id}", h.Tasks.Update)
	requesterPatch.HandleFunc("/bids/{id}/accept", h.Bids.Accept)

	// requesters cancel, assigned taskers start and complete
	privatePatch := privateRouter.Methods(http.MethodPatch).Subrouter()
	privatePatch.HandleFunc("/tasks/{id}/status", h.Tasks.ChangeStatus)

	taskerPut := taskerRouter.Methods(http.MethodPut).Subrouter()
	taskerPut.HandleFunc("/bids/{id}", h.Bids.Update)

	requesterDelete := requesterRouter.Methods(http.MethodDelete).Subrouter()
	requesterDelete.HandleFunc("/tasks/{id}", h.Tasks.Delete)

	taskerDelete := taskerRouter.Methods(http.MethodDelete).Subrouter()
	taskerDelete.HandleFunc("/bids/{id}", h.Bids.Delete)

	return router
}
