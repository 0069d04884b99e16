package joinrequest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/bankroll/pkg/middleware"
	"github.com/fkhayef/bankroll/pkg/response"
)

// Handler handles HTTP requests for join requests
type Handler struct {
	service *Service
}

// NewHandler creates a new join request handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for join request endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/", h.ListPending)
	r.Post("/approve", h.Approve)
	r.Post("/reject", h.Reject)

	return r
}

// Create handles POST /join-requests
// @Summary      Ask to join a group
// @Description  Public groups are joined immediately; private groups get a pending request
// @Tags         join-requests
// @Accept       json
// @Produce      json
// @Param        request body CreateJoinRequest true "Join request"
// @Success      201 {object} response.APIResponse{data=OutcomeResponse}
// @Failure      404 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /join-requests [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}

	var req CreateJoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GroupID == 0 {
		response.BadRequest(w, "Invalid request body")
		return
	}

	outcome, err := h.service.RequestToJoin(r.Context(), req.GroupID, userID, req.Message)
	if err != nil {
		response.FromError(w, err, "Failed to request to join")
		return
	}

	response.JSON(w, http.StatusCreated, outcome.ToResponse())
}

// ListPending handles GET /join-requests?group_id=
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}

	groupID, err := strconv.ParseInt(r.URL.Query().Get("group_id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid group ID")
		return
	}

	requests, err := h.service.ListPending(r.Context(), groupID, adminID)
	if err != nil {
		response.FromError(w, err, "Failed to list join requests")
		return
	}

	responses := make([]*JoinRequestResponse, len(requests))
	for i, jr := range requests {
		responses[i] = jr.ToResponse()
	}

	response.JSON(w, http.StatusOK, responses)
}

// Approve handles POST /join-requests/approve
// @Summary      Approve a join request
// @Tags         join-requests
// @Accept       json
// @Produce      json
// @Param        request body ResolveRequest true "Request to approve"
// @Success      200 {object} response.APIResponse
// @Failure      403 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /join-requests/approve [post]
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	member, err := h.service.Approve(r.Context(), req.GroupID, req.UserID, adminID)
	if err != nil {
		response.FromError(w, err, "Failed to approve join request")
		return
	}

	response.JSON(w, http.StatusOK, member.ToResponse())
}

// Reject handles POST /join-requests/reject
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	jr, err := h.service.Reject(r.Context(), req.GroupID, req.UserID, adminID)
	if err != nil {
		response.FromError(w, err, "Failed to reject join request")
		return
	}

	response.JSON(w, http.StatusOK, jr.ToResponse())
}
