package group

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/bankroll/pkg/middleware"
	"github.com/fkhayef/bankroll/pkg/response"
)

// Handler handles HTTP requests for group operations
type Handler struct {
	service *Service
}

// NewHandler creates a new group handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for group endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.GetByID)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)

	// Member management
	r.Post("/{id}/members", h.InviteMember)
	r.Get("/{id}/members", h.GetMembers)
	r.Get("/{id}/members/{userId}", h.GetMemberStatus)
	r.Put("/{id}/members/{userId}", h.UpdateMember)
	r.Delete("/{id}/members/{userId}", h.RemoveMember)
	r.Post("/{id}/accept", h.AcceptInvitation)
	r.Post("/{id}/decline", h.DeclineInvitation)
	r.Post("/{id}/join", h.Join)
	r.Post("/{id}/leave", h.Leave)
	r.Post("/{id}/transfer", h.TransferOwnership)

	return r
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil
}

// Create handles POST /groups
// @Summary      Create a new group
// @Description  Create a new group with the caller as owner
// @Tags         groups
// @Accept       json
// @Produce      json
// @Param        request body CreateGroupRequest true "Group creation request"
// @Success      201 {object} response.APIResponse{data=GroupResponse}
// @Failure      400 {object} response.APIResponse
// @Router       /groups [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	group, err := h.service.Create(r.Context(), creatorID, &req)
	if err != nil {
		response.FromError(w, err, "Failed to create group")
		return
	}

	response.JSON(w, http.StatusCreated, group.ToResponse())
}

// GetByID handles GET /groups/{id}
// @Summary      Get group by ID
// @Description  Get a group with all its members
// @Tags         groups
// @Produce      json
// @Param        id path int true "Group ID"
// @Success      200 {object} response.APIResponse{data=GroupResponse}
// @Failure      404 {object} response.APIResponse
// @Router       /groups/{id} [get]
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		response.BadRequest(w, "Invalid group ID")
		return
	}

	group, members, err := h.service.GetByIDWithMembers(r.Context(), id)
	if err != nil {
		response.FromError(w, err, "Failed to get group")
		return
	}

	groupResp := group.ToResponse()
	groupResp.Members = make([]*MemberResponse, len(members))
	for i, m := range members {
		groupResp.Members[i] = m.ToResponse()
	}

	response.JSON(w, http.StatusOK, groupResp)
}

// List handles GET /groups
// @Summary      List my groups
// @Description  Get a paginated list of groups for the current user
// @Tags         groups
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        per_page query int false "Items per page" default(20)
// @Success      200 {object} response.APIResponse{data=[]GroupResponse}
// @Router       /groups [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	groups, total, err := h.service.ListByUserID(r.Context(), userID, page, perPage)
	if err != nil {
		response.InternalError(w, "Failed to list groups")
		return
	}

	groupResponses := make([]*GroupResponse, len(groups))
	for i, group := range groups {
		groupResponses[i] = group.ToResponse()
	}

	totalPages := (total + perPage - 1) / perPage
	meta := &response.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	}

	response.JSONWithMeta(w, http.StatusOK, groupResponses, meta)
}

// Update handles PUT /groups/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		response.BadRequest(w, "Invalid group ID")
		return
	}

	var req UpdateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	group, err := h.service.Update(r.Context(), id, userID, &req)
	if err != nil {
		response.FromError(w, err, "Failed to update group")
		return
	}

	response.JSON(w, http.StatusOK, group.ToResponse())
}

// Delete handles DELETE /groups/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		response.BadRequest(w, "Invalid group ID")
		return
	}

	if err := h.service.Delete(r.Context(), id, userID); err != nil {
		response.FromError(w, err, "Failed to delete group")
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"message": "Group deleted successfully"})
}

// InviteMember handles POST /groups/{id}/members
// @Summary      Invite a user to the group
// @Description  Invite an existing user; they join once they accept
// @Tags         groups
// @Accept       json
// @Produce      json
// @Param        id path int true "Group ID"
// @Param        request body AddMemberRequest true "User to invite"
// @Success      201 {object} response.APIResponse{data=MemberResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /groups/{id}/members [post]
func (h *Handler) InviteMember(w http.ResponseWriter, r *http.Request) {
	actingUserID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(r, "id")
	if !ok {
		response.BadRequest(w, "Invalid group ID")
		return
	}

	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
		response.BadRequest(w, "Invalid request body")
		return
	}

	member, err := h.service.InviteMember(r.Context(), groupID, req.UserID, actingUserID)
	if err != nil {
		response.FromError(w, err, "Failed to invite member")
		return
	}

	response.JSON(w, http.StatusCreated, member.ToResponse())
}

// GetMembers handles GET /groups/{id}/members
func (h *Handler) GetMembers(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(r, "id")
	if !ok {
		response.BadRequest(w, "Invalid group ID")
		return
	}

	members, err := h.service.ListMembers(r.Context(), groupID)
	if err != nil {
		response.FromError(w, err, "Failed to get members")
		return
	}

	memberResponses := make([]*MemberResponse, len(members))
	for i, m := range members {
		memberResponses[i] = m.ToResponse()
	}

	response.JSON(w, http.StatusOK, memberResponses)
}

// GetMemberStatus handles GET /groups/{id}/members/{userId}
func (h *Handler) GetMemberStatus(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(r, "id")
	if !ok {
		response.BadRequest(w, "Invalid group ID")
		return
	}
	userID, ok := pathID(r, "userId")
	if !ok {
		response.BadRequest(w, "Invalid user ID")
		return
	}

	member, err := h.service.GetMember(r.Context(), groupID, userID)
	if err != nil {
		response.FromError(w, err, "Failed to get member")
		return
	}

	response.JSON(w, http.StatusOK, member.ToResponse())
}

// UpdateMember handles PUT /groups/{id}/members/{userId}
// @Summary      Change a member's role
// @Tags         groups
// @Accept       json
// @Produce      json
// @Param        id path int true "Group ID"
// @Param        userId path int true "User ID"
// @Param        request body UpdateMemberRequest true "New role"
// @Success      200 {object} response.APIResponse{data=MemberResponse}
// @Failure      403 {object} response.APIResponse
// @Router       /groups/{id}/members/{userId} [put]
func (h *Handler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	actingUserID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(r, "id")
	if !ok {
		response.BadRequest(w, "Invalid group ID")
		return
	}
	userID, ok := pathID(r, "userId")
	if !ok {
		response.BadRequest(w, "Invalid user ID")
		return
	}

	var req UpdateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	member, err := h.service.UpdateRole(r.Context(), groupID, userID, req.Role, actingUserID)
	if err != nil {
		response.FromError(w, err, "Failed to update member")
		return
	}

	response.JSON(w, http.StatusOK, member.ToResponse())
}

// RemoveMember handles DELETE /groups/{id}/members/{userId}
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actingUserID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(r, "id")
	if !ok {
		response.BadRequest(w, "Invalid group ID")
		return
	}
	userID, ok := pathID(r, "userId")
	if !ok {
		response.BadRequest(w, "Invalid user ID")
		return
	}

	if err := h.service.RemoveMember(r.Context(), groupID, userID, actingUserID); err != nil {
		response.FromError(w, err, "Failed to remove member")
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"message": "Member removed successfully"})
}

// AcceptInvitation handles POST /groups/{id}/accept
func (h *Handler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(r, "id")
	if !ok {
		response.BadRequest(w, "Invalid group ID")
		return
	}

	member, err := h.service.AcceptInvitation(r.Context(), groupID, userID)
	if err != nil {
		response.FromError(w, err, "Failed to accept invitation")
		return
	}

	response.JSON(w, http.StatusOK, member.ToResponse())
}

// DeclineInvitation handles POST /groups/{id}/decline
func (h *Handler) DeclineInvitation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(r, "id")
	if !ok {
		response.BadRequest(w, "Invalid group ID")
		return
	}

	if err := h.service.DeclineInvitation(r.Context(), groupID, userID); err != nil {
		response.FromError(w, err, "Failed to decline invitation")
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"message": "Invitation declined"})
}

// Join handles POST /groups/{id}/join
// @Summary      Join a public group
// @Tags         groups
// @Produce      json
// @Param        id path int true "Group ID"
// @Success      201 {object} response.APIResponse{data=MemberResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /groups/{id}/join [post]
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(r, "id")
	if !ok {
		response.BadRequest(w, "Invalid group ID")
		return
	}

	member, err := h.service.Join(r.Context(), groupID, userID)
	if err != nil {
		response.FromError(w, err, "Failed to join group")
		return
	}

	response.JSON(w, http.StatusCreated, member.ToResponse())
}

// Leave handles POST /groups/{id}/leave
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(r, "id")
	if !ok {
		response.BadRequest(w, "Invalid group ID")
		return
	}

	if err := h.service.Leave(r.Context(), groupID, userID); err != nil {
		response.FromError(w, err, "Failed to leave group")
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"message": "You left the group"})
}

// TransferOwnership handles POST /groups/{id}/transfer
func (h *Handler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	actingUserID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(r, "id")
	if !ok {
		response.BadRequest(w, "Invalid group ID")
		return
	}

	var req TransferOwnershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
		response.BadRequest(w, "Invalid request body")
		return
	}

	group, err := h.service.TransferOwnership(r.Context(), groupID, req.UserID, actingUserID)
	if err != nil {
		response.FromError(w, err, "Failed to transfer ownership")
		return
	}

	response.JSON(w, http.StatusOK, group.ToResponse())
}
