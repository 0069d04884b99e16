package notification

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/bankroll/pkg/middleware"
	"github.com/fkhayef/bankroll/pkg/response"
)

// Handler handles HTTP requests for notification operations
type Handler struct {
	service *Service
}

// NewHandler creates a new notification handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for notification endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/unread-count", h.GetUnreadCount)
	r.Post("/{id}/read", h.MarkAsRead)
	r.Post("/read-all", h.MarkAllAsRead)
	r.Get("/preferences", h.GetPreferences)
	r.Put("/preferences", h.UpdatePreferences)

	return r
}

// List handles GET /notifications
// @Summary      List your notification feed
// @Description  Filter by group_id or by entity_type (GROUP, INVITATION, JOIN_REQUEST)
// @Tags         notifications
// @Produce      json
// @Param        unread_only query bool false "Only unread entries"
// @Param        group_id query int false "Group ID"
// @Param        entity_type query string false "Entity type"
// @Success      200 {object} response.APIResponse{data=[]NotificationResponse}
// @Failure      400 {object} response.APIResponse
// @Router       /notifications [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}

	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}
	filter.UnreadOnly = r.URL.Query().Get("unread_only") == "true"

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	notifications, total, err := h.service.List(r.Context(), userID, filter, page, perPage)
	if err != nil {
		response.FromError(w, err, "Failed to list notifications")
		return
	}

	responses := make([]*NotificationResponse, len(notifications))
	for i, n := range notifications {
		responses[i] = n.ToResponse()
	}

	response.JSONWithMeta(w, http.StatusOK, responses, &response.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: (total + perPage - 1) / perPage,
	})
}

// GetUnreadCount handles GET /notifications/unread-count
func (h *Handler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}

	count, err := h.service.GetUnreadCount(r.Context(), userID)
	if err != nil {
		response.FromError(w, err, "Failed to get unread count")
		return
	}

	response.JSON(w, http.StatusOK, UnreadCountResponse{UnreadCount: count})
}

// MarkAsRead handles POST /notifications/{id}/read
func (h *Handler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "Invalid notification ID")
		return
	}

	if err := h.service.MarkAsRead(r.Context(), id, userID); err != nil {
		response.FromError(w, err, "Failed to mark notification as read")
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"message": "Notification marked as read"})
}

// MarkAllAsRead handles POST /notifications/read-all
// @Summary      Mark your feed as read
// @Description  Accepts the same group_id and entity_type filters as the feed listing
// @Tags         notifications
// @Produce      json
// @Param        group_id query int false "Group ID"
// @Param        entity_type query string false "Entity type"
// @Success      200 {object} response.APIResponse{data=MarkedResponse}
// @Failure      400 {object} response.APIResponse
// @Router       /notifications/read-all [post]
func (h *Handler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}

	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}

	n, err := h.service.MarkAllAsRead(r.Context(), userID, filter)
	if err != nil {
		response.FromError(w, err, "Failed to mark notifications as read")
		return
	}

	response.JSON(w, http.StatusOK, MarkedResponse{Marked: n})
}

// GetPreferences handles GET /notifications/preferences
// @Summary      Get notification preferences
// @Tags         notifications
// @Produce      json
// @Success      200 {object} response.APIResponse{data=Preferences}
// @Router       /notifications/preferences [get]
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}

	prefs, err := h.service.GetPreferences(r.Context(), userID)
	if err != nil {
		response.FromError(w, err, "Failed to get notification preferences")
		return
	}

	response.JSON(w, http.StatusOK, prefs)
}

// UpdatePreferences handles PUT /notifications/preferences
// @Summary      Update notification preferences
// @Tags         notifications
// @Accept       json
// @Produce      json
// @Param        request body UpdatePreferencesRequest true "Channels to enable or disable"
// @Success      200 {object} response.APIResponse{data=Preferences}
// @Router       /notifications/preferences [put]
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}

	var req UpdatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	prefs, err := h.service.UpdatePreferences(r.Context(), userID, &req)
	if err != nil {
		response.FromError(w, err, "Failed to update notification preferences")
		return
	}

	response.JSON(w, http.StatusOK, prefs)
}

// parseFilter reads the group_id and entity_type query parameters
func parseFilter(w http.ResponseWriter, r *http.Request) (Filter, bool) {
	var f Filter
	q := r.URL.Query()

	if raw := q.Get("group_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			response.BadRequest(w, "Invalid group ID")
			return f, false
		}
		f.GroupID = id
	}

	if raw := q.Get("entity_type"); raw != "" {
		f.EntityType = EntityType(strings.ToUpper(raw))
		if !f.EntityType.Valid() {
			response.BadRequest(w, "Unknown entity type")
			return f, false
		}
	}
	return f, true
}
