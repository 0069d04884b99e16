package invitation

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/bankroll/pkg/middleware"
	"github.com/fkhayef/bankroll/pkg/response"
)

// Handler handles HTTP requests for invitations
type Handler struct {
	issuer   *Issuer
	resolver *Resolver
}

// NewHandler creates a new invitation handler
func NewHandler(issuer *Issuer, resolver *Resolver) *Handler {
	return &Handler{issuer: issuer, resolver: resolver}
}

// Routes returns the router for invitation endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/email", h.IssueEmail)
	r.Post("/sms", h.IssueSMS)
	r.Post("/link", h.IssueLink)
	r.Post("/bulk", h.IssueBulk)

	// Inviter side, addressed by invitation ID
	r.Get("/sent", h.List)
	r.Post("/sent/{id}/resend", h.Resend)
	r.Delete("/sent/{id}", h.Cancel)

	// Invitee side, addressed by token
	r.Get("/{token}", h.Preview)
	r.Post("/{token}/accept", h.Accept)
	r.Post("/{token}/decline", h.Decline)
	r.Post("/{token}/verify-password", h.VerifyPassword)

	return r
}

// IssueEmail handles POST /invitations/email
// @Summary      Invite by email
// @Tags         invitations
// @Accept       json
// @Produce      json
// @Param        request body EmailInviteRequest true "Invitation"
// @Success      201 {object} response.APIResponse{data=InvitationResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      403 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /invitations/email [post]
func (h *Handler) IssueEmail(w http.ResponseWriter, r *http.Request) {
	inviterID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}

	var req EmailInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	issued, err := h.issuer.IssueEmailInvite(r.Context(), req.GroupID, inviterID, req.Email, req.Message)
	if err != nil {
		response.FromError(w, err, "Failed to create invitation")
		return
	}

	response.JSON(w, http.StatusCreated, issued.ToResponse())
}

// IssueSMS handles POST /invitations/sms
// @Summary      Invite by text message
// @Tags         invitations
// @Accept       json
// @Produce      json
// @Param        request body SMSInviteRequest true "Invitation"
// @Success      201 {object} response.APIResponse{data=InvitationResponse}
// @Router       /invitations/sms [post]
func (h *Handler) IssueSMS(w http.ResponseWriter, r *http.Request) {
	inviterID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}

	var req SMSInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	issued, err := h.issuer.IssueSMSInvite(r.Context(), req.GroupID, inviterID, req.Phone, req.Message)
	if err != nil {
		response.FromError(w, err, "Failed to create invitation")
		return
	}

	response.JSON(w, http.StatusCreated, issued.ToResponse())
}

// IssueLink handles POST /invitations/link
// @Summary      Create an invitation link
// @Tags         invitations
// @Accept       json
// @Produce      json
// @Param        request body LinkInviteRequest true "Link options"
// @Success      201 {object} response.APIResponse{data=InvitationResponse}
// @Router       /invitations/link [post]
func (h *Handler) IssueLink(w http.ResponseWriter, r *http.Request) {
	inviterID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}

	var req LinkInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TTLHours < 0 {
		response.BadRequest(w, "Invalid request body")
		return
	}

	opts := LinkOptions{TTL: time.Duration(req.TTLHours) * time.Hour}
	if req.Password != nil {
		opts.Password = *req.Password
	}

	issued, err := h.issuer.IssueLinkInvite(r.Context(), req.GroupID, inviterID, opts)
	if err != nil {
		response.FromError(w, err, "Failed to create invitation link")
		return
	}

	response.JSON(w, http.StatusCreated, issued.ToResponse())
}

// IssueBulk handles POST /invitations/bulk
// @Summary      Invite many recipients
// @Description  Duplicates are skipped and reported in the summary
// @Tags         invitations
// @Accept       json
// @Produce      json
// @Param        request body BulkInviteRequest true "Recipients"
// @Success      200 {object} response.APIResponse{data=BulkResult}
// @Router       /invitations/bulk [post]
func (h *Handler) IssueBulk(w http.ResponseWriter, r *http.Request) {
	inviterID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}

	var req BulkInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Recipients) == 0 {
		response.BadRequest(w, "Invalid request body")
		return
	}

	result, err := h.issuer.IssueBulkInvites(r.Context(), req.GroupID, inviterID, req.Recipients, req.Message)
	if err != nil {
		response.FromError(w, err, "Failed to send invitations")
		return
	}

	response.JSON(w, http.StatusOK, result)
}

// List handles GET /invitations/sent?group_id=&status=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}

	groupID, err := strconv.ParseInt(r.URL.Query().Get("group_id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid group ID")
		return
	}
	status := Status(r.URL.Query().Get("status"))

	invitations, err := h.issuer.List(r.Context(), groupID, userID, status)
	if err != nil {
		response.FromError(w, err, "Failed to list invitations")
		return
	}

	responses := make([]*InvitationResponse, len(invitations))
	for i, inv := range invitations {
		responses[i] = inv.ToResponse()
	}

	response.JSON(w, http.StatusOK, responses)
}

// Resend handles POST /invitations/sent/{id}/resend
func (h *Handler) Resend(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid invitation ID")
		return
	}

	issued, err := h.issuer.Resend(r.Context(), id, userID)
	if err != nil {
		response.FromError(w, err, "Failed to resend invitation")
		return
	}

	response.JSON(w, http.StatusOK, issued.ToResponse())
}

// Cancel handles DELETE /invitations/sent/{id}
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid invitation ID")
		return
	}

	inv, err := h.resolver.Cancel(r.Context(), id, userID)
	if err != nil {
		response.FromError(w, err, "Failed to cancel invitation")
		return
	}

	response.JSON(w, http.StatusOK, inv.ToResponse())
}

// Preview handles GET /invitations/{token}
// @Summary      Describe an invitation
// @Tags         invitations
// @Produce      json
// @Param        token path string true "Invitation token"
// @Success      200 {object} response.APIResponse{data=Preview}
// @Failure      404 {object} response.APIResponse
// @Router       /invitations/{token} [get]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	preview, err := h.resolver.Preview(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		response.FromError(w, err, "Failed to load invitation")
		return
	}

	response.JSON(w, http.StatusOK, preview)
}

// Accept handles POST /invitations/{token}/accept
// @Summary      Accept an invitation
// @Tags         invitations
// @Accept       json
// @Produce      json
// @Param        token path string true "Invitation token"
// @Param        request body AcceptRequest false "Password for protected links"
// @Success      200 {object} response.APIResponse
// @Failure      401 {object} response.APIResponse
// @Failure      403 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Failure      410 {object} response.APIResponse
// @Router       /invitations/{token}/accept [post]
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}

	var req AcceptRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "Invalid request body")
			return
		}
	}

	member, err := h.resolver.Accept(r.Context(), chi.URLParam(r, "token"), userID, req.Password)
	if err != nil {
		response.FromError(w, err, "Failed to accept invitation")
		return
	}

	response.JSON(w, http.StatusOK, member.ToResponse())
}

// Decline handles POST /invitations/{token}/decline
func (h *Handler) Decline(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUser(w, r)
	if !ok {
		return
	}

	if err := h.resolver.Decline(r.Context(), chi.URLParam(r, "token"), userID); err != nil {
		response.FromError(w, err, "Failed to decline invitation")
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"message": "Invitation declined"})
}

// VerifyPassword handles POST /invitations/{token}/verify-password
func (h *Handler) VerifyPassword(w http.ResponseWriter, r *http.Request) {
	var req VerifyPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.resolver.VerifyPassword(r.Context(), chi.URLParam(r, "token"), req.Password); err != nil {
		response.FromError(w, err, "Failed to verify password")
		return
	}

	response.JSON(w, http.StatusOK, map[string]bool{"valid": true})
}
