package teams

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campus-fest/backend/internal/middleware"
	"github.com/campus-fest/backend/pkg/response"
)

// CreateRequest is the body for POST /events/:id/teams.
type CreateRequest struct {
	Name     string   `json:"name" binding:"required"`
	MaxSize  int      `json:"max_size"`
	Invitees []string `json:"invitees"`
}

// InviteRequest is the body for POST /teams/:id/invites.
type InviteRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// RespondRequest is the body for POST /teams/:id/respond.
type RespondRequest struct {
	Accept      bool            `json:"accept"`
	FormAnswers json.RawMessage `json:"form_answers"`
}

// Handler handles team HTTP endpoints.
type Handler struct {
	service *Service
	repo    *Repository
	logger  *zap.Logger
}

// NewHandler creates a teams handler.
func NewHandler(service *Service, repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, repo: repo, logger: logger}
}

// Create handles POST /events/:id/teams (participant becomes leader).
func (h *Handler) Create(c *gin.Context) {
	eventID, ok := pathID(c, "id", "invalid event id")
	if !ok {
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	team, err := h.service.CreateTeam(c.Request.Context(), eventID, currentUserID(c), req.Name, req.MaxSize, req.Invitees)
	if err != nil {
		h.rejectOrInternal(c, err, "create team")
		return
	}
	response.Created(c, team)
}

// Get handles GET /teams/:id.
func (h *Handler) Get(c *gin.Context) {
	teamID, ok := pathID(c, "id", "invalid team id")
	if !ok {
		return
	}
	team, err := h.repo.GetTeam(c.Request.Context(), teamID)
	if err != nil {
		h.rejectOrInternal(c, err, "get team")
		return
	}
	response.OK(c, team)
}

// Mine handles GET /teams/mine (participant).
func (h *Handler) Mine(c *gin.Context) {
	teams, err := h.repo.TeamsForUser(c.Request.Context(), currentUserID(c), currentUserEmail(c))
	if err != nil {
		h.logger.Error("list teams", zap.Error(err))
		response.Internal(c, "could not list teams")
		return
	}
	response.OK(c, teams)
}

// Invite handles POST /teams/:id/invites (leader).
func (h *Handler) Invite(c *gin.Context) {
	teamID, ok := pathID(c, "id", "invalid team id")
	if !ok {
		return
	}
	var req InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	team, err := h.service.Invite(c.Request.Context(), teamID, currentUserID(c), req.Email)
	if err != nil {
		h.rejectOrInternal(c, err, "invite")
		return
	}
	response.OK(c, team)
}

// Respond handles POST /teams/:id/respond (invited participant).
func (h *Handler) Respond(c *gin.Context) {
	teamID, ok := pathID(c, "id", "invalid team id")
	if !ok {
		return
	}
	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	team, err := h.service.Respond(c.Request.Context(), teamID, currentUserID(c), currentUserEmail(c), req.Accept, req.FormAnswers)
	if err != nil {
		h.rejectOrInternal(c, err, "respond")
		return
	}
	response.OK(c, team)
}

// RemoveMember handles DELETE /teams/:id/members/:memberID (leader).
func (h *Handler) RemoveMember(c *gin.Context) {
	teamID, ok := pathID(c, "id", "invalid team id")
	if !ok {
		return
	}
	memberID, ok := pathID(c, "memberID", "invalid member id")
	if !ok {
		return
	}
	if err := h.service.RemoveMember(c.Request.Context(), teamID, currentUserID(c), memberID); err != nil {
		h.rejectOrInternal(c, err, "remove member")
		return
	}
	response.NoContent(c)
}

// Register handles POST /teams/:id/register (leader). Admits the whole
// roster or nobody.
func (h *Handler) Register(c *gin.Context) {
	teamID, ok := pathID(c, "id", "invalid team id")
	if !ok {
		return
	}
	regs, err := h.service.RegisterTeam(c.Request.Context(), teamID, currentUserID(c))
	if err != nil {
		h.rejectOrInternal(c, err, "register team")
		return
	}
	response.Created(c, gin.H{"team_id": teamID, "registrations": regs})
}

// Disband handles DELETE /teams/:id (leader).
func (h *Handler) Disband(c *gin.Context) {
	teamID, ok := pathID(c, "id", "invalid team id")
	if !ok {
		return
	}
	if err := h.service.Disband(c.Request.Context(), teamID, currentUserID(c)); err != nil {
		h.rejectOrInternal(c, err, "disband")
		return
	}
	response.NoContent(c)
}

func (h *Handler) rejectOrInternal(c *gin.Context, err error, op string) {
	if r, ok := response.AsRejection(err); ok {
		response.Rejected(c, r)
		return
	}
	h.logger.Error(op+" failed", zap.Error(err))
	response.Internal(c, op+" failed")
}

func pathID(c *gin.Context, param, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.BadRequest(c, msg)
		return uuid.Nil, false
	}
	return id, true
}

func currentUserID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(middleware.ContextUserID)
	id, _ := v.(uuid.UUID)
	return id
}

func currentUserEmail(c *gin.Context) string {
	v, _ := c.Get(middleware.ContextUserEmail)
	email, _ := v.(string)
	return email
}
