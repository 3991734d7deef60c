package events

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campus-fest/backend/internal/middleware"
	"github.com/campus-fest/backend/internal/models"
	"github.com/campus-fest/backend/pkg/response"
)

// CreateRequest is the body for POST /events.
type CreateRequest struct {
	Name                 string          `json:"name" binding:"required"`
	Description          string          `json:"description"`
	Venue                string          `json:"venue"`
	Type                 string          `json:"type"` // standard (default) or merchandise
	RegistrationLimit    int             `json:"registration_limit"`
	StartDate            time.Time       `json:"start_date" binding:"required"`
	EndDate              time.Time       `json:"end_date" binding:"required"`
	RegistrationDeadline *time.Time      `json:"registration_deadline"`
	PurchaseLimitPerUser int             `json:"purchase_limit_per_user"`
	FormConfig           json.RawMessage `json:"form_config"`
}

// UpdateRequest is the body for PATCH /events/:id.
type UpdateRequest struct {
	Name                 string     `json:"name"`
	Description          string     `json:"description"`
	Venue                string     `json:"venue"`
	StartDate            *time.Time `json:"start_date"`
	EndDate              *time.Time `json:"end_date"`
	RegistrationDeadline *time.Time `json:"registration_deadline"`
	RegistrationLimit    *int       `json:"registration_limit"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	repo       *Repository
	reconciler *Reconciler
	logger     *zap.Logger
}

// NewHandler creates an events handler.
func NewHandler(repo *Repository, reconciler *Reconciler, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, reconciler: reconciler, logger: logger}
}

// Create handles POST /events (organizer). The event starts in draft.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	eventType := models.EventStandard
	switch req.Type {
	case "", "standard":
	case "merchandise":
		eventType = models.EventMerchandise
	default:
		response.BadRequest(c, "invalid event type")
		return
	}
	if req.RegistrationLimit < 0 || req.PurchaseLimitPerUser < 0 {
		response.BadRequest(c, "limits must not be negative")
		return
	}
	if !req.EndDate.After(req.StartDate) {
		response.BadRequest(c, "end_date must be after start_date")
		return
	}
	if _, err := ParseFormConfig(req.FormConfig); err != nil {
		if rej, ok := response.AsRejection(err); ok {
			response.Rejected(c, rej)
			return
		}
		response.Internal(c, "failed to parse form config")
		return
	}

	ev := &models.Event{
		Name:                 req.Name,
		Description:          req.Description,
		Venue:                req.Venue,
		Type:                 eventType,
		RegistrationLimit:    req.RegistrationLimit,
		StartDate:            req.StartDate,
		EndDate:              req.EndDate,
		RegistrationDeadline: req.RegistrationDeadline,
		PurchaseLimitPerUser: req.PurchaseLimitPerUser,
		FormConfig:           req.FormConfig,
		CreatedBy:            currentUserID(c),
	}
	if err := h.repo.Create(c.Request.Context(), ev); err != nil {
		h.logger.Error("create event failed", zap.Error(err))
		response.Internal(c, "failed to create event")
		return
	}
	response.Created(c, ev)
}

// Get handles GET /events/:id. Reading an event reconciles its time-driven
// status first, so callers always see the effective phase.
func (h *Handler) Get(c *gin.Context) {
	ev, ok := h.loadEvent(c)
	if !ok {
		return
	}
	ev.Status = h.reconciler.Reconcile(c.Request.Context(), ev, time.Now())
	response.OK(c, ev)
}

// List handles GET /events with optional status and type filters.
func (h *Handler) List(c *gin.Context) {
	var status *models.EventStatus
	if s := c.Query("status"); s != "" {
		v := models.EventStatus(s)
		status = &v
	}
	var eventType *models.EventType
	if s := c.Query("type"); s != "" {
		v := models.EventType(s)
		eventType = &v
	}
	list, err := h.repo.List(c.Request.Context(), status, eventType)
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		response.Internal(c, "failed to list events")
		return
	}
	now := time.Now()
	for _, ev := range list {
		ev.Status = h.reconciler.Reconcile(c.Request.Context(), ev, now)
	}
	response.OK(c, list)
}

// Update handles PATCH /events/:id (owning organizer or admin).
func (h *Handler) Update(c *gin.Context) {
	ev, ok := h.loadOwnedEvent(c)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.RegistrationLimit != nil && *req.RegistrationLimit < 0 {
		response.BadRequest(c, "registration_limit must not be negative")
		return
	}
	err := h.repo.Update(c.Request.Context(), ev.ID, req.Name, req.Description, req.Venue,
		req.StartDate, req.EndDate, req.RegistrationDeadline, req.RegistrationLimit)
	if err != nil {
		h.logger.Error("update event failed", zap.Error(err), zap.String("event_id", ev.ID.String()))
		response.Internal(c, "failed to update event")
		return
	}
	updated, err := h.repo.GetByID(c.Request.Context(), ev.ID)
	if err != nil {
		response.Internal(c, "failed to reload event")
		return
	}
	response.OK(c, updated)
}

// UpdateForm handles PUT /events/:id/form (owning organizer or admin).
func (h *Handler) UpdateForm(c *gin.Context) {
	ev, ok := h.loadOwnedEvent(c)
	if !ok {
		return
	}
	var raw json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if _, err := ParseFormConfig(raw); err != nil {
		if rej, ok := response.AsRejection(err); ok {
			response.Rejected(c, rej)
			return
		}
		response.Internal(c, "failed to parse form config")
		return
	}
	if err := h.repo.UpdateFormConfig(c.Request.Context(), ev.ID, raw); err != nil {
		h.logger.Error("update form config failed", zap.Error(err), zap.String("event_id", ev.ID.String()))
		response.Internal(c, "failed to update form config")
		return
	}
	response.OK(c, gin.H{"event_id": ev.ID})
}

// Publish handles POST /events/:id/publish: draft -> published.
func (h *Handler) Publish(c *gin.Context) {
	h.transition(c, models.StatusDraft, models.StatusPublished, "event is not in draft")
}

// Close handles POST /events/:id/close: published/ongoing -> closed (terminal).
func (h *Handler) Close(c *gin.Context) {
	ev, ok := h.loadOwnedEvent(c)
	if !ok {
		return
	}
	if ev.Status != models.StatusPublished && ev.Status != models.StatusOngoing {
		response.Precondition(c, "not_closable", "only published or ongoing events can be closed")
		return
	}
	applied, err := h.repo.TransitionStatus(c.Request.Context(), ev.ID, ev.Status, models.StatusClosed)
	if err != nil {
		h.logger.Error("close event failed", zap.Error(err), zap.String("event_id", ev.ID.String()))
		response.Internal(c, "failed to close event")
		return
	}
	if !applied {
		response.Conflict(c, "status_changed", "event status changed concurrently, retry")
		return
	}
	response.OK(c, gin.H{"event_id": ev.ID, "status": models.StatusClosed})
}

// Delete handles DELETE /events/:id (owning organizer or admin).
func (h *Handler) Delete(c *gin.Context) {
	ev, ok := h.loadOwnedEvent(c)
	if !ok {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), ev.ID); err != nil {
		h.logger.Error("delete event failed", zap.Error(err), zap.String("event_id", ev.ID.String()))
		response.Internal(c, "failed to delete event")
		return
	}
	response.NoContent(c)
}

func (h *Handler) transition(c *gin.Context, from, to models.EventStatus, notInFrom string) {
	ev, ok := h.loadOwnedEvent(c)
	if !ok {
		return
	}
	if ev.Status != from {
		response.Precondition(c, "wrong_status", notInFrom)
		return
	}
	applied, err := h.repo.TransitionStatus(c.Request.Context(), ev.ID, from, to)
	if err != nil {
		h.logger.Error("event transition failed", zap.Error(err), zap.String("event_id", ev.ID.String()))
		response.Internal(c, "failed to update event status")
		return
	}
	if !applied {
		response.Conflict(c, "status_changed", "event status changed concurrently, retry")
		return
	}
	response.OK(c, gin.H{"event_id": ev.ID, "status": to})
}

func (h *Handler) loadEvent(c *gin.Context) (*models.Event, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return nil, false
	}
	ev, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "event_not_found", "event not found")
		return nil, false
	}
	return ev, true
}

func (h *Handler) loadOwnedEvent(c *gin.Context) (*models.Event, bool) {
	ev, ok := h.loadEvent(c)
	if !ok {
		return nil, false
	}
	role, _ := c.Get(middleware.ContextUserRole)
	if role == string(models.RoleAdmin) {
		return ev, true
	}
	if ev.CreatedBy != currentUserID(c) {
		response.Forbidden(c, "not the event organizer")
		return nil, false
	}
	return ev, true
}

func currentUserID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(middleware.ContextUserID)
	id, _ := v.(uuid.UUID)
	return id
}
