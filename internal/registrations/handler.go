package registrations

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campus-fest/backend/internal/middleware"
	"github.com/campus-fest/backend/internal/models"
	"github.com/campus-fest/backend/pkg/response"
)

// RegisterRequest is the body for POST /events/:id/registrations.
type RegisterRequest struct {
	FormAnswers json.RawMessage `json:"form_answers"`
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	service *Service
	repo    *Repository
	logger  *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(service *Service, repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, repo: repo, logger: logger}
}

// Register handles POST /events/:id/registrations (participant).
func (h *Handler) Register(c *gin.Context) {
	eventID, ok := pathEventID(c)
	if !ok {
		return
	}
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	reg, err := h.service.TryAdmit(c.Request.Context(), eventID, currentUserID(c), req.FormAnswers)
	if err != nil {
		h.rejectOrInternal(c, err, "register")
		return
	}
	response.Created(c, reg)
}

// JoinWaitlist handles POST /events/:id/waitlist (participant).
func (h *Handler) JoinWaitlist(c *gin.Context) {
	eventID, ok := pathEventID(c)
	if !ok {
		return
	}
	entry, err := h.service.JoinWaitlist(c.Request.Context(), eventID, currentUserID(c))
	if err != nil {
		h.rejectOrInternal(c, err, "waitlist join")
		return
	}
	response.Created(c, entry)
}

// Cancel handles DELETE /registrations/:id (participant, own registration).
func (h *Handler) Cancel(c *gin.Context) {
	regID, ok := pathID(c, "id", "invalid registration id")
	if !ok {
		return
	}
	if err := h.service.Cancel(c.Request.Context(), regID, currentUserID(c)); err != nil {
		h.rejectOrInternal(c, err, "cancel")
		return
	}
	response.NoContent(c)
}

// Ticket handles GET /registrations/:id/ticket (participant, own registration).
func (h *Handler) Ticket(c *gin.Context) {
	regID, ok := pathID(c, "id", "invalid registration id")
	if !ok {
		return
	}
	dl, err := h.service.Ticket(c.Request.Context(), regID, currentUserID(c))
	if err != nil {
		h.rejectOrInternal(c, err, "ticket download")
		return
	}
	response.OK(c, dl)
}

// Reject handles POST /registrations/:id/reject (organizer/admin).
func (h *Handler) Reject(c *gin.Context) {
	regID, ok := pathID(c, "id", "invalid registration id")
	if !ok {
		return
	}
	if err := h.service.Reject(c.Request.Context(), regID); err != nil {
		h.rejectOrInternal(c, err, "reject")
		return
	}
	response.NoContent(c)
}

// Mine handles GET /registrations/mine (participant).
func (h *Handler) Mine(c *gin.Context) {
	regs, err := h.repo.ListByUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.logger.Error("list registrations", zap.Error(err))
		response.Internal(c, "could not list registrations")
		return
	}
	response.OK(c, regs)
}

// ListByEvent handles GET /events/:id/registrations (organizer/admin).
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, ok := pathEventID(c)
	if !ok {
		return
	}
	regs, err := h.repo.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("list event registrations", zap.Error(err))
		response.Internal(c, "could not list registrations")
		return
	}
	response.OK(c, regs)
}

// ListWaitlist handles GET /events/:id/waitlist (organizer/admin).
func (h *Handler) ListWaitlist(c *gin.Context) {
	eventID, ok := pathEventID(c)
	if !ok {
		return
	}
	entries, err := h.repo.ListWaitlist(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("list waitlist", zap.Error(err))
		response.Internal(c, "could not list waitlist")
		return
	}
	response.OK(c, entries)
}

// MarkAttended handles POST /registrations/:id/attend (organizer/admin).
func (h *Handler) MarkAttended(c *gin.Context) {
	regID, ok := pathID(c, "id", "invalid registration id")
	if !ok {
		return
	}
	reg, err := h.repo.GetRegistration(c.Request.Context(), regID)
	if err != nil {
		h.rejectOrInternal(c, err, "mark attended")
		return
	}
	if !reg.Active() {
		response.Precondition(c, "registration_inactive", "registration is cancelled or rejected")
		return
	}
	if err := h.repo.MarkAttended(c.Request.Context(), regID); err != nil {
		h.logger.Error("mark attended", zap.Error(err))
		response.Internal(c, "could not mark attendance")
		return
	}
	response.OK(c, gin.H{"registration_id": regID, "attended": true})
}

// MarkPaid handles POST /registrations/:id/paid (organizer/admin). The
// payment status is a bookkeeping label; no funds move through this system.
func (h *Handler) MarkPaid(c *gin.Context) {
	regID, ok := pathID(c, "id", "invalid registration id")
	if !ok {
		return
	}
	if _, err := h.repo.GetRegistration(c.Request.Context(), regID); err != nil {
		h.rejectOrInternal(c, err, "mark paid")
		return
	}
	if err := h.repo.UpdatePaymentStatus(c.Request.Context(), regID, models.PaymentPaid); err != nil {
		h.logger.Error("mark paid", zap.Error(err))
		response.Internal(c, "could not update payment status")
		return
	}
	response.OK(c, gin.H{"registration_id": regID, "payment_status": models.PaymentPaid})
}

func (h *Handler) rejectOrInternal(c *gin.Context, err error, op string) {
	if r, ok := response.AsRejection(err); ok {
		response.Rejected(c, r)
		return
	}
	h.logger.Error(op+" failed", zap.Error(err))
	response.Internal(c, op+" failed")
}

func pathEventID(c *gin.Context) (uuid.UUID, bool) {
	return pathID(c, "id", "invalid event id")
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
