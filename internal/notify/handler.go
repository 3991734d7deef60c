package notify

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campus-fest/backend/pkg/response"
)

// Handler exposes the organizer view of notification delivery logs.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a notify handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// ListByEvent handles GET /events/:id/notifications (organizer/admin).
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	logs, err := h.repo.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("list notification logs", zap.Error(err))
		response.Internal(c, "could not list notifications")
		return
	}
	response.OK(c, logs)
}
