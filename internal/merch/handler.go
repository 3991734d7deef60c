package merch

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campus-fest/backend/internal/middleware"
	"github.com/campus-fest/backend/internal/models"
	"github.com/campus-fest/backend/pkg/response"
)

// ItemRequest is the body for POST /events/:id/merch/items.
type ItemRequest struct {
	Name       string `json:"name" binding:"required"`
	Size       string `json:"size"`
	Color      string `json:"color"`
	Variant    string `json:"variant"`
	PriceCents int    `json:"price_cents"`
	Stock      int    `json:"stock"`
}

// PurchaseRequest is the body for POST /events/:id/merch/purchase.
type PurchaseRequest struct {
	Name     string `json:"name" binding:"required"`
	Size     string `json:"size"`
	Color    string `json:"color"`
	Variant  string `json:"variant"`
	Quantity int    `json:"quantity" binding:"required"`
}

// Handler handles merchandise HTTP endpoints.
type Handler struct {
	service *Service
	repo    *Repository
	logger  *zap.Logger
}

// NewHandler creates a merch handler.
func NewHandler(service *Service, repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, repo: repo, logger: logger}
}

// CreateItem handles POST /events/:id/merch/items (organizer).
func (h *Handler) CreateItem(c *gin.Context) {
	ev, ok := h.loadOwnedEvent(c)
	if !ok {
		return
	}
	if ev.Type != models.EventMerchandise {
		response.Rejected(c, ErrNotMerch)
		return
	}
	var req ItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Stock < 0 || req.PriceCents < 0 {
		response.BadRequest(c, "stock and price must not be negative")
		return
	}
	item := &models.MerchItem{
		EventID:    ev.ID,
		Name:       req.Name,
		Size:       req.Size,
		Color:      req.Color,
		Variant:    req.Variant,
		PriceCents: req.PriceCents,
		Stock:      req.Stock,
	}
	if err := h.repo.CreateItem(c.Request.Context(), item); err != nil {
		h.logger.Error("create merch item", zap.Error(err))
		response.Internal(c, "could not create item")
		return
	}
	response.Created(c, item)
}

// ListItems handles GET /events/:id/merch/items.
func (h *Handler) ListItems(c *gin.Context) {
	eventID, ok := pathID(c, "id", "invalid event id")
	if !ok {
		return
	}
	items, err := h.repo.ListItems(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("list merch items", zap.Error(err))
		response.Internal(c, "could not list items")
		return
	}
	response.OK(c, items)
}

// Purchase handles POST /events/:id/merch/purchase (participant).
func (h *Handler) Purchase(c *gin.Context) {
	eventID, ok := pathID(c, "id", "invalid event id")
	if !ok {
		return
	}
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	key := models.MerchKey{Name: req.Name, Size: req.Size, Color: req.Color, Variant: req.Variant}
	reg, err := h.service.Purchase(c.Request.Context(), eventID, currentUserID(c), key, req.Quantity)
	if err != nil {
		h.rejectOrInternal(c, err, "purchase")
		return
	}
	response.Created(c, reg)
}

// GetOrder handles GET /orders/:id (organizer/admin).
func (h *Handler) GetOrder(c *gin.Context) {
	regID, ok := pathID(c, "id", "invalid order id")
	if !ok {
		return
	}
	reg, selections, err := h.repo.Order(c.Request.Context(), regID)
	if err != nil {
		h.rejectOrInternal(c, err, "get order")
		return
	}
	response.OK(c, gin.H{"order": reg, "selections": selections})
}

// Approve handles POST /orders/:id/approve (organizer/admin).
func (h *Handler) Approve(c *gin.Context) {
	regID, ok := pathID(c, "id", "invalid order id")
	if !ok {
		return
	}
	reg, err := h.service.Approve(c.Request.Context(), regID)
	if err != nil {
		h.rejectOrInternal(c, err, "approve order")
		return
	}
	response.OK(c, reg)
}

// Reject handles POST /orders/:id/reject (organizer/admin).
func (h *Handler) Reject(c *gin.Context) {
	regID, ok := pathID(c, "id", "invalid order id")
	if !ok {
		return
	}
	if err := h.service.Reject(c.Request.Context(), regID); err != nil {
		h.rejectOrInternal(c, err, "reject order")
		return
	}
	response.NoContent(c)
}

func (h *Handler) loadOwnedEvent(c *gin.Context) (*models.Event, bool) {
	eventID, ok := pathID(c, "id", "invalid event id")
	if !ok {
		return nil, false
	}
	ev, err := h.repo.GetEvent(c.Request.Context(), eventID)
	if err != nil {
		h.rejectOrInternal(c, err, "load event")
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
