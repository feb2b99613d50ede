package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"inventory-service/internal/events"
	"inventory-service/internal/ledger"
	"inventory-service/internal/models"
	"inventory-service/internal/repository"
)

type InventoryHandler struct {
	ledger         *ledger.Service
	repo           *repository.InventoryRepository
	eventPublisher *events.InventoryEventPublisher
}

func NewInventoryHandler(ledgerService *ledger.Service, repo *repository.InventoryRepository, eventPublisher *events.InventoryEventPublisher) *InventoryHandler {
	return &InventoryHandler{
		ledger:         ledgerService,
		repo:           repo,
		eventPublisher: eventPublisher,
	}
}

// writeError translates service errors into the response envelope
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "NOT_FOUND",
				Message: "Resource not found",
			},
		})
	case errors.Is(err, repository.ErrInsufficientStock):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "INSUFFICIENT_STOCK",
				Message: err.Error(),
			},
		})
	case errors.Is(err, repository.ErrVersionConflict):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "CONFLICT",
				Message: err.Error(),
			},
		})
	case errors.Is(err, ledger.ErrInvalidMovement):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "VALIDATION_ERROR",
				Message: err.Error(),
			},
		})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "PERSISTENCE_FAILURE",
				Message: "Operation failed",
			},
		})
	}
}

func writeValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    "VALIDATION_ERROR",
			Message: err.Error(),
		},
	})
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "INVALID_ID",
				Message: "Invalid " + name,
			},
		})
		return uuid.Nil, false
	}
	return id, true
}

// parsePagination reads page/limit query parameters, capped at 100
func parsePagination(c *gin.Context) (int, int) {
	page := 0
	limit := 0
	if pageStr := c.Query("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	return page, limit
}

func paginationMeta(page, limit int, total int64) *models.PaginationMeta {
	if page <= 0 || limit <= 0 {
		return nil
	}
	totalPages := int(total) / limit
	if int(total)%limit > 0 {
		totalPages++
	}
	return &models.PaginationMeta{
		Page:       page,
		Limit:      limit,
		TotalItems: total,
		TotalPages: totalPages,
	}
}

func actorFrom(c *gin.Context) string {
	if userID := c.GetString("user_id"); userID != "" {
		return userID
	}
	return "system"
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ========== Item Handlers ==========

// CreateItem creates a new inventory item
func (h *InventoryHandler) CreateItem(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	var req models.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}

	item, err := h.ledger.CreateItem(c.Request.Context(), tenantID.(string), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.ItemResponse{
		Success: true,
		Data:    item,
		Message: stringPtr("Item created successfully"),
	})
}

// GetItem retrieves an item by ID
func (h *InventoryHandler) GetItem(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	item, err := h.ledger.GetItem(c.Request.Context(), tenantID.(string), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ItemResponse{
		Success: true,
		Data:    item,
	})
}

// ListItems retrieves items with pagination, optionally scoped to a store
func (h *InventoryHandler) ListItems(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	var storeID *uuid.UUID
	if storeStr := c.Query("storeId"); storeStr != "" {
		sid, err := uuid.Parse(storeStr)
		if err != nil {
			writeValidationError(c, err)
			return
		}
		storeID = &sid
	}

	page, limit := parsePagination(c)

	items, total, err := h.ledger.ListItems(c.Request.Context(), tenantID.(string), storeID, page, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ItemListResponse{
		Success:    true,
		Data:       items,
		Pagination: paginationMeta(page, limit, total),
	})
}

// UpdateItem updates item attributes and thresholds
func (h *InventoryHandler) UpdateItem(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req models.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}

	item, err := h.ledger.UpdateItem(c.Request.Context(), tenantID.(string), id, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ItemResponse{
		Success: true,
		Data:    item,
		Message: stringPtr("Item updated successfully"),
	})
}

// DeleteItem soft deletes an item
func (h *InventoryHandler) DeleteItem(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.ledger.DeleteItem(c.Request.Context(), tenantID.(string), id); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Message: stringPtr("Item deleted successfully"),
	})
}

// ========== Stock Operation Handlers ==========

// ApplyMovement records a stock movement against an item
func (h *InventoryHandler) ApplyMovement(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req models.ApplyMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}

	movement, item, err := h.ledger.ApplyMovement(c.Request.Context(), tenantID.(string), id, &req, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	// Publish adjustment event (best effort). The item state comes from
	// the mutation itself, so the previous/new pair is consistent even
	// with concurrent movements.
	if h.eventPublisher != nil {
		previous := item.CurrentStock - movement.Quantity
		_ = h.eventPublisher.PublishStockAdjusted(c.Request.Context(), tenantID.(string), item, previous, req.Reason, actorFrom(c))
	}

	c.JSON(http.StatusCreated, models.MovementResponse{
		Success: true,
		Data:    movement,
		Message: stringPtr("Movement applied"),
	})
}

// ListMovements retrieves the movement log for an item
func (h *InventoryHandler) ListMovements(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	page, limit := parsePagination(c)

	movements, total, err := h.ledger.ListMovements(c.Request.Context(), tenantID.(string), id, page, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.MovementListResponse{
		Success:    true,
		Data:       movements,
		Pagination: paginationMeta(page, limit, total),
	})
}

// Reserve sets stock aside for an order
func (h *InventoryHandler) Reserve(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req models.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}

	item, err := h.ledger.Reserve(c.Request.Context(), tenantID.(string), id, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ItemResponse{
		Success: true,
		Data:    item,
		Message: stringPtr("Stock reserved"),
	})
}

// Release returns reserved stock to the available pool
func (h *InventoryHandler) Release(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req models.ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}

	item, err := h.ledger.Release(c.Request.Context(), tenantID.(string), id, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ItemResponse{
		Success: true,
		Data:    item,
		Message: stringPtr("Stock released"),
	})
}

// Consume draws stock from the oldest active lots first
func (h *InventoryHandler) Consume(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req models.ConsumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}

	movements, err := h.ledger.ConsumeFIFO(c.Request.Context(), tenantID.(string), id, &req, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.MovementListResponse{
		Success: true,
		Data:    movements,
	})
}

// ========== Lot Handlers ==========

// ReceiveLot records a supplier receipt as a new lot
func (h *InventoryHandler) ReceiveLot(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req models.ReceiveLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}

	lot, err := h.ledger.ReceiveLot(c.Request.Context(), tenantID.(string), id, &req, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.SuccessResponse{
		Success: true,
		Data:    lot,
		Message: stringPtr("Lot received"),
	})
}

// ListLots retrieves all lots for an item
func (h *InventoryHandler) ListLots(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	lots, err := h.ledger.ListLots(c.Request.Context(), tenantID.(string), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.LotListResponse{
		Success: true,
		Data:    lots,
	})
}

// ReconcileLots reports items whose lot sums disagree with the aggregate
func (h *InventoryHandler) ReconcileLots(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	drifts, err := h.ledger.ReconcileLots(c.Request.Context(), tenantID.(string))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.LotDriftResponse{
		Success: true,
		Data:    drifts,
	})
}
