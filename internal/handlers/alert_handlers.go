package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"inventory-service/internal/alerting"
	"inventory-service/internal/models"
	"inventory-service/internal/repository"
)

type AlertHandler struct {
	service *alerting.Service
}

func NewAlertHandler(service *alerting.Service) *AlertHandler {
	return &AlertHandler{service: service}
}

// ========== Alert Rule Handlers ==========

// CreateRule creates a new alert rule
func (h *AlertHandler) CreateRule(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	var req models.CreateAlertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}

	var createdBy *string
	if userID := c.GetString("user_id"); userID != "" {
		createdBy = &userID
	}

	rule, err := h.service.CreateRule(c.Request.Context(), tenantID.(string), &req, createdBy)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.AlertRuleResponse{
		Success: true,
		Data:    rule,
		Message: stringPtr("Alert rule created successfully"),
	})
}

// GetRule retrieves an alert rule by ID
func (h *AlertHandler) GetRule(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	rule, err := h.service.GetRule(c.Request.Context(), tenantID.(string), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.AlertRuleResponse{
		Success: true,
		Data:    rule,
	})
}

// ListRules retrieves all alert rules for the tenant
func (h *AlertHandler) ListRules(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	rules, err := h.service.ListRules(c.Request.Context(), tenantID.(string))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.AlertRuleListResponse{
		Success: true,
		Data:    rules,
	})
}

// UpdateRule updates an alert rule
func (h *AlertHandler) UpdateRule(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req models.UpdateAlertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}

	rule, err := h.service.UpdateRule(c.Request.Context(), tenantID.(string), id, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.AlertRuleResponse{
		Success: true,
		Data:    rule,
		Message: stringPtr("Alert rule updated successfully"),
	})
}

// DeleteRule deletes an alert rule
func (h *AlertHandler) DeleteRule(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteRule(c.Request.Context(), tenantID.(string), id); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Message: stringPtr("Alert rule deleted successfully"),
	})
}

// ========== Alert Handlers ==========

// ListAlerts retrieves alerts with optional status/type/severity filters
func (h *AlertHandler) ListAlerts(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	var filter repository.AlertFilter
	if statusStr := c.Query("status"); statusStr != "" {
		status := models.AlertStatus(statusStr)
		filter.Status = &status
	}
	if typeStr := c.Query("type"); typeStr != "" {
		alertType := models.AlertType(typeStr)
		filter.Type = &alertType
	}
	if severityStr := c.Query("severity"); severityStr != "" {
		severity := models.AlertSeverity(severityStr)
		filter.Severity = &severity
	}
	if itemStr := c.Query("itemId"); itemStr != "" {
		itemID, err := uuid.Parse(itemStr)
		if err != nil {
			writeValidationError(c, err)
			return
		}
		filter.ItemID = &itemID
	}
	if storeStr := c.Query("storeId"); storeStr != "" {
		storeID, err := uuid.Parse(storeStr)
		if err != nil {
			writeValidationError(c, err)
			return
		}
		filter.StoreID = &storeID
	}

	page, limit := parsePagination(c)

	alerts, total, err := h.service.ListAlerts(c.Request.Context(), tenantID.(string), filter, page, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.AlertListResponse{
		Success:    true,
		Data:       alerts,
		Pagination: paginationMeta(page, limit, total),
	})
}

// GetAlert retrieves an alert by ID
func (h *AlertHandler) GetAlert(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	alert, err := h.service.GetAlert(c.Request.Context(), tenantID.(string), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.AlertResponse{
		Success: true,
		Data:    alert,
	})
}

// GetAlertSummary returns active/resolved counts grouped by severity and category
func (h *AlertHandler) GetAlertSummary(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	summary, err := h.service.GetSummary(c.Request.Context(), tenantID.(string))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.AlertSummaryResponse{
		Success: true,
		Data:    summary,
	})
}

// UpdateAlertStatus acknowledges or resolves an alert
func (h *AlertHandler) UpdateAlertStatus(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req models.UpdateAlertStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}

	actor := req.Actor
	if actor == nil {
		if userID := c.GetString("user_id"); userID != "" {
			actor = &userID
		}
	}

	var alert *models.Alert
	var err error
	switch req.Status {
	case models.AlertStatusAcknowledged:
		alert, err = h.service.Acknowledge(c.Request.Context(), tenantID.(string), id, actor)
	case models.AlertStatusResolved:
		alert, err = h.service.Resolve(c.Request.Context(), tenantID.(string), id, actor)
	default:
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "VALIDATION_ERROR",
				Message: "Status must be ACKNOWLEDGED or RESOLVED",
			},
		})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.AlertResponse{
		Success: true,
		Data:    alert,
		Message: stringPtr("Alert status updated"),
	})
}
