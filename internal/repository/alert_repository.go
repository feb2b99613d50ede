package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"inventory-service/internal/models"
)

// AlertFilter narrows alert listings
type AlertFilter struct {
	Status   *models.AlertStatus
	Type     *models.AlertType
	Severity *models.AlertSeverity
	ItemID   *uuid.UUID
	StoreID  *uuid.UUID
}

// AlertStore is the persistence gateway for rules, alerts and escalations
type AlertStore interface {
	CreateRule(ctx context.Context, tenantID string, rule *models.AlertRule) error
	GetRuleByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.AlertRule, error)
	ListRules(ctx context.Context, tenantID string) ([]models.AlertRule, error)
	ListActiveRules(ctx context.Context) ([]models.AlertRule, error)
	UpdateRule(ctx context.Context, tenantID string, id uuid.UUID, updates map[string]interface{}) error
	DeleteRule(ctx context.Context, tenantID string, id uuid.UUID) error
	UpdateRuleLastTriggered(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error

	CreateAlert(ctx context.Context, tenantID string, alert *models.Alert) error
	GetAlertByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.Alert, error)
	ListAlerts(ctx context.Context, tenantID string, filter AlertFilter, page, limit int) ([]models.Alert, int64, error)
	CountActiveDuplicates(ctx context.Context, tenantID string, itemID uuid.UUID, alertType models.AlertType, ruleID *uuid.UUID) (int64, error)
	UpdateAlertStatus(ctx context.Context, tenantID string, id uuid.UUID, from, to models.AlertStatus, actor *string) error
	GetAlertSummary(ctx context.Context, tenantID string) (*models.AlertSummary, error)

	CreateEscalation(ctx context.Context, tenantID string, escalation *models.Escalation) error
	ListPendingEscalations(ctx context.Context) ([]models.Escalation, error)
	MarkEscalationFired(ctx context.Context, id uuid.UUID) (bool, error)
	CancelEscalationsForAlert(ctx context.Context, tenantID string, alertID uuid.UUID) (int64, error)
}

type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// ========== Rule Operations ==========

// CreateRule creates a new alert rule
func (r *AlertRepository) CreateRule(ctx context.Context, tenantID string, rule *models.AlertRule) error {
	rule.TenantID = tenantID
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = time.Now()

	if rule.Severity == "" {
		rule.Severity = models.AlertSeverityWarning
	}

	return r.db.WithContext(ctx).Create(rule).Error
}

// GetRuleByID retrieves a rule by ID
func (r *AlertRepository) GetRuleByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.AlertRule, error) {
	var rule models.AlertRule
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rule, nil
}

// ListRules retrieves all rules for a tenant
func (r *AlertRepository) ListRules(ctx context.Context, tenantID string) ([]models.AlertRule, error) {
	var rules []models.AlertRule
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&rules).Error
	return rules, err
}

// ListActiveRules retrieves active rules across all tenants for the
// polling sweep
func (r *AlertRepository) ListActiveRules(ctx context.Context) ([]models.AlertRule, error) {
	var rules []models.AlertRule
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("tenant_id ASC, created_at ASC").
		Find(&rules).Error
	return rules, err
}

// UpdateRule updates a rule's configuration
func (r *AlertRepository) UpdateRule(ctx context.Context, tenantID string, id uuid.UUID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).Model(&models.AlertRule{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRule deletes a rule
func (r *AlertRepository) DeleteRule(ctx context.Context, tenantID string, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&models.AlertRule{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRuleLastTriggered records a trigger time for cooldown tracking
func (r *AlertRepository) UpdateRuleLastTriggered(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.AlertRule{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]interface{}{
			"last_triggered_at": at,
			"updated_at":        time.Now(),
		}).Error
}

// ========== Alert Operations ==========

// CreateAlert creates a new alert
func (r *AlertRepository) CreateAlert(ctx context.Context, tenantID string, alert *models.Alert) error {
	alert.TenantID = tenantID
	alert.CreatedAt = time.Now()
	alert.UpdatedAt = time.Now()

	if alert.Status == "" {
		alert.Status = models.AlertStatusActive
	}

	return r.db.WithContext(ctx).Create(alert).Error
}

// GetAlertByID retrieves an alert by ID
func (r *AlertRepository) GetAlertByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.Alert, error) {
	var alert models.Alert
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &alert, nil
}

// ListAlerts retrieves alerts with pagination and filtering
func (r *AlertRepository) ListAlerts(ctx context.Context, tenantID string, filter AlertFilter, page, limit int) ([]models.Alert, int64, error) {
	var alerts []models.Alert
	var total int64

	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.Severity != nil {
		query = query.Where("severity = ?", *filter.Severity)
	}
	if filter.ItemID != nil {
		query = query.Where("item_id = ?", *filter.ItemID)
	}
	if filter.StoreID != nil {
		query = query.Where("store_id = ?", *filter.StoreID)
	}

	if err := query.Model(&models.Alert{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&alerts).Error

	return alerts, total, err
}

// CountActiveDuplicates counts ACTIVE alerts sharing the dedup key. For
// threshold alerts the key is (item, type); rule-driven alerts also carry
// the rule ID, so two rules matching the same item each keep their own
// active alert. A nonzero count suppresses a repeat of the same condition.
func (r *AlertRepository) CountActiveDuplicates(ctx context.Context, tenantID string, itemID uuid.UUID, alertType models.AlertType, ruleID *uuid.UUID) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Alert{}).
		Where("tenant_id = ? AND item_id = ? AND type = ? AND status = ?",
			tenantID, itemID, alertType, models.AlertStatusActive)
	if ruleID != nil {
		query = query.Where("rule_id = ?", *ruleID)
	}

	var count int64
	err := query.Count(&count).Error
	return count, err
}

// UpdateAlertStatus transitions an alert from one status to another. The
// update is guarded on the expected current status; losing the race to a
// concurrent transition returns ErrVersionConflict.
func (r *AlertRepository) UpdateAlertStatus(ctx context.Context, tenantID string, id uuid.UUID, from, to models.AlertStatus, actor *string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": now,
	}

	if to == models.AlertStatusAcknowledged {
		updates["acknowledged_by"] = actor
		updates["acknowledged_at"] = &now
	}
	if to == models.AlertStatusResolved {
		updates["resolved_by"] = actor
		updates["resolved_at"] = &now
	}

	result := r.db.WithContext(ctx).Model(&models.Alert{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// GetAlertSummary returns counts of alerts by status, severity and category
func (r *AlertRepository) GetAlertSummary(ctx context.Context, tenantID string) (*models.AlertSummary, error) {
	summary := &models.AlertSummary{
		BySeverity: make(map[string]int),
		ByCategory: make(map[string]int),
	}

	var activeCount int64
	r.db.WithContext(ctx).Model(&models.Alert{}).
		Where("tenant_id = ? AND status = ?", tenantID, models.AlertStatusActive).
		Count(&activeCount)
	summary.TotalActive = int(activeCount)

	var resolvedCount int64
	r.db.WithContext(ctx).Model(&models.Alert{}).
		Where("tenant_id = ? AND status = ?", tenantID, models.AlertStatusResolved).
		Count(&resolvedCount)
	summary.TotalResolved = int(resolvedCount)

	// Count by severity (only active)
	var severityResults []struct {
		Severity models.AlertSeverity
		Count    int
	}
	r.db.WithContext(ctx).Model(&models.Alert{}).
		Select("severity, count(*) as count").
		Where("tenant_id = ? AND status = ?", tenantID, models.AlertStatusActive).
		Group("severity").
		Scan(&severityResults)
	for _, sr := range severityResults {
		summary.BySeverity[string(sr.Severity)] = sr.Count
	}

	// Count by category (only active)
	var categoryResults []struct {
		Category models.AlertCategory
		Count    int
	}
	r.db.WithContext(ctx).Model(&models.Alert{}).
		Select("category, count(*) as count").
		Where("tenant_id = ? AND status = ?", tenantID, models.AlertStatusActive).
		Group("category").
		Scan(&categoryResults)
	for _, cr := range categoryResults {
		summary.ByCategory[string(cr.Category)] = cr.Count
	}

	return summary, nil
}

// ========== Escalation Operations ==========

// CreateEscalation persists an armed escalation with its fire time
func (r *AlertRepository) CreateEscalation(ctx context.Context, tenantID string, escalation *models.Escalation) error {
	escalation.TenantID = tenantID
	escalation.CreatedAt = time.Now()
	escalation.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Create(escalation).Error
}

// ListPendingEscalations retrieves unfired, uncancelled escalations across
// all tenants, soonest first. Used on startup to re-arm timers.
func (r *AlertRepository) ListPendingEscalations(ctx context.Context) ([]models.Escalation, error) {
	var escalations []models.Escalation
	err := r.db.WithContext(ctx).
		Where("fired = ? AND cancelled = ?", false, false).
		Order("fire_at ASC").
		Find(&escalations).Error
	return escalations, err
}

// MarkEscalationFired marks an escalation fired, guarded so a cancelled or
// already-fired row is never fired again. Returns whether this caller won.
func (r *AlertRepository) MarkEscalationFired(ctx context.Context, id uuid.UUID) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.Escalation{}).
		Where("id = ? AND fired = ? AND cancelled = ?", id, false, false).
		Updates(map[string]interface{}{
			"fired":      true,
			"fired_at":   &now,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CancelEscalationsForAlert cancels all pending escalations of an alert
// and returns the number cancelled
func (r *AlertRepository) CancelEscalationsForAlert(ctx context.Context, tenantID string, alertID uuid.UUID) (int64, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.Escalation{}).
		Where("tenant_id = ? AND alert_id = ? AND fired = ? AND cancelled = ?", tenantID, alertID, false, false).
		Updates(map[string]interface{}{
			"cancelled":    true,
			"cancelled_at": &now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
