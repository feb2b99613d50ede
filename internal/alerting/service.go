package alerting

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"inventory-service/internal/ledger"
	"inventory-service/internal/models"
	"inventory-service/internal/repository"
)

// EventPublisher is the outbound event boundary. Publishing is best
// effort everywhere; a broker outage never fails a stock mutation.
type EventPublisher interface {
	PublishAlertRaised(ctx context.Context, alert *models.Alert, item *models.InventoryItem) error
	PublishAlertEscalated(ctx context.Context, alert *models.Alert, level int) error
}

// Service owns the alert lifecycle: raising with dedup, acknowledgement
// and resolution, and rule configuration.
type Service struct {
	alerts    repository.AlertStore
	items     repository.InventoryStore
	scheduler *EscalationScheduler
	publisher EventPublisher
	logger    *logrus.Entry
}

func NewService(alerts repository.AlertStore, items repository.InventoryStore, scheduler *EscalationScheduler, publisher EventPublisher, logger *logrus.Logger) *Service {
	return &Service{
		alerts:    alerts,
		items:     items,
		scheduler: scheduler,
		publisher: publisher,
		logger:    logger.WithField("component", "alerting"),
	}
}

// ========== Alert Lifecycle ==========

// Raise creates an alert unless an ACTIVE one already exists for the same
// (item, type) pair; rule-driven alerts dedup per rule, so distinct rules
// matching one item each get their alert. Returns whether a new alert was
// created.
func (s *Service) Raise(ctx context.Context, tenantID string, alert *models.Alert, item *models.InventoryItem) (bool, error) {
	if alert.ItemID != nil {
		count, err := s.alerts.CountActiveDuplicates(ctx, tenantID, *alert.ItemID, alert.Type, alert.RuleID)
		if err != nil {
			return false, fmt.Errorf("checking for duplicate alert: %w", err)
		}
		if count > 0 {
			return false, nil
		}
	}

	if err := s.alerts.CreateAlert(ctx, tenantID, alert); err != nil {
		return false, fmt.Errorf("creating alert: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"alert_id":  alert.ID,
		"type":      alert.Type,
		"severity":  alert.Severity,
	}).Info("Alert raised")

	if s.publisher != nil {
		if err := s.publisher.PublishAlertRaised(ctx, alert, item); err != nil {
			s.logger.WithError(err).WithField("alert_id", alert.ID).Warn("Failed to publish alert event")
		}
	}

	return true, nil
}

// HandleFindings turns threshold findings into alerts. Threshold alerts
// skip rule schedules and cooldowns entirely; only the active-alert dedup
// applies. Failures here are logged, never propagated, so the stock
// mutation that triggered the evaluation always completes.
func (s *Service) HandleFindings(ctx context.Context, tenantID string, item *models.InventoryItem, findings []ledger.Finding) {
	for _, finding := range findings {
		itemID := item.ID
		alert := &models.Alert{
			ItemID:       &itemID,
			StoreID:      &item.StoreID,
			Type:         finding.Type,
			Category:     finding.Category,
			Severity:     finding.Severity,
			Status:       models.AlertStatusActive,
			Title:        titleFor(finding.Type),
			Message:      finding.Message,
			CurrentQty:   finding.CurrentQty,
			ThresholdQty: finding.ThresholdQty,
			ItemName:     &item.Name,
			ItemSKU:      &item.SKU,
		}

		if _, err := s.Raise(ctx, tenantID, alert, item); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"tenant_id": tenantID,
				"item_id":   item.ID,
				"type":      finding.Type,
			}).Error("Failed to raise threshold alert")
		}
	}
}

// Acknowledge moves an ACTIVE alert to ACKNOWLEDGED and cancels its
// pending escalations before returning
func (s *Service) Acknowledge(ctx context.Context, tenantID string, alertID uuid.UUID, actor *string) (*models.Alert, error) {
	if err := s.alerts.UpdateAlertStatus(ctx, tenantID, alertID, models.AlertStatusActive, models.AlertStatusAcknowledged, actor); err != nil {
		return nil, err
	}

	if s.scheduler != nil {
		s.scheduler.Cancel(ctx, tenantID, alertID)
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"alert_id":  alertID,
	}).Info("Alert acknowledged")

	return s.alerts.GetAlertByID(ctx, tenantID, alertID)
}

// Resolve moves an alert to RESOLVED from either ACTIVE or ACKNOWLEDGED
// and cancels its pending escalations. RESOLVED is terminal.
func (s *Service) Resolve(ctx context.Context, tenantID string, alertID uuid.UUID, actor *string) (*models.Alert, error) {
	alert, err := s.alerts.GetAlertByID(ctx, tenantID, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Status == models.AlertStatusResolved {
		return nil, repository.ErrVersionConflict
	}

	if err := s.alerts.UpdateAlertStatus(ctx, tenantID, alertID, alert.Status, models.AlertStatusResolved, actor); err != nil {
		return nil, err
	}

	if s.scheduler != nil {
		s.scheduler.Cancel(ctx, tenantID, alertID)
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"alert_id":  alertID,
	}).Info("Alert resolved")

	return s.alerts.GetAlertByID(ctx, tenantID, alertID)
}

func (s *Service) GetAlert(ctx context.Context, tenantID string, alertID uuid.UUID) (*models.Alert, error) {
	return s.alerts.GetAlertByID(ctx, tenantID, alertID)
}

func (s *Service) ListAlerts(ctx context.Context, tenantID string, filter repository.AlertFilter, page, limit int) ([]models.Alert, int64, error) {
	return s.alerts.ListAlerts(ctx, tenantID, filter, page, limit)
}

func (s *Service) GetSummary(ctx context.Context, tenantID string) (*models.AlertSummary, error) {
	return s.alerts.GetAlertSummary(ctx, tenantID)
}

// ========== Rule Configuration ==========

func (s *Service) CreateRule(ctx context.Context, tenantID string, req *models.CreateAlertRuleRequest, createdBy *string) (*models.AlertRule, error) {
	conditions, err := json.Marshal(req.Conditions)
	if err != nil {
		return nil, fmt.Errorf("encoding conditions: %w", err)
	}
	actions, err := json.Marshal(req.Actions)
	if err != nil {
		return nil, fmt.Errorf("encoding actions: %w", err)
	}

	rule := &models.AlertRule{
		Name:       req.Name,
		Category:   req.Category,
		Conditions: datatypes.JSON(conditions),
		Actions:    datatypes.JSON(actions),
		IsActive:   true,
		CreatedBy:  createdBy,
	}
	if req.Severity != nil {
		rule.Severity = *req.Severity
	}
	if req.Schedule != nil {
		schedule, err := json.Marshal(req.Schedule)
		if err != nil {
			return nil, fmt.Errorf("encoding schedule: %w", err)
		}
		rule.Schedule = datatypes.JSON(schedule)
	}
	if req.CooldownMinutes != nil {
		rule.CooldownMinutes = *req.CooldownMinutes
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if err := s.alerts.CreateRule(ctx, tenantID, rule); err != nil {
		return nil, fmt.Errorf("creating rule: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"rule_id":   rule.ID,
		"name":      rule.Name,
	}).Info("Alert rule created")

	return rule, nil
}

func (s *Service) GetRule(ctx context.Context, tenantID string, ruleID uuid.UUID) (*models.AlertRule, error) {
	return s.alerts.GetRuleByID(ctx, tenantID, ruleID)
}

func (s *Service) ListRules(ctx context.Context, tenantID string) ([]models.AlertRule, error) {
	return s.alerts.ListRules(ctx, tenantID)
}

func (s *Service) UpdateRule(ctx context.Context, tenantID string, ruleID uuid.UUID, req *models.UpdateAlertRuleRequest) (*models.AlertRule, error) {
	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Severity != nil {
		updates["severity"] = *req.Severity
	}
	if req.Conditions != nil {
		conditions, err := json.Marshal(*req.Conditions)
		if err != nil {
			return nil, fmt.Errorf("encoding conditions: %w", err)
		}
		updates["conditions"] = datatypes.JSON(conditions)
	}
	if req.Actions != nil {
		actions, err := json.Marshal(*req.Actions)
		if err != nil {
			return nil, fmt.Errorf("encoding actions: %w", err)
		}
		updates["actions"] = datatypes.JSON(actions)
	}
	if req.Schedule != nil {
		schedule, err := json.Marshal(*req.Schedule)
		if err != nil {
			return nil, fmt.Errorf("encoding schedule: %w", err)
		}
		updates["schedule"] = datatypes.JSON(schedule)
	}
	if req.CooldownMinutes != nil {
		updates["cooldown_minutes"] = *req.CooldownMinutes
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if len(updates) > 0 {
		if err := s.alerts.UpdateRule(ctx, tenantID, ruleID, updates); err != nil {
			return nil, err
		}
	}

	return s.alerts.GetRuleByID(ctx, tenantID, ruleID)
}

func (s *Service) DeleteRule(ctx context.Context, tenantID string, ruleID uuid.UUID) error {
	return s.alerts.DeleteRule(ctx, tenantID, ruleID)
}

func titleFor(alertType models.AlertType) string {
	switch alertType {
	case models.AlertTypeOutOfStock:
		return "Out of Stock"
	case models.AlertTypeLowStock:
		return "Low Stock Alert"
	case models.AlertTypeOverstock:
		return "Overstock Alert"
	case models.AlertTypeExpiryWarning:
		return "Expiry Warning"
	case models.AlertTypeExpiryCritical:
		return "Expiry Critical"
	default:
		return "Alert"
	}
}

var _ ledger.Notifier = (*Service)(nil)
