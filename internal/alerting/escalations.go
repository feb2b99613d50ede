package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"inventory-service/internal/models"
	"inventory-service/internal/repository"
)

// EscalationScheduler arms one-shot timers for unacknowledged alerts.
// Fire times are persisted alongside the timers, so escalations survive a
// restart: RestoreOnStartup re-arms pending rows and fires past-due ones
// immediately. Acknowledging or resolving an alert cancels its timers
// synchronously.
type EscalationScheduler struct {
	alerts    repository.AlertStore
	items     repository.InventoryStore
	executor  *ActionExecutor
	publisher EventPublisher
	logger    *logrus.Entry

	mu      sync.Mutex
	timers  map[uuid.UUID]*time.Timer
	byAlert map[uuid.UUID][]uuid.UUID
}

func NewEscalationScheduler(alerts repository.AlertStore, items repository.InventoryStore, executor *ActionExecutor, publisher EventPublisher, logger *logrus.Logger) *EscalationScheduler {
	return &EscalationScheduler{
		alerts:    alerts,
		items:     items,
		executor:  executor,
		publisher: publisher,
		logger:    logger.WithField("component", "escalations"),
		timers:    make(map[uuid.UUID]*time.Timer),
		byAlert:   make(map[uuid.UUID][]uuid.UUID),
	}
}

// Arm persists an escalation and schedules its timer
func (s *EscalationScheduler) Arm(ctx context.Context, tenantID string, alert *models.Alert, actions []models.RuleAction, level int, delay time.Duration) error {
	encoded, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("encoding escalation actions: %w", err)
	}

	escalation := &models.Escalation{
		AlertID:      alert.ID,
		Level:        level,
		DelayMinutes: int(delay / time.Minute),
		FireAt:       time.Now().Add(delay),
		Actions:      datatypes.JSON(encoded),
	}

	if err := s.alerts.CreateEscalation(ctx, tenantID, escalation); err != nil {
		return fmt.Errorf("creating escalation: %w", err)
	}

	s.armTimer(tenantID, escalation)

	s.logger.WithFields(logrus.Fields{
		"tenant_id":     tenantID,
		"alert_id":      alert.ID,
		"escalation_id": escalation.ID,
		"fire_at":       escalation.FireAt,
	}).Info("Escalation armed")

	return nil
}

// Cancel stops and cancels every pending escalation of an alert. Runs
// synchronously so that once an acknowledge call returns, no escalation
// for that alert can fire.
func (s *EscalationScheduler) Cancel(ctx context.Context, tenantID string, alertID uuid.UUID) {
	s.mu.Lock()
	for _, escID := range s.byAlert[alertID] {
		if timer, ok := s.timers[escID]; ok {
			timer.Stop()
			delete(s.timers, escID)
		}
	}
	delete(s.byAlert, alertID)
	s.mu.Unlock()

	cancelled, err := s.alerts.CancelEscalationsForAlert(ctx, tenantID, alertID)
	if err != nil {
		s.logger.WithError(err).WithField("alert_id", alertID).Error("Failed to cancel escalations")
		return
	}
	if cancelled > 0 {
		s.logger.WithFields(logrus.Fields{
			"alert_id":  alertID,
			"cancelled": cancelled,
		}).Info("Escalations cancelled")
	}
}

// RestoreOnStartup re-arms all pending escalations. Past-due rows fire
// immediately rather than being silently dropped.
func (s *EscalationScheduler) RestoreOnStartup(ctx context.Context) error {
	pending, err := s.alerts.ListPendingEscalations(ctx)
	if err != nil {
		return fmt.Errorf("loading pending escalations: %w", err)
	}

	for i := range pending {
		escalation := pending[i]
		s.armTimer(escalation.TenantID, &escalation)
	}

	if len(pending) > 0 {
		s.logger.WithField("count", len(pending)).Info("Re-armed pending escalations")
	}
	return nil
}

// Stop stops all timers without cancelling the persisted rows; they will
// be re-armed on the next startup
func (s *EscalationScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, timer := range s.timers {
		timer.Stop()
	}
	s.timers = make(map[uuid.UUID]*time.Timer)
	s.byAlert = make(map[uuid.UUID][]uuid.UUID)
}

func (s *EscalationScheduler) armTimer(tenantID string, escalation *models.Escalation) {
	delay := time.Until(escalation.FireAt)
	if delay <= 0 {
		go s.fire(tenantID, escalation)
		return
	}

	esc := *escalation
	timer := time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, esc.ID)
		s.mu.Unlock()
		s.fire(tenantID, &esc)
	})

	s.mu.Lock()
	s.timers[escalation.ID] = timer
	s.byAlert[escalation.AlertID] = append(s.byAlert[escalation.AlertID], escalation.ID)
	s.mu.Unlock()
}

// fire executes an escalation. The alert's status is re-checked first; an
// alert acknowledged after the timer was armed escalates nothing. The
// guarded fired-flag update then settles any remaining race with a
// concurrent cancel.
func (s *EscalationScheduler) fire(tenantID string, escalation *models.Escalation) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	alert, err := s.alerts.GetAlertByID(ctx, tenantID, escalation.AlertID)
	if err != nil {
		s.logger.WithError(err).WithField("escalation_id", escalation.ID).Error("Failed to load alert for escalation")
		return
	}

	if alert.Status != models.AlertStatusActive {
		s.logger.WithFields(logrus.Fields{
			"escalation_id": escalation.ID,
			"alert_id":      alert.ID,
			"status":        alert.Status,
		}).Debug("Alert no longer active, skipping escalation")
		if _, err := s.alerts.CancelEscalationsForAlert(ctx, tenantID, alert.ID); err != nil {
			s.logger.WithError(err).WithField("alert_id", alert.ID).Warn("Failed to cancel stale escalations")
		}
		return
	}

	fired, err := s.alerts.MarkEscalationFired(ctx, escalation.ID)
	if err != nil {
		s.logger.WithError(err).WithField("escalation_id", escalation.ID).Error("Failed to mark escalation fired")
		return
	}
	if !fired {
		// Cancelled between the status check and the update
		return
	}

	s.logger.WithFields(logrus.Fields{
		"escalation_id": escalation.ID,
		"alert_id":      alert.ID,
		"level":         escalation.Level,
	}).Info("Escalation fired")

	var actions []models.RuleAction
	if len(escalation.Actions) > 0 {
		if err := json.Unmarshal(escalation.Actions, &actions); err != nil {
			s.logger.WithError(err).WithField("escalation_id", escalation.ID).Error("Failed to decode escalation actions")
		}
	}

	var item *models.InventoryItem
	if alert.ItemID != nil {
		item, err = s.items.GetItemByID(ctx, tenantID, *alert.ItemID)
		if err != nil {
			s.logger.WithError(err).WithField("item_id", *alert.ItemID).Warn("Failed to load item for escalation actions")
		}
	}

	if len(actions) > 0 && s.executor != nil {
		s.executor.Execute(ctx, tenantID, alert, item, actions)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishAlertEscalated(ctx, alert, escalation.Level); err != nil {
			s.logger.WithError(err).WithField("alert_id", alert.ID).Warn("Failed to publish escalation event")
		}
	}
}
