package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"inventory-service/internal/models"
	"inventory-service/internal/repository"
)

// Engine polls active rules on a fixed interval and evaluates them
// against live inventory metrics. A failing rule is logged and skipped;
// the sweep always reaches every rule.
type Engine struct {
	alerts    repository.AlertStore
	items     repository.InventoryStore
	service   *Service
	executor  *ActionExecutor
	scheduler *EscalationScheduler
	logger    *logrus.Entry
	interval  time.Duration
	stopCh    chan struct{}
}

func NewEngine(alerts repository.AlertStore, items repository.InventoryStore, service *Service, executor *ActionExecutor, scheduler *EscalationScheduler, logger *logrus.Logger, interval time.Duration) *Engine {
	return &Engine{
		alerts:    alerts,
		items:     items,
		service:   service,
		executor:  executor,
		scheduler: scheduler,
		logger:    logger.WithField("component", "rule-engine"),
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the polling loop and blocks until Stop or context cancel
func (e *Engine) Start(ctx context.Context) {
	e.logger.WithField("interval", e.interval).Info("Rule engine started")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	// Run immediately on start
	e.RunSweep(ctx)

	for {
		select {
		case <-ticker.C:
			e.RunSweep(ctx)
		case <-e.stopCh:
			e.logger.Info("Rule engine stopped")
			return
		case <-ctx.Done():
			e.logger.Info("Rule engine context cancelled")
			return
		}
	}
}

// Stop signals the engine to stop
func (e *Engine) Stop() {
	close(e.stopCh)
}

// RunSweep executes one evaluation cycle over all active rules
func (e *Engine) RunSweep(ctx context.Context) {
	e.logger.Debug("Running rule sweep...")

	// Retire lots past their expiry first so expiry-based rules see
	// current lot state
	if expired, err := e.items.ExpireLots(ctx, time.Now()); err != nil {
		e.logger.WithError(err).Error("Failed to expire lots")
	} else if expired > 0 {
		e.logger.WithField("count", expired).Info("Marked expired lots")
	}

	rules, err := e.alerts.ListActiveRules(ctx)
	if err != nil {
		e.logger.WithError(err).Error("Failed to load active rules")
		return
	}

	if len(rules) == 0 {
		e.logger.Debug("No active rules")
		return
	}

	for i := range rules {
		rule := rules[i]
		if err := e.evaluateRule(ctx, &rule); err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"rule_id": rule.ID,
				"name":    rule.Name,
			}).Error("Rule evaluation failed, skipping")
			continue
		}
	}
}

// evaluateRule checks one rule's gates (schedule, cooldown), then its
// conditions against every item in scope. All conditions must hold for an
// item for the rule to fire on it.
func (e *Engine) evaluateRule(ctx context.Context, rule *models.AlertRule) error {
	now := time.Now()

	if len(rule.Schedule) > 0 {
		var windows []models.ScheduleWindow
		if err := json.Unmarshal(rule.Schedule, &windows); err != nil {
			return fmt.Errorf("decoding schedule: %w", err)
		}
		if !inSchedule(windows, now) {
			return nil
		}
	}

	if inCooldown(rule, now) {
		return nil
	}

	var conditions []models.RuleCondition
	if err := json.Unmarshal(rule.Conditions, &conditions); err != nil {
		return fmt.Errorf("decoding conditions: %w", err)
	}
	if len(conditions) == 0 {
		return nil
	}

	var actions []models.RuleAction
	if len(rule.Actions) > 0 {
		if err := json.Unmarshal(rule.Actions, &actions); err != nil {
			return fmt.Errorf("decoding actions: %w", err)
		}
	}

	items, err := e.itemsInScope(ctx, rule.TenantID, conditions)
	if err != nil {
		return fmt.Errorf("loading items: %w", err)
	}

	drift, err := e.driftIfNeeded(ctx, rule.TenantID, conditions)
	if err != nil {
		return fmt.Errorf("reconciling lots: %w", err)
	}

	triggered := false
	for i := range items {
		item := &items[i]

		snap, err := snapshotMetrics(ctx, e.items, rule.TenantID, item, conditions, drift)
		if err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"rule_id": rule.ID,
				"item_id": item.ID,
			}).Warn("Failed to snapshot metrics for item")
			continue
		}

		match := true
		for _, cond := range conditions {
			if !evaluateCondition(cond, snap) {
				match = false
				break
			}
		}
		if !match {
			continue
		}

		if e.trigger(ctx, rule, item, actions) {
			triggered = true
		}
	}

	if triggered {
		if err := e.alerts.UpdateRuleLastTriggered(ctx, rule.TenantID, rule.ID, now); err != nil {
			e.logger.WithError(err).WithField("rule_id", rule.ID).Warn("Failed to record trigger time")
		}
	}

	return nil
}

// trigger creates the alert for a matched (rule, item) pair, runs the
// rule's actions and arms any configured escalations. Returns whether a
// new alert was created; a suppressed duplicate must not start the rule's
// cooldown, since nothing was delivered.
func (e *Engine) trigger(ctx context.Context, rule *models.AlertRule, item *models.InventoryItem, actions []models.RuleAction) bool {
	itemID := item.ID
	ruleID := rule.ID
	alert := &models.Alert{
		RuleID:     &ruleID,
		ItemID:     &itemID,
		StoreID:    &item.StoreID,
		Type:       models.AlertTypeRuleTriggered,
		Category:   rule.Category,
		Severity:   rule.Severity,
		Status:     models.AlertStatusActive,
		Title:      rule.Name,
		Message:    fmt.Sprintf("Rule %q matched for %s (SKU: %s, stock: %d)", rule.Name, item.Name, item.SKU, item.CurrentStock),
		CurrentQty: item.CurrentStock,
		ItemName:   &item.Name,
		ItemSKU:    &item.SKU,
	}

	created, err := e.service.Raise(ctx, rule.TenantID, alert, item)
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"rule_id": rule.ID,
			"item_id": item.ID,
		}).Error("Failed to raise rule alert")
		return false
	}
	if !created {
		// This rule's alert for the item is still active; nothing new to
		// act on
		return false
	}

	if e.executor != nil && len(actions) > 0 {
		e.executor.Execute(ctx, rule.TenantID, alert, item, actions)
	}

	if e.scheduler != nil {
		// One escalation per distinct delay, carrying only the actions
		// that asked for that delay; arming per action would re-run the
		// whole list at every fire
		byDelay := make(map[int][]models.RuleAction)
		for _, action := range actions {
			if action.EscalateAfterMinutes > 0 {
				byDelay[action.EscalateAfterMinutes] = append(byDelay[action.EscalateAfterMinutes], action)
			}
		}
		for minutes, group := range byDelay {
			delay := time.Duration(minutes) * time.Minute
			if err := e.scheduler.Arm(ctx, rule.TenantID, alert, group, 1, delay); err != nil {
				e.logger.WithError(err).WithField("alert_id", alert.ID).Error("Failed to arm escalation")
			}
		}
	}

	return true
}

// itemsInScope resolves which items a rule applies to. An ItemID on any
// condition narrows the rule to that item; otherwise a StoreID narrows it
// to one store; otherwise every item of the tenant is in scope.
func (e *Engine) itemsInScope(ctx context.Context, tenantID string, conditions []models.RuleCondition) ([]models.InventoryItem, error) {
	for _, cond := range conditions {
		if cond.ItemID != nil {
			item, err := e.items.GetItemByID(ctx, tenantID, *cond.ItemID)
			if err != nil {
				return nil, err
			}
			return []models.InventoryItem{*item}, nil
		}
	}

	for _, cond := range conditions {
		if cond.StoreID != nil {
			items, _, err := e.items.ListItems(ctx, tenantID, cond.StoreID, 0, 0)
			return items, err
		}
	}

	items, _, err := e.items.ListItems(ctx, tenantID, nil, 0, 0)
	return items, err
}

// driftIfNeeded runs lot reconciliation only when a condition asks for it
func (e *Engine) driftIfNeeded(ctx context.Context, tenantID string, conditions []models.RuleCondition) (map[string]int, error) {
	needed := false
	for _, cond := range conditions {
		if cond.Metric == MetricLotDrift {
			needed = true
			break
		}
	}
	if !needed {
		return nil, nil
	}

	drifts, err := e.items.ReconcileLots(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	result := make(map[string]int, len(drifts))
	for _, d := range drifts {
		delta := d.CurrentStock - d.LotSum
		if delta < 0 {
			delta = -delta
		}
		result[d.SKU] = delta
	}
	return result, nil
}
