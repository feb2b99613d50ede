package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"inventory-service/internal/models"
)

var ErrActionExecution = errors.New("action execution failed")

// Dispatcher delivers notifications to a named channel. Implementations
// own delivery; the alerting core only decides what to send and when.
type Dispatcher interface {
	Dispatch(ctx context.Context, channel, subject, body string) error
}

// StockAdjuster applies corrective movements from STOCK_ADJUSTMENT
// actions; the ledger service implements it
type StockAdjuster interface {
	ApplyMovement(ctx context.Context, tenantID string, itemID uuid.UUID, req *models.ApplyMovementRequest, actor string) (*models.StockMovement, *models.InventoryItem, error)
}

// ActionExecutor runs the configured actions of a triggered rule or a
// fired escalation. Every action is best effort: a failure is logged and
// the remaining actions still run.
type ActionExecutor struct {
	dispatcher Dispatcher
	adjuster   StockAdjuster
	httpClient *http.Client
	logger     *logrus.Entry
}

func NewActionExecutor(dispatcher Dispatcher, adjuster StockAdjuster, webhookTimeout time.Duration, logger *logrus.Logger) *ActionExecutor {
	return &ActionExecutor{
		dispatcher: dispatcher,
		adjuster:   adjuster,
		httpClient: &http.Client{Timeout: webhookTimeout},
		logger:     logger.WithField("component", "alert-actions"),
	}
}

// Execute fans out over all actions for an alert
func (e *ActionExecutor) Execute(ctx context.Context, tenantID string, alert *models.Alert, item *models.InventoryItem, actions []models.RuleAction) {
	for _, action := range actions {
		if err := e.runAction(ctx, tenantID, alert, item, action); err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"tenant_id":   tenantID,
				"alert_id":    alert.ID,
				"action_type": action.Type,
			}).Error("Action failed")
		}
	}
}

func (e *ActionExecutor) runAction(ctx context.Context, tenantID string, alert *models.Alert, item *models.InventoryItem, action models.RuleAction) error {
	switch action.Type {
	case models.ActionNotification:
		return e.runNotification(ctx, alert, action)
	case models.ActionWebhook:
		return e.runWebhook(ctx, tenantID, alert, action)
	case models.ActionAutoOrder:
		return e.runAutoOrder(ctx, alert, item, action)
	case models.ActionStockAdjustment:
		return e.runStockAdjustment(ctx, tenantID, alert, action)
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrActionExecution, action.Type)
	}
}

// runNotification dispatches the alert to each configured channel. A
// failing channel does not stop delivery to the others.
func (e *ActionExecutor) runNotification(ctx context.Context, alert *models.Alert, action models.RuleAction) error {
	if e.dispatcher == nil {
		return fmt.Errorf("%w: no dispatcher configured", ErrActionExecution)
	}

	body := alert.Message
	if action.Template != "" {
		body = action.Template
	}

	channels := action.Channels
	if len(channels) == 0 {
		channels = []string{"default"}
	}

	var failed int
	for _, channel := range channels {
		if err := e.dispatcher.Dispatch(ctx, channel, alert.Title, body); err != nil {
			failed++
			e.logger.WithError(err).WithFields(logrus.Fields{
				"alert_id": alert.ID,
				"channel":  channel,
			}).Warn("Notification channel failed")
		}
	}
	if failed == len(channels) {
		return fmt.Errorf("%w: all %d notification channels failed", ErrActionExecution, failed)
	}
	return nil
}

func (e *ActionExecutor) runWebhook(ctx context.Context, tenantID string, alert *models.Alert, action models.RuleAction) error {
	if action.WebhookURL == "" {
		return fmt.Errorf("%w: webhook action without URL", ErrActionExecution)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"tenantId": tenantID,
		"alert":    alert,
	})
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %v", ErrActionExecution, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: building request: %v", ErrActionExecution, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: posting webhook: %v", ErrActionExecution, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: webhook returned %d", ErrActionExecution, resp.StatusCode)
	}
	return nil
}

// runAutoOrder raises a purchase request on the purchasing channel.
// Order placement itself lives in the procurement system; this side only
// signals demand.
func (e *ActionExecutor) runAutoOrder(ctx context.Context, alert *models.Alert, item *models.InventoryItem, action models.RuleAction) error {
	if e.dispatcher == nil {
		return fmt.Errorf("%w: no dispatcher configured", ErrActionExecution)
	}

	quantity := 0
	if q, err := strconv.Atoi(action.Params["quantity"]); err == nil {
		quantity = q
	} else if item != nil && item.MaxThreshold > item.CurrentStock {
		// Refill to the configured maximum when no quantity is given
		quantity = item.MaxThreshold - item.CurrentStock
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: auto order with no resolvable quantity", ErrActionExecution)
	}

	name := "unknown item"
	if alert.ItemName != nil {
		name = *alert.ItemName
	}
	body := fmt.Sprintf("Reorder %d units of %s (%s)", quantity, name, alert.Message)
	return e.dispatcher.Dispatch(ctx, "purchasing", "Auto order request", body)
}

func (e *ActionExecutor) runStockAdjustment(ctx context.Context, tenantID string, alert *models.Alert, action models.RuleAction) error {
	if e.adjuster == nil {
		return fmt.Errorf("%w: no stock adjuster configured", ErrActionExecution)
	}
	if alert.ItemID == nil {
		return fmt.Errorf("%w: stock adjustment without item", ErrActionExecution)
	}

	quantity, err := strconv.Atoi(action.Params["quantity"])
	if err != nil || quantity == 0 {
		return fmt.Errorf("%w: stock adjustment needs a nonzero quantity param", ErrActionExecution)
	}

	reason := action.Params["reason"]
	if reason == "" {
		reason = "automatic adjustment: " + alert.Title
	}

	_, _, err = e.adjuster.ApplyMovement(ctx, tenantID, *alert.ItemID, &models.ApplyMovementRequest{
		Kind:     models.MovementAdjustment,
		Quantity: quantity,
		Reason:   reason,
	}, "alert-engine")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrActionExecution, err)
	}
	return nil
}

// LogDispatcher is the default notification channel: structured log
// output. Real channels (email, chat) plug in behind the same interface.
type LogDispatcher struct {
	logger *logrus.Entry
}

func NewLogDispatcher(logger *logrus.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.WithField("component", "notifications")}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, channel, subject, body string) error {
	d.logger.WithFields(logrus.Fields{
		"channel": channel,
		"subject": subject,
	}).Info(body)
	return nil
}
