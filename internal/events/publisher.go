// Package events provides NATS event publishing for inventory-service
package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Tesseract-Nexus/go-shared/events"
	"github.com/sirupsen/logrus"

	"inventory-service/internal/models"
)

// InventoryEventPublisher handles publishing inventory-related events to NATS
type InventoryEventPublisher struct {
	publisher *events.Publisher
	logger    *logrus.Entry
}

// NewInventoryEventPublisher creates a new inventory event publisher
func NewInventoryEventPublisher(natsURL string, logger *logrus.Logger) (*InventoryEventPublisher, error) {
	if natsURL == "" {
		return nil, fmt.Errorf("NATS URL is required")
	}

	log := logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	config := events.DefaultPublisherConfig(natsURL)
	config.Name = "inventory-service-publisher"

	publisher, err := events.NewPublisher(config, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	// Ensure inventory stream exists
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := publisher.EnsureStream(ctx, events.StreamInventory, []string{"inventory.>"}); err != nil {
		log.WithError(err).Warn("Failed to ensure inventory stream exists")
	}

	return &InventoryEventPublisher{
		publisher: publisher,
		logger:    log.WithField("component", "inventory-events"),
	}, nil
}

// PublishAlertRaised publishes an event for a newly created alert.
// Out-of-stock alerts map to inventory.out_of_stock, everything else to
// inventory.low_stock with the alert level carrying the severity.
func (p *InventoryEventPublisher) PublishAlertRaised(ctx context.Context, alert *models.Alert, item *models.InventoryItem) error {
	eventType := events.InventoryLowStock
	if alert.Type == models.AlertTypeOutOfStock {
		eventType = events.InventoryOutOfStock
	}

	event := events.NewInventoryEvent(eventType, alert.TenantID)
	if item != nil {
		event.Items = []events.InventoryItem{
			{
				ProductID:    item.ProductID.String(),
				Name:         item.Name,
				SKU:          item.SKU,
				CurrentStock: alert.CurrentQty,
				ReorderPoint: alert.ThresholdQty,
				WarehouseID:  item.StoreID.String(),
			},
		}
	}
	event.AlertLevel = strings.ToLower(string(alert.Severity))
	event.AlertMessage = alert.Message
	event.CalculateSummary()

	if err := p.publisher.PublishInventory(ctx, event); err != nil {
		p.logger.WithFields(logrus.Fields{
			"alertId":   alert.ID,
			"alertType": alert.Type,
		}).WithError(err).Error("Failed to publish alert event")
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"alertId":   alert.ID,
		"alertType": alert.Type,
		"severity":  alert.Severity,
	}).Info("Published alert event")
	return nil
}

// PublishAlertEscalated publishes an event for an escalated alert
func (p *InventoryEventPublisher) PublishAlertEscalated(ctx context.Context, alert *models.Alert, level int) error {
	event := events.NewInventoryEvent(events.InventoryLowStock, alert.TenantID)
	event.AlertLevel = "critical"
	event.AlertMessage = fmt.Sprintf("Escalation level %d: %s (unacknowledged alert)", level, alert.Message)
	event.CalculateSummary()

	if err := p.publisher.PublishInventory(ctx, event); err != nil {
		p.logger.WithFields(logrus.Fields{
			"alertId": alert.ID,
			"level":   level,
		}).WithError(err).Error("Failed to publish escalation event")
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"alertId": alert.ID,
		"level":   level,
	}).Info("Published escalation event")
	return nil
}

// PublishStockAdjusted publishes an inventory.adjusted event
func (p *InventoryEventPublisher) PublishStockAdjusted(ctx context.Context, tenantID string, item *models.InventoryItem, previousStock int, reason string, adjustedBy string) error {
	event := events.NewInventoryEvent(events.InventoryAdjusted, tenantID)
	event.Items = []events.InventoryItem{
		{
			ProductID:     item.ProductID.String(),
			Name:          item.Name,
			SKU:           item.SKU,
			CurrentStock:  item.CurrentStock,
			PreviousStock: previousStock,
			WarehouseID:   item.StoreID.String(),
		},
	}
	event.AdjustmentReason = reason
	event.AdjustedBy = adjustedBy
	if item.CurrentStock > previousStock {
		event.AdjustmentType = "add"
	} else if item.CurrentStock < previousStock {
		event.AdjustmentType = "remove"
	} else {
		event.AdjustmentType = "set"
	}
	event.AlertLevel = "info"
	event.AlertMessage = fmt.Sprintf("Stock adjusted: %s (SKU: %s) changed from %d to %d", item.Name, item.SKU, previousStock, item.CurrentStock)

	if err := p.publisher.PublishInventory(ctx, event); err != nil {
		p.logger.WithFields(logrus.Fields{
			"productId": item.ProductID,
			"sku":       item.SKU,
		}).WithError(err).Error("Failed to publish inventory.adjusted event")
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"productId":      item.ProductID,
		"sku":            item.SKU,
		"previousStock":  previousStock,
		"currentStock":   item.CurrentStock,
		"adjustmentType": event.AdjustmentType,
	}).Info("Published inventory.adjusted event")
	return nil
}

// IsConnected returns true if connected to NATS
func (p *InventoryEventPublisher) IsConnected() bool {
	return p.publisher.IsConnected()
}

// Close closes the NATS connection
func (p *InventoryEventPublisher) Close() {
	p.publisher.Close()
}
