package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/repository"
)

// Metric names usable in rule conditions
const (
	MetricCurrentStock   = "current_stock"
	MetricAvailableStock = "available_stock"
	MetricReservedStock  = "reserved_stock"
	MetricMinThreshold   = "min_threshold"
	MetricUnitCost       = "unit_cost"
	MetricStockValue     = "stock_value"
	MetricConsumed24h    = "consumed_24h"
	MetricLoss24h        = "loss_24h"
	MetricLotDrift       = "lot_drift"
	MetricItemName       = "name"
	MetricItemSKU        = "sku"
)

// metricSnapshot holds the live values a rule's conditions are evaluated
// against, captured once per (rule, item) pair during a sweep
type metricSnapshot struct {
	numbers map[string]float64
	strings map[string]string
}

// snapshotMetrics reads the metrics for one item. Movement aggregates and
// lot drift are only queried when a condition actually references them.
func snapshotMetrics(ctx context.Context, items repository.InventoryStore, tenantID string, item *models.InventoryItem, conditions []models.RuleCondition, drift map[string]int) (*metricSnapshot, error) {
	snap := &metricSnapshot{
		numbers: map[string]float64{
			MetricCurrentStock:   float64(item.CurrentStock),
			MetricAvailableStock: float64(item.AvailableStock),
			MetricReservedStock:  float64(item.ReservedStock),
			MetricMinThreshold:   float64(item.MinThreshold),
			MetricUnitCost:       item.UnitCost,
			MetricStockValue:     float64(item.CurrentStock) * item.UnitCost,
		},
		strings: map[string]string{
			MetricItemName: item.Name,
			MetricItemSKU:  item.SKU,
		},
	}

	for _, cond := range conditions {
		switch cond.Metric {
		case MetricConsumed24h:
			sum, err := items.SumMovementsSince(ctx, tenantID, item.ID, models.MovementOut, time.Now().Add(-24*time.Hour))
			if err != nil {
				return nil, fmt.Errorf("summing consumption: %w", err)
			}
			snap.numbers[MetricConsumed24h] = float64(-sum)
		case MetricLoss24h:
			sum, err := items.SumMovementsSince(ctx, tenantID, item.ID, models.MovementLoss, time.Now().Add(-24*time.Hour))
			if err != nil {
				return nil, fmt.Errorf("summing losses: %w", err)
			}
			snap.numbers[MetricLoss24h] = float64(-sum)
		case MetricLotDrift:
			snap.numbers[MetricLotDrift] = float64(drift[item.SKU])
		}
	}

	return snap, nil
}

// evaluateCondition applies one condition to a snapshot. Unknown metrics
// evaluate to false so a typo in a rule never fires it.
func evaluateCondition(cond models.RuleCondition, snap *metricSnapshot) bool {
	if cond.Operator == models.OpContains {
		value, ok := snap.strings[cond.Metric]
		if !ok {
			return false
		}
		return strings.Contains(strings.ToLower(value), strings.ToLower(cond.StringValue))
	}

	actual, ok := snap.numbers[cond.Metric]
	if !ok {
		return false
	}
	return compareNumeric(cond.Operator, actual, cond.Value)
}

func compareNumeric(operator string, actual, expected float64) bool {
	switch operator {
	case models.OpGreaterThan:
		return actual > expected
	case models.OpGreaterOrEqual:
		return actual >= expected
	case models.OpLessThan:
		return actual < expected
	case models.OpLessOrEqual:
		return actual <= expected
	case models.OpEqual:
		return actual == expected
	default:
		return false
	}
}
