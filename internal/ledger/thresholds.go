package ledger

import (
	"fmt"
	"time"

	"inventory-service/internal/models"
)

// Finding is one threshold breach detected on an item. Stock-level
// findings are mutually exclusive; expiry findings are reported per lot on
// top of whatever the stock level says.
type Finding struct {
	Type         models.AlertType
	Category     models.AlertCategory
	Severity     models.AlertSeverity
	Message      string
	CurrentQty   int
	ThresholdQty int
	LotNumber    string
}

// EvaluateThresholds inspects an item and its active lots against the
// configured thresholds. It reads nothing and writes nothing; callers pass
// the state and the clock.
func EvaluateThresholds(item *models.InventoryItem, lots []models.Lot, now time.Time, warningDays, criticalDays int) []Finding {
	var findings []Finding

	switch {
	case item.CurrentStock <= 0:
		findings = append(findings, Finding{
			Type:       models.AlertTypeOutOfStock,
			Category:   models.AlertCategoryStock,
			Severity:   models.AlertSeverityCritical,
			Message:    fmt.Sprintf("%s is out of stock", item.Name),
			CurrentQty: item.CurrentStock,
		})
	case item.CurrentStock <= item.MinThreshold:
		findings = append(findings, Finding{
			Type:         models.AlertTypeLowStock,
			Category:     models.AlertCategoryStock,
			Severity:     models.AlertSeverityWarning,
			Message:      fmt.Sprintf("%s stock is %d, at or below minimum of %d", item.Name, item.CurrentStock, item.MinThreshold),
			CurrentQty:   item.CurrentStock,
			ThresholdQty: item.MinThreshold,
		})
	case item.MaxThreshold > 0 && item.CurrentStock >= item.MaxThreshold:
		findings = append(findings, Finding{
			Type:         models.AlertTypeOverstock,
			Category:     models.AlertCategoryStock,
			Severity:     models.AlertSeverityInfo,
			Message:      fmt.Sprintf("%s stock is %d, at or above maximum of %d", item.Name, item.CurrentStock, item.MaxThreshold),
			CurrentQty:   item.CurrentStock,
			ThresholdQty: item.MaxThreshold,
		})
	}

	warningCutoff := now.Add(time.Duration(warningDays) * 24 * time.Hour)
	criticalCutoff := now.Add(time.Duration(criticalDays) * 24 * time.Hour)

	for _, lot := range lots {
		if lot.Status != models.LotStatusActive || lot.ExpiresAt == nil {
			continue
		}

		switch {
		case !lot.ExpiresAt.After(criticalCutoff):
			findings = append(findings, Finding{
				Type:       models.AlertTypeExpiryCritical,
				Category:   models.AlertCategoryExpiry,
				Severity:   models.AlertSeverityCritical,
				Message:    fmt.Sprintf("%s lot %s expires %s", item.Name, lot.LotNumber, lot.ExpiresAt.Format("2006-01-02")),
				CurrentQty: lot.QuantityRemaining,
				LotNumber:  lot.LotNumber,
			})
		case !lot.ExpiresAt.After(warningCutoff):
			findings = append(findings, Finding{
				Type:       models.AlertTypeExpiryWarning,
				Category:   models.AlertCategoryExpiry,
				Severity:   models.AlertSeverityWarning,
				Message:    fmt.Sprintf("%s lot %s expires %s", item.Name, lot.LotNumber, lot.ExpiresAt.Format("2006-01-02")),
				CurrentQty: lot.QuantityRemaining,
				LotNumber:  lot.LotNumber,
			})
		}
	}

	return findings
}
