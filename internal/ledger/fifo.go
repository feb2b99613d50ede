package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"inventory-service/internal/models"
	"inventory-service/internal/repository"
)

// ConsumeFIFO consumes stock from a lot-tracked item, draining the oldest
// active lots first. Availability is verified against the full lot list
// before anything is written; the consumption plan then commits in a
// single transaction, so a failure anywhere leaves every lot untouched.
func (s *Service) ConsumeFIFO(ctx context.Context, tenantID string, itemID uuid.UUID, req *models.ConsumeRequest, actor string) ([]models.StockMovement, error) {
	lock := s.locks.get(itemID)
	lock.Lock()
	defer lock.Unlock()

	item, err := s.store.GetItemByID(ctx, tenantID, itemID)
	if err != nil {
		return nil, err
	}
	if !item.LotTracked {
		return nil, fmt.Errorf("%w: item %s is not lot tracked", ErrInvalidMovement, itemID)
	}

	lots, err := s.store.ListActiveLots(ctx, tenantID, itemID)
	if err != nil {
		return nil, fmt.Errorf("loading lots: %w", err)
	}

	available := 0
	for _, lot := range lots {
		available += lot.QuantityRemaining
	}
	if req.Quantity > available {
		return nil, fmt.Errorf("%w: available %d, requested %d for item %s",
			repository.ErrInsufficientStock, available, req.Quantity, itemID)
	}

	var reference *string
	if req.OrderID != nil {
		ref := req.OrderID.String()
		reference = &ref
	}

	// Walk the lots oldest first and plan one OUT movement per lot touched
	var plan []repository.LotConsumption
	var movements []*models.StockMovement
	remaining := req.Quantity
	for _, lot := range lots {
		if remaining == 0 {
			break
		}

		take := lot.QuantityRemaining
		if take > remaining {
			take = remaining
		}

		newRemaining := lot.QuantityRemaining - take
		newStatus := lot.Status
		if newRemaining == 0 {
			newStatus = models.LotStatusConsumed
		}

		lotNumber := lot.LotNumber
		plan = append(plan, repository.LotConsumption{
			LotID:        lot.ID,
			Quantity:     take,
			NewRemaining: newRemaining,
			NewStatus:    newStatus,
		})
		movements = append(movements, &models.StockMovement{
			ItemID:    itemID,
			StoreID:   item.StoreID,
			Kind:      models.MovementOut,
			Quantity:  -take,
			Reason:    "fifo consumption",
			Reference: reference,
			LotNumber: &lotNumber,
			Actor:     actor,
		})

		remaining -= take
	}

	if err := s.store.ConsumeLotsTx(ctx, tenantID, itemID, plan, movements); err != nil {
		return nil, fmt.Errorf("consuming lots: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"item_id":    itemID,
		"quantity":   req.Quantity,
		"lots_drawn": len(plan),
	}).Info("FIFO consumption applied")

	item.CurrentStock -= req.Quantity
	item.Recalculate()
	s.evaluate(ctx, tenantID, item)

	result := make([]models.StockMovement, 0, len(movements))
	for _, m := range movements {
		result = append(result, *m)
	}
	return result, nil
}
