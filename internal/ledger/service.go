package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"inventory-service/internal/models"
	"inventory-service/internal/repository"
)

var ErrInvalidMovement = errors.New("invalid movement")

// Notifier receives threshold findings after every stock mutation. The
// ledger decides when to evaluate; the notifier decides whether a finding
// becomes an alert.
type Notifier interface {
	HandleFindings(ctx context.Context, tenantID string, item *models.InventoryItem, findings []Finding)
}

// Service owns all stock mutations. Every write path locks the item,
// performs its checks, writes through the repository and re-evaluates
// thresholds before the caller gets control back.
type Service struct {
	store    repository.InventoryStore
	locks    *itemLocks
	notifier Notifier
	logger   *logrus.Entry

	warningDays  int
	criticalDays int
}

func NewService(store repository.InventoryStore, logger *logrus.Logger, warningDays, criticalDays int) *Service {
	return &Service{
		store:        store,
		locks:        newItemLocks(),
		logger:       logger.WithField("component", "ledger"),
		warningDays:  warningDays,
		criticalDays: criticalDays,
	}
}

// SetNotifier wires the alerting side in after construction; the two
// services reference each other
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// ========== Item CRUD ==========

func (s *Service) CreateItem(ctx context.Context, tenantID string, req *models.CreateItemRequest) (*models.InventoryItem, error) {
	item := &models.InventoryItem{
		StoreID:   req.StoreID,
		ProductID: req.ProductID,
		Name:      req.Name,
		SKU:       req.SKU,
		Unit:      "unit",
	}
	if req.Unit != nil {
		item.Unit = *req.Unit
	}
	if req.MinThreshold != nil {
		item.MinThreshold = *req.MinThreshold
	}
	if req.MaxThreshold != nil {
		item.MaxThreshold = *req.MaxThreshold
	}
	if req.UnitCost != nil {
		item.UnitCost = *req.UnitCost
	}
	if req.LotTracked != nil {
		item.LotTracked = *req.LotTracked
	}

	if err := s.store.CreateItem(ctx, tenantID, item); err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}
	return item, nil
}

func (s *Service) GetItem(ctx context.Context, tenantID string, itemID uuid.UUID) (*models.InventoryItem, error) {
	return s.store.GetItemByID(ctx, tenantID, itemID)
}

func (s *Service) ListItems(ctx context.Context, tenantID string, storeID *uuid.UUID, page, limit int) ([]models.InventoryItem, int64, error) {
	return s.store.ListItems(ctx, tenantID, storeID, page, limit)
}

func (s *Service) UpdateItem(ctx context.Context, tenantID string, itemID uuid.UUID, req *models.UpdateItemRequest) (*models.InventoryItem, error) {
	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Unit != nil {
		updates["unit"] = *req.Unit
	}
	if req.MinThreshold != nil {
		updates["min_threshold"] = *req.MinThreshold
	}
	if req.MaxThreshold != nil {
		updates["max_threshold"] = *req.MaxThreshold
	}
	if req.UnitCost != nil {
		updates["unit_cost"] = *req.UnitCost
	}
	if req.LotTracked != nil {
		updates["lot_tracked"] = *req.LotTracked
	}

	if len(updates) > 0 {
		if err := s.store.UpdateItem(ctx, tenantID, itemID, updates); err != nil {
			return nil, err
		}
	}

	item, err := s.store.GetItemByID(ctx, tenantID, itemID)
	if err != nil {
		return nil, err
	}

	// Threshold changes can put the item into a breached state immediately
	s.evaluate(ctx, tenantID, item)
	return item, nil
}

func (s *Service) DeleteItem(ctx context.Context, tenantID string, itemID uuid.UUID) error {
	return s.store.DeleteItem(ctx, tenantID, itemID)
}

// ========== Stock Mutations ==========

// ApplyMovement appends a movement to the item's ledger and updates the
// aggregate in the same transaction. The stored quantity is signed; OUT
// and LOSS always subtract, IN always adds, ADJUSTMENT carries the sign
// the caller gave it. The returned item reflects the state right after
// this movement, captured under the item lock.
func (s *Service) ApplyMovement(ctx context.Context, tenantID string, itemID uuid.UUID, req *models.ApplyMovementRequest, actor string) (*models.StockMovement, *models.InventoryItem, error) {
	if !req.Kind.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidMovement, req.Kind)
	}
	if req.Quantity == 0 {
		return nil, nil, fmt.Errorf("%w: quantity must be nonzero", ErrInvalidMovement)
	}

	lock := s.locks.get(itemID)
	lock.Lock()
	defer lock.Unlock()

	item, err := s.store.GetItemByID(ctx, tenantID, itemID)
	if err != nil {
		return nil, nil, err
	}

	movement := &models.StockMovement{
		ItemID:    itemID,
		StoreID:   item.StoreID,
		Kind:      req.Kind,
		Quantity:  signedQuantity(req.Kind, req.Quantity),
		Reason:    req.Reason,
		Reference: req.Reference,
		LotNumber: req.LotNumber,
		UnitCost:  req.UnitCost,
		Actor:     actor,
	}

	if err := s.store.AppendMovement(ctx, tenantID, movement); err != nil {
		return nil, nil, fmt.Errorf("appending movement: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"item_id":   itemID,
		"kind":      movement.Kind,
		"quantity":  movement.Quantity,
	}).Debug("Movement applied")

	item.CurrentStock += movement.Quantity
	item.Recalculate()
	s.evaluate(ctx, tenantID, item)

	return movement, item, nil
}

// Reserve sets stock aside for an order. The availability check and the
// write happen under the item lock, so concurrent reservations cannot
// oversell.
func (s *Service) Reserve(ctx context.Context, tenantID string, itemID uuid.UUID, req *models.ReserveRequest) (*models.InventoryItem, error) {
	lock := s.locks.get(itemID)
	lock.Lock()
	defer lock.Unlock()

	item, err := s.store.GetItemByID(ctx, tenantID, itemID)
	if err != nil {
		return nil, err
	}

	if req.Quantity > item.AvailableStock {
		return nil, fmt.Errorf("%w: available %d, requested %d for item %s",
			repository.ErrInsufficientStock, item.AvailableStock, req.Quantity, itemID)
	}

	newReserved := item.ReservedStock + req.Quantity
	if err := s.store.UpdateReservedStock(ctx, tenantID, itemID, newReserved); err != nil {
		return nil, fmt.Errorf("reserving stock: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"item_id":   itemID,
		"order_id":  req.OrderID,
		"quantity":  req.Quantity,
	}).Debug("Stock reserved")

	item.ReservedStock = newReserved
	item.Recalculate()
	s.evaluate(ctx, tenantID, item)

	return item, nil
}

// Release returns reserved stock. Releasing more than is reserved clamps
// at zero rather than failing; order cancellation flows retry and would
// otherwise dead-letter on the second attempt. The oversized release is
// logged so double-releases stay visible.
func (s *Service) Release(ctx context.Context, tenantID string, itemID uuid.UUID, req *models.ReleaseRequest) (*models.InventoryItem, error) {
	lock := s.locks.get(itemID)
	lock.Lock()
	defer lock.Unlock()

	item, err := s.store.GetItemByID(ctx, tenantID, itemID)
	if err != nil {
		return nil, err
	}

	newReserved := item.ReservedStock - req.Quantity
	if newReserved < 0 {
		s.logger.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"item_id":   itemID,
			"order_id":  req.OrderID,
			"requested": req.Quantity,
			"reserved":  item.ReservedStock,
		}).Warn("Release exceeds reserved stock, clamping to zero")
		newReserved = 0
	}

	if err := s.store.UpdateReservedStock(ctx, tenantID, itemID, newReserved); err != nil {
		return nil, fmt.Errorf("releasing stock: %w", err)
	}

	item.ReservedStock = newReserved
	item.Recalculate()
	s.evaluate(ctx, tenantID, item)

	return item, nil
}

// ReceiveLot records a supplier receipt: a new lot, its IN movement and
// the aggregate increment commit together
func (s *Service) ReceiveLot(ctx context.Context, tenantID string, itemID uuid.UUID, req *models.ReceiveLotRequest, actor string) (*models.Lot, error) {
	lock := s.locks.get(itemID)
	lock.Lock()
	defer lock.Unlock()

	item, err := s.store.GetItemByID(ctx, tenantID, itemID)
	if err != nil {
		return nil, err
	}

	lot := &models.Lot{
		ItemID:            itemID,
		LotNumber:         req.LotNumber,
		QuantityRemaining: req.Quantity,
		UnitCost:          req.UnitCost,
		ReceivedAt:        time.Now(),
		ExpiresAt:         req.ExpiresAt,
		Status:            models.LotStatusActive,
	}

	movement := &models.StockMovement{
		ItemID:    itemID,
		StoreID:   item.StoreID,
		Kind:      models.MovementIn,
		Quantity:  req.Quantity,
		Reason:    "lot received",
		Reference: req.Reference,
		LotNumber: &req.LotNumber,
		ExpiresAt: req.ExpiresAt,
		UnitCost:  &req.UnitCost,
		Actor:     actor,
	}

	if err := s.store.ReceiveLotTx(ctx, tenantID, lot, movement); err != nil {
		return nil, fmt.Errorf("receiving lot: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"item_id":    itemID,
		"lot_number": req.LotNumber,
		"quantity":   req.Quantity,
	}).Info("Lot received")

	item.CurrentStock += req.Quantity
	item.Recalculate()
	s.evaluate(ctx, tenantID, item)

	return lot, nil
}

// ========== Read Surface ==========

func (s *Service) ListMovements(ctx context.Context, tenantID string, itemID uuid.UUID, page, limit int) ([]models.StockMovement, int64, error) {
	return s.store.ListMovements(ctx, tenantID, itemID, page, limit)
}

func (s *Service) ListLots(ctx context.Context, tenantID string, itemID uuid.UUID) ([]models.Lot, error) {
	return s.store.ListLots(ctx, tenantID, itemID)
}

func (s *Service) ReconcileLots(ctx context.Context, tenantID string) ([]models.LotDrift, error) {
	return s.store.ReconcileLots(ctx, tenantID)
}

// ========== Threshold Evaluation ==========

// evaluate runs the threshold check for an item and hands any findings to
// the notifier. Called synchronously from every mutation; evaluation
// failures are logged and never fail the mutation that triggered them.
func (s *Service) evaluate(ctx context.Context, tenantID string, item *models.InventoryItem) {
	if s.notifier == nil {
		return
	}

	var lots []models.Lot
	if item.LotTracked {
		var err error
		lots, err = s.store.ListActiveLots(ctx, tenantID, item.ID)
		if err != nil {
			s.logger.WithError(err).WithField("item_id", item.ID).Warn("Failed to load lots for threshold evaluation")
		}
	}

	findings := EvaluateThresholds(item, lots, time.Now(), s.warningDays, s.criticalDays)
	if len(findings) == 0 {
		return
	}

	s.notifier.HandleFindings(ctx, tenantID, item, findings)
}

func signedQuantity(kind models.MovementKind, quantity int) int {
	abs := quantity
	if abs < 0 {
		abs = -abs
	}

	switch kind {
	case models.MovementIn:
		return abs
	case models.MovementOut, models.MovementLoss:
		return -abs
	default:
		return quantity
	}
}
