package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"inventory-service/internal/models"
	"inventory-service/internal/repository"
)

// memoryStore is an in-memory InventoryStore for service tests
type memoryStore struct {
	mu        sync.Mutex
	items     map[uuid.UUID]*models.InventoryItem
	movements []models.StockMovement
	lots      map[uuid.UUID]*models.Lot
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		items: make(map[uuid.UUID]*models.InventoryItem),
		lots:  make(map[uuid.UUID]*models.Lot),
	}
}

func (s *memoryStore) addItem(item *models.InventoryItem) *models.InventoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.Recalculate()
	s.items[item.ID] = item
	return item
}

func (s *memoryStore) addLot(lot *models.Lot) *models.Lot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lot.ID == uuid.Nil {
		lot.ID = uuid.New()
	}
	if lot.Status == "" {
		lot.Status = models.LotStatusActive
	}
	s.lots[lot.ID] = lot
	return lot
}

func (s *memoryStore) CreateItem(ctx context.Context, tenantID string, item *models.InventoryItem) error {
	item.TenantID = tenantID
	s.addItem(item)
	return nil
}

func (s *memoryStore) GetItemByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok || item.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	copied := *item
	copied.Recalculate()
	return &copied, nil
}

func (s *memoryStore) ListItems(ctx context.Context, tenantID string, storeID *uuid.UUID, page, limit int) ([]models.InventoryItem, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.InventoryItem
	for _, item := range s.items {
		if item.TenantID != tenantID {
			continue
		}
		if storeID != nil && item.StoreID != *storeID {
			continue
		}
		copied := *item
		copied.Recalculate()
		result = append(result, copied)
	}
	return result, int64(len(result)), nil
}

func (s *memoryStore) UpdateItem(ctx context.Context, tenantID string, id uuid.UUID, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok || item.TenantID != tenantID {
		return repository.ErrNotFound
	}
	if v, ok := updates["name"].(string); ok {
		item.Name = v
	}
	if v, ok := updates["unit"].(string); ok {
		item.Unit = v
	}
	if v, ok := updates["min_threshold"].(int); ok {
		item.MinThreshold = v
	}
	if v, ok := updates["max_threshold"].(int); ok {
		item.MaxThreshold = v
	}
	if v, ok := updates["unit_cost"].(float64); ok {
		item.UnitCost = v
	}
	if v, ok := updates["lot_tracked"].(bool); ok {
		item.LotTracked = v
	}
	return nil
}

func (s *memoryStore) DeleteItem(ctx context.Context, tenantID string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok || item.TenantID != tenantID {
		return repository.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *memoryStore) AppendMovement(ctx context.Context, tenantID string, movement *models.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[movement.ItemID]
	if !ok || item.TenantID != tenantID {
		return repository.ErrNotFound
	}
	movement.TenantID = tenantID
	if movement.ID == uuid.Nil {
		movement.ID = uuid.New()
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now()
	}
	s.movements = append(s.movements, *movement)
	item.CurrentStock += movement.Quantity
	return nil
}

func (s *memoryStore) ListMovements(ctx context.Context, tenantID string, itemID uuid.UUID, page, limit int) ([]models.StockMovement, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.StockMovement
	for _, m := range s.movements {
		if m.TenantID == tenantID && m.ItemID == itemID {
			result = append(result, m)
		}
	}
	return result, int64(len(result)), nil
}

func (s *memoryStore) SumMovements(ctx context.Context, tenantID string, itemID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := 0
	for _, m := range s.movements {
		if m.TenantID == tenantID && m.ItemID == itemID {
			sum += m.Quantity
		}
	}
	return sum, nil
}

func (s *memoryStore) SumMovementsSince(ctx context.Context, tenantID string, itemID uuid.UUID, kind models.MovementKind, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := 0
	for _, m := range s.movements {
		if m.TenantID == tenantID && m.ItemID == itemID && m.Kind == kind && !m.CreatedAt.Before(since) {
			sum += m.Quantity
		}
	}
	return sum, nil
}

func (s *memoryStore) UpdateReservedStock(ctx context.Context, tenantID string, itemID uuid.UUID, reserved int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok || item.TenantID != tenantID {
		return repository.ErrNotFound
	}
	item.ReservedStock = reserved
	return nil
}

func (s *memoryStore) ReceiveLotTx(ctx context.Context, tenantID string, lot *models.Lot, movement *models.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[movement.ItemID]
	if !ok || item.TenantID != tenantID {
		return repository.ErrNotFound
	}
	lot.TenantID = tenantID
	if lot.ID == uuid.Nil {
		lot.ID = uuid.New()
	}
	s.lots[lot.ID] = lot
	movement.TenantID = tenantID
	if movement.ID == uuid.Nil {
		movement.ID = uuid.New()
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now()
	}
	s.movements = append(s.movements, *movement)
	item.CurrentStock += movement.Quantity
	return nil
}

func (s *memoryStore) ListActiveLots(ctx context.Context, tenantID string, itemID uuid.UUID) ([]models.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Lot
	for _, lot := range s.lots {
		if lot.TenantID == tenantID && lot.ItemID == itemID && lot.Status == models.LotStatusActive {
			result = append(result, *lot)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ReceivedAt.Before(result[j].ReceivedAt) })
	return result, nil
}

func (s *memoryStore) ListLots(ctx context.Context, tenantID string, itemID uuid.UUID) ([]models.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Lot
	for _, lot := range s.lots {
		if lot.TenantID == tenantID && lot.ItemID == itemID {
			result = append(result, *lot)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ReceivedAt.Before(result[j].ReceivedAt) })
	return result, nil
}

func (s *memoryStore) ConsumeLotsTx(ctx context.Context, tenantID string, itemID uuid.UUID, plan []repository.LotConsumption, movements []*models.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok || item.TenantID != tenantID {
		return repository.ErrNotFound
	}

	// Verify guards before writing anything, mirroring the transactional
	// all-or-nothing behavior
	total := 0
	for _, step := range plan {
		lot, ok := s.lots[step.LotID]
		if !ok || lot.Status != models.LotStatusActive || lot.QuantityRemaining != step.NewRemaining+step.Quantity {
			return repository.ErrVersionConflict
		}
		total += step.Quantity
	}

	for _, step := range plan {
		lot := s.lots[step.LotID]
		lot.QuantityRemaining = step.NewRemaining
		lot.Status = step.NewStatus
	}
	for _, movement := range movements {
		movement.TenantID = tenantID
		if movement.ID == uuid.Nil {
			movement.ID = uuid.New()
		}
		if movement.CreatedAt.IsZero() {
			movement.CreatedAt = time.Now()
		}
		s.movements = append(s.movements, *movement)
	}
	item.CurrentStock -= total
	return nil
}

func (s *memoryStore) ExpireLots(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, lot := range s.lots {
		if lot.Status == models.LotStatusActive && lot.ExpiresAt != nil && lot.ExpiresAt.Before(now) {
			lot.Status = models.LotStatusExpired
			count++
		}
	}
	return count, nil
}

func (s *memoryStore) ReconcileLots(ctx context.Context, tenantID string) ([]models.LotDrift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var drifts []models.LotDrift
	for _, item := range s.items {
		if item.TenantID != tenantID || !item.LotTracked {
			continue
		}
		sum := 0
		for _, lot := range s.lots {
			if lot.ItemID == item.ID && lot.Status == models.LotStatusActive {
				sum += lot.QuantityRemaining
			}
		}
		if sum != item.CurrentStock {
			drifts = append(drifts, models.LotDrift{
				ItemID:       item.ID,
				SKU:          item.SKU,
				CurrentStock: item.CurrentStock,
				LotSum:       sum,
			})
		}
	}
	return drifts, nil
}

var _ repository.InventoryStore = (*memoryStore)(nil)

// recordingNotifier captures threshold findings for assertions
type recordingNotifier struct {
	mu       sync.Mutex
	findings []Finding
}

func (n *recordingNotifier) HandleFindings(ctx context.Context, tenantID string, item *models.InventoryItem, findings []Finding) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.findings = append(n.findings, findings...)
}

func (n *recordingNotifier) all() []Finding {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Finding(nil), n.findings...)
}
