package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Tesseract-Nexus/go-shared/cache"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"inventory-service/internal/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrVersionConflict   = errors.New("version conflict - record was modified by another request")
)

// Cache TTL constants
const (
	ItemCacheTTL     = 5 * time.Minute // Item rows - frequently read, changes on every movement
	ItemListCacheTTL = 2 * time.Minute // Item list cache - shorter due to frequent changes

	cacheKeyPrefix = "tesseract:inventory:"
)

// LotConsumption is one step of a FIFO consumption plan computed by the
// caller and executed transactionally by ConsumeLotsTx
type LotConsumption struct {
	LotID        uuid.UUID
	Quantity     int
	NewRemaining int
	NewStatus    models.LotStatus
}

// InventoryStore is the persistence gateway for items, movements and lots
type InventoryStore interface {
	CreateItem(ctx context.Context, tenantID string, item *models.InventoryItem) error
	GetItemByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.InventoryItem, error)
	ListItems(ctx context.Context, tenantID string, storeID *uuid.UUID, page, limit int) ([]models.InventoryItem, int64, error)
	UpdateItem(ctx context.Context, tenantID string, id uuid.UUID, updates map[string]interface{}) error
	DeleteItem(ctx context.Context, tenantID string, id uuid.UUID) error

	AppendMovement(ctx context.Context, tenantID string, movement *models.StockMovement) error
	ListMovements(ctx context.Context, tenantID string, itemID uuid.UUID, page, limit int) ([]models.StockMovement, int64, error)
	SumMovements(ctx context.Context, tenantID string, itemID uuid.UUID) (int, error)
	SumMovementsSince(ctx context.Context, tenantID string, itemID uuid.UUID, kind models.MovementKind, since time.Time) (int, error)

	UpdateReservedStock(ctx context.Context, tenantID string, itemID uuid.UUID, reserved int) error

	ReceiveLotTx(ctx context.Context, tenantID string, lot *models.Lot, movement *models.StockMovement) error
	ListActiveLots(ctx context.Context, tenantID string, itemID uuid.UUID) ([]models.Lot, error)
	ListLots(ctx context.Context, tenantID string, itemID uuid.UUID) ([]models.Lot, error)
	ConsumeLotsTx(ctx context.Context, tenantID string, itemID uuid.UUID, plan []LotConsumption, movements []*models.StockMovement) error
	ExpireLots(ctx context.Context, now time.Time) (int64, error)
	ReconcileLots(ctx context.Context, tenantID string) ([]models.LotDrift, error)
}

type InventoryRepository struct {
	db    *gorm.DB
	redis *redis.Client
	cache *cache.CacheLayer
}

func NewInventoryRepository(db *gorm.DB, redisClient *redis.Client) *InventoryRepository {
	repo := &InventoryRepository{
		db:    db,
		redis: redisClient,
	}

	// Initialize CacheLayer with the existing Redis client
	if redisClient != nil {
		cacheConfig := cache.CacheConfig{
			L1Enabled:  true,
			L1MaxItems: 5000,
			L1TTL:      30 * time.Second,
			DefaultTTL: ItemCacheTTL,
			KeyPrefix:  cacheKeyPrefix,
		}
		repo.cache = cache.NewCacheLayerFromClient(redisClient, cacheConfig)
	}

	return repo
}

// generateItemCacheKey creates a cache key for item lookups
func generateItemCacheKey(tenantID string, itemID uuid.UUID) string {
	return fmt.Sprintf("item:%s:%s", tenantID, itemID.String())
}

// invalidateItemCaches invalidates all caches related to an item
func (r *InventoryRepository) invalidateItemCaches(ctx context.Context, tenantID string, itemID uuid.UUID) {
	if r.cache == nil {
		return
	}

	_ = r.cache.Delete(ctx, generateItemCacheKey(tenantID, itemID))

	// Invalidate list caches for this tenant (pattern-based)
	_ = r.cache.DeletePattern(ctx, fmt.Sprintf("item:list:%s:*", tenantID))
}

// RedisHealth returns the health status of the Redis connection
func (r *InventoryRepository) RedisHealth(ctx context.Context) error {
	if r.redis == nil {
		return fmt.Errorf("redis not configured")
	}
	return r.redis.Ping(ctx).Err()
}

// CacheStats returns cache statistics
func (r *InventoryRepository) CacheStats() *cache.CacheStats {
	if r.cache == nil {
		return nil
	}
	stats := r.cache.Stats()
	return &stats
}

// ========== Item Operations ==========

// CreateItem creates a new inventory item
func (r *InventoryRepository) CreateItem(ctx context.Context, tenantID string, item *models.InventoryItem) error {
	item.TenantID = tenantID
	item.CreatedAt = time.Now()
	item.UpdatedAt = time.Now()

	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return err
	}

	item.Recalculate()
	r.invalidateItemCaches(ctx, tenantID, item.ID)
	return nil
}

// GetItemByID retrieves an item by ID with read-through caching
func (r *InventoryRepository) GetItemByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.InventoryItem, error) {
	cacheKey := generateItemCacheKey(tenantID, id)

	// Try to get from cache first
	if r.redis != nil {
		val, err := r.redis.Get(ctx, cacheKeyPrefix+cacheKey).Result()
		if err == nil {
			var item models.InventoryItem
			if err := json.Unmarshal([]byte(val), &item); err == nil {
				item.Recalculate()
				return &item, nil
			}
		}
	}

	var item models.InventoryItem
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	// Cache the result
	if r.redis != nil {
		if data, marshalErr := json.Marshal(item); marshalErr == nil {
			r.redis.Set(ctx, cacheKeyPrefix+cacheKey, data, ItemCacheTTL)
		}
	}

	return &item, nil
}

// ListItems retrieves items with pagination, optionally scoped to a store
func (r *InventoryRepository) ListItems(ctx context.Context, tenantID string, storeID *uuid.UUID, page, limit int) ([]models.InventoryItem, int64, error) {
	var items []models.InventoryItem
	var total int64
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)

	if storeID != nil {
		query = query.Where("store_id = ?", *storeID)
	}

	// Get total count
	if err := query.Model(&models.InventoryItem{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Apply pagination if specified
	if page > 0 && limit > 0 {
		offset := (page - 1) * limit
		query = query.Offset(offset).Limit(limit)
	}

	err := query.Order("name ASC").Find(&items).Error
	return items, total, err
}

// UpdateItem updates item attributes (name, thresholds, cost) and
// invalidates caches; stock quantities only ever change through movements
func (r *InventoryRepository) UpdateItem(ctx context.Context, tenantID string, id uuid.UUID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).Model(&models.InventoryItem{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	r.invalidateItemCaches(ctx, tenantID, id)
	return nil
}

// DeleteItem soft deletes an item
func (r *InventoryRepository) DeleteItem(ctx context.Context, tenantID string, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&models.InventoryItem{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	r.invalidateItemCaches(ctx, tenantID, id)
	return nil
}

// ========== Movement Operations ==========

// AppendMovement inserts a movement row and applies its signed quantity to
// the item aggregate in a single transaction. The movement log and the
// cached current_stock can never disagree: either both writes commit or
// neither does.
func (r *InventoryRepository) AppendMovement(ctx context.Context, tenantID string, movement *models.StockMovement) error {
	movement.TenantID = tenantID
	movement.CreatedAt = time.Now()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(movement).Error; err != nil {
			return err
		}

		result := tx.Model(&models.InventoryItem{}).
			Where("tenant_id = ? AND id = ?", tenantID, movement.ItemID).
			Updates(map[string]interface{}{
				"current_stock": gorm.Expr("current_stock + ?", movement.Quantity),
				"updated_at":    time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.invalidateItemCaches(ctx, tenantID, movement.ItemID)
	return nil
}

// ListMovements retrieves the movement log for an item, newest first
func (r *InventoryRepository) ListMovements(ctx context.Context, tenantID string, itemID uuid.UUID, page, limit int) ([]models.StockMovement, int64, error) {
	var movements []models.StockMovement
	var total int64

	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND item_id = ?", tenantID, itemID)

	if err := query.Model(&models.StockMovement{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page > 0 && limit > 0 {
		offset := (page - 1) * limit
		query = query.Offset(offset).Limit(limit)
	}

	err := query.Order("created_at DESC").Find(&movements).Error
	return movements, total, err
}

// SumMovements returns the signed sum of all movements for an item. By
// construction it equals the item's current_stock; the delta is checked in
// tests and by reconciliation.
func (r *InventoryRepository) SumMovements(ctx context.Context, tenantID string, itemID uuid.UUID) (int, error) {
	var sum *int
	err := r.db.WithContext(ctx).Model(&models.StockMovement{}).
		Select("SUM(quantity)").
		Where("tenant_id = ? AND item_id = ?", tenantID, itemID).
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

// SumMovementsSince returns the signed sum of movements of one kind since
// a point in time, used by rule conditions over movement aggregates
func (r *InventoryRepository) SumMovementsSince(ctx context.Context, tenantID string, itemID uuid.UUID, kind models.MovementKind, since time.Time) (int, error) {
	var sum *int
	err := r.db.WithContext(ctx).Model(&models.StockMovement{}).
		Select("SUM(quantity)").
		Where("tenant_id = ? AND item_id = ? AND kind = ? AND created_at >= ?", tenantID, itemID, kind, since).
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

// UpdateReservedStock sets the reserved quantity of an item. Callers hold
// the per-item lock, so a plain set is race-free here.
func (r *InventoryRepository) UpdateReservedStock(ctx context.Context, tenantID string, itemID uuid.UUID, reserved int) error {
	result := r.db.WithContext(ctx).Model(&models.InventoryItem{}).
		Where("tenant_id = ? AND id = ?", tenantID, itemID).
		Updates(map[string]interface{}{
			"reserved_stock": reserved,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	r.invalidateItemCaches(ctx, tenantID, itemID)
	return nil
}

// ========== Lot Operations ==========

// ReceiveLotTx creates a lot and its IN movement and bumps the item
// aggregate, all in one transaction
func (r *InventoryRepository) ReceiveLotTx(ctx context.Context, tenantID string, lot *models.Lot, movement *models.StockMovement) error {
	lot.TenantID = tenantID
	lot.CreatedAt = time.Now()
	lot.UpdatedAt = time.Now()
	movement.TenantID = tenantID
	movement.CreatedAt = time.Now()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(lot).Error; err != nil {
			return err
		}
		if err := tx.Create(movement).Error; err != nil {
			return err
		}

		result := tx.Model(&models.InventoryItem{}).
			Where("tenant_id = ? AND id = ?", tenantID, movement.ItemID).
			Updates(map[string]interface{}{
				"current_stock": gorm.Expr("current_stock + ?", movement.Quantity),
				"updated_at":    time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.invalidateItemCaches(ctx, tenantID, movement.ItemID)
	return nil
}

// ListActiveLots retrieves active lots for an item ordered oldest first,
// which is the consumption order
func (r *InventoryRepository) ListActiveLots(ctx context.Context, tenantID string, itemID uuid.UUID) ([]models.Lot, error) {
	var lots []models.Lot
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND item_id = ? AND status = ?", tenantID, itemID, models.LotStatusActive).
		Order("received_at ASC").
		Find(&lots).Error
	return lots, err
}

// ListLots retrieves all lots for an item
func (r *InventoryRepository) ListLots(ctx context.Context, tenantID string, itemID uuid.UUID) ([]models.Lot, error) {
	var lots []models.Lot
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND item_id = ?", tenantID, itemID).
		Order("received_at ASC").
		Find(&lots).Error
	return lots, err
}

// ConsumeLotsTx executes a FIFO consumption plan in one transaction: every
// lot update, one OUT movement per lot touched, and the aggregate
// decrement. Each lot update is guarded on the remaining quantity the plan
// was computed from; a concurrent change fails the whole transaction.
func (r *InventoryRepository) ConsumeLotsTx(ctx context.Context, tenantID string, itemID uuid.UUID, plan []LotConsumption, movements []*models.StockMovement) error {
	now := time.Now()
	total := 0

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, step := range plan {
			expectedRemaining := step.NewRemaining + step.Quantity
			result := tx.Model(&models.Lot{}).
				Where("tenant_id = ? AND id = ? AND status = ? AND quantity_remaining = ?",
					tenantID, step.LotID, models.LotStatusActive, expectedRemaining).
				Updates(map[string]interface{}{
					"quantity_remaining": step.NewRemaining,
					"status":             step.NewStatus,
					"updated_at":         now,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrVersionConflict
			}
			total += step.Quantity
		}

		for _, movement := range movements {
			movement.TenantID = tenantID
			movement.CreatedAt = now
			if err := tx.Create(movement).Error; err != nil {
				return err
			}
		}

		result := tx.Model(&models.InventoryItem{}).
			Where("tenant_id = ? AND id = ?", tenantID, itemID).
			Updates(map[string]interface{}{
				"current_stock": gorm.Expr("current_stock - ?", total),
				"updated_at":    now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.invalidateItemCaches(ctx, tenantID, itemID)
	return nil
}

// ExpireLots marks active lots whose expiry has passed as EXPIRED and
// returns the number of lots changed
func (r *InventoryRepository) ExpireLots(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Lot{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", models.LotStatusActive, now).
		Updates(map[string]interface{}{
			"status":     models.LotStatusExpired,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

// ReconcileLots reports lot-tracked items whose active-lot sum disagrees
// with the cached aggregate. Drift is surfaced, never auto-corrected.
func (r *InventoryRepository) ReconcileLots(ctx context.Context, tenantID string) ([]models.LotDrift, error) {
	var drifts []models.LotDrift
	err := r.db.WithContext(ctx).Raw(`
		SELECT i.id AS item_id, i.sku, i.current_stock, COALESCE(SUM(l.quantity_remaining), 0) AS lot_sum
		FROM inventory_items i
		LEFT JOIN lots l ON l.item_id = i.id AND l.status = ?
		WHERE i.tenant_id = ? AND i.lot_tracked = true AND i.deleted_at IS NULL
		GROUP BY i.id, i.sku, i.current_stock
		HAVING i.current_stock <> COALESCE(SUM(l.quantity_remaining), 0)
	`, models.LotStatusActive, tenantID).Scan(&drifts).Error
	return drifts, err
}
