package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MovementKind represents the kind of a stock movement
type MovementKind string

const (
	MovementIn         MovementKind = "IN"
	MovementOut        MovementKind = "OUT"
	MovementAdjustment MovementKind = "ADJUSTMENT"
	MovementLoss       MovementKind = "LOSS"
)

// Valid reports whether the movement kind is one of the known kinds
func (k MovementKind) Valid() bool {
	switch k {
	case MovementIn, MovementOut, MovementAdjustment, MovementLoss:
		return true
	}
	return false
}

// LotStatus represents the lifecycle status of a lot
type LotStatus string

const (
	LotStatusActive   LotStatus = "ACTIVE"
	LotStatusExpired  LotStatus = "EXPIRED"
	LotStatusReserved LotStatus = "RESERVED"
	LotStatusConsumed LotStatus = "CONSUMED"
)

// InventoryItem represents the stock position of one product at one store.
// AvailableStock and Value are derived on read and never stored; CurrentStock
// is the cached projection of the movement log and is updated in the same
// transaction as every movement insert.
type InventoryItem struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID  string    `json:"tenantId" gorm:"type:varchar(255);not null;index"`
	StoreID   uuid.UUID `json:"storeId" gorm:"type:uuid;not null;uniqueIndex:idx_items_store_product"`
	ProductID uuid.UUID `json:"productId" gorm:"type:uuid;not null;uniqueIndex:idx_items_store_product"`

	// Denormalized for alert messages and exports
	Name string `json:"name" gorm:"type:varchar(255);not null"`
	SKU  string `json:"sku" gorm:"type:varchar(100);not null"`
	Unit string `json:"unit" gorm:"type:varchar(20);not null;default:'unit'"`

	CurrentStock   int `json:"currentStock" gorm:"not null;default:0"`
	ReservedStock  int `json:"reservedStock" gorm:"not null;default:0"`
	AvailableStock int `json:"availableStock" gorm:"-"`

	MinThreshold int `json:"minThreshold" gorm:"not null;default:0"`
	MaxThreshold int `json:"maxThreshold" gorm:"not null;default:0"`

	UnitCost float64 `json:"unitCost" gorm:"type:decimal(12,4);default:0"`
	Value    float64 `json:"value" gorm:"-"`

	LotTracked bool `json:"lotTracked" gorm:"default:false"`

	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"lastUpdated"`
	DeletedAt *gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index"`
}

// Recalculate refreshes the derived quantities from the stored ones
func (i *InventoryItem) Recalculate() {
	i.AvailableStock = i.CurrentStock - i.ReservedStock
	i.Value = float64(i.CurrentStock) * i.UnitCost
}

// AfterFind recomputes derived fields so callers never see stale projections
func (i *InventoryItem) AfterFind(tx *gorm.DB) error {
	i.Recalculate()
	return nil
}

// StockMovement is one immutable entry in the append-only movement log.
// Quantity is signed: positive for IN/ADJUSTMENT up, negative for
// OUT/LOSS/ADJUSTMENT down. The current stock of an item is by construction
// the running sum of its movements.
type StockMovement struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID string    `json:"tenantId" gorm:"type:varchar(255);not null;index"`
	ItemID   uuid.UUID `json:"itemId" gorm:"type:uuid;not null;index:idx_movements_item_created"`
	StoreID  uuid.UUID `json:"storeId" gorm:"type:uuid;not null;index"`

	Kind     MovementKind `json:"kind" gorm:"type:varchar(20);not null"`
	Quantity int          `json:"quantity" gorm:"not null"`
	Reason   string       `json:"reason" gorm:"type:varchar(255);not null"`

	// Optional context
	Reference *string    `json:"reference,omitempty" gorm:"type:varchar(100);index"`
	LotNumber *string    `json:"lotNumber,omitempty" gorm:"type:varchar(100)"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	UnitCost  *float64   `json:"unitCost,omitempty" gorm:"type:decimal(12,4)"`

	Actor     string    `json:"actor" gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;index:idx_movements_item_created"`
}

// Lot is a batch of stock received together, tracked separately for
// FIFO consumption and expiry alerting
type Lot struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID string    `json:"tenantId" gorm:"type:varchar(255);not null;index"`
	ItemID   uuid.UUID `json:"itemId" gorm:"type:uuid;not null;index:idx_lots_item_received"`

	LotNumber         string     `json:"lotNumber" gorm:"type:varchar(100);not null"`
	QuantityRemaining int        `json:"quantityRemaining" gorm:"not null;default:0"`
	UnitCost          float64    `json:"unitCost" gorm:"type:decimal(12,4);default:0"`
	ReceivedAt        time.Time  `json:"receivedAt" gorm:"not null;index:idx_lots_item_received"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty" gorm:"index"`
	Status            LotStatus  `json:"status" gorm:"type:varchar(20);not null;default:'ACTIVE';index"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LotDrift reports an item whose active-lot sum disagrees with the cached
// aggregate. Lot tracking is advisory; drift is surfaced, not auto-corrected.
type LotDrift struct {
	ItemID       uuid.UUID `json:"itemId"`
	SKU          string    `json:"sku"`
	CurrentStock int       `json:"currentStock"`
	LotSum       int       `json:"lotSum"`
}

// TableName implementations
func (InventoryItem) TableName() string {
	return "inventory_items"
}

func (StockMovement) TableName() string {
	return "stock_movements"
}

func (Lot) TableName() string {
	return "lots"
}

// Request/Response models

type CreateItemRequest struct {
	StoreID      uuid.UUID `json:"storeId" binding:"required"`
	ProductID    uuid.UUID `json:"productId" binding:"required"`
	Name         string    `json:"name" binding:"required,min=1,max=255"`
	SKU          string    `json:"sku" binding:"required,min=1,max=100"`
	Unit         *string   `json:"unit,omitempty"`
	MinThreshold *int      `json:"minThreshold,omitempty"`
	MaxThreshold *int      `json:"maxThreshold,omitempty"`
	UnitCost     *float64  `json:"unitCost,omitempty"`
	LotTracked   *bool     `json:"lotTracked,omitempty"`
}

type UpdateItemRequest struct {
	Name         *string  `json:"name,omitempty"`
	Unit         *string  `json:"unit,omitempty"`
	MinThreshold *int     `json:"minThreshold,omitempty"`
	MaxThreshold *int     `json:"maxThreshold,omitempty"`
	UnitCost     *float64 `json:"unitCost,omitempty"`
	LotTracked   *bool    `json:"lotTracked,omitempty"`
}

type ApplyMovementRequest struct {
	Kind      MovementKind `json:"kind" binding:"required"`
	Quantity  int          `json:"quantity" binding:"required"`
	Reason    string       `json:"reason" binding:"required,min=1,max=255"`
	Reference *string      `json:"reference,omitempty"`
	LotNumber *string      `json:"lotNumber,omitempty"`
	UnitCost  *float64     `json:"unitCost,omitempty"`
}

type ReserveRequest struct {
	Quantity int       `json:"quantity" binding:"required,gt=0"`
	OrderID  uuid.UUID `json:"orderId" binding:"required"`
}

type ReleaseRequest struct {
	Quantity int       `json:"quantity" binding:"required,gt=0"`
	OrderID  uuid.UUID `json:"orderId" binding:"required"`
}

type ConsumeRequest struct {
	Quantity int        `json:"quantity" binding:"required,gt=0"`
	OrderID  *uuid.UUID `json:"orderId,omitempty"`
}

type ReceiveLotRequest struct {
	LotNumber string     `json:"lotNumber" binding:"required,min=1,max=100"`
	Quantity  int        `json:"quantity" binding:"required,gt=0"`
	UnitCost  float64    `json:"unitCost" binding:"gte=0"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Reference *string    `json:"reference,omitempty"`
}

type ItemResponse struct {
	Success bool           `json:"success"`
	Data    *InventoryItem `json:"data,omitempty"`
	Message *string        `json:"message,omitempty"`
}

type ItemListResponse struct {
	Success    bool            `json:"success"`
	Data       []InventoryItem `json:"data"`
	Pagination *PaginationMeta `json:"pagination,omitempty"`
}

type MovementResponse struct {
	Success bool           `json:"success"`
	Data    *StockMovement `json:"data,omitempty"`
	Message *string        `json:"message,omitempty"`
}

type MovementListResponse struct {
	Success    bool            `json:"success"`
	Data       []StockMovement `json:"data"`
	Pagination *PaginationMeta `json:"pagination,omitempty"`
}

type LotListResponse struct {
	Success bool    `json:"success"`
	Data    []Lot   `json:"data"`
	Message *string `json:"message,omitempty"`
}

type LotDriftResponse struct {
	Success bool       `json:"success"`
	Data    []LotDrift `json:"data"`
}

type ErrorResponse struct {
	Success bool  `json:"success"`
	Error   Error `json:"error"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message *string     `json:"message,omitempty"`
}

// PaginationMeta represents pagination metadata
type PaginationMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}
