package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AlertType represents the type of an alert; threshold-triggered alerts use
// the fixed types below, rule-driven alerts carry RULE_TRIGGERED
type AlertType string

const (
	AlertTypeOutOfStock     AlertType = "OUT_OF_STOCK"
	AlertTypeLowStock       AlertType = "LOW_STOCK"
	AlertTypeOverstock      AlertType = "OVERSTOCK"
	AlertTypeExpiryWarning  AlertType = "EXPIRY_WARNING"
	AlertTypeExpiryCritical AlertType = "EXPIRY_CRITICAL"
	AlertTypeRuleTriggered  AlertType = "RULE_TRIGGERED"
)

// AlertCategory groups rules and alerts by operational concern
type AlertCategory string

const (
	AlertCategoryStock    AlertCategory = "STOCK"
	AlertCategoryExpiry   AlertCategory = "EXPIRY"
	AlertCategorySupplier AlertCategory = "SUPPLIER"
	AlertCategoryCost     AlertCategory = "COST"
	AlertCategoryQuality  AlertCategory = "QUALITY"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "INFO"
	AlertSeverityWarning  AlertSeverity = "WARNING"
	AlertSeverityCritical AlertSeverity = "CRITICAL"
)

// AlertStatus represents the lifecycle status of an alert.
// RESOLVED is terminal.
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "ACTIVE"
	AlertStatusAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertStatusResolved     AlertStatus = "RESOLVED"
)

// ActionType represents what a rule does when it fires
type ActionType string

const (
	ActionNotification    ActionType = "NOTIFICATION"
	ActionWebhook         ActionType = "WEBHOOK"
	ActionAutoOrder       ActionType = "AUTO_ORDER"
	ActionStockAdjustment ActionType = "STOCK_ADJUSTMENT"
)

// Condition operators
const (
	OpGreaterThan    = ">"
	OpGreaterOrEqual = ">="
	OpLessThan       = "<"
	OpLessOrEqual    = "<="
	OpEqual          = "="
	OpContains       = "contains"
)

// RuleCondition is one condition of a rule; all of a rule's conditions must
// hold for the rule to fire (logical AND)
type RuleCondition struct {
	Metric      string  `json:"metric"`
	Operator    string  `json:"operator"`
	Value       float64 `json:"value,omitempty"`
	StringValue string  `json:"stringValue,omitempty"`

	// Optional scope filters; nil means all items/stores
	ItemID  *uuid.UUID `json:"itemId,omitempty"`
	StoreID *uuid.UUID `json:"storeId,omitempty"`
}

// RuleAction is one configured action of a rule. EscalateAfterMinutes > 0
// arms a delayed escalation that re-runs the action set at the next level
// unless the alert leaves ACTIVE first.
type RuleAction struct {
	Type                 ActionType        `json:"type"`
	Channels             []string          `json:"channels,omitempty"`
	WebhookURL           string            `json:"webhookUrl,omitempty"`
	Template             string            `json:"template,omitempty"`
	EscalateAfterMinutes int               `json:"escalateAfterMinutes,omitempty"`
	Params               map[string]string `json:"params,omitempty"`
}

// ScheduleWindow is one day/time window during which a rule may fire.
// Times are "HH:MM" in the engine's local time; an empty Days list means
// every day.
type ScheduleWindow struct {
	Days      []string `json:"days,omitempty"` // "Monday", "Tuesday", ...
	StartTime string   `json:"startTime"`
	EndTime   string   `json:"endTime"`
}

// AlertRule is an operator-configured rule evaluated on a fixed polling
// cycle. Conditions, Actions and Schedule are stored as JSONB.
type AlertRule struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID string    `json:"tenantId" gorm:"type:varchar(255);not null;index"`

	Name     string        `json:"name" gorm:"type:varchar(255);not null"`
	Category AlertCategory `json:"category" gorm:"type:varchar(20);not null"`
	Severity AlertSeverity `json:"severity" gorm:"type:varchar(20);not null;default:'WARNING'"`

	Conditions datatypes.JSON `json:"conditions" gorm:"type:jsonb;not null"`
	Actions    datatypes.JSON `json:"actions" gorm:"type:jsonb"`
	Schedule   datatypes.JSON `json:"schedule,omitempty" gorm:"type:jsonb"`

	CooldownMinutes int  `json:"cooldownMinutes" gorm:"not null;default:0"`
	IsActive        bool `json:"isActive" gorm:"default:true;index"`

	LastTriggeredAt *time.Time `json:"lastTriggeredAt,omitempty"`

	CreatedBy *string   `json:"createdBy,omitempty" gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Alert is one trigger occurrence. RuleID is nil for threshold-triggered
// alerts. While an alert for the same (item, type) is ACTIVE no duplicate
// is created.
type Alert struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID string    `json:"tenantId" gorm:"type:varchar(255);not null;index"`

	RuleID  *uuid.UUID `json:"ruleId,omitempty" gorm:"type:uuid;index"`
	ItemID  *uuid.UUID `json:"itemId,omitempty" gorm:"type:uuid;index"`
	StoreID *uuid.UUID `json:"storeId,omitempty" gorm:"type:uuid;index"`

	Type     AlertType     `json:"type" gorm:"type:varchar(50);not null;index"`
	Category AlertCategory `json:"category" gorm:"type:varchar(20);not null"`
	Severity AlertSeverity `json:"severity" gorm:"type:varchar(20);not null"`
	Status   AlertStatus   `json:"status" gorm:"type:varchar(20);not null;default:'ACTIVE';index"`

	Title   string `json:"title" gorm:"type:varchar(255);not null"`
	Message string `json:"message" gorm:"type:text;not null"`

	CurrentQty   int `json:"currentQty" gorm:"default:0"`
	ThresholdQty int `json:"thresholdQty" gorm:"default:0"`

	// Denormalized for display
	ItemName *string `json:"itemName,omitempty" gorm:"type:varchar(255)"`
	ItemSKU  *string `json:"itemSku,omitempty" gorm:"type:varchar(100)"`

	AcknowledgedBy *string    `json:"acknowledgedBy,omitempty" gorm:"type:varchar(255)"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
	ResolvedBy     *string    `json:"resolvedBy,omitempty" gorm:"type:varchar(255)"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null"`
}

// Escalation is a delayed follow-up for an ACTIVE alert. FireAt is
// persisted so pending escalations survive a restart and are re-armed on
// startup; past-due rows fire immediately.
type Escalation struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID string    `json:"tenantId" gorm:"type:varchar(255);not null;index"`
	AlertID  uuid.UUID `json:"alertId" gorm:"type:uuid;not null;index"`

	Level        int            `json:"level" gorm:"not null;default:1"`
	DelayMinutes int            `json:"delayMinutes" gorm:"not null"`
	FireAt       time.Time      `json:"fireAt" gorm:"not null;index"`
	Actions      datatypes.JSON `json:"actions" gorm:"type:jsonb"`

	Fired       bool       `json:"fired" gorm:"default:false;index"`
	FiredAt     *time.Time `json:"firedAt,omitempty"`
	Cancelled   bool       `json:"cancelled" gorm:"default:false;index"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName implementations
func (AlertRule) TableName() string {
	return "alert_rules"
}

func (Alert) TableName() string {
	return "alerts"
}

func (Escalation) TableName() string {
	return "escalations"
}

// Request/Response models

type CreateAlertRuleRequest struct {
	Name            string           `json:"name" binding:"required,min=1,max=255"`
	Category        AlertCategory    `json:"category" binding:"required"`
	Severity        *AlertSeverity   `json:"severity,omitempty"`
	Conditions      []RuleCondition  `json:"conditions" binding:"required,min=1"`
	Actions         []RuleAction     `json:"actions,omitempty"`
	Schedule        []ScheduleWindow `json:"schedule,omitempty"`
	CooldownMinutes *int             `json:"cooldownMinutes,omitempty"`
	IsActive        *bool            `json:"isActive,omitempty"`
}

type UpdateAlertRuleRequest struct {
	Name            *string           `json:"name,omitempty"`
	Severity        *AlertSeverity    `json:"severity,omitempty"`
	Conditions      *[]RuleCondition  `json:"conditions,omitempty"`
	Actions         *[]RuleAction     `json:"actions,omitempty"`
	Schedule        *[]ScheduleWindow `json:"schedule,omitempty"`
	CooldownMinutes *int              `json:"cooldownMinutes,omitempty"`
	IsActive        *bool             `json:"isActive,omitempty"`
}

type UpdateAlertStatusRequest struct {
	Status AlertStatus `json:"status" binding:"required"`
	Actor  *string     `json:"actor,omitempty"`
}

type AlertRuleResponse struct {
	Success bool       `json:"success"`
	Data    *AlertRule `json:"data,omitempty"`
	Message *string    `json:"message,omitempty"`
}

type AlertRuleListResponse struct {
	Success bool        `json:"success"`
	Data    []AlertRule `json:"data"`
}

type AlertResponse struct {
	Success bool    `json:"success"`
	Data    *Alert  `json:"data,omitempty"`
	Message *string `json:"message,omitempty"`
}

type AlertListResponse struct {
	Success    bool            `json:"success"`
	Data       []Alert         `json:"data"`
	Pagination *PaginationMeta `json:"pagination,omitempty"`
}

type EscalationListResponse struct {
	Success bool         `json:"success"`
	Data    []Escalation `json:"data"`
}

// AlertSummary represents counts of alerts by status, severity and category
type AlertSummary struct {
	TotalActive   int            `json:"totalActive"`
	TotalResolved int            `json:"totalResolved"`
	BySeverity    map[string]int `json:"bySeverity"`
	ByCategory    map[string]int `json:"byCategory"`
}

type AlertSummaryResponse struct {
	Success bool          `json:"success"`
	Data    *AlertSummary `json:"data,omitempty"`
}
