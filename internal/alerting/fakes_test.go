package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"inventory-service/internal/models"
	"inventory-service/internal/repository"
)

const testTenant = "tenant-1"

// memoryAlertStore is an in-memory AlertStore for tests
type memoryAlertStore struct {
	mu          sync.Mutex
	rules       map[uuid.UUID]*models.AlertRule
	alerts      map[uuid.UUID]*models.Alert
	escalations map[uuid.UUID]*models.Escalation
}

func newMemoryAlertStore() *memoryAlertStore {
	return &memoryAlertStore{
		rules:       make(map[uuid.UUID]*models.AlertRule),
		alerts:      make(map[uuid.UUID]*models.Alert),
		escalations: make(map[uuid.UUID]*models.Escalation),
	}
}

func (s *memoryAlertStore) CreateRule(ctx context.Context, tenantID string, rule *models.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule.TenantID = tenantID
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.Severity == "" {
		rule.Severity = models.AlertSeverityWarning
	}
	s.rules[rule.ID] = rule
	return nil
}

func (s *memoryAlertStore) GetRuleByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok || rule.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	copied := *rule
	return &copied, nil
}

func (s *memoryAlertStore) ListRules(ctx context.Context, tenantID string) ([]models.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.AlertRule
	for _, rule := range s.rules {
		if rule.TenantID == tenantID {
			result = append(result, *rule)
		}
	}
	return result, nil
}

func (s *memoryAlertStore) ListActiveRules(ctx context.Context) ([]models.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.AlertRule
	for _, rule := range s.rules {
		if rule.IsActive {
			result = append(result, *rule)
		}
	}
	return result, nil
}

func (s *memoryAlertStore) UpdateRule(ctx context.Context, tenantID string, id uuid.UUID, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok || rule.TenantID != tenantID {
		return repository.ErrNotFound
	}
	if v, ok := updates["name"].(string); ok {
		rule.Name = v
	}
	if v, ok := updates["is_active"].(bool); ok {
		rule.IsActive = v
	}
	if v, ok := updates["cooldown_minutes"].(int); ok {
		rule.CooldownMinutes = v
	}
	return nil
}

func (s *memoryAlertStore) DeleteRule(ctx context.Context, tenantID string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok || rule.TenantID != tenantID {
		return repository.ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

func (s *memoryAlertStore) UpdateRuleLastTriggered(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok || rule.TenantID != tenantID {
		return repository.ErrNotFound
	}
	triggered := at
	rule.LastTriggeredAt = &triggered
	return nil
}

func (s *memoryAlertStore) CreateAlert(ctx context.Context, tenantID string, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert.TenantID = tenantID
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.Status == "" {
		alert.Status = models.AlertStatusActive
	}
	alert.CreatedAt = time.Now()
	s.alerts[alert.ID] = alert
	return nil
}

func (s *memoryAlertStore) GetAlertByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[id]
	if !ok || alert.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	copied := *alert
	return &copied, nil
}

func (s *memoryAlertStore) ListAlerts(ctx context.Context, tenantID string, filter repository.AlertFilter, page, limit int) ([]models.Alert, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Alert
	for _, alert := range s.alerts {
		if alert.TenantID != tenantID {
			continue
		}
		if filter.Status != nil && alert.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && alert.Type != *filter.Type {
			continue
		}
		if filter.Severity != nil && alert.Severity != *filter.Severity {
			continue
		}
		if filter.ItemID != nil && (alert.ItemID == nil || *alert.ItemID != *filter.ItemID) {
			continue
		}
		result = append(result, *alert)
	}
	return result, int64(len(result)), nil
}

func (s *memoryAlertStore) CountActiveDuplicates(ctx context.Context, tenantID string, itemID uuid.UUID, alertType models.AlertType, ruleID *uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, alert := range s.alerts {
		if alert.TenantID != tenantID || alert.ItemID == nil || *alert.ItemID != itemID ||
			alert.Type != alertType || alert.Status != models.AlertStatusActive {
			continue
		}
		if ruleID != nil && (alert.RuleID == nil || *alert.RuleID != *ruleID) {
			continue
		}
		count++
	}
	return count, nil
}

func (s *memoryAlertStore) UpdateAlertStatus(ctx context.Context, tenantID string, id uuid.UUID, from, to models.AlertStatus, actor *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[id]
	if !ok || alert.TenantID != tenantID || alert.Status != from {
		return repository.ErrVersionConflict
	}
	now := time.Now()
	alert.Status = to
	if to == models.AlertStatusAcknowledged {
		alert.AcknowledgedBy = actor
		alert.AcknowledgedAt = &now
	}
	if to == models.AlertStatusResolved {
		alert.ResolvedBy = actor
		alert.ResolvedAt = &now
	}
	return nil
}

func (s *memoryAlertStore) GetAlertSummary(ctx context.Context, tenantID string) (*models.AlertSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := &models.AlertSummary{
		BySeverity: make(map[string]int),
		ByCategory: make(map[string]int),
	}
	for _, alert := range s.alerts {
		if alert.TenantID != tenantID {
			continue
		}
		switch alert.Status {
		case models.AlertStatusActive:
			summary.TotalActive++
			summary.BySeverity[string(alert.Severity)]++
			summary.ByCategory[string(alert.Category)]++
		case models.AlertStatusResolved:
			summary.TotalResolved++
		}
	}
	return summary, nil
}

func (s *memoryAlertStore) CreateEscalation(ctx context.Context, tenantID string, escalation *models.Escalation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	escalation.TenantID = tenantID
	if escalation.ID == uuid.Nil {
		escalation.ID = uuid.New()
	}
	s.escalations[escalation.ID] = escalation
	return nil
}

func (s *memoryAlertStore) ListPendingEscalations(ctx context.Context) ([]models.Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Escalation
	for _, esc := range s.escalations {
		if !esc.Fired && !esc.Cancelled {
			result = append(result, *esc)
		}
	}
	return result, nil
}

func (s *memoryAlertStore) MarkEscalationFired(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	esc, ok := s.escalations[id]
	if !ok || esc.Fired || esc.Cancelled {
		return false, nil
	}
	now := time.Now()
	esc.Fired = true
	esc.FiredAt = &now
	return true, nil
}

func (s *memoryAlertStore) CancelEscalationsForAlert(ctx context.Context, tenantID string, alertID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	now := time.Now()
	for _, esc := range s.escalations {
		if esc.TenantID == tenantID && esc.AlertID == alertID && !esc.Fired && !esc.Cancelled {
			esc.Cancelled = true
			esc.CancelledAt = &now
			count++
		}
	}
	return count, nil
}

func (s *memoryAlertStore) escalationByID(id uuid.UUID) *models.Escalation {
	s.mu.Lock()
	defer s.mu.Unlock()
	esc, ok := s.escalations[id]
	if !ok {
		return nil
	}
	copied := *esc
	return &copied
}

var _ repository.AlertStore = (*memoryAlertStore)(nil)

// memoryItemStore is a minimal in-memory InventoryStore for alerting tests
type memoryItemStore struct {
	mu       sync.Mutex
	items    map[uuid.UUID]*models.InventoryItem
	consumed map[uuid.UUID]int
	lost     map[uuid.UUID]int
	drifts   []models.LotDrift
	listErr  error
}

func newMemoryItemStore() *memoryItemStore {
	return &memoryItemStore{
		items:    make(map[uuid.UUID]*models.InventoryItem),
		consumed: make(map[uuid.UUID]int),
		lost:     make(map[uuid.UUID]int),
	}
}

func (s *memoryItemStore) addItem(item *models.InventoryItem) *models.InventoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.TenantID == "" {
		item.TenantID = testTenant
	}
	item.Recalculate()
	s.items[item.ID] = item
	return item
}

func (s *memoryItemStore) CreateItem(ctx context.Context, tenantID string, item *models.InventoryItem) error {
	item.TenantID = tenantID
	s.addItem(item)
	return nil
}

func (s *memoryItemStore) GetItemByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.InventoryItem, error) {
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

func (s *memoryItemStore) ListItems(ctx context.Context, tenantID string, storeID *uuid.UUID, page, limit int) ([]models.InventoryItem, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, 0, s.listErr
	}
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

func (s *memoryItemStore) UpdateItem(ctx context.Context, tenantID string, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (s *memoryItemStore) DeleteItem(ctx context.Context, tenantID string, id uuid.UUID) error {
	return nil
}

func (s *memoryItemStore) AppendMovement(ctx context.Context, tenantID string, movement *models.StockMovement) error {
	return nil
}

func (s *memoryItemStore) ListMovements(ctx context.Context, tenantID string, itemID uuid.UUID, page, limit int) ([]models.StockMovement, int64, error) {
	return nil, 0, nil
}

func (s *memoryItemStore) SumMovements(ctx context.Context, tenantID string, itemID uuid.UUID) (int, error) {
	return 0, nil
}

func (s *memoryItemStore) SumMovementsSince(ctx context.Context, tenantID string, itemID uuid.UUID, kind models.MovementKind, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case models.MovementOut:
		return -s.consumed[itemID], nil
	case models.MovementLoss:
		return -s.lost[itemID], nil
	}
	return 0, nil
}

func (s *memoryItemStore) UpdateReservedStock(ctx context.Context, tenantID string, itemID uuid.UUID, reserved int) error {
	return nil
}

func (s *memoryItemStore) ReceiveLotTx(ctx context.Context, tenantID string, lot *models.Lot, movement *models.StockMovement) error {
	return nil
}

func (s *memoryItemStore) ListActiveLots(ctx context.Context, tenantID string, itemID uuid.UUID) ([]models.Lot, error) {
	return nil, nil
}

func (s *memoryItemStore) ListLots(ctx context.Context, tenantID string, itemID uuid.UUID) ([]models.Lot, error) {
	return nil, nil
}

func (s *memoryItemStore) ConsumeLotsTx(ctx context.Context, tenantID string, itemID uuid.UUID, plan []repository.LotConsumption, movements []*models.StockMovement) error {
	return nil
}

func (s *memoryItemStore) ExpireLots(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (s *memoryItemStore) ReconcileLots(ctx context.Context, tenantID string) ([]models.LotDrift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LotDrift(nil), s.drifts...), nil
}

var _ repository.InventoryStore = (*memoryItemStore)(nil)

// recordingDispatcher captures dispatched notifications
type recordingDispatcher struct {
	mu     sync.Mutex
	sent   []dispatched
	failOn map[string]error
}

type dispatched struct {
	channel string
	subject string
	body    string
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{failOn: make(map[string]error)}
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, channel, subject, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.failOn[channel]; ok {
		return err
	}
	d.sent = append(d.sent, dispatched{channel: channel, subject: subject, body: body})
	return nil
}

func (d *recordingDispatcher) all() []dispatched {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatched(nil), d.sent...)
}

// recordingPublisher captures published alert events
type recordingPublisher struct {
	mu        sync.Mutex
	raised    []uuid.UUID
	escalated []int
}

func (p *recordingPublisher) PublishAlertRaised(ctx context.Context, alert *models.Alert, item *models.InventoryItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.raised = append(p.raised, alert.ID)
	return nil
}

func (p *recordingPublisher) PublishAlertEscalated(ctx context.Context, alert *models.Alert, level int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.escalated = append(p.escalated, level)
	return nil
}

func (p *recordingPublisher) escalatedLevels() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.escalated...)
}

var _ EventPublisher = (*recordingPublisher)(nil)

// recordingAdjuster captures stock adjustment requests
type recordingAdjuster struct {
	mu       sync.Mutex
	applied  []models.ApplyMovementRequest
	applyErr error
}

func (a *recordingAdjuster) ApplyMovement(ctx context.Context, tenantID string, itemID uuid.UUID, req *models.ApplyMovementRequest, actor string) (*models.StockMovement, *models.InventoryItem, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.applyErr != nil {
		return nil, nil, a.applyErr
	}
	a.applied = append(a.applied, *req)
	movement := &models.StockMovement{ItemID: itemID, Kind: req.Kind, Quantity: req.Quantity, Actor: actor}
	return movement, &models.InventoryItem{ID: itemID, CurrentStock: req.Quantity}, nil
}

func (a *recordingAdjuster) all() []models.ApplyMovementRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.ApplyMovementRequest(nil), a.applied...)
}

var _ StockAdjuster = (*recordingAdjuster)(nil)

// waitFor polls until the condition holds or the deadline passes
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
