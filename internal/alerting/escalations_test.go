package alerting

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorm.io/datatypes"

	"inventory-service/internal/models"
)

func newSchedulerStack(t *testing.T) (*EscalationScheduler, *memoryAlertStore, *memoryItemStore, *recordingDispatcher, *recordingPublisher) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	alerts := newMemoryAlertStore()
	items := newMemoryItemStore()
	dispatcher := newRecordingDispatcher()
	publisher := &recordingPublisher{}

	executor := NewActionExecutor(dispatcher, nil, time.Second, logger)
	scheduler := NewEscalationScheduler(alerts, items, executor, publisher, logger)

	t.Cleanup(scheduler.Stop)
	return scheduler, alerts, items, dispatcher, publisher
}

func storedActiveAlert(t *testing.T, alerts *memoryAlertStore) *models.Alert {
	t.Helper()
	alert := activeAlertFor(uuid.New(), models.AlertTypeLowStock)
	require.NoError(t, alerts.CreateAlert(context.Background(), testTenant, alert))
	return alert
}

func TestEscalationFiresAfterDelay(t *testing.T) {
	scheduler, alerts, _, dispatcher, publisher := newSchedulerStack(t)
	ctx := context.Background()
	alert := storedActiveAlert(t, alerts)

	actions := []models.RuleAction{
		{Type: models.ActionNotification, Channels: []string{"managers"}},
	}
	require.NoError(t, scheduler.Arm(ctx, testTenant, alert, actions, 1, 20*time.Millisecond))

	pending, err := alerts.ListPendingEscalations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	escalationID := pending[0].ID

	require.True(t, waitFor(2*time.Second, func() bool {
		esc := alerts.escalationByID(escalationID)
		return esc != nil && esc.Fired
	}), "escalation fires once the delay elapses")

	require.True(t, waitFor(2*time.Second, func() bool {
		return len(dispatcher.all()) == 1
	}))
	sent := dispatcher.all()
	assert.Equal(t, "managers", sent[0].channel)

	require.True(t, waitFor(2*time.Second, func() bool {
		return len(publisher.escalatedLevels()) == 1
	}))
	assert.Equal(t, []int{1}, publisher.escalatedLevels())
}

func TestAcknowledgeCancelsPendingEscalation(t *testing.T) {
	service, scheduler, alerts, _, publisher := newTestStack(t)
	ctx := context.Background()

	alert := activeAlertFor(uuid.New(), models.AlertTypeLowStock)
	_, err := service.Raise(ctx, testTenant, alert, nil)
	require.NoError(t, err)

	actions := []models.RuleAction{{Type: models.ActionNotification}}
	require.NoError(t, scheduler.Arm(ctx, testTenant, alert, actions, 1, 200*time.Millisecond))

	pending, err := alerts.ListPendingEscalations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	escalationID := pending[0].ID

	_, err = service.Acknowledge(ctx, testTenant, alert.ID, nil)
	require.NoError(t, err)

	// The cancel is synchronous; the row is already cancelled
	esc := alerts.escalationByID(escalationID)
	require.NotNil(t, esc)
	assert.True(t, esc.Cancelled)
	assert.False(t, esc.Fired)

	// Wait past the original fire time and confirm nothing escaped
	time.Sleep(300 * time.Millisecond)
	esc = alerts.escalationByID(escalationID)
	assert.False(t, esc.Fired)
	assert.Empty(t, publisher.escalatedLevels())
}

func TestFireRechecksAlertStatus(t *testing.T) {
	scheduler, alerts, _, dispatcher, publisher := newSchedulerStack(t)
	ctx := context.Background()

	alert := storedActiveAlert(t, alerts)
	require.NoError(t, alerts.UpdateAlertStatus(ctx, testTenant, alert.ID, models.AlertStatusActive, models.AlertStatusAcknowledged, nil))

	// Zero delay takes the past-due path and fires immediately
	actions := []models.RuleAction{{Type: models.ActionNotification}}
	require.NoError(t, scheduler.Arm(ctx, testTenant, alert, actions, 1, 0))

	pending, err := alerts.ListPendingEscalations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	escalationID := pending[0].ID

	require.True(t, waitFor(2*time.Second, func() bool {
		esc := alerts.escalationByID(escalationID)
		return esc != nil && esc.Cancelled
	}), "a fired escalation on a non-active alert is cancelled instead")

	esc := alerts.escalationByID(escalationID)
	assert.False(t, esc.Fired)
	assert.Empty(t, dispatcher.all())
	assert.Empty(t, publisher.escalatedLevels())
}

func TestRestoreOnStartupFiresPastDue(t *testing.T) {
	scheduler, alerts, _, dispatcher, publisher := newSchedulerStack(t)
	ctx := context.Background()
	alert := storedActiveAlert(t, alerts)

	encoded, err := json.Marshal([]models.RuleAction{
		{Type: models.ActionNotification, Channels: []string{"managers"}},
	})
	require.NoError(t, err)

	escalation := &models.Escalation{
		AlertID:      alert.ID,
		Level:        2,
		DelayMinutes: 15,
		FireAt:       time.Now().Add(-5 * time.Minute),
		Actions:      datatypes.JSON(encoded),
	}
	require.NoError(t, alerts.CreateEscalation(ctx, testTenant, escalation))

	require.NoError(t, scheduler.RestoreOnStartup(ctx))

	require.True(t, waitFor(2*time.Second, func() bool {
		esc := alerts.escalationByID(escalation.ID)
		return esc != nil && esc.Fired
	}), "past-due escalations fire on restore")

	require.True(t, waitFor(2*time.Second, func() bool {
		return len(publisher.escalatedLevels()) == 1
	}))
	assert.Equal(t, []int{2}, publisher.escalatedLevels())

	require.True(t, waitFor(2*time.Second, func() bool {
		return len(dispatcher.all()) == 1
	}))
	assert.Equal(t, "managers", dispatcher.all()[0].channel)
}

func TestStopLeavesRowsPending(t *testing.T) {
	scheduler, alerts, _, _, _ := newSchedulerStack(t)
	ctx := context.Background()
	alert := storedActiveAlert(t, alerts)

	actions := []models.RuleAction{{Type: models.ActionNotification}}
	require.NoError(t, scheduler.Arm(ctx, testTenant, alert, actions, 1, time.Hour))

	scheduler.Stop()

	pending, err := alerts.ListPendingEscalations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1, "stop keeps the row for the next startup")
	assert.False(t, pending[0].Fired)
	assert.False(t, pending[0].Cancelled)
}
