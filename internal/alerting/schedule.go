package alerting

import (
	"strings"
	"time"

	"inventory-service/internal/models"
)

// inSchedule reports whether any of the rule's windows contains the given
// time. An empty window list means the rule may fire at any time.
func inSchedule(windows []models.ScheduleWindow, now time.Time) bool {
	if len(windows) == 0 {
		return true
	}
	for _, w := range windows {
		if windowContains(w, now) {
			return true
		}
	}
	return false
}

// windowContains checks one window. Windows whose end time precedes their
// start time span midnight (e.g. 22:00-02:00 for the late shift).
func windowContains(w models.ScheduleWindow, now time.Time) bool {
	if len(w.Days) > 0 {
		dayMatch := false
		weekday := now.Weekday().String()
		for _, d := range w.Days {
			if strings.EqualFold(d, weekday) {
				dayMatch = true
				break
			}
		}
		if !dayMatch {
			return false
		}
	}

	start, ok := parseClock(w.StartTime)
	if !ok {
		return false
	}
	end, ok := parseClock(w.EndTime)
	if !ok {
		return false
	}

	minute := now.Hour()*60 + now.Minute()
	if start <= end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}

// parseClock parses "HH:MM" into minutes since midnight
func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// inCooldown reports whether the rule triggered within its cooldown
// period. A zero cooldown means every sweep may trigger.
func inCooldown(rule *models.AlertRule, now time.Time) bool {
	if rule.CooldownMinutes <= 0 || rule.LastTriggeredAt == nil {
		return false
	}
	cooldown := time.Duration(rule.CooldownMinutes) * time.Minute
	return now.Sub(*rule.LastTriggeredAt) < cooldown
}
