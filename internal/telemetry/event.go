package telemetry

import "time"

type EventType string

const (
	EventAlarmArmed     EventType = "alarm_armed"
	EventAlarmCancelled EventType = "alarm_cancelled"
	EventAlarmFired     EventType = "alarm_fired"
	EventAlarmDegraded  EventType = "alarm_degraded" // exact arm refused, inexact used
	EventAlarmFailed    EventType = "alarm_failed"
	EventBootResync     EventType = "boot_resync"
)

type Event struct {
	ID        int       `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  string    `json:"metadata"`
}

type EventMetadata map[string]interface{}
