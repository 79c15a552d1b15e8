package telemetry

import (
	"encoding/json"
	"time"
)

type Stats struct {
	Period      string            `json:"period"`
	EventCounts map[EventType]int `json:"event_counts"`
	Armed       int               `json:"armed"`
	Fired       int               `json:"fired"`
	Degraded    int               `json:"degraded"`
	Failed      int               `json:"failed"`
	FiredByTask map[string]int    `json:"fired_by_task"`

	// DegradedRate is the share of arms that fell back to inexact timing.
	DegradedRate float64 `json:"degraded_rate"`
}

// CalculateStats summarizes scheduler events.
func CalculateStats(events []Event, since time.Time) (Stats, error) {
	stats := Stats{
		Period:      since.Format("2006-01-02"),
		EventCounts: make(map[EventType]int),
		FiredByTask: make(map[string]int),
	}

	for _, event := range events {
		stats.EventCounts[event.Type]++

		switch event.Type {
		case EventAlarmArmed:
			stats.Armed++
		case EventAlarmDegraded:
			stats.Degraded++
		case EventAlarmFailed:
			stats.Failed++
		case EventAlarmFired:
			stats.Fired++
			var metadata EventMetadata
			if err := json.Unmarshal([]byte(event.Metadata), &metadata); err != nil {
				continue
			}
			if taskID, ok := metadata["task_id"].(string); ok {
				stats.FiredByTask[taskID]++
			}
		}
	}

	if stats.Armed > 0 {
		stats.DegradedRate = float64(stats.Degraded) / float64(stats.Armed)
	}
	return stats, nil
}
