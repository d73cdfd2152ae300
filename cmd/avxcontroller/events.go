package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nerrad567/avx-core/internal/audit"
	"github.com/nerrad567/avx-core/internal/controller"
	"github.com/nerrad567/avx-core/internal/device"
	"github.com/nerrad567/avx-core/internal/infrastructure/logging"
	"github.com/nerrad567/avx-core/internal/infrastructure/mqtt"
)

// controllerEvent is published to avx/controller/event/<action>.
type controllerEvent struct {
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// eventAuditor writes each audit entry to the audit trail and republishes
// it as an MQTT controller event. Either side may be absent.
type eventAuditor struct {
	rec    *audit.Recorder
	pub    device.Publisher
	topics mqtt.Topics
	log    *logging.Logger
}

// newEventAuditor returns nil when there is nowhere to send entries, so the
// controller falls back to its no-op auditor.
func newEventAuditor(rec *audit.Recorder, pub device.Publisher, log *logging.Logger) controller.Auditor {
	if rec == nil && pub == nil {
		return nil
	}
	return &eventAuditor{rec: rec, pub: pub, log: log}
}

// Record implements controller.Auditor.
func (a *eventAuditor) Record(ctx context.Context, action, entityType, entityID string, details map[string]any) {
	if a.rec != nil {
		a.rec.Record(ctx, action, entityType, entityID, details)
	}
	if a.pub == nil {
		return
	}

	payload, err := json.Marshal(controllerEvent{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		a.log.Warn("failed to encode controller event", "action", action, "error", err)
		return
	}

	topic := a.topics.ControllerEvent(action)
	if err := a.pub.Publish(topic, payload, 0, false); err != nil {
		a.log.Warn("failed to publish controller event", "topic", topic, "error", err)
	}
}
