// Package mqtt publishes kiln run state and lifecycle events, with
// an in-memory fake for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/kiln-controller/internal/oven"
)

// Topic suffixes under the configured prefix.
const (
	StateTopic  = "state"
	EventsTopic = "events"
)

// Topics holds the full topic names for one prefix.
type Topics struct {
	State  string
	Events string
}

// NewTopics builds the topics under prefix.
func NewTopics(prefix string) Topics {
	return Topics{State: prefix + "/" + StateTopic, Events: prefix + "/" + EventsTopic}
}

// Publisher publishes kiln messages.
type Publisher interface {
	// PublishEvent sends a run start or end.
	// Returns error if publishing fails (should not crash the process).
	PublishEvent(event oven.Event) error

	// PublishState sends a retained run-state snapshot.
	PublishState(payload []byte) error

	// PublishSystem sends a daemon lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a daemon lifecycle event (STARTUP, SHUTDOWN, HEARTBEAT).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // e.g. "SIGTERM" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// EventPayload is the JSON body of a run event.
type EventPayload struct {
	Kiln EventInner `json:"kiln"`
}

// EventInner contains the run event details.
type EventInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Profile   string `json:"profile"`
	RunID     string `json:"run_id"`
	Reason    string `json:"reason,omitempty"`
}

// FormatEventPayload creates the JSON payload for a run event.
func FormatEventPayload(event oven.Event) ([]byte, error) {
	return json.Marshal(EventPayload{
		Kiln: EventInner{
			Timestamp: event.Time.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Profile:   event.Profile,
			RunID:     event.RunID,
			Reason:    event.Reason,
		},
	})
}

// SystemPayload is the body of simple system events (the will, RECONNECTED)
// that carry no status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// NopPublisher drops everything. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishEvent(oven.Event) error   { return nil }
func (NopPublisher) PublishState([]byte) error       { return nil }
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }
func (NopPublisher) Close() error                    { return nil }
func (NopPublisher) IsConnected() bool               { return false }
