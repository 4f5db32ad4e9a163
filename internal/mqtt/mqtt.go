// Package mqtt publishes actuator state to Home Assistant over MQTT and
// receives switch commands, with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/valve-actuator/internal/actuator"
)

// Availability payloads.
const (
	Online  = "online"
	Offline = "offline"
)

// Topics derives every topic used by the daemon.
type Topics struct {
	Base            string // e.g. "valve/boiler-room"
	DiscoveryPrefix string // e.g. "homeassistant"
	Node            string // e.g. "boiler-room"
}

// State is the retained status topic of an actuator.
func (t Topics) State(name string) string { return t.Base + "/" + name + "/state" }

// Command is the topic an actuator takes "ON"/"OFF" from.
func (t Topics) Command(name string) string { return t.Base + "/" + name + "/set" }

// Availability carries Online, or Offline as the last will.
func (t Topics) Availability() string { return t.Base + "/status" }

// System carries lifecycle events.
func (t Topics) System() string { return t.Base + "/system" }

// Discovery is the Home Assistant discovery topic of an actuator.
func (t Topics) Discovery(name string) string {
	return t.DiscoveryPrefix + "/switch/" + t.Node + "/" + name + "/config"
}

// CommandName extracts the actuator name from a command topic.
func (t Topics) CommandName(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Base+"/")
	if !ok {
		return "", false
	}
	name, ok := strings.CutSuffix(rest, "/set")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

// CommandHandler receives a command payload for the named actuator.
type CommandHandler func(name, payload string)

// Publisher publishes actuator state to MQTT.
type Publisher interface {
	// PublishStatus sends an actuator's status object (retained).
	// Returns error if publishing fails (should not crash the process).
	PublishStatus(name string, st actuator.Status) error

	// PublishDiscovery sends a Home Assistant discovery document.
	PublishDiscovery(d Discovery) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// SubscribeCommands delivers command payloads for the named
	// actuators to fn. Subscriptions survive reconnects.
	SubscribeCommands(names []string, fn CommandHandler) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Discovery describes one switch entity for Home Assistant.
type Discovery struct {
	Name        string
	HasFeedback bool
}

type discoveryPayload struct {
	Name                string        `json:"name"`
	UniqueID            string        `json:"uniq_id"`
	Base                string        `json:"~"`
	StateTopic          string        `json:"stat_t"`
	CommandTopic        string        `json:"cmd_t"`
	AvailabilityTopic   string        `json:"avty_t"`
	JSONAttributesTopic string        `json:"json_attr_t"`
	Icon                string        `json:"ic"`
	ValueTemplate       string        `json:"val_tpl"`
	Device              devicePayload `json:"dev"`
}

type devicePayload struct {
	IDs   []string `json:"ids"`
	Name  string   `json:"name"`
	Model string   `json:"mdl"`
}

// FormatDiscovery creates the discovery document for an actuator.
// Topics are relative to "~", the base topic.
func FormatDiscovery(t Topics, d Discovery) ([]byte, error) {
	model := "CR303"
	if d.HasFeedback {
		model = "CR703"
	}
	return json.Marshal(discoveryPayload{
		Name:                d.Name,
		UniqueID:            t.Node + "_" + d.Name,
		Base:                t.Base,
		StateTopic:          "~/" + d.Name + "/state",
		CommandTopic:        "~/" + d.Name + "/set",
		AvailabilityTopic:   "~/status",
		JSONAttributesTopic: "~/" + d.Name + "/state",
		Icon:                "hass:valve",
		ValueTemplate:       "{{value_json.state}}",
		Device: devicePayload{
			IDs:   []string{t.Node},
			Name:  t.Node,
			Model: model,
		},
	})
}

// FormatStatus creates the status payload for an actuator.
func FormatStatus(st actuator.Status) ([]byte, error) {
	return json.Marshal(st)
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events that don't carry a full status snapshot.
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
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
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
