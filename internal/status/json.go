package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/valve-actuator/internal/actuator"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Actuators     []ActuatorJSON `json:"actuators"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Network       *NetworkJSON   `json:"network,omitempty"`
	Config        ConfigJSON     `json:"config"`
}

// ActuatorJSON is the JSON representation of one actuator.
// MaxSwitchMs is the effective limit, including any per-actuator override.
type ActuatorJSON struct {
	Name        string          `json:"name"`
	Model       string          `json:"model"`
	Position    string          `json:"position"`
	Target      string          `json:"target"`
	Moving      bool            `json:"moving"`
	MaxSwitchMs int64           `json:"max_switch_ms"`
	State       actuator.Status `json:"state"`
	Counts      CountsJSON      `json:"counts"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of controller counts.
type CountsJSON struct {
	Commands int `json:"commands"`
	Timeouts int `json:"timeouts"`
	Settles  int `json:"settles"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Backend     string `json:"backend"`
	DebounceMs  int64  `json:"debounce_ms"`
	MaxSwitchMs int64  `json:"max_switch_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
	WSBroker    string `json:"ws_broker,omitempty"`
	BaseTopic   string `json:"base_topic"`
}

// Model returns the product name for an actuator snapshot.
func Model(a actuator.Snapshot) string {
	if a.HasFeedback {
		return "CR703"
	}
	return "CR303"
}

func buildActuators(snap Snapshot) []ActuatorJSON {
	out := make([]ActuatorJSON, 0, len(snap.Actuators))
	for _, a := range snap.Actuators {
		out = append(out, ActuatorJSON{
			Name:        a.Name,
			Model:       Model(a),
			Position:    a.Current.String(),
			Target:      a.Target.String(),
			Moving:      a.Moving,
			MaxSwitchMs: a.MaxSwitch.Milliseconds(),
			State:       actuator.Status{Position: a.Current},
			Counts: CountsJSON{
				Commands: a.Counts.Commands,
				Timeouts: a.Counts.Timeouts,
				Settles:  a.Counts.Settles,
			},
		})
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	return StatusInner{
		Actuators:     buildActuators(snap),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Backend:     snap.Config.Backend,
			DebounceMs:  snap.Config.DebounceMs,
			MaxSwitchMs: snap.Config.MaxSwitchMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
			WSBroker:    snap.Config.WSBroker,
			BaseTopic:   snap.Config.BaseTopic,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
