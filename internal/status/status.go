// Package status provides a thread-safe status tracker for the valve-actuator daemon.
// It is read by the HTTP handlers and the heartbeat publisher.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/valve-actuator/internal/actuator"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Backend     string
	DebounceMs  int64
	MaxSwitchMs int64
	HeartbeatMs int64
	Broker      string
	HTTPPort    string
	WSBroker    string // Websocket broker URL for browser MQTT (empty = disabled)
	BaseTopic   string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; the Actuators slice is a private copy.
type Snapshot struct {
	Actuators     []actuator.Snapshot
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Actuator returns the snapshot of the named actuator.
func (s Snapshot) Actuator(name string) (actuator.Snapshot, bool) {
	for _, a := range s.Actuators {
		if a.Name == name {
			return a, true
		}
	}
	return actuator.Snapshot{}, false
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update records the latest snapshot of an actuator. Actuators keep the
// order in which they were first seen.
// Called from each actuator loop after every event.
func (t *Tracker) Update(a actuator.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.snap.Actuators {
		if t.snap.Actuators[i].Name == a.Name {
			t.snap.Actuators[i] = a
			return
		}
	}
	t.snap.Actuators = append(t.snap.Actuators, a)
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Actuators = append([]actuator.Snapshot(nil), t.snap.Actuators...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
