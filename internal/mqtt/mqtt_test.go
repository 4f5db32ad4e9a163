package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/valve-actuator/internal/actuator"
)

var testTopics = Topics{
	Base:            "valve/boiler-room",
	DiscoveryPrefix: "homeassistant",
	Node:            "boiler-room",
}

func TestTopics(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"state", testTopics.State("cr703"), "valve/boiler-room/cr703/state"},
		{"command", testTopics.Command("cr703"), "valve/boiler-room/cr703/set"},
		{"availability", testTopics.Availability(), "valve/boiler-room/status"},
		{"system", testTopics.System(), "valve/boiler-room/system"},
		{"discovery", testTopics.Discovery("cr703"), "homeassistant/switch/boiler-room/cr703/config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %s, want %s", tt.got, tt.want)
			}
		})
	}
}

func TestCommandName(t *testing.T) {
	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"valve/boiler-room/cr703/set", "cr703", true},
		{"valve/boiler-room/hot-water/set", "hot-water", true},
		{"valve/boiler-room/cr703/state", "", false},
		{"valve/boiler-room//set", "", false},
		{"valve/boiler-room/a/b/set", "", false},
		{"valve/other/cr703/set", "", false},
		{"valve/boiler-room/set", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := testTopics.CommandName(tt.topic)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("CommandName(%q) = %q, %v; want %q, %v", tt.topic, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestCommandNameRoundTrip(t *testing.T) {
	name, ok := testTopics.CommandName(testTopics.Command("valve-2"))
	if !ok || name != "valve-2" {
		t.Errorf("got %q, %v", name, ok)
	}
}

func TestFormatDiscoveryExactJSON(t *testing.T) {
	payload, err := FormatDiscovery(testTopics, Discovery{Name: "cr703", HasFeedback: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"name":"cr703","uniq_id":"boiler-room_cr703","~":"valve/boiler-room",` +
		`"stat_t":"~/cr703/state","cmd_t":"~/cr703/set","avty_t":"~/status",` +
		`"json_attr_t":"~/cr703/state","ic":"hass:valve","val_tpl":"{{value_json.state}}",` +
		`"dev":{"ids":["boiler-room"],"name":"boiler-room","mdl":"CR703"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatDiscoveryModel(t *testing.T) {
	tests := []struct {
		hasFeedback bool
		want        string
	}{
		{true, "CR703"},
		{false, "CR303"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			payload, err := FormatDiscovery(testTopics, Discovery{Name: "v", HasFeedback: tt.hasFeedback})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var parsed discoveryPayload
			if err := json.Unmarshal(payload, &parsed); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if parsed.Device.Model != tt.want {
				t.Errorf("model: got %s, want %s", parsed.Device.Model, tt.want)
			}
		})
	}
}

func TestFormatStatus(t *testing.T) {
	tests := []struct {
		pos  actuator.Position
		want string
	}{
		{actuator.Open, `{"state":"ON"}`},
		{actuator.Shut, `{"state":"OFF"}`},
		{actuator.Transient, `{"open":false,"shut":false,"state":null}`},
		{actuator.Invalid, `{"open":true,"shut":true,"state":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.pos.String(), func(t *testing.T) {
			payload, err := FormatStatus(actuator.Status{Position: tt.pos})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(payload) != tt.want {
				t.Errorf("got %s, want %s", payload, tt.want)
			}
		})
	}
}

func TestFormatSystemPayload(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.System.Timestamp != "2026-02-03T10:30:45Z" {
		t.Errorf("unexpected timestamp: %s", parsed.System.Timestamp)
	}
	if parsed.System.Event != "SHUTDOWN" {
		t.Errorf("unexpected event: %s", parsed.System.Event)
	}
	if parsed.System.Reason != "SIGTERM" {
		t.Errorf("unexpected reason: %s", parsed.System.Reason)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadStartupOmitsReason(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "STARTUP",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"STARTUP"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("EST", -5*60*60)
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 5, 30, 45, 0, loc),
		Event:     "HEARTBEAT",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Timestamp != "2026-02-03T10:30:45Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.System.Timestamp)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"HEARTBEAT"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload, got %s", payload)
	}
}

func TestFakePublisher(t *testing.T) {
	pub := NewFakePublisher()

	if err := pub.PublishStatus("cr703", actuator.Status{Position: actuator.Open}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := pub.PublishStatus("cr303", actuator.Status{Position: actuator.Transient}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.Statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(pub.Statuses))
	}
	if string(pub.Statuses[0].Payload) != `{"state":"ON"}` {
		t.Errorf("unexpected payload: %s", pub.Statuses[0].Payload)
	}

	last, ok := pub.LastStatus("cr303")
	if !ok {
		t.Fatal("expected a status for cr303")
	}
	if last.Status.Position != actuator.Transient {
		t.Errorf("unexpected position: %v", last.Status.Position)
	}
	if _, ok := pub.LastStatus("missing"); ok {
		t.Error("expected no status for unknown actuator")
	}
}

func TestFakePublisherError(t *testing.T) {
	pub := NewFakePublisher()
	pub.PublishError = errors.New("connection lost")

	err := pub.PublishStatus("cr703", actuator.Status{Position: actuator.Open})
	if err == nil {
		t.Error("expected error")
	}
	if err := pub.PublishDiscovery(Discovery{Name: "cr703"}); err == nil {
		t.Error("expected discovery error")
	}
	if len(pub.Statuses) != 0 || len(pub.Discoveries) != 0 {
		t.Error("nothing should be recorded on error")
	}
}

func TestFakePublisherDiscovery(t *testing.T) {
	pub := NewFakePublisher()
	pub.Topics = testTopics

	if err := pub.PublishDiscovery(Discovery{Name: "cr303"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.DiscoveryPayloads) != 1 {
		t.Fatalf("expected 1 discovery payload, got %d", len(pub.DiscoveryPayloads))
	}

	var parsed discoveryPayload
	if err := json.Unmarshal(pub.DiscoveryPayloads[0], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.UniqueID != "boiler-room_cr303" {
		t.Errorf("unexpected unique id: %s", parsed.UniqueID)
	}
}

func TestFakePublisherPublishSystem(t *testing.T) {
	pub := NewFakePublisher()

	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGINT",
	}
	if err := pub.PublishSystem(event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	if pub.SystemEvents[0].Reason != "SIGINT" {
		t.Errorf("unexpected reason: %s", pub.SystemEvents[0].Reason)
	}

	expected := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"SHUTDOWN","reason":"SIGINT"}}`
	if string(pub.SystemPayloads[0]) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", pub.SystemPayloads[0], expected)
	}
}

func TestFakePublisherPublishSystemError(t *testing.T) {
	pub := NewFakePublisher()
	pub.PublishSystemError = errors.New("connection lost")

	if err := pub.PublishSystem(SystemEvent{Event: "STARTUP"}); err == nil {
		t.Error("expected error")
	}
	if len(pub.SystemEvents) != 0 {
		t.Error("event should not be recorded on error")
	}
}

func TestFakePublisherDeliver(t *testing.T) {
	pub := NewFakePublisher()

	if pub.Deliver("cr703", "ON") {
		t.Error("deliver should fail without a subscription")
	}

	var got []string
	err := pub.SubscribeCommands([]string{"cr703"}, func(name, payload string) {
		got = append(got, name+"="+payload)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !pub.Deliver("cr703", "off") {
		t.Error("expected delivery to subscribed actuator")
	}
	if pub.Deliver("cr303", "ON") {
		t.Error("expected no delivery to unsubscribed actuator")
	}
	if len(got) != 1 || got[0] != "cr703=off" {
		t.Errorf("unexpected deliveries: %v", got)
	}
}

func TestFakePublisherCloseAndReset(t *testing.T) {
	pub := NewFakePublisher()
	pub.Connected = true

	_ = pub.PublishStatus("cr703", actuator.Status{Position: actuator.Shut})
	_ = pub.PublishSystem(SystemEvent{Event: "STARTUP"})
	if err := pub.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pub.Closed {
		t.Error("expected Closed to be true")
	}

	pub.Reset()

	if len(pub.Statuses) != 0 || len(pub.SystemEvents) != 0 {
		t.Error("expected records cleared after reset")
	}
	if pub.Closed || pub.IsConnected() {
		t.Error("expected flags cleared after reset")
	}
}
