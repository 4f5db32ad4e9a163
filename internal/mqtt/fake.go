package mqtt

import (
	"github.com/sweeney/valve-actuator/internal/actuator"
)

// FakePublisher records published messages for test assertions.
// Not safe for concurrent use.
type FakePublisher struct {
	// Topics is used to format discovery payloads.
	Topics Topics

	// Statuses contains every status published, in order.
	Statuses []StatusRecord

	// Discoveries contains every discovery document published.
	Discoveries []Discovery

	// DiscoveryPayloads contains the JSON discovery payloads.
	DiscoveryPayloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// Subscribed holds the actuator names passed to SubscribeCommands.
	Subscribed []string

	// PublishError, if set, will be returned by PublishStatus and PublishDiscovery.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	handler CommandHandler
}

// StatusRecord is one recorded status publication.
type StatusRecord struct {
	Name    string
	Status  actuator.Status
	Payload []byte
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishStatus records the status.
func (f *FakePublisher) PublishStatus(name string, st actuator.Status) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatStatus(st)
	if err != nil {
		return err
	}
	f.Statuses = append(f.Statuses, StatusRecord{Name: name, Status: st, Payload: payload})
	return nil
}

// PublishDiscovery records the discovery document.
func (f *FakePublisher) PublishDiscovery(d Discovery) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatDiscovery(f.Topics, d)
	if err != nil {
		return err
	}
	f.Discoveries = append(f.Discoveries, d)
	f.DiscoveryPayloads = append(f.DiscoveryPayloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// SubscribeCommands records the subscription.
func (f *FakePublisher) SubscribeCommands(names []string, fn CommandHandler) error {
	f.Subscribed = append([]string(nil), names...)
	f.handler = fn
	return nil
}

// Deliver simulates an incoming command for the named actuator.
// It reports whether a subscription covered the name.
func (f *FakePublisher) Deliver(name, payload string) bool {
	if f.handler == nil {
		return false
	}
	for _, n := range f.Subscribed {
		if n == name {
			f.handler(name, payload)
			return true
		}
	}
	return false
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// LastStatus returns the most recent status published for name.
func (f *FakePublisher) LastStatus(name string) (StatusRecord, bool) {
	for i := len(f.Statuses) - 1; i >= 0; i-- {
		if f.Statuses[i].Name == name {
			return f.Statuses[i], true
		}
	}
	return StatusRecord{}, false
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.Statuses = nil
	f.Discoveries = nil
	f.DiscoveryPayloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
