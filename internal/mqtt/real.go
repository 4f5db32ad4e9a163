package mqtt

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/valve-actuator/internal/actuator"
)

// DefaultBufferSize is the number of messages kept while disconnected.
const DefaultBufferSize = 64

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	Topics     Topics
	BufferSize int

	// OnConnect is called after every (re)connection, once the
	// availability message, subscriptions and buffered messages are out.
	OnConnect func()

	// OnConnectionLost is called when the broker connection drops.
	OnConnectionLost func()
}

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client    paho.Client
	topics    Topics
	onConnect func()
	onLost    func()

	mu      sync.Mutex
	buf     *ringBuffer
	names   []string
	handler CommandHandler
}

// NewRealPublisher creates a publisher for the given broker. If the broker
// is not reachable within the connect timeout the client keeps retrying in
// the background and messages are buffered until it connects.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	p := &RealPublisher{
		topics:    o.Topics,
		onConnect: o.OnConnect,
		onLost:    o.OnConnectionLost,
		buf:       newRingBuffer(o.BufferSize),
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(60 * time.Second).
		SetWill(o.Topics.Availability(), Offline, 1, true).
		SetOnConnectHandler(p.handleConnect).
		SetConnectionLostHandler(p.handleConnectionLost)

	paho.ERROR = log.New(os.Stdout, "[MQTT ERROR] ", 0)
	paho.CRITICAL = log.New(os.Stdout, "[MQTT CRIT] ", 0)
	paho.WARN = log.New(os.Stdout, "[MQTT WARN] ", 0)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: %s not reachable yet, retrying in background", o.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) handleConnect(c paho.Client) {
	log.Printf("mqtt: connected")

	if err := p.send(p.topics.Availability(), 1, true, []byte(Online)); err != nil {
		log.Printf("mqtt: publish availability: %v", err)
	}

	p.mu.Lock()
	names, handler := p.names, p.handler
	pending := p.buf.drainAll()
	p.mu.Unlock()

	if handler != nil {
		if err := p.subscribe(names, handler); err != nil {
			log.Printf("mqtt: resubscribe: %v", err)
		}
	}
	if len(pending) > 0 {
		log.Printf("mqtt: flushing %d buffered messages", len(pending))
	}
	for _, m := range pending {
		if err := p.send(m.topic, m.qos, m.retained, m.payload); err != nil {
			log.Printf("mqtt: flush %s: %v", m.topic, err)
		}
	}

	if p.onConnect != nil {
		p.onConnect()
	}
}

func (p *RealPublisher) handleConnectionLost(c paho.Client, err error) {
	log.Printf("mqtt: connection lost: %v", err)
	if p.onLost != nil {
		p.onLost()
	}
}

// publish sends a message, or buffers it while disconnected.
func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		p.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.send(topic, qos, retained, payload)
}

func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishStatus sends an actuator's status, retained, at QoS 1.
func (p *RealPublisher) PublishStatus(name string, st actuator.Status) error {
	payload, err := FormatStatus(st)
	if err != nil {
		return fmt.Errorf("format status: %w", err)
	}
	return p.publish(p.topics.State(name), 1, true, payload)
}

// PublishDiscovery sends a retained discovery document.
func (p *RealPublisher) PublishDiscovery(d Discovery) error {
	payload, err := FormatDiscovery(p.topics, d)
	if err != nil {
		return fmt.Errorf("format discovery: %w", err)
	}
	return p.publish(p.topics.Discovery(d.Name), 1, true, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return p.publish(p.topics.System(), 1, event.Retained, payload)
}

// SubscribeCommands subscribes to the command topic of each actuator.
// The subscription is renewed on every reconnect.
func (p *RealPublisher) SubscribeCommands(names []string, fn CommandHandler) error {
	p.mu.Lock()
	p.names = append([]string(nil), names...)
	p.handler = fn
	p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		return nil
	}
	return p.subscribe(names, fn)
}

func (p *RealPublisher) subscribe(names []string, fn CommandHandler) error {
	filters := make(map[string]byte, len(names))
	for _, n := range names {
		filters[p.topics.Command(n)] = 1
	}
	token := p.client.SubscribeMultiple(filters, func(_ paho.Client, msg paho.Message) {
		name, ok := p.topics.CommandName(msg.Topic())
		if !ok {
			return
		}
		fn(name, string(msg.Payload()))
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe: timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close marks the node offline and disconnects from the broker.
func (p *RealPublisher) Close() error {
	if p.client.IsConnectionOpen() {
		if err := p.send(p.topics.Availability(), 1, true, []byte(Offline)); err != nil {
			log.Printf("mqtt: publish availability: %v", err)
		}
	}
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
