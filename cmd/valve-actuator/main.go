// Command valve-actuator drives CR703/CR303 motorized valves from GPIO and
// exposes them to Home Assistant as MQTT switches.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/valve-actuator/internal/actuator"
	"github.com/sweeney/valve-actuator/internal/config"
	"github.com/sweeney/valve-actuator/internal/gpio"
	"github.com/sweeney/valve-actuator/internal/mqtt"
	"github.com/sweeney/valve-actuator/internal/status"
	"github.com/sweeney/valve-actuator/internal/web"
)

// DefaultConfigPath is where the daemon looks for its YAML file.
const DefaultConfigPath = "/etc/valve-actuator/config.yaml"

func main() {
	configPath := flag.String("config", DefaultConfigPath, "Path to the YAML configuration file")
	broker := flag.String("broker", config.DefaultBroker, "MQTT broker address")
	heartbeat := flag.Duration("heartbeat", config.DefaultHeartbeat, "Heartbeat interval (0 to disable)")
	backend := flag.String("backend", config.DefaultBackend, `GPIO backend ("gpiocdev" or "periph")`)
	printState := flag.Bool("print-state", false, "Print current actuator positions and exit")
	httpAddr := flag.String("http", config.DefaultHTTPAddr, `HTTP status address ("off" to disable)`)
	wsBroker := flag.String("ws-broker", "=broker", `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	// Flags given on the command line win over the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "broker":
			cfg.MQTT.Broker = *broker
		case "heartbeat":
			cfg.Heartbeat = *heartbeat
		case "backend":
			cfg.Backend = *backend
		case "http":
			cfg.HTTP = *httpAddr
		case "ws-broker":
			cfg.MQTT.WSBroker = *wsBroker
		}
	})

	if err := run(cfg, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Config, printState bool) error {
	chip, err := openChip(cfg)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer chip.Close()

	actCfgs := validActuators(cfg)
	if len(actCfgs) == 0 {
		return errors.New("no valid actuator configuration")
	}

	// Print state mode
	if printState {
		for _, ac := range actCfgs {
			fmt.Println(describePosition(chip, ac))
		}
		return nil
	}

	topics := mqtt.Topics{
		Base:            cfg.MQTT.BaseTopic,
		DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
		Node:            cfg.MQTT.Node,
	}
	wsURL := resolveWSBroker(cfg.MQTT.WSBroker, cfg.MQTT.Broker)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Backend:     cfg.Backend,
		DebounceMs:  cfg.DebounceWindow().Milliseconds(),
		MaxSwitchMs: cfg.MaxSwitch.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPPort:    cfg.HTTP,
		WSBroker:    wsURL,
		BaseTopic:   topics.Base,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Initialize MQTT. Connect events are handed to the main loop, which
	// re-announces every actuator.
	connected := make(chan struct{}, 1)
	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:   cfg.MQTT.Broker,
		ClientID: clientID(cfg.MQTT.ClientID),
		Topics:   topics,
		OnConnect: func() {
			tracker.SetMQTTConnected(true)
			select {
			case connected <- struct{}{}:
			default:
			}
		},
		OnConnectionLost: func() {
			tracker.SetMQTTConnected(false)
		},
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Controllers publish through the outbox so a stalled broker never
	// holds up a timeout.
	outbox := actuator.NewOutbox(publisher)
	loops := setupActuators(actCfgs, chip, outbox, tracker)
	if len(loops) == 0 {
		return errors.New("no actuator could be set up")
	}

	names := make([]string, 0, len(loops))
	for _, l := range loops {
		names = append(names, l.Controller().Name())
	}
	if err := publisher.SubscribeCommands(names, routeCommands(loops)); err != nil {
		log.Printf("failed to subscribe to commands: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return outbox.Run(gctx) })
	for _, l := range loops {
		l := l
		g.Go(func() error { return l.Run(gctx) })
	}
	for _, l := range loops {
		l.Boot()
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if cfg.HTTP != "" && cfg.HTTP != "off" {
		srv := web.New(cfg.HTTP, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP)
	}

	log.Printf("started: actuators=%v backend=%s broker=%s heartbeat=%v", names, cfg.Backend, cfg.MQTT.Broker, cfg.Heartbeat)

	var heartbeatC <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		heartbeatC = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	err = runLoop(publisher, publisher, tracker, loops, time.Now, heartbeatC, connected, sigCh)

	// Stopping the loops de-energizes every motor before the chip closes.
	cancel()
	if werr := g.Wait(); werr != nil {
		log.Printf("actuator loop error: %v", werr)
	}
	return err
}

func openChip(cfg *config.Config) (gpio.Chip, error) {
	switch cfg.Backend {
	case config.BackendPeriph:
		return gpio.NewPeriphChip()
	case config.BackendGpiocdev:
		return gpio.NewGpiocdevChip(cfg.Chip)
	}
	return nil, fmt.Errorf("unknown gpio backend %q", cfg.Backend)
}

// validActuators converts the configured actuators, logging and skipping
// the entries that do not validate.
func validActuators(cfg *config.Config) []actuator.Config {
	acs, errs := cfg.ActuatorConfigs()
	var out []actuator.Config
	for i, ac := range acs {
		if errs[i] != nil {
			log.Printf("actuator %d (%s): %v", i, ac.DisplayName(), errs[i])
			continue
		}
		out = append(out, ac)
	}
	return out
}

// setupActuators builds a controller and loop per actuator. An actuator
// whose GPIO setup fails is logged and left out; the others still run.
func setupActuators(acs []actuator.Config, chip gpio.Chip, pub actuator.Publisher, tracker *status.Tracker) []*actuator.Loop {
	var loops []*actuator.Loop
	for _, ac := range acs {
		ctrl, err := actuator.NewController(ac, chip, actuator.ClockScheduler{}, pub)
		if err != nil {
			log.Printf("actuator %s: %v", ac.DisplayName(), err)
			continue
		}
		var observe func(actuator.Snapshot)
		if tracker != nil {
			observe = tracker.Update
		}
		l := actuator.NewLoop(ctrl, actuator.DefaultQueueDepth, observe)
		if err := ctrl.Setup(); err != nil {
			log.Printf("actuator %s: setup: %v", ctrl.Name(), err)
			continue
		}
		snap := ctrl.Snapshot()
		if tracker != nil {
			tracker.Update(snap)
		}
		log.Printf("actuator %s: ready (position=%s feedback=%v)", snap.Name, snap.Current, snap.HasFeedback)
		loops = append(loops, l)
	}
	return loops
}

func describePosition(chip gpio.Chip, ac actuator.Config) string {
	if !ac.HasFeedback() {
		return fmt.Sprintf("%s: no feedback", ac.DisplayName())
	}
	pos, err := actuator.ReadPosition(chip, ac)
	if err != nil {
		return fmt.Sprintf("%s: error: %v", ac.DisplayName(), err)
	}
	return fmt.Sprintf("%s: %s", ac.DisplayName(), pos)
}

// routeCommands dispatches command payloads to the matching loop. It runs
// on the MQTT client's goroutine, so a full queue drops the command rather
// than stalling the client.
func routeCommands(loops []*actuator.Loop) mqtt.CommandHandler {
	byName := make(map[string]*actuator.Loop, len(loops))
	for _, l := range loops {
		byName[l.Controller().Name()] = l
	}
	return func(name, payload string) {
		l, ok := byName[name]
		if !ok {
			return
		}
		if !l.OfferCommand(payload) {
			log.Printf("actuator %s: queue full, dropped command %q", name, payload)
		}
	}
}

// announce publishes a discovery document for every actuator.
func announce(publisher mqtt.Publisher, loops []*actuator.Loop) {
	for _, l := range loops {
		c := l.Controller()
		d := mqtt.Discovery{Name: c.Name(), HasFeedback: c.Config().HasFeedback()}
		if err := publisher.PublishDiscovery(d); err != nil {
			log.Printf("discovery publish error (%s): %v", d.Name, err)
		}
	}
}

func runLoop(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, loops []*actuator.Loop, now func() time.Time, heartbeat <-chan time.Time, connected <-chan struct{}, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-connected:
			// Retained state may have been lost with a broker restart.
			announce(publisher, loops)
			for _, l := range loops {
				l.Republish()
			}

		case t := <-heartbeat:
			for _, l := range loops {
				l.Republish()
			}

			hbEvent := mqtt.SystemEvent{
				Timestamp: t,
				Event:     "HEARTBEAT",
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				snap := tracker.Snapshot()
				log.Printf("heartbeat: uptime=%v actuators=%d", snap.Uptime().Truncate(time.Second), len(snap.Actuators))
				hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

// clientID returns the configured MQTT client ID, or a unique one so two
// daemons on the same broker do not kick each other off.
func clientID(configured string) string {
	if configured != "" {
		return configured
	}
	return "valve-actuator-" + uuid.NewString()[:8]
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// resolveWSBroker converts the --ws-broker flag value into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; empty disables.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.Printf("ws-broker: cannot parse --broker %q: %v", broker, err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
