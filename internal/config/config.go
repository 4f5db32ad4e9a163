// Package config loads the daemon's YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/valve-actuator/internal/actuator"
	"github.com/sweeney/valve-actuator/internal/gpio"
)

// Defaults applied to fields left empty in the file.
const (
	DefaultMaxSwitch       = 20 * time.Second
	DefaultHeartbeat       = 15 * time.Minute
	DefaultBroker          = "tcp://192.168.1.200:1883"
	DefaultHTTPAddr        = ":80"
	DefaultNode            = "valve-actuator"
	DefaultDiscoveryPrefix = "homeassistant"
	DefaultBackend         = BackendGpiocdev
)

// GPIO backends.
const (
	BackendGpiocdev = "gpiocdev"
	BackendPeriph   = "periph"
)

// Config is the top-level configuration file.
type Config struct {
	// GPIO settings
	Backend string `yaml:"backend"` // "gpiocdev" or "periph"
	Chip    string `yaml:"chip"`    // gpiocdev chip name

	// Debounce is the feedback switch debounce window. Omitted means
	// gpio.DefaultDebounce; "0s" turns debouncing off.
	Debounce *time.Duration `yaml:"debounce"`

	// MaxSwitch is the default motor-on limit for every actuator.
	MaxSwitch time.Duration `yaml:"max_switch"`

	MQTT      MQTTConfig    `yaml:"mqtt"`
	HTTP      string        `yaml:"http"`
	Heartbeat time.Duration `yaml:"heartbeat"`

	Actuators []ActuatorConfig `yaml:"actuators"`
}

// MQTTConfig holds broker and topic naming settings.
type MQTTConfig struct {
	Broker          string `yaml:"broker"`
	ClientID        string `yaml:"client_id"`
	Node            string `yaml:"node"`
	BaseTopic       string `yaml:"base_topic"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	WSBroker        string `yaml:"ws_broker"`
}

// ActuatorConfig describes one actuator's wiring.
// Pins are BCM line offsets; omitted pins are unconfigured.
type ActuatorConfig struct {
	Name      string        `yaml:"name"`
	BootOn    *bool         `yaml:"boot_on"`
	MaxSwitch time.Duration `yaml:"max_switch"`
	In        InputConfig   `yaml:"in"`
	Out       OutputConfig  `yaml:"out"`
}

// InputConfig holds the feedback switch inputs.
type InputConfig struct {
	Invert bool `yaml:"invert"`
	Open   *int `yaml:"open"`
	Shut   *int `yaml:"shut"`
}

// OutputConfig holds the direction and power outputs.
type OutputConfig struct {
	Invert bool `yaml:"invert"`
	Open   *int `yaml:"open"`
	Power  *int `yaml:"power"`
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML, rejecting unknown fields, and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.Chip == "" {
		c.Chip = gpio.DefaultChip
	}
	if c.Debounce == nil {
		d := gpio.DefaultDebounce
		c.Debounce = &d
	}
	if c.MaxSwitch == 0 {
		c.MaxSwitch = DefaultMaxSwitch
	}
	if c.Heartbeat == 0 {
		c.Heartbeat = DefaultHeartbeat
	}
	if c.HTTP == "" {
		c.HTTP = DefaultHTTPAddr
	}
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = DefaultBroker
	}
	if c.MQTT.Node == "" {
		c.MQTT.Node = DefaultNode
	}
	if c.MQTT.BaseTopic == "" {
		c.MQTT.BaseTopic = "valve/" + c.MQTT.Node
	}
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = DefaultDiscoveryPrefix
	}
	if c.MQTT.WSBroker == "" {
		c.MQTT.WSBroker = "=broker"
	}
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendGpiocdev, BackendPeriph:
	default:
		return fmt.Errorf("unknown gpio backend %q", c.Backend)
	}
	if c.DebounceWindow() < 0 {
		return fmt.Errorf("negative debounce %v", c.DebounceWindow())
	}
	if len(c.Actuators) == 0 {
		return errors.New("no actuators configured")
	}
	return nil
}

// DebounceWindow returns the effective debounce window.
func (c *Config) DebounceWindow() time.Duration {
	if c.Debounce == nil {
		return gpio.DefaultDebounce
	}
	return *c.Debounce
}

// ActuatorConfigs converts every actuator entry into a validated
// actuator.Config. Entries are checked independently; the returned slice
// and error list are index-aligned with c.Actuators, so callers can skip
// the broken ones.
func (c *Config) ActuatorConfigs() ([]actuator.Config, []error) {
	out := make([]actuator.Config, len(c.Actuators))
	errs := make([]error, len(c.Actuators))
	names := make(map[string]bool)
	for i, a := range c.Actuators {
		cfg := a.toActuator(c.MaxSwitch, c.DebounceWindow())
		err := cfg.Validate()
		if err == nil {
			name := cfg.DisplayName()
			if names[name] {
				err = fmt.Errorf("%w: duplicate name %q", actuator.ErrConfigInvalid, name)
			}
			names[name] = true
		}
		out[i], errs[i] = cfg, err
	}
	return out, errs
}

func (a ActuatorConfig) toActuator(maxSwitch, debounce time.Duration) actuator.Config {
	cfg := actuator.Config{
		Name:            a.Name,
		InputInvert:     a.In.Invert,
		OutputInvert:    a.Out.Invert,
		FeedbackOpenPin: pinOrNone(a.In.Open),
		FeedbackShutPin: pinOrNone(a.In.Shut),
		DriveOpenPin:    pinOrNone(a.Out.Open),
		DrivePowerPin:   pinOrNone(a.Out.Power),
		MaxSwitch:       maxSwitch,
		Debounce:        debounce,
	}
	if a.MaxSwitch != 0 {
		cfg.MaxSwitch = a.MaxSwitch
	}
	if a.BootOn != nil {
		if *a.BootOn {
			cfg.BootOn = actuator.Open
		} else {
			cfg.BootOn = actuator.Shut
		}
	}
	return cfg
}

func pinOrNone(p *int) int {
	if p == nil || *p < 0 {
		return actuator.NoPin
	}
	return *p
}
