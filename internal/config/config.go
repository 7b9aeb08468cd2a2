// Package config loads the lighthouselink YAML file. Command-line flags
// take the file's values as defaults, so any flag given explicitly wins.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	lighthouse "github.com/hanpama/lighthouselink/internal/lighthouse"
)

// File mirrors the subscribe flags.
type File struct {
	Endpoint    string            `yaml:"endpoint"`
	Headers     map[string]string `yaml:"headers"`
	Timeout     time.Duration     `yaml:"timeout"`
	Broadcaster string            `yaml:"broadcaster"`

	Pusher Pusher `yaml:"pusher"`
	NATS   NATS   `yaml:"nats"`
	MQTT   MQTT   `yaml:"mqtt"`
	Link   Link   `yaml:"link"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Otel struct {
		Endpoint string `yaml:"endpoint"`
		Service  string `yaml:"service"`
	} `yaml:"otel"`
}

type Pusher struct {
	URL          string `yaml:"url"`
	AuthEndpoint string `yaml:"auth_endpoint"`
	Key          string `yaml:"key"`
	Secret       string `yaml:"secret"`
	Namespace    string `yaml:"namespace"`
}

type NATS struct {
	URL string `yaml:"url"`
}

type MQTT struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
}

// Link configures the subscription link. Legacy selects the older event
// name and unwrap depth before the other fields are applied.
type Link struct {
	Legacy        bool   `yaml:"legacy"`
	Namespace     string `yaml:"namespace"`
	Event         string `yaml:"event"`
	UnwrapDepth   *int   `yaml:"unwrap_depth"`
	StripPrefix   string `yaml:"strip_prefix"`
	JoinMode      string `yaml:"join_mode"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// Default returns the values used when no file is given.
func Default() *File {
	f := &File{
		Timeout:     30 * time.Second,
		Broadcaster: "pusher",
	}
	f.Pusher.Namespace = "App.Events"
	f.NATS.URL = "nats://127.0.0.1:4222"
	f.MQTT.Broker = "tcp://127.0.0.1:1883"
	f.MQTT.ClientID = "lighthouselink"
	f.MQTT.QoS = 1
	f.Otel.Service = "lighthouselink"
	return f
}

// Load reads path over Default. Unknown keys are rejected.
func Load(path string) (*File, error) {
	f := Default()
	if path == "" {
		return f, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return f, f.Validate()
}

// Validate checks fields that flags cannot fix later.
func (f *File) Validate() error {
	switch f.Broadcaster {
	case "pusher", "nats", "mqtt":
	default:
		return fmt.Errorf("unknown broadcaster %q", f.Broadcaster)
	}
	if f.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos %d", f.MQTT.QoS)
	}
	if _, err := lighthouse.ParseJoinMode(f.Link.JoinMode); err != nil {
		return err
	}
	return nil
}

// LinkConfig builds the subscription link configuration.
func (l Link) LinkConfig() (lighthouse.Config, error) {
	cfg := lighthouse.DefaultConfig()
	if l.Legacy {
		cfg = lighthouse.LegacyConfig()
	}
	if l.Namespace != "" {
		cfg.Namespace = l.Namespace
	}
	if l.Event != "" {
		cfg.EventName = l.Event
	}
	if l.UnwrapDepth != nil {
		cfg.UnwrapDepth = *l.UnwrapDepth
	}
	if l.StripPrefix != "" {
		cfg.StripPrefix = l.StripPrefix
	}
	mode, err := lighthouse.ParseJoinMode(l.JoinMode)
	if err != nil {
		return lighthouse.Config{}, err
	}
	cfg.JoinMode = mode
	return cfg, cfg.Validate()
}
