package lighthouse

import (
	"fmt"
	"log/slog"
)

// JoinMode selects the channel client method used to join a channel.
type JoinMode int

const (
	// JoinPrivate calls Client.Private with the prefix stripped.
	JoinPrivate JoinMode = iota
	// JoinPresence calls Client.Join with the prefix stripped.
	JoinPresence
	// JoinPublic calls Client.Channel with the name unchanged.
	JoinPublic
)

func (m JoinMode) String() string {
	switch m {
	case JoinPrivate:
		return "private"
	case JoinPresence:
		return "presence"
	case JoinPublic:
		return "public"
	default:
		return fmt.Sprintf("JoinMode(%d)", int(m))
	}
}

// ParseJoinMode parses the String form of a JoinMode.
func ParseJoinMode(s string) (JoinMode, error) {
	switch s {
	case "private", "":
		return JoinPrivate, nil
	case "presence":
		return JoinPresence, nil
	case "public":
		return JoinPublic, nil
	}
	return 0, fmt.Errorf("%w: unknown join mode %q", ErrInvalidConfig, s)
}

// Config describes the wire protocol between server, broadcaster and link.
type Config struct {
	// Namespace is the extensions key holding routing metadata.
	Namespace string `yaml:"namespace"`
	// EventName is the broadcast event carrying subscription results.
	EventName string `yaml:"event"`
	// UnwrapDepth is the maximum number of nested "data" objects removed
	// from an event payload before it is emitted.
	UnwrapDepth int `yaml:"unwrap_depth"`
	// StripPrefix is removed from channel names before a private or presence
	// join. Leave always receives the name as the server sent it.
	StripPrefix string `yaml:"strip_prefix"`
	// JoinMode selects the join method.
	JoinMode JoinMode `yaml:"-"`
}

const (
	DefaultNamespace   = "lighthouse_subscriptions"
	DefaultEventName   = ".lighthouse-subscription"
	LegacyEventName    = ".lighthouse.subscription"
	DefaultStripPrefix = "private-"
)

// DefaultConfig matches current Lighthouse releases with the Echo
// broadcaster.
func DefaultConfig() Config {
	return Config{
		Namespace:   DefaultNamespace,
		EventName:   DefaultEventName,
		UnwrapDepth: 2,
		StripPrefix: DefaultStripPrefix,
		JoinMode:    JoinPrivate,
	}
}

// LegacyConfig matches the older event name, whose payloads carry the
// result one level deep.
func LegacyConfig() Config {
	c := DefaultConfig()
	c.EventName = LegacyEventName
	c.UnwrapDepth = 1
	return c
}

// Validate reports whether c can be used as is.
func (c Config) Validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("%w: empty namespace", ErrInvalidConfig)
	}
	if c.EventName == "" {
		return fmt.Errorf("%w: empty event name", ErrInvalidConfig)
	}
	if c.UnwrapDepth < 0 {
		return fmt.Errorf("%w: negative unwrap depth %d", ErrInvalidConfig, c.UnwrapDepth)
	}
	if c.JoinMode < JoinPrivate || c.JoinMode > JoinPublic {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, c.JoinMode)
	}
	return nil
}

// withDefaults fills zero string fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Namespace == "" {
		c.Namespace = d.Namespace
	}
	if c.EventName == "" {
		c.EventName = d.EventName
	}
	if c.UnwrapDepth < 0 {
		c.UnwrapDepth = 0
	}
	return c
}

type options struct {
	cfg    Config
	logger *slog.Logger
}

// Option mutates the link options.
type Option func(*options)

func WithConfig(c Config) Option           { return func(o *options) { o.cfg = c } }
func WithNamespace(ns string) Option       { return func(o *options) { o.cfg.Namespace = ns } }
func WithEventName(name string) Option     { return func(o *options) { o.cfg.EventName = name } }
func WithUnwrapDepth(n int) Option         { return func(o *options) { o.cfg.UnwrapDepth = n } }
func WithStripPrefix(prefix string) Option { return func(o *options) { o.cfg.StripPrefix = prefix } }
func WithJoinMode(m JoinMode) Option       { return func(o *options) { o.cfg.JoinMode = m } }
func WithLogger(l *slog.Logger) Option     { return func(o *options) { o.logger = l } }
