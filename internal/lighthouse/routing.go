package lighthouse

import (
	"encoding/json"
	"strconv"
)

// Routing is subscription routing metadata parsed from response extensions.
// It is one of RoutingV1 or RoutingV2.
type Routing interface {
	// ChannelFor returns the channel delivering events for field.
	ChannelFor(field string) (string, bool)
	// Version reports the protocol version the metadata was sent with.
	Version() int
}

// RoutingV1 maps subscription field names to channel names.
type RoutingV1 struct {
	Channels map[string]string
}

func (r RoutingV1) ChannelFor(field string) (string, bool) {
	name, ok := r.Channels[field]
	return name, ok && name != ""
}

func (RoutingV1) Version() int { return 1 }

// RoutingV2 names a single channel regardless of the field.
type RoutingV2 struct {
	Channel string
}

func (r RoutingV2) ChannelFor(string) (string, bool) { return r.Channel, r.Channel != "" }

func (RoutingV2) Version() int { return 2 }

// ParseRouting extracts routing metadata stored under namespace. It returns
// nil when the extensions carry no usable metadata, which marks the result
// as an ordinary response.
func ParseRouting(extensions map[string]any, namespace string) Routing {
	block, ok := extensions[namespace].(map[string]any)
	if !ok {
		return nil
	}
	if version(block["version"]) == 2 {
		name, _ := block["channel"].(string)
		if name == "" {
			return nil
		}
		return RoutingV2{Channel: name}
	}
	channels := map[string]string{}
	switch raw := block["channels"].(type) {
	case map[string]any:
		for field, v := range raw {
			if name, ok := v.(string); ok && name != "" {
				channels[field] = name
			}
		}
	case map[string]string:
		for field, name := range raw {
			if name != "" {
				channels[field] = name
			}
		}
	}
	if len(channels) == 0 {
		return nil
	}
	return RoutingV1{Channels: channels}
}

// version reads the discriminator as decoded by encoding/json, as a Go
// integer, or as a numeric string. Anything else is version 1.
func version(v any) int {
	switch n := v.(type) {
	case float64:
		if n == float64(int(n)) {
			return int(n)
		}
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return 1
}
