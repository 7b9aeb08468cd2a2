package channel

import (
	"encoding/json"
	"fmt"
)

// Envelope is the message shape used by brokers without a native event
// concept (NATS subjects, MQTT topics). Data holds the event payload either
// as an object or as a JSON-encoded string, the way Pusher sends it.
type Envelope struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// DecodeEnvelope parses b.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// DecodeData returns raw as an object. A JSON string is decoded once more.
// null or empty data yields an empty map.
func DecodeData(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode event data: %w", err)
		}
		raw = json.RawMessage(s)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode event data: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// EncodeEnvelope marshals an envelope for event on channel name.
func EncodeEnvelope(event, name string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode event data: %w", err)
	}
	return json.Marshal(Envelope{Event: event, Channel: name, Data: raw})
}
