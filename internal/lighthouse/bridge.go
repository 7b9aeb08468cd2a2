package lighthouse

import (
	"fmt"
	"strings"

	channel "github.com/hanpama/lighthouselink/internal/channel"
	eventbus "github.com/hanpama/lighthouselink/internal/eventbus"
	events "github.com/hanpama/lighthouselink/internal/events"
	link "github.com/hanpama/lighthouselink/internal/link"
)

// bridge joins name and re-emits its events to the invocation's consumer.
func (l *Link) bridge(inv *invocation, name string, version int) error {
	ctx := inv.op.Context()
	var (
		ch  channel.Channel
		err error
	)
	switch l.cfg.JoinMode {
	case JoinPresence:
		ch, err = l.client.Join(ctx, strings.TrimPrefix(name, l.cfg.StripPrefix))
	case JoinPublic:
		ch, err = l.client.Channel(ctx, name)
	default:
		ch, err = l.client.Private(ctx, strings.TrimPrefix(name, l.cfg.StripPrefix))
	}
	if err != nil {
		return fmt.Errorf("%w: join %s: %w", ErrChannel, name, err)
	}

	depth := l.cfg.UnwrapDepth
	err = ch.Listen(l.cfg.EventName, func(payload map[string]any) {
		eventbus.Publish(ctx, events.ChannelEvent{Channel: name})
		inv.consumer.Next(&link.FetchResult{Data: Unwrap(payload, depth)})
	})
	if err != nil {
		return fmt.Errorf("%w: listen %s on %s: %w", ErrChannel, l.cfg.EventName, name, err)
	}

	inv.log.Debug("joined channel", "channel", name, "mode", l.cfg.JoinMode.String(), "version", version)
	eventbus.Publish(ctx, events.ChannelJoined{
		OperationName: inv.op.OperationName,
		Channel:       name,
		Version:       version,
	})
	return nil
}

// Unwrap removes up to depth nested "data" objects from payload. Broadcast
// payloads wrap the execution result, whose own data holds the fields.
func Unwrap(payload map[string]any, depth int) map[string]any {
	cur := payload
	for i := 0; i < depth; i++ {
		next, ok := cur["data"].(map[string]any)
		if !ok {
			break
		}
		cur = next
	}
	return cur
}
