// Package channel defines the broadcast channel client the subscription link
// joins, listens on and leaves. The method set follows Laravel Echo:
// Channel joins a public channel, Private an authorized one and Join a
// presence channel.
package channel

import "context"

// Listener receives the decoded payload of one channel event.
type Listener func(payload map[string]any)

// Channel is a joined broadcast channel.
type Channel interface {
	Name() string
	// Listen registers cb for event. Listeners for one event run in the
	// order events arrive.
	Listen(event string, cb Listener) error
}

// Client connects to a broadcast service. Implementations must be safe for
// concurrent use with distinct channel names.
type Client interface {
	Channel(ctx context.Context, name string) (Channel, error)
	Private(ctx context.Context, name string) (Channel, error)
	Join(ctx context.Context, name string) (Channel, error)
	// Leave unsubscribes name and its private and presence variants.
	Leave(name string) error
}

const (
	PrivatePrefix  = "private-"
	PresencePrefix = "presence-"
)

// Variants returns the channel names Leave(name) should release.
func Variants(name string) []string {
	return []string{name, PrivatePrefix + name, PresencePrefix + name}
}

// NormalizeEvent strips the leading '.' or '\' Echo uses to mark an event
// name as fully qualified.
func NormalizeEvent(event string) string {
	if len(event) > 0 && (event[0] == '.' || event[0] == '\\') {
		return event[1:]
	}
	return event
}
