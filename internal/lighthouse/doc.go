// Package lighthouse implements the subscription link for servers that
// register GraphQL subscriptions over plain HTTP and deliver events through a
// broadcast channel, the way Laravel Lighthouse does.
//
// A subscription request travels the normal request/response chain. The
// server answers once, with routing metadata in the response extensions:
//
//	{"extensions": {"lighthouse_subscriptions": {"channels": {"someEvent": "private-lighthouse-1"}}}}
//	{"extensions": {"lighthouse_subscriptions": {"version": 2, "channel": "private-lighthouse-1"}}}
//
// The link swallows that response, joins the channel through a
// channel.Client and emits every broadcast event as a new FetchResult until
// the consumer unsubscribes, at which point the channel is left. Responses
// without routing metadata are ordinary query or mutation results: they are
// forwarded unchanged and the stream completes.
//
// Config captures the parts of the protocol that differ between server and
// client library versions: the extensions key, the event name, how deeply
// event payloads wrap their data, the channel name prefix and the join
// method.
package lighthouse
