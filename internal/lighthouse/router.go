package lighthouse

import (
	eventbus "github.com/hanpama/lighthouselink/internal/eventbus"
	events "github.com/hanpama/lighthouselink/internal/events"
	link "github.com/hanpama/lighthouselink/internal/link"
)

// router observes the forwarded stream and decides, from the first
// response, whether the operation is a subscription.
type router struct {
	inv *invocation
}

func (r *router) Next(res *link.FetchResult) {
	inv := r.inv
	if inv.assigned() {
		inv.log.Debug("ignoring response after channel assignment")
		return
	}
	var ext map[string]any
	if res != nil {
		ext = res.Extensions
	}
	routing := ParseRouting(ext, inv.link.cfg.Namespace)
	if routing == nil {
		r.forward(res)
		return
	}
	name, ok := routing.ChannelFor(inv.field)
	if !ok {
		r.forward(res)
		return
	}
	if !inv.assign(name) {
		return
	}
	err := inv.link.bridge(inv, name, routing.Version())
	closed := inv.joinDone()
	if err != nil {
		inv.fail(err)
	}
	if closed {
		inv.log.Debug("unsubscribed during join", "channel", name)
		inv.leave()
	}
}

func (r *router) forward(res *link.FetchResult) {
	inv := r.inv
	eventbus.Publish(inv.op.Context(), events.OperationForwarded{
		OperationName: inv.op.OperationName,
		OperationType: string(inv.op.Type()),
	})
	inv.consumer.Next(res)
	inv.consumer.Complete()
}

// Error passes upstream failures through until a channel takes over the
// stream.
func (r *router) Error(err error) {
	if r.inv.assigned() {
		r.inv.log.Debug("ignoring upstream error after channel assignment", "error", err)
		return
	}
	r.inv.fail(err)
}

// Complete ends the consumer stream only when no channel was joined: a
// joined channel keeps the stream open until the consumer unsubscribes.
func (r *router) Complete() {
	if r.inv.assigned() {
		return
	}
	r.inv.consumer.Complete()
}
