package events

import "time"

// OperationStart is emitted when the subscription link starts handling an
// operation.
type OperationStart struct {
	OperationName string
	OperationType string
	Field         string
}

// OperationForwarded is emitted when the first response carried no routing
// metadata and was passed through as an ordinary result.
type OperationForwarded struct {
	OperationName string
	OperationType string
}

// ChannelJoined is emitted after the channel was joined and its listener
// installed. Channel is the name as received in the routing metadata.
type ChannelJoined struct {
	OperationName string
	Channel       string
	Version       int
}

// ChannelEvent is emitted for every event forwarded from a channel.
type ChannelEvent struct {
	Channel string
}

// ChannelLeft is emitted when an operation's subscription is torn down.
type ChannelLeft struct {
	Channel  string
	Err      error
	Duration time.Duration
}

// OperationClosed is emitted when an operation's stream is torn down before
// any channel was assigned: the consumer unsubscribed early or the upstream
// completed without a routing response.
type OperationClosed struct {
	OperationName string
}

// OperationFailed is emitted when an operation terminates with an error.
type OperationFailed struct {
	OperationName string
	Err           error
}
