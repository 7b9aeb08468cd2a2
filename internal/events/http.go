package events

import (
	"net/http"
	"time"
)

// HTTPRequestStart is emitted before a GraphQL request is sent.
// Context carries the operation context.
type HTTPRequestStart struct {
	Request       *http.Request
	OperationName string
}

// HTTPRequestFinish is emitted after the response was read or the request
// failed.
type HTTPRequestFinish struct {
	Request       *http.Request
	OperationName string
	Status        int
	Err           error
	Duration      time.Duration
}
