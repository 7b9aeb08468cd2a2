// Package httplink terminates a link chain by POSTing the operation to a
// GraphQL endpoint. Each request yields exactly one result, then completes.
package httplink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	eventbus "github.com/hanpama/lighthouselink/internal/eventbus"
	events "github.com/hanpama/lighthouselink/internal/events"
	link "github.com/hanpama/lighthouselink/internal/link"
	reqid "github.com/hanpama/lighthouselink/internal/reqid"
)

var (
	// ErrStatus is returned for non-2xx responses without a GraphQL body.
	ErrStatus = errors.New("httplink: unexpected status")
)

type Options struct {
	// Client sends the requests. Default http.DefaultClient.
	Client *http.Client
	// Header is added to every request.
	Header http.Header
	// Timeout bounds a request when the operation context has no deadline.
	// 0 means no timeout.
	Timeout time.Duration
	// MaxBodyBytes limits the response body. Default 8 MiB.
	MaxBodyBytes int64
}

type Option func(*Options)

func WithHTTPClient(c *http.Client) Option { return func(o *Options) { o.Client = c } }
func WithTimeout(d time.Duration) Option   { return func(o *Options) { o.Timeout = d } }
func WithMaxBodyBytes(n int64) Option      { return func(o *Options) { o.MaxBodyBytes = n } }
func WithHeader(key, value string) Option {
	return func(o *Options) {
		if o.Header == nil {
			o.Header = http.Header{}
		}
		o.Header.Add(key, value)
	}
}

// Request is the JSON body sent to the endpoint.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// Link is a terminating link.
type Link struct {
	endpoint string
	opt      Options
}

var _ link.Link = (*Link)(nil)

func New(endpoint string, opts ...Option) *Link {
	o := Options{Client: http.DefaultClient, MaxBodyBytes: 8 << 20}
	for _, f := range opts {
		f(&o)
	}
	return &Link{endpoint: endpoint, opt: o}
}

// Request implements link.Link. forward is never called.
func (l *Link) Request(op *link.Operation, _ link.NextLink) *link.Observable {
	return link.New(func(obs link.Observer) func() {
		ctx, cancel := context.WithCancel(op.Context())
		go func() {
			defer cancel()
			res, err := l.do(ctx, op)
			if err != nil {
				obs.Error(err)
				return
			}
			obs.Next(res)
			obs.Complete()
		}()
		return cancel
	})
}

func (l *Link) do(ctx context.Context, op *link.Operation) (_ *link.FetchResult, err error) {
	if _, ok := ctx.Deadline(); !ok && l.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opt.Timeout)
		defer cancel()
	}
	ctx, rid := reqid.Ensure(ctx)

	body, err := json.Marshal(Request{
		Query:         op.Source,
		OperationName: op.OperationName,
		Variables:     op.Variables,
		Extensions:    op.Extensions,
	})
	if err != nil {
		return nil, fmt.Errorf("httplink: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("httplink: %w", err)
	}
	for k, vs := range l.opt.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", strconv.FormatInt(rid, 10))

	start := time.Now()
	status := 0
	eventbus.Publish(ctx, events.HTTPRequestStart{Request: req, OperationName: op.OperationName})
	defer func() {
		eventbus.Publish(ctx, events.HTTPRequestFinish{
			Request:       req,
			OperationName: op.OperationName,
			Status:        status,
			Err:           err,
			Duration:      time.Since(start),
		})
	}()

	resp, err := l.opt.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httplink: %w", err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	raw, err := io.ReadAll(io.LimitReader(resp.Body, l.opt.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("httplink: read response: %w", err)
	}
	if int64(len(raw)) > l.opt.MaxBodyBytes {
		return nil, fmt.Errorf("httplink: response exceeds %d bytes", l.opt.MaxBodyBytes)
	}
	// GraphQL servers may answer errors with a 4xx/5xx status and a regular
	// body; only a body that is not a GraphQL response is a transport error.
	var out link.FetchResult
	jerr := json.Unmarshal(raw, &out)
	graphql := jerr == nil && (out.Data != nil || len(out.Errors) > 0 || out.Extensions != nil)
	if resp.StatusCode/100 != 2 && !graphql {
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	if jerr != nil {
		return nil, fmt.Errorf("httplink: decode response: %w", jerr)
	}
	return &out, nil
}
