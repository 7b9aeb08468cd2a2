package pusher

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Options configures the client.
//
// Defaults:
// - Namespace: "App.Events" (prefix for event names not starting with '.')
// - Dialer:    websocket.DefaultDialer
// - Logger:    slog.Default()
//
// Authorizer is required for private and presence channels only.
type Options struct {
	Authorizer Authorizer
	Namespace  string
	Header     http.Header
	Dialer     *websocket.Dialer
	Logger     *slog.Logger
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Namespace: "App.Events",
		Dialer:    websocket.DefaultDialer,
		Logger:    slog.Default(),
	}
}

func WithAuthorizer(a Authorizer) Option    { return func(o *Options) { o.Authorizer = a } }
func WithNamespace(ns string) Option        { return func(o *Options) { o.Namespace = ns } }
func WithHeader(h http.Header) Option       { return func(o *Options) { o.Header = h } }
func WithDialer(d *websocket.Dialer) Option { return func(o *Options) { o.Dialer = d } }
func WithLogger(l *slog.Logger) Option      { return func(o *Options) { o.Logger = l } }
