package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventbus "github.com/hanpama/lighthouselink/internal/eventbus"
	events "github.com/hanpama/lighthouselink/internal/events"
)

const namespace = "lighthouselink"

// Collector holds the Prometheus collectors fed from link events.
type Collector struct {
	reg *prometheus.Registry

	activeSubscriptions prometheus.Gauge
	channelEvents       prometheus.Counter
	operations          *prometheus.CounterVec
	leaveErrors         prometheus.Counter
	subscriptionSeconds prometheus.Histogram
	httpDuration        *prometheus.HistogramVec
}

// NewCollector creates collectors registered on reg. A nil reg gets a
// fresh registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{reg: reg}

	c.activeSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_subscriptions",
		Help:      "Number of joined channels not yet left.",
	})
	c.channelEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "channel_events_total",
		Help:      "Total channel events forwarded to consumers.",
	})
	c.operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Operations by outcome (subscribed|forwarded|failed).",
	}, []string{"outcome"})
	c.leaveErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "leave_errors_total",
		Help:      "Total failed channel leaves.",
	})
	c.subscriptionSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "subscription_duration_seconds",
		Help:      "Time between channel assignment and leave.",
		Buckets:   []float64{1, 10, 60, 300, 1800, 3600, 14400},
	})
	c.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "GraphQL HTTP request latency by status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"code"})

	reg.MustRegister(
		c.activeSubscriptions,
		c.channelEvents,
		c.operations,
		c.leaveErrors,
		c.subscriptionSeconds,
		c.httpDuration,
	)
	return c
}

// Registry returns the registry the collectors are registered on.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// Register subscribes the collector to the global event bus and returns a
// function removing the subscriptions.
func (c *Collector) Register() func() {
	offs := []func(){
		eventbus.Subscribe(func(_ context.Context, _ events.ChannelJoined) {
			c.activeSubscriptions.Inc()
			c.operations.WithLabelValues("subscribed").Inc()
		}),
		eventbus.Subscribe(func(_ context.Context, _ events.ChannelEvent) {
			c.channelEvents.Inc()
		}),
		eventbus.Subscribe(func(_ context.Context, e events.ChannelLeft) {
			c.activeSubscriptions.Dec()
			c.subscriptionSeconds.Observe(e.Duration.Seconds())
			if e.Err != nil {
				c.leaveErrors.Inc()
			}
		}),
		eventbus.Subscribe(func(_ context.Context, _ events.OperationForwarded) {
			c.operations.WithLabelValues("forwarded").Inc()
		}),
		eventbus.Subscribe(func(_ context.Context, _ events.OperationFailed) {
			c.operations.WithLabelValues("failed").Inc()
		}),
		eventbus.Subscribe(func(_ context.Context, e events.HTTPRequestFinish) {
			c.httpDuration.WithLabelValues(statusLabel(e.Status)).Observe(e.Duration.Seconds())
		}),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func statusLabel(status int) string {
	if status == 0 {
		return "error"
	}
	return strconv.Itoa(status)
}

// Server serves /metrics and /health until its context is cancelled.
type Server struct {
	addr      string
	collector *Collector
	log       *slog.Logger
	server    *http.Server
}

// NewServer creates a metrics server for collector listening on addr.
func NewServer(addr string, collector *Collector, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{addr: addr, collector: collector, log: log}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.collector.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK\n"))
	})
	return mux
}

// Start listens on the configured address and blocks until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("serving metrics", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
