package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/hanpama/lighthouselink/internal/config"
	"github.com/hanpama/lighthouselink/internal/eventbus"
	"github.com/hanpama/lighthouselink/internal/httplink"
	"github.com/hanpama/lighthouselink/internal/lighthouse"
	"github.com/hanpama/lighthouselink/internal/link"
	"github.com/hanpama/lighthouselink/internal/metrics"
	"github.com/hanpama/lighthouselink/internal/otel"
)

const rootUsage = `lighthouselink - GraphQL subscriptions over Lighthouse broadcasters

USAGE:
  lighthouselink <command> [flags]

COMMANDS:
  subscribe        Run an operation and print every result as a JSON line
  help             Show help for any command
`

const subscribeUsage = `subscribe FLAGS:
  -config <file>                  YAML file providing defaults for every flag below
  -endpoint <url>                 GraphQL HTTP endpoint (required)
  -query <text>                   Operation source
  -query.file <file>              Read the operation source from file
  -variables <json>               Variables object
  -operation <name>               Operation name to execute
  -header <Name: value>           HTTP header sent with the operation. Repeatable
  -timeout <duration>             HTTP request timeout (default: 30s)
  -broadcaster pusher|nats|mqtt   Channel transport (default: pusher)
  -pusher.url <ws url>            Pusher-protocol WebSocket URL
  -pusher.auth-endpoint <url>     Broadcasting auth endpoint for private channels
  -pusher.key <key>               App key, used with -pusher.secret to sign locally
  -pusher.secret <secret>         App secret
  -pusher.namespace <ns>          Event namespace (default: App.Events)
  -nats.url <url>                 NATS server (default: nats://127.0.0.1:4222)
  -mqtt.broker <url>              MQTT broker (default: tcp://127.0.0.1:1883)
  -mqtt.client-id <id>            MQTT client id (default: lighthouselink)
  -channel.prefix <prefix>        Subject or topic prefix for nats and mqtt
  -event <name>                   Subscription event name
  -unwrap-depth <n>               Nested "data" levels removed from payloads
  -join <mode>                    private|presence|public (default: private)
  -legacy                         Use the .lighthouse.subscription event protocol
  -metrics.addr <addr>            Serve Prometheus metrics on addr
  -otel.endpoint <addr>           OTLP collector endpoint
  -otel.service <name>            OpenTelemetry service name (default: lighthouselink)
  -v                              Debug logging
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	global := flag.NewFlagSet("lighthouselink", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer))
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "subscribe":
		return cmdSubscribe(ctx, cmdArgs, stdout)
	case "help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "subscribe":
		fmt.Fprint(stdout, subscribeUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// configPath finds -config before the flag set exists, since the file
// supplies the flag defaults.
func configPath(args []string) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func cmdSubscribe(ctx context.Context, args []string, stdout io.Writer) error {
	file, err := config.Load(configPath(args))
	if err != nil {
		return err
	}
	var (
		configFile string
		query      string
		queryFile  string
		variables  string
		opName     string
		headers    stringListFlag
		unwrap     int
		verbose    bool
	)
	fs := flag.NewFlagSet("subscribe", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&configFile, "config", "", "YAML config file")
	fs.StringVar(&file.Endpoint, "endpoint", file.Endpoint, "GraphQL HTTP endpoint")
	fs.StringVar(&query, "query", "", "Operation source")
	fs.StringVar(&queryFile, "query.file", "", "Operation source file")
	fs.StringVar(&variables, "variables", "", "Variables JSON object")
	fs.StringVar(&opName, "operation", "", "Operation name")
	fs.Var(&headers, "header", "HTTP header")
	fs.DurationVar(&file.Timeout, "timeout", file.Timeout, "HTTP request timeout")
	fs.StringVar(&file.Broadcaster, "broadcaster", file.Broadcaster, "Channel transport")
	fs.StringVar(&file.Pusher.URL, "pusher.url", file.Pusher.URL, "Pusher WebSocket URL")
	fs.StringVar(&file.Pusher.AuthEndpoint, "pusher.auth-endpoint", file.Pusher.AuthEndpoint, "Broadcasting auth endpoint")
	fs.StringVar(&file.Pusher.Key, "pusher.key", file.Pusher.Key, "App key")
	fs.StringVar(&file.Pusher.Secret, "pusher.secret", file.Pusher.Secret, "App secret")
	fs.StringVar(&file.Pusher.Namespace, "pusher.namespace", file.Pusher.Namespace, "Event namespace")
	fs.StringVar(&file.NATS.URL, "nats.url", file.NATS.URL, "NATS server URL")
	fs.StringVar(&file.MQTT.Broker, "mqtt.broker", file.MQTT.Broker, "MQTT broker")
	fs.StringVar(&file.MQTT.ClientID, "mqtt.client-id", file.MQTT.ClientID, "MQTT client id")
	fs.StringVar(&file.Link.ChannelPrefix, "channel.prefix", file.Link.ChannelPrefix, "Subject or topic prefix")
	fs.StringVar(&file.Link.Event, "event", file.Link.Event, "Subscription event name")
	fs.IntVar(&unwrap, "unwrap-depth", 0, "Unwrap depth")
	fs.StringVar(&file.Link.JoinMode, "join", file.Link.JoinMode, "Join mode")
	fs.BoolVar(&file.Link.Legacy, "legacy", file.Link.Legacy, "Legacy event protocol")
	fs.StringVar(&file.Metrics.Addr, "metrics.addr", file.Metrics.Addr, "Prometheus listen address")
	fs.StringVar(&file.Otel.Endpoint, "otel.endpoint", file.Otel.Endpoint, "OTLP collector endpoint")
	fs.StringVar(&file.Otel.Service, "otel.service", file.Otel.Service, "OpenTelemetry service name")
	fs.BoolVar(&verbose, "v", false, "Debug logging")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, subscribeUsage)
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "unwrap-depth" {
			file.Link.UnwrapDepth = &unwrap
		}
	})
	if file.Endpoint == "" {
		fmt.Fprint(os.Stderr, subscribeUsage)
		return fmt.Errorf("-endpoint is required")
	}
	if err := file.Validate(); err != nil {
		return err
	}
	source, err := readQuery(query, queryFile)
	if err != nil {
		fmt.Fprint(os.Stderr, subscribeUsage)
		return err
	}
	vars := map[string]any{}
	if variables != "" {
		if err := json.Unmarshal([]byte(variables), &vars); err != nil {
			return fmt.Errorf("parse -variables: %w", err)
		}
	}
	for _, h := range headers {
		k, v, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(k) == "" {
			return fmt.Errorf("invalid header %q", h)
		}
		if file.Headers == nil {
			file.Headers = map[string]string{}
		}
		file.Headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	linkCfg, err := file.Link.LinkConfig()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	eventbus.Use(eventbus.New())
	defer eventbus.Use(nil)
	shutdown, err := otel.Setup(file.Otel.Endpoint, file.Otel.Service)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if file.Metrics.Addr != "" {
		collector := metrics.NewCollector(nil)
		defer collector.Register()()
		srv := metrics.NewServer(file.Metrics.Addr, collector, logger)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("metrics server", "error", err)
			}
		}()
	}

	op, err := link.NewOperation(ctx, source, link.WithOperationName(opName), link.WithVariables(vars))
	if err != nil {
		return err
	}

	b, err := dialBroadcaster(ctx, file, logger)
	if err != nil {
		return err
	}
	defer b.close()

	httpOpts := []httplink.Option{httplink.WithTimeout(file.Timeout)}
	for k, v := range file.Headers {
		httpOpts = append(httpOpts, httplink.WithHeader(k, v))
	}
	chain := link.From(
		lighthouse.NewLink(b.client, lighthouse.WithConfig(linkCfg), lighthouse.WithLogger(logger)),
		httplink.New(file.Endpoint, httpOpts...),
	)

	var (
		mu   sync.Mutex
		enc  = json.NewEncoder(stdout)
		errc = make(chan error, 1)
		done = make(chan struct{})
	)
	sub := link.Execute(chain, op).Subscribe(link.ObserverFuncs{
		OnNext: func(res *link.FetchResult) {
			mu.Lock()
			defer mu.Unlock()
			if err := enc.Encode(res); err != nil {
				logger.Error("write result", "error", err)
			}
		},
		OnError:    func(err error) { errc <- err },
		OnComplete: func() { close(done) },
	})
	defer sub.Unsubscribe()

	select {
	case <-ctx.Done():
		logger.Debug("interrupted, leaving channel")
		return nil
	case <-done:
		return nil
	case err := <-errc:
		return err
	case <-b.lost:
		return fmt.Errorf("broadcaster connection lost: %w", b.err())
	}
}

func readQuery(query, queryFile string) (string, error) {
	switch {
	case query != "" && queryFile != "":
		return "", errors.New("-query and -query.file are mutually exclusive")
	case query != "":
		return query, nil
	case queryFile != "":
		b, err := os.ReadFile(queryFile)
		if err != nil {
			return "", fmt.Errorf("read -query.file: %w", err)
		}
		return string(b), nil
	}
	return "", errors.New("-query or -query.file is required")
}
