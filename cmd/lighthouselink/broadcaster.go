package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"

	"github.com/hanpama/lighthouselink/internal/channel"
	"github.com/hanpama/lighthouselink/internal/config"
	"github.com/hanpama/lighthouselink/internal/mqttchannel"
	"github.com/hanpama/lighthouselink/internal/natschannel"
	"github.com/hanpama/lighthouselink/internal/pusher"
)

// broadcaster is a connected channel client. lost is closed when the
// connection drops for good; it is nil for transports that reconnect.
type broadcaster struct {
	client channel.Client
	close  func()
	lost   <-chan struct{}
	err    func() error
}

func dialBroadcaster(ctx context.Context, f *config.File, log *slog.Logger) (*broadcaster, error) {
	switch f.Broadcaster {
	case "pusher":
		return dialPusher(ctx, f, log)
	case "nats":
		return dialNATS(f, log)
	case "mqtt":
		return dialMQTT(ctx, f, log)
	}
	return nil, fmt.Errorf("unknown broadcaster %q", f.Broadcaster)
}

func dialPusher(ctx context.Context, f *config.File, log *slog.Logger) (*broadcaster, error) {
	if f.Pusher.URL == "" {
		return nil, fmt.Errorf("-pusher.url is required")
	}
	opts := []pusher.Option{pusher.WithNamespace(f.Pusher.Namespace), pusher.WithLogger(log)}
	switch {
	case f.Pusher.AuthEndpoint != "":
		h := http.Header{}
		for k, v := range f.Headers {
			h.Set(k, v)
		}
		opts = append(opts, pusher.WithAuthorizer(&pusher.HTTPAuthorizer{Endpoint: f.Pusher.AuthEndpoint, Header: h}))
	case f.Pusher.Secret != "":
		opts = append(opts, pusher.WithAuthorizer(&pusher.SecretAuthorizer{Key: f.Pusher.Key, Secret: f.Pusher.Secret}))
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	c, err := pusher.Dial(dialCtx, f.Pusher.URL, opts...)
	if err != nil {
		return nil, err
	}
	log.Debug("connected to pusher", "url", f.Pusher.URL, "socket_id", c.SocketID())
	return &broadcaster{
		client: c,
		close:  func() { _ = c.Close() },
		lost:   c.Done(),
		err:    c.Err,
	}, nil
}

func dialNATS(f *config.File, log *slog.Logger) (*broadcaster, error) {
	nc, err := nats.Connect(f.NATS.URL, nats.Name("lighthouselink"), nats.Timeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", f.NATS.URL, err)
	}
	var opts []natschannel.Option
	if f.Link.ChannelPrefix != "" {
		opts = append(opts, natschannel.WithSubjectPrefix(f.Link.ChannelPrefix))
	}
	opts = append(opts, natschannel.WithLogger(log))
	return &broadcaster{
		client: natschannel.New(nc, opts...),
		close:  nc.Close,
		err:    nc.LastError,
	}, nil
}

func dialMQTT(ctx context.Context, f *config.File, log *slog.Logger) (*broadcaster, error) {
	mo := mqtt.NewClientOptions().
		AddBroker(f.MQTT.Broker).
		SetClientID(f.MQTT.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	mc := mqtt.NewClient(mo)
	tok := mc.Connect()
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("connect mqtt %s: %w", f.MQTT.Broker, err)
	}
	opts := []mqttchannel.Option{mqttchannel.WithQoS(f.MQTT.QoS), mqttchannel.WithLogger(log)}
	if f.Link.ChannelPrefix != "" {
		opts = append(opts, mqttchannel.WithTopicPrefix(f.Link.ChannelPrefix))
	}
	return &broadcaster{
		client: mqttchannel.New(mc, opts...),
		close:  func() { mc.Disconnect(250) },
		err:    func() error { return nil },
	}, nil
}
