// Package iot publishes device commands to an MQTT broker and tracks the
// most recent status message.
package iot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/teslashibe/go-jarvis/pkg/journal"
)

// Sentinel errors.
var (
	ErrNotConnected = errors.New("iot: not connected to broker")
	ErrNoBroker     = errors.New("iot: broker not configured")
)

// Defaults match the topics used by the lab devices.
const (
	DefaultPort         = 1883
	DefaultCommandTopic = "jarvis/commands"
	DefaultStatusTopic  = "jarvis/status"
)

// Config describes the broker connection.
type Config struct {
	Broker       string
	Port         int
	CommandTopic string
	StatusTopic  string
	ClientID     string

	// ConnectTimeout bounds how long Connect waits for the first connection.
	// The client keeps retrying in the background after it expires.
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// DefaultConfig returns the default topics with no broker.
func DefaultConfig() Config {
	return Config{
		Port:           DefaultPort,
		CommandTopic:   DefaultCommandTopic,
		StatusTopic:    DefaultStatusTopic,
		ConnectTimeout: 5 * time.Second,
		PublishTimeout: 3 * time.Second,
	}
}

// URL returns the broker address.
func (c Config) URL() (*url.URL, error) {
	if c.Broker == "" {
		return nil, ErrNoBroker
	}
	return url.Parse(fmt.Sprintf("mqtt://%s:%d", c.Broker, c.Port))
}

// Command is the JSON payload published for a device switch.
type Command struct {
	Device string `json:"device"`
	State  string `json:"state"`
}

// publisher is the part of the connection manager the client publishes with.
type publisher interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// Client is an MQTT device client.
type Client struct {
	cfg    Config
	sink   journal.Sink
	logger *slog.Logger

	cm        *autopaho.ConnectionManager
	pub       publisher
	connected atomic.Bool

	mu        sync.RWMutex
	status    string
	hasStatus bool
}

// Option configures a Client.
type Option func(*Client)

// WithSink records commands and status updates.
func WithSink(s journal.Sink) Option {
	return func(c *Client) { c.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates an unconnected client. Zero fields in cfg take defaults.
func New(cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.CommandTopic == "" {
		cfg.CommandTopic = def.CommandTopic
	}
	if cfg.StatusTopic == "" {
		cfg.StatusTopic = def.StatusTopic
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "jarvis-" + uuid.NewString()[:8]
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}

	c := &Client{
		cfg:    cfg,
		sink:   journal.Discard,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "iot.client", "broker", cfg.Broker)
	return c
}

// Connect starts the connection manager. It lives until ctx is done or
// Close is called, reconnecting and resubscribing as needed. A broker that
// is down at startup is logged, not returned.
func (c *Client) Connect(ctx context.Context) error {
	u, err := c.cfg.URL()
	if err != nil {
		return err
	}

	cc := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     30,
		ConnectRetryDelay:             3 * time.Second,
		ConnectTimeout:                c.cfg.ConnectTimeout,
		CleanStartOnInitialConnection: true,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.connected.Store(true)
			c.logger.Info("connected to broker")
			go c.subscribe(ctx, cm)
		},
		OnConnectError: func(err error) {
			c.connected.Store(false)
			c.logger.Warn("broker connection failed", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					return c.handleMessage(pr.Packet.Topic, pr.Packet.Payload), nil
				},
			},
			OnClientError: func(err error) {
				c.connected.Store(false)
				c.logger.Warn("broker connection lost", "error", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				c.connected.Store(false)
				c.logger.Warn("broker disconnected", "reason", d.ReasonCode)
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, cc)
	if err != nil {
		return fmt.Errorf("iot: start connection: %w", err)
	}
	c.cm = cm
	c.pub = cm

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	if err := cm.AwaitConnection(waitCtx); err != nil {
		c.logger.Warn("broker not reachable yet, retrying in background", "error", err)
	}
	return nil
}

func (c *Client) subscribe(ctx context.Context, cm *autopaho.ConnectionManager) {
	subCtx, cancel := context.WithTimeout(ctx, c.cfg.PublishTimeout)
	defer cancel()
	_, err := cm.Subscribe(subCtx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: c.cfg.StatusTopic, QoS: 1}},
	})
	if err != nil {
		c.logger.Warn("subscribe failed", "topic", c.cfg.StatusTopic, "error", err)
		return
	}
	c.logger.Info("subscribed", "topic", c.cfg.StatusTopic)
}

// handleMessage keeps status payloads; other topics are ignored.
func (c *Client) handleMessage(topic string, payload []byte) bool {
	if topic != c.cfg.StatusTopic {
		return false
	}
	status := string(payload)

	c.mu.Lock()
	c.status = status
	c.hasStatus = true
	c.mu.Unlock()

	c.logger.Debug("status update", "status", status)
	c.sink.Record(journal.EventDeviceStatus, map[string]any{"status": status})
	return true
}

// PublishCommand sends {"device": device, "state": state} to the command topic.
func (c *Client) PublishCommand(ctx context.Context, device, state string) error {
	if c.pub == nil || !c.connected.Load() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(Command{Device: device, State: state})
	if err != nil {
		return fmt.Errorf("iot: encode command: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, c.cfg.PublishTimeout)
	defer cancel()
	if _, err := c.pub.Publish(pubCtx, &paho.Publish{
		Topic:   c.cfg.CommandTopic,
		QoS:     1,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("iot: publish %s: %w", device, err)
	}

	c.sink.Record(journal.EventDeviceCommand, map[string]any{"device": device, "state": state})
	return nil
}

// Status returns the most recent status payload.
func (c *Client) Status() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status, c.hasStatus
}

// Connected reports whether the broker connection is up.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Close disconnects from the broker.
func (c *Client) Close(ctx context.Context) error {
	if c.cm == nil {
		return nil
	}
	c.connected.Store(false)
	if err := c.cm.Disconnect(ctx); err != nil {
		return fmt.Errorf("iot: disconnect: %w", err)
	}
	return nil
}
