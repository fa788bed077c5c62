package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/otahub/otahub/internal/config"
)

// Publisher publishes a payload to a topic and waits for broker acknowledgment.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// MessageHandler receives one inbound message. The client invokes handlers
// sequentially in arrival order.
type MessageHandler func(topic string, payload []byte)

// Subscriber registers a handler for a topic filter.
type Subscriber interface {
	Subscribe(filter string, handler MessageHandler) error
}

type subscription struct {
	filter  string
	handler mqtt.MessageHandler
}

// Client wraps the MQTT connection. The underlying client reconnects on its
// own with a fixed retry interval; registered subscriptions are replayed on
// every (re)connect so a broker restart never silently drops the status feed.
type Client struct {
	mqtt           mqtt.Client
	publishTimeout time.Duration

	mu   sync.Mutex
	subs []subscription
}

const connectWait = 15 * time.Second

// Connect builds the MQTT client from config and starts connecting. A broker
// that is down at startup is not fatal: the client keeps retrying in the
// background and the health endpoint reports the degraded state.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{publishTimeout: cfg.PublishTimeout}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetKeepAlive(cfg.KeepAlive).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(cfg.ReconnectInterval).
		SetMaxReconnectInterval(cfg.ReconnectInterval).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			slog.Error("mqtt connection lost", "error", err)
		})

	if cfg.CAPath != "" {
		tlsCfg, err := newTLSConfig(cfg.CAPath, cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("mqtt tls config: %w", err)
		}
		opts.SetTLSConfig(tlsCfg)
	}

	c.mqtt = mqtt.NewClient(opts)

	token := c.mqtt.Connect()
	if !token.WaitTimeout(connectWait) {
		slog.Warn("mqtt broker not reachable yet, retrying in background",
			"broker", cfg.BrokerURL(), "retry_interval", cfg.ReconnectInterval)
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return c, nil
}

// Publish sends payload to topic at QoS 1 and waits for the broker ack. The
// wait is bounded by the configured publish timeout or the context deadline,
// whichever is sooner.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	timeout := c.publishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	token := c.mqtt.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish to %s: no broker ack within %s", topic, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for the topic filter at QoS 1 and remembers the
// subscription for replay after reconnects.
func (c *Client) Subscribe(filter string, handler MessageHandler) error {
	wrapped := func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	}

	c.mu.Lock()
	c.subs = append(c.subs, subscription{filter: filter, handler: wrapped})
	c.mu.Unlock()

	token := c.mqtt.Subscribe(filter, 1, wrapped)
	if !token.WaitTimeout(connectWait) {
		slog.Warn("mqtt subscribe not yet acknowledged, will be replayed on connect", "filter", filter)
		return nil
	}
	return token.Error()
}

// Connected reports whether the broker connection is currently up.
func (c *Client) Connected() bool {
	return c.mqtt.IsConnectionOpen()
}

// Close disconnects from the broker, allowing in-flight messages a short
// window to drain.
func (c *Client) Close() {
	c.mqtt.Disconnect(250)
}

func (c *Client) onConnect(client mqtt.Client) {
	slog.Info("mqtt connected")
	c.mu.Lock()
	subs := make([]subscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, sub := range subs {
		if token := client.Subscribe(sub.filter, 1, sub.handler); token.Wait() && token.Error() != nil {
			slog.Error("mqtt resubscribe failed", "filter", sub.filter, "error", token.Error())
		} else {
			slog.Info("mqtt subscribed", "filter", sub.filter)
		}
	}
}

// Compile-time checks that Client satisfies both bus roles.
var (
	_ Publisher  = (*Client)(nil)
	_ Subscriber = (*Client)(nil)
)
