// Package mqtt carries IR payloads and fan state over an MQTT broker.
package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Publisher publishes a single message
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Options configures a broker connection
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Client publishes to an actual MQTT broker
type Client struct {
	client paho.Client
	logger *zap.Logger
}

// Connect creates a client connected to the configured broker
func Connect(opts Options, logger *zap.Logger) (*Client, error) {
	logger = logger.Named("mqtt")

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("Connection to broker lost", zap.Error(err))
		}).
		SetOnConnectHandler(func(_ paho.Client) {
			logger.Info("Connected to MQTT broker", zap.String("broker", opts.Broker))
		})
	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}

	client := paho.NewClient(po)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &Client{client: client, logger: logger}, nil
}

// Publish sends payload to topic and waits for the broker to accept it
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Close disconnects from the broker
func (c *Client) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
