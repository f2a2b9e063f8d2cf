package mqttclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// publishTimeout bounds how long a publish waits for the broker's ack.
const publishTimeout = 5 * time.Second

// ErrNotConnected is returned when publishing while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt not connected")

// Client publishes render events to an MQTT broker.
type Client struct {
	conn        mqtt.Client
	topicPrefix string
	connected   atomic.Bool
	published   atomic.Int64
	log         zerolog.Logger
}

type Options struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
	Log         zerolog.Logger
}

func Connect(opts Options) (*Client, error) {
	c := &Client{
		topicPrefix: strings.Trim(opts.TopicPrefix, "/"),
		log:         opts.Log.With().Str("component", "mqtt").Logger(),
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetWill(Topic(c.topicPrefix, "status"), "offline", 1, true)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return c, nil
}

// Topic returns the topic for a render event: {prefix}/render/{event}.
func Topic(prefix, event string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return "render/" + event
	}
	return prefix + "/render/" + event
}

// Publish sends payload to the event's topic with QoS 1.
func (c *Client) Publish(event string, payload []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	topic := Topic(c.topicPrefix, event)
	token := c.conn.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timed out after %s", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	c.published.Add(1)
	return nil
}

// PublishEvent JSON-encodes payload and publishes it for eventType.
func (c *Client) PublishEvent(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return c.Publish(eventType, data)
}

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Str("prefix", c.topicPrefix).Msg("mqtt connected")
	token := client.Publish(Topic(c.topicPrefix, "status"), 1, true, "online")
	if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		c.log.Warn().Err(token.Error()).Msg("mqtt status publish failed")
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Published returns how many events were acknowledged by the broker.
func (c *Client) Published() int64 { return c.published.Load() }

func (c *Client) Close() {
	c.log.Info().Int64("published", c.published.Load()).Msg("disconnecting mqtt client")
	c.conn.Publish(Topic(c.topicPrefix, "status"), 1, true, "offline").WaitTimeout(time.Second)
	c.conn.Disconnect(1000)
}
