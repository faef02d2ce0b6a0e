package mqtt

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/berfenger/sdm120collector/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
)

func OptsFromConfig(cfg config.MQTTConfig) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(fmt.Sprintf("sdm120collector_%d", rand.IntN(1000)))
	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	// the sink retries the first connect every cycle; keep a down broker from stalling polling
	opts.SetConnectTimeout(5 * time.Second)
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = NewTopics(cfg.BaseTopic).BridgeState()
	opts.WillQos = 0

	return opts
}

func CreateMQTTClient(cfg config.MQTTConfig, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error), timeout time.Duration) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return &MQTTClient{
		client:  mqtt.NewClient(opts),
		cfg:     cfg,
		timeout: timeout,
	}
}

// MQTTClient wraps paho with blocking, context aware calls. Each call waits
// at most timeout for the broker.
type MQTTClient struct {
	client  mqtt.Client
	cfg     config.MQTTConfig
	timeout time.Duration
}

func (c *MQTTClient) Topics() Topics {
	return NewTopics(c.cfg.BaseTopic)
}

// IsConnected is false while paho is still reconnecting.
func (c *MQTTClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Connect is a no-op while connected or while paho is reconnecting on its own.
func (c *MQTTClient) Connect(ctx context.Context) error {
	if c.client.IsConnectionOpen() {
		return nil
	}
	return c.wait(ctx, c.client.Connect(), "connect")
}

func (c *MQTTClient) Publish(ctx context.Context, topic string, payload any, qos byte, retain bool) error {
	return c.wait(ctx, c.client.Publish(topic, qos, retain, payload), "publish")
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func (c *MQTTClient) wait(ctx context.Context, token mqtt.Token, op string) error {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("MQTT %s timed out", op)
	case <-ctx.Done():
		return errors.Join(fmt.Errorf("MQTT %s cancelled", op), ctx.Err())
	}
}

// Topics derives every topic from the base topic.
type Topics struct {
	base string
}

func NewTopics(baseTopic string) Topics {
	return Topics{base: baseTopic}
}

func (t Topics) BridgeState() string {
	return fmt.Sprintf("%s/bridge/state", t.base)
}

func (t Topics) CycleState() string {
	return fmt.Sprintf("%s/bridge/cycle", t.base)
}

func (t Topics) MeterState(deviceID uint8) string {
	return fmt.Sprintf("%s/sdm120/%d/state", t.base, deviceID)
}

func (t Topics) MeterAvailability(deviceID uint8) string {
	return fmt.Sprintf("%s/sdm120/%d/availability", t.base, deviceID)
}
