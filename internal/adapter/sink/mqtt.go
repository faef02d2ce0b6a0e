package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/berfenger/sdm120collector/internal/config"
	"github.com/berfenger/sdm120collector/internal/core/domain"
	"github.com/berfenger/sdm120collector/internal/events"
	"github.com/berfenger/sdm120collector/internal/mqtt"
	"github.com/berfenger/sdm120collector/pkg/eastron_modbus"
)

type MQTTPublisher interface {
	IsConnected() bool
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload any, qos byte, retain bool) error
}

// MQTTSink publishes one JSON state message per meter plus per meter
// availability, and optionally Home Assistant discovery configs.
//
// Every publish first makes sure the broker is connected and that the bridge
// state and discovery configs were published on the current connection, so a
// broker that is down at startup or restarts later is picked up on the next cycle.
type MQTTSink struct {
	client    MQTTPublisher
	cfg       config.MQTTConfig
	topics    mqtt.Topics
	registers eastron_modbus.RegisterMap
	bridge    events.Device
	deviceIDs []uint8
	// bridge state and discovery must be (re)published
	stale atomic.Bool
}

func NewMQTTSink(client MQTTPublisher, cfg config.MQTTConfig, registers eastron_modbus.RegisterMap) *MQTTSink {
	s := &MQTTSink{
		client:    client,
		cfg:       cfg,
		topics:    mqtt.NewTopics(cfg.BaseTopic),
		registers: registers,
		bridge:    events.BridgeDevice(cfg.BaseTopic),
	}
	s.stale.Store(true)
	return s
}

func (s *MQTTSink) Name() string {
	return "mqtt"
}

// ConnectionLost is called from the paho connection lost handler. The broker
// has published the offline will by then.
func (s *MQTTSink) ConnectionLost() {
	s.stale.Store(true)
}

func (s *MQTTSink) Announce(ctx context.Context, deviceIDs []uint8) error {
	s.deviceIDs = deviceIDs
	s.stale.Store(true)
	return s.ensureOnline(ctx)
}

func (s *MQTTSink) PublishReading(ctx context.Context, reading domain.DeviceReading) error {
	if err := s.ensureOnline(ctx); err != nil {
		return err
	}

	availability := s.topics.MeterAvailability(reading.DeviceID)
	if !reading.Ok() {
		return s.publish(ctx, availability, mqtt.MQTT_PAYLOAD_OFFLINE, true)
	}

	payload, err := json.Marshal(events.MeterState(finiteFields(reading.Reading)))
	if err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if err := s.publish(ctx, s.topics.MeterState(reading.DeviceID), payload, false); err != nil {
		return err
	}
	return s.publish(ctx, availability, mqtt.MQTT_PAYLOAD_ONLINE, true)
}

func (s *MQTTSink) PublishCycle(ctx context.Context, info domain.CycleInfo) error {
	if err := s.ensureOnline(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(events.CycleState{
		ReadSuccesses:  info.ReadSuccesses,
		ReadFailures:   info.ReadFailures,
		ElapsedSeconds: info.ElapsedSeconds(),
	})
	if err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	return s.publish(ctx, s.topics.CycleState(), payload, false)
}

func (s *MQTTSink) ensureOnline(ctx context.Context) error {
	if !s.client.IsConnected() {
		if err := s.client.Connect(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		s.stale.Store(true)
	}
	if !s.stale.Load() {
		return nil
	}

	if err := s.publish(ctx, s.topics.BridgeState(), mqtt.MQTT_PAYLOAD_ONLINE, true); err != nil {
		return err
	}
	if s.cfg.HADiscoveryEnable {
		if err := s.publishDiscovery(ctx, s.deviceIDs); err != nil {
			return err
		}
	}
	s.stale.Store(false)
	return nil
}

func (s *MQTTSink) publishDiscovery(ctx context.Context, deviceIDs []uint8) error {
	for _, sensor := range events.BridgeSensors(s.bridge) {
		msg := mqtt.BridgeSensorToHADiscoveryMessage(s.topics, sensor)
		if err := s.publishJSON(ctx, mqtt.HADiscoverySensorTopic(s.cfg.HADiscoveryTopic, sensor), msg); err != nil {
			return err
		}
	}

	for _, id := range deviceIDs {
		meter := events.MeterDevice(s.bridge, s.cfg.BaseTopic, id)
		for _, sensor := range events.MeterSensors(meter, s.registers) {
			msg := mqtt.MeterSensorToHADiscoveryMessage(s.topics, id, sensor)
			if err := s.publishJSON(ctx, mqtt.HADiscoverySensorTopic(s.cfg.HADiscoveryTopic, sensor), msg); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *MQTTSink) publishJSON(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	return s.publish(ctx, topic, payload, true)
}

func (s *MQTTSink) publish(ctx context.Context, topic string, payload any, retain bool) error {
	if err := s.client.Publish(ctx, topic, payload, 0, retain); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", topic, err)
	}
	return nil
}
