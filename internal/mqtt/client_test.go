package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/berfenger/sdm120collector/internal/config"
	"github.com/berfenger/sdm120collector/internal/events"
	"github.com/berfenger/sdm120collector/pkg/eastron_modbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopics(t *testing.T) {

	assert := assert.New(t)

	topics := NewTopics("loremTopic")

	assert.Equal("loremTopic/bridge/state", topics.BridgeState())
	assert.Equal("loremTopic/bridge/cycle", topics.CycleState())
	assert.Equal("loremTopic/sdm120/12/state", topics.MeterState(12))
	assert.Equal("loremTopic/sdm120/12/availability", topics.MeterAvailability(12))
}

func TestOptsFromConfigSetsLastWill(t *testing.T) {

	assert := assert.New(t)

	opts := OptsFromConfig(config.MQTTConfig{Host: "broker", Port: 1883, BaseTopic: "meters"})

	assert.True(opts.WillEnabled)
	assert.True(opts.WillRetained)
	assert.Equal("meters/bridge/state", opts.WillTopic)
	assert.True(opts.AutoReconnect)
	assert.Equal(5*time.Second, opts.ConnectTimeout)
	assert.Equal([]byte(MQTT_PAYLOAD_OFFLINE), opts.WillPayload)
	require.Len(t, opts.Servers, 1)
	assert.Equal("tcp://broker:1883", opts.Servers[0].String())
}

func TestMeterSensorDiscoveryMessage(t *testing.T) {

	assert := assert.New(t)

	topics := NewTopics("meters")
	bridge := events.BridgeDevice("meters")
	meter := events.MeterDevice(bridge, "meters", 5)
	sensors := events.MeterSensors(meter, eastron_modbus.SDM120)

	msg := MeterSensorToHADiscoveryMessage(topics, 5, sensors[0])

	assert.Equal("meters/sdm120/5/state", msg.StateTopic)
	assert.Equal("meters/sdm120/5/availability", msg.AvTopic)
	assert.Equal("{{ value_json.voltage_volts }}", msg.ValueTemplate)
	assert.Equal("V", msg.UnitOfMeasurement)
	assert.Equal([]string{meter.Id}, msg.Device.Id)
	assert.Equal(bridge.Id, msg.Device.ViaDevice)

	assert.Equal("homeassistant/sensor/"+meter.Id+"/voltage_volts/config",
		HADiscoverySensorTopic("homeassistant", sensors[0]))

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.NotContains(string(raw), "payload_on")
}

func TestBridgeSensorDiscoveryMessages(t *testing.T) {

	assert := assert.New(t)

	topics := NewTopics("meters")
	sensors := events.BridgeSensors(events.BridgeDevice("meters"))

	state := BridgeSensorToHADiscoveryMessage(topics, sensors[0])
	assert.Equal("meters/bridge/state", state.StateTopic)
	assert.Equal(MQTT_PAYLOAD_ONLINE, state.PayloadOn)
	assert.Equal(MQTT_PAYLOAD_OFFLINE, state.PayloadOff)
	assert.Empty(state.ValueTemplate)

	failures := BridgeSensorToHADiscoveryMessage(topics, sensors[1])
	assert.Equal("meters/bridge/cycle", failures.StateTopic)
	assert.Equal("{{ value_json.read_failures }}", failures.ValueTemplate)
}
