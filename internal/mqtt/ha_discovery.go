package mqtt

import (
	"fmt"

	"github.com/berfenger/sdm120collector/internal/events"
)

type HADiscoveryConfig struct {
	Device            HADiscoveryDevice `json:"device"`
	StateTopic        string            `json:"state_topic"`
	ValueTemplate     string            `json:"value_template,omitempty"`
	StateClass        string            `json:"state_class,omitempty"`
	DeviceClass       string            `json:"device_class,omitempty"`
	UnitOfMeasurement string            `json:"unit_of_measurement,omitempty"`
	AvTopic           string            `json:"availability_topic,omitempty"`
	EntityCategory    string            `json:"entity_category,omitempty"`
	Name              string            `json:"name"`
	UniqueId          string            `json:"unique_id"`
	Platform          string            `json:"platform"`
	EnabledByDefault  *bool             `json:"enabled_by_default,omitempty"`
	PayloadOn         string            `json:"payload_on,omitempty"`
	PayloadOff        string            `json:"payload_off,omitempty"`
	Icon              string            `json:"icon,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

func HADiscoverySensorTopic(discoveryTopic string, sensor events.GenericSensor) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", discoveryTopic, sensor.SensorType, sensor.Device.Id, sensor.Id)
}

// MeterSensorToHADiscoveryMessage maps one measurement of a meter onto the
// meter's JSON state topic.
func MeterSensorToHADiscoveryMessage(topics Topics, deviceID uint8, sensor events.GenericSensor) HADiscoveryConfig {
	disConfig := baseDiscoveryMessage(sensor)
	disConfig.StateTopic = topics.MeterState(deviceID)
	disConfig.AvTopic = topics.MeterAvailability(deviceID)
	disConfig.ValueTemplate = valueTemplate(sensor.ValueKey)
	return disConfig
}

func BridgeSensorToHADiscoveryMessage(topics Topics, sensor events.GenericSensor) HADiscoveryConfig {
	disConfig := baseDiscoveryMessage(sensor)
	disConfig.AvTopic = topics.BridgeState()
	if sensor.Id == events.SENSOR_ID_BRIDGE_STATE {
		disConfig.StateTopic = topics.BridgeState()
		disConfig.PayloadOn = MQTT_PAYLOAD_ONLINE
		disConfig.PayloadOff = MQTT_PAYLOAD_OFFLINE
	} else {
		disConfig.StateTopic = topics.CycleState()
		disConfig.ValueTemplate = valueTemplate(sensor.ValueKey)
	}
	return disConfig
}

func baseDiscoveryMessage(sensor events.GenericSensor) HADiscoveryConfig {
	return HADiscoveryConfig{
		Device:            device(sensor.Device),
		StateClass:        sensor.StateClass,
		DeviceClass:       sensor.DeviceClass,
		UnitOfMeasurement: sensor.UnitOfMeasurement,
		EntityCategory:    sensor.EntityCategory,
		Name:              sensor.Name,
		UniqueId:          sensor.UniqueId,
		Icon:              sensor.Icon,
		EnabledByDefault:  sensor.EnabledByDefault,
		Platform:          "mqtt",
	}
}

func valueTemplate(key string) string {
	if key == "" {
		return ""
	}
	return fmt.Sprintf("{{ value_json.%s }}", key)
}

func device(d events.Device) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:           []string{d.Id},
		Manufacturer: d.Manufacturer,
		Version:      d.Version,
		Model:        d.Model,
		Name:         d.Name,
		ViaDevice:    d.ViaDevice,
	}
}
