package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/berfenger/sdm120collector/pkg/eastron_modbus"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE        = "bridge"
	SENSOR_ID_CYCLE_READ_FAILURES = "cycle_read_failures"
	SENSOR_ID_CYCLE_ELAPSED       = "cycle_elapsed"
	STATE_CLASS_MEASUREMENT       = "measurement"
	STATE_CLASS_TOTAL_INCREASING  = "total_increasing"
	DEVICE_CLASS_APPARENT_POWER   = "apparent_power"
	DEVICE_CLASS_CURRENT          = "current"
	DEVICE_CLASS_DURATION         = "duration"
	DEVICE_CLASS_ENERGY           = "energy"
	DEVICE_CLASS_FREQUENCY        = "frequency"
	DEVICE_CLASS_POWER            = "power"
	DEVICE_CLASS_POWER_FACTOR     = "power_factor"
	DEVICE_CLASS_REACTIVE_POWER   = "reactive_power"
	DEVICE_CLASS_VOLTAGE          = "voltage"
	DEVICE_CLASS_CONNECTIVITY     = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC       = "diagnostic"
	SENSOR_TYPE_SENSOR            = "sensor"
	SENSOR_TYPE_BINARY            = "binary_sensor"
)

type measurementInfo struct {
	name        string
	unit        string
	stateClass  string
	deviceClass string
	icon        string
	enabled     *bool
}

var sdm120Measurements = map[string]measurementInfo{
	eastron_modbus.VOLTAGE_VOLTS: {
		name: "Voltage", unit: "V", stateClass: STATE_CLASS_MEASUREMENT, deviceClass: DEVICE_CLASS_VOLTAGE,
	},
	eastron_modbus.CURRENT_AMPS: {
		name: "Current", unit: "A", stateClass: STATE_CLASS_MEASUREMENT, deviceClass: DEVICE_CLASS_CURRENT,
	},
	eastron_modbus.POWER_WATTS: {
		name: "Power", unit: "W", stateClass: STATE_CLASS_MEASUREMENT, deviceClass: DEVICE_CLASS_POWER,
	},
	eastron_modbus.ACTIVE_APPARENT_POWER_VA: {
		name: "Apparent power", unit: "VA", stateClass: STATE_CLASS_MEASUREMENT,
		deviceClass: DEVICE_CLASS_APPARENT_POWER, enabled: optionalBool(false),
	},
	eastron_modbus.REACTIVE_APPARENT_POWER_VAR: {
		name: "Reactive power", unit: "var", stateClass: STATE_CLASS_MEASUREMENT,
		deviceClass: DEVICE_CLASS_REACTIVE_POWER, enabled: optionalBool(false),
	},
	eastron_modbus.POWER_FACTOR: {
		name: "Power factor", stateClass: STATE_CLASS_MEASUREMENT, deviceClass: DEVICE_CLASS_POWER_FACTOR,
		enabled: optionalBool(false),
	},
	eastron_modbus.FREQUENCY_HZ: {
		name: "Frequency", unit: "Hz", stateClass: STATE_CLASS_MEASUREMENT, deviceClass: DEVICE_CLASS_FREQUENCY,
		icon: "mdi:sine-wave",
	},
	eastron_modbus.IMPORT_ACTIVE_ENERGY_WH: {
		name: "Import energy", unit: "Wh", stateClass: STATE_CLASS_TOTAL_INCREASING, deviceClass: DEVICE_CLASS_ENERGY,
	},
	eastron_modbus.EXPORT_ACTIVE_ENERGY_WH: {
		name: "Export energy", unit: "Wh", stateClass: STATE_CLASS_TOTAL_INCREASING, deviceClass: DEVICE_CLASS_ENERGY,
	},
	eastron_modbus.TOTAL_ACTIVE_ENERGY_WH: {
		name: "Total energy", unit: "Wh", stateClass: STATE_CLASS_TOTAL_INCREASING, deviceClass: DEVICE_CLASS_ENERGY,
	},
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("sdm120collector_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "sdm120collector",
		Model:        "SDM120 collector",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("SDM120 collector %s", md5HashShort(baseTopic)),
	}
}

// MeterDevice identifies a meter by bus address. The SDM120 exposes no serial
// number over Modbus, so the id is scoped by the bridge base topic.
func MeterDevice(bridge Device, baseTopic string, deviceID uint8) Device {
	return Device{
		Id:           fmt.Sprintf("sdm120_%s_%d", md5HashShort(baseTopic), deviceID),
		Manufacturer: "Eastron",
		Model:        "SDM120",
		Name:         fmt.Sprintf("SDM120 %d", deviceID),
		ViaDevice:    bridge.Id,
	}
}

// MeterSensors returns one sensor per register, in register map order.
func MeterSensors(meterDevice Device, registers eastron_modbus.RegisterMap) []GenericSensor {

	var sensors []GenericSensor

	for _, name := range registers.Names() {
		info, ok := sdm120Measurements[name]
		if !ok {
			info = measurementInfo{name: name, stateClass: STATE_CLASS_MEASUREMENT}
		}
		sensors = append(sensors, GenericSensor{
			Device:            meterDevice,
			Id:                name,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              info.name,
			StateClass:        info.stateClass,
			DeviceClass:       info.deviceClass,
			UnitOfMeasurement: info.unit,
			Icon:              info.icon,
			EnabledByDefault:  info.enabled,
			UniqueId:          uniqueId(meterDevice.Id, name),
			ValueKey:          name,
		})
	}

	return sensors
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Connection state
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	// Failed reads in the last cycle
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_CYCLE_READ_FAILURES,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Read failures",
		StateClass:     STATE_CLASS_MEASUREMENT,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		Icon:           "mdi:alert-circle-outline",
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_CYCLE_READ_FAILURES),
		ValueKey:       "read_failures",
	})

	// Cycle duration
	sensors = append(sensors, GenericSensor{
		Device:            bridgeDevice,
		Id:                SENSOR_ID_CYCLE_ELAPSED,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Cycle duration",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_DURATION,
		UnitOfMeasurement: "s",
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:          uniqueId(bridgeDevice.Id, SENSOR_ID_CYCLE_ELAPSED),
		ValueKey:          "elapsed_seconds",
	})

	return sensors
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
