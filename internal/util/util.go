package util

import (
	"github.com/berfenger/sdm120collector/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Modbus: config.ModbusConfig{
			Device:         "/dev/ttyUSB0",
			BaudRate:       2400,
			DataBits:       8,
			Parity:         "none",
			StopBits:       1,
			TimeoutSeconds: 1,
		},
		Collector: config.CollectorConfig{
			Devices:  []int{1},
			Attempts: 1,
		},
		Redis: config.RedisConfig{
			Port:   6379,
			Prefix: "sdm120",
		},
		Emoncms: config.EmoncmsConfig{
			TimeoutSeconds: 5,
		},
		MQTT: config.MQTTConfig{
			Port:             1883,
			BaseTopic:        "sdm120collector",
			HADiscoveryTopic: "homeassistant",
		},
		Port: 8080,
	}
}
