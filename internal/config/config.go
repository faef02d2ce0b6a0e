package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/berfenger/sdm120collector/pkg/eastron_modbus"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	MIN_DEVICE_ID = 1
	MAX_DEVICE_ID = 247
)

var BAUDRATE_CHOICES = []uint{1200, 2400, 4800, 9600}

type Config struct {
	LogLevel  zapcore.Level
	Verbosity int             `mapstructure:"verbosity"`
	Modbus    ModbusConfig    `mapstructure:"modbus"`
	Collector CollectorConfig `mapstructure:"collector"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Emoncms   EmoncmsConfig   `mapstructure:"emoncms"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Port      uint            `mapstructure:"port"`
	HttpLog   bool            `mapstructure:"http_log"`
	DumpData  bool            `mapstructure:"dump_data"`
}

type ModbusConfig struct {
	Device         string
	BaudRate       uint    `mapstructure:"baudrate"`
	DataBits       uint    `mapstructure:"data_bits"`
	Parity         string  `mapstructure:"parity"`
	StopBits       uint    `mapstructure:"stop_bits"`
	TimeoutSeconds float64 `mapstructure:"timeout"`
}

type CollectorConfig struct {
	Devices      []int   `mapstructure:"devices"`
	Attempts     int     `mapstructure:"attempts"`
	DelaySeconds float64 `mapstructure:"delay"`
	OneShot      bool    `mapstructure:"one_shot"`
}

type RedisConfig struct {
	Host     string
	Port     int
	DB       int `mapstructure:"db"`
	Password string
	Prefix   string
}

type EmoncmsConfig struct {
	URL            string  `mapstructure:"url"`
	APIKey         string  `mapstructure:"api_key"`
	TimeoutSeconds float64 `mapstructure:"timeout"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

// ConfigurationError is a fatal startup error naming the offending key.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config param %s %s", e.Key, e.Reason)
}

func configErr(key, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Key: key, Reason: fmt.Sprintf(format, args...)}
}

func (c ModbusConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

func (c ModbusConfig) SerialConfig() eastron_modbus.SerialConfig {
	return eastron_modbus.SerialConfig{
		Device:   c.Device,
		Speed:    c.BaudRate,
		DataBits: c.DataBits,
		Parity:   c.Parity,
		StopBits: c.StopBits,
		Timeout:  c.Timeout(),
	}
}

func (c CollectorConfig) Delay() time.Duration {
	return time.Duration(c.DelaySeconds * float64(time.Second))
}

// DeviceIDs must only be called on a validated config.
func (c CollectorConfig) DeviceIDs() []uint8 {
	ids := make([]uint8, len(c.Devices))
	for i, id := range c.Devices {
		ids[i] = uint8(id)
	}
	return ids
}

func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

func (c RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c EmoncmsConfig) Enabled() bool {
	return c.URL != ""
}

func (c EmoncmsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

func (c MQTTConfig) Enabled() bool {
	return c.Host != ""
}

// Validate checks bounds and normalizes MQTT topics in place.
func (cfg *Config) Validate() error {
	if cfg.Modbus.Device == "" {
		return configErr("modbus.device", "must not be empty")
	}
	if !validBaudRate(cfg.Modbus.BaudRate) {
		return configErr("modbus.baudrate", "must be one of %v, got %d", BAUDRATE_CHOICES, cfg.Modbus.BaudRate)
	}
	if _, err := eastron_modbus.ParseParity(cfg.Modbus.Parity); err != nil {
		return configErr("modbus.parity", "%s", err)
	}
	if cfg.Modbus.TimeoutSeconds <= 0 {
		return configErr("modbus.timeout", "should be > 0")
	}

	if len(cfg.Collector.Devices) == 0 {
		return configErr("collector.devices", "must list at least one device id")
	}
	for _, id := range cfg.Collector.Devices {
		if id < MIN_DEVICE_ID || id > MAX_DEVICE_ID {
			return configErr("collector.devices", "id %d out of range %d..%d", id, MIN_DEVICE_ID, MAX_DEVICE_ID)
		}
	}
	if cfg.Collector.Attempts < 1 {
		return configErr("collector.attempts", "should be >= 1")
	}
	if cfg.Collector.DelaySeconds < 0 {
		return configErr("collector.delay", "should be >= 0")
	}

	if cfg.Redis.Enabled() && cfg.Redis.Prefix == "" {
		return configErr("redis.prefix", "must not be empty")
	}
	if cfg.Emoncms.Enabled() && cfg.Emoncms.TimeoutSeconds <= 0 {
		return configErr("emoncms.timeout", "should be > 0")
	}

	if cfg.MQTT.Enabled() {
		baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
		if err != nil {
			return configErr("mqtt.base_topic", "%s", err)
		}
		cfg.MQTT.BaseTopic = baseTopic

		hadTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
		if err != nil {
			return configErr("mqtt.ha_discovery_topic", "%s", err)
		}
		cfg.MQTT.HADiscoveryTopic = hadTopic
	}
	return nil
}

func validBaudRate(rate uint) bool {
	for _, b := range BAUDRATE_CHOICES {
		if b == rate {
			return true
		}
	}
	return false
}

// ParseLogLevel maps the log_level setting. Each -v raises it one step, down to debug.
func ParseLogLevel(level string, verbosity int) zapcore.Level {
	var l zapcore.Level
	switch level {
	case "trace", "debug":
		l = zap.DebugLevel
	case "info":
		l = zap.InfoLevel
	case "error":
		l = zap.ErrorLevel
	case "warn":
		l = zap.WarnLevel
	case "fatal":
		l = zap.FatalLevel
	default:
		l = zap.InfoLevel
	}
	for ; verbosity > 0 && l > zap.DebugLevel; verbosity-- {
		l--
	}
	return l
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	if !baseTopicRegexp.MatchString(lowerBaseTopic) {
		return "", fmt.Errorf("invalid topic %q. can only contain letters, numbers and underscores", baseTopic)
	}
	return lowerBaseTopic, nil
}
