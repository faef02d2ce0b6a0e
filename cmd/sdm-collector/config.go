package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/berfenger/sdm120collector/internal/config"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DEFAULT_DEVICE   = "/dev/ttyUSB0"
	DEFAULT_BAUDRATE = 2400
	DEFAULT_TIMEOUT  = 1.0
	DEFAULT_ATTEMPTS = 1
	DEFAULT_DELAY    = 0.0
)

var DEFAULT_DEVICES = []int{1}

// flag name => config key
var flagKeys = map[string]string{
	"device":          "modbus.device",
	"baudrate":        "modbus.baudrate",
	"parity":          "modbus.parity",
	"timeout":         "modbus.timeout",
	"devices":         "collector.devices",
	"attempts":        "collector.attempts",
	"delay":           "collector.delay",
	"one-shot":        "collector.one_shot",
	"dump-data":       "dump_data",
	"verbosity":       "verbosity",
	"port":            "port",
	"redis-host":      "redis.host",
	"redis-port":      "redis.port",
	"redis-db":        "redis.db",
	"redis-prefix":    "redis.prefix",
	"emoncms-url":     "emoncms.url",
	"emoncms-api-key": "emoncms.api_key",
	"emoncms-timeout": "emoncms.timeout",
	"mqtt-host":       "mqtt.host",
	"mqtt-port":       "mqtt.port",
}

func defineFlags(fs *pflag.FlagSet) {
	fs.String("device", DEFAULT_DEVICE, "Serial device")
	fs.IntSlice("devices", DEFAULT_DEVICES, "Device id list, comma separated")
	fs.Uint("baudrate", DEFAULT_BAUDRATE, "Baudrate (1200, 2400, 4800, 9600)")
	fs.String("parity", "none", "Serial parity (none, even, odd)")
	fs.Float64("timeout", DEFAULT_TIMEOUT, "Timeout in seconds")
	fs.Int("attempts", DEFAULT_ATTEMPTS, "Read attempts per device")
	fs.Float64("delay", DEFAULT_DELAY, "Polling delay in seconds")
	fs.Bool("dump-data", false, "Print collected data on standard output")
	fs.Bool("one-shot", false, "Collect data one time and exit")
	fs.CountP("verbosity", "v", "Increase output verbosity")
	fs.Uint("port", 0, "Health and metrics HTTP port (0 disables the server)")
	fs.String("redis-host", "", "Redis host (empty disables the Redis sink)")
	fs.Int("redis-port", 6379, "Redis port")
	fs.Int("redis-db", 0, "Redis database")
	fs.String("redis-prefix", "sdm120", "Redis key prefix")
	fs.String("emoncms-url", "", "Emoncms base URL (empty disables the emoncms sink)")
	fs.String("emoncms-api-key", "", "Emoncms write API key")
	fs.Float64("emoncms-timeout", 5, "Emoncms request timeout in seconds")
	fs.String("mqtt-host", "", "MQTT broker host (empty disables the MQTT sink)")
	fs.Int("mqtt-port", 1883, "MQTT broker port")
	fs.String("config", "", "YAML config file")
	fs.Bool("version", false, "Print version and exit")
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "warn")
	v.SetDefault("verbosity", 0)
	v.SetDefault("modbus.device", DEFAULT_DEVICE)
	v.SetDefault("modbus.baudrate", DEFAULT_BAUDRATE)
	v.SetDefault("modbus.data_bits", 8)
	v.SetDefault("modbus.parity", "none")
	v.SetDefault("modbus.stop_bits", 1)
	v.SetDefault("modbus.timeout", DEFAULT_TIMEOUT)
	v.SetDefault("collector.devices", DEFAULT_DEVICES)
	v.SetDefault("collector.attempts", DEFAULT_ATTEMPTS)
	v.SetDefault("collector.delay", DEFAULT_DELAY)
	v.SetDefault("collector.one_shot", false)
	v.SetDefault("dump_data", false)
	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.prefix", "sdm120")
	v.SetDefault("emoncms.url", "")
	v.SetDefault("emoncms.api_key", "")
	v.SetDefault("emoncms.timeout", 5)
	v.SetDefault("mqtt.host", "")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.base_topic", "sdm120collector")
	v.SetDefault("mqtt.ha_discovery_enable", false)
	v.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	v.SetDefault("port", 0)
	v.SetDefault("http_log", false)
}

// initConfig resolves flags > environment (SDM_*) > config file > defaults.
func initConfig(v *viper.Viper, fs *pflag.FlagSet) (*config.Config, error) {

	// alias PORT => SDM_PORT
	if port := os.Getenv("PORT"); port != "" && os.Getenv("SDM_PORT") == "" {
		os.Setenv("SDM_PORT", port)
	}

	setConfigDefaults(v)

	v.SetEnvPrefix("sdm")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, err
		}
	}

	// if defined, try to load config from yaml file
	cfgFile, _ := fs.GetString("config")
	if cfgFile == "" {
		cfgFile = os.Getenv("CONFIG_FILE")
	}
	if cfgFile != "" {
		slog.Info("Using config", "file", cfgFile)
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, &config.ConfigurationError{Key: "config", Reason: err.Error()}
		}
	}

	var cfg config.Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.LogLevel = config.ParseLogLevel(v.GetString("log_level"), cfg.Verbosity)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Redis.Password = "*redacted*"
	cfg.Emoncms.APIKey = "*redacted*"
	slog.Info("Using", "config", cfg)
}
