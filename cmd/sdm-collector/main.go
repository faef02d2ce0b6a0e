package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/berfenger/sdm120collector/internal/adapter/sink"
	"github.com/berfenger/sdm120collector/internal/config"
	"github.com/berfenger/sdm120collector/internal/core/port"
	"github.com/berfenger/sdm120collector/internal/core/service"
	"github.com/berfenger/sdm120collector/internal/mqtt"
	"github.com/berfenger/sdm120collector/internal/server"
	"github.com/berfenger/sdm120collector/pkg/eastron_modbus"

	"github.com/carlmjohnson/versioninfo"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	_ "github.com/joho/godotenv/autoload"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{TimeFormat: time.DateTime})))

	fs := pflag.NewFlagSet("sdm-collector", pflag.ContinueOnError)
	defineFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if showVersion, _ := fs.GetBool("version"); showVersion {
		fmt.Println(versioninfo.Short())
		return 0
	}

	// load and print config
	cfg, err := initConfig(viper.New(), fs)
	if err != nil {
		slog.Error("config errors", "error", err)
		return 1
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := collect(ctx, cfg, logger); err != nil {
		logger.Error("collector stopped", zap.Error(err))
		return 1
	}
	return 0
}

func collect(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	instrument, err := sink.ModbusRequestInstrument(registry)
	if err != nil {
		return err
	}

	master, err := eastron_modbus.CreateRTUMaster(cfg.Modbus.SerialConfig(), logger, instrument)
	if err != nil {
		return err
	}
	if err := master.Open(); err != nil {
		return fmt.Errorf("open %s: %w", cfg.Modbus.Device, err)
	}
	defer master.Close()

	reader, err := eastron_modbus.CreateSDM120Reader()
	if err != nil {
		return err
	}

	sinks, closeSinks, err := buildSinks(cfg, reader.RegisterMap(), registry, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	health := &service.HealthState{}
	collector, err := service.NewCollector(service.CollectorConfig{
		DeviceIDs: cfg.Collector.DeviceIDs(),
		Attempts:  cfg.Collector.Attempts,
	}, master, reader, sinks, health, logger)
	if err != nil {
		return err
	}

	if cfg.Port > 0 {
		apiServer := server.NewServer(*cfg, health, registry)
		go func() {
			if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", zap.Error(err))
			}
		}()
		defer gracefulShutdown(apiServer, logger)
	}

	return collector.Loop(ctx, cfg.Collector.Delay(), cfg.Collector.OneShot)
}

func buildSinks(cfg *config.Config, registers eastron_modbus.RegisterMap, registry prometheus.Registerer,
	logger *zap.Logger) ([]port.Sink, func(), error) {

	var sinks []port.Sink
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.DumpData {
		sinks = append(sinks, sink.NewConsoleSink(os.Stdout, registers))
	}

	if cfg.Redis.Enabled() {
		pool := sink.NewRedisPool(cfg.Redis)
		closers = append(closers, func() { pool.Close() })
		sinks = append(sinks, sink.NewRedisSink(cfg.Redis.Prefix, pool))
	}

	if cfg.Emoncms.Enabled() {
		sinks = append(sinks, sink.NewEmoncmsSink(cfg.Emoncms, registers))
	}

	if cfg.MQTT.Enabled() {
		mqttLogger := logger.With(zap.String("component", "mqtt"))
		var mqttSink *sink.MQTTSink
		client := mqtt.CreateMQTTClient(cfg.MQTT, mqtt.OptsFromConfig(cfg.MQTT), func(_ pahomqtt.Client) {
			mqttLogger.Info("connected")
		}, func(_ pahomqtt.Client, err error) {
			mqttLogger.Warn("connection lost", zap.Error(err))
			if mqttSink != nil {
				mqttSink.ConnectionLost()
			}
		}, 10*time.Second)
		closers = append(closers, func() {
			// the bridge goes offline with a clean disconnect too
			_ = client.Publish(context.Background(), client.Topics().BridgeState(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true)
			client.Disconnect(500 * time.Millisecond)
		})
		mqttSink = sink.NewMQTTSink(client, cfg.MQTT, registers)
		sinks = append(sinks, mqttSink)
	}

	if cfg.Port > 0 {
		metrics, err := sink.NewMetricsSink(registry)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, metrics)
	}

	for _, s := range sinks {
		logger.Info("sink enabled", zap.String("sink", s.Name()))
	}
	return sinks, closeAll, nil
}

func gracefulShutdown(apiServer *http.Server, logger *zap.Logger) {
	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
}
