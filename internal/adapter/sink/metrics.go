package sink

import (
	"context"
	"strconv"
	"time"

	"github.com/berfenger/sdm120collector/internal/core/domain"
	"github.com/berfenger/sdm120collector/pkg/eastron_modbus"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	METRIC_RESULT_SUCCESS = "success"
	METRIC_RESULT_FAILURE = "failure"
)

// MetricsSink exposes the latest measurements and read counters to Prometheus.
type MetricsSink struct {
	reads         *prometheus.CounterVec
	attempts      *prometheus.CounterVec
	measurement   *prometheus.GaugeVec
	lastRead      *prometheus.GaugeVec
	cycleDuration prometheus.Histogram
	cycleReads    *prometheus.CounterVec
}

func NewMetricsSink(reg prometheus.Registerer) (*MetricsSink, error) {
	s := &MetricsSink{
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sdm_reads_total",
			Help: "Device reads by outcome, after retries.",
		}, []string{"device", "result"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sdm_read_attempts_total",
			Help: "Read attempts issued per device.",
		}, []string{"device"}),
		measurement: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sdm_measurement",
			Help: "Last value read from a meter register.",
		}, []string{"device", "name"}),
		lastRead: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sdm_last_read_timestamp_seconds",
			Help: "Unix time of the last successful read.",
		}, []string{"device"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sdm_cycle_duration_seconds",
			Help:    "Wall clock time of one polling pass over all devices.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		cycleReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sdm_cycle_reads_total",
			Help: "Device reads summed over cycles, by outcome.",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{s.reads, s.attempts, s.measurement, s.lastRead, s.cycleDuration, s.cycleReads} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ModbusRequestInstrument times every request issued on the bus.
func ModbusRequestInstrument(reg prometheus.Registerer) (*eastron_modbus.ModbusInstrument, error) {
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sdm_modbus_request_duration_seconds",
		Help:    "Modbus RTU request latency, including failed requests.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"fn"})
	if err := reg.Register(latency); err != nil {
		return nil, err
	}
	return &eastron_modbus.ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			latency.WithLabelValues(fnName).Observe(readTime.Seconds())
		},
	}, nil
}

func (s *MetricsSink) Name() string {
	return "metrics"
}

func (s *MetricsSink) Announce(ctx context.Context, deviceIDs []uint8) error {
	// expose zero counters for every device from the start
	for _, id := range deviceIDs {
		device := strconv.Itoa(int(id))
		s.reads.WithLabelValues(device, METRIC_RESULT_SUCCESS)
		s.reads.WithLabelValues(device, METRIC_RESULT_FAILURE)
		s.attempts.WithLabelValues(device)
	}
	return nil
}

func (s *MetricsSink) PublishReading(ctx context.Context, reading domain.DeviceReading) error {
	device := strconv.Itoa(int(reading.DeviceID))
	s.attempts.WithLabelValues(device).Add(float64(reading.Attempts))

	if !reading.Ok() {
		s.reads.WithLabelValues(device, METRIC_RESULT_FAILURE).Inc()
		return nil
	}

	s.reads.WithLabelValues(device, METRIC_RESULT_SUCCESS).Inc()
	for name, value := range reading.Reading {
		s.measurement.WithLabelValues(device, name).Set(value)
	}
	s.lastRead.WithLabelValues(device).Set(float64(reading.At.Unix()))
	return nil
}

func (s *MetricsSink) PublishCycle(ctx context.Context, info domain.CycleInfo) error {
	s.cycleDuration.Observe(info.ElapsedSeconds())
	s.cycleReads.WithLabelValues(METRIC_RESULT_SUCCESS).Add(float64(info.ReadSuccesses))
	s.cycleReads.WithLabelValues(METRIC_RESULT_FAILURE).Add(float64(info.ReadFailures))
	return nil
}
