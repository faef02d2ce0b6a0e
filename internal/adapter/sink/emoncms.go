package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/berfenger/sdm120collector/internal/config"
	"github.com/berfenger/sdm120collector/internal/core/domain"
	"github.com/berfenger/sdm120collector/pkg/eastron_modbus"

	"github.com/go-resty/resty/v2"
)

const EMONCMS_INPUT_POST_PATH = "input/post"

// EmoncmsSink posts every present reading as one emoncms node named after the
// device id. Absent readings are never posted.
type EmoncmsSink struct {
	client *resty.Client
	apiKey string
	energy []string
}

type emoncmsResponse struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

func NewEmoncmsSink(cfg config.EmoncmsConfig, registers eastron_modbus.RegisterMap) *EmoncmsSink {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.URL, "/")).
		SetTimeout(cfg.Timeout()).
		SetHeader("User-Agent", "sdm120collector")
	return &EmoncmsSink{
		client: client,
		apiKey: cfg.APIKey,
		energy: registers.Energy,
	}
}

func (s *EmoncmsSink) Name() string {
	return "emoncms"
}

func (s *EmoncmsSink) Announce(ctx context.Context, deviceIDs []uint8) error {
	return nil
}

func (s *EmoncmsSink) PublishReading(ctx context.Context, reading domain.DeviceReading) error {
	if !reading.Ok() {
		return nil
	}

	fullJSON, err := json.Marshal(s.fields(reading.Reading))
	if err != nil {
		return fmt.Errorf("emoncms: %w", err)
	}

	var body emoncmsResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"node":     strconv.Itoa(int(reading.DeviceID)),
			"fulljson": string(fullJSON),
			"apikey":   s.apiKey,
		}).
		SetResult(&body).
		Post(EMONCMS_INPUT_POST_PATH)
	if err != nil {
		return fmt.Errorf("emoncms: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("emoncms: unexpected status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	if body.Success != nil && !*body.Success {
		return fmt.Errorf("emoncms: rejected: %s", body.Message)
	}
	return nil
}

func (s *EmoncmsSink) PublishCycle(ctx context.Context, info domain.CycleInfo) error {
	return nil
}

// fields adds a kWh copy of every energy register next to the Wh value.
// Non-finite values are dropped.
func (s *EmoncmsSink) fields(reading eastron_modbus.Reading) map[string]float64 {
	fields := finiteFields(reading)
	for _, name := range s.energy {
		if v, ok := fields[name]; ok {
			fields[strings.TrimSuffix(name, "_wh")+"_kwh"] = v / 1000
		}
	}
	return fields
}
