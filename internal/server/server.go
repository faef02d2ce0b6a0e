package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/sdm120collector/internal/config"
	"github.com/berfenger/sdm120collector/internal/core/service"

	"github.com/prometheus/client_golang/prometheus"
)

type Server struct {
	port     uint
	httpLog  bool
	health   *service.HealthState
	gatherer prometheus.Gatherer
}

func NewServer(cfg config.Config, health *service.HealthState, gatherer prometheus.Gatherer) *http.Server {
	NewServer := &Server{
		port:     cfg.Port,
		httpLog:  cfg.HttpLog,
		health:   health,
		gatherer: gatherer,
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
