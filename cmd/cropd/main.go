/*
Copyright © 2025 Cropd Authors.

Released under MIT license.
*/

package main

import (
	"fmt"
	golog "log"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acronis/go-appkit/config"
	"github.com/acronis/go-appkit/httpserver"
	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/service"

	"github.com/imagetools/cropd/internal/httpapi"
	"github.com/imagetools/cropd/internal/pipeline"
)

const (
	errDomain        = "Cropd"
	serviceNameInURL = "cropd"
	envVarsPrefix    = "cropd"
	configFilePath   = "config.yml"
)

func main() {
	if err := runApp(); err != nil {
		golog.Fatal(err)
	}
}

func runApp() error {
	cfg, err := loadAppConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, loggerClose := log.NewLogger(cfg.Log)
	defer loggerClose()

	pl, err := pipeline.New(cfg.Pipeline, httpapi.NewTransformHandler(errDomain), errDomain, logger)
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	httpSrv, err := httpserver.New(cfg.Server, logger, httpserver.Opts{
		ServiceNameInURL: serviceNameInURL,
		ErrorDomain:      errDomain,
		APIRoutes: map[httpserver.APIVersion]httpserver.APIRoute{
			1: func(router chi.Router) {
				router.Handle("/transform", pl.Handler())
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create HTTP server: %w", err)
	}

	serviceUnits := []service.Unit{
		pipeline.NewServerUnit(pl, httpSrv, logger),
		httpserver.NewWithHandler(cfg.MetricsServer, logger, promhttp.Handler()),
	}

	return service.New(logger, service.NewCompositeUnit(serviceUnits...)).Start()
}

func loadAppConfig() (*AppConfig, error) {
	cfgLoader := config.NewDefaultLoader(envVarsPrefix)
	cfg := NewAppConfig()
	err := cfgLoader.LoadFromFile(configFilePath, config.DataTypeYAML, cfg)
	return cfg, err
}

// AppConfig is the aggregated configuration of all service components.
type AppConfig struct {
	Server        *httpserver.Config
	MetricsServer *httpserver.Config
	Log           *log.Config
	Pipeline      *pipeline.Config
}

// NewAppConfig creates a new AppConfig.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Server:        httpserver.NewConfig(),
		MetricsServer: httpserver.NewConfig(httpserver.WithKeyPrefix("metricsServer")),
		Log:           log.NewConfig(),
		Pipeline:      pipeline.NewConfig(),
	}
}

// SetProviderDefaults implements config.Config.
func (c *AppConfig) SetProviderDefaults(dp config.DataProvider) {
	config.CallSetProviderDefaultsForFields(c, dp)
}

// Set implements config.Config.
func (c *AppConfig) Set(dp config.DataProvider) error {
	return config.CallSetForFields(c, dp)
}
