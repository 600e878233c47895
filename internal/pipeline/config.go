/*
Copyright © 2025 Cropd Authors.

Released under MIT license.
*/

package pipeline

import (
	"fmt"
	"time"

	"github.com/acronis/go-appkit/config"
)

const cfgDefaultKeyPrefix = "pipeline"

const (
	cfgKeyQueueLimit          = "queue.limit"
	cfgKeyQueueStaleAfter     = "queue.staleAfter"
	cfgKeyQueueSweepInterval  = "queue.sweepInterval"
	cfgKeyWorkerMaxConcurrent = "worker.maxConcurrent"
	cfgKeyWorkerTaskTimeout   = "worker.taskTimeout"
)

// Default configuration values.
const (
	DefaultQueueLimit          = 50
	DefaultQueueStaleAfter     = time.Second
	DefaultQueueSweepInterval  = time.Second
	DefaultWorkerMaxConcurrent = 50
	DefaultWorkerTaskTimeout   = time.Second
)

// Config represents a set of configuration parameters for the admission pipeline.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	Queue  QueueConfig  `mapstructure:"queue" yaml:"queue" json:"queue"`
	Worker WorkerConfig `mapstructure:"worker" yaml:"worker" json:"worker"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// QueueConfig represents configuration parameters of the pending queue.
type QueueConfig struct {
	// Limit is the maximum number of requests waiting in the queue.
	// A request admitted while the queue is at the limit is rejected with 503.
	Limit int `mapstructure:"limit" yaml:"limit" json:"limit"`

	// StaleAfter is the maximum time a request may wait in the queue before
	// it is evicted and rejected with 503.
	StaleAfter config.TimeDuration `mapstructure:"staleAfter" yaml:"staleAfter" json:"staleAfter"`

	// SweepInterval is the period of the stale-entry eviction sweep.
	SweepInterval config.TimeDuration `mapstructure:"sweepInterval" yaml:"sweepInterval" json:"sweepInterval"`
}

// WorkerConfig represents configuration parameters of the dispatcher and its tasks.
type WorkerConfig struct {
	// MaxConcurrent is the maximum number of requests executed concurrently.
	MaxConcurrent int `mapstructure:"maxConcurrent" yaml:"maxConcurrent" json:"maxConcurrent"`

	// TaskTimeout is the execution deadline of a single dispatched request.
	TaskTimeout config.TimeDuration `mapstructure:"taskTimeout" yaml:"taskTimeout" json:"taskTimeout"`
}

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{
		keyPrefix: opts.keyPrefix,
		Queue: QueueConfig{
			Limit:         DefaultQueueLimit,
			StaleAfter:    config.TimeDuration(DefaultQueueStaleAfter),
			SweepInterval: config.TimeDuration(DefaultQueueSweepInterval),
		},
		Worker: WorkerConfig{
			MaxConcurrent: DefaultWorkerMaxConcurrent,
			TaskTimeout:   config.TimeDuration(DefaultWorkerTaskTimeout),
		},
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the pipeline in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyQueueLimit, DefaultQueueLimit)
	dp.SetDefault(cfgKeyQueueStaleAfter, DefaultQueueStaleAfter)
	dp.SetDefault(cfgKeyQueueSweepInterval, DefaultQueueSweepInterval)
	dp.SetDefault(cfgKeyWorkerMaxConcurrent, DefaultWorkerMaxConcurrent)
	dp.SetDefault(cfgKeyWorkerTaskTimeout, DefaultWorkerTaskTimeout)
}

// Set sets pipeline configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Queue.Limit, err = dp.GetInt(cfgKeyQueueLimit); err != nil {
		return err
	}
	if c.Queue.Limit <= 0 {
		return dp.WrapKeyErr(cfgKeyQueueLimit, fmt.Errorf("must be positive, got %d", c.Queue.Limit))
	}

	var dur time.Duration
	if dur, err = dp.GetDuration(cfgKeyQueueStaleAfter); err != nil {
		return err
	}
	if dur <= 0 {
		return dp.WrapKeyErr(cfgKeyQueueStaleAfter, fmt.Errorf("must be positive, got %s", dur))
	}
	c.Queue.StaleAfter = config.TimeDuration(dur)

	if dur, err = dp.GetDuration(cfgKeyQueueSweepInterval); err != nil {
		return err
	}
	if dur <= 0 {
		return dp.WrapKeyErr(cfgKeyQueueSweepInterval, fmt.Errorf("must be positive, got %s", dur))
	}
	c.Queue.SweepInterval = config.TimeDuration(dur)

	if c.Worker.MaxConcurrent, err = dp.GetInt(cfgKeyWorkerMaxConcurrent); err != nil {
		return err
	}
	if c.Worker.MaxConcurrent <= 0 {
		return dp.WrapKeyErr(cfgKeyWorkerMaxConcurrent, fmt.Errorf("must be positive, got %d", c.Worker.MaxConcurrent))
	}

	if dur, err = dp.GetDuration(cfgKeyWorkerTaskTimeout); err != nil {
		return err
	}
	if dur <= 0 {
		return dp.WrapKeyErr(cfgKeyWorkerTaskTimeout, fmt.Errorf("must be positive, got %s", dur))
	}
	c.Worker.TaskTimeout = config.TimeDuration(dur)

	return nil
}
