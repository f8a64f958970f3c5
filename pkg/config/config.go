// Package config defines the syncflow configuration file: logging,
// metrics, tracing, scheduling and notification settings plus the
// connectors and syncs the process manages.
//
// The configuration is organized into sections:
//   - Logging: zap logger settings
//   - Metrics: prometheus endpoint
//   - Tracing: OpenTelemetry stdout exporter
//   - Scheduler: cron scheduling and batch sizing
//   - Notifications: failure notices (Kafka behind a circuit breaker)
//   - Connectors: named source and destination connections
//   - Syncs: the jobs moving data between connectors
//
// Example usage:
//
//	cfg, err := config.Load("syncflow.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, def := range cfg.Syncs {
//	    sync, err := cfg.BuildSync(def)
//	    ...
//	}
package config

import (
	"fmt"
	"time"

	"github.com/ajitpratap0/syncflow/pkg/clients"
	"github.com/ajitpratap0/syncflow/pkg/connector/core"
	"github.com/ajitpratap0/syncflow/pkg/errors"
	"github.com/ajitpratap0/syncflow/pkg/logger"
	"github.com/ajitpratap0/syncflow/pkg/notify"
	"github.com/ajitpratap0/syncflow/pkg/syncjob"
)

// Config is the root of a syncflow configuration file
type Config struct {
	Logging       logger.Config         `yaml:"logging" json:"logging" mapstructure:"logging"`
	Metrics       MetricsConfig         `yaml:"metrics" json:"metrics" mapstructure:"metrics"`
	Tracing       TracingConfig         `yaml:"tracing" json:"tracing" mapstructure:"tracing"`
	Scheduler     SchedulerConfig       `yaml:"scheduler" json:"scheduler" mapstructure:"scheduler"`
	Notifications NotificationsConfig   `yaml:"notifications" json:"notifications" mapstructure:"notifications"`
	Connectors    []ConnectorDefinition `yaml:"connectors" json:"connectors" mapstructure:"connectors"`
	Syncs         []SyncDefinition      `yaml:"syncs" json:"syncs" mapstructure:"syncs"`
}

// MetricsConfig controls the prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Address string `yaml:"address" json:"address" mapstructure:"address"`
	Path    string `yaml:"path" json:"path" mapstructure:"path"`
}

// TracingConfig controls span export
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	ServiceName string  `yaml:"service_name" json:"service_name" mapstructure:"service_name"`
	Environment string  `yaml:"environment" json:"environment" mapstructure:"environment"`
	SampleRate  float64 `yaml:"sample_rate" json:"sample_rate" mapstructure:"sample_rate"`
	PrettyPrint bool    `yaml:"pretty_print" json:"pretty_print" mapstructure:"pretty_print"`
}

// SchedulerConfig controls how syncs are triggered and paged
type SchedulerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	DefaultBatchSize int           `yaml:"default_batch_size" json:"default_batch_size" mapstructure:"default_batch_size"`
	RunTimeout       time.Duration `yaml:"run_timeout" json:"run_timeout" mapstructure:"run_timeout"`
	MaxConcurrent    int           `yaml:"max_concurrent" json:"max_concurrent" mapstructure:"max_concurrent"`
}

// NotificationsConfig controls failure notices
type NotificationsConfig struct {
	Kafka *notify.KafkaConfig `yaml:"kafka,omitempty" json:"kafka,omitempty" mapstructure:"kafka"`
	// Breaker guards the Kafka notifier; zero fields take defaults
	Breaker clients.CircuitBreakerConfig `yaml:"breaker" json:"breaker" mapstructure:"breaker"`
	// Recipients receive notices of every sync that lists none of its own
	Recipients []string `yaml:"recipients" json:"recipients" mapstructure:"recipients"`
}

// ConnectorKind says which side of a sync a connector serves
type ConnectorKind string

const (
	KindSource      ConnectorKind = "source"
	KindDestination ConnectorKind = "destination"
)

// ConnectorDefinition names one configured connection
type ConnectorDefinition struct {
	Name         string        `yaml:"name" json:"name" mapstructure:"name"`
	Kind         ConnectorKind `yaml:"kind" json:"kind" mapstructure:"kind"`
	Type         string        `yaml:"type" json:"type" mapstructure:"type"` // postgresql or mysql
	DSN          string        `yaml:"dsn" json:"-" mapstructure:"dsn"`
	MaxOpenConns int           `yaml:"max_open_conns,omitempty" json:"max_open_conns,omitempty" mapstructure:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns,omitempty" json:"max_idle_conns,omitempty" mapstructure:"max_idle_conns"`
	Catalog      core.Catalog  `yaml:"catalog" json:"catalog" mapstructure:"catalog"`
	// CatalogFile is read with LoadCatalog and replaces Catalog when set
	CatalogFile string `yaml:"catalog_file,omitempty" json:"catalog_file,omitempty" mapstructure:"catalog_file"`
}

// Spec converts the definition into the spec connector factories consume
func (d ConnectorDefinition) Spec() core.ConnectorSpec {
	conn := map[string]interface{}{
		"dsn": d.DSN,
	}
	if d.MaxOpenConns > 0 {
		conn["max_open_conns"] = d.MaxOpenConns
	}
	if d.MaxIdleConns > 0 {
		conn["max_idle_conns"] = d.MaxIdleConns
	}
	return core.ConnectorSpec{
		Name:                    d.Name,
		Type:                    core.ConnectorType(d.Kind),
		ConnectorName:           d.Type,
		ConnectionSpecification: conn,
	}
}

// ScheduleDefinition says when a sync runs
type ScheduleDefinition struct {
	Type           string `yaml:"type" json:"type" mapstructure:"type"`
	Interval       int    `yaml:"interval,omitempty" json:"interval,omitempty" mapstructure:"interval"`
	Unit           string `yaml:"unit,omitempty" json:"unit,omitempty" mapstructure:"unit"`
	CronExpression string `yaml:"cron_expression,omitempty" json:"cron_expression,omitempty" mapstructure:"cron_expression"`
}

// SyncDefinition describes one sync between two configured connectors
type SyncDefinition struct {
	ID                  string             `yaml:"id" json:"id" mapstructure:"id"`
	Name                string             `yaml:"name" json:"name" mapstructure:"name"`
	Source              string             `yaml:"source" json:"source" mapstructure:"source"`
	Destination         string             `yaml:"destination" json:"destination" mapstructure:"destination"`
	Model               core.Model         `yaml:"model" json:"model" mapstructure:"model"`
	Stream              string             `yaml:"stream" json:"stream" mapstructure:"stream"`
	SyncMode            core.SyncMode      `yaml:"sync_mode" json:"sync_mode" mapstructure:"sync_mode"`
	DestinationSyncMode string             `yaml:"destination_sync_mode" json:"destination_sync_mode" mapstructure:"destination_sync_mode"`
	CursorField         string             `yaml:"cursor_field,omitempty" json:"cursor_field,omitempty" mapstructure:"cursor_field"`
	CurrentCursorField  string             `yaml:"current_cursor_field,omitempty" json:"current_cursor_field,omitempty" mapstructure:"current_cursor_field"`
	Schedule            ScheduleDefinition `yaml:"schedule" json:"schedule" mapstructure:"schedule"`
	BatchSize           int                `yaml:"batch_size,omitempty" json:"batch_size,omitempty" mapstructure:"batch_size"`
	Recipients          []string           `yaml:"recipients,omitempty" json:"recipients,omitempty" mapstructure:"recipients"`
}

// Default returns a configuration with every section at its default
func Default() *Config {
	return &Config{
		Logging: logger.DefaultConfig(),
		Metrics: MetricsConfig{
			Address: ":9090",
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			ServiceName: "syncflow",
			Environment: "development",
			SampleRate:  1.0,
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			DefaultBatchSize: 1000,
			RunTimeout:       time.Hour,
			MaxConcurrent:    4,
		},
		Notifications: NotificationsConfig{
			Breaker: clients.DefaultCircuitBreakerConfig(),
		},
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Scheduler.DefaultBatchSize <= 0 {
		return errors.New(errors.ErrorTypeConfig, "scheduler.default_batch_size must be positive")
	}
	if c.Scheduler.MaxConcurrent <= 0 {
		return errors.New(errors.ErrorTypeConfig, "scheduler.max_concurrent must be positive")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return errors.New(errors.ErrorTypeConfig, "tracing.sample_rate must be between 0 and 1")
	}

	names := make(map[string]ConnectorKind, len(c.Connectors))
	for _, d := range c.Connectors {
		if d.Name == "" {
			return errors.New(errors.ErrorTypeConfig, "connector name is required")
		}
		if _, dup := names[d.Name]; dup {
			return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("duplicate connector %q", d.Name))
		}
		if d.Kind != KindSource && d.Kind != KindDestination {
			return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("connector %q: kind must be source or destination", d.Name))
		}
		if d.Type == "" {
			return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("connector %q: type is required", d.Name))
		}
		names[d.Name] = d.Kind
	}

	ids := make(map[string]bool, len(c.Syncs))
	for _, s := range c.Syncs {
		if s.ID == "" {
			return errors.New(errors.ErrorTypeConfig, "sync id is required")
		}
		if ids[s.ID] {
			return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("duplicate sync %q", s.ID))
		}
		ids[s.ID] = true

		if kind, ok := names[s.Source]; !ok || kind != KindSource {
			return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("sync %q: unknown source connector %q", s.ID, s.Source))
		}
		if kind, ok := names[s.Destination]; !ok || kind != KindDestination {
			return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("sync %q: unknown destination connector %q", s.ID, s.Destination))
		}
		if s.Model.Query == "" {
			return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("sync %q: model query is required", s.ID))
		}
		if s.BatchSize < 0 {
			return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("sync %q: batch_size must not be negative", s.ID))
		}
		if err := c.newSync(s).Validate(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("sync %q is invalid", s.ID))
		}
	}
	return nil
}

// Connector returns the connector definition called name
func (c *Config) Connector(name string) (ConnectorDefinition, bool) {
	for _, d := range c.Connectors {
		if d.Name == name {
			return d, true
		}
	}
	return ConnectorDefinition{}, false
}

// SyncDefinition returns the sync definition with id
func (c *Config) SyncDefinition(id string) (SyncDefinition, bool) {
	for _, s := range c.Syncs {
		if s.ID == id {
			return s, true
		}
	}
	return SyncDefinition{}, false
}

// BatchSize returns the page size for def
func (c *Config) BatchSize(def SyncDefinition) int {
	if def.BatchSize > 0 {
		return def.BatchSize
	}
	return c.Scheduler.DefaultBatchSize
}

// BuildSync turns def into a Sync entity carrying its run configuration
// template. The destination catalog decides the stream's rate limits.
func (c *Config) BuildSync(def SyncDefinition) (*syncjob.Sync, error) {
	src, ok := c.Connector(def.Source)
	if !ok {
		return nil, errors.New(errors.ErrorTypeNotFound, fmt.Sprintf("source connector %q not configured", def.Source))
	}
	dst, ok := c.Connector(def.Destination)
	if !ok {
		return nil, errors.New(errors.ErrorTypeNotFound, fmt.Sprintf("destination connector %q not configured", def.Destination))
	}

	s := c.newSync(def)
	s.Config = &core.SyncConfig{
		Stream:              dst.Catalog.ResolveStream(def.Stream),
		Model:               def.Model,
		Source:              src.Spec(),
		Destination:         dst.Spec(),
		SyncMode:            def.SyncMode,
		DestinationSyncMode: def.DestinationSyncMode,
		CursorField:         def.CursorField,
		CurrentCursorField:  def.CurrentCursorField,
		SyncID:              def.ID,
		Limit:               c.BatchSize(def),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (c *Config) newSync(def SyncDefinition) *syncjob.Sync {
	recipients := def.Recipients
	if len(recipients) == 0 {
		recipients = c.Notifications.Recipients
	}
	return &syncjob.Sync{
		ID:                 def.ID,
		Name:               def.Name,
		SourceID:           def.Source,
		DestinationID:      def.Destination,
		ModelID:            def.Model.Name,
		StreamName:         def.Stream,
		ScheduleType:       syncjob.ScheduleType(def.Schedule.Type),
		SyncInterval:       def.Schedule.Interval,
		SyncIntervalUnit:   syncjob.IntervalUnit(def.Schedule.Unit),
		CronExpression:     def.Schedule.CronExpression,
		SyncMode:           def.SyncMode,
		CursorField:        def.CursorField,
		CurrentCursorField: def.CurrentCursorField,
		Recipients:         recipients,
	}
}
