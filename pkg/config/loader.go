package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/syncflow/pkg/connector/core"
	"github.com/ajitpratap0/syncflow/pkg/errors"
)

// EnvPrefix prefixes environment overrides, e.g. SYNCFLOW_LOGGING_LEVEL
const EnvPrefix = "SYNCFLOW"

// Load reads, validates and returns the configuration at filePath.
// Catalog files named by connectors are resolved relative to it.
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file").
			WithDetail("path", filePath)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(filePath)
	for i := range cfg.Connectors {
		def := &cfg.Connectors[i]
		if def.CatalogFile == "" {
			continue
		}
		path := def.CatalogFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		catalog, err := LoadCatalog(path)
		if err != nil {
			return nil, err
		}
		def.Catalog = *catalog
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML configuration document without validating it.
// ${VAR} references are substituted first; SYNCFLOW_* environment
// variables then override individual keys.
func Parse(data []byte) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	content := substituteEnvVars(string(data))
	if err := v.ReadConfig(bytes.NewReader([]byte(content))); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode configuration")
	}
	return cfg, nil
}

// setDefaults registers every scalar default so AutomaticEnv can override
// keys absent from the file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.development", d.Logging.Development)
	v.SetDefault("logging.encoding", d.Logging.Encoding)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.address", d.Metrics.Address)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.environment", d.Tracing.Environment)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.pretty_print", d.Tracing.PrettyPrint)
	v.SetDefault("scheduler.enabled", d.Scheduler.Enabled)
	v.SetDefault("scheduler.default_batch_size", d.Scheduler.DefaultBatchSize)
	v.SetDefault("scheduler.run_timeout", d.Scheduler.RunTimeout)
	v.SetDefault("scheduler.max_concurrent", d.Scheduler.MaxConcurrent)
	v.SetDefault("notifications.breaker.failure_threshold", d.Notifications.Breaker.FailureThreshold)
	v.SetDefault("notifications.breaker.success_threshold", d.Notifications.Breaker.SuccessThreshold)
	v.SetDefault("notifications.breaker.timeout", d.Notifications.Breaker.Timeout)
	v.SetDefault("notifications.breaker.half_open_limit", d.Notifications.Breaker.HalfOpenLimit)
}

// Save writes cfg to filePath as YAML
func Save(filePath string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal YAML")
	}

	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to write config file").
			WithDetail("path", filePath)
	}
	return nil
}

// LoadCatalog reads a connector catalog (streams and global rate limit)
func LoadCatalog(filePath string) (*core.Catalog, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the config file
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read catalog file").
			WithDetail("path", filePath)
	}

	var catalog core.Catalog
	if err := yaml.Unmarshal([]byte(substituteEnvVars(string(data))), &catalog); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to parse catalog %s", filePath))
	}
	return &catalog, nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		content = content[:start] + os.Getenv(varName) + content[end+1:]
	}
	return content
}
