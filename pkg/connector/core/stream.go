package core

import (
	"time"
)

// Rate limit units understood by streams and catalogs
const (
	RateLimitUnitSecond = "second"
	RateLimitUnitMinute = "minute"
	RateLimitUnitHour   = "hour"
	RateLimitUnitDay    = "day"
)

// Stream describes a syncable destination or source entity
type Stream struct {
	Name                   string                 `yaml:"name" json:"name" mapstructure:"name"`
	SupportedSyncModes     []SyncMode             `yaml:"supported_sync_modes" json:"supported_sync_modes" mapstructure:"supported_sync_modes"`
	RequestRateLimit       int                    `yaml:"request_rate_limit" json:"request_rate_limit" mapstructure:"request_rate_limit"`
	RequestRateLimitUnit   string                 `yaml:"request_rate_limit_unit" json:"request_rate_limit_unit" mapstructure:"request_rate_limit_unit"`
	RequestRateConcurrency int                    `yaml:"request_rate_concurrency" json:"request_rate_concurrency" mapstructure:"request_rate_concurrency"`
	JSONSchema             map[string]interface{} `yaml:"json_schema" json:"json_schema,omitempty" mapstructure:"json_schema"`
}

// RateLimitUnitSeconds converts the stream's unit into seconds. Unknown or
// empty units default to a minute.
func (s *Stream) RateLimitUnitSeconds() int {
	switch s.RequestRateLimitUnit {
	case RateLimitUnitSecond:
		return 1
	case RateLimitUnitHour:
		return 3600
	case RateLimitUnitDay:
		return 86400
	default:
		return 60
	}
}

// RateLimitInterval is RateLimitUnitSeconds as a duration
func (s *Stream) RateLimitInterval() time.Duration {
	return time.Duration(s.RateLimitUnitSeconds()) * time.Second
}

// SupportsSyncMode reports whether mode is listed for the stream. A stream
// that lists no modes accepts any.
func (s *Stream) SupportsSyncMode(mode SyncMode) bool {
	if len(s.SupportedSyncModes) == 0 {
		return true
	}
	for _, m := range s.SupportedSyncModes {
		if m == mode {
			return true
		}
	}
	return false
}

// Catalog lists a connector's streams and the global rate limit applied to
// streams that don't carry their own.
type Catalog struct {
	Streams                []Stream `yaml:"streams" json:"streams" mapstructure:"streams"`
	RequestRateLimit       int      `yaml:"request_rate_limit" json:"request_rate_limit" mapstructure:"request_rate_limit"`
	RequestRateLimitUnit   string   `yaml:"request_rate_limit_unit" json:"request_rate_limit_unit" mapstructure:"request_rate_limit_unit"`
	RequestRateConcurrency int      `yaml:"request_rate_concurrency" json:"request_rate_concurrency" mapstructure:"request_rate_concurrency"`
}

// ResolveStream returns a copy of the named stream with rate limits filled
// in from the catalog when the stream does not override them. Unknown
// names resolve to a stream carrying only the catalog limits.
func (c *Catalog) ResolveStream(name string) Stream {
	resolved := Stream{Name: name}
	for _, s := range c.Streams {
		if s.Name == name {
			resolved = s
			break
		}
	}

	if resolved.RequestRateLimit <= 0 {
		resolved.RequestRateLimit = c.RequestRateLimit
		resolved.RequestRateLimitUnit = c.RequestRateLimitUnit
	}
	if resolved.RequestRateLimitUnit == "" {
		resolved.RequestRateLimitUnit = c.RequestRateLimitUnit
	}
	if resolved.RequestRateConcurrency <= 0 {
		resolved.RequestRateConcurrency = c.RequestRateConcurrency
	}
	return resolved
}
