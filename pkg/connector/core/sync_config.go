package core

// SyncMode selects how a sync treats existing destination state
type SyncMode string

const (
	SyncModeFullRefresh SyncMode = "full_refresh"
	SyncModeIncremental SyncMode = "incremental"
)

// Action is the write operation applied to a batch of records
type Action string

const (
	ActionInsert Action = "destination_insert"
	ActionUpdate Action = "destination_update"
	ActionDelete Action = "destination_delete"
)

// DefaultAction is used when a caller does not name one
const DefaultAction = ActionInsert

// Increment strategies for paginated source APIs
const (
	IncrementStrategyOffset = "offset"
	IncrementStrategyPage   = "page"
)

// Model is the query a sync reads from its source
type Model struct {
	Name       string `yaml:"name" json:"name" mapstructure:"name"`
	Query      string `yaml:"query" json:"query" mapstructure:"query"`
	QueryType  string `yaml:"query_type" json:"query_type" mapstructure:"query_type"`
	PrimaryKey string `yaml:"primary_key" json:"primary_key" mapstructure:"primary_key"`
}

// ConnectorSpec describes one side of a sync
type ConnectorSpec struct {
	Name                    string                 `yaml:"name" json:"name" mapstructure:"name"`
	Type                    ConnectorType          `yaml:"type" json:"type" mapstructure:"type"`
	ConnectorName           string                 `yaml:"connector_name" json:"connector_name" mapstructure:"connector_name"`
	ConnectionSpecification map[string]interface{} `yaml:"connection_specification" json:"connection_specification,omitempty" mapstructure:"connection_specification"`
}

// IncrementStrategyConfig drives pagination of offset/page based sources
type IncrementStrategyConfig struct {
	Strategy       string `yaml:"increment_strategy" json:"increment_strategy" mapstructure:"increment_strategy"`
	OffsetVariable string `yaml:"offset_variable" json:"offset_variable,omitempty" mapstructure:"offset_variable"`
	LimitVariable  string `yaml:"limit_variable" json:"limit_variable,omitempty" mapstructure:"limit_variable"`
	Offset         int    `yaml:"offset" json:"offset" mapstructure:"offset"`
	Limit          int    `yaml:"limit" json:"limit" mapstructure:"limit"`
}

// SyncConfig is the per-run configuration handed to connectors. It is
// created once per run invocation and treated as read-only afterwards.
type SyncConfig struct {
	Stream                  Stream                   `yaml:"stream" json:"stream" mapstructure:"stream"`
	Model                   Model                    `yaml:"model" json:"model" mapstructure:"model"`
	Source                  ConnectorSpec            `yaml:"source" json:"source" mapstructure:"source"`
	Destination             ConnectorSpec            `yaml:"destination" json:"destination" mapstructure:"destination"`
	SyncMode                SyncMode                 `yaml:"sync_mode" json:"sync_mode" mapstructure:"sync_mode"`
	DestinationSyncMode     string                   `yaml:"destination_sync_mode" json:"destination_sync_mode" mapstructure:"destination_sync_mode"`
	CursorField             string                   `yaml:"cursor_field" json:"cursor_field,omitempty" mapstructure:"cursor_field"`
	CurrentCursorField      string                   `yaml:"current_cursor_field" json:"current_cursor_field,omitempty" mapstructure:"current_cursor_field"`
	SyncID                  string                   `yaml:"sync_id" json:"sync_id" mapstructure:"sync_id"`
	SyncRunID               string                   `yaml:"sync_run_id" json:"sync_run_id" mapstructure:"sync_run_id"`
	Limit                   int                      `yaml:"limit" json:"limit" mapstructure:"limit"`
	Offset                  int                      `yaml:"offset" json:"offset" mapstructure:"offset"`
	IncrementStrategyConfig *IncrementStrategyConfig `yaml:"increment_strategy_config" json:"increment_strategy_config,omitempty" mapstructure:"increment_strategy_config"`
}

// WithPage returns a copy of c addressing a different page
func (c *SyncConfig) WithPage(limit, offset int) *SyncConfig {
	cp := *c
	cp.Limit = limit
	cp.Offset = offset
	if c.IncrementStrategyConfig != nil {
		isc := *c.IncrementStrategyConfig
		isc.Limit = limit
		isc.Offset = offset
		cp.IncrementStrategyConfig = &isc
	}
	return &cp
}

// WithRunID returns a copy of c bound to a sync run
func (c *SyncConfig) WithRunID(runID string) *SyncConfig {
	cp := *c
	cp.SyncRunID = runID
	return &cp
}

// IsFullRefresh reports whether the sync clears the destination first
func (c *SyncConfig) IsFullRefresh() bool {
	return c.SyncMode == SyncModeFullRefresh
}
