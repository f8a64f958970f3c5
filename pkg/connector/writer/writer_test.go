package writer

import (
	"context"
	"sync"

	"github.com/ajitpratap0/syncflow/pkg/connector/core"
)

// fakeDestination records calls in the order they happen
type fakeDestination struct {
	mu     sync.Mutex
	calls  []string
	writes int
	clears int

	// clearResults are consumed one per clear; once exhausted clears succeed
	clearResults []*core.Message
	clearErr     error
}

func (d *fakeDestination) Name() string { return "fake" }

func (d *fakeDestination) CheckConnection(ctx context.Context) *core.Message {
	return core.NewControlMessage(core.ControlTypeConnectionStatus, core.ControlStatusSucceeded, "")
}

func (d *fakeDestination) Close(ctx context.Context) error { return nil }

func (d *fakeDestination) Write(ctx context.Context, cfg *core.SyncConfig, records []*core.Record, action core.Action) (*core.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes++
	d.calls = append(d.calls, "write")
	return core.NewTrackingMessage(len(records), 0), nil
}

func (d *fakeDestination) ClearAllRecords(ctx context.Context, cfg *core.SyncConfig) (*core.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clears++
	d.calls = append(d.calls, "clear")
	if d.clearErr != nil {
		return nil, d.clearErr
	}
	if len(d.clearResults) > 0 {
		msg := d.clearResults[0]
		d.clearResults = d.clearResults[1:]
		return msg, nil
	}
	return core.NewControlMessage(core.ControlTypeFullRefresh, core.ControlStatusSucceeded, ""), nil
}

func (d *fakeDestination) snapshot() (writes, clears int, calls []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes, d.clears, append([]string(nil), d.calls...)
}

func testConfig(mode core.SyncMode) *core.SyncConfig {
	return &core.SyncConfig{
		Stream: core.Stream{
			Name:                 "users",
			RequestRateLimit:     100,
			RequestRateLimitUnit: core.RateLimitUnitSecond,
		},
		Model:    core.Model{Name: "users", PrimaryKey: "id"},
		SyncMode: mode,
		SyncID:   "sync-1",
	}
}

func testRecords() []*core.Record {
	return []*core.Record{
		core.RecordFromPairs("id", 1, "name", "ann"),
		core.RecordFromPairs("id", 2, "name", "bob"),
	}
}
