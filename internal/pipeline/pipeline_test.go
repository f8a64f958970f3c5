package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/syncflow/pkg/connector/core"
	"github.com/ajitpratap0/syncflow/pkg/errors"
	"github.com/ajitpratap0/syncflow/pkg/notify"
	"github.com/ajitpratap0/syncflow/pkg/syncjob"
)

// pagedSource serves rows in pages selected by cfg.Limit and cfg.Offset
type pagedSource struct {
	mu      sync.Mutex
	rows    []*core.Record
	failAt  int // offset whose read fails, -1 for none
	reads   []int
	onRead  func(offset int)
	closed  bool
	readErr error
}

func newPagedSource(n int) *pagedSource {
	rows := make([]*core.Record, n)
	for i := range rows {
		rows[i] = core.RecordFromPairs("id", i, "email", "user@example.com")
	}
	return &pagedSource{rows: rows, failAt: -1, readErr: errors.New(errors.ErrorTypeQuery, "query failed")}
}

func (s *pagedSource) Name() string { return "paged" }

func (s *pagedSource) Read(ctx context.Context, cfg *core.SyncConfig) ([]*core.Record, error) {
	s.mu.Lock()
	s.reads = append(s.reads, cfg.Offset)
	onRead := s.onRead
	s.mu.Unlock()

	if onRead != nil {
		onRead(cfg.Offset)
	}
	if cfg.Offset == s.failAt {
		return nil, s.readErr
	}
	if cfg.Offset >= len(s.rows) {
		return nil, nil
	}
	end := cfg.Offset + cfg.Limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[cfg.Offset:end], nil
}

func (s *pagedSource) CheckConnection(ctx context.Context) *core.Message {
	return core.NewControlMessage(core.ControlTypeConnectionStatus, core.ControlStatusSucceeded, "")
}

func (s *pagedSource) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *pagedSource) readOffsets() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.reads...)
}

// recordingWriter records the batches it is handed
type recordingWriter struct {
	mu      sync.Mutex
	batches [][]*core.Record
	offsets []int
	respond func(call int, records []*core.Record) (*core.Message, error)
}

func (w *recordingWriter) Write(ctx context.Context, cfg *core.SyncConfig, records []*core.Record, action core.Action) (*core.Message, error) {
	w.mu.Lock()
	w.batches = append(w.batches, records)
	w.offsets = append(w.offsets, cfg.Offset)
	call := len(w.batches)
	respond := w.respond
	w.mu.Unlock()

	if respond != nil {
		return respond(call, records)
	}
	return core.NewTrackingMessage(len(records), 0), nil
}

func (w *recordingWriter) calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.batches)
}

type harness struct {
	svc     *syncjob.Service
	sync    *syncjob.Sync
	run     *syncjob.SyncRun
	notices []notify.Notice
	mu      sync.Mutex
}

func newHarness(t *testing.T, mode core.SyncMode) *harness {
	t.Helper()
	h := &harness{}
	h.svc = syncjob.NewService(syncjob.NewMemoryRepository(),
		syncjob.WithNotifier(notify.NotifierFunc(func(ctx context.Context, n notify.Notice) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.notices = append(h.notices, n)
			return nil
		})),
	)

	ctx := context.Background()
	s, err := h.svc.CreateSync(ctx, &syncjob.Sync{
		SourceID:      "warehouse",
		DestinationID: "crm",
		StreamName:    "users",
		ScheduleType:  syncjob.ScheduleTypeManual,
		SyncMode:      mode,
		Recipients:    []string{"ops@example.com"},
		Config: &core.SyncConfig{
			Stream: core.Stream{Name: "users"},
			Model:  core.Model{Query: "SELECT id, email FROM users", PrimaryKey: "id"},
		},
	})
	require.NoError(t, err)
	h.sync = s

	run, err := h.svc.CreateRun(ctx, s.ID, syncjob.RunTypeGeneral)
	require.NoError(t, err)
	h.run = run
	return h
}

func (h *harness) noticeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.notices)
}
