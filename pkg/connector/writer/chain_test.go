package writer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/syncflow/pkg/connector/core"
)

func TestCompose_FirstDecoratorIsOuterMost(t *testing.T) {
	var order []string
	tag := func(name string) Decorator {
		return func(next core.Writer) core.Writer {
			return core.WriterFunc(func(ctx context.Context, cfg *core.SyncConfig, records []*core.Record, action core.Action) (*core.Message, error) {
				order = append(order, name)
				return next.Write(ctx, cfg, records, action)
			})
		}
	}
	host := core.WriterFunc(func(ctx context.Context, cfg *core.SyncConfig, records []*core.Record, action core.Action) (*core.Message, error) {
		order = append(order, "host")
		return core.NewTrackingMessage(len(records), 0), nil
	})

	w := Compose(host, tag("outer"), tag("inner"))
	_, err := w.Write(context.Background(), testConfig(core.SyncModeIncremental), testRecords(), core.ActionInsert)
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner", "host"}, order)
}

func TestChain_RateLimiterWrapsFullrefresher(t *testing.T) {
	dest := &fakeDestination{}
	w := Chain(dest)

	rl, ok := w.(*RateLimiter)
	require.True(t, ok, "rate limiter is the outer-most decorator")
	_, ok = rl.next.(*Fullrefresher)
	require.True(t, ok, "fullrefresher sits between rate limiter and destination")

	for i := 0; i < 3; i++ {
		_, err := w.Write(context.Background(), testConfig(core.SyncModeFullRefresh), testRecords(), core.ActionInsert)
		require.NoError(t, err)
	}

	writes, clears, _ := dest.snapshot()
	assert.Equal(t, 3, writes)
	assert.Equal(t, 1, clears)
}

func TestChain_SkippedWriteStillConsumesRateSlot(t *testing.T) {
	dest := &fakeDestination{
		clearResults: []*core.Message{
			core.NewControlMessage(core.ControlTypeFullRefresh, core.ControlStatusFailed, "locked"),
		},
	}
	w := Chain(dest)
	rl := w.(*RateLimiter)

	msg, err := w.Write(context.Background(), testConfig(core.SyncModeFullRefresh), testRecords(), core.ActionInsert)
	require.NoError(t, err)
	assert.True(t, msg.Failed())

	writes, _, _ := dest.snapshot()
	assert.Zero(t, writes)
	assert.Equal(t, int64(1), rl.Queue().Stats().Admitted)
	assert.Equal(t, 99, rl.Queue().Available())
}
