package data

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthropics/feishu-topic-monitor/internal/biz/repo"
)

func newTestHistory(t *testing.T) repo.HistoryRepo {
	t.Helper()
	h, err := NewHistoryRepo(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHistoryRecordAndRecent(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	require.NoError(t, h.Record(ctx, &repo.AlertRecord{
		ChannelID:   "ch1",
		ChannelName: "general",
		Topics:      []string{"table tennis", "release planning"},
		MatchCount:  3,
		DeliveredAt: time.Now().Add(-time.Minute),
		OK:          true,
	}))
	require.NoError(t, h.Record(ctx, &repo.AlertRecord{
		ChannelID:   "ch2",
		ChannelName: "random",
		Topics:      []string{"table tennis"},
		MatchCount:  1,
		DeliveredAt: time.Now(),
		OK:          false,
		Error:       "send message error",
	}))

	records, err := h.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first.
	assert.Equal(t, "random", records[0].ChannelName)
	assert.False(t, records[0].OK)
	assert.Equal(t, "send message error", records[0].Error)

	assert.Equal(t, "general", records[1].ChannelName)
	assert.True(t, records[1].OK)
	assert.Equal(t, []string{"table tennis", "release planning"}, records[1].Topics)
	assert.Equal(t, 3, records[1].MatchCount)
}

func TestHistoryRecentLimit(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, h.Record(ctx, &repo.AlertRecord{
			ChannelID:   "ch1",
			ChannelName: "general",
			MatchCount:  1,
			DeliveredAt: time.Now(),
			OK:          true,
		}))
	}

	records, err := h.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}
