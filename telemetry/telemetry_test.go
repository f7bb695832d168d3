package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEventLogMirrorsToZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewEventLog(10, zap.New(core))

	l.Info("attempt completed", map[string]interface{}{"attempt": 1, "status": 200})
	l.Warn("attempt abandoned", map[string]interface{}{"attempt": 2})

	require.Equal(t, 2, logs.Len())
	first := logs.All()[0]
	assert.Equal(t, "attempt completed", first.Message)
	assert.Equal(t, zapcore.InfoLevel, first.Level)
	assert.Equal(t, int64(200), first.ContextMap()["status"])
	assert.Equal(t, zapcore.WarnLevel, logs.All()[1].Level)
}

func TestEventLogRingBuffer(t *testing.T) {
	l := NewEventLog(3, nil)
	for i := 0; i < 5; i++ {
		l.Debug("tick", map[string]interface{}{"i": i})
	}
	l.Error("boom", map[string]interface{}{"err": errors.New("x").Error()})

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, 4, entries[1].Fields["i"])
	assert.Equal(t, LevelError, entries[2].Level)

	counts := l.Counts()
	assert.Equal(t, 2, counts[LevelDebug])
	assert.Equal(t, 1, counts[LevelError])
}

func TestEventLogConcurrentWriters(t *testing.T) {
	l := NewEventLog(1000, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Info("event", map[string]interface{}{"w": i})
			}
		}(i)
	}
	wg.Wait()
	assert.Len(t, l.Entries(), 400)
}

func TestLatencyTrackerSummary(t *testing.T) {
	tr := NewLatencyTracker()
	_, ok := tr.Summary("host")
	assert.False(t, ok)

	for i := 1; i <= 10; i++ {
		tr.TrackSuccess("host", time.Duration(i)*time.Millisecond)
	}
	tr.TrackFailure("host", 50*time.Millisecond, "read: connection reset")
	tr.TrackSuccess("other", time.Millisecond)

	s, ok := tr.Summary("host")
	require.True(t, ok)
	assert.Equal(t, 11, s.Total)
	assert.InDelta(t, 10.0/11.0, s.SuccessRate, 1e-9)
	assert.Equal(t, 6*time.Millisecond, s.P50)
	assert.Equal(t, time.Millisecond, s.Min)
	assert.Equal(t, 50*time.Millisecond, s.Max)
	assert.Equal(t, []string{"read: connection reset"}, s.RecentErrors)

	all := tr.Summaries()
	require.Len(t, all, 2)
	assert.Equal(t, "host", all[0].Target)
	assert.Equal(t, "other", all[1].Target)
}

func TestLatencyTrackerBoundsSamples(t *testing.T) {
	tr := NewLatencyTracker()
	tr.maxSamples = 4
	for i := 0; i < 10; i++ {
		tr.TrackSuccess("host", time.Duration(i))
	}
	s, _ := tr.Summary("host")
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, time.Duration(6), s.Min)
}

func TestNewRunInfo(t *testing.T) {
	info := NewRunInfo("Dream", "regular", "api.minecraftservices.com", 2)
	_, err := uuid.Parse(info.RaceID)
	require.NoError(t, err)
	assert.NotEqual(t, info.RaceID, NewRunInfo("Dream", "regular", "h", 2).RaceID)

	fields := info.Fields()
	assert.Equal(t, "Dream", fields["name"])
	assert.Equal(t, 2, fields["attempts"])
}
