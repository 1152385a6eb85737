package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLogIsCappedAtRingCapacity(t *testing.T) {
	b := New("")
	for i := 0; i < RingCapacity+10; i++ {
		b.Log(Entry{Action: "tick"})
	}
	require.Equal(t, RingCapacity, b.Len())
}

func TestQueueOverflowDropsOldest20Percent(t *testing.T) {
	b := New("")
	for i := 0; i < QueueCapacity+1; i++ {
		b.Log(Entry{Action: "tick"})
	}
	require.LessOrEqual(t, b.QueueLen(), QueueCapacity)
}

func TestQueryFiltersBySeverityAndOrdersDescending(t *testing.T) {
	b := New("")
	now := time.Now().UTC()
	b.Log(Entry{Action: "a", Severity: "info", Timestamp: now.Add(-2 * time.Minute)})
	b.Log(Entry{Action: "b", Severity: "critical", Timestamp: now.Add(-1 * time.Minute)})
	b.Log(Entry{Action: "c", Severity: "critical", Timestamp: now})

	got := b.Query(Filter{Severity: "critical"})
	require.Len(t, got, 2)
	require.Equal(t, "c", got[0].Action, "newest match first")
	require.Equal(t, "b", got[1].Action)
}

func TestQueryPaginates(t *testing.T) {
	b := New("")
	for i := 0; i < 5; i++ {
		b.Log(Entry{Action: "tick"})
	}
	page := b.Query(Filter{Limit: 2, Offset: 1})
	require.Len(t, page, 2)
}

func TestStatisticsSummarizesMatches(t *testing.T) {
	b := New("")
	b.Log(Entry{Action: "a", Severity: "warning", Success: true})
	b.Log(Entry{Action: "b", Severity: "warning", Success: false})

	stats := b.Statistics(Filter{Severity: "warning"})
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 50.0, stats.SuccessPct)
}

func TestClearOldDropsEntriesPastCutoff(t *testing.T) {
	b := New("")
	b.Log(Entry{Action: "old", Timestamp: time.Now().AddDate(0, 0, -40)})
	b.Log(Entry{Action: "new", Timestamp: time.Now()})

	b.ClearOld(30)
	require.Equal(t, 1, b.Len())
}

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	require.Contains(t, id, "audit-")
}

func TestExportJSONAndCSV(t *testing.T) {
	b := New("")
	b.Log(Entry{Action: "tick", Actor: "sync_instance", Severity: "info", Success: true})

	jsonOut, err := b.Export(Filter{}, "json")
	require.NoError(t, err)
	require.Contains(t, string(jsonOut), "\"Action\":\"tick\"")

	csvOut, err := b.Export(Filter{}, "csv")
	require.NoError(t, err)
	require.Contains(t, string(csvOut), "tick")
	require.Contains(t, string(csvOut), "id,timestamp,actor")
}
