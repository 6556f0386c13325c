package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMergeNoExisting(t *testing.T) {
	in := DailySummary{DeviceID: "SYS-01", Date: "2026-03-09", RuntimeMinutes: 5, AvgScore: 40, AppUsage: UsageMap{"appA": 10}}
	out := MergeDailySummary(nil, in)
	require.Equal(t, in, out)

	out.AppUsage["appA"] = 99
	require.Equal(t, int64(10), in.AppUsage["appA"])
}

// Same payload twice: usage sums, runtime does not.
func TestMergeRedeliveryAsymmetry(t *testing.T) {
	in := DailySummary{DeviceID: "SYS-01", Date: "2026-03-09", RuntimeMinutes: 5, AvgScore: 40, AppUsage: UsageMap{"appA": 10}}
	first := MergeDailySummary(nil, in)
	second := MergeDailySummary(&first, in)

	require.Equal(t, int64(20), second.AppUsage["appA"])
	require.Equal(t, int64(5), second.RuntimeMinutes)
	require.InDelta(t, 40.0, second.AvgScore, 1e-9)
}

func TestMergeTimesAndLocation(t *testing.T) {
	base := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	t0, t1, t2, t3 := base.Add(7*time.Hour), base.Add(8*time.Hour), base.Add(16*time.Hour), base.Add(18*time.Hour)

	existing := DailySummary{StartTime: &t1, EndTime: &t2, AvgScore: 80, City: "Lahore", LabName: "Lab A", AppUsage: UsageMap{"a": 1}}
	incoming := DailySummary{StartTime: &t0, EndTime: &t3, AvgScore: 40, City: "", LabName: "Lab B", AppUsage: UsageMap{"a": 2, "b": 3}}

	out := MergeDailySummary(&existing, incoming)
	require.Equal(t, t0, *out.StartTime)
	require.Equal(t, t3, *out.EndTime)
	require.InDelta(t, 60.0, out.AvgScore, 1e-9)
	require.Equal(t, "Lahore", out.City)
	require.Equal(t, "Lab B", out.LabName)
	require.Equal(t, UsageMap{"a": 3, "b": 3}, out.AppUsage)
	require.Equal(t, UsageMap{"a": 1}, existing.AppUsage)

	// an absent side falls back to the present one
	out = MergeDailySummary(&DailySummary{StartTime: &t1}, DailySummary{EndTime: &t2})
	require.Equal(t, t1, *out.StartTime)
	require.Equal(t, t2, *out.EndTime)

	// narrower incoming window leaves the wider one alone
	out = MergeDailySummary(&DailySummary{StartTime: &t0, EndTime: &t3}, DailySummary{StartTime: &t1, EndTime: &t2})
	require.Equal(t, t0, *out.StartTime)
	require.Equal(t, t3, *out.EndTime)
}
