package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPlanRollover(t *testing.T) {
	d := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	start := d.Add(8 * time.Hour)
	active := d.Add(17 * time.Hour)
	last := d.Add(23*time.Hour + 59*time.Minute)

	prev := Device{
		SystemID:        "SYS-01",
		City:            "Multan",
		LabName:         "Lab 2",
		CPUScore:        72,
		RuntimeMinutes:  410,
		LastSeen:        &last,
		TodayStartTime:  &start,
		TodayLastActive: &active,
		AppUsage:        UsageMap{"chrome": 100},
	}

	t.Run("same day keeps start", func(t *testing.T) {
		p := planRollover(prev, nil, last.Add(10*time.Second))
		require.Nil(t, p.Archive)
		require.Nil(t, p.TodayStart)
	})

	t.Run("next day archives", func(t *testing.T) {
		now := d.Add(24*time.Hour + 5*time.Minute)
		p := planRollover(prev, nil, now)
		require.NotNil(t, p.Archive)
		require.Equal(t, "2026-03-10", p.Archive.Date)
		require.Equal(t, start, *p.Archive.StartTime)
		require.Equal(t, active, *p.Archive.EndTime)
		require.Equal(t, int64(410), p.Archive.RuntimeMinutes)
		require.InDelta(t, 72.0, p.Archive.AvgScore, 1e-9)
		require.Equal(t, "Multan", p.Archive.City)
		require.Equal(t, UsageMap{"chrome": 100}, p.Archive.AppUsage)
		require.Equal(t, now, *p.TodayStart)
	})

	t.Run("session start wins", func(t *testing.T) {
		agent := d.Add(24*time.Hour + time.Minute)
		p := planRollover(prev, &agent, d.Add(24*time.Hour+5*time.Minute))
		require.Equal(t, agent, *p.TodayStart)
	})

	t.Run("missing start falls back to last seen", func(t *testing.T) {
		bare := prev
		bare.TodayStartTime, bare.TodayLastActive = nil, nil
		p := planRollover(bare, nil, d.Add(30*time.Hour))
		require.Equal(t, last, *p.Archive.StartTime)
		require.Equal(t, last, *p.Archive.EndTime)
	})

	t.Run("never seen initialises start", func(t *testing.T) {
		now := d.Add(9 * time.Hour)
		p := planRollover(Device{SystemID: "SYS-02"}, nil, now)
		require.Nil(t, p.Archive)
		require.Equal(t, now, *p.TodayStart)
	})

	t.Run("unset start on same day", func(t *testing.T) {
		bare := prev
		bare.TodayStartTime = nil
		now := last.Add(time.Second)
		p := planRollover(bare, nil, now)
		require.Nil(t, p.Archive)
		require.Equal(t, now, *p.TodayStart)
	})

	t.Run("clock behind stored day", func(t *testing.T) {
		p := planRollover(prev, nil, d.Add(-time.Hour))
		require.Nil(t, p.Archive)
	})
}
