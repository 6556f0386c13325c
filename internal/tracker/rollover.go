package tracker

import "time"

// rollover is what a heartbeat at now does to the per-day accumulators.
type rollover struct {
	// Archive is the outgoing day, set only when the UTC date advanced.
	Archive *DailySummary
	// TodayStart is the new today_start_time, nil to keep the stored one.
	TodayStart *time.Time
}

// planRollover compares the stored last_seen day with now's day (UTC).
// A device never seen before, or one with no start recorded, gets its start
// initialised from the agent's session start or now.
func planRollover(prev Device, sessionStart *time.Time, now time.Time) rollover {
	start := sessionStart
	if start == nil {
		start = ptr(now)
	}

	if prev.LastSeen == nil {
		return rollover{TodayStart: start}
	}

	last := prev.LastSeen.UTC()
	if !startOfDay(now).After(startOfDay(last)) {
		if prev.TodayStartTime == nil {
			return rollover{TodayStart: start}
		}
		return rollover{}
	}

	archive := DailySummary{
		DeviceID:       prev.SystemID,
		Date:           dayOf(last),
		AvgScore:       prev.CPUScore,
		RuntimeMinutes: prev.RuntimeMinutes,
		StartTime:      prev.TodayStartTime,
		EndTime:        prev.TodayLastActive,
		City:           prev.City,
		College:        prev.College,
		LabName:        prev.LabName,
		AppUsage:       prev.AppUsage.Clone(),
		RolledOver:     true,
	}
	if archive.StartTime == nil {
		archive.StartTime = ptr(last)
	}
	if archive.EndTime == nil {
		archive.EndTime = ptr(last)
	}
	return rollover{Archive: &archive, TodayStart: start}
}
