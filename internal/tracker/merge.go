package tracker

import "time"

// MergeDailySummary combines an incoming partial day into the existing row.
//
// Usage seconds are summed per app and scores are averaged two-point, so
// re-delivering the same payload is not idempotent for those fields.
// Runtime takes the max, start the earliest, end the latest.
func MergeDailySummary(existing *DailySummary, incoming DailySummary) DailySummary {
	if existing == nil {
		out := incoming
		out.AppUsage = incoming.AppUsage.Clone()
		return out
	}

	out := DailySummary{
		DeviceID:       incoming.DeviceID,
		Date:           incoming.Date,
		AvgScore:       (existing.AvgScore + incoming.AvgScore) / 2,
		RuntimeMinutes: max(existing.RuntimeMinutes, incoming.RuntimeMinutes),
		StartTime:      earliest(existing.StartTime, incoming.StartTime),
		EndTime:        latest(existing.EndTime, incoming.EndTime),
		City:           pick(incoming.City, existing.City),
		College:        pick(incoming.College, existing.College),
		LabName:        pick(incoming.LabName, existing.LabName),
		AppUsage:       existing.AppUsage.Clone(),
		RolledOver:     existing.RolledOver || incoming.RolledOver,
	}
	if out.DeviceID == "" {
		out.DeviceID = existing.DeviceID
	}
	if out.Date == "" {
		out.Date = existing.Date
	}
	for app, sec := range incoming.AppUsage {
		out.AppUsage[app] += sec
	}
	return out
}

func earliest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.Before(*a):
		return b
	default:
		return a
	}
}

func latest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}

func pick(preferred, fallback string) string {
	if preferred != "" {
		return preferred
	}
	return fallback
}
