package tracker

import (
	"context"
	"time"
)

// DeviceStore persists device slots. Lookups return ErrNotFound when no row matches.
type DeviceStore interface {
	GetDevice(ctx context.Context, systemID string) (Device, error)
	FindDeviceByHardwareID(ctx context.Context, hardwareID string) (Device, error)
	CreateDevice(ctx context.Context, d Device) error
	// UpdateDevice writes every mutable heartbeat field of d. HardwareID is not touched.
	UpdateDevice(ctx context.Context, d Device) error
	UpdateLocation(ctx context.Context, systemID string, p LocationPatch) error
	// BindHardware sets hardware_id only while it is still NULL.
	BindHardware(ctx context.Context, systemID, hardwareID string) error
	UnbindHardware(ctx context.Context, systemID string) error
	ListUnbound(ctx context.Context) ([]Device, error)
	ListDevices(ctx context.Context, f DeviceFilter) ([]Device, error)
	CountDevices(ctx context.Context) (int64, error)

	// MarkStaleOffline demotes every online device last seen before cutoff.
	MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error)
	ListStaleOnline(ctx context.Context, cutoff time.Time) ([]Device, error)
	// MarkOfflineIfStale demotes one device if it is still online and stale.
	MarkOfflineIfStale(ctx context.Context, systemID string, cutoff time.Time) (bool, error)
}

type SessionStore interface {
	HasSessionSince(ctx context.Context, deviceID string, since time.Time) (bool, error)
	OpenSessions(ctx context.Context, deviceID string) ([]Session, error)
	CreateSession(ctx context.Context, s *Session) error
	CloseSession(ctx context.Context, id uint64, end time.Time, durationSeconds int64) error
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type HistoryStore interface {
	GetDailySummary(ctx context.Context, deviceID, date string) (DailySummary, error)
	UpsertDailySummary(ctx context.Context, s DailySummary) error
	// ListDailySummaries returns the newest rows first.
	ListDailySummaries(ctx context.Context, deviceID string, limit int) ([]DailySummary, error)
}

type UsageLogStore interface {
	// UpsertUsageLogs replaces seconds_added for each (device_id, date, app_name).
	UpsertUsageLogs(ctx context.Context, entries []UsageLogEntry) error
	DeleteUsageLogsBefore(ctx context.Context, date string) (int64, error)
}

type Store interface {
	DeviceStore
	SessionStore
	HistoryStore
	UsageLogStore
}

// UsageRecorder takes a day's usage map off the request path.
type UsageRecorder interface {
	Enqueue(deviceID, date string, usage UsageMap)
}

type nopRecorder struct{}

func (nopRecorder) Enqueue(string, string, UsageMap) {}
