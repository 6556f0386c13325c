package tracker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ─────────────────────────── in-memory store (fallback) ───────────────────────────

type histKey struct{ device, date string }

type usageKey struct{ device, date, app string }

// MemStore is a Store kept in process memory. It backs the server when no
// database driver is configured, and the tests.
type MemStore struct {
	mu       sync.RWMutex
	devices  map[string]Device
	byHW     map[string]string // hardware_id -> system_id
	sessions []Session
	nextID   uint64
	history  map[histKey]DailySummary
	usage    map[usageKey]int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		devices: make(map[string]Device),
		byHW:    make(map[string]string),
		history: make(map[histKey]DailySummary),
		usage:   make(map[usageKey]int64),
	}
}

func copyDevice(d Device) Device {
	d.AppUsage = d.AppUsage.Clone()
	d.LastSeen = copyTime(d.LastSeen)
	d.TodayStartTime = copyTime(d.TodayStartTime)
	d.TodayLastActive = copyTime(d.TodayLastActive)
	return d
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return ptr(*t)
}

func (m *MemStore) GetDevice(_ context.Context, systemID string) (Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[systemID]
	if !ok {
		return Device{}, ErrNotFound
	}
	return copyDevice(d), nil
}

func (m *MemStore) FindDeviceByHardwareID(_ context.Context, hardwareID string) (Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byHW[hardwareID]
	if !ok {
		return Device{}, ErrNotFound
	}
	return copyDevice(m.devices[id]), nil
}

func (m *MemStore) CreateDevice(_ context.Context, d Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[d.SystemID]; ok {
		return ErrAlreadyExists
	}
	if d.HardwareID != "" {
		if _, ok := m.byHW[d.HardwareID]; ok {
			return ErrHardwareInUse
		}
		m.byHW[d.HardwareID] = d.SystemID
	}
	if d.Status == "" {
		d.Status = StatusOffline
	}
	m.devices[d.SystemID] = copyDevice(d)
	return nil
}

func (m *MemStore) UpdateDevice(_ context.Context, d Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.devices[d.SystemID]
	if !ok {
		return ErrNotFound
	}
	d.HardwareID = cur.HardwareID
	m.devices[d.SystemID] = copyDevice(d)
	return nil
}

func (m *MemStore) UpdateLocation(_ context.Context, systemID string, p LocationPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[systemID]
	if !ok {
		return ErrNotFound
	}
	p.Apply(&d)
	m.devices[systemID] = d
	return nil
}

func (m *MemStore) BindHardware(_ context.Context, systemID, hardwareID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[systemID]
	if !ok {
		return ErrNotFound
	}
	if d.HardwareID != "" {
		return ErrAlreadyBound
	}
	if _, taken := m.byHW[hardwareID]; taken {
		return ErrHardwareInUse
	}
	d.HardwareID = hardwareID
	m.devices[systemID] = d
	m.byHW[hardwareID] = systemID
	return nil
}

func (m *MemStore) UnbindHardware(_ context.Context, systemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[systemID]
	if !ok {
		return ErrNotFound
	}
	delete(m.byHW, d.HardwareID)
	d.HardwareID = ""
	d.Status = StatusOffline
	m.devices[systemID] = d
	return nil
}

func (m *MemStore) sortedDevices(keep func(Device) bool) []Device {
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		if keep(d) {
			out = append(out, copyDevice(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SystemID < out[j].SystemID })
	return out
}

func (m *MemStore) ListUnbound(context.Context) ([]Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedDevices(func(d Device) bool { return !d.Bound() }), nil
}

func (m *MemStore) ListDevices(_ context.Context, f DeviceFilter) ([]Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	search := strings.ToLower(f.Search)
	return m.sortedDevices(func(d Device) bool {
		if !d.Bound() {
			return false
		}
		if f.City != "" && d.City != f.City {
			return false
		}
		return search == "" || strings.Contains(strings.ToLower(d.PCName), search)
	}), nil
}

func (m *MemStore) CountDevices(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.devices)), nil
}

func stale(d Device, cutoff time.Time) bool {
	return d.Status == StatusOnline && d.LastSeen != nil && d.LastSeen.Before(cutoff)
}

func (m *MemStore) MarkStaleOffline(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, d := range m.devices {
		if stale(d, cutoff) {
			d.Status = StatusOffline
			m.devices[id] = d
			n++
		}
	}
	return n, nil
}

func (m *MemStore) ListStaleOnline(_ context.Context, cutoff time.Time) ([]Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedDevices(func(d Device) bool { return stale(d, cutoff) }), nil
}

func (m *MemStore) MarkOfflineIfStale(_ context.Context, systemID string, cutoff time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[systemID]
	if !ok || !stale(d, cutoff) {
		return false, nil
	}
	d.Status = StatusOffline
	m.devices[systemID] = d
	return true, nil
}

func (m *MemStore) HasSessionSince(_ context.Context, deviceID string, since time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.DeviceID == deviceID && !s.StartTime.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) OpenSessions(_ context.Context, deviceID string) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Session
	for _, s := range m.sessions {
		if s.DeviceID == deviceID && s.EndTime == nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemStore) CreateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	m.sessions = append(m.sessions, *s)
	return nil
}

func (m *MemStore) CloseSession(_ context.Context, id uint64, end time.Time, durationSeconds int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			m.sessions[i].EndTime = ptr(end)
			m.sessions[i].DurationSeconds = ptr(durationSeconds)
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemStore) DeleteSessionsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.sessions[:0]
	for _, s := range m.sessions {
		if !s.StartTime.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	n := int64(len(m.sessions) - len(kept))
	m.sessions = kept
	return n, nil
}

// Sessions returns every session of deviceID in creation order.
func (m *MemStore) Sessions(deviceID string) []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Session
	for _, s := range m.sessions {
		if s.DeviceID == deviceID {
			out = append(out, s)
		}
	}
	return out
}

func copySummary(s DailySummary) DailySummary {
	s.AppUsage = s.AppUsage.Clone()
	s.StartTime = copyTime(s.StartTime)
	s.EndTime = copyTime(s.EndTime)
	return s
}

func (m *MemStore) GetDailySummary(_ context.Context, deviceID, date string) (DailySummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.history[histKey{deviceID, date}]
	if !ok {
		return DailySummary{}, ErrNotFound
	}
	return copySummary(s), nil
}

func (m *MemStore) UpsertDailySummary(_ context.Context, s DailySummary) error {
	if s.DeviceID == "" || s.Date == "" {
		return fmt.Errorf("%w: daily summary key", ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[histKey{s.DeviceID, s.Date}] = copySummary(s)
	return nil
}

func (m *MemStore) ListDailySummaries(_ context.Context, deviceID string, limit int) ([]DailySummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []DailySummary
	for k, s := range m.history {
		if k.device == deviceID {
			out = append(out, copySummary(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) UpsertUsageLogs(_ context.Context, entries []UsageLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.usage[usageKey{e.DeviceID, e.Date, e.AppName}] = e.SecondsAdded
	}
	return nil
}

func (m *MemStore) DeleteUsageLogsBefore(_ context.Context, date string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.usage {
		if k.date < date {
			delete(m.usage, k)
			n++
		}
	}
	return n, nil
}

// UsageLog returns the logged seconds for (deviceID, date) keyed by app.
func (m *MemStore) UsageLog(deviceID, date string) UsageMap {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := UsageMap{}
	for k, v := range m.usage {
		if k.device == deviceID && k.date == date {
			out[k.app] = v
		}
	}
	return out
}

var _ Store = (*MemStore)(nil)
