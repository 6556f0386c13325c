package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

type usageCall struct {
	deviceID string
	date     string
	usage    UsageMap
}

type recorder struct {
	mu    sync.Mutex
	calls []usageCall
}

func (r *recorder) Enqueue(deviceID, date string, usage UsageMap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, usageCall{deviceID, date, usage.Clone()})
}

func (r *recorder) all() []usageCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]usageCall(nil), r.calls...)
}

type fixture struct {
	svc   *Service
	store *MemStore
	clock *quartz.Mock
	usage *recorder
	logs  *test.Hook
}

func newFixture(t *testing.T, store Store) *fixture {
	t.Helper()
	mem, _ := store.(*MemStore)
	if store == nil {
		mem = NewMemStore()
		store = mem
	}
	clock := quartz.NewMock(t)
	clock.Set(day0.Add(10 * time.Hour))

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	usage := &recorder{}

	svc := NewService(store, Options{
		OfflineAfter:      60 * time.Second,
		SessionCloseAfter: 15 * time.Second,
		Clock:             clock,
		Logger:            logger,
		Usage:             usage,
	})
	return &fixture{svc: svc, store: mem, clock: clock, usage: usage, logs: hook}
}

func (f *fixture) bound(t *testing.T, systemID, hardwareID string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Provision(ctx, Device{SystemID: systemID, City: "Lahore", College: "GC", LabName: "Lab 1"})
	require.NoError(t, err)
	_, err = f.svc.Bind(ctx, hardwareID, systemID)
	require.NoError(t, err)
}

func (f *fixture) beat(t *testing.T, raw map[string]any) HeartbeatResult {
	t.Helper()
	res, err := f.svc.Heartbeat(context.Background(), f.svc.Sanitizer().Heartbeat(raw))
	require.NoError(t, err)
	return res
}

func (f *fixture) device(t *testing.T, systemID string) Device {
	t.Helper()
	d, err := f.store.GetDevice(context.Background(), systemID)
	require.NoError(t, err)
	return d
}

func openCount(sessions []Session) int {
	n := 0
	for _, s := range sessions {
		if s.EndTime == nil {
			n++
		}
	}
	return n
}

func TestHeartbeatUnregistered(t *testing.T) {
	f := newFixture(t, nil)

	res := f.beat(t, map[string]any{"hardware_id": "HW1", "app_usage": map[string]any{"chrome": 5}})
	require.False(t, res.Registered)
	require.Equal(t, "HW1", res.HardwareID)

	n, err := f.store.CountDevices(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, f.store.Sessions("HW1"))
	require.Empty(t, f.usage.all())
	require.Equal(t, 1.0, testutil.ToFloat64(f.svc.metrics.Heartbeats.WithLabelValues(resultUnregistered)))
}

func TestHeartbeatMissingHardwareID(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Heartbeat(context.Background(), SanitizeHeartbeat(map[string]any{}))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestHeartbeatMalformedRuntime(t *testing.T) {
	f := newFixture(t, nil)
	f.bound(t, "SYS-01", "HW1")

	res := f.beat(t, map[string]any{"hardware_id": "HW1", "runtime_minutes": "38.0abc", "pc_name": "PC-1"})
	require.True(t, res.Registered)
	require.Equal(t, "SYS-01", res.SystemID)

	d := f.device(t, "SYS-01")
	require.Zero(t, d.RuntimeMinutes)
	require.Equal(t, StatusOnline, d.Status)
	require.Equal(t, "PC-1", d.PCName)
	require.Equal(t, f.clock.Now().UTC(), *d.LastSeen)
}

func TestHeartbeatKeepsPCNameWhenAbsent(t *testing.T) {
	f := newFixture(t, nil)
	f.bound(t, "SYS-01", "HW1")

	f.beat(t, map[string]any{"hardware_id": "HW1", "pc_name": "PC-1", "city": "Multan"})
	f.beat(t, map[string]any{"hardware_id": "HW1"})

	d := f.device(t, "SYS-01")
	require.Equal(t, "PC-1", d.PCName)
	require.Equal(t, "Multan", d.City)
	require.Equal(t, "GC", d.College)
}

func TestHeartbeatSessionLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	f.bound(t, "SYS-01", "HW1")

	f.beat(t, map[string]any{"hardware_id": "HW1", "cpu_score": 70})
	f.clock.Advance(10 * time.Second)
	f.beat(t, map[string]any{"hardware_id": "HW1"})

	sessions := f.store.Sessions("SYS-01")
	require.Len(t, sessions, 1)
	require.Nil(t, sessions[0].EndTime)
	require.Equal(t, "Lab 1", sessions[0].LabName)
	require.InDelta(t, 70.0, sessions[0].AvgScore, 1e-9)

	// the agent reports itself offline, then comes back
	f.clock.Advance(5 * time.Second)
	f.beat(t, map[string]any{"hardware_id": "HW1", "status": "offline"})
	offlineAt := f.clock.Now().UTC()
	require.Equal(t, StatusOffline, f.device(t, "SYS-01").Status)
	require.Len(t, f.store.Sessions("SYS-01"), 1)

	f.clock.Advance(time.Minute)
	f.beat(t, map[string]any{"hardware_id": "HW1"})

	sessions = f.store.Sessions("SYS-01")
	require.Len(t, sessions, 2)
	require.Equal(t, 1, openCount(sessions))
	require.Equal(t, offlineAt, *sessions[0].EndTime)
	require.Equal(t, int64(15), *sessions[0].DurationSeconds)
}

func TestSessionAcrossMidnight(t *testing.T) {
	f := newFixture(t, nil)
	f.bound(t, "SYS-01", "HW1")

	f.clock.Set(day0.Add(23*time.Hour + 59*time.Minute + 50*time.Second))
	f.beat(t, map[string]any{"hardware_id": "HW1"})
	lastBefore := f.clock.Now().UTC()

	f.clock.Advance(20 * time.Second)
	f.beat(t, map[string]any{"hardware_id": "HW1"})

	sessions := f.store.Sessions("SYS-01")
	require.Len(t, sessions, 2)
	require.Equal(t, 1, openCount(sessions))
	require.Equal(t, lastBefore, *sessions[0].EndTime)
	require.Equal(t, day0.Add(24*time.Hour+10*time.Second), sessions[1].StartTime)
}

func TestConcurrentHeartbeatsOneOpenSession(t *testing.T) {
	f := newFixture(t, nil)
	f.bound(t, "SYS-01", "HW1")

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Heartbeat(context.Background(), Heartbeat{HardwareID: "HW1", Status: StatusOnline})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, f.store.Sessions("SYS-01"), 1)
	require.Equal(t, 1, openCount(f.store.Sessions("SYS-01")))
}

func TestRolloverArchivesOutgoingDay(t *testing.T) {
	f := newFixture(t, nil)
	f.bound(t, "SYS-01", "HW1")
	ctx := context.Background()
	first := f.clock.Now().UTC()

	f.beat(t, map[string]any{"hardware_id": "HW1", "app_usage": map[string]any{"chrome": 100}, "runtime_minutes": 42, "cpu_score": 80})

	f.clock.Set(day0.Add(33 * time.Hour))
	f.beat(t, map[string]any{"hardware_id": "HW1", "app_usage": map[string]any{"word": 7}})
	f.clock.Advance(time.Minute)
	f.beat(t, map[string]any{"hardware_id": "HW1", "app_usage": map[string]any{"word": 9}})

	hist, err := f.store.GetDailySummary(ctx, "SYS-01", "2026-03-10")
	require.NoError(t, err)
	require.Equal(t, UsageMap{"chrome": 100}, hist.AppUsage)
	require.Equal(t, int64(42), hist.RuntimeMinutes)
	require.InDelta(t, 80.0, hist.AvgScore, 1e-9)
	require.Equal(t, first, *hist.StartTime)
	require.Equal(t, first, *hist.EndTime)
	require.Equal(t, "Lahore", hist.City)

	d := f.device(t, "SYS-01")
	require.Equal(t, UsageMap{"word": 9}, d.AppUsage)
	require.Equal(t, day0.Add(33*time.Hour), *d.TodayStartTime)

	all, err := f.store.ListDailySummaries(ctx, "SYS-01", 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, 1.0, testutil.ToFloat64(f.svc.metrics.Rollovers))

	calls := f.usage.all()
	require.Len(t, calls, 3)
	require.Equal(t, usageCall{"SYS-01", "2026-03-11", UsageMap{"word": 9}}, calls[2])
}

func TestRolloverMergesIntoSyncedDay(t *testing.T) {
	f := newFixture(t, nil)
	f.bound(t, "SYS-01", "HW1")
	ctx := context.Background()

	_, err := f.svc.SyncOffline(ctx, OfflineSync{SystemID: "SYS-01", Date: "2026-03-10", RuntimeMinutes: 300, AppUsage: UsageMap{"chrome": 50}})
	require.NoError(t, err)

	f.beat(t, map[string]any{"hardware_id": "HW1", "app_usage": map[string]any{"chrome": 100}, "runtime_minutes": 120})
	f.clock.Set(day0.Add(26 * time.Hour))
	f.beat(t, map[string]any{"hardware_id": "HW1"})

	hist, err := f.store.GetDailySummary(ctx, "SYS-01", "2026-03-10")
	require.NoError(t, err)
	require.Equal(t, UsageMap{"chrome": 150}, hist.AppUsage)
	require.Equal(t, int64(300), hist.RuntimeMinutes)
}

type failingStore struct {
	*MemStore
	historyErr error
	updateErr  error
}

func (s *failingStore) UpsertDailySummary(ctx context.Context, d DailySummary) error {
	if s.historyErr != nil {
		return s.historyErr
	}
	return s.MemStore.UpsertDailySummary(ctx, d)
}

func (s *failingStore) UpdateDevice(ctx context.Context, d Device) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	return s.MemStore.UpdateDevice(ctx, d)
}

func TestRolloverArchiveFailureDoesNotFailHeartbeat(t *testing.T) {
	fs := &failingStore{MemStore: NewMemStore()}
	f := newFixture(t, fs)
	f.store = fs.MemStore
	f.bound(t, "SYS-01", "HW1")
	start := f.clock.Now().UTC()

	f.beat(t, map[string]any{"hardware_id": "HW1", "app_usage": map[string]any{"chrome": 100}})

	fs.historyErr = errors.New("history table locked")
	f.clock.Set(day0.Add(30 * time.Hour))
	res := f.beat(t, map[string]any{"hardware_id": "HW1", "app_usage": map[string]any{"word": 1}})
	require.True(t, res.Registered)

	d := f.device(t, "SYS-01")
	require.Equal(t, day0.Add(30*time.Hour), *d.LastSeen)
	require.Equal(t, start, *d.TodayStartTime)
	require.Equal(t, UsageMap{"word": 1}, d.AppUsage)
	require.Equal(t, 1.0, testutil.ToFloat64(f.svc.metrics.RolloverFailures))

	var logged bool
	for _, e := range f.logs.AllEntries() {
		if e.Message == "daily archive failed" {
			logged = true
		}
	}
	require.True(t, logged)
}

func TestHeartbeatPrimaryUpdateFailure(t *testing.T) {
	fs := &failingStore{MemStore: NewMemStore()}
	f := newFixture(t, fs)
	f.store = fs.MemStore
	f.bound(t, "SYS-01", "HW1")

	fs.updateErr = errors.New("connection reset")
	_, err := f.svc.Heartbeat(context.Background(), Heartbeat{HardwareID: "HW1", Status: StatusOnline})
	require.EqualError(t, err, "connection reset")
	require.Empty(t, f.usage.all())
}

func TestRolloverRetriedAfterFailedUpdateArchivesOnce(t *testing.T) {
	fs := &failingStore{MemStore: NewMemStore()}
	f := newFixture(t, fs)
	f.store = fs.MemStore
	f.bound(t, "SYS-01", "HW1")
	ctx := context.Background()

	f.beat(t, map[string]any{"hardware_id": "HW1", "app_usage": map[string]any{"chrome": 100}, "cpu_score": 80})

	// the boundary heartbeat archives day 0, then the device update fails
	f.clock.Set(day0.Add(30 * time.Hour))
	fs.updateErr = errors.New("connection reset")
	_, err := f.svc.Heartbeat(ctx, f.svc.Sanitizer().Heartbeat(map[string]any{"hardware_id": "HW1"}))
	require.Error(t, err)

	fs.updateErr = nil
	f.clock.Advance(10 * time.Second)
	f.beat(t, map[string]any{"hardware_id": "HW1", "cpu_score": 20})

	hist, err := f.store.GetDailySummary(ctx, "SYS-01", "2026-03-10")
	require.NoError(t, err)
	require.Equal(t, UsageMap{"chrome": 100}, hist.AppUsage)
	require.InDelta(t, 80.0, hist.AvgScore, 1e-9)
	require.True(t, hist.RolledOver)

	// a late offline sync still merges into the archived day
	_, err = f.svc.SyncOffline(ctx, OfflineSync{SystemID: "SYS-01", Date: "2026-03-10", AppUsage: UsageMap{"chrome": 5}})
	require.NoError(t, err)
	hist, err = f.store.GetDailySummary(ctx, "SYS-01", "2026-03-10")
	require.NoError(t, err)
	require.Equal(t, UsageMap{"chrome": 105}, hist.AppUsage)
	require.True(t, hist.RolledOver)
}

func TestFailedUpdateKeepsStartedSession(t *testing.T) {
	fs := &failingStore{MemStore: NewMemStore()}
	f := newFixture(t, fs)
	f.store = fs.MemStore
	f.bound(t, "SYS-01", "HW1")
	startedAt := f.clock.Now().UTC()

	fs.updateErr = errors.New("connection reset")
	_, err := f.svc.Heartbeat(context.Background(), Heartbeat{HardwareID: "HW1", Status: StatusOnline})
	require.Error(t, err)
	require.Len(t, f.store.Sessions("SYS-01"), 1)

	fs.updateErr = nil
	f.clock.Advance(10 * time.Second)
	f.beat(t, map[string]any{"hardware_id": "HW1"})

	sessions := f.store.Sessions("SYS-01")
	require.Len(t, sessions, 1)
	require.Nil(t, sessions[0].EndTime)
	require.Equal(t, startedAt, sessions[0].StartTime)
}

func TestSyncOfflineRedelivery(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	in := SanitizeOfflineSync(map[string]any{
		"system_id":       "SYS-09",
		"date":            "2026-03-08",
		"runtime_minutes": 5,
		"cpu_score":       60,
		"app_usage":       map[string]any{"appA": 10},
	})

	res, err := f.svc.SyncOffline(ctx, in)
	require.NoError(t, err)
	require.Equal(t, "2026-03-08", res.Date)
	_, err = f.svc.SyncOffline(ctx, in)
	require.NoError(t, err)

	hist, err := f.store.GetDailySummary(ctx, "SYS-09", "2026-03-08")
	require.NoError(t, err)
	require.Equal(t, int64(20), hist.AppUsage["appA"])
	require.Equal(t, int64(5), hist.RuntimeMinutes)
	require.InDelta(t, 60.0, hist.AvgScore, 1e-9)

	calls := f.usage.all()
	require.Len(t, calls, 2)
	require.Equal(t, UsageMap{"appA": 20}, calls[1].usage)
}

func TestSyncOfflineTimeMerge(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	t0, t1, t2, t3 := base.Add(7*time.Hour), base.Add(8*time.Hour), base.Add(15*time.Hour), base.Add(17*time.Hour)

	_, err := f.svc.SyncOffline(ctx, OfflineSync{SystemID: "SYS-09", Date: "2026-03-08", StartTime: &t1, EndTime: &t2})
	require.NoError(t, err)
	_, err = f.svc.SyncOffline(ctx, OfflineSync{SystemID: "SYS-09", Date: "2026-03-08", StartTime: &t0, EndTime: &t3})
	require.NoError(t, err)

	hist, err := f.store.GetDailySummary(ctx, "SYS-09", "2026-03-08")
	require.NoError(t, err)
	require.Equal(t, t0, *hist.StartTime)
	require.Equal(t, t3, *hist.EndTime)
}

func TestSyncOfflineValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for _, in := range []OfflineSync{
		{Date: "2026-03-08"},
		{SystemID: "SYS-09"},
		{SystemID: "SYS-09", Date: "08/03/2026"},
	} {
		_, err := f.svc.SyncOffline(ctx, in)
		require.ErrorIs(t, err, ErrInvalidInput)
	}
}
