package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"labguard/internal/logs"

	"github.com/coder/quartz"
	"github.com/sirupsen/logrus"
)

type Options struct {
	// OfflineAfter is the presence staleness threshold (sweep and read path).
	OfflineAfter time.Duration
	// SessionCloseAfter is the shorter threshold at which the session sweep
	// closes a session and marks the device offline.
	SessionCloseAfter time.Duration
	SessionRetention  time.Duration
	UsageLogRetention time.Duration

	NoiseProcesses []string
	LockShards     int

	Clock   quartz.Clock
	Logger  logrus.FieldLogger
	Metrics *Metrics
	Usage   UsageRecorder
}

// Service runs every device-state transition. Writes for one system_id are
// serialized by a process-local lock; replicas sharing a database are not
// coordinated.
type Service struct {
	store    Store
	usage    UsageRecorder
	clock    quartz.Clock
	log      logrus.FieldLogger
	metrics  *Metrics
	locks    *keyedMutex
	sanitize *Sanitizer

	offlineAfter      time.Duration
	sessionCloseAfter time.Duration
	sessionRetention  time.Duration
	usageRetention    time.Duration
}

func NewService(store Store, o Options) *Service {
	s := &Service{
		store:             store,
		usage:             o.Usage,
		clock:             o.Clock,
		log:               logs.Or(o.Logger).WithField("component", "tracker"),
		metrics:           o.Metrics,
		locks:             newKeyedMutex(o.LockShards),
		sanitize:          NewSanitizer(o.NoiseProcesses),
		offlineAfter:      o.OfflineAfter,
		sessionCloseAfter: o.SessionCloseAfter,
		sessionRetention:  o.SessionRetention,
		usageRetention:    o.UsageLogRetention,
	}
	if s.usage == nil {
		s.usage = nopRecorder{}
	}
	if s.clock == nil {
		s.clock = quartz.NewReal()
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if s.offlineAfter <= 0 {
		s.offlineAfter = 60 * time.Second
	}
	if s.sessionCloseAfter <= 0 {
		s.sessionCloseAfter = 15 * time.Second
	}
	if s.sessionRetention <= 0 {
		s.sessionRetention = 24 * time.Hour
	}
	if s.usageRetention <= 0 {
		s.usageRetention = 24 * time.Hour
	}
	return s
}

func (s *Service) Sanitizer() *Sanitizer { return s.sanitize }

func (s *Service) now() time.Time { return s.clock.Now().UTC() }

// HeartbeatResult is the reply to an agent. Registered is false when the
// hardware id is bound to no slot; nothing was written in that case.
type HeartbeatResult struct {
	Registered bool
	SystemID   string
	HardwareID string
	ServerTime time.Time
}

// Heartbeat applies one agent report: presence, session, rollover, then the
// device row, then hands the usage map to the usage log.
func (s *Service) Heartbeat(ctx context.Context, hb Heartbeat) (HeartbeatResult, error) {
	if hb.HardwareID == "" {
		s.metrics.Heartbeats.WithLabelValues(resultInvalid).Inc()
		return HeartbeatResult{}, fmt.Errorf("%w: missing hardware_id", ErrInvalidInput)
	}
	now := s.now()

	found, err := s.store.FindDeviceByHardwareID(ctx, hb.HardwareID)
	if errors.Is(err, ErrNotFound) {
		s.metrics.Heartbeats.WithLabelValues(resultUnregistered).Inc()
		return HeartbeatResult{HardwareID: hb.HardwareID, ServerTime: now}, nil
	}
	if err != nil {
		s.metrics.Heartbeats.WithLabelValues(resultError).Inc()
		return HeartbeatResult{}, err
	}

	unlock := s.locks.Lock(found.SystemID)
	defer unlock()

	// re-read under the lock; an unbind may have won the race
	prev, err := s.store.GetDevice(ctx, found.SystemID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.metrics.Heartbeats.WithLabelValues(resultError).Inc()
		return HeartbeatResult{}, err
	}
	if err != nil || prev.HardwareID != hb.HardwareID {
		s.metrics.Heartbeats.WithLabelValues(resultUnregistered).Inc()
		return HeartbeatResult{HardwareID: hb.HardwareID, ServerTime: now}, nil
	}

	next := prev
	next.Status = hb.Status
	next.LastSeen = ptr(now)
	next.TodayLastActive = hb.LastActive
	if next.TodayLastActive == nil {
		next.TodayLastActive = ptr(now)
	}
	next.CPUScore = hb.CPUScore
	next.RuntimeMinutes = hb.RuntimeMinutes
	next.AppUsage = hb.AppUsage.Clone()
	if hb.PCName != "" {
		next.PCName = hb.PCName
	}
	hb.Location().Apply(&next)

	s.applyRollover(ctx, prev, &next, hb.SessionStart, now)
	s.trackSession(ctx, prev, next, now)

	if err := s.store.UpdateDevice(ctx, next); err != nil {
		s.metrics.Heartbeats.WithLabelValues(resultError).Inc()
		return HeartbeatResult{}, err
	}

	if len(next.AppUsage) > 0 {
		s.usage.Enqueue(next.SystemID, dayOf(now), next.AppUsage)
	}
	s.metrics.Heartbeats.WithLabelValues(resultOK).Inc()
	return HeartbeatResult{Registered: true, SystemID: next.SystemID, HardwareID: hb.HardwareID, ServerTime: now}, nil
}

func (s *Service) applyRollover(ctx context.Context, prev Device, next *Device, sessionStart *time.Time, now time.Time) {
	plan := planRollover(prev, sessionStart, now)
	if plan.Archive == nil {
		if plan.TodayStart != nil {
			next.TodayStartTime = plan.TodayStart
		}
		return
	}

	log := s.log.WithFields(logrus.Fields{"system_id": prev.SystemID, "date": plan.Archive.Date})
	if err := s.archive(ctx, *plan.Archive); err != nil {
		s.metrics.RolloverFailures.Inc()
		log.WithError(err).Error("daily archive failed")
		return
	}
	s.metrics.Rollovers.Inc()
	log.Info("daily archive written")
	next.TodayStartTime = plan.TodayStart
}

// archive upserts a finished day. A row created by offline sync is merged
// into. A row the rollover already wrote is left alone: the device row did
// not advance (its update failed), so this is the same day archived again.
func (s *Service) archive(ctx context.Context, day DailySummary) error {
	existing, err := s.store.GetDailySummary(ctx, day.DeviceID, day.Date)
	switch {
	case errors.Is(err, ErrNotFound):
		return s.store.UpsertDailySummary(ctx, day)
	case err != nil:
		return err
	case existing.RolledOver:
		s.log.WithFields(logrus.Fields{"system_id": day.DeviceID, "date": day.Date}).
			Debug("day already archived, skipping")
		return nil
	}
	return s.store.UpsertDailySummary(ctx, MergeDailySummary(&existing, day))
}

type SyncResult struct {
	Date string
}

// SyncOffline merges a retroactive day into daily history. The device need
// not exist.
func (s *Service) SyncOffline(ctx context.Context, in OfflineSync) (SyncResult, error) {
	if in.SystemID == "" || in.Date == "" {
		s.metrics.OfflineSyncs.WithLabelValues(resultInvalid).Inc()
		return SyncResult{}, fmt.Errorf("%w: missing system_id or date", ErrInvalidInput)
	}
	if _, err := time.Parse(DateLayout, in.Date); err != nil {
		s.metrics.OfflineSyncs.WithLabelValues(resultInvalid).Inc()
		return SyncResult{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}

	unlock := s.locks.Lock(in.SystemID)
	defer unlock()

	incoming := DailySummary{
		DeviceID:       in.SystemID,
		Date:           in.Date,
		AvgScore:       in.CPUScore,
		RuntimeMinutes: in.RuntimeMinutes,
		StartTime:      in.StartTime,
		EndTime:        in.EndTime,
		City:           in.City,
		College:        in.College,
		LabName:        in.LabName,
		AppUsage:       in.AppUsage,
	}

	var merged DailySummary
	existing, err := s.store.GetDailySummary(ctx, in.SystemID, in.Date)
	switch {
	case errors.Is(err, ErrNotFound):
		merged = MergeDailySummary(nil, incoming)
	case err != nil:
		s.metrics.OfflineSyncs.WithLabelValues(resultError).Inc()
		return SyncResult{}, err
	default:
		merged = MergeDailySummary(&existing, incoming)
	}

	if err := s.store.UpsertDailySummary(ctx, merged); err != nil {
		s.metrics.OfflineSyncs.WithLabelValues(resultError).Inc()
		return SyncResult{}, err
	}
	if len(merged.AppUsage) > 0 {
		s.usage.Enqueue(in.SystemID, in.Date, merged.AppUsage)
	}

	s.metrics.OfflineSyncs.WithLabelValues(resultOK).Inc()
	s.log.WithFields(logrus.Fields{"system_id": in.SystemID, "date": in.Date}).Info("offline sync merged")
	return SyncResult{Date: in.Date}, nil
}
