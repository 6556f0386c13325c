package tracker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// trackSession opens a session on a rising edge, or on the first online
// heartbeat of the UTC day. Any session still open at that point (the device
// was demoted without a close, or the session spans midnight) is closed at
// the previous last_seen first, so a device never has two open sessions.
// A session opened after the previous last_seen is kept as is.
// Failures are logged; they never fail the heartbeat.
func (s *Service) trackSession(ctx context.Context, prev, next Device, now time.Time) {
	if next.Status != StatusOnline {
		return
	}
	log := s.log.WithField("system_id", next.SystemID)

	start := prev.Status == StatusOffline
	if !start {
		has, err := s.store.HasSessionSince(ctx, next.SystemID, startOfDay(now))
		if err != nil {
			log.WithError(err).Warn("session lookup failed")
			return
		}
		start = !has
	}
	if !start {
		return
	}

	open, err := s.store.OpenSessions(ctx, next.SystemID)
	if err != nil {
		log.WithError(err).Warn("session lookup failed")
		return
	}
	// сессия, начатая после prev.LastSeen, осталась от heartbeat, чей
	// UPDATE устройства не прошёл: продолжаем её
	for _, sess := range open {
		if prev.LastSeen == nil || sess.StartTime.After(*prev.LastSeen) {
			return
		}
	}

	closeAt := now
	if prev.LastSeen != nil {
		closeAt = prev.LastSeen.UTC()
	}
	if err := s.closeSessions(ctx, open, closeAt); err != nil {
		log.WithError(err).Warn("closing superseded session failed")
		return
	}

	sess := &Session{
		DeviceID:  next.SystemID,
		StartTime: now,
		City:      next.City,
		College:   next.College,
		LabName:   next.LabName,
		AvgScore:  next.CPUScore,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		log.WithError(err).Error("session start failed")
		return
	}
	s.metrics.SessionsOpened.Inc()
	log.WithField("session_id", sess.ID).Debug("session opened")
}

// closeOpenSessions ends every open session of deviceID at end. Duration is
// clamped at zero when end precedes the start.
func (s *Service) closeOpenSessions(ctx context.Context, deviceID string, end time.Time) error {
	open, err := s.store.OpenSessions(ctx, deviceID)
	if err != nil {
		return err
	}
	return s.closeSessions(ctx, open, end)
}

func (s *Service) closeSessions(ctx context.Context, open []Session, end time.Time) error {
	for _, sess := range open {
		dur := int64(end.Sub(sess.StartTime) / time.Second)
		if dur < 0 {
			dur = 0
		}
		if err := s.store.CloseSession(ctx, sess.ID, end, dur); err != nil {
			return err
		}
		s.metrics.SessionsClosed.Inc()
	}
	return nil
}

// CloseStaleSessions marks devices offline once their heartbeat is older than
// the session threshold and closes their open sessions at now. It returns the
// number of devices closed.
func (s *Service) CloseStaleSessions(ctx context.Context) (int, error) {
	now := s.now()
	cutoff := now.Add(-s.sessionCloseAfter)

	stale, err := s.store.ListStaleOnline(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, d := range stale {
		ok, err := s.closeDevice(ctx, d.SystemID, cutoff, now)
		if err != nil {
			s.log.WithError(err).WithField("system_id", d.SystemID).Warn("session close failed")
			continue
		}
		if ok {
			closed++
		}
	}
	if closed > 0 {
		s.log.WithFields(logrus.Fields{"devices": closed}).Info("closed stale sessions")
	}
	return closed, nil
}

func (s *Service) closeDevice(ctx context.Context, systemID string, cutoff, now time.Time) (bool, error) {
	unlock := s.locks.Lock(systemID)
	defer unlock()

	// demote first: a heartbeat that landed since the listing keeps its session
	ok, err := s.store.MarkOfflineIfStale(ctx, systemID, cutoff)
	if err != nil || !ok {
		return false, err
	}
	s.metrics.Demotions.Inc()
	return true, s.closeOpenSessions(ctx, systemID, now)
}
