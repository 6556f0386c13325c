package tracker

import (
	"context"

	"github.com/sirupsen/logrus"
)

// SweepPresence demotes every online device whose last_seen is older than
// the presence threshold. Devices online with no last_seen are left alone.
// Running it again without new heartbeats changes nothing.
func (s *Service) SweepPresence(ctx context.Context) (int64, error) {
	n, err := s.store.MarkStaleOffline(ctx, s.now().Add(-s.offlineAfter))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.metrics.Demotions.Add(float64(n))
		s.log.WithField("devices", n).Info("marked stale devices offline")
	}
	return n, nil
}

// Prune drops sessions and usage-log rows past their retention window.
func (s *Service) Prune(ctx context.Context) error {
	now := s.now()

	sessions, err := s.store.DeleteSessionsBefore(ctx, now.Add(-s.sessionRetention))
	if err != nil {
		return err
	}
	logsDeleted, err := s.store.DeleteUsageLogsBefore(ctx, dayOf(now.Add(-s.usageRetention)))
	if err != nil {
		return err
	}
	if sessions > 0 || logsDeleted > 0 {
		s.log.WithFields(logrus.Fields{"sessions": sessions, "usage_logs": logsDeleted}).Debug("retention prune")
	}
	return nil
}

// selfHeal is the read-path sweep. A failure is logged and the read goes on.
func (s *Service) selfHeal(ctx context.Context) {
	if _, err := s.SweepPresence(ctx); err != nil {
		s.log.WithError(err).Warn("status cleanup failed")
	}
}
