package tracker

import (
	"context"
	"time"
)

// Sweeper runs the two background loops: presence (demotion plus retention
// prune) and session close. They tick independently.
type Sweeper struct {
	svc           *Service
	presenceEvery time.Duration
	sessionEvery  time.Duration
}

func NewSweeper(svc *Service, presenceEvery, sessionEvery time.Duration) *Sweeper {
	if presenceEvery <= 0 {
		presenceEvery = 60 * time.Second
	}
	if sessionEvery <= 0 {
		sessionEvery = 30 * time.Second
	}
	return &Sweeper{svc: svc, presenceEvery: presenceEvery, sessionEvery: sessionEvery}
}

// Run blocks until ctx is done. Tick errors are logged and counted, never returned.
func (w *Sweeper) Run(ctx context.Context) error {
	clock := w.svc.clock
	presence := clock.TickerFunc(ctx, w.presenceEvery, func() error {
		w.presenceTick(ctx)
		return nil
	}, "sweeper", "presence")
	session := clock.TickerFunc(ctx, w.sessionEvery, func() error {
		w.sessionTick(ctx)
		return nil
	}, "sweeper", "session")

	w.svc.log.WithField("presence_every", w.presenceEvery).
		WithField("session_every", w.sessionEvery).
		Info("sweeper started")

	_ = presence.Wait()
	_ = session.Wait()
	return nil
}

func (w *Sweeper) presenceTick(ctx context.Context) {
	if _, err := w.svc.SweepPresence(ctx); err != nil {
		w.svc.metrics.SweepFailures.WithLabelValues("presence").Inc()
		w.svc.log.WithError(err).Error("presence sweep failed")
	}
	if err := w.svc.Prune(ctx); err != nil {
		w.svc.metrics.SweepFailures.WithLabelValues("retention").Inc()
		w.svc.log.WithError(err).Error("retention prune failed")
	}
}

func (w *Sweeper) sessionTick(ctx context.Context) {
	if _, err := w.svc.CloseStaleSessions(ctx); err != nil {
		w.svc.metrics.SweepFailures.WithLabelValues("session").Inc()
		w.svc.log.WithError(err).Error("session sweep failed")
	}
}
