package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSweeperRun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	f := newFixture(t, nil)
	f.bound(t, "SYS-01", "HW1")
	f.bound(t, "SYS-02", "HW2")
	f.beat(t, map[string]any{"hardware_id": "HW1"})
	require.NoError(t, f.store.CreateSession(ctx, &Session{DeviceID: "SYS-09", StartTime: f.clock.Now().Add(-48 * time.Hour)}))

	trap := f.clock.Trap().TickerFunc("sweeper")
	defer trap.Close()

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- NewSweeper(f.svc, time.Minute, 30*time.Second).Run(runCtx) }()

	trap.MustWait(ctx).MustRelease(ctx)
	trap.MustWait(ctx).MustRelease(ctx)

	// session tick: HW1 silent for 30s, past the 15s close threshold
	f.clock.Advance(20 * time.Second).MustWait(ctx)
	f.beat(t, map[string]any{"hardware_id": "HW2"})
	f.clock.Advance(10 * time.Second).MustWait(ctx)

	require.Equal(t, StatusOffline, f.device(t, "SYS-01").Status)
	require.Zero(t, openCount(f.store.Sessions("SYS-01")))
	require.Equal(t, StatusOnline, f.device(t, "SYS-02").Status)

	// presence tick at one minute also prunes expired sessions
	f.clock.Advance(30 * time.Second).MustWait(ctx)
	require.Empty(t, f.store.Sessions("SYS-09"))

	stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("sweeper did not stop")
	}
}
