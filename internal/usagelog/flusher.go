// Package usagelog batches per-app usage into the granular usage log, off
// the heartbeat path.
package usagelog

import (
	"context"
	"sort"
	"time"

	"labguard/internal/logs"
	"labguard/internal/tracker"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	defaultBatchSize     = 500
	defaultQueueSize     = 2048
	defaultFlushInterval = 5 * time.Second

	// bound on the shutdown flush, whose parent context is already done
	finalFlushTimeout = 15 * time.Second

	flushCapacity = "capacity"
	flushTicker   = "scheduled"
	flushExit     = "shutdown"
)

// Writer is the slice of the store the flusher needs.
type Writer interface {
	UpsertUsageLogs(ctx context.Context, entries []tracker.UsageLogEntry) error
}

type key struct {
	deviceID string
	date     string
	app      string
}

type update struct {
	deviceID string
	date     string
	usage    tracker.UsageMap
}

// Flusher accumulates usage maps and writes them in batches keyed by
// (device_id, date, app_name). A later value for a key replaces an earlier
// one: the agent reports running day totals, so the last value is the total.
type Flusher struct {
	store Writer
	log   logrus.FieldLogger
	clock quartz.Clock

	queueSize int
	batchSize int
	interval  time.Duration

	updateCh chan update
	batch    map[key]int64
	metrics  *Metrics
}

type Option func(f *Flusher)

func WithBatchSize(n int) Option {
	return func(f *Flusher) { f.batchSize = n }
}

func WithQueueSize(n int) Option {
	return func(f *Flusher) { f.queueSize = n }
}

func WithInterval(d time.Duration) Option {
	return func(f *Flusher) { f.interval = d }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(f *Flusher) { f.log = l }
}

func WithClock(c quartz.Clock) Option {
	return func(f *Flusher) { f.clock = c }
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(f *Flusher) { f.metrics = NewMetrics(reg) }
}

func New(store Writer, opts ...Option) *Flusher {
	f := &Flusher{store: store}
	for _, o := range opts {
		o(f)
	}
	f.log = logs.Or(f.log).WithField("component", "usagelog")
	if f.clock == nil {
		f.clock = quartz.NewReal()
	}
	if f.metrics == nil {
		f.metrics = NewMetrics(nil)
	}
	if f.batchSize <= 0 {
		f.batchSize = defaultBatchSize
	}
	if f.queueSize <= 0 {
		f.queueSize = defaultQueueSize
	}
	if f.interval <= 0 {
		f.interval = defaultFlushInterval
	}
	f.updateCh = make(chan update, f.queueSize)
	f.batch = make(map[key]int64)
	return f
}

// Enqueue queues usage for (deviceID, date). It never blocks; when the queue
// is full the update is dropped and counted.
func (f *Flusher) Enqueue(deviceID, date string, usage tracker.UsageMap) {
	if len(usage) == 0 {
		return
	}
	select {
	case f.updateCh <- update{deviceID: deviceID, date: date, usage: usage.Clone()}:
	default:
		f.metrics.droppedTotal.Inc()
		f.log.WithFields(logrus.Fields{
			"system_id":  deviceID,
			"date":       date,
			"queue_size": cap(f.updateCh),
		}).Warn("usage log queue at capacity, dropped update")
	}
}

func (f *Flusher) add(u update) {
	for app, sec := range u.usage {
		f.batch[key{u.deviceID, u.date, app}] = sec
	}
}

// Run consumes the queue until ctx is done, then drains what is left and
// flushes once more under finalFlushTimeout.
func (f *Flusher) Run(ctx context.Context) error {
	ticker := f.clock.NewTicker(f.interval, "usagelog", "flush")
	defer ticker.Stop()

	for {
		select {
		case u := <-f.updateCh:
			f.add(u)
			if len(f.batch) >= f.batchSize {
				f.flush(ctx, flushCapacity)
			}

		case <-ticker.C:
			f.flush(ctx, flushTicker)

		case <-ctx.Done():
			f.log.Debug("context done, flushing before exit")
			finalCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
			defer cancel()
		drain:
			for {
				select {
				case u := <-f.updateCh:
					f.add(u)
					if len(f.batch) >= f.batchSize {
						f.flush(finalCtx, flushExit)
					}
				default:
					break drain
				}
			}
			f.flush(finalCtx, flushExit)
			return nil
		}
	}
}

func (f *Flusher) flush(ctx context.Context, reason string) {
	count := len(f.batch)
	if count == 0 {
		return
	}
	start := f.clock.Now()

	entries := make([]tracker.UsageLogEntry, 0, count)
	for k, sec := range f.batch {
		entries = append(entries, tracker.UsageLogEntry{DeviceID: k.deviceID, Date: k.date, AppName: k.app, SecondsAdded: sec})
	}
	// stable order keeps row locks acquired in the same sequence across flushes
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.DeviceID != b.DeviceID {
			return a.DeviceID < b.DeviceID
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.AppName < b.AppName
	})
	// no retry: the next heartbeat carries the same running totals
	f.batch = make(map[key]int64)

	err := f.store.UpsertUsageLogs(ctx, entries)
	elapsed := f.clock.Since(start)
	if err != nil {
		f.metrics.failuresTotal.WithLabelValues(reason).Inc()
		f.log.WithError(err).WithFields(logrus.Fields{"reason": reason, "count": count}).Error("usage log flush failed")
		return
	}

	f.metrics.batchesTotal.WithLabelValues(reason).Inc()
	f.metrics.entriesTotal.Add(float64(count))
	f.metrics.flushDuration.WithLabelValues(reason).Observe(elapsed.Seconds())
	f.log.WithFields(logrus.Fields{"reason": reason, "count": count, "elapsed": elapsed}).Debug("usage log flushed")
}

var _ tracker.UsageRecorder = (*Flusher)(nil)
