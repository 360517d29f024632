// Package poller keeps one host's live state current by querying it periodically.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streamhosts/pkg/host"
	"github.com/streamhosts/pkg/logging"
	"github.com/streamhosts/pkg/protocol"
)

const (
	DefaultInterval        = 3 * time.Second
	DefaultAppListInterval = 60 * time.Second
	// DefaultFailuresBeforeOffline rounds with no answer before the host is reported offline
	DefaultFailuresBeforeOffline = 2
)

// Config controls polling cadence. Zero values use the defaults.
type Config struct {
	Interval              time.Duration
	AppListInterval       time.Duration
	FailuresBeforeOffline int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.AppListInterval <= 0 {
		c.AppListInterval = DefaultAppListInterval
	}
	if c.FailuresBeforeOffline <= 0 {
		c.FailuresBeforeOffline = DefaultFailuresBeforeOffline
	}
	return c
}

// ReportFunc receives a fresh observation of bound, or nil when bound did not answer.
// It runs on the worker goroutine; ctx ends when the worker is asked to stop.
type ReportFunc func(ctx context.Context, bound, observed *host.Host)

// Worker polls a single host until stopped.
type Worker struct {
	host    *host.Host
	querier protocol.Querier
	cfg     Config
	report  ReportFunc

	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
	running atomic.Bool
	done    chan struct{}

	failures    int
	lastAppList time.Time
}

// New creates a worker bound to h. It does nothing until Start.
func New(h *host.Host, q protocol.Querier, cfg Config, report ReportFunc) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		host:    h,
		querier: q,
		cfg:     cfg.withDefaults(),
		report:  report,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Host returns the bound host
func (w *Worker) Host() *host.Host {
	return w.host
}

// Start launches the polling goroutine. Further calls do nothing.
func (w *Worker) Start() {
	w.once.Do(func() {
		w.running.Store(true)
		recordWorkerStart(w.host.ID())
		go w.run()
	})
}

// RequestStop asks the worker to exit and returns immediately.
func (w *Worker) RequestStop() {
	w.cancel()
}

// Wait blocks until the goroutine has exited. Must follow Start.
func (w *Worker) Wait() {
	<-w.done
}

// Done is closed once the goroutine has exited
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Running reports whether the goroutine is alive
func (w *Worker) Running() bool {
	return w.running.Load()
}

func (w *Worker) run() {
	defer w.exit()
	logging.Debugf("[poller] host=%s worker started interval=%v", w.host.ID(), w.cfg.Interval)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		w.pollOnce()
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// exit releases what the worker holds. Detached workers clean up here too.
func (w *Worker) exit() {
	recordWorkerExit(w.host.ID())
	logging.Debugf("[poller] host=%s worker stopped", w.host.ID())
	w.running.Store(false)
	close(w.done)
}

func (w *Worker) pollOnce() {
	id := w.host.ID()
	for _, addr := range w.host.UniqueAddresses() {
		if w.ctx.Err() != nil {
			return
		}
		info, err := w.querier.ServerInfo(w.ctx, addr)
		if err != nil {
			logging.Debugf("[poller] host=%s addr=%s unreachable: %v", id, addr, err)
			continue
		}
		observed := host.NewFromServerInfo(addr, info)
		if observed.ID() != id {
			logging.Warnf("[poller] host=%s addr=%s answered as %s, skipping", id, addr, observed.ID())
			continue
		}

		w.refreshApps(addr, observed)
		w.failures = 0
		recordPoll(id, pollOnline)
		w.report(w.ctx, w.host, observed)
		return
	}

	if w.ctx.Err() != nil {
		return
	}
	w.failures++
	recordPoll(id, pollUnreachable)
	if w.failures >= w.cfg.FailuresBeforeOffline {
		w.report(w.ctx, w.host, nil)
	}
}

func (w *Worker) refreshApps(addr string, observed *host.Host) {
	if w.host.HasApps() && time.Since(w.lastAppList) < w.cfg.AppListInterval {
		return
	}
	apps, err := w.querier.AppList(w.ctx, addr)
	if err != nil {
		logging.Debugf("[poller] host=%s addr=%s app list failed: %v", w.host.ID(), addr, err)
		return
	}
	observed.SetApps(host.AppsFromInfo(apps))
	w.lastAppList = time.Now()
}
