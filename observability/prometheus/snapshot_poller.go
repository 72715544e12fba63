package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/eligu/se-uom-vcs-sub001/core"
)

// SchedulerSnapshotProvider provides current scheduler stats snapshots.
type SchedulerSnapshotProvider interface {
	Stats() core.SchedulerStats
}

// QueueSnapshotProvider provides current processor queue stats snapshots.
type QueueSnapshotProvider interface {
	Stats() core.QueueStats
}

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// PollerOptions controls the snapshot poller.
type PollerOptions struct {
	Namespace string
	// Interval between polls. Defaults to one second.
	Interval time.Duration
}

// SnapshotPoller periodically exports scheduler, queue and pool Stats()
// snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	providersMu sync.RWMutex
	schedulers  map[string]SchedulerSnapshotProvider
	queues      map[string]QueueSnapshotProvider
	pools       map[string]PoolSnapshotProvider

	schedulerOutstanding *prom.GaugeVec
	schedulerShutdown    *prom.GaugeVec
	schedulerTerminated  *prom.GaugeVec
	categoryPending      *prom.GaugeVec
	categoryScheduled    *prom.GaugeVec

	queueRunning      *prom.GaugeVec
	queueStoppedEarly *prom.GaugeVec
	queueInFlight     *prom.GaugeVec
	queueFailures     *prom.GaugeVec

	poolQueued  *prom.GaugeVec
	poolActive  *prom.GaugeVec
	poolWorkers *prom.GaugeVec
	poolRunning *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, opts PollerOptions) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Second
	}
	namespace := normalizeLabel(opts.Namespace, defaultNamespace)

	gauge := func(name, help string, labels ...string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}

	p := &SnapshotPoller{
		interval:   interval,
		schedulers: make(map[string]SchedulerSnapshotProvider),
		queues:     make(map[string]QueueSnapshotProvider),
		pools:      make(map[string]PoolSnapshotProvider),

		schedulerOutstanding: gauge("scheduler_outstanding", "Accepted units not yet finished per scheduler.", "scheduler", "type"),
		schedulerShutdown:    gauge("scheduler_shutdown", "Scheduler shutdown state (1=requested, 0=open).", "scheduler", "type"),
		schedulerTerminated:  gauge("scheduler_terminated", "Scheduler terminated state (1=terminated).", "scheduler", "type"),
		categoryPending:      gauge("category_pending", "Units waiting in a category queue.", "scheduler", "category"),
		categoryScheduled:    gauge("category_scheduled", "Units handed to the executor per category.", "scheduler", "category"),

		queueRunning:      gauge("queue_running", "Members in the running set per processor queue.", "queue", "strategy"),
		queueStoppedEarly: gauge("queue_stopped_early", "Members retired before Stop per processor queue.", "queue", "strategy"),
		queueInFlight:     gauge("queue_in_flight", "Dispatched units not yet finished per processor queue.", "queue", "strategy"),
		queueFailures:     gauge("queue_failures", "Failures collected since the last Start.", "queue", "strategy"),

		poolQueued:  gauge("pool_queued", "Queued units per pool.", "pool"),
		poolActive:  gauge("pool_active", "Active units per pool.", "pool"),
		poolWorkers: gauge("pool_workers", "Worker count per pool.", "pool"),
		poolRunning: gauge("pool_running", "Pool running state (1=running, 0=stopped).", "pool"),
	}

	for _, g := range []**prom.GaugeVec{
		&p.schedulerOutstanding, &p.schedulerShutdown, &p.schedulerTerminated,
		&p.categoryPending, &p.categoryScheduled,
		&p.queueRunning, &p.queueStoppedEarly, &p.queueInFlight, &p.queueFailures,
		&p.poolQueued, &p.poolActive, &p.poolWorkers, &p.poolRunning,
	} {
		registered, err := registerCollector(reg, *g)
		if err != nil {
			return nil, err
		}
		*g = registered
	}
	return p, nil
}

// AddScheduler adds or replaces a scheduler snapshot provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	p.providersMu.Lock()
	p.schedulers[normalizeLabel(name, "scheduler")] = provider
	p.providersMu.Unlock()
}

// AddQueue adds or replaces a processor queue snapshot provider by name.
func (p *SnapshotPoller) AddQueue(name string, provider QueueSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	p.providersMu.Lock()
	p.queues[normalizeLabel(name, "queue")] = provider
	p.providersMu.Unlock()
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	p.providersMu.Lock()
	p.pools[normalizeLabel(name, "pool")] = provider
	p.providersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.running {
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.loop(pollCtx, p.done)
}

// Stop stops periodic polling and waits for the loop to exit; repeated
// calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()

	cancel()
	<-done
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.CollectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CollectOnce()
		}
	}
}

// CollectOnce polls every provider once.
func (p *SnapshotPoller) CollectOnce() {
	p.providersMu.RLock()
	defer p.providersMu.RUnlock()

	for name, provider := range p.schedulers {
		stats := provider.Stats()
		kind := normalizeLabel(stats.Type, "unknown")
		p.schedulerOutstanding.WithLabelValues(name, kind).Set(float64(stats.Outstanding))
		p.schedulerShutdown.WithLabelValues(name, kind).Set(boolGauge(stats.Shutdown))
		p.schedulerTerminated.WithLabelValues(name, kind).Set(boolGauge(stats.Terminated))
		for _, c := range stats.Categories {
			p.categoryPending.WithLabelValues(name, c.Name).Set(float64(c.Pending))
			p.categoryScheduled.WithLabelValues(name, c.Name).Set(float64(c.Scheduled))
		}
	}

	for name, provider := range p.queues {
		stats := provider.Stats()
		strategy := normalizeLabel(stats.Strategy, "unknown")
		p.queueRunning.WithLabelValues(name, strategy).Set(float64(stats.Running))
		p.queueStoppedEarly.WithLabelValues(name, strategy).Set(float64(stats.StoppedEarly))
		p.queueInFlight.WithLabelValues(name, strategy).Set(float64(stats.InFlight))
		p.queueFailures.WithLabelValues(name, strategy).Set(float64(stats.Failures))
	}

	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		p.poolRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
