// Package queue implements the in-memory job queue and the worker pool that
// runs source fetches. WorkerMax bounds how many fetches run at once; excess
// jobs wait in the queue for a free worker.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/priceradar/priceradar/internal/config"
	"github.com/priceradar/priceradar/internal/obs"
)

// Manager coordinates workers processing queued jobs and scaling.
type Manager struct {
	cfg    config.Workers
	q      *Queue
	seq    Sequencer
	busy   atomic.Int64
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	workerCancels []context.CancelFunc
}

// NewManager constructs a Manager with the given config and queue.
func NewManager(cfg config.Workers, q *Queue) *Manager {
	if cfg.WorkerMin < 1 {
		cfg.WorkerMin = 1
	}
	if cfg.WorkerMax < cfg.WorkerMin {
		cfg.WorkerMax = cfg.WorkerMin
	}
	if cfg.InitialWorkerCount < cfg.WorkerMin {
		cfg.InitialWorkerCount = cfg.WorkerMin
	}
	if cfg.ScaleUpBacklogPerWorker < 1 {
		cfg.ScaleUpBacklogPerWorker = 1
	}
	if cfg.ScaleInterval <= 0 {
		cfg.ScaleInterval = 250 * time.Millisecond
	}
	return &Manager{cfg: cfg, q: q}
}

// Start begins processing and autoscaling in the background.
func (m *Manager) Start(parent context.Context) {
	m.ctx, m.cancel = context.WithCancel(parent)
	m.q.Start(m.ctx, m.cfg.QueueHighWatermark)
	m.addWorkers(m.cfg.InitialWorkerCount)
	go m.scaler()
}

// Stop cancels background routines and stops workers.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Lock()
	for _, c := range m.workerCancels {
		c()
	}
	m.workerCancels = nil
	m.mu.Unlock()
	obs.SetWorkers(0)
}

// Submit enqueues run as a job bound to ctx. It returns false once intake is
// closed.
func (m *Manager) Submit(ctx context.Context, source string, run func(context.Context)) bool {
	ok := m.q.Enqueue(Job{Seq: m.seq.Next(), Source: source, Ctx: ctx, Run: run})
	if ok {
		m.scaleUp()
	}
	return ok
}

// scaleUp grows the pool toward the queued demand, capped at WorkerMax.
func (m *Manager) scaleUp() {
	if m.ctx == nil || m.ctx.Err() != nil {
		return
	}
	demand := m.q.QueueDepth() + int(m.busy.Load())
	need := (demand + m.cfg.ScaleUpBacklogPerWorker - 1) / m.cfg.ScaleUpBacklogPerWorker
	m.mu.Lock()
	wc := len(m.workerCancels)
	m.mu.Unlock()
	if need <= wc || wc >= m.cfg.WorkerMax {
		return
	}
	add := need - wc
	if wc+add > m.cfg.WorkerMax {
		add = m.cfg.WorkerMax - wc
	}
	m.addWorkers(add)
}

// scaler shrinks the pool after idle ticks and catches up on demand missed
// between submissions.
func (m *Manager) scaler() {
	t := time.NewTicker(m.cfg.ScaleInterval)
	defer t.Stop()
	idleTicks := 0
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-t.C:
			depth := m.q.QueueDepth()
			if depth > 0 {
				idleTicks = 0
				m.scaleUp()
				continue
			}
			idleTicks++
			if idleTicks >= m.cfg.ScaleDownIdleTicks && m.WorkerCount() > m.cfg.WorkerMin {
				m.removeWorkers(1)
				idleTicks = 0
			}
		}
	}
}

// addWorkers spawns n workers without exceeding WorkerMax.
func (m *Manager) addWorkers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n && len(m.workerCancels) < m.cfg.WorkerMax; i++ {
		wctx, cancel := context.WithCancel(m.ctx)
		m.workerCancels = append(m.workerCancels, cancel)
		go m.worker(wctx)
	}
	obs.SetWorkers(len(m.workerCancels))
	obs.Logger.Debug().Int("worker_count", len(m.workerCancels)).Msg("workers_scaled")
}

// removeWorkers stops up to n workers.
func (m *Manager) removeWorkers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.workerCancels) {
		n = len(m.workerCancels)
	}
	for i := 0; i < n; i++ {
		c := m.workerCancels[len(m.workerCancels)-1]
		m.workerCancels = m.workerCancels[:len(m.workerCancels)-1]
		c()
	}
	obs.SetWorkers(len(m.workerCancels))
	obs.Logger.Debug().Int("worker_count", len(m.workerCancels)).Msg("workers_scaled")
}

// worker drains jobs from the queue and runs them.
func (m *Manager) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-m.q.Out():
			m.run(j)
		}
	}
}

func (m *Manager) run(j Job) {
	defer func() {
		if r := recover(); r != nil {
			obs.Logger.Error().Uint64("seq", j.Seq).Str("source", j.Source).Interface("panic", r).Msg("job_panic")
		}
		m.q.MarkProcessed()
	}()
	jctx := j.Ctx
	if jctx == nil {
		jctx = context.Background()
	}
	if err := jctx.Err(); err != nil {
		m.q.MarkSkipped()
		obs.Logger.Debug().Uint64("seq", j.Seq).Str("source", j.Source).Err(err).Msg("job_skipped")
		return
	}
	m.busy.Add(1)
	defer m.busy.Add(-1)
	j.Run(jctx)
}

// BacklogSize returns pending items in the queue.
func (m *Manager) BacklogSize() int { return m.q.BacklogSize() }

// QueueDepth returns backlog plus buffered output items.
func (m *Manager) QueueDepth() int { return m.q.QueueDepth() }

// WorkerCount returns the current number of workers.
func (m *Manager) WorkerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workerCancels)
}

// Capacity returns the maximum number of concurrent workers.
func (m *Manager) Capacity() int { return m.cfg.WorkerMax }

// IsShuttingDown reports whether new submissions are rejected.
func (m *Manager) IsShuttingDown() bool { return m.q.IsShuttingDown() }

// CloseIntake disallows future submissions.
func (m *Manager) CloseIntake() { m.q.CloseIntake() }

// QueueMetrics exposes the underlying queue metrics.
func (m *Manager) QueueMetrics() Metrics { return m.q.Metrics() }

// DrainUntil blocks until every submitted job has finished or ctx is done.
func (m *Manager) DrainUntil(ctx context.Context) bool {
	for {
		qm := m.q.Metrics()
		if qm.Backlog == 0 && qm.Depth == 0 && qm.Enqueued == qm.Processed {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(20 * time.Millisecond):
		}
	}
}
