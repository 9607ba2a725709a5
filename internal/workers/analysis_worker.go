package workers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/models"
)

var (
	ErrPoolNotStarted = errors.New("analysis pool not started")
	ErrPoolStopped    = errors.New("analysis pool stopped")
	ErrQueueFull      = errors.New("analysis queue is full")
)

// Job is one deep analysis of a committed turn. Deliver receives the tagged result.
type Job struct {
	SessionID string
	TurnID    int64
	Run       func(ctx context.Context) (models.AnalysisMetrics, error)
	Deliver   func(Result)
}

type Result struct {
	SessionID string
	TurnID    int64
	Metrics   models.AnalysisMetrics
	Err       error
	Elapsed   time.Duration
}

// AnalysisWorkerPool runs Phase 2 jobs on a bounded set of goroutines shared by
// every live session.
type AnalysisWorkerPool struct {
	NumWorkers int
	QueueSize  int
	JobTimeout time.Duration
	Logger     *logrus.Logger

	mu      sync.RWMutex
	jobs    chan Job
	done    <-chan struct{}
	wg      sync.WaitGroup
	started bool
}

func (p *AnalysisWorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("analysis pool already started")
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 4
	}
	if p.QueueSize <= 0 {
		p.QueueSize = p.NumWorkers * 8
	}
	if p.JobTimeout <= 0 {
		p.JobTimeout = 90 * time.Second
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	p.jobs = make(chan Job, p.QueueSize)
	p.done = ctx.Done()
	p.started = true

	for i := 0; i < p.NumWorkers; i++ {
		worker := "analysis-" + strconv.Itoa(i+1)
		p.wg.Add(1)
		go p.runConsumer(ctx, worker)
	}
	return nil
}

// Submit enqueues job, blocking while the queue is full.
func (p *AnalysisWorkerPool) Submit(ctx context.Context, job Job) error {
	jobs, done, err := p.accept(job)
	if err != nil {
		return err
	}
	select {
	case jobs <- job:
		return nil
	case <-done:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit enqueues job only if the queue has room, returning ErrQueueFull otherwise.
func (p *AnalysisWorkerPool) TrySubmit(job Job) error {
	jobs, _, err := p.accept(job)
	if err != nil {
		return err
	}
	select {
	case jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *AnalysisWorkerPool) accept(job Job) (chan Job, <-chan struct{}, error) {
	p.mu.RLock()
	started, jobs, done := p.started, p.jobs, p.done
	p.mu.RUnlock()
	if !started {
		return nil, nil, ErrPoolNotStarted
	}
	if job.Run == nil || job.Deliver == nil {
		return nil, nil, errors.New("analysis job needs Run and Deliver")
	}
	select {
	case <-done:
		return nil, nil, ErrPoolStopped
	default:
	}
	return jobs, done, nil
}

// Wait blocks until every worker has exited after the start context ended.
func (p *AnalysisWorkerPool) Wait() { p.wg.Wait() }

func (p *AnalysisWorkerPool) runConsumer(ctx context.Context, worker string) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			p.handle(ctx, worker, job)
		}
	}
}

func (p *AnalysisWorkerPool) handle(ctx context.Context, worker string, job Job) {
	log := p.Logger.WithFields(logrus.Fields{
		"worker":     worker,
		"session_id": job.SessionID,
		"turn_id":    job.TurnID,
	})

	jobCtx, cancel := context.WithTimeout(ctx, p.JobTimeout)
	defer cancel()

	start := time.Now()
	m, err := p.run(jobCtx, job)
	res := Result{SessionID: job.SessionID, TurnID: job.TurnID, Metrics: m, Err: err, Elapsed: time.Since(start)}

	if err != nil {
		log.WithError(err).WithField("latency_ms", res.Elapsed.Milliseconds()).Warn("deep analysis failed")
	} else {
		log.WithField("latency_ms", res.Elapsed.Milliseconds()).Debug("deep analysis done")
	}
	job.Deliver(res)
}

func (p *AnalysisWorkerPool) run(ctx context.Context, job Job) (m models.AnalysisMetrics, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis job panicked: %v", r)
		}
	}()
	return job.Run(ctx)
}
