package render

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Job is one queued script render.
type Job struct {
	ID         string    `json:"id"`
	Script     string    `json:"script"`
	Path       string    `json:"path"`
	Source     string    `json:"source"` // "api", "watcher" or "cli"
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// State is a job's position in its lifecycle.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// JobStatus is the externally visible state of a job.
type JobStatus struct {
	Job
	State      State           `json:"state"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Fragments  int             `json:"fragments"`
	Failures   []ClauseFailure `json:"failures,omitempty"`
	Manifest   *Manifest       `json:"manifest,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// QueueStats reports the current state of the render queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Outcome is what a RenderFunc produced.
type Outcome struct {
	Result   *Result
	Manifest *Manifest
}

// RenderFunc loads, renders and exports the script at path.
type RenderFunc func(ctx context.Context, path string) (*Outcome, error)

// QueueOptions configures the render worker pool.
type QueueOptions struct {
	Workers   int
	QueueSize int
	Render    RenderFunc
	History   int // finished jobs kept for Status lookups
	Log       zerolog.Logger
}

// ErrQueueStopped is returned by Enqueue after Stop.
var ErrQueueStopped = errors.New("render queue stopped")

// ErrQueueFull is returned by Enqueue when no slot is free.
var ErrQueueFull = errors.New("render queue full")

// Queue runs render jobs on a fixed pool of workers.
type Queue struct {
	jobs   chan Job
	opts   QueueOptions
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	stopped  bool
	statuses map[string]*JobStatus
	finished []string // finished job IDs, oldest first

	completed atomic.Int64
	failed    atomic.Int64
}

// NewQueue creates a render queue. Call Start to launch workers.
func NewQueue(opts QueueOptions) *Queue {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.History < 1 {
		opts.History = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		jobs:     make(chan Job, opts.QueueSize),
		opts:     opts,
		log:      opts.Log.With().Str("component", "render-queue").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		statuses: make(map[string]*JobStatus),
	}
}

// Start launches the worker goroutines.
func (q *Queue) Start() {
	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.log.Info().Int("workers", q.opts.Workers).Int("queue_size", q.opts.QueueSize).Msg("render queue started")
}

// Stop refuses new jobs, lets workers drain the queue and waits for them.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
	q.cancel()
	q.log.Info().
		Int64("completed", q.completed.Load()).
		Int64("failed", q.failed.Load()).
		Msg("render queue stopped")
}

// Enqueue adds a render of the script at path. It never blocks: a full or
// stopped queue returns an error.
func (q *Queue) Enqueue(scriptName, path, source string) (Job, error) {
	job := Job{
		ID:         uuid.NewString(),
		Script:     scriptName,
		Path:       path,
		Source:     source,
		EnqueuedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return Job{}, ErrQueueStopped
	}
	select {
	case q.jobs <- job:
		q.statuses[job.ID] = &JobStatus{Job: job, State: StateQueued}
		return job, nil
	default:
		return Job{}, ErrQueueFull
	}
}

// Status returns a copy of the job's status.
func (q *Queue) Status(id string) (JobStatus, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, ok := q.statuses[id]
	if !ok {
		return JobStatus{}, false
	}
	return *st, true
}

// Stats returns current queue statistics.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Pending:   len(q.jobs),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
	}
}

func (q *Queue) Pending() int     { return len(q.jobs) }
func (q *Queue) Completed() int64 { return q.completed.Load() }
func (q *Queue) Failed() int64    { return q.failed.Load() }

// Workers returns the number of worker goroutines.
func (q *Queue) Workers() int { return q.opts.Workers }

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log := q.log.With().Int("worker", id).Logger()

	for job := range q.jobs {
		q.update(job.ID, func(st *JobStatus) {
			now := time.Now().UTC()
			st.State = StateRunning
			st.StartedAt = &now
		})

		out, err := q.opts.Render(q.ctx, job.Path)

		q.update(job.ID, func(st *JobStatus) {
			now := time.Now().UTC()
			st.FinishedAt = &now
			if out != nil {
				if out.Result != nil {
					st.Fragments = out.Result.Fragments
					st.Failures = out.Result.Failures
				}
				st.Manifest = out.Manifest
			}
			switch {
			case err != nil:
				st.State = StateFailed
				st.Error = err.Error()
			case out != nil && out.Result != nil && out.Result.Failed():
				st.State = StateFailed
				st.Error = "one or more clauses failed"
			default:
				st.State = StateCompleted
			}
		})

		st, _ := q.Status(job.ID)
		if st.State == StateFailed {
			q.failed.Add(1)
			log.Warn().
				Str("job_id", job.ID).
				Str("script", job.Script).
				Str("error", st.Error).
				Msg("render failed")
		} else {
			q.completed.Add(1)
			log.Info().
				Str("job_id", job.ID).
				Str("script", job.Script).
				Int("fragments", st.Fragments).
				Msg("render completed")
		}
		q.retire(job.ID)
	}
}

func (q *Queue) update(id string, fn func(*JobStatus)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if st, ok := q.statuses[id]; ok {
		fn(st)
	}
}

// retire records id as finished and forgets the oldest finished jobs past
// the history limit.
func (q *Queue) retire(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.finished = append(q.finished, id)
	for len(q.finished) > q.opts.History {
		delete(q.statuses, q.finished[0])
		q.finished = q.finished[1:]
	}
}
