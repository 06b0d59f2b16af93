// Package scheduler runs named background jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/armis/armis/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
)

// DefaultJobTimeout bounds a run when the job sets no timeout.
const DefaultJobTimeout = 30 * time.Second

var (
	jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "armis_scheduler_job_runs_total",
		Help: "Scheduled job runs by job and outcome.",
	}, []string{"job", "status"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "armis_scheduler_job_duration_seconds",
		Help:    "Duration of scheduled job runs.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
)

// Job is one unit of scheduled work.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// JobStatus reports the last outcome of a job.
type JobStatus struct {
	Name     string
	Schedule string
	LastRun  time.Time
	LastErr  error
	Runs     int
	Next     time.Time
}

type scheduledJob struct {
	job     Job
	entryID cron.EntryID
	mu      sync.Mutex
	lastRun time.Time
	lastErr error
	runs    int
}

// Scheduler wraps a cron runner. Overlapping runs of the same job are
// skipped.
type Scheduler struct {
	logger log.Logger
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.RWMutex
	jobs map[string]*scheduledJob
}

// New creates a stopped scheduler. Schedules accept five-field cron
// expressions and descriptors such as "@every 1m".
func New(logger log.Logger) *Scheduler {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger: logger.WithComponent("scheduler"),
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*scheduledJob),
	}
}

// Schedule registers job. Names are unique.
func (s *Scheduler) Schedule(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.Run == nil {
		return fmt.Errorf("job %q has no run function", job.Name)
	}
	if job.Timeout <= 0 {
		job.Timeout = DefaultJobTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %q already scheduled", job.Name)
	}

	sj := &scheduledJob{job: job}
	id, err := s.cron.AddJob(job.Schedule, cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(
		cron.FuncJob(func() { s.execute(s.ctx, sj) }),
	))
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %q: %w", job.Schedule, job.Name, err)
	}
	sj.entryID = id
	s.jobs[job.Name] = sj

	s.logger.Debug("Job scheduled", log.Str("job", job.Name), log.Str("schedule", job.Schedule))
	return nil
}

// Unschedule removes the named job. Unknown names are ignored.
func (s *Scheduler) Unschedule(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sj, ok := s.jobs[name]; ok {
		s.cron.Remove(sj.entryID)
		delete(s.jobs, name)
	}
}

// RunNow runs the named job synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	sj, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}
	return s.execute(ctx, sj)
}

func (s *Scheduler) execute(parent context.Context, sj *scheduledJob) (err error) {
	ctx, cancel := context.WithTimeout(parent, sj.job.Timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %q panicked: %v", sj.job.Name, p)
		}
		status := "ok"
		if err != nil {
			status = "error"
			s.logger.Warn("Job failed", log.Str("job", sj.job.Name), log.Err(err))
		}
		jobRuns.WithLabelValues(sj.job.Name, status).Inc()
		jobDuration.WithLabelValues(sj.job.Name).Observe(time.Since(start).Seconds())

		sj.mu.Lock()
		sj.lastRun = start
		sj.lastErr = err
		sj.runs++
		sj.mu.Unlock()
	}()

	return sj.job.Run(ctx)
}

// List returns the status of every job, ordered by name.
func (s *Scheduler) List() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, sj := range s.jobs {
		sj.mu.Lock()
		out = append(out, JobStatus{
			Name:     sj.job.Name,
			Schedule: sj.job.Schedule,
			LastRun:  sj.lastRun,
			LastErr:  sj.lastErr,
			Runs:     sj.runs,
			Next:     s.cron.Entry(sj.entryID).Next,
		})
		sj.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start begins firing jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule, cancels running jobs and waits for them to
// return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
