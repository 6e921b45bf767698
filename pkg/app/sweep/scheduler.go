package sweep

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inkpress/gatekeeper/pkg/infra/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnknownJob    = errors.New("unknown sweep job")
	ErrJobRunning    = errors.New("sweep job already running")
	ErrDuplicateJob  = errors.New("duplicate sweep job")
	ErrInvalidJob    = errors.New("invalid sweep job")
	ErrAlreadyActive = errors.New("sweep scheduler already started")
)

//go:generate mockery --name=Scheduler --dir=. --output=./mocks --filename=scheduler_mock.go --case=underscore --with-expecter
type Scheduler interface {
	// Start runs every job on its own ticker until ctx is done or Shutdown is called.
	Start(ctx context.Context) error
	// RunOnce runs the named job immediately, unless a run is already in flight.
	RunOnce(ctx context.Context, name string) (int64, error)
	Jobs() []string
	Shutdown()
}

type Option func(*scheduler)

func WithTimeProvider(now func() time.Time) Option {
	return func(s *scheduler) {
		s.timeProvider = now
	}
}

type entry struct {
	job     Job
	running atomic.Bool
}

type scheduler struct {
	logger       *logrus.Logger
	entries      map[string]*entry
	timeProvider func() time.Time
	started      atomic.Bool
	mu           sync.Mutex
	cancel       context.CancelFunc
	done         chan struct{}
}

func NewScheduler(logger *logrus.Logger, jobs []Job, opts ...Option) (Scheduler, error) {
	s := &scheduler{
		logger:       logger,
		entries:      make(map[string]*entry, len(jobs)),
		timeProvider: time.Now,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, job := range jobs {
		if job.Name == "" || job.Interval <= 0 || job.Run == nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidJob, job.Name)
		}
		if _, ok := s.entries[job.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateJob, job.Name)
		}
		s.entries[job.Name] = &entry{job: job}
	}
	return s, nil
}

func (s *scheduler) Jobs() []string {
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *scheduler) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyActive
	}
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer close(s.done)

	g, ctx := errgroup.WithContext(ctx)
	for _, e := range s.entries {
		e := e
		g.Go(func() error {
			s.loop(ctx, e)
			return nil
		})
	}
	s.logger.WithField("jobs", s.Jobs()).Info("sweep scheduler started")
	err := g.Wait()
	s.logger.Info("sweep scheduler stopped")
	return err
}

func (s *scheduler) Shutdown() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-s.done
}

func (s *scheduler) RunOnce(ctx context.Context, name string) (int64, error) {
	e, ok := s.entries[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	return s.run(ctx, e)
}

func (s *scheduler) loop(ctx context.Context, e *entry) {
	ticker := time.NewTicker(e.job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// errors are logged inside run and retried on the next tick
			_, _ = s.run(ctx, e) //nolint:errcheck
		}
	}
}

func (s *scheduler) run(ctx context.Context, e *entry) (int64, error) {
	name := e.job.Name
	if !e.running.CompareAndSwap(false, true) {
		prometheus.SweepRunsTotal.WithLabelValues(name, prometheus.SweepResultSkipped).Inc()
		s.logger.WithField("job", name).Warn("sweep skipped, previous run still in progress")
		return 0, ErrJobRunning
	}
	defer e.running.Store(false)

	runCtx, cancel := context.WithTimeout(ctx, e.job.Interval)
	defer cancel()

	now := s.timeProvider()
	start := time.Now()
	deleted, err := s.safeRun(runCtx, e.job, now)
	elapsed := time.Since(start)
	prometheus.SweepDuration.WithLabelValues(name).Observe(float64(elapsed.Microseconds()) / 1000)
	if deleted > 0 {
		prometheus.SweepDeletedTotal.WithLabelValues(name).Add(float64(deleted))
	}

	fields := logrus.Fields{
		"job":      name,
		"deleted":  deleted,
		"duration": elapsed.String(),
	}
	if err != nil {
		prometheus.SweepRunsTotal.WithLabelValues(name, prometheus.SweepResultError).Inc()
		s.logger.WithError(err).WithFields(fields).Error("sweep failed")
		return deleted, err
	}
	prometheus.SweepRunsTotal.WithLabelValues(name, prometheus.SweepResultOK).Inc()
	s.logger.WithFields(fields).Info("sweep completed")
	return deleted, nil
}

func (s *scheduler) safeRun(ctx context.Context, job Job, now time.Time) (deleted int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep %s panicked: %v", job.Name, r)
		}
	}()
	return job.Run(ctx, now)
}
