package importer

import (
	"context"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"taskpulse/pkg/config"
	"taskpulse/pkg/logger"
	"taskpulse/pkg/store"
)

// Status is a snapshot of the periodic import cycle state.
type Status struct {
	Period     string    `json:"period"`
	Cron       string    `json:"cron,omitempty"`
	Runs       int       `json:"runs"`
	Failures   int       `json:"failures"`
	LastRun    time.Time `json:"last_run,omitzero"`
	LastTaskID int64     `json:"last_task_id,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// Scheduler drives the import cycle for the process lifetime. A failed cycle
// is recorded and logged but never stops the loop and never reaches any
// request-handling path.
type Scheduler struct {
	importer *Importer
	period   time.Duration
	cron     string

	mu     sync.Mutex
	status Status
}

// NewScheduler creates a scheduler over imp. When cfg.Cron is a valid cron
// expression it takes precedence over the fixed period.
func NewScheduler(imp *Importer, cfg config.ImportConfig) *Scheduler {
	s := &Scheduler{importer: imp, period: cfg.Period}

	if cfg.Cron != "" {
		if gronx.New().IsValid(cfg.Cron) {
			s.cron = cfg.Cron
		} else {
			logger.WarnCF("importer", "Invalid import cron expression, using fixed period", map[string]interface{}{
				"cron":   cfg.Cron,
				"period": cfg.Period.String(),
			})
		}
	}

	s.status = Status{Period: cfg.Period.String(), Cron: s.cron}
	return s
}

// Run executes import cycles until ctx is cancelled. Call in a goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	logger.InfoCF("importer", "Import scheduler started", map[string]interface{}{
		"period": s.period.String(),
		"cron":   s.cron,
	})

	for {
		s.runCycle(ctx)

		timer := time.NewTimer(s.nextWait())
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.InfoC("importer", "Import scheduler stopped")
			return
		case <-timer.C:
		}
	}
}

// TriggerNow runs exactly one import cycle synchronously and returns its
// result to the caller. It does not touch the periodic cycle's timing or its
// run counters.
func (s *Scheduler) TriggerNow(ctx context.Context) (*store.Task, error) {
	return s.importer.ImportOne(ctx)
}

// Status returns a snapshot of the cycle state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) runCycle(ctx context.Context) {
	task, err := s.importer.ImportOne(ctx)

	s.mu.Lock()
	s.status.Runs++
	s.status.LastRun = time.Now().UTC()
	if err != nil {
		s.status.Failures++
		s.status.LastError = err.Error()
	} else {
		s.status.LastError = ""
		s.status.LastTaskID = task.ID
	}
	s.mu.Unlock()

	if err != nil {
		logger.ErrorCF("importer", "Import cycle failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *Scheduler) nextWait() time.Duration {
	if s.cron != "" {
		if next, err := gronx.NextTick(s.cron, false); err == nil {
			if wait := time.Until(next); wait > 0 {
				return wait
			}
		}
	}
	return s.period
}
