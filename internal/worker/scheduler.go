package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/scrim-lobby/internal/config"
	"github.com/scrim-lobby/internal/domain"
)

// Engine is the part of the scrim service the scheduler drives
type Engine interface {
	FindScrimsToAutoStart(ctx context.Context, now time.Time) ([]domain.Scrim, error)
	StartScrim(ctx context.Context, scrimID, actorID string) error
	FindScrimsForReminder(ctx context.Context, now time.Time, window time.Duration) ([]domain.Scrim, error)
	MarkReminderSent(ctx context.Context, scrimID string) error
}

// Reminders sends the pre-match reminder for a scrim
type Reminders interface {
	SendReminder(ctx context.Context, scrim domain.Scrim) error
}

// CycleResult summarizes one scheduler pass
type CycleResult struct {
	Started  int
	Reminded int
	Errors   int
}

// Scheduler periodically starts due scrims and sends reminders
type Scheduler struct {
	engine    Engine
	reminders Reminders
	config    *config.SchedulerConfig
	logger    *slog.Logger
	now       func() time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        sync.Mutex
	running   bool
}

// NewScheduler creates a new scheduler
func NewScheduler(
	engine Engine,
	reminders Reminders,
	cfg *config.SchedulerConfig,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		engine:    engine,
		reminders: reminders,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background scheduling loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("scheduler started",
		"interval", s.config.Interval,
		"reminder_window", s.config.ReminderWindow,
	)

	go s.run(ctx)
	return nil
}

// Stop stops the background scheduling loop
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
	return nil
}

// run is the main scheduler loop
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single scheduling cycle
func (s *Scheduler) RunOnce(ctx context.Context) CycleResult {
	startTime := time.Now()
	now := s.now()

	var result CycleResult
	s.autoStart(ctx, now, &result)
	s.remind(ctx, now, &result)

	s.logger.Info("scheduler cycle completed",
		"duration", time.Since(startTime),
		"started", result.Started,
		"reminded", result.Reminded,
		"errors", result.Errors,
	)
	return result
}

// autoStart moves every confirmed scrim whose start time has passed to EN_JUEGO
func (s *Scheduler) autoStart(ctx context.Context, now time.Time, result *CycleResult) {
	scrims, err := s.engine.FindScrimsToAutoStart(ctx, now)
	if err != nil {
		s.logger.Error("failed to list scrims to auto-start", "error", err)
		result.Errors++
		return
	}

	for _, sc := range scrims {
		// The engine re-checks the state, so a scrim cancelled since the query is skipped
		if err := s.engine.StartScrim(ctx, sc.ID, ""); err != nil {
			s.logger.Error("failed to auto-start scrim", "scrim_id", sc.ID, "error", err)
			result.Errors++
			continue
		}
		result.Started++
	}
}

// remind sends reminders for upcoming scrims. A scrim is only marked once
// every delivery succeeded, so failures are retried on the next cycle.
func (s *Scheduler) remind(ctx context.Context, now time.Time, result *CycleResult) {
	if s.config.ReminderWindow <= 0 {
		return
	}

	scrims, err := s.engine.FindScrimsForReminder(ctx, now, s.config.ReminderWindow)
	if err != nil {
		s.logger.Error("failed to list scrims for reminder", "error", err)
		result.Errors++
		return
	}

	for _, sc := range scrims {
		if err := s.reminders.SendReminder(ctx, sc); err != nil {
			s.logger.Warn("reminder delivery incomplete", "scrim_id", sc.ID, "error", err)
			result.Errors++
			continue
		}
		if err := s.engine.MarkReminderSent(ctx, sc.ID); err != nil {
			s.logger.Error("failed to mark reminder as sent", "scrim_id", sc.ID, "error", err)
			result.Errors++
			continue
		}
		result.Reminded++
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
