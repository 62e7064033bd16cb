// Package scheduler runs the periodic maintenance jobs of the learning
// service, most importantly the auto-retrain check.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Handler executes one scheduled job run.
type Handler func(ctx context.Context) error

// Scheduler manages in-process cron entries. Jobs are registered in code
// with their schedule coming from config; there is no job persistence.
type Scheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	mu      sync.Mutex
	logger  *slog.Logger
}

func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
		entries: make(map[string]cron.EntryID),
		logger:  logger,
	}
}

// Schedule registers a named job on a cron expression, replacing any
// previous entry with the same name.
func (s *Scheduler) Schedule(name, spec string, handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
	}

	id, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		start := time.Now()
		if err := handler(ctx); err != nil {
			s.logger.Error("scheduled job failed", "job", name, "error", err)
			return
		}
		s.logger.Debug("scheduled job finished", "job", name, "duration", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("scheduling %s (%q): %w", name, spec, err)
	}

	s.entries[name] = id
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
