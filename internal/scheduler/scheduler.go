// internal/scheduler/scheduler.go
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Entry is one recurring prompt from configuration.
type Entry struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Prompt   string `json:"prompt"`
	Target   string `json:"target"`
	Enabled  bool   `json:"enabled"`
}

// Handler is the callback invoked when a scheduled prompt fires. The
// target key routes the session's eventual output through the delivery
// registry.
type Handler func(target, prompt string)

// Scheduler fires configured recurring prompts on cron schedules.
type Scheduler struct {
	entries []Entry
	handler Handler
	cron    *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Scheduler over the given entries. The handler is called
// each time an entry fires.
func New(entries []Entry, handler Handler) *Scheduler {
	return &Scheduler{
		entries: entries,
		handler: handler,
		cron:    cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers enabled entries that have a schedule and starts the
// cron ticker. Invalid schedules are logged and skipped, not fatal.
func (s *Scheduler) Start() error {
	for _, entry := range s.entries {
		if entry.Schedule == "" || !entry.Enabled {
			continue
		}

		target := entry.Target
		prompt := entry.Prompt
		name := entry.Name

		_, err := s.cron.AddFunc(entry.Schedule, func() {
			slog.Info("cron firing prompt", "name", name, "target", target)
			s.handler(target, prompt)
		})
		if err != nil {
			slog.Error("invalid cron schedule", "name", name, "schedule", entry.Schedule, "error", err)
			continue
		}
		slog.Info("scheduled prompt", "name", name, "schedule", entry.Schedule)
	}

	s.cron.Start()
	return nil
}

// Reload stops the existing cron, swaps in new entries, and starts again.
func (s *Scheduler) Reload(entries []Entry) error {
	s.cron.Stop()
	s.entries = entries
	s.cron = cron.New(cron.WithParser(cronParser))
	return s.Start()
}

// Stop stops the cron ticker.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
