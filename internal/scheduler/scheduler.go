package scheduler

import (
	"fmt"
	"sort"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/chatrelay/internal/service/relay"
)

// StatsSource exposes relay counters.
type StatsSource interface {
	Snapshot() relay.Snapshot
}

// ClientCounter reports connected socket clients.
type ClientCounter interface {
	Count() int
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	schedule string
	stats    StatsSource
	clients  ClientCounter
	logger   *zap.Logger
}

// NewScheduler creates a scheduler that logs relay stats on the given
// five-field cron schedule.
func NewScheduler(schedule string, stats StatsSource, clients ClientCounter, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cron:     cron.New(),
		schedule: schedule,
		stats:    stats,
		clients:  clients,
		logger:   logger,
	}
}

// Start registers the jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler", zap.String("stats_schedule", s.schedule))

	if _, err := s.cron.AddFunc(s.schedule, s.ReportStats); err != nil {
		return fmt.Errorf("schedule relay stats %q: %w", s.schedule, err)
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

// ReportStats logs the current relay counters.
func (s *Scheduler) ReportStats() {
	snap := s.stats.Snapshot()

	fields := []zap.Field{
		zap.Int64("received", snap.Received),
		zap.Int64("broadcast", snap.Broadcast),
		zap.Int64("dropped", snap.TotalDropped()),
	}
	if s.clients != nil {
		fields = append(fields, zap.Int("clients", s.clients.Count()))
	}
	for _, reason := range sortedKeys(snap.Dropped) {
		fields = append(fields, zap.Int64("dropped."+reason, snap.Dropped[reason]))
	}
	for _, step := range sortedKeys(snap.MediaFailures) {
		fields = append(fields, zap.Int64("media_failed."+step, snap.MediaFailures[step]))
	}

	s.logger.Info("relay stats", fields...)
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
