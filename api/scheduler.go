/*
scheduler.go - Periodic ingestion scheduler

PURPOSE:
  Runs an ingestion at a fixed interval while the API is serving, so new
  extracts dropped in the source directories are picked up without anyone
  running `docflow ingest`.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Runs once immediately on Start
  - A tick that finds a run already in progress (manual trigger) is skipped

CONFIGURATION:
  - Interval: DOCFLOW_INGEST_INTERVAL; zero leaves the scheduler disabled

USAGE:
  scheduler := NewIngestionScheduler(runner, cfg.IngestInterval, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerIngestion endpoint (manual run)
  - ingest/runner.go: the run itself
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/celluledoc/docflow/ingest"
)

// IngestionScheduler triggers ingestion runs periodically.
type IngestionScheduler struct {
	Ingester Ingester
	Interval time.Duration

	log    logrus.FieldLogger
	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastMu  sync.Mutex
	lastRun time.Time
}

// NewIngestionScheduler creates a scheduler. It does nothing until Start.
func NewIngestionScheduler(ing Ingester, interval time.Duration, log logrus.FieldLogger) *IngestionScheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &IngestionScheduler{
		Ingester: ing,
		Interval: interval,
		log:      log.WithField("component", "scheduler"),
	}
}

// Enabled reports whether Start will schedule runs.
func (s *IngestionScheduler) Enabled() bool {
	return s.Interval > 0
}

// Start begins the scheduler.
func (s *IngestionScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled() {
		s.log.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stop = make(chan struct{})
	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)

	go s.run(ctx, s.ticker, s.stop)

	s.log.WithField("interval", s.Interval.String()).Info("started")
}

// Stop stops the scheduler and waits for a run in progress to return.
func (s *IngestionScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.cancel()
	s.wg.Wait()
	s.ticker = nil
	s.log.Info("stopped")
}

func (s *IngestionScheduler) run(ctx context.Context, ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-stop:
			return
		}
	}
}

func (s *IngestionScheduler) runOnce(ctx context.Context) {
	sum, err := s.Ingester.TryRun(ctx)
	switch {
	case errors.Is(err, ingest.ErrRunInProgress):
		s.log.Info("run already in progress, tick skipped")
		return
	case err != nil:
		s.log.WithError(err).Error("scheduled ingestion failed")
	default:
		s.log.WithFields(logrus.Fields{"run_id": sum.RunID, "failed": sum.Failed()}).Info("scheduled ingestion done")
	}
	s.lastMu.Lock()
	s.lastRun = time.Now()
	s.lastMu.Unlock()
}

// LastRun returns when the last scheduled run finished.
func (s *IngestionScheduler) LastRun() time.Time {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	return s.lastRun
}

// NextRunTime returns when the next scheduled run is due.
func (s *IngestionScheduler) NextRunTime() time.Time {
	last := s.LastRun()
	if last.IsZero() {
		return time.Now()
	}
	return last.Add(s.Interval)
}
