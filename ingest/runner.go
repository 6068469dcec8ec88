/*
Package ingest runs the batch ingestion of the three extracts.

PURPOSE:
  One run picks, for each format, the most recent extract in the format's
  directory, reads it, normalizes it against the identifiers already
  stored, and persists the result: new lines appended, known lines updated
  under the column class rules.

FLOW (per format, in formats.Kinds order):
  1. extract.Latest:        newest file whose name contains the format tag
  2. extract.Reader:        first sheet, first row as header
  3. Reconciler.Snapshot:   identifiers already stored
  4. Normalizer.Normalize:  drop, id, rename, eligibility, stamping, dedup
  5. Partition + Apply:     append new rows, update known rows

ERRORS:
  Failures are scoped to one file: the error is logged, recorded on the
  run, and the next format is processed. Only a failure to prepare the
  table aborts the whole run.

CONCURRENCY:
  Runs are serialised by a mutex; the scheduler and the HTTP trigger share
  one Runner.

SEE ALSO:
  - reconcile/normalize.go, reconcile/reconcile.go: the engine
  - cli/ingest.go: command line entry point
  - api/scheduler.go: periodic runs
*/
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/celluledoc/docflow/extract"
	"github.com/celluledoc/docflow/formats"
	"github.com/celluledoc/docflow/reconcile"
	"github.com/celluledoc/docflow/store/sqlstore"
)

// ErrRunInProgress is returned by TryRun while another run holds the lock.
var ErrRunInProgress = errors.New("ingestion run already in progress")

// RunRecorder persists one record per processed extract.
type RunRecorder interface {
	SaveRun(ctx context.Context, r sqlstore.IngestionRun) error
}

// =============================================================================
// RESULTS
// =============================================================================

// FileResult is what a run did with one format.
type FileResult struct {
	Kind     string
	Source   string
	Status   string // sqlstore.RunCompleted, RunSkipped or RunFailed
	Batch    reconcile.Batch
	Applied  reconcile.Applied
	Issues   []*reconcile.RowIssue
	Err      error
	Duration time.Duration
}

// Summary is the outcome of one run.
type Summary struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Files    []FileResult
}

// Failed counts the formats whose file could not be processed.
func (s Summary) Failed() int {
	n := 0
	for _, f := range s.Files {
		if f.Status == sqlstore.RunFailed {
			n++
		}
	}
	return n
}

// =============================================================================
// RUNNER
// =============================================================================

// Options configures a Runner.
type Options struct {
	Table string
	// Dirs maps a format kind to the directory holding its extracts.
	Dirs     map[string]string
	Recorder RunRecorder // optional
	Clock    reconcile.Clock
	Log      logrus.FieldLogger
}

// Runner executes ingestion runs.
type Runner struct {
	gw         reconcile.Gateway
	adapters   map[string]reconcile.Adapter
	reconciler *reconcile.Reconciler
	normalizer *reconcile.Normalizer
	reader     *extract.Reader
	opts       Options
	log        logrus.FieldLogger

	mu sync.Mutex
}

// NewRunner creates a runner over gw with one adapter per format kind.
func NewRunner(gw reconcile.Gateway, adapters map[string]reconcile.Adapter, opts Options) *Runner {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{
		gw:         gw,
		adapters:   adapters,
		reconciler: reconcile.NewReconciler(gw),
		normalizer: reconcile.NewNormalizer(opts.Clock),
		reader:     extract.NewReader(),
		opts:       opts,
		log:        log.WithField("table", opts.Table),
	}
}

// Run processes every format once. It blocks while another run is active.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run(ctx)
}

// TryRun is Run, except it fails with ErrRunInProgress instead of waiting.
func (r *Runner) TryRun(ctx context.Context) (Summary, error) {
	if !r.mu.TryLock() {
		return Summary{}, ErrRunInProgress
	}
	defer r.mu.Unlock()
	return r.run(ctx)
}

func (r *Runner) run(ctx context.Context) (Summary, error) {
	sum := Summary{RunID: uuid.NewString(), Started: time.Now()}
	log := r.log.WithField("run_id", sum.RunID)
	log.Info("ingestion started")

	if err := r.gw.EnsureTable(ctx, r.opts.Table); err != nil {
		log.WithError(err).Error("cannot prepare documents table")
		return sum, fmt.Errorf("prepare table %s: %w", r.opts.Table, err)
	}

	for _, kind := range formats.Kinds {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		a, ok := r.adapters[kind]
		if !ok {
			continue
		}
		res := r.processFormat(ctx, log.WithField("format", kind), kind, a)
		r.record(ctx, log, sum.RunID, res)
		sum.Files = append(sum.Files, res)
	}

	sum.Duration = time.Since(sum.Started)
	log.WithFields(logrus.Fields{
		"failed":   sum.Failed(),
		"duration": sum.Duration.Round(time.Millisecond).String(),
	}).Info("ingestion finished")
	return sum, nil
}

func (r *Runner) processFormat(ctx context.Context, log logrus.FieldLogger, kind string, a reconcile.Adapter) FileResult {
	start := time.Now()
	res := FileResult{Kind: kind}
	fail := func(err error, msg string) FileResult {
		res.Status = sqlstore.RunFailed
		res.Err = err
		res.Duration = time.Since(start)
		log.WithError(err).Error(msg)
		return res
	}

	decl := a.Declaration()
	found, err := extract.Latest(r.opts.Dirs[kind], decl.Tag)
	if errors.Is(err, extract.ErrNoExtract) {
		res.Status = sqlstore.RunSkipped
		res.Duration = time.Since(start)
		log.WithField("dir", r.opts.Dirs[kind]).Warn("no extract found")
		return res
	}
	if err != nil {
		return fail(err, "cannot look for extracts")
	}
	res.Source = found.Path
	log = log.WithField("file", found.Path)

	raw, err := r.reader.ReadFile(found.Path)
	if err != nil {
		return fail(err, "cannot read extract")
	}

	known, err := r.reconciler.Snapshot(ctx, r.opts.Table)
	if err != nil {
		return fail(err, "cannot read stored identifiers")
	}

	batch, err := r.normalizer.Normalize(raw, a, known)
	if err != nil {
		return fail(err, "extract rejected")
	}
	res.Batch = batch
	if len(batch.Unmapped) > 0 {
		log.WithField("columns", batch.Unmapped).Info("columns not in the documents table are ignored")
	}

	plan := reconcile.Partition(batch.Rows, known)
	res.Issues = append(append(res.Issues, batch.Issues...), plan.Issues...)
	for _, issue := range res.Issues {
		log.Warn(issue.Error())
	}

	res.Applied, err = r.reconciler.Apply(ctx, r.opts.Table, plan)
	if err != nil {
		return fail(err, "cannot persist extract")
	}

	res.Status = sqlstore.RunCompleted
	res.Duration = time.Since(start)
	log.WithFields(logrus.Fields{
		"read":       batch.Read,
		"kept":       len(batch.Rows),
		"ineligible": batch.Ineligible,
		"inserted":   res.Applied.Inserted,
		"updated":    res.Applied.Updated,
	}).Info("extract ingested")
	return res
}

func (r *Runner) record(ctx context.Context, log logrus.FieldLogger, runID string, res FileResult) {
	if r.opts.Recorder == nil {
		return
	}
	rec := sqlstore.IngestionRun{
		ID:         uuid.NewString(),
		RunID:      runID,
		Format:     res.Kind,
		Source:     res.Source,
		Status:     res.Status,
		Read:       res.Batch.Read,
		Discarded:  res.Batch.Discarded,
		Rejected:   res.Batch.Rejected,
		Ineligible: res.Batch.Ineligible,
		Duplicates: res.Batch.Duplicates,
		Inserted:   res.Applied.Inserted,
		Updated:    res.Applied.Updated,
		Issues:     len(res.Issues),
		FinishedAt: time.Now(),
	}
	rec.StartedAt = rec.FinishedAt.Add(-res.Duration)
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if err := r.opts.Recorder.SaveRun(ctx, rec); err != nil {
		log.WithError(err).Error("cannot record ingestion run")
	}
}
