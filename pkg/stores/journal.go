package stores

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openfroyo/hostkit/pkg/engine"
)

// Journal records runs into a store as the executor reports them.
// Write failures never interrupt a run; they are logged and returned by
// Err.
type Journal struct {
	store  *SQLiteStore
	target string
	logger zerolog.Logger

	mu   sync.Mutex
	errs []error
}

var _ engine.Observer = (*Journal)(nil)

type journalRunKey struct{}

type journalCursor struct {
	runID string
	mu    sync.Mutex
	seq   int
}

// NewJournal creates a Journal. target is recorded with each run, e.g.
// "local" or "ssh://deploy@vps".
func NewJournal(store *SQLiteStore, target string, logger zerolog.Logger) *Journal {
	return &Journal{
		store:  store,
		target: target,
		logger: logger.With().Str("component", "journal").Logger(),
	}
}

// RunStarted inserts the run row.
func (j *Journal) RunStarted(ctx context.Context, run *engine.Report) context.Context {
	j.record(run.RunID, j.store.CreateRun(ctx, RunFromReport(run, j.target)))
	return context.WithValue(ctx, journalRunKey{}, &journalCursor{runID: run.RunID})
}

// StepStarted implements engine.Observer.
func (j *Journal) StepStarted(ctx context.Context, _ engine.Step) context.Context {
	return ctx
}

// StepFinished appends the step result.
func (j *Journal) StepFinished(ctx context.Context, result engine.StepResult) {
	cur, ok := ctx.Value(journalRunKey{}).(*journalCursor)
	if !ok {
		return
	}
	cur.mu.Lock()
	cur.seq++
	seq := cur.seq
	cur.mu.Unlock()

	j.record(cur.runID, j.store.AppendStepResult(context.WithoutCancel(ctx), StepRecordFromResult(cur.runID, seq, result)))
}

// RunFinished stores the final status and counters.
func (j *Journal) RunFinished(ctx context.Context, report *engine.Report) {
	j.record(report.RunID, j.store.FinishRun(context.WithoutCancel(ctx), RunFromReport(report, j.target)))
}

// Err returns every write failure seen so far.
func (j *Journal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return errors.Join(j.errs...)
}

func (j *Journal) record(runID string, err error) {
	if err == nil {
		return
	}
	j.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to journal run")

	j.mu.Lock()
	j.errs = append(j.errs, err)
	j.mu.Unlock()
}
