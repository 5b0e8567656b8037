// Package pipeline drives a run: it loads posts and a template, builds and
// chunks each post, analyses every field and persists the results.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/thread-annotator/internal/analysis"
	"github.com/sells-group/thread-annotator/internal/generate"
	"github.com/sells-group/thread-annotator/internal/model"
	"github.com/sells-group/thread-annotator/internal/store"
	"github.com/sells-group/thread-annotator/internal/thread"
)

// DefaultMaxChunkBytes is the chunk budget used when none is configured.
const DefaultMaxChunkBytes = 12000

// Options configures a Pipeline.
type Options struct {
	// MaxChunkBytes is the chunk budget in compact JSON bytes.
	MaxChunkBytes int

	// PostWorkers bounds concurrently analysed posts. Values below 2 run
	// posts sequentially.
	PostWorkers int

	// OutputPath, when set, receives the analyses after the run.
	OutputPath   string
	OutputFormat OutputFormat

	// Provider is recorded on stored runs.
	Provider string
}

// Input is one run's worth of data. The paths are recorded on the run only.
type Input struct {
	SamplePath   string
	TemplatePath string
	Posts        []model.RawPost
	Template     model.Template
}

// Result is the outcome of a run.
type Result struct {
	RunID     string                 `json:"run_id"`
	Analyses  []model.PostAnalysis   `json:"analyses"`
	Exhausted []model.ExhaustedField `json:"exhausted"`
	Summary   model.RunResult        `json:"summary"`
}

// Pipeline runs samples through the field analysis orchestrator.
type Pipeline struct {
	orch  *analysis.Orchestrator
	store store.Store
	pre   *thread.Preprocessor
	opts  Options
	model string
}

// New creates a Pipeline. st may be nil, in which case nothing is persisted.
func New(client generate.Client, acfg analysis.Config, st store.Store, opts Options) (*Pipeline, error) {
	if opts.MaxChunkBytes <= 0 {
		return nil, eris.Errorf("pipeline: max chunk bytes must be positive, got %d", opts.MaxChunkBytes)
	}
	if _, err := ParseOutputFormat(string(opts.OutputFormat)); err != nil {
		return nil, err
	}
	orch, err := analysis.New(client, acfg, analysis.WithExhaustionSink(runSink{}))
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create orchestrator")
	}
	return &Pipeline{
		orch:  orch,
		store: st,
		pre:   thread.NewPreprocessor(),
		opts:  opts,
		model: acfg.Model,
	}, nil
}

type postResult struct {
	analysis model.PostAnalysis
	outcomes []model.FieldOutcome
	stats    thread.Stats
	chunks   int
}

// Run analyses every post of in and returns the analyses in input order.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	runID, err := p.startRun(ctx, in)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("run_id", runID))
	log.Info("pipeline: starting run",
		zap.Int("posts", len(in.Posts)),
		zap.Int("fields", in.Template.Len()),
		zap.String("model", p.model),
	)
	start := time.Now()

	col := &collector{runID: runID}
	ctx = withCollector(ctx, col)

	results, err := p.processAll(ctx, in)
	if err != nil {
		p.failRun(ctx, runID, err)
		return nil, eris.Wrapf(err, "pipeline: run %s", runID)
	}

	res := &Result{
		RunID:     runID,
		Analyses:  make([]model.PostAnalysis, len(results)),
		Exhausted: col.records(),
	}
	for i, r := range results {
		res.Analyses[i] = r.analysis
		summarize(&res.Summary, r)
	}
	res.Summary.Posts = len(results)

	if p.opts.OutputPath != "" {
		if err := WriteAnalyses(p.opts.OutputPath, p.opts.OutputFormat, res.Analyses); err != nil {
			p.failRun(ctx, runID, err)
			return nil, err
		}
		res.Summary.OutputPath = p.opts.OutputPath
	}

	p.finishRun(ctx, res)

	log.Info("pipeline: run complete",
		zap.Int("posts", res.Summary.Posts),
		zap.Int("accepted", res.Summary.Accepted),
		zap.Int("exhausted", res.Summary.Exhausted),
		zap.Int("cached", res.Summary.Cached),
		zap.Int("attempts", res.Summary.Attempts),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (p *Pipeline) processAll(ctx context.Context, in Input) ([]postResult, error) {
	results := make([]postResult, len(in.Posts))

	if p.opts.PostWorkers < 2 {
		for i, raw := range in.Posts {
			r, err := p.processPost(ctx, raw, i, in.Template)
			if err != nil {
				return nil, err
			}
			results[i] = r
		}
		return results, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.PostWorkers)
	for i, raw := range in.Posts {
		g.Go(func() error {
			r, err := p.processPost(gCtx, raw, i, in.Template)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) processPost(ctx context.Context, raw model.RawPost, index int, tmpl model.Template) (postResult, error) {
	post, stats := p.pre.Process(raw, index)
	log := zap.L().With(zap.String("post_id", post.PostID))

	if stats.Orphans > 0 || stats.Duplicates > 0 {
		log.Warn("pipeline: comment anomalies",
			zap.Int("orphans", stats.Orphans),
			zap.Int("duplicates", stats.Duplicates),
		)
	}

	chunks, err := thread.Chunk(post, p.opts.MaxChunkBytes)
	if err != nil {
		return postResult{}, eris.Wrapf(err, "pipeline: chunk post %s", post.PostID)
	}
	if len(chunks) > 1 {
		log.Info("pipeline: post split, analysing first chunk only", zap.Int("chunks", len(chunks)))
	}

	a, outcomes, err := p.orch.AnalyzePost(ctx, post.PostID, chunks, tmpl)
	if err != nil {
		return postResult{}, eris.Wrapf(err, "pipeline: analyse post %s", post.PostID)
	}
	log.Debug("pipeline: post analysed", zap.Int("fields", len(outcomes)))
	return postResult{analysis: a, outcomes: outcomes, stats: stats, chunks: len(chunks)}, nil
}

func summarize(sum *model.RunResult, r postResult) {
	sum.OrphanComments += r.stats.Orphans
	if r.chunks > 1 {
		sum.PartialDocs++
	}
	for _, o := range r.outcomes {
		sum.Fields++
		sum.Attempts += o.Attempts
		switch o.Status {
		case model.FieldAccepted:
			sum.Accepted++
		case model.FieldExhausted:
			sum.Exhausted++
		case model.FieldCached:
			sum.Cached++
		}
	}
}

// startRun creates the stored run, or a bare id when there is no store.
func (p *Pipeline) startRun(ctx context.Context, in Input) (string, error) {
	if p.store == nil {
		return uuid.New().String(), nil
	}
	run, err := p.store.CreateRun(ctx, model.Run{
		SamplePath:   in.SamplePath,
		TemplatePath: in.TemplatePath,
		Provider:     p.opts.Provider,
		Model:        p.model,
	})
	if err != nil {
		return "", eris.Wrap(err, "pipeline: create run")
	}
	if err := p.store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		zap.L().Warn("pipeline: failed to update status", zap.String("run_id", run.ID), zap.Error(err))
	}
	return run.ID, nil
}

// finishRun persists the analyses and exhausted fields. Store errors here
// are logged; the output file is already written.
func (p *Pipeline) finishRun(ctx context.Context, res *Result) {
	if p.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	log := zap.L().With(zap.String("run_id", res.RunID))
	if err := p.store.SaveAnalyses(ctx, res.RunID, res.Analyses); err != nil {
		log.Error("pipeline: save analyses", zap.Error(err))
	}
	if err := p.store.SaveExhausted(ctx, res.Exhausted); err != nil {
		log.Error("pipeline: save exhausted fields", zap.Error(err))
	}
	if err := p.store.UpdateRunResult(ctx, res.RunID, &res.Summary); err != nil {
		log.Error("pipeline: update run result", zap.Error(err))
	}
}

func (p *Pipeline) failRun(ctx context.Context, runID string, cause error) {
	zap.L().Error("pipeline: run failed", zap.String("run_id", runID), zap.Error(cause))
	if p.store == nil {
		return
	}
	err := p.store.UpdateRunResult(context.WithoutCancel(ctx), runID, &model.RunResult{Error: cause.Error()})
	if err != nil {
		zap.L().Warn("pipeline: failed to record run failure", zap.String("run_id", runID), zap.Error(err))
	}
}

// collector gathers exhausted-field records for one run.
type collector struct {
	runID string
	mu    sync.Mutex
	recs  []model.ExhaustedField
}

func (c *collector) add(rec model.ExhaustedField) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec.RunID = c.runID
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	c.recs = append(c.recs, rec)
}

func (c *collector) records() []model.ExhaustedField {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.ExhaustedField, len(c.recs))
	copy(out, c.recs)
	return out
}

type collectorKey struct{}

func withCollector(ctx context.Context, c *collector) context.Context {
	return context.WithValue(ctx, collectorKey{}, c)
}

// runSink routes exhausted fields to the collector of the run in ctx.
type runSink struct{}

func (runSink) RecordExhausted(ctx context.Context, rec model.ExhaustedField) error {
	c, ok := ctx.Value(collectorKey{}).(*collector)
	if !ok {
		return eris.New("pipeline: no run in context")
	}
	c.add(rec)
	return nil
}
