// Package analysis turns an unreliable text generation service into a
// per-field JSON producer: generate, extract, validate, and retry up to a
// fixed number of attempts before falling back to a default value.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/thread-annotator/internal/extract"
	"github.com/sells-group/thread-annotator/internal/generate"
	"github.com/sells-group/thread-annotator/internal/model"
	"github.com/sells-group/thread-annotator/internal/resilience"
)

// DefaultMaxAttempts is the number of generation calls per field.
const DefaultMaxAttempts = 3

// Config holds the knobs of the retry loop.
type Config struct {
	// Model is reported in logs only; providers are configured separately.
	Model string

	// MaxAttempts bounds generation calls per field. Default: 3.
	MaxAttempts int

	// Backoff is waited between attempts. The zero value retries immediately.
	Backoff resilience.Backoff

	// Extractor pulls the JSON candidate out of a response. Default: Heuristic.
	Extractor extract.Extractor

	// PromptTemplate overrides DefaultPromptTemplate.
	PromptTemplate string

	// CacheSize enables an LRU of accepted values keyed by prompt hash.
	// Zero disables caching.
	CacheSize int
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Extractor == nil {
		c.Extractor = extract.Heuristic{}
	}
	return c
}

// Observer receives every task state transition.
type Observer func(Transition)

// ExhaustionSink records fields that ran out of attempts.
type ExhaustionSink interface {
	RecordExhausted(ctx context.Context, rec model.ExhaustedField) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver registers a transition callback.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithExhaustionSink registers a dead-letter sink.
func WithExhaustionSink(sink ExhaustionSink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// Orchestrator runs field tasks against a generation client. It is safe for
// concurrent use when the client, observer and sink are.
type Orchestrator struct {
	client   generate.Client
	cfg      Config
	prompt   *Prompt
	cache    *lru.Cache[string, any]
	observer Observer
	sink     ExhaustionSink
}

// New creates an Orchestrator.
func New(client generate.Client, cfg Config, opts ...Option) (*Orchestrator, error) {
	if client == nil {
		return nil, eris.New("analysis: nil generation client")
	}
	cfg = cfg.withDefaults()
	prompt, err := NewPrompt(cfg.PromptTemplate)
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{client: client, cfg: cfg, prompt: prompt}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, any](cfg.CacheSize)
		if err != nil {
			return nil, eris.Wrap(err, "analysis: create cache")
		}
		o.cache = cache
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// NewTask creates a task for one field. Only chunks[0] is analysed.
func (o *Orchestrator) NewTask(postID string, field model.TemplateField, chunks []model.Chunk) *Task {
	return newTask(postID, field, chunks, o.client, o.cfg, o.prompt, o.observer)
}

// AnalyzeField runs one field task to completion. The returned error is
// non-nil only for cancellation or an unrenderable prompt.
func (o *Orchestrator) AnalyzeField(ctx context.Context, postID string, field model.TemplateField, chunks []model.Chunk) (model.FieldOutcome, error) {
	t := o.NewTask(postID, field, chunks)

	if _, err := t.Step(ctx); err != nil {
		return model.FieldOutcome{}, err
	}
	key := cacheKey(t.Prompt())
	if o.cache != nil {
		if v, ok := o.cache.Get(key); ok {
			t.accept(v)
			zap.L().Debug("analysis: cache hit",
				zap.String("post_id", postID),
				zap.String("field", field.Name),
			)
			return t.Outcome(), nil
		}
	}

	if err := t.Run(ctx); err != nil {
		return model.FieldOutcome{}, err
	}

	out := t.Outcome()
	switch out.Status {
	case model.FieldAccepted:
		if o.cache != nil {
			o.cache.Add(key, out.Value)
		}
	case model.FieldExhausted:
		o.exhausted(ctx, postID, t)
	}
	return out, nil
}

// AnalyzePost analyses every template field, in order, against the first
// chunk of a post. Field failures never fail the post; the returned error
// is non-nil only when the context is cancelled or a prompt cannot be
// rendered.
func (o *Orchestrator) AnalyzePost(ctx context.Context, postID string, chunks []model.Chunk, tmpl model.Template) (model.PostAnalysis, []model.FieldOutcome, error) {
	analysis := model.PostAnalysis{PostID: postID, Fields: make([]model.FieldValue, 0, tmpl.Len())}
	outcomes := make([]model.FieldOutcome, 0, tmpl.Len())

	for _, field := range tmpl.Fields {
		out, err := o.AnalyzeField(ctx, postID, field, chunks)
		if err != nil {
			if isAbort(err) {
				zap.L().Info("analysis: post aborted", zap.String("post_id", postID), zap.String("field", field.Name))
			}
			return analysis, outcomes, err
		}
		analysis.Fields = append(analysis.Fields, model.FieldValue{Name: field.Name, Value: out.Value})
		outcomes = append(outcomes, out)
	}
	return analysis, outcomes, nil
}

func (o *Orchestrator) exhausted(ctx context.Context, postID string, t *Task) {
	zap.L().Warn("analysis: attempts exhausted, using default value",
		zap.String("post_id", postID),
		zap.String("field", t.field.Name),
		zap.Int("attempts", t.Attempts()),
		zap.String("kind", t.LastKind()),
		zap.String("diagnostic", t.diag),
	)
	if o.sink == nil {
		return
	}
	rec := model.ExhaustedField{
		PostID:    postID,
		Field:     t.field.Name,
		Attempts:  t.Attempts(),
		ErrorKind: t.LastKind(),
		Error:     t.diag,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.sink.RecordExhausted(ctx, rec); err != nil {
		zap.L().Warn("analysis: record exhausted field", zap.String("post_id", postID), zap.String("field", t.field.Name), zap.Error(err))
	}
}

func cacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
