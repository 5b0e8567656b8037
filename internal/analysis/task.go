package analysis

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/thread-annotator/internal/extract"
	"github.com/sells-group/thread-annotator/internal/generate"
	"github.com/sells-group/thread-annotator/internal/model"
)

// State is the position of a Task in the field analysis state machine.
type State int

const (
	StatePending State = iota
	StateGenerating
	StateExtractingValidating
	StateRetrying
	StateAccepted
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateGenerating:
		return "GENERATING"
	case StateExtractingValidating:
		return "EXTRACTING_VALIDATING"
	case StateRetrying:
		return "RETRYING"
	case StateAccepted:
		return "ACCEPTED"
	case StateExhausted:
		return "EXHAUSTED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateAccepted || s == StateExhausted
}

// Transition describes one state change of a Task.
type Transition struct {
	PostID  string
	Field   string
	From    State
	To      State
	Attempt int
	Err     error
}

// ErrNoChunks is returned for a task without any chunk to analyse.
var ErrNoChunks = eris.New("analysis: no chunks")

// Task drives one (post, field) pair from PENDING to a terminal state. It is
// not safe for concurrent use.
type Task struct {
	postID string
	field  model.TemplateField
	chunks []model.Chunk

	client   generate.Client
	cfg      Config
	prompt   *Prompt
	observer Observer

	state    State
	attempts int
	rendered string
	raw      string
	value    any
	cached   bool
	lastErr  error
	lastKind string
	diag     string
}

func newTask(postID string, field model.TemplateField, chunks []model.Chunk, client generate.Client, cfg Config, prompt *Prompt, obs Observer) *Task {
	return &Task{
		postID:   postID,
		field:    field,
		chunks:   chunks,
		client:   client,
		cfg:      cfg,
		prompt:   prompt,
		observer: obs,
		state:    StatePending,
	}
}

// State returns the current state.
func (t *Task) State() State { return t.state }

// Attempts returns the number of generation calls made so far.
func (t *Task) Attempts() int { return t.attempts }

// Prompt returns the rendered prompt, empty while PENDING.
func (t *Task) Prompt() string { return t.rendered }

// Step performs one transition and returns the new state. It returns an
// error only when the context is cancelled or the prompt cannot be built;
// generation and validation failures are transitions, not errors.
func (t *Task) Step(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return t.state, eris.Wrap(err, "analysis: task aborted")
	}

	switch t.state {
	case StatePending:
		if len(t.chunks) == 0 {
			return t.state, ErrNoChunks
		}
		rendered, err := t.prompt.Render(t.field, t.chunks[0])
		if err != nil {
			return t.state, err
		}
		t.rendered = rendered
		t.moveTo(StateGenerating, nil)

	case StateGenerating:
		t.attempts++
		text, err := t.client.Generate(ctx, t.rendered)
		if err != nil && ctx.Err() != nil {
			return t.state, eris.Wrap(ctx.Err(), "analysis: task aborted")
		}
		if err == nil && strings.TrimSpace(text) == "" {
			err = generate.ErrEmptyResponse
		}
		if err != nil {
			t.lastErr = err
			t.lastKind = generate.Kind(err)
			t.diag = err.Error()
			t.moveTo(StateRetrying, err)
			break
		}
		t.raw = text
		t.moveTo(StateExtractingValidating, nil)

	case StateExtractingValidating:
		v := extract.Check(t.cfg.Extractor, t.raw)
		if v.Valid {
			t.value = v.Value
			t.lastErr, t.lastKind, t.diag = nil, "", ""
			t.moveTo(StateAccepted, nil)
			break
		}
		t.lastErr = v.Err
		t.lastKind = generate.KindMalformed
		t.diag = v.Diagnostic
		t.moveTo(StateRetrying, v.Err)

	case StateRetrying:
		if t.attempts >= t.cfg.MaxAttempts {
			t.value = model.DefaultFieldValue()
			t.moveTo(StateExhausted, t.lastErr)
			break
		}
		zap.L().Warn("analysis: attempt failed, retrying",
			zap.String("post_id", t.postID),
			zap.String("field", t.field.Name),
			zap.Int("attempt", t.attempts),
			zap.String("kind", t.lastKind),
			zap.String("diagnostic", t.diag),
		)
		if err := t.cfg.Backoff.Wait(ctx, t.attempts); err != nil {
			return t.state, eris.Wrap(err, "analysis: task aborted")
		}
		t.moveTo(StateGenerating, nil)
	}

	return t.state, nil
}

// Run steps the task until it reaches a terminal state.
func (t *Task) Run(ctx context.Context) error {
	for !t.state.Terminal() {
		if _, err := t.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// accept short-circuits a rendered task with a cached value.
func (t *Task) accept(value any) {
	t.value = value
	t.cached = true
	t.moveTo(StateAccepted, nil)
}

// Outcome returns the final record. Only meaningful in a terminal state.
func (t *Task) Outcome() model.FieldOutcome {
	out := model.FieldOutcome{
		Field:      t.field.Name,
		Value:      t.value,
		Attempts:   t.attempts,
		Diagnostic: t.diag,
	}
	switch {
	case t.state == StateExhausted:
		out.Status = model.FieldExhausted
	case t.cached:
		out.Status = model.FieldCached
	default:
		out.Status = model.FieldAccepted
	}
	return out
}

// LastError returns the failure of the latest attempt, if any.
func (t *Task) LastError() error { return t.lastErr }

// LastKind returns the failure kind of the latest attempt.
func (t *Task) LastKind() string { return t.lastKind }

func (t *Task) moveTo(to State, err error) {
	from := t.state
	t.state = to
	if t.observer != nil {
		t.observer(Transition{
			PostID:  t.postID,
			Field:   t.field.Name,
			From:    from,
			To:      to,
			Attempt: t.attempts,
			Err:     err,
		})
	}
}

// isAbort reports whether err came from context cancellation.
func isAbort(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
