package model

import "time"

// RunStatus represents the current state of an analysis run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run represents a single pass of the pipeline over a sample file.
type Run struct {
	ID           string     `json:"id"`
	SamplePath   string     `json:"sample_path"`
	TemplatePath string     `json:"template_path"`
	Provider     string     `json:"provider"`
	Model        string     `json:"model"`
	Status       RunStatus  `json:"status"`
	Result       *RunResult `json:"result,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// RunResult holds the final counters of a run.
type RunResult struct {
	Posts          int    `json:"posts"`
	Fields         int    `json:"fields"`
	Accepted       int    `json:"accepted"`
	Exhausted      int    `json:"exhausted"`
	Cached         int    `json:"cached"`
	Attempts       int    `json:"attempts"`
	OrphanComments int    `json:"orphan_comments"`
	PartialDocs    int    `json:"partial_docs"`
	OutputPath     string `json:"output_path,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ExhaustedField is a dead-letter record for a (post, field) task that ran
// out of attempts. The persisted analysis holds the default value instead.
type ExhaustedField struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	PostID    string    `json:"post_id"`
	Field     string    `json:"field"`
	Attempts  int       `json:"attempts"`
	ErrorKind string    `json:"error_kind"` // "transport", "service", "empty", "malformed"
	Error     string    `json:"error"`
	CreatedAt time.Time `json:"created_at"`
}
