// Package monitoring watches stored runs for failures and fields that
// keep falling back to the default value, and reports alerts to a webhook.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/thread-annotator/internal/model"
	"github.com/sells-group/thread-annotator/internal/store"
)

// maxRuns bounds the runs scanned for a single snapshot.
const maxRuns = 10000

// MetricsSnapshot holds a point-in-time view of run health.
type MetricsSnapshot struct {
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsActive   int     `json:"runs_active"`
	FailureRate  float64 `json:"failure_rate"`

	// Field counters summed over completed runs.
	Posts          int     `json:"posts"`
	Fields         int     `json:"fields"`
	Accepted       int     `json:"accepted"`
	Cached         int     `json:"cached"`
	Exhausted      int     `json:"exhausted"`
	Attempts       int     `json:"attempts"`
	ExhaustionRate float64 `json:"exhaustion_rate"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the part of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from the run store.
type Collector struct {
	runs RunLister
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        maxRuns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusQueued, model.RunStatusRunning:
			snap.RunsActive++
		}
		if r.Status != model.RunStatusComplete || r.Result == nil {
			continue
		}
		snap.Posts += r.Result.Posts
		snap.Fields += r.Result.Fields
		snap.Accepted += r.Result.Accepted
		snap.Cached += r.Result.Cached
		snap.Exhausted += r.Result.Exhausted
		snap.Attempts += r.Result.Attempts
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailureRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.Fields > 0 {
		snap.ExhaustionRate = float64(snap.Exhausted) / float64(snap.Fields)
	}

	return snap, nil
}
