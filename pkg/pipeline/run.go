package pipeline

import (
	"sort"

	"github.com/google/uuid"

	"github.com/ravi-parthasarathy/megpipe/pkg/recording"
)

// Status is the run state machine: PENDING → RUNNING → {FAILED | COMPLETE}.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
	StatusComplete Status = "complete"
)

// TrialCount tracks per-condition trial counts before and after amplitude
// rejection, for the QC report.
type TrialCount struct {
	Before int
	After  int
}

// Run is the in-flight state of one pipeline execution over one
// subject/session. The engine exclusively owns it for the duration of the
// run; stages mutate it in sequence, never concurrently.
type Run struct {
	ID      string
	Subject string
	Session string

	// Params are run-level parameters available to edge guards and stage
	// attribute templates ("modality", "data_dir", ...).
	Params map[string]string

	// Rec is the evolving continuous recording.
	Rec *recording.Recording

	// Derived holds per-condition epoched recordings after the fan-out
	// epoch stage, keyed by condition label.
	Derived map[string]*recording.Recording

	// EpochStartS/EpochEndS record the epoch window (seconds, event-relative)
	// once the epoch stage has run, so later stages can map event-relative
	// times to trial sample offsets.
	EpochStartS float64
	EpochEndS   float64

	// QC bookkeeping filled in by stages, consumed by the report stage.
	DroppedChannels   []string
	DroppedComponents []int
	BurstWindows      int
	TrialCounts       map[string]*TrialCount
}

// NewRun creates a Run with a fresh id.
func NewRun(subject, session string, params map[string]string) *Run {
	if params == nil {
		params = make(map[string]string)
	}
	return &Run{
		ID:          uuid.New().String(),
		Subject:     subject,
		Session:     session,
		Params:      params,
		Derived:     make(map[string]*recording.Recording),
		TrialCounts: make(map[string]*TrialCount),
	}
}

// ConditionLabels returns the derived-condition labels in sorted order, so
// checkpointing and reporting are deterministic.
func (r *Run) ConditionLabels() []string {
	labels := make([]string, 0, len(r.Derived))
	for label := range r.Derived {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Count returns the trial-count slot for a condition, creating it on demand.
func (r *Run) Count(label string) *TrialCount {
	if r.TrialCounts == nil {
		r.TrialCounts = make(map[string]*TrialCount)
	}
	c, ok := r.TrialCounts[label]
	if !ok {
		c = &TrialCount{}
		r.TrialCounts[label] = c
	}
	return c
}

// Report summarises a finished (or failed) run: what completed, where the
// recovery point is.
type Report struct {
	RunID          string
	Pipeline       string
	Status         Status
	StagesRun      []string
	LastStage      string
	LastCheckpoint string
	CheckpointPath string
	Err            error
}
