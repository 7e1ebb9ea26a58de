package pipeline

import (
	"fmt"
	"strings"
)

// ImportError reports a failure to read or decode a raw recording file.
type ImportError struct {
	Path  string
	Cause error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s: %v", e.Path, e.Cause)
}

func (e *ImportError) Unwrap() error { return e.Cause }

// MetadataError reports inconsistent acquisition metadata: unknown channels,
// malformed type declarations, bad rename or override tables.
type MetadataError struct {
	What  string
	Cause error
}

func (e *MetadataError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("metadata: %s: %v", e.What, e.Cause)
	}
	return fmt.Sprintf("metadata: %s", e.What)
}

func (e *MetadataError) Unwrap() error { return e.Cause }

// ThresholdConfigError aggregates every invalid numeric parameter found in a
// pipeline definition. It is raised before any stage runs, so a
// misconfigured threshold never wastes a partial run.
type ThresholdConfigError struct {
	Violations []string
}

func (e *ThresholdConfigError) Error() string {
	return fmt.Sprintf("invalid stage parameters:\n  %s", strings.Join(e.Violations, "\n  "))
}

// StageExecutionError wraps a stage failure with the run's recovery point:
// the last stage that completed and the last checkpoint written.
type StageExecutionError struct {
	Stage          string
	LastStage      string
	LastCheckpoint string
	CheckpointPath string
	Cause          error
}

func (e *StageExecutionError) Error() string {
	msg := fmt.Sprintf("stage %q failed: %v", e.Stage, e.Cause)
	if e.LastCheckpoint != "" {
		msg += fmt.Sprintf(" (resume from checkpoint %q at %s)", e.LastCheckpoint, e.CheckpointPath)
	}
	return msg
}

func (e *StageExecutionError) Unwrap() error { return e.Cause }
