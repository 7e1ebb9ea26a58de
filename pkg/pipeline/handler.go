package pipeline

import "context"

// Handler executes one pipeline stage, transforming the run's recording.
// Implementations live in the stages sub-package; the interface is defined
// here so that Engine can use it without an import cycle.
type Handler interface {
	Handle(ctx context.Context, node *Node, run *Run) error
}

// Registry looks up Handler implementations by stage type.
type Registry interface {
	Get(stageType StageType) (Handler, error)
}

// RunLog records run and stage outcomes to durable storage for later audit.
// A nil RunLog on the engine disables logging.
type RunLog interface {
	BeginRun(runID, subject, session, pipelineName string) error
	StageDone(runID, stage string, status Status, checkpointPath string, stageErr error) error
	EndRun(runID string, status Status, runErr error) error
}
