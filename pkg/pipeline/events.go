package pipeline

// EventType identifies the kind of engine event.
type EventType string

const (
	EventStageStarted    EventType = "stage_started"
	EventStageCompleted  EventType = "stage_completed"
	EventCheckpointSaved EventType = "checkpoint_saved"
	EventRunCompleted    EventType = "run_completed"
	EventRunFailed       EventType = "run_failed"
)

// Event is emitted by the engine for real-time monitoring of a run.
type Event struct {
	Type       EventType
	Stage      string
	Checkpoint string
	Path       string
	Err        error
}

// Observer receives engine events. It runs on the engine's goroutine and
// must return quickly.
type Observer func(Event)
