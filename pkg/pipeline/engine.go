package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ravi-parthasarathy/megpipe/pkg/checkpoint"
)

// maxStageVisits bounds the run loop; pipelines are linear, so revisiting a
// stage this often means a malformed edge set.
const maxStageVisits = 10

// Engine executes a Pipeline against one Run, stage by stage, fail-fast.
type Engine struct {
	pipeline *Pipeline
	reg      Registry
	store    checkpoint.Store
	runlog   RunLog
	observer Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunLog makes the engine record run and stage outcomes.
func WithRunLog(rl RunLog) Option { return func(e *Engine) { e.runlog = rl } }

// WithObserver attaches an event callback.
func WithObserver(obs Observer) Option { return func(e *Engine) { e.observer = obs } }

// NewEngine validates the pipeline — structure and numeric thresholds — and
// returns an engine bound to a checkpoint store. Threshold violations are
// rejected here, before any stage can run.
func NewEngine(p *Pipeline, reg Registry, store checkpoint.Store, opts ...Option) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline must not be nil")
	}
	if reg == nil {
		return nil, fmt.Errorf("stage registry must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("checkpoint store must not be nil")
	}
	if err := ValidateErr(p); err != nil {
		return nil, err
	}
	if err := ValidateParams(p); err != nil {
		return nil, err
	}
	e := &Engine{pipeline: p, reg: reg, store: store}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) emit(ev Event) {
	if e.observer != nil {
		e.observer(ev)
	}
}

// Execute runs the pipeline over run. With fromCheckpoint set, the named
// snapshot is loaded as the initial recording and every stage up to and
// including its producer is skipped — the resume pattern where each session
// picks up from the previous session's saved file.
func (e *Engine) Execute(ctx context.Context, run *Run, fromCheckpoint string) (*Report, error) {
	report := &Report{RunID: run.ID, Pipeline: e.pipeline.Name, Status: StatusPending}

	startID := e.pipeline.EntryNode()
	if fromCheckpoint != "" {
		var err error
		startID, err = e.resume(run, report, fromCheckpoint)
		if err != nil {
			report.Status = StatusFailed
			report.Err = err
			return report, err
		}
		if startID == "" {
			// The checkpoint producer was the final stage.
			report.Status = StatusComplete
			return report, nil
		}
	}

	if e.runlog != nil {
		if err := e.runlog.BeginRun(run.ID, run.Subject, run.Session, e.pipeline.Name); err != nil {
			slog.Warn("run log unavailable", "error", err)
		}
	}

	report.Status = StatusRunning
	visits := make(map[string]int)
	currentID := startID

	for {
		// Caller-triggered abort is honored between stages; the last
		// successful checkpoint stays the recovery point.
		select {
		case <-ctx.Done():
			return e.fail(report, run, currentID, fmt.Errorf("run cancelled: %w", ctx.Err()))
		default:
		}

		visits[currentID]++
		if visits[currentID] > maxStageVisits {
			return e.fail(report, run, currentID, fmt.Errorf("cycle detected: stage visited more than %d times", maxStageVisits))
		}

		node, ok := e.pipeline.Nodes[currentID]
		if !ok {
			return e.fail(report, run, currentID, fmt.Errorf("stage %q not found in pipeline", currentID))
		}

		handler, err := e.reg.Get(node.Type)
		if err != nil {
			return e.fail(report, run, currentID, err)
		}

		slog.Info("executing stage", "stage", node.ID, "type", node.Type, "subject", run.Subject)
		e.emit(Event{Type: EventStageStarted, Stage: node.ID})

		if execErr := handler.Handle(ctx, node, run); execErr != nil {
			return e.fail(report, run, node.ID, execErr)
		}

		if cp := node.CheckpointName(); cp != "" {
			if err := e.saveCheckpoints(run, report, node, cp); err != nil {
				return e.fail(report, run, node.ID, err)
			}
		}

		report.StagesRun = append(report.StagesRun, node.ID)
		report.LastStage = node.ID
		e.emit(Event{Type: EventStageCompleted, Stage: node.ID})
		if e.runlog != nil {
			_ = e.runlog.StageDone(run.ID, node.ID, StatusComplete, report.CheckpointPath, nil)
		}

		nextID, err := e.selectNext(node.ID, run.Params)
		if err != nil {
			return e.fail(report, run, node.ID, err)
		}
		if nextID == "" {
			report.Status = StatusComplete
			slog.Info("run complete", "run", run.ID, "last_stage", node.ID)
			e.emit(Event{Type: EventRunCompleted, Stage: node.ID})
			if e.runlog != nil {
				_ = e.runlog.EndRun(run.ID, StatusComplete, nil)
			}
			return report, nil
		}
		currentID = nextID
	}
}

// saveCheckpoints persists the main recording under name, plus one snapshot
// per derived condition under name_<label>.
func (e *Engine) saveCheckpoints(run *Run, report *Report, node *Node, name string) error {
	loc, err := e.store.Save(name, node.ID, run.Rec)
	if err != nil {
		return fmt.Errorf("save checkpoint %q: %w", name, err)
	}
	for _, label := range run.ConditionLabels() {
		derivedName := name + "_" + sanitizeLabel(label)
		if _, err := e.store.Save(derivedName, node.ID, run.Derived[label]); err != nil {
			return fmt.Errorf("save checkpoint %q: %w", derivedName, err)
		}
	}
	report.LastCheckpoint = name
	report.CheckpointPath = loc
	slog.Info("checkpoint saved", "name", name, "path", loc)
	e.emit(Event{Type: EventCheckpointSaved, Stage: node.ID, Checkpoint: name, Path: loc})
	return nil
}

// resume loads the named checkpoint into the run and returns the stage to
// continue from ("" if the producer was terminal).
func (e *Engine) resume(run *Run, report *Report, name string) (string, error) {
	producer := e.pipeline.CheckpointProducer(name)
	if producer == nil {
		return "", fmt.Errorf("checkpoint %q is not declared by any stage in pipeline %q", name, e.pipeline.Name)
	}
	rec, err := e.store.Load(name)
	if err != nil {
		return "", err
	}
	run.Rec = rec

	// Recover per-condition snapshots saved alongside the main one.
	for _, n := range e.pipeline.Nodes {
		conds, ok := n.Attrs["conditions"]
		if !ok {
			continue
		}
		for _, label := range strings.Split(conds, ",") {
			label = strings.TrimSpace(label)
			if label == "" {
				continue
			}
			derivedName := name + "_" + sanitizeLabel(label)
			if !e.store.Exists(derivedName) {
				continue
			}
			derived, err := e.store.Load(derivedName)
			if err != nil {
				return "", err
			}
			run.Derived[label] = derived
		}
	}

	report.LastCheckpoint = name
	report.LastStage = producer.ID
	slog.Info("resuming from checkpoint", "name", name, "producer", producer.ID)
	return e.selectNext(producer.ID, run.Params)
}

// fail finalises a report for a stage failure, wrapping the cause with the
// recovery point.
func (e *Engine) fail(report *Report, run *Run, stageID string, cause error) (*Report, error) {
	serr := &StageExecutionError{
		Stage:          stageID,
		LastStage:      report.LastStage,
		LastCheckpoint: report.LastCheckpoint,
		CheckpointPath: report.CheckpointPath,
		Cause:          cause,
	}
	report.Status = StatusFailed
	report.Err = serr
	slog.Error("run failed", "stage", stageID, "error", cause,
		"last_checkpoint", report.LastCheckpoint)
	e.emit(Event{Type: EventRunFailed, Stage: stageID, Checkpoint: report.LastCheckpoint, Err: serr})
	if e.runlog != nil {
		_ = e.runlog.StageDone(run.ID, stageID, StatusFailed, report.CheckpointPath, cause)
		_ = e.runlog.EndRun(run.ID, StatusFailed, serr)
	}
	return report, serr
}

// selectNext evaluates outgoing edges from nodeID in order and returns the
// first whose guard matches the run parameters. An empty guard (or "_") is
// unconditional. No edges means the pipeline is done.
func (e *Engine) selectNext(nodeID string, params map[string]string) (string, error) {
	edges := e.pipeline.OutgoingEdges(nodeID)
	if len(edges) == 0 {
		return "", nil
	}
	for _, edge := range edges {
		if edge.Guard == "" || edge.Guard == "_" {
			return edge.To, nil
		}
		ok, err := EvalGuard(edge.Guard, params)
		if err != nil {
			return "", fmt.Errorf("edge %q→%q: %w", edge.From, edge.To, err)
		}
		if ok {
			return edge.To, nil
		}
	}
	return "", fmt.Errorf("no outgoing edge guard matched for stage %q", nodeID)
}

// sanitizeLabel makes a condition label safe for use in checkpoint names.
func sanitizeLabel(label string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, label)
}
