// Package stages implements the built-in pipeline stage handlers: import,
// channel selection, filtering, resampling, re-referencing, artifact
// cleaning, component rejection, epoching, baseline correction, amplitude
// rejection, averaging, and QC reporting.
package stages

import (
	"fmt"

	"github.com/ravi-parthasarathy/megpipe/pkg/pipeline"
	"github.com/ravi-parthasarathy/megpipe/pkg/toolbox"
)

// Registry maps stage types to Handler implementations.
// It implements the pipeline.Registry interface.
type Registry struct {
	handlers map[pipeline.StageType]pipeline.Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[pipeline.StageType]pipeline.Handler)}
}

// Register associates a handler with a stage type.
func (r *Registry) Register(stageType pipeline.StageType, h pipeline.Handler) {
	r.handlers[stageType] = h
}

// Get returns the handler for a stage type, or an error if not registered.
func (r *Registry) Get(stageType pipeline.StageType) (pipeline.Handler, error) {
	h, ok := r.handlers[stageType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for stage type %q", stageType)
	}
	return h, nil
}

// Deps bundles the collaborators the built-in stages delegate to.
type Deps struct {
	Importer Importer
	Filter   toolbox.Filterer
	Cleaner  toolbox.Cleaner
	Decomp   toolbox.Decomposer
	Scorer   toolbox.ComponentScorer
}

// NewDefaultRegistry wires every built-in stage against deps. Nil toolbox
// fields fall back to the reference implementation.
func NewDefaultRegistry(deps Deps) *Registry {
	if deps.Importer == nil {
		deps.Importer = &JSONImporter{}
	}
	if deps.Filter == nil {
		deps.Filter = toolbox.Basic{}
	}
	if deps.Cleaner == nil {
		deps.Cleaner = toolbox.Basic{}
	}
	if deps.Decomp == nil {
		deps.Decomp = toolbox.Basic{}
	}
	if deps.Scorer == nil {
		deps.Scorer = toolbox.Basic{}
	}

	reg := NewRegistry()
	reg.Register(pipeline.StageImport, &ImportStage{Importer: deps.Importer})
	reg.Register(pipeline.StageSelect, &SelectStage{})
	reg.Register(pipeline.StageFilter, &FilterStage{Filter: deps.Filter})
	reg.Register(pipeline.StageResample, &ResampleStage{})
	reg.Register(pipeline.StageReref, &RerefStage{})
	reg.Register(pipeline.StageBadChannels, &BadChannelsStage{Cleaner: deps.Cleaner})
	reg.Register(pipeline.StageBurst, &BurstStage{Cleaner: deps.Cleaner})
	reg.Register(pipeline.StageICA, &ICAStage{Decomp: deps.Decomp, Scorer: deps.Scorer})
	reg.Register(pipeline.StageEpoch, &EpochStage{})
	reg.Register(pipeline.StageBaseline, &BaselineStage{})
	reg.Register(pipeline.StageReject, &RejectStage{})
	reg.Register(pipeline.StageAverage, &AverageStage{})
	reg.Register(pipeline.StageReport, &ReportStage{})
	return reg
}
