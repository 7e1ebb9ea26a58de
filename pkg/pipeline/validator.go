package pipeline

import (
	"fmt"
	"strings"
)

// LintError describes a structural problem in a pipeline definition.
type LintError struct {
	NodeID  string
	Message string
}

func (e LintError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("stage %q: %s", e.NodeID, e.Message)
	}
	return e.Message
}

// knownStages is the set of valid node types.
var knownStages = map[StageType]bool{
	StageImport: true, StageSelect: true, StageFilter: true,
	StageResample: true, StageReref: true, StageBadChannels: true,
	StageBurst: true, StageICA: true, StageEpoch: true,
	StageBaseline: true, StageReject: true, StageAverage: true,
	StageReport: true,
}

// stageRequiredAttrs maps each stage type to the attribute names that must be
// present (non-empty) in the DOT file. The linter reports all missing
// attributes across all nodes before aborting.
var stageRequiredAttrs = map[StageType][]string{
	StageImport:   {"source"},
	StageSelect:   {"include"},
	StageResample: {"rate_hz"},
	StageEpoch:    {"conditions", "start_s", "end_s"},
	StageBaseline: {"start_s", "end_s"},
	StageReject:   {"min_uv", "max_uv"},
	StageReport:   {"path"},
}

// Validate checks a pipeline for structural correctness.
// Returns all discovered errors (not just the first).
func Validate(p *Pipeline) []LintError {
	var errs []LintError

	// Exactly one import stage, the entry point.
	var importNodes []string
	for id, n := range p.Nodes {
		if n.Type == StageImport {
			importNodes = append(importNodes, id)
		}
	}
	if len(importNodes) != 1 {
		errs = append(errs, LintError{Message: fmt.Sprintf("pipeline has %d import stages; exactly one required", len(importNodes))})
	}

	// Every node type must be a known stage.
	for id, n := range p.Nodes {
		if !knownStages[n.Type] {
			errs = append(errs, LintError{NodeID: id, Message: fmt.Sprintf("unknown stage type %q", n.Type)})
		}
	}

	// All edge endpoints must reference existing nodes.
	for _, e := range p.Edges {
		if _, ok := p.Nodes[e.From]; !ok {
			errs = append(errs, LintError{Message: fmt.Sprintf("edge references unknown source stage %q", e.From)})
		}
		if _, ok := p.Nodes[e.To]; !ok {
			errs = append(errs, LintError{Message: fmt.Sprintf("edge references unknown target stage %q", e.To)})
		}
	}

	// All non-import stages must be reachable from the import stage.
	if len(importNodes) == 1 {
		reachable := reachableFrom(p, importNodes[0])
		for id := range p.Nodes {
			if id != importNodes[0] && !reachable[id] {
				errs = append(errs, LintError{NodeID: id, Message: "stage is not reachable from the import stage"})
			}
		}
	}

	// Checkpoint names must be unique across stages.
	seen := map[string]string{}
	for id, n := range p.Nodes {
		cp := n.CheckpointName()
		if cp == "" {
			continue
		}
		if other, dup := seen[cp]; dup {
			errs = append(errs, LintError{NodeID: id, Message: fmt.Sprintf("checkpoint %q already declared by stage %q", cp, other)})
		}
		seen[cp] = id
	}

	// Required attribute checks.
	for id, n := range p.Nodes {
		for _, attr := range stageRequiredAttrs[n.Type] {
			if n.Attrs[attr] == "" {
				errs = append(errs, LintError{
					NodeID:  id,
					Message: fmt.Sprintf("missing required attribute %q for stage type %q", attr, n.Type),
				})
			}
		}
	}

	return errs
}

// ValidateErr calls Validate and returns nil if there are no errors, or a
// combined error listing all lint errors.
func ValidateErr(p *Pipeline) error {
	errs := Validate(p)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("pipeline validation failed:\n  %s", strings.Join(msgs, "\n  "))
}

// ValidateParams runs the numeric preflight over every stage's thresholds.
// It runs before any stage executes and collects every violation into one
// ThresholdConfigError.
func ValidateParams(p *Pipeline) error {
	var v []string

	add := func(format string, args ...any) {
		v = append(v, fmt.Sprintf(format, args...))
	}
	float := func(n *Node, key string) (float64, bool) {
		val, ok, err := n.FloatAttr(key)
		if err != nil {
			add("%v", err)
			return 0, false
		}
		return val, ok
	}

	// The epoch window, when present, also bounds the baseline window.
	var epochStart, epochEnd float64
	var haveEpoch bool

	for _, n := range p.Nodes {
		switch n.Type {
		case StageImport:
			if minLen, ok, err := n.IntAttr("min_edge_len"); err != nil {
				add("%v", err)
			} else if ok && minLen < 1 {
				add("stage %q: min_edge_len must be >= 1, got %d", n.ID, minLen)
			}
			if bits, ok, err := n.IntAttr("mask_bits"); err != nil {
				add("%v", err)
			} else if ok && (bits < 1 || bits > 31) {
				add("stage %q: mask_bits must be in 1..31, got %d", n.ID, bits)
			}
		case StageFilter:
			hp, hasHP := float(n, "highpass_hz")
			lp, hasLP := float(n, "lowpass_hz")
			if !hasHP && !hasLP {
				add("stage %q: filter needs highpass_hz and/or lowpass_hz", n.ID)
			}
			if hasHP && hp < 0 {
				add("stage %q: highpass_hz must be >= 0, got %g", n.ID, hp)
			}
			if hasLP && lp <= 0 {
				add("stage %q: lowpass_hz must be > 0, got %g", n.ID, lp)
			}
			if hasHP && hasLP && lp <= hp {
				add("stage %q: lowpass_hz (%g) must exceed highpass_hz (%g)", n.ID, lp, hp)
			}
		case StageResample:
			if rate, ok := float(n, "rate_hz"); ok && rate <= 0 {
				add("stage %q: rate_hz must be > 0, got %g", n.ID, rate)
			}
		case StageBadChannels:
			if corr, ok := float(n, "correlation"); ok && (corr <= 0 || corr > 1) {
				add("stage %q: correlation must be in (0,1], got %g", n.ID, corr)
			}
		case StageBurst:
			if th, ok := float(n, "threshold"); ok && th <= 0 {
				add("stage %q: threshold must be > 0, got %g", n.ID, th)
			}
			if win, ok := float(n, "window_s"); ok && win <= 0 {
				add("stage %q: window_s must be > 0, got %g", n.ID, win)
			}
		case StageEpoch:
			start, hasStart := float(n, "start_s")
			end, hasEnd := float(n, "end_s")
			if hasStart && hasEnd {
				if end <= start {
					add("stage %q: epoch end_s (%g) must exceed start_s (%g)", n.ID, end, start)
				} else {
					epochStart, epochEnd, haveEpoch = start, end, true
				}
			}
		case StageReject:
			min, hasMin := float(n, "min_uv")
			max, hasMax := float(n, "max_uv")
			if hasMin && hasMax && min >= max {
				add("stage %q: min_uv (%g) must be below max_uv (%g)", n.ID, min, max)
			}
		}
	}

	// Baseline windows checked after the loop so the epoch window is known
	// regardless of node iteration order.
	for _, n := range p.Nodes {
		if n.Type != StageBaseline {
			continue
		}
		start, hasStart := float(n, "start_s")
		end, hasEnd := float(n, "end_s")
		if !hasStart || !hasEnd {
			continue
		}
		if end <= start {
			add("stage %q: baseline end_s (%g) must exceed start_s (%g)", n.ID, end, start)
		} else if haveEpoch && (start < epochStart || end > epochEnd) {
			add("stage %q: baseline window [%g,%g] outside epoch window [%g,%g]",
				n.ID, start, end, epochStart, epochEnd)
		}
	}

	if len(v) > 0 {
		return &ThresholdConfigError{Violations: v}
	}
	return nil
}

// reachableFrom returns the set of node IDs reachable from start via directed
// edges.
func reachableFrom(p *Pipeline, start string) map[string]bool {
	visited := map[string]bool{}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, e := range p.OutgoingEdges(cur) {
			queue = append(queue, e.To)
		}
	}
	return visited
}
