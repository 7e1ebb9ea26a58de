package stages

import (
	"context"
	"log/slog"

	"github.com/ravi-parthasarathy/megpipe/pkg/pipeline"
)

// RejectStage removes trials containing any sample outside [min_uv, max_uv]
// on any channel. A trial with a sample exactly at a bound survives; the
// bounds are exclusive on the outside.
//
// Attributes: min_uv, max_uv (required; min_uv < max_uv).
type RejectStage struct{}

func (s *RejectStage) Handle(_ context.Context, node *pipeline.Node, run *pipeline.Run) error {
	if err := needDerived(node, run); err != nil {
		return err
	}
	minUV, err := requiredFloat(node, "min_uv")
	if err != nil {
		return err
	}
	maxUV, err := requiredFloat(node, "max_uv")
	if err != nil {
		return err
	}

	for _, label := range run.ConditionLabels() {
		rec := run.Derived[label].Clone()
		kept := rec.Trials[:0]
		for _, trial := range rec.Trials {
			if trialInBounds(trial, minUV, maxUV) {
				kept = append(kept, trial)
			}
		}
		rejected := rec.NumTrials() - len(kept)
		rec.Trials = kept
		run.Derived[label] = rec
		run.Count(label).After = len(kept)
		if rejected > 0 {
			slog.Info("trials rejected", "condition", label, "rejected", rejected, "kept", len(kept))
		}
	}
	return nil
}

func trialInBounds(trial [][]float64, minUV, maxUV float64) bool {
	for _, ch := range trial {
		for _, v := range ch {
			if v < minUV || v > maxUV {
				return false
			}
		}
	}
	return true
}
