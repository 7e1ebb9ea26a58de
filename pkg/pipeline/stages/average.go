package stages

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ravi-parthasarathy/megpipe/pkg/pipeline"
)

// AverageStage collapses each condition's trials into a single evoked
// response: the per-channel, per-sample mean across trials. The result is a
// continuous recording again (Data set, Trials nil) with no events.
type AverageStage struct{}

func (s *AverageStage) Handle(_ context.Context, node *pipeline.Node, run *pipeline.Run) error {
	if err := needDerived(node, run); err != nil {
		return err
	}
	for _, label := range run.ConditionLabels() {
		rec := run.Derived[label]
		nTrials := rec.NumTrials()
		if nTrials == 0 {
			return fmt.Errorf("stage %q: condition %q has no trials to average", node.ID, label)
		}
		nSamples := rec.NumSamples()

		out := rec.Clone()
		out.Trials = nil
		out.Events = nil
		out.Data = make([][]float64, len(rec.Channels))
		for ci := range rec.Channels {
			avg := make([]float64, nSamples)
			for _, trial := range rec.Trials {
				for i, v := range trial[ci] {
					avg[i] += v
				}
			}
			for i := range avg {
				avg[i] /= float64(nTrials)
			}
			out.Data[ci] = avg
		}
		run.Derived[label] = out
		slog.Info("averaged", "condition", label, "trials", nTrials)
	}
	return nil
}
