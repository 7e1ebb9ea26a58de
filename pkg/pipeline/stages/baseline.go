package stages

import (
	"context"
	"fmt"
	"math"

	"github.com/ravi-parthasarathy/megpipe/pkg/pipeline"
)

// BaselineStage subtracts the mean of an event-relative window from every
// channel of every trial, per condition. The window is expressed in the same
// event-relative seconds as the epoch stage ("-0.2..0" for a pre-stimulus
// baseline) and must lie inside the epoch window.
//
// Attributes: start_s, end_s (required).
type BaselineStage struct{}

func (s *BaselineStage) Handle(_ context.Context, node *pipeline.Node, run *pipeline.Run) error {
	if err := needDerived(node, run); err != nil {
		return err
	}
	startS, err := requiredFloat(node, "start_s")
	if err != nil {
		return err
	}
	endS, err := requiredFloat(node, "end_s")
	if err != nil {
		return err
	}
	if startS < run.EpochStartS || endS > run.EpochEndS || endS <= startS {
		return fmt.Errorf("stage %q: baseline window %gs..%gs outside epoch window %gs..%gs",
			node.ID, startS, endS, run.EpochStartS, run.EpochEndS)
	}

	for _, label := range run.ConditionLabels() {
		rec := run.Derived[label].Clone()
		lo := int(math.Round((startS - run.EpochStartS) * rec.SampleRate))
		hi := int(math.Round((endS - run.EpochStartS) * rec.SampleRate))
		if hi > rec.NumSamples() {
			hi = rec.NumSamples()
		}
		if hi <= lo {
			return fmt.Errorf("stage %q: baseline window is empty after mapping", node.ID)
		}
		for _, trial := range rec.Trials {
			for ci := range trial {
				var mean float64
				for i := lo; i < hi; i++ {
					mean += trial[ci][i]
				}
				mean /= float64(hi - lo)
				for i := range trial[ci] {
					trial[ci][i] -= mean
				}
			}
		}
		run.Derived[label] = rec
	}
	return nil
}
