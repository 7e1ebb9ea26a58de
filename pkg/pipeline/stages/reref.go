package stages

import (
	"context"

	"github.com/ravi-parthasarathy/megpipe/pkg/pipeline"
	"github.com/ravi-parthasarathy/megpipe/pkg/recording"
)

// RerefStage re-references the signal channels to their common average: at
// every sample the mean over signal channels is subtracted from each of them.
type RerefStage struct{}

func (s *RerefStage) Handle(_ context.Context, node *pipeline.Node, run *pipeline.Run) error {
	if err := needContinuous(node, run); err != nil {
		return err
	}
	out := run.Rec.Clone()
	var signalIdx []int
	for i, ch := range out.Channels {
		if ch.Type == recording.ChannelSignal {
			signalIdx = append(signalIdx, i)
		}
	}
	if len(signalIdx) < 2 {
		// Nothing to reference against.
		run.Rec = out
		return nil
	}
	n := out.NumSamples()
	for i := 0; i < n; i++ {
		var mean float64
		for _, ci := range signalIdx {
			mean += out.Data[ci][i]
		}
		mean /= float64(len(signalIdx))
		for _, ci := range signalIdx {
			out.Data[ci][i] -= mean
		}
	}
	run.Rec = out
	return nil
}
