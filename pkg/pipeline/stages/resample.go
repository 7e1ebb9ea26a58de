package stages

import (
	"context"
	"log/slog"

	"github.com/ravi-parthasarathy/megpipe/pkg/pipeline"
	"github.com/ravi-parthasarathy/megpipe/pkg/toolbox"
)

// ResampleStage converts the recording to a new sample rate.
// Attributes: rate_hz (required).
type ResampleStage struct{}

func (s *ResampleStage) Handle(_ context.Context, node *pipeline.Node, run *pipeline.Run) error {
	if err := needContinuous(node, run); err != nil {
		return err
	}
	rate, err := requiredFloat(node, "rate_hz")
	if err != nil {
		return err
	}
	out, err := toolbox.Resample(run.Rec, rate)
	if err != nil {
		return err
	}
	slog.Info("resampled", "from_hz", run.Rec.SampleRate, "to_hz", rate, "samples", out.NumSamples())
	run.Rec = out
	return nil
}
