package stages

import (
	"context"
	"log/slog"

	"github.com/ravi-parthasarathy/megpipe/pkg/pipeline"
	"github.com/ravi-parthasarathy/megpipe/pkg/toolbox"
)

// FilterStage band-passes the signal channels via the bound Filterer.
// Attributes: highpass_hz, lowpass_hz (at least one; validated upfront).
type FilterStage struct {
	Filter toolbox.Filterer
}

func (s *FilterStage) Handle(_ context.Context, node *pipeline.Node, run *pipeline.Run) error {
	if err := needContinuous(node, run); err != nil {
		return err
	}
	hp, err := floatAttr(node, "highpass_hz", 0)
	if err != nil {
		return err
	}
	lp, err := floatAttr(node, "lowpass_hz", 0)
	if err != nil {
		return err
	}
	out, err := s.Filter.Filter(run.Rec, hp, lp)
	if err != nil {
		return err
	}
	slog.Info("filtered", "highpass_hz", hp, "lowpass_hz", lp)
	run.Rec = out
	return nil
}
