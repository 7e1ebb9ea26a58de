package stages

import (
	"context"
	"log/slog"

	"github.com/ravi-parthasarathy/megpipe/pkg/pipeline"
	"github.com/ravi-parthasarathy/megpipe/pkg/toolbox"
)

// defaultCorrelation is the bad-channel correlation threshold used when the
// stage does not set one.
const defaultCorrelation = 0.8

// BadChannelsStage drops channels the Cleaner flags as bad.
// Attributes: correlation (default 0.8).
type BadChannelsStage struct {
	Cleaner toolbox.Cleaner
}

func (s *BadChannelsStage) Handle(_ context.Context, node *pipeline.Node, run *pipeline.Run) error {
	if err := needContinuous(node, run); err != nil {
		return err
	}
	threshold, err := floatAttr(node, "correlation", defaultCorrelation)
	if err != nil {
		return err
	}
	out, dropped, err := s.Cleaner.DropBadChannels(run.Rec, threshold)
	if err != nil {
		return err
	}
	if len(dropped) > 0 {
		slog.Warn("bad channels dropped", "channels", dropped, "correlation", threshold)
		run.DroppedChannels = append(run.DroppedChannels, dropped...)
	}
	run.Rec = out
	return nil
}
