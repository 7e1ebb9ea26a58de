package stages

import (
	"context"
	"log/slog"

	"github.com/ravi-parthasarathy/megpipe/pkg/pipeline"
	"github.com/ravi-parthasarathy/megpipe/pkg/toolbox"
)

const (
	defaultBurstThreshold = 5.0
	defaultBurstWindowSec = 0.5
)

// BurstStage suppresses transient high-amplitude windows via the Cleaner.
// Attributes: threshold (default 5), window_s (default 0.5).
type BurstStage struct {
	Cleaner toolbox.Cleaner
}

func (s *BurstStage) Handle(_ context.Context, node *pipeline.Node, run *pipeline.Run) error {
	if err := needContinuous(node, run); err != nil {
		return err
	}
	threshold, err := floatAttr(node, "threshold", defaultBurstThreshold)
	if err != nil {
		return err
	}
	windowSec, err := floatAttr(node, "window_s", defaultBurstWindowSec)
	if err != nil {
		return err
	}
	out, cleaned, err := s.Cleaner.CleanBursts(run.Rec, threshold, windowSec)
	if err != nil {
		return err
	}
	if cleaned > 0 {
		slog.Info("burst windows cleaned", "windows", cleaned, "threshold", threshold, "window_s", windowSec)
	}
	run.BurstWindows += cleaned
	run.Rec = out
	return nil
}
