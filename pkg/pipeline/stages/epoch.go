package stages

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/ravi-parthasarathy/megpipe/pkg/pipeline"
	"github.com/ravi-parthasarathy/megpipe/pkg/recording"
)

// EpochStage fans the continuous recording out into one epoched recording per
// condition label: every event carrying the label yields a trial covering
// [event+start_s, event+end_s). Events whose window runs past either end of
// the buffer are skipped with a warning.
//
// Attributes: conditions "Famous,Scrambled" (required), start_s, end_s
// (required; end_s > start_s).
type EpochStage struct{}

func (s *EpochStage) Handle(_ context.Context, node *pipeline.Node, run *pipeline.Run) error {
	if err := needContinuous(node, run); err != nil {
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
	var conditions []string
	for _, c := range strings.Split(node.Attrs["conditions"], ",") {
		if c = strings.TrimSpace(c); c != "" {
			conditions = append(conditions, c)
		}
	}
	if len(conditions) == 0 {
		return fmt.Errorf("stage %q: conditions attribute is empty", node.ID)
	}

	rec := run.Rec
	startOff := int(math.Round(startS * rec.SampleRate))
	endOff := int(math.Round(endS * rec.SampleRate))
	if endOff <= startOff {
		return fmt.Errorf("stage %q: epoch window is empty (%gs..%gs)", node.ID, startS, endS)
	}
	n := rec.NumSamples()

	for _, label := range conditions {
		epoched := &recording.Recording{
			Subject:    rec.Subject,
			Session:    rec.Session,
			SampleRate: rec.SampleRate,
			Channels:   append([]recording.Channel(nil), rec.Channels...),
			Trials:     [][][]float64{},
		}
		skipped := 0
		for _, ev := range rec.Events {
			if ev.Label != label {
				continue
			}
			center := int(math.Round(ev.TimeMs / 1000 * rec.SampleRate))
			lo, hi := center+startOff, center+endOff
			if lo < 0 || hi > n {
				skipped++
				continue
			}
			trial := make([][]float64, len(rec.Channels))
			for ci := range rec.Channels {
				trial[ci] = append([]float64(nil), rec.Data[ci][lo:hi]...)
			}
			epoched.Trials = append(epoched.Trials, trial)
		}
		if skipped > 0 {
			slog.Warn("epochs outside buffer skipped", "condition", label, "skipped", skipped)
		}
		run.Derived[label] = epoched
		run.Count(label).Before = epoched.NumTrials()
		slog.Info("epoched", "condition", label, "trials", epoched.NumTrials())
	}

	run.EpochStartS = startS
	run.EpochEndS = endS
	return nil
}
