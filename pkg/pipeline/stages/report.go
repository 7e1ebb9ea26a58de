package stages

import (
	"context"
	"log/slog"

	"github.com/ravi-parthasarathy/megpipe/pkg/pipeline"
	"github.com/ravi-parthasarathy/megpipe/pkg/report"
)

// ReportStage writes the QC workbook for the run.
// Attributes: path (required; {subject}/{session} placeholders expand).
type ReportStage struct{}

func (s *ReportStage) Handle(_ context.Context, node *pipeline.Node, run *pipeline.Run) error {
	path := expand(node.Attrs["path"], run)

	summary := report.Summary{
		RunID:             run.ID,
		Subject:           run.Subject,
		Session:           run.Session,
		Pipeline:          run.Params["pipeline"],
		DroppedChannels:   run.DroppedChannels,
		DroppedComponents: run.DroppedComponents,
		BurstWindows:      run.BurstWindows,
	}
	for _, label := range run.ConditionLabels() {
		c := run.Count(label)
		summary.Conditions = append(summary.Conditions, report.ConditionCount{
			Label:  label,
			Before: c.Before,
			After:  c.After,
		})
	}

	if err := report.Write(path, summary); err != nil {
		return err
	}
	slog.Info("qc report written", "path", path)
	return nil
}
