package stages

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ravi-parthasarathy/megpipe/pkg/pipeline"
	"github.com/ravi-parthasarathy/megpipe/pkg/recording"
)

// SelectStage restricts the recording to a channel subset. The include
// attribute is a comma-separated list of channel types (signal, ocular, ...)
// and/or label prefixes (MEG, EEG); a channel matching any entry is kept.
// Reference channels needed later (ocular/cardiac for component scoring)
// must be listed explicitly.
type SelectStage struct{}

func (s *SelectStage) Handle(_ context.Context, node *pipeline.Node, run *pipeline.Run) error {
	if err := needContinuous(node, run); err != nil {
		return err
	}
	var entries []string
	for _, e := range strings.Split(node.Attrs["include"], ",") {
		if e = strings.TrimSpace(e); e != "" {
			entries = append(entries, e)
		}
	}

	sel, err := run.Rec.SelectChannels(func(c recording.Channel) bool {
		for _, e := range entries {
			if string(c.Type) == e || strings.HasPrefix(c.Label, e) {
				return true
			}
		}
		return false
	}, true)
	if err != nil {
		return err
	}
	slog.Info("channel selection", "kept", len(sel.Channels), "of", len(run.Rec.Channels))
	run.Rec = sel
	return nil
}
