package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ravi-parthasarathy/megpipe/pkg/pipeline"
	"github.com/ravi-parthasarathy/megpipe/pkg/recording"
	"github.com/ravi-parthasarathy/megpipe/pkg/trigger"
)

// Importer yields a Recording from a raw source file. The vendor binary
// format is an external collaborator's concern; implementations wrap
// whatever reader the acquisition system provides.
type Importer interface {
	Import(path string) (*recording.Recording, error)
}

// JSONImporter reads a recording serialised as JSON. It is the built-in
// importer used for fixtures and smoke runs.
type JSONImporter struct{}

func (JSONImporter) Import(path string) (*recording.Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec recording.Recording
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &rec, nil
}

// ImportStage loads the raw recording and derives its clean event list:
// channel-type assignment, trigger-edge detection, the rename table, manual
// overrides, and the acquisition-delay timestamp shift.
//
// Attributes: source (required; {subject}/{session} placeholders),
// types ("EEG061=ocular;EEG063=cardiac"), trigger_channel, min_edge_len,
// mask_bits, rename ("5,6,7=Famous;..."), unmatched ("drop"|"keep"),
// overrides ("74=Famous"), shift_ms.
type ImportStage struct {
	Importer Importer
}

func (s *ImportStage) Handle(_ context.Context, node *pipeline.Node, run *pipeline.Run) error {
	path := expand(node.Attrs["source"], run)
	rec, err := s.Importer.Import(path)
	if err != nil {
		return &pipeline.ImportError{Path: path, Cause: err}
	}
	rec.Subject = run.Subject
	rec.Session = run.Session

	if types := node.Attrs["types"]; types != "" {
		if rec, err = assignChannelTypes(rec, types); err != nil {
			return err
		}
	}

	if trigCh := node.Attrs["trigger_channel"]; trigCh != "" {
		if rec, err = detectEvents(node, rec, trigCh); err != nil {
			return err
		}
	}

	if renameSrc := node.Attrs["rename"]; renameSrc != "" {
		table, err := trigger.ParseTable(renameSrc)
		if err != nil {
			return &pipeline.MetadataError{What: "rename table", Cause: err}
		}
		policy := trigger.DropUnmatched
		if node.Attrs["unmatched"] == "keep" {
			policy = trigger.KeepUnmatched
		}
		rec.Events = table.Apply(rec.Events, policy)
	}

	if ovSrc := node.Attrs["overrides"]; ovSrc != "" {
		overrides, err := trigger.ParseOverrides(ovSrc)
		if err != nil {
			return &pipeline.MetadataError{What: "override table", Cause: err}
		}
		events, err := trigger.ApplyOverrides(rec.Events, overrides)
		if err != nil {
			return &pipeline.MetadataError{What: "override table", Cause: err}
		}
		for _, ov := range overrides {
			slog.Warn("manual event override applied", "event", ov.Index, "label", ov.Label)
		}
		rec.Events = events
	}

	if shiftMs, err := floatAttr(node, "shift_ms", 0); err != nil {
		return err
	} else if shiftMs != 0 {
		rec = rec.ShiftEventTimes(shiftMs)
	}

	if err := rec.Validate(); err != nil {
		return &pipeline.ImportError{Path: path, Cause: err}
	}
	run.Rec = rec
	slog.Info("imported recording", "source", path,
		"channels", len(rec.Channels), "events", len(rec.Events), "rate_hz", rec.SampleRate)
	return nil
}

// assignChannelTypes applies "LABEL=type;LABEL=type" declarations.
func assignChannelTypes(rec *recording.Recording, decls string) (*recording.Recording, error) {
	for _, part := range strings.Split(decls, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, &pipeline.MetadataError{What: fmt.Sprintf("malformed channel type %q", part)}
		}
		label := strings.TrimSpace(kv[0])
		chType, err := recording.ParseChannelType(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, &pipeline.MetadataError{What: "channel types", Cause: err}
		}
		idx := rec.ChannelIndex(label)
		if idx < 0 {
			return nil, &pipeline.MetadataError{What: fmt.Sprintf("channel %q not in recording", label)}
		}
		rec, err = rec.SetChannelMetadata(idx, recording.ChannelMeta{Type: chType})
		if err != nil {
			return nil, &pipeline.MetadataError{What: "channel types", Cause: err}
		}
	}
	return rec, nil
}

// detectEvents replaces the event list with edges detected on the trigger
// channel.
func detectEvents(node *pipeline.Node, rec *recording.Recording, trigCh string) (*recording.Recording, error) {
	idx := rec.ChannelIndex(trigCh)
	if idx < 0 {
		return nil, &pipeline.MetadataError{What: fmt.Sprintf("trigger channel %q not in recording", trigCh)}
	}
	minLen, err := intAttr(node, "min_edge_len", 1)
	if err != nil {
		return nil, err
	}
	maskBits, err := intAttr(node, "mask_bits", trigger.DefaultMaskBits)
	if err != nil {
		return nil, err
	}
	events, err := trigger.DetectEdges(rec.Data[idx], rec.SampleRate, trigger.EdgeConfig{
		MinLength: minLen,
		MaskBits:  uint(maskBits),
	})
	if err != nil {
		return nil, &pipeline.MetadataError{What: "edge detection", Cause: err}
	}
	out := rec.Clone()
	out.Events = events
	return out, nil
}
