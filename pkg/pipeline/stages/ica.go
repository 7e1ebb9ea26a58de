package stages

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/ravi-parthasarathy/megpipe/pkg/pipeline"
	"github.com/ravi-parthasarathy/megpipe/pkg/toolbox"
)

// ICAStage decomposes the recording, scores every component, and removes the
// ones whose artifact probability crosses the configured threshold.
//
// Attributes:
//
//	thresholds  "ocular=0.8;cardiac=0.8" — per-category drop thresholds.
//	            Categories not listed never force a drop.
type ICAStage struct {
	Decomp toolbox.Decomposer
	Scorer toolbox.ComponentScorer
}

const defaultComponentThreshold = 0.8

func (s *ICAStage) Handle(_ context.Context, node *pipeline.Node, run *pipeline.Run) error {
	if err := needContinuous(node, run); err != nil {
		return err
	}
	thresholds, err := parseThresholds(node.Attrs["thresholds"])
	if err != nil {
		return fmt.Errorf("stage %q: %w", node.ID, err)
	}

	comps, err := s.Decomp.Decompose(run.Rec)
	if err != nil {
		return err
	}

	var drop []int
	for _, c := range comps {
		scores, err := s.Scorer.Score(run.Rec, c)
		if err != nil {
			return err
		}
		for cat, limit := range thresholds {
			if scores[cat] >= limit {
				slog.Info("component flagged", "component", c.Index, "category", cat, "probability", scores[cat])
				drop = append(drop, c.Index)
				break
			}
		}
	}
	sort.Ints(drop)

	if len(drop) > 0 {
		out, err := s.Decomp.Remove(run.Rec, drop)
		if err != nil {
			return err
		}
		run.Rec = out
		run.DroppedComponents = append(run.DroppedComponents, drop...)
	}
	slog.Info("component rejection", "decomposed", len(comps), "removed", len(drop))
	return nil
}

// parseThresholds parses "ocular=0.8;cardiac=0.8". An empty string yields the
// default ocular/cardiac thresholds.
func parseThresholds(s string) (map[toolbox.Category]float64, error) {
	if strings.TrimSpace(s) == "" {
		return map[toolbox.Category]float64{
			toolbox.CategoryOcular:  defaultComponentThreshold,
			toolbox.CategoryCardiac: defaultComponentThreshold,
		}, nil
	}
	out := make(map[toolbox.Category]float64)
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("malformed thresholds entry %q", part)
		}
		p, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("thresholds entry %q: %w", part, err)
		}
		if p <= 0 || p > 1 {
			return nil, fmt.Errorf("thresholds entry %q: probability must be in (0, 1]", part)
		}
		out[toolbox.Category(strings.TrimSpace(k))] = p
	}
	return out, nil
}
