package stages

import (
	"fmt"
	"strings"

	"github.com/ravi-parthasarathy/megpipe/pkg/pipeline"
)

// expand substitutes {subject} and {session} placeholders in a stage
// attribute value.
func expand(s string, run *pipeline.Run) string {
	s = strings.ReplaceAll(s, "{subject}", run.Subject)
	return strings.ReplaceAll(s, "{session}", run.Session)
}

// floatAttr reads a float attribute, falling back to def when absent.
func floatAttr(n *pipeline.Node, key string, def float64) (float64, error) {
	v, ok, err := n.FloatAttr(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// requiredFloat reads a float attribute that the validator guarantees, but
// double-checks for direct (non-engine) stage use.
func requiredFloat(n *pipeline.Node, key string) (float64, error) {
	v, ok, err := n.FloatAttr(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("stage %q: missing required attribute %q", n.ID, key)
	}
	return v, nil
}

// intAttr reads an int attribute, falling back to def when absent.
func intAttr(n *pipeline.Node, key string, def int) (int, error) {
	v, ok, err := n.IntAttr(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// needContinuous rejects epoched input for stages operating on the raw
// continuous recording.
func needContinuous(n *pipeline.Node, run *pipeline.Run) error {
	if run.Rec == nil {
		return fmt.Errorf("stage %q: no recording loaded", n.ID)
	}
	if run.Rec.Epoched() {
		return fmt.Errorf("stage %q: requires continuous data, recording is epoched", n.ID)
	}
	return nil
}

// needDerived rejects runs where the epoch fan-out has not happened yet.
func needDerived(n *pipeline.Node, run *pipeline.Run) error {
	if len(run.Derived) == 0 {
		return fmt.Errorf("stage %q: no epoched conditions; run an epoch stage first", n.ID)
	}
	return nil
}
