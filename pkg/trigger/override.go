package trigger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ravi-parthasarathy/megpipe/pkg/recording"
)

// Override corrects a single event by position. It exists for edges where two
// raw bit-fields were superimposed (a response-button code OR'd with a
// stimulus code) and the masked value decodes to the wrong condition. This is
// a deliberate manual escape hatch, a dataset-specific correction rather than
// a pipeline feature, so each application is expected to be logged by the
// caller for auditability.
type Override struct {
	Index int
	Label string
}

// ApplyOverrides rewrites the labels of the addressed events, returning a new
// slice. An index past the end of the event sequence is an error.
func ApplyOverrides(events []recording.Event, overrides []Override) ([]recording.Event, error) {
	out := append([]recording.Event(nil), events...)
	for _, ov := range overrides {
		if ov.Index < 0 || ov.Index >= len(out) {
			return nil, &recording.OutOfRangeError{Kind: "event", Index: ov.Index, Count: len(out)}
		}
		out[ov.Index].Label = ov.Label
	}
	return out, nil
}

// ParseOverrides parses the node-attribute form "74=Famous;102=Scrambled".
func ParseOverrides(s string) ([]Override, error) {
	var out []Override
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[1]) == "" {
			return nil, fmt.Errorf("malformed override %q (want index=Label)", part)
		}
		idx, err := strconv.Atoi(strings.TrimSpace(kv[0]))
		if err != nil {
			return nil, fmt.Errorf("malformed override index %q", kv[0])
		}
		out = append(out, Override{Index: idx, Label: strings.TrimSpace(kv[1])})
	}
	return out, nil
}
