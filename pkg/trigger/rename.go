package trigger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ravi-parthasarathy/megpipe/pkg/recording"
)

// Policy decides what happens to events whose code matches no rename rule.
type Policy int

const (
	// DropUnmatched removes events not covered by any rule.
	DropUnmatched Policy = iota
	// KeepUnmatched keeps them with their raw label untouched.
	KeepUnmatched
)

// Rule maps a set of raw trigger codes to one output label. Several codes
// collapsing to the same label is intentional: condition variants (e.g.
// first/second-early/second-late presentations) fold into one category.
type Rule struct {
	Codes []int
	Label string
}

// Table is an ordered list of rename rules. Earlier rules win when code sets
// overlap.
type Table []Rule

// Apply rewrites event labels according to the table. Events already renamed
// by an earlier pass keep their label when no rule matches their code, so
// re-applying a table with disjoint codes is a no-op.
func (t Table) Apply(events []recording.Event, policy Policy) []recording.Event {
	var out []recording.Event
	for _, ev := range events {
		label, ok := t.lookup(ev.Code)
		switch {
		case ok:
			ev.Label = label
			out = append(out, ev)
		case policy == KeepUnmatched:
			out = append(out, ev)
		}
	}
	return out
}

func (t Table) lookup(code int) (string, bool) {
	for _, rule := range t {
		for _, c := range rule.Codes {
			if c == code {
				return rule.Label, true
			}
		}
	}
	return "", false
}

// Labels returns the distinct output labels in rule order.
func (t Table) Labels() []string {
	var out []string
	seen := map[string]bool{}
	for _, rule := range t {
		if !seen[rule.Label] {
			seen[rule.Label] = true
			out = append(out, rule.Label)
		}
	}
	return out
}

// ParseTable parses the node-attribute form of a rename table:
//
//	"5,6,7=Famous;13,14,15=Unfamiliar;17,18,19=Scrambled"
func ParseTable(s string) (Table, error) {
	var t Table
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[1]) == "" {
			return nil, fmt.Errorf("malformed rename rule %q (want codes=Label)", part)
		}
		rule := Rule{Label: strings.TrimSpace(kv[1])}
		for _, cs := range strings.Split(kv[0], ",") {
			code, err := strconv.Atoi(strings.TrimSpace(cs))
			if err != nil {
				return nil, fmt.Errorf("malformed trigger code %q in rule %q", cs, part)
			}
			rule.Codes = append(rule.Codes, code)
		}
		t = append(t, rule)
	}
	if len(t) == 0 {
		return nil, fmt.Errorf("empty rename table %q", s)
	}
	return t, nil
}
