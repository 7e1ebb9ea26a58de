package pipeline

import (
	"fmt"
	"strconv"
)

// FloatAttr parses a float-valued stage parameter. The bool reports whether
// the attribute was present.
func (n *Node) FloatAttr(key string) (float64, bool, error) {
	raw, ok := n.Attrs[key]
	if !ok || raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, true, fmt.Errorf("stage %q: attribute %s=%q is not a number", n.ID, key, raw)
	}
	return v, true, nil
}

// IntAttr parses an integer-valued stage parameter.
func (n *Node) IntAttr(key string) (int, bool, error) {
	raw, ok := n.Attrs[key]
	if !ok || raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, fmt.Errorf("stage %q: attribute %s=%q is not an integer", n.ID, key, raw)
	}
	return v, true, nil
}
