package recording

import "fmt"

// OutOfRangeError is returned when a channel or event index exceeds the
// recording's bounds.
type OutOfRangeError struct {
	Kind  string // "channel" or "event"
	Index int
	Count int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s index %d out of range (have %d)", e.Kind, e.Index, e.Count)
}

// InvalidSelectorError is returned when a predicate matched zero entries but
// the caller required at least one.
type InvalidSelectorError struct {
	What string
}

func (e *InvalidSelectorError) Error() string {
	return fmt.Sprintf("selector matched no %s", e.What)
}
