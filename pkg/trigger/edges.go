// Package trigger derives clean, labeled events from a raw encoded marker
// channel: rising-edge detection, low-order-bit code extraction, an ordered
// rename table, and explicit per-event manual overrides.
package trigger

import (
	"fmt"

	"github.com/ravi-parthasarathy/megpipe/pkg/recording"
)

// DefaultMaskBits keeps the low 5 bits of the raw trigger value, the
// stimulus-code field in the acquisition setup this pipeline targets.
const DefaultMaskBits = 5

// EdgeConfig controls rising-edge detection on a trigger channel.
type EdgeConfig struct {
	// MinLength is the minimum number of consecutive high samples for a
	// transition to count as an edge. Must be >= 1.
	MinLength int
	// MaskBits selects how many low-order bits of the raw value form the
	// condition code. 0 means DefaultMaskBits.
	MaskBits uint
}

// DetectEdges scans the integer-valued samples of a trigger channel and emits
// one event per rising edge (low → high transition that stays high for at
// least cfg.MinLength samples). The event code is the raw value at the edge
// masked to its low-order bits; the timestamp is the edge's sample index
// converted to milliseconds at sampleRate. Detection is deterministic.
func DetectEdges(samples []float64, sampleRate float64, cfg EdgeConfig) ([]recording.Event, error) {
	if cfg.MinLength < 1 {
		return nil, fmt.Errorf("minimum edge length must be >= 1, got %d", cfg.MinLength)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %g", sampleRate)
	}
	bits := cfg.MaskBits
	if bits == 0 {
		bits = DefaultMaskBits
	}
	mask := (1 << bits) - 1

	var events []recording.Event
	prev := 0
	for i := 0; i < len(samples); i++ {
		cur := int(samples[i])
		if cur > 0 && prev == 0 {
			// Candidate edge: require the value to stay high for MinLength.
			long := true
			for j := i; j < i+cfg.MinLength; j++ {
				if j >= len(samples) || int(samples[j]) == 0 {
					long = false
					break
				}
			}
			if long {
				code := cur & mask
				events = append(events, recording.Event{
					TimeMs: float64(i) / sampleRate * 1000,
					Label:  fmt.Sprintf("%d", code),
					Code:   code,
				})
			}
		}
		prev = cur
	}
	return events, nil
}
