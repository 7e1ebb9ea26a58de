// Package recording holds the in-memory representation of a multichannel
// time-series signal plus its event annotations. All mutating operations are
// value-returning: they produce a new Recording and never alias the
// receiver's channel or event slices, so pipeline stages can hand recordings
// to each other without hidden sharing.
package recording

import (
	"fmt"
)

// Recording is one subject/session's signal. Data holds continuous samples
// (channels × time); after epoching, Trials holds the segmented form
// (trial × channels × time) and Data is nil.
type Recording struct {
	Subject    string        `json:"subject"`
	Session    string        `json:"session"`
	SampleRate float64       `json:"sample_rate"`
	Channels   []Channel     `json:"channels"`
	Data       [][]float64   `json:"data,omitempty"`
	Trials     [][][]float64 `json:"trials,omitempty"`
	Events     []Event       `json:"events"`
}

// Epoched reports whether the recording has been segmented into trials.
func (r *Recording) Epoched() bool { return r.Trials != nil }

// NumSamples returns the length of the time dimension (per trial when epoched).
func (r *Recording) NumSamples() int {
	if r.Epoched() {
		if len(r.Trials) == 0 || len(r.Trials[0]) == 0 {
			return 0
		}
		return len(r.Trials[0][0])
	}
	if len(r.Data) == 0 {
		return 0
	}
	return len(r.Data[0])
}

// NumTrials returns the trial count, or 0 for continuous data.
func (r *Recording) NumTrials() int { return len(r.Trials) }

// DurationSeconds returns the continuous duration of the buffer.
func (r *Recording) DurationSeconds() float64 {
	if r.SampleRate <= 0 {
		return 0
	}
	return float64(r.NumSamples()) / r.SampleRate
}

// Validate checks the structural invariants: the buffer's channel dimension
// matches the channel list, the sample rate is positive, and every event
// falls within buffer bounds. Epoched recordings skip the event bound check
// since event times are relative to the original continuous buffer.
func (r *Recording) Validate() error {
	if r.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %g", r.SampleRate)
	}
	if r.Epoched() {
		for i, trial := range r.Trials {
			if len(trial) != len(r.Channels) {
				return fmt.Errorf("trial %d has %d channels, channel list has %d", i, len(trial), len(r.Channels))
			}
		}
		return nil
	}
	if len(r.Data) != len(r.Channels) {
		return fmt.Errorf("buffer has %d channels, channel list has %d", len(r.Data), len(r.Channels))
	}
	durMs := r.DurationSeconds() * 1000
	for i, ev := range r.Events {
		if ev.TimeMs < 0 || ev.TimeMs > durMs {
			return fmt.Errorf("event %d (%q) at %gms outside buffer (0..%gms)", i, ev.Label, ev.TimeMs, durMs)
		}
	}
	return nil
}

// Clone returns a deep copy sharing no memory with the receiver.
func (r *Recording) Clone() *Recording {
	out := &Recording{
		Subject:    r.Subject,
		Session:    r.Session,
		SampleRate: r.SampleRate,
		Channels:   cloneChannels(r.Channels),
		Events:     append([]Event(nil), r.Events...),
	}
	if r.Data != nil {
		out.Data = make([][]float64, len(r.Data))
		for i, ch := range r.Data {
			out.Data[i] = append([]float64(nil), ch...)
		}
	}
	if r.Trials != nil {
		out.Trials = make([][][]float64, len(r.Trials))
		for t, trial := range r.Trials {
			out.Trials[t] = make([][]float64, len(trial))
			for i, ch := range trial {
				out.Trials[t][i] = append([]float64(nil), ch...)
			}
		}
	}
	return out
}

// SetChannelMetadata returns a copy with channel i's metadata updated.
// Zero-valued fields of meta are left as-is.
func (r *Recording) SetChannelMetadata(i int, meta ChannelMeta) (*Recording, error) {
	if i < 0 || i >= len(r.Channels) {
		return nil, &OutOfRangeError{Kind: "channel", Index: i, Count: len(r.Channels)}
	}
	out := r.Clone()
	if meta.Label != "" {
		out.Channels[i].Label = meta.Label
	}
	if meta.Type != "" {
		out.Channels[i].Type = meta.Type
	}
	if meta.Position != nil {
		pos := *meta.Position
		out.Channels[i].Position = &pos
	}
	return out, nil
}

// SelectChannels returns a new Recording restricted to channels matching
// pred, preserving the event list unchanged. When requireMatch is true and
// no channel matches, an InvalidSelectorError is returned.
func (r *Recording) SelectChannels(pred func(Channel) bool, requireMatch bool) (*Recording, error) {
	var keep []int
	for i, ch := range r.Channels {
		if pred(ch) {
			keep = append(keep, i)
		}
	}
	if requireMatch && len(keep) == 0 {
		return nil, &InvalidSelectorError{What: "channels"}
	}
	out := &Recording{
		Subject:    r.Subject,
		Session:    r.Session,
		SampleRate: r.SampleRate,
		Events:     append([]Event(nil), r.Events...),
	}
	for _, i := range keep {
		out.Channels = append(out.Channels, cloneChannel(r.Channels[i]))
	}
	if r.Data != nil {
		out.Data = make([][]float64, 0, len(keep))
		for _, i := range keep {
			out.Data = append(out.Data, append([]float64(nil), r.Data[i]...))
		}
	}
	if r.Trials != nil {
		out.Trials = make([][][]float64, len(r.Trials))
		for t, trial := range r.Trials {
			out.Trials[t] = make([][]float64, 0, len(keep))
			for _, i := range keep {
				out.Trials[t] = append(out.Trials[t], append([]float64(nil), trial[i]...))
			}
		}
	}
	return out, nil
}

// SelectEvents returns a new Recording whose event sequence is filtered by
// pred. Matching events are relabeled via relabel when non-nil. Non-matching
// events are dropped, or kept unchanged when keepUnmatched is true.
func (r *Recording) SelectEvents(pred func(Event) bool, relabel func(Event) string, keepUnmatched bool) *Recording {
	out := r.Clone()
	out.Events = out.Events[:0]
	for _, ev := range r.Events {
		if pred(ev) {
			if relabel != nil {
				ev.Label = relabel(ev)
			}
			out.Events = append(out.Events, ev)
		} else if keepUnmatched {
			out.Events = append(out.Events, ev)
		}
	}
	return out
}

// ShiftEventTimes translates every event timestamp by deltaMs. The shift is
// exact: shifting by d then -d restores the original timestamps bit for bit.
func (r *Recording) ShiftEventTimes(deltaMs float64) *Recording {
	out := r.Clone()
	for i := range out.Events {
		out.Events[i].TimeMs += deltaMs
	}
	return out
}

// ChannelIndex returns the index of the channel with the given label, or -1.
func (r *Recording) ChannelIndex(label string) int {
	for i, ch := range r.Channels {
		if ch.Label == label {
			return i
		}
	}
	return -1
}

func cloneChannel(c Channel) Channel {
	if c.Position != nil {
		pos := *c.Position
		c.Position = &pos
	}
	return c
}

func cloneChannels(chans []Channel) []Channel {
	out := make([]Channel, len(chans))
	for i, c := range chans {
		out[i] = cloneChannel(c)
	}
	return out
}
