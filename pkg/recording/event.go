package recording

// Event is a labeled timestamp marking an experimental occurrence.
// Code preserves the raw value read from the trigger channel; Label starts
// as the decimal form of Code and is rewritten by rename rules.
type Event struct {
	TimeMs float64 `json:"time_ms"`
	Label  string  `json:"label"`
	Code   int     `json:"code"`
}
