// Package toolbox defines the capability contracts for the delegated signal
// algorithms: filtering, artifact cleaning, decomposition, and component
// scoring. The pipeline only depends on these interfaces; production setups
// bind them to an external analysis toolbox, while Basic provides small
// reference implementations good enough for smoke runs and tests.
package toolbox

import (
	"github.com/ravi-parthasarathy/megpipe/pkg/recording"
)

// Filterer applies a band-pass to the signal channels of a recording.
// A zero bound disables that side of the passband.
type Filterer interface {
	Filter(rec *recording.Recording, highpassHz, lowpassHz float64) (*recording.Recording, error)
}

// Cleaner removes bad channels and high-amplitude burst windows.
type Cleaner interface {
	// DropBadChannels removes signal channels whose correlation with the
	// rest of the montage falls below threshold. Returns the cleaned
	// recording and the labels of the dropped channels.
	DropBadChannels(rec *recording.Recording, threshold float64) (*recording.Recording, []string, error)
	// CleanBursts suppresses windows whose power exceeds burstThreshold
	// times the median window power. Returns the cleaned recording and the
	// number of windows affected.
	CleanBursts(rec *recording.Recording, burstThreshold, windowSec float64) (*recording.Recording, int, error)
}

// Category classifies a decomposed component's most likely source.
type Category string

const (
	CategoryBrain   Category = "brain"
	CategoryOcular  Category = "ocular"
	CategoryCardiac Category = "cardiac"
	CategoryMuscle  Category = "muscle"
	CategoryNoise   Category = "noise"
)

// Component is one source from a decomposition: a spatial pattern over the
// recording's channels.
type Component struct {
	Index      int
	Topography []float64 // one weight per channel
}

// Decomposer splits a recording into components and can reconstruct the
// recording with a subset of them removed.
type Decomposer interface {
	Decompose(rec *recording.Recording) ([]Component, error)
	// Remove reconstructs rec without the listed component indices.
	Remove(rec *recording.Recording, drop []int) (*recording.Recording, error)
}

// ComponentScorer assigns per-category probabilities to a component. The
// threshold policy (which categories at which probability force a drop)
// belongs to the caller, not the scorer.
type ComponentScorer interface {
	Score(rec *recording.Recording, c Component) (map[Category]float64, error)
}
