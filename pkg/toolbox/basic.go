package toolbox

import (
	"fmt"
	"math"
	"sort"

	"github.com/ravi-parthasarathy/megpipe/pkg/recording"
)

// Basic is the built-in reference implementation of the toolbox contracts.
// It is deliberately simple (single-pole filters, per-channel decomposition,
// label-driven scoring); serious analyses bind a real toolbox instead.
type Basic struct{}

var (
	_ Filterer        = Basic{}
	_ Cleaner         = Basic{}
	_ Decomposer      = Basic{}
	_ ComponentScorer = Basic{}
)

// Filter applies first-order high-pass then low-pass sections to every
// signal-typed channel. Non-signal channels pass through untouched.
func (Basic) Filter(rec *recording.Recording, highpassHz, lowpassHz float64) (*recording.Recording, error) {
	if rec.Epoched() {
		return nil, fmt.Errorf("filter requires continuous data, recording is epoched")
	}
	out := rec.Clone()
	for ci, ch := range out.Channels {
		if ch.Type != recording.ChannelSignal {
			continue
		}
		data := out.Data[ci]
		if highpassHz > 0 {
			highpass(data, highpassHz, rec.SampleRate)
		}
		if lowpassHz > 0 {
			lowpass(data, lowpassHz, rec.SampleRate)
		}
	}
	return out, nil
}

func lowpass(data []float64, cutoffHz, rate float64) {
	rc := 1 / (2 * math.Pi * cutoffHz)
	dt := 1 / rate
	alpha := dt / (rc + dt)
	prev := data[0]
	for i := 1; i < len(data); i++ {
		prev += alpha * (data[i] - prev)
		data[i] = prev
	}
}

func highpass(data []float64, cutoffHz, rate float64) {
	rc := 1 / (2 * math.Pi * cutoffHz)
	dt := 1 / rate
	alpha := rc / (rc + dt)
	prevIn := data[0]
	prevOut := data[0]
	for i := 1; i < len(data); i++ {
		out := alpha * (prevOut + data[i] - prevIn)
		prevIn = data[i]
		prevOut = out
		data[i] = out
	}
}

// DropBadChannels removes signal channels whose Pearson correlation with the
// mean of the other signal channels falls below threshold.
func (Basic) DropBadChannels(rec *recording.Recording, threshold float64) (*recording.Recording, []string, error) {
	if rec.Epoched() {
		return nil, nil, fmt.Errorf("bad-channel detection requires continuous data")
	}
	var signalIdx []int
	for i, ch := range rec.Channels {
		if ch.Type == recording.ChannelSignal {
			signalIdx = append(signalIdx, i)
		}
	}
	if len(signalIdx) < 2 {
		return rec.Clone(), nil, nil
	}

	n := rec.NumSamples()
	mean := make([]float64, n)
	for _, ci := range signalIdx {
		for i, v := range rec.Data[ci] {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= float64(len(signalIdx))
	}

	bad := map[string]bool{}
	var dropped []string
	for _, ci := range signalIdx {
		if math.Abs(pearson(rec.Data[ci], mean)) < threshold {
			bad[rec.Channels[ci].Label] = true
			dropped = append(dropped, rec.Channels[ci].Label)
		}
	}
	if len(dropped) == 0 {
		return rec.Clone(), nil, nil
	}
	out, err := rec.SelectChannels(func(c recording.Channel) bool {
		return !bad[c.Label]
	}, true)
	if err != nil {
		return nil, nil, err
	}
	return out, dropped, nil
}

// CleanBursts zeroes windows whose RMS power exceeds burstThreshold times the
// median window RMS, per signal channel.
func (Basic) CleanBursts(rec *recording.Recording, burstThreshold, windowSec float64) (*recording.Recording, int, error) {
	if rec.Epoched() {
		return nil, 0, fmt.Errorf("burst cleaning requires continuous data")
	}
	win := int(windowSec * rec.SampleRate)
	if win < 1 {
		return nil, 0, fmt.Errorf("burst window %gs too short at %g Hz", windowSec, rec.SampleRate)
	}
	out := rec.Clone()
	cleaned := 0
	for ci, ch := range out.Channels {
		if ch.Type != recording.ChannelSignal {
			continue
		}
		data := out.Data[ci]
		var rmss []float64
		for off := 0; off+win <= len(data); off += win {
			rmss = append(rmss, rms(data[off:off+win]))
		}
		if len(rmss) == 0 {
			continue
		}
		med := median(rmss)
		if med == 0 {
			continue
		}
		for wi, r := range rmss {
			if r > burstThreshold*med {
				off := wi * win
				for i := off; i < off+win; i++ {
					data[i] = 0
				}
				cleaned++
			}
		}
	}
	return out, cleaned, nil
}

// Decompose treats each signal channel as its own component with a unit
// topography. A real decomposition (ICA) separates mixed sources; this
// reference form exists so the component-rejection stage is exercisable
// without the external toolbox.
func (Basic) Decompose(rec *recording.Recording) ([]Component, error) {
	var comps []Component
	for i, ch := range rec.Channels {
		if ch.Type != recording.ChannelSignal {
			continue
		}
		topo := make([]float64, len(rec.Channels))
		topo[i] = 1
		comps = append(comps, Component{Index: len(comps), Topography: topo})
	}
	return comps, nil
}

// Remove zeroes the dominant channel of each dropped component.
func (Basic) Remove(rec *recording.Recording, drop []int) (*recording.Recording, error) {
	comps, err := Basic{}.Decompose(rec)
	if err != nil {
		return nil, err
	}
	out := rec.Clone()
	for _, d := range drop {
		if d < 0 || d >= len(comps) {
			return nil, fmt.Errorf("component index %d out of range (have %d)", d, len(comps))
		}
		for ci, w := range comps[d].Topography {
			if w == 0 {
				continue
			}
			for i := range out.Data[ci] {
				out.Data[ci][i] = 0
			}
		}
	}
	return out, nil
}

// Score correlates the component's activation with the ocular and cardiac
// reference channels and reports the absolute correlations as probabilities.
func (Basic) Score(rec *recording.Recording, c Component) (map[Category]float64, error) {
	if len(c.Topography) != len(rec.Channels) {
		return nil, fmt.Errorf("component %d topography has %d weights, recording has %d channels",
			c.Index, len(c.Topography), len(rec.Channels))
	}
	n := rec.NumSamples()
	act := make([]float64, n)
	for ci, w := range c.Topography {
		if w == 0 {
			continue
		}
		for i, v := range rec.Data[ci] {
			act[i] += w * v
		}
	}
	scores := map[Category]float64{CategoryBrain: 1}
	for ci, ch := range rec.Channels {
		var cat Category
		switch ch.Type {
		case recording.ChannelOcular:
			cat = CategoryOcular
		case recording.ChannelCardiac:
			cat = CategoryCardiac
		default:
			continue
		}
		r := math.Abs(pearson(act, rec.Data[ci]))
		if r > scores[cat] {
			scores[cat] = r
		}
		if 1-r < scores[CategoryBrain] {
			scores[CategoryBrain] = 1 - r
		}
	}
	return scores, nil
}

func pearson(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA, meanB := sumA/float64(n), sumB/float64(n)
	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

func rms(data []float64) float64 {
	var sum float64
	for _, v := range data {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(data)))
}

func median(vals []float64) float64 {
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
