package toolbox

import (
	"fmt"
	"math"

	"github.com/ravi-parthasarathy/megpipe/pkg/recording"
)

// Resample converts a continuous recording to targetHz by linear
// interpolation. The output length per channel is round(n * target/orig):
// resampling a 10 s buffer from 600 Hz to 100 Hz yields exactly 1000 samples.
// Event timestamps are millisecond-based and stay untouched.
func Resample(rec *recording.Recording, targetHz float64) (*recording.Recording, error) {
	if targetHz <= 0 {
		return nil, fmt.Errorf("resample rate must be positive, got %g", targetHz)
	}
	if rec.Epoched() {
		return nil, fmt.Errorf("resample requires continuous data, recording is epoched")
	}
	n := rec.NumSamples()
	ratio := targetHz / rec.SampleRate
	nOut := int(math.Round(float64(n) * ratio))

	out := rec.Clone()
	out.SampleRate = targetHz
	out.Data = make([][]float64, len(rec.Data))
	for ci, ch := range rec.Data {
		dst := make([]float64, nOut)
		for i := range dst {
			// Source position for output sample i.
			pos := float64(i) / ratio
			lo := int(pos)
			if lo >= n-1 {
				dst[i] = ch[n-1]
				continue
			}
			frac := pos - float64(lo)
			dst[i] = ch[lo]*(1-frac) + ch[lo+1]*frac
		}
		out.Data[ci] = dst
	}
	return out, nil
}
