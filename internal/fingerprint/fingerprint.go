// Package fingerprint turns a run's surprise trajectory into a fixed-size
// vector so runs of different lengths can be compared by cosine similarity.
package fingerprint

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultDim is the fingerprint width stored in the runs table. It has to
// match the vector column dimension.
const DefaultDim = 64

// summaryslots is the number of trailing slots reserved for global
// statistics of the raw series.
const summaryslots = 4

type Encoder struct {
	dim int
}

// NewEncoder returns an encoder producing vectors of the given width. A
// non-positive width falls back to DefaultDim.
func NewEncoder(dim int) *Encoder {
	if dim <= summaryslots {
		dim = DefaultDim
	}
	return &Encoder{dim: dim}
}

// Dim reports the width of produced fingerprints.
func (e *Encoder) Dim() int {
	return e.dim
}

// Encode maps a surprise series of any length onto a fixed-width vector:
// the series is resampled onto dim-4 points by linear interpolation and
// z-scored, and the last four slots carry the raw series' mean, standard
// deviation, minimum and maximum. An empty series encodes to all zeros.
func (e *Encoder) Encode(series []float64) []float32 {
	out := make([]float32, e.dim)
	if len(series) == 0 {
		return out
	}

	shape := resample(series, e.dim-summaryslots)
	mu, sigma := stat.MeanStdDev(shape, nil)
	if math.IsNaN(sigma) || sigma == 0 {
		sigma = 1
	}
	for i, v := range shape {
		out[i] = float32((v - mu) / sigma)
	}

	rawMean, rawStd := stat.MeanStdDev(series, nil)
	if math.IsNaN(rawStd) {
		rawStd = 0
	}
	out[e.dim-4] = float32(rawMean)
	out[e.dim-3] = float32(rawStd)
	out[e.dim-2] = float32(floats.Min(series))
	out[e.dim-1] = float32(floats.Max(series))
	return out
}

// resample stretches or compresses the series onto n points with linear
// interpolation.
func resample(series []float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = series[0]
		return out
	}
	if len(series) == 1 {
		for i := range out {
			out[i] = series[0]
		}
		return out
	}
	scale := float64(len(series)-1) / float64(n-1)
	for i := range out {
		pos := float64(i) * scale
		lo := int(pos)
		if lo >= len(series)-1 {
			out[i] = series[len(series)-1]
			continue
		}
		frac := pos - float64(lo)
		out[i] = series[lo]*(1-frac) + series[lo+1]*frac
	}
	return out
}
