// Package linefinder detects significant spectral peaks with a
// continuous-wavelet-transform search. A Ricker (Mexican hat) wavelet is
// convolved with the spectrum over a range of scales; channels whose best
// wavelet response stands above the noise by a minimum signal-to-noise
// ratio are reported as peaks, together with their SNR and width.
package linefinder

import (
	"math"
	"sort"

	"zsearch/internal/models"
)

// Finder holds the fixed search configuration. The zero value is not
// usable; construct with NewFinder.
type Finder struct {
	// scaleMin and scaleMax bound the wavelet widths tried, in channels.
	scaleMin, scaleMax int

	// minSNR is the detection threshold.
	minSNR float64
}

// NewFinder returns a finder with the standard emission-line search
// configuration: scales 4 through 9 and a minimum SNR of 3.
func NewFinder() *Finder {
	return &Finder{scaleMin: 4, scaleMax: 9, minSNR: 3}
}

// ricker evaluates the normalized Mexican-hat wavelet of width a at offset t.
func ricker(t, a float64) float64 {
	norm := 2 / (math.Sqrt(3*a) * math.Pow(math.Pi, 0.25))
	u := t / a
	return norm * (1 - u*u) * math.Exp(-u*u/2)
}

// convolve returns the wavelet response of the spectrum at one scale, using
// reflected boundaries so edge channels keep comparable support.
func convolve(spectrum []float64, scale int) []float64 {
	n := len(spectrum)
	a := float64(scale)
	halfWidth := scale * 5
	out := make([]float64, n)

	for c := 0; c < n; c++ {
		sum := 0.0
		for dt := -halfWidth; dt <= halfWidth; dt++ {
			idx := reflect(c+dt, n)
			sum += spectrum[idx] * ricker(float64(dt), a)
		}
		out[c] = sum
	}
	return out
}

// reflect mirrors an out-of-range index back into [0, n).
func reflect(i, n int) int {
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}

// madSigma estimates the noise level of values as 1.4826 times the median
// absolute deviation, which is robust against the peaks themselves.
func madSigma(values []float64) float64 {
	med := median(values)
	dev := make([]float64, len(values))
	for i, v := range values {
		dev[i] = math.Abs(v - med)
	}
	return 1.4826 * median(dev)
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// FindPeaks runs the multi-scale search over a flux spectrum and returns
// the detected peaks with channel indices ascending. The call is
// independent of redshift and is made once per sample point.
func (f *Finder) FindPeaks(spectrum []float64) models.PeakSet {
	n := len(spectrum)
	if n == 0 {
		return models.PeakSet{}
	}

	// Best SNR across scales for every channel, and the scale that won.
	bestSNR := make([]float64, n)
	for scale := f.scaleMin; scale <= f.scaleMax; scale++ {
		response := convolve(spectrum, scale)
		sigma := madSigma(response)
		if sigma == 0 {
			continue
		}
		for c := 0; c < n; c++ {
			if snr := response[c] / sigma; snr > bestSNR[c] {
				bestSNR[c] = snr
			}
		}
	}

	// Local maxima of the SNR profile above the threshold are peak
	// candidates; candidates closer together than the smallest scale are
	// merged onto the stronger one.
	var candidates []int
	for c := 0; c < n; c++ {
		if bestSNR[c] < f.minSNR {
			continue
		}
		left := c - 1
		right := c + 1
		if left >= 0 && bestSNR[left] > bestSNR[c] {
			continue
		}
		if right < n && bestSNR[right] >= bestSNR[c] {
			continue
		}
		if len(candidates) > 0 && c-candidates[len(candidates)-1] < f.scaleMin {
			if bestSNR[c] > bestSNR[candidates[len(candidates)-1]] {
				candidates[len(candidates)-1] = c
			}
			continue
		}
		candidates = append(candidates, c)
	}

	peaks := models.PeakSet{
		Channels: make([]int, 0, len(candidates)),
		SNRs:     make([]float64, 0, len(candidates)),
		Scales:   make([]int, 0, len(candidates)),
	}
	for _, c := range candidates {
		left, right := peakEdges(bestSNR, c)
		peaks.Channels = append(peaks.Channels, c)
		peaks.SNRs = append(peaks.SNRs, math.Round(bestSNR[c]*100)/100)
		peaks.Scales = append(peaks.Scales, right-left)
	}
	return peaks
}

// peakEdges walks outward from a peak until the response drops below half
// the peak value, returning the left and right edge channels.
func peakEdges(snr []float64, peak int) (int, int) {
	half := snr[peak] / 2
	left := peak
	for left > 0 && snr[left-1] > half {
		left--
	}
	right := peak
	for right < len(snr)-1 && snr[right+1] > half {
		right++
	}
	return left, right
}
