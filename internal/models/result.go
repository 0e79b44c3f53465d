package models

// SamplePoint is a 2D pixel coordinate inside the cube's spatial plane.
// The first point generated for a run is always the target's true position
// and is never perturbed.
type SamplePoint struct {
	X, Y float64
}

// FluxSpectrum holds one flux measurement and its uncertainty per frequency
// channel for a single sample point. Both slices share the channel index and
// are ordered by it.
type FluxSpectrum struct {
	// Flux is the aperture-summed, beam-corrected flux per channel in mJy.
	Flux []float64

	// Uncertainty is the annulus RMS per channel in mJy. Entries are never
	// zero after extraction post-processing.
	Uncertainty []float64
}

// PeakSet is the redshift-independent output of the line finder for one
// flux spectrum.
type PeakSet struct {
	// Channels are the detected peak channel indices, sorted ascending.
	Channels []int

	// SNRs are the per-peak signal-to-noise ratios rounded to 2 decimals,
	// aligned with Channels.
	SNRs []float64

	// Scales are the per-peak widths in channels (right edge minus left
	// edge), aligned with Channels.
	Scales []int
}

// Len returns the number of detected peaks.
func (p PeakSet) Len() int { return len(p.Channels) }

// FitResult is the outcome of fitting the Gaussian template at one candidate
// redshift. A candidate either converged with parameters and a chi-squared,
// or failed; failed entries get a substitute chi-squared in an aggregation
// pass after the full grid scan.
type FitResult struct {
	// Converged reports whether the least-squares fit found parameters
	// within bounds.
	Converged bool

	// Amplitude and Width are the fitted template parameters. Only valid
	// when Converged is true.
	Amplitude float64
	Width     float64

	// Chi2 is the penalized chi-squared for this candidate. For failed
	// candidates it is filled with the maximum chi-squared among the
	// converged candidates of the same point.
	Chi2 float64
}

// Category classifies a sample point's best fit relative to the origin
// point's best chi-squared.
type Category int

const (
	// CategoryOrigin marks the first sampled point, the target itself.
	CategoryOrigin Category = iota

	// CategoryImproved marks points whose minimum chi-squared is at or
	// below the origin's.
	CategoryImproved

	// CategoryComparable marks points within 5% above the origin's
	// minimum chi-squared.
	CategoryComparable

	// CategoryWorse marks points more than 5% above the origin's minimum
	// chi-squared.
	CategoryWorse

	// CategoryFailed marks points whose extraction or search failed; they
	// are retained as placeholders to preserve index alignment.
	CategoryFailed
)

// String returns a compact label for run summaries.
func (c Category) String() string {
	switch c {
	case CategoryOrigin:
		return "origin"
	case CategoryImproved:
		return "improved"
	case CategoryComparable:
		return "comparable"
	case CategoryWorse:
		return "worse"
	case CategoryFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PointResult aggregates everything computed for one sample point.
type PointResult struct {
	// Point is the sampled pixel coordinate.
	Point SamplePoint

	// Spectrum is the extracted per-channel flux and uncertainty.
	Spectrum FluxSpectrum

	// Peaks is the line finder output for Spectrum.
	Peaks PeakSet

	// Fits holds one FitResult per candidate redshift, aligned with the
	// run's redshift grid.
	Fits []FitResult

	// BestRedshift is the grid value at the minimum chi-squared.
	BestRedshift float64

	// BestChi2 is that minimum chi-squared.
	BestChi2 float64

	// Category relates this point's best fit to the origin point's.
	Category Category

	// Err records a per-point failure. When set, the numeric fields above
	// are zero values and Category is CategoryFailed.
	Err error
}

// Chi2Sequence returns the chi-squared value of every candidate in grid
// order, for downstream reporting.
func (r PointResult) Chi2Sequence() []float64 {
	chi2 := make([]float64, len(r.Fits))
	for i, f := range r.Fits {
		chi2[i] = f.Chi2
	}
	return chi2
}
