// Package search implements the redshift grid-search engine. For one
// sample point it scans every candidate redshift, fits the Gaussian
// template with the line centre pinned by the candidate, scores the fit
// with a chi-squared corrected against independently detected spectral
// peaks, and reports the candidate with the lowest score.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"zsearch/internal/models"
	"zsearch/pkg/template"
)

// ErrNoConvergence is returned when the fit fails at every candidate
// redshift, leaving nothing to substitute failed entries with.
var ErrNoConvergence = errors.New("no candidate redshift converged")

// chi2Penalty inflates the score of fits whose peaks disagree with the
// line finder, or that rest on fewer than two detected peaks.
const chi2Penalty = 1.2

// peakDistanceBudget is the per-peak channel slack allowed before the
// penalty applies.
const peakDistanceBudget = 3

// Grid is an evenly spaced, inclusive range of candidate redshifts shared
// by every sample point in a run.
type Grid struct {
	Start float64
	Step  float64
	End   float64
}

// Values expands the grid into its ordered candidate list.
func (g Grid) Values() []float64 {
	n := int(math.Floor((g.End-g.Start)/g.Step+1e-9)) + 1
	values := make([]float64, n)
	for i := range values {
		values[i] = g.Start + float64(i)*g.Step
	}
	return values
}

// Validate rejects grids that are empty or not monotonically increasing.
func (g Grid) Validate() error {
	if g.Step <= 0 {
		return fmt.Errorf("redshift step must be positive, got %g", g.Step)
	}
	if g.End < g.Start {
		return fmt.Errorf("redshift range [%g, %g] is not increasing", g.Start, g.End)
	}
	return nil
}

// Result is the grid scan outcome for one sample point.
type Result struct {
	// Fits holds one entry per grid candidate, in grid order.
	Fits []models.FitResult

	// BestIndex is the grid index of the minimum chi-squared.
	BestIndex int

	// BestRedshift and BestChi2 are the winning candidate and its score.
	BestRedshift float64
	BestChi2     float64
}

// Engine scans the redshift grid for sample points of one run. It is
// stateless across points and safe for concurrent use.
type Engine struct {
	freqAxis   []float64
	grid       []float64
	transition float64
	harmonics  int
}

// NewEngine validates the configuration and precomputes the candidate
// list. transition is the rest-frame line frequency in the same units as
// freqAxis.
func NewEngine(freqAxis []float64, grid Grid, transition float64) (*Engine, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if transition <= 0 {
		return nil, fmt.Errorf("transition frequency must be positive, got %g", transition)
	}

	harmonics := template.HarmonicCount(grid.Start, grid.End)
	if len(freqAxis) < harmonics {
		return nil, fmt.Errorf("frequency axis has %d channels but the template needs %d harmonics",
			len(freqAxis), harmonics)
	}

	return &Engine{
		freqAxis:   freqAxis,
		grid:       grid.Values(),
		transition: transition,
		harmonics:  harmonics,
	}, nil
}

// Grid returns the candidate redshift values in scan order.
func (e *Engine) Grid() []float64 { return e.grid }

// Search scans every candidate redshift for one point's spectrum and peak
// set. Failed fits are substituted with the worst converged chi-squared in
// a pass after the scan, so a failure at the first candidate needs no
// special case. The context is checked between candidates.
func (e *Engine) Search(ctx context.Context, spectrum models.FluxSpectrum, peaks models.PeakSet) (Result, error) {
	if len(spectrum.Flux) != len(e.freqAxis) || len(spectrum.Uncertainty) != len(e.freqAxis) {
		return Result{}, fmt.Errorf("spectrum has %d channels, engine expects %d",
			len(spectrum.Flux), len(e.freqAxis))
	}

	maxFlux := floats.Max(spectrum.Flux)
	bounds := template.DefaultWidthBounds(maxFlux)

	fits := make([]models.FitResult, len(e.grid))
	for i, z := range e.grid {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		loc := e.transition / (1 + z)

		amp, width, err := template.Fit(e.freqAxis, spectrum.Flux, loc, e.harmonics, bounds)
		if err != nil {
			fits[i] = models.FitResult{Converged: false}
			continue
		}

		expected := template.Evaluate(e.freqAxis, amp, width, loc, e.harmonics)
		chi2 := chiSquared(spectrum.Flux, expected, spectrum.Uncertainty)

		distance := peakDistance(peaks.Channels, expectedPeakChannels(expected, peaks.Len()))
		if distance > peakDistanceBudget*peaks.Len() || peaks.Len() < 2 {
			chi2 *= chi2Penalty
		}

		fits[i] = models.FitResult{Converged: true, Amplitude: amp, Width: width, Chi2: chi2}
	}

	if err := substituteFailed(fits); err != nil {
		return Result{}, err
	}

	best := 0
	for i, f := range fits {
		if f.Chi2 < fits[best].Chi2 {
			best = i
		}
	}

	return Result{
		Fits:         fits,
		BestIndex:    best,
		BestRedshift: e.grid[best],
		BestChi2:     fits[best].Chi2,
	}, nil
}

// chiSquared sums the squared uncertainty-normalized residuals.
func chiSquared(observed, expected, uncertainty []float64) float64 {
	sum := 0.0
	for i := range observed {
		d := (observed[i] - expected[i]) / uncertainty[i]
		sum += d * d
	}
	return sum
}

// expectedPeakChannels returns the indices of the count largest values of
// the expected spectrum, sorted ascending. With zero detected peaks the
// comparison set is empty.
func expectedPeakChannels(expected []float64, count int) []int {
	if count == 0 {
		return nil
	}
	if count > len(expected) {
		count = len(expected)
	}

	indices := make([]int, len(expected))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return expected[indices[a]] > expected[indices[b]]
	})

	top := indices[:count]
	sort.Ints(top)
	return top
}

// peakDistance sums the absolute channel differences between observed and
// expected peaks matched pairwise in ascending order, truncated to the
// shorter sequence.
func peakDistance(observed, expected []int) int {
	n := len(observed)
	if len(expected) < n {
		n = len(expected)
	}
	total := 0
	for i := 0; i < n; i++ {
		d := observed[i] - expected[i]
		if d < 0 {
			d = -d
		}
		total += d
	}
	return total
}

// substituteFailed fills failed candidates with the maximum chi-squared
// among the converged ones. Errors out when nothing converged.
func substituteFailed(fits []models.FitResult) error {
	worst := math.Inf(-1)
	anyConverged := false
	for _, f := range fits {
		if f.Converged {
			anyConverged = true
			if f.Chi2 > worst {
				worst = f.Chi2
			}
		}
	}
	if !anyConverged {
		return ErrNoConvergence
	}
	for i := range fits {
		if !fits[i].Converged {
			fits[i].Chi2 = worst
		}
	}
	return nil
}
