// Package runner drives a full redshift search run: sampling spaced points
// around the target, extracting a flux spectrum and detecting peaks at
// each point, scanning the redshift grid per point, and aggregating the
// per-point results with a qualitative category relative to the target's
// own best fit.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"zsearch/internal/models"
	"zsearch/pkg/sampler"
	"zsearch/pkg/search"
)

// FluxEstimator is the aperture-photometry capability: one flux value and
// one uncertainty per frequency channel at a pixel position. Production
// code uses pkg/photometry; tests substitute deterministic doubles.
type FluxEstimator interface {
	ExtractSpectrum(position models.SamplePoint) (models.FluxSpectrum, error)
}

// PeakFinder is the line-finder capability: significant peak channels with
// SNR and scale for one flux spectrum. Production code uses pkg/linefinder.
type PeakFinder interface {
	FindPeaks(spectrum []float64) models.PeakSet
}

// Params configures one run.
type Params struct {
	// Points is the number of sample points including the target itself.
	Points int

	// Centre is the target's pixel position; it is always sampled first
	// and never perturbed.
	Centre models.SamplePoint

	// CircleRadius bounds how far from the centre points may fall, in
	// pixels.
	CircleRadius float64

	// MinSeparation is the minimum pairwise distance between points, in
	// pixels.
	MinSeparation float64

	// Workers caps how many points are processed concurrently. Values
	// below 1 mean sequential processing.
	Workers int
}

// RunResult aggregates a full run. Index i refers to the same sample point
// in Points and Results; index 0 is the origin.
type RunResult struct {
	// Points are the sampled pixel coordinates, origin first.
	Points []models.SamplePoint

	// Results holds one PointResult per sample point, aligned with Points.
	Results []models.PointResult

	// Grid is the candidate redshift list every Results[i].Fits aligns
	// with.
	Grid []float64

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration
}

// Runner wires the sampler, the capability interfaces, and the grid search
// engine together for repeated runs over one cube.
type Runner struct {
	estimator FluxEstimator
	finder    PeakFinder
	engine    *search.Engine
	sampler   *sampler.Sampler
	params    Params

	// Progress receives per-point completion lines and the elapsed-time
	// summary. Defaults to standard output.
	Progress io.Writer
}

// New creates a runner. The engine, estimator, and finder are shared
// read-only across point workers.
func New(estimator FluxEstimator, finder PeakFinder, engine *search.Engine, smp *sampler.Sampler, params Params) *Runner {
	return &Runner{
		estimator: estimator,
		finder:    finder,
		engine:    engine,
		sampler:   smp,
		params:    params,
		Progress:  os.Stdout,
	}
}

// Run samples the points and processes each one, in parallel up to
// params.Workers, then categorizes every point against the origin. A
// failed non-origin point is kept as a placeholder with CategoryFailed so
// index alignment survives; a failed origin point fails the run because
// there is no reference chi-squared without it.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	points, err := r.sampler.SpacedCirclePoints(r.params.Points, r.params.CircleRadius,
		r.params.Centre, r.params.MinSeparation)
	if err != nil {
		return nil, fmt.Errorf("sampling failed: %w", err)
	}

	start := time.Now()
	results := make([]models.PointResult, len(points))

	workers := r.params.Workers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)

	type completion struct {
		index int
	}
	done := make(chan completion)

	var wg sync.WaitGroup
	for i, p := range points {
		wg.Add(1)
		go func(index int, point models.SamplePoint) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[index] = r.processPoint(ctx, point)
			done <- completion{index: index}
		}(i, p)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	completed := 0
	for range done {
		completed++
		fmt.Fprintf(r.Progress, "%d/%d completed..\n", completed, len(points))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if results[0].Err != nil {
		return nil, fmt.Errorf("origin point failed: %w", results[0].Err)
	}
	categorize(results)

	elapsed := time.Since(start)
	fmt.Fprintf(r.Progress, "Data processed in %.3f minutes\n", elapsed.Minutes())

	return &RunResult{
		Points:  points,
		Results: results,
		Grid:    r.engine.Grid(),
		Elapsed: elapsed,
	}, nil
}

// processPoint extracts the spectrum, finds peaks, and scans the grid for
// one point. All returned state is owned by this worker until merged.
func (r *Runner) processPoint(ctx context.Context, point models.SamplePoint) models.PointResult {
	result := models.PointResult{Point: point, Category: models.CategoryFailed}

	spectrum, err := r.estimator.ExtractSpectrum(point)
	if err != nil {
		result.Err = fmt.Errorf("flux extraction: %w", err)
		return result
	}
	result.Spectrum = spectrum

	result.Peaks = r.finder.FindPeaks(spectrum.Flux)

	searchResult, err := r.engine.Search(ctx, spectrum, result.Peaks)
	if err != nil {
		result.Err = fmt.Errorf("grid search: %w", err)
		return result
	}

	result.Fits = searchResult.Fits
	result.BestRedshift = searchResult.BestRedshift
	result.BestChi2 = searchResult.BestChi2
	return result
}

// categorize assigns every point a category relative to the origin's best
// chi-squared: at or below it is improved, within 5% above is comparable,
// beyond that is worse.
func categorize(results []models.PointResult) {
	reference := results[0].BestChi2
	results[0].Category = models.CategoryOrigin

	for i := 1; i < len(results); i++ {
		if results[i].Err != nil {
			results[i].Category = models.CategoryFailed
			continue
		}
		switch {
		case results[i].BestChi2 <= reference:
			results[i].Category = models.CategoryImproved
		case results[i].BestChi2 <= 1.05*reference:
			results[i].Category = models.CategoryComparable
		default:
			results[i].Category = models.CategoryWorse
		}
	}
}

// BestRedshifts returns the per-point best redshift values in point order,
// the primary output consumed by downstream reporting.
func (r *RunResult) BestRedshifts() []float64 {
	out := make([]float64, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.BestRedshift
	}
	return out
}
