package runner

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"testing"

	"zsearch/internal/models"
	"zsearch/pkg/linefinder"
	"zsearch/pkg/sampler"
	"zsearch/pkg/search"
	"zsearch/pkg/template"
)

const testTransition = 115.2712

// linspace builds an evenly spaced axis for the tests.
func linspace(start, end float64, n int) []float64 {
	axis := make([]float64, n)
	for i := range axis {
		axis[i] = start + (end-start)*float64(i)/float64(n-1)
	}
	return axis
}

// stubEstimator returns the same synthetic spectrum at every position, or
// an error for positions it is told to fail at.
type stubEstimator struct {
	spectrum   models.FluxSpectrum
	failCentre bool
	failOthers bool
	centre     models.SamplePoint
}

var errStubExtraction = errors.New("stub extraction failure")

func (s *stubEstimator) ExtractSpectrum(position models.SamplePoint) (models.FluxSpectrum, error) {
	atCentre := position == s.centre
	if (atCentre && s.failCentre) || (!atCentre && s.failOthers) {
		return models.FluxSpectrum{}, errStubExtraction
	}
	flux := make([]float64, len(s.spectrum.Flux))
	copy(flux, s.spectrum.Flux)
	uncertainty := make([]float64, len(s.spectrum.Uncertainty))
	copy(uncertainty, s.spectrum.Uncertainty)
	return models.FluxSpectrum{Flux: flux, Uncertainty: uncertainty}, nil
}

// testFixture builds an engine, a synthetic line spectrum at the given
// redshift, and a runner over stubbed extraction.
func testFixture(t *testing.T, trueZ float64, points int, est *stubEstimator) (*Runner, *search.Engine) {
	t.Helper()

	axis := linspace(25, 70, 200)
	grid := search.Grid{Start: 0, Step: 0.01, End: 10}
	engine, err := search.NewEngine(axis, grid, testTransition)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	loc := testTransition / (1 + trueZ)
	flux := template.Evaluate(axis, 1.2, 0.3, loc, template.HarmonicCount(grid.Start, grid.End))
	uncertainty := make([]float64, len(flux))
	for i := range uncertainty {
		uncertainty[i] = 1
	}

	est.spectrum = models.FluxSpectrum{Flux: flux, Uncertainty: uncertainty}
	est.centre = models.SamplePoint{X: 50, Y: 50}

	params := Params{
		Points:        points,
		Centre:        est.centre,
		CircleRadius:  20,
		MinSeparation: 1,
		Workers:       4,
	}

	r := New(est, linefinder.NewFinder(), engine, sampler.New(rand.NewSource(21)), params)
	r.Progress = io.Discard
	return r, engine
}

// TestRunFindsInjectedRedshift runs the full pipeline over a synthetic
// spectrum with a line injected at z=2.5 and verifies the origin point
// recovers it within one grid step.
func TestRunFindsInjectedRedshift(t *testing.T) {
	const trueZ = 2.5
	r, engine := testFixture(t, trueZ, 1, &stubEstimator{})

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Results) != 1 || len(result.Points) != 1 {
		t.Fatalf("Expected one point, got %d results / %d points", len(result.Results), len(result.Points))
	}

	origin := result.Results[0]
	if origin.Err != nil {
		t.Fatalf("Origin point failed: %v", origin.Err)
	}
	if math.Abs(origin.BestRedshift-trueZ) > 0.01+1e-9 {
		t.Errorf("Expected best redshift within one step of %.2f, got %.3f", trueZ, origin.BestRedshift)
	}
	if origin.Category != models.CategoryOrigin {
		t.Errorf("Expected origin category, got %v", origin.Category)
	}
	if len(result.Grid) != len(engine.Grid()) {
		t.Errorf("Expected grid of %d candidates in the result, got %d", len(engine.Grid()), len(result.Grid))
	}
	if len(origin.Fits) != len(result.Grid) {
		t.Errorf("Expected %d fit entries aligned with the grid, got %d", len(result.Grid), len(origin.Fits))
	}

	chi2 := origin.Chi2Sequence()
	if len(chi2) != len(origin.Fits) {
		t.Fatalf("Expected a chi2 value per candidate, got %d for %d fits", len(chi2), len(origin.Fits))
	}
	minChi2 := chi2[0]
	for _, v := range chi2 {
		if v < minChi2 {
			minChi2 = v
		}
	}
	if minChi2 != origin.BestChi2 {
		t.Errorf("Expected the chi2 sequence minimum %g to equal the best chi2 %g", minChi2, origin.BestChi2)
	}
}

// TestRunIndexAlignment verifies that every aggregate collection keeps
// index i pointing at the same sample point, with the origin first.
func TestRunIndexAlignment(t *testing.T) {
	r, _ := testFixture(t, 2.5, 6, &stubEstimator{})

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Results) != 6 || len(result.Points) != 6 {
		t.Fatalf("Expected 6 aligned entries, got %d results / %d points",
			len(result.Results), len(result.Points))
	}

	if result.Points[0] != (models.SamplePoint{X: 50, Y: 50}) {
		t.Errorf("Expected the origin first, got %v", result.Points[0])
	}

	for i, res := range result.Results {
		if res.Point != result.Points[i] {
			t.Errorf("Result %d refers to point %v, expected %v", i, res.Point, result.Points[i])
		}
	}

	// Identical spectra at every point give identical best chi-squared,
	// so every non-origin point is categorized as improved.
	for i := 1; i < len(result.Results); i++ {
		if result.Results[i].Category != models.CategoryImproved {
			t.Errorf("Point %d: expected improved, got %v", i, result.Results[i].Category)
		}
	}

	zs := result.BestRedshifts()
	if len(zs) != 6 {
		t.Fatalf("Expected 6 best redshifts, got %d", len(zs))
	}
	for i, z := range zs {
		if z != result.Results[i].BestRedshift {
			t.Errorf("BestRedshifts[%d] = %g out of sync with result %g", i, z, result.Results[i].BestRedshift)
		}
	}
}

// TestRunFailedPointPlaceholder verifies the per-point failure policy: a
// failed non-origin point is kept as a CategoryFailed placeholder and the
// run continues.
func TestRunFailedPointPlaceholder(t *testing.T) {
	r, _ := testFixture(t, 2.5, 4, &stubEstimator{failOthers: true})

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Results[0].Err != nil {
		t.Fatalf("Origin should have succeeded, got %v", result.Results[0].Err)
	}

	for i := 1; i < len(result.Results); i++ {
		res := result.Results[i]
		if res.Err == nil {
			t.Errorf("Point %d: expected a recorded failure", i)
		}
		if res.Category != models.CategoryFailed {
			t.Errorf("Point %d: expected failed category, got %v", i, res.Category)
		}
	}
}

// TestRunOriginFailureAborts verifies that a failed origin point fails the
// whole run, since no reference chi-squared exists without it.
func TestRunOriginFailureAborts(t *testing.T) {
	r, _ := testFixture(t, 2.5, 3, &stubEstimator{failCentre: true})

	if _, err := r.Run(context.Background()); err == nil {
		t.Fatal("Expected the run to fail when the origin point fails, got nil")
	}
}

// TestRunHonoursCancellation verifies that a cancelled context aborts the
// run with the context error.
func TestRunHonoursCancellation(t *testing.T) {
	r, _ := testFixture(t, 2.5, 3, &stubEstimator{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

// TestCategorize verifies the classification boundaries against a
// reference chi-squared of 100.
func TestCategorize(t *testing.T) {
	results := []models.PointResult{
		{BestChi2: 100},
		{BestChi2: 99},
		{BestChi2: 100},
		{BestChi2: 105},
		{BestChi2: 106},
		{Err: errStubExtraction},
	}
	categorize(results)

	want := []models.Category{
		models.CategoryOrigin,
		models.CategoryImproved,
		models.CategoryImproved,
		models.CategoryComparable,
		models.CategoryWorse,
		models.CategoryFailed,
	}
	for i, w := range want {
		if results[i].Category != w {
			t.Errorf("Result %d: expected %v, got %v", i, w, results[i].Category)
		}
	}
}
