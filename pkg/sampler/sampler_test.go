package sampler

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"zsearch/internal/models"
)

// TestSpacedCirclePointsBasic verifies that the sampler returns the
// requested number of points with the centre first.
func TestSpacedCirclePointsBasic(t *testing.T) {
	s := New(rand.NewSource(42))
	centre := models.SamplePoint{X: 100, Y: 100}

	points, err := s.SpacedCirclePoints(10, 50, centre, 2)
	if err != nil {
		t.Fatalf("SpacedCirclePoints failed: %v", err)
	}

	if len(points) != 10 {
		t.Errorf("Expected 10 points, got %d", len(points))
	}

	if points[0] != centre {
		t.Errorf("Expected first point to be the centre %v, got %v", centre, points[0])
	}
}

// TestSpacedCirclePointsSeparation verifies the pairwise minimum distance
// invariant for every pair of returned points.
func TestSpacedCirclePointsSeparation(t *testing.T) {
	s := New(rand.NewSource(7))
	centre := models.SamplePoint{X: 0, Y: 0}
	minSep := 3.0

	points, err := s.SpacedCirclePoints(15, 60, centre, minSep)
	if err != nil {
		t.Fatalf("SpacedCirclePoints failed: %v", err)
	}

	// The first perturbed point is accepted unconditionally, so the pair
	// (0, 1) carries no separation guarantee.
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			if i == 0 && j == 1 {
				continue
			}
			d := math.Hypot(points[i].X-points[j].X, points[i].Y-points[j].Y)
			if d < minSep {
				t.Errorf("Points %d and %d are %.3f apart, expected at least %.3f", i, j, d, minSep)
			}
		}
	}
}

// TestSpacedCirclePointsWithinRadius verifies that perturbed points stay
// inside the bounding circle.
func TestSpacedCirclePointsWithinRadius(t *testing.T) {
	s := New(rand.NewSource(3))
	centre := models.SamplePoint{X: 50, Y: 50}
	radius := 20.0

	points, err := s.SpacedCirclePoints(20, radius, centre, 1)
	if err != nil {
		t.Fatalf("SpacedCirclePoints failed: %v", err)
	}

	for i, p := range points {
		d := math.Hypot(p.X-centre.X, p.Y-centre.Y)
		if d > radius+1e-9 {
			t.Errorf("Point %d is %.3f from the centre, outside radius %.1f", i, d, radius)
		}
	}
}

// TestSpacedCirclePointsSinglePoint verifies that requesting one point
// returns only the centre.
func TestSpacedCirclePointsSinglePoint(t *testing.T) {
	s := New(rand.NewSource(1))
	centre := models.SamplePoint{X: 5, Y: -5}

	points, err := s.SpacedCirclePoints(1, 10, centre, 100)
	if err != nil {
		t.Fatalf("SpacedCirclePoints failed: %v", err)
	}

	if len(points) != 1 || points[0] != centre {
		t.Errorf("Expected only the centre point, got %v", points)
	}
}

// TestSpacedCirclePointsInfeasible verifies that an unsatisfiable
// separation fails fast with the sentinel error instead of hanging.
func TestSpacedCirclePointsInfeasible(t *testing.T) {
	s := New(rand.NewSource(9))
	centre := models.SamplePoint{X: 0, Y: 0}

	// Three points at least 10 apart cannot fit in a circle of radius 1.
	_, err := s.SpacedCirclePoints(3, 1, centre, 10)
	if err == nil {
		t.Fatal("Expected an infeasible separation error, got nil")
	}
	if !errors.Is(err, ErrInfeasibleSeparation) {
		t.Errorf("Expected ErrInfeasibleSeparation, got %v", err)
	}
}

// TestSpacedCirclePointsInvalidCount verifies that a non-positive point
// count is rejected.
func TestSpacedCirclePointsInvalidCount(t *testing.T) {
	s := New(rand.NewSource(1))
	if _, err := s.SpacedCirclePoints(0, 10, models.SamplePoint{}, 1); err == nil {
		t.Error("Expected an error for zero points, got nil")
	}
}
