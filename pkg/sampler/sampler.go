// Package sampler generates spatially separated sample points inside a
// bounding circle around a target pixel. The first point is always the
// target itself; the rest are drawn uniformly in angle and radius and kept
// only when they respect a minimum pairwise separation.
package sampler

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"zsearch/internal/models"
)

// ErrInfeasibleSeparation is returned when the requested minimum separation
// cannot be satisfied for the requested point count and radius.
var ErrInfeasibleSeparation = errors.New("cannot satisfy minimum separation")

// maxAttemptsPerPoint bounds the rejection-sampling loop so an infeasible
// configuration fails instead of hanging.
const maxAttemptsPerPoint = 10000

// Sampler draws spaced points around a centre pixel.
type Sampler struct {
	rng *rand.Rand
}

// New creates a sampler seeded from src. Tests pass a fixed-seed source for
// deterministic layouts.
func New(src rand.Source) *Sampler {
	return &Sampler{rng: rand.New(src)}
}

// SpacedCirclePoints returns numPoints points: the centre first, then
// points drawn inside circleRadius of it, each at least minSeparation away
// from every previously accepted point. The separation check is skipped
// while only the centre exists.
func (s *Sampler) SpacedCirclePoints(numPoints int, circleRadius float64, centre models.SamplePoint, minSeparation float64) ([]models.SamplePoint, error) {
	if numPoints < 1 {
		return nil, fmt.Errorf("need at least one point, got %d", numPoints)
	}

	points := make([]models.SamplePoint, 0, numPoints)
	points = append(points, centre)

	for len(points) < numPoints {
		accepted := false
		for attempt := 0; attempt < maxAttemptsPerPoint; attempt++ {
			theta := 2 * math.Pi * s.rng.Float64()
			r := circleRadius * s.rng.Float64()

			candidate := models.SamplePoint{
				X: r*math.Cos(theta) + centre.X,
				Y: r*math.Sin(theta) + centre.Y,
			}

			if len(points) == 1 || minDistance(candidate, points) >= minSeparation {
				points = append(points, candidate)
				accepted = true
				break
			}
		}
		if !accepted {
			return nil, fmt.Errorf("%w: %d points with separation %.2f in radius %.2f",
				ErrInfeasibleSeparation, numPoints, minSeparation, circleRadius)
		}
	}

	return points, nil
}

// minDistance returns the smallest Euclidean distance from candidate to any
// of the accepted points.
func minDistance(candidate models.SamplePoint, points []models.SamplePoint) float64 {
	min := math.Inf(1)
	for _, p := range points {
		dx := candidate.X - p.X
		dy := candidate.Y - p.Y
		if d := math.Hypot(dx, dy); d < min {
			min = d
		}
	}
	return min
}
