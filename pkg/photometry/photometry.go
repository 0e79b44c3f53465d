// Package photometry measures per-channel source fluxes from a spectral
// cube with circular-aperture photometry. For every frequency channel it
// estimates a 2D mesh background, sums the background-subtracted pixels
// inside the aperture, scales the sum from instrument units to physical
// flux with the pixel and beam solid angles, and takes the standard
// deviation of an annulus around the aperture as the uncertainty.
package photometry

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"zsearch/internal/models"
	"zsearch/pkg/cube"
)

// ErrAllZeroUncertainty is returned when every channel's annulus RMS is
// zero, which would make chi-squared undefined downstream.
var ErrAllZeroUncertainty = errors.New("uncertainty spectrum is entirely zero")

// backgroundBoxSize is the mesh cell edge, in pixels, for the local
// background estimate.
const backgroundBoxSize = 50

// clipSigma and clipMaxIters control the sigma clipping applied to every
// mesh cell before its median is taken.
const (
	clipSigma    = 3.0
	clipMaxIters = 5
)

// unitScale converts the extracted values from uJy to mJy.
const unitScale = 1000.0

// Extractor measures flux spectra at pixel positions of one cube.
type Extractor struct {
	cube           *cube.SpectralCube
	apertureRadius float64
	beamArea       float64
}

// NewExtractor creates an extractor for the given cube. apertureRadius is
// in pixels; bvalue is the beam major/minor axis in arcseconds, from which
// the Gaussian beam solid angle 1.1331*bmaj*bmin is derived.
func NewExtractor(c *cube.SpectralCube, apertureRadius, bvalue float64) *Extractor {
	bmaj := bvalue / 3600
	bmin := bmaj
	return &Extractor{
		cube:           c,
		apertureRadius: apertureRadius,
		beamArea:       1.1331 * bmaj * bmin,
	}
}

// ExtractSpectrum returns the flux and uncertainty at position for every
// frequency channel, in mJy. Zero uncertainties are filled from their
// neighbours so the chi-squared normalization never divides by zero.
func (e *Extractor) ExtractSpectrum(position models.SamplePoint) (models.FluxSpectrum, error) {
	hdr := e.cube.Header
	fluxes := make([]float64, hdr.Channels)
	uncertainties := make([]float64, hdr.Channels)

	pixArea := hdr.PixScale * hdr.PixScale

	for c := 0; c < hdr.Channels; c++ {
		img := e.cube.Channel(c)

		background := meshBackground(img, hdr.Width, hdr.Height, backgroundBoxSize)
		apsum := apertureSum(img, background, hdr.Width, hdr.Height, position, e.apertureRadius)

		fluxes[c] = apsum * pixArea / e.beamArea
		uncertainties[c] = annulusStd(img, hdr.Width, hdr.Height, position,
			2*e.apertureRadius, 3*e.apertureRadius)
	}

	if err := fillZeroUncertainties(uncertainties); err != nil {
		return models.FluxSpectrum{}, fmt.Errorf("at (%.1f, %.1f): %w", position.X, position.Y, err)
	}

	for c := range fluxes {
		fluxes[c] *= unitScale
		uncertainties[c] *= unitScale
	}

	return models.FluxSpectrum{Flux: fluxes, Uncertainty: uncertainties}, nil
}

// meshBackground estimates the local background of one channel image as a
// per-pixel map. The image is tiled into boxSize x boxSize cells and each
// pixel takes the sigma-clipped median of its cell, which is robust against
// compact sources inside the cell.
func meshBackground(img []float64, width, height, boxSize int) []float64 {
	background := make([]float64, len(img))
	cell := make([]float64, 0, boxSize*boxSize)

	for y0 := 0; y0 < height; y0 += boxSize {
		for x0 := 0; x0 < width; x0 += boxSize {
			cell = cell[:0]
			yEnd := minInt(y0+boxSize, height)
			xEnd := minInt(x0+boxSize, width)

			for y := y0; y < yEnd; y++ {
				for x := x0; x < xEnd; x++ {
					if v := img[y*width+x]; !math.IsNaN(v) {
						cell = append(cell, v)
					}
				}
			}

			med := sigmaClippedMedian(cell, clipSigma)
			for y := y0; y < yEnd; y++ {
				for x := x0; x < xEnd; x++ {
					background[y*width+x] = med
				}
			}
		}
	}
	return background
}

// apertureSum adds up the background-subtracted pixels whose centres fall
// inside the circular aperture. NaN pixels contribute nothing.
func apertureSum(img, background []float64, width, height int, centre models.SamplePoint, radius float64) float64 {
	x0 := maxInt(0, int(math.Floor(centre.X-radius)))
	x1 := minInt(width-1, int(math.Ceil(centre.X+radius)))
	y0 := maxInt(0, int(math.Floor(centre.Y-radius)))
	y1 := minInt(height-1, int(math.Ceil(centre.Y+radius)))

	sum := 0.0
	r2 := radius * radius
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			dx := float64(x) - centre.X
			dy := float64(y) - centre.Y
			if dx*dx+dy*dy > r2 {
				continue
			}
			v := img[y*width+x]
			if math.IsNaN(v) {
				continue
			}
			sum += v - background[y*width+x]
		}
	}
	return sum
}

// annulusStd returns the standard deviation of the pixels between rIn and
// rOut of the centre, skipping NaNs. An empty annulus yields zero, which
// the zero-fill pass then repairs.
func annulusStd(img []float64, width, height int, centre models.SamplePoint, rIn, rOut float64) float64 {
	x0 := maxInt(0, int(math.Floor(centre.X-rOut)))
	x1 := minInt(width-1, int(math.Ceil(centre.X+rOut)))
	y0 := maxInt(0, int(math.Floor(centre.Y-rOut)))
	y1 := minInt(height-1, int(math.Ceil(centre.Y+rOut)))

	var values []float64
	rIn2 := rIn * rIn
	rOut2 := rOut * rOut
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			dx := float64(x) - centre.X
			dy := float64(y) - centre.Y
			d2 := dx*dx + dy*dy
			if d2 < rIn2 || d2 > rOut2 {
				continue
			}
			if v := img[y*width+x]; !math.IsNaN(v) {
				values = append(values, v)
			}
		}
	}
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

// fillZeroUncertainties replaces zero entries with the mean of the nearest
// non-zero values to their left and right; a zero at either end, or inside
// a run of zeros touching an end, takes the single available side. A
// spectrum that is zero everywhere is rejected.
func fillZeroUncertainties(uncertainties []float64) error {
	allZero := true
	for _, v := range uncertainties {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return ErrAllZeroUncertainty
	}

	original := make([]float64, len(uncertainties))
	copy(original, uncertainties)

	for i, v := range original {
		if v != 0 {
			continue
		}

		left := 0.0
		for j := i - 1; j >= 0; j-- {
			if original[j] != 0 {
				left = original[j]
				break
			}
		}
		right := 0.0
		for j := i + 1; j < len(original); j++ {
			if original[j] != 0 {
				right = original[j]
				break
			}
		}

		switch {
		case left != 0 && right != 0:
			uncertainties[i] = (left + right) / 2
		case left != 0:
			uncertainties[i] = left
		default:
			uncertainties[i] = right
		}
	}
	return nil
}

// sigmaClippedMedian iteratively discards values farther than sigma
// standard deviations from the running median, then returns the median of
// what survives. Clipping stops once a pass removes nothing.
func sigmaClippedMedian(values []float64, sigma float64) float64 {
	kept := make([]float64, len(values))
	copy(kept, values)

	for iter := 0; iter < clipMaxIters; iter++ {
		if len(kept) < 3 {
			break
		}
		med := medianOf(kept)
		std := stat.StdDev(kept, nil)
		if std == 0 {
			break
		}

		next := kept[:0]
		for _, v := range kept {
			if math.Abs(v-med) <= sigma*std {
				next = append(next, v)
			}
		}
		if len(next) == len(kept) {
			break
		}
		kept = next
	}
	return medianOf(kept)
}

func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
