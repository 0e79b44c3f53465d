// Package cube provides the spectral-line data cube model used throughout
// zsearch. A cube is a 3D array of flux values indexed
// [channel][y][x] together with the header scalars needed to convert
// between pixels, sky coordinates, and physical frequencies.
package cube

import (
	"fmt"
	"math"
)

// Header holds the cube metadata needed by the search pipeline. Field names
// mirror the conventional radio-cube header keywords they are read from.
type Header struct {
	// Width and Height are the spatial dimensions in pixels.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// Channels is the length of the frequency axis.
	Channels int `yaml:"channels"`

	// PixScale is the angular size of one pixel in degrees (CDELT2).
	PixScale float64 `yaml:"pixScale"`

	// FreqRef is the frequency of the first channel in Hz (CRVAL3).
	FreqRef float64 `yaml:"freqRef"`

	// FreqStep is the per-channel frequency increment in Hz (CDELT3).
	FreqStep float64 `yaml:"freqStep"`

	// RefRA and RefDec are the sky coordinates in decimal degrees at the
	// reference pixel (CRVAL1, CRVAL2).
	RefRA  float64 `yaml:"refRA"`
	RefDec float64 `yaml:"refDec"`

	// RefPixX and RefPixY are the 1-based reference pixel coordinates
	// (CRPIX1, CRPIX2).
	RefPixX float64 `yaml:"refPixX"`
	RefPixY float64 `yaml:"refPixY"`

	// RAStep is the per-pixel right ascension increment in degrees
	// (CDELT1); negative for the usual east-left orientation.
	RAStep float64 `yaml:"raStep"`
}

// SpectralCube is an immutable 3D flux array plus its header. The data is
// stored flat in [channel][y][x] order and is shared read-only between
// workers during a run.
type SpectralCube struct {
	Header Header
	data   []float64
}

// New wraps data in a SpectralCube after validating it against the header.
func New(hdr Header, data []float64) (*SpectralCube, error) {
	if hdr.Width <= 0 || hdr.Height <= 0 || hdr.Channels <= 0 {
		return nil, fmt.Errorf("cube dimensions must be positive, got %dx%dx%d",
			hdr.Channels, hdr.Height, hdr.Width)
	}
	if want := hdr.Channels * hdr.Width * hdr.Height; len(data) != want {
		return nil, fmt.Errorf("cube payload has %d values, header implies %d", len(data), want)
	}
	return &SpectralCube{Header: hdr, data: data}, nil
}

// At returns the flux at channel c, row y, column x.
func (s *SpectralCube) At(c, y, x int) float64 {
	return s.data[(c*s.Header.Height+y)*s.Header.Width+x]
}

// Channel returns the 2D image of one frequency channel as a flat
// row-major slice. The returned slice aliases the cube and must not be
// modified.
func (s *SpectralCube) Channel(c int) []float64 {
	size := s.Header.Width * s.Header.Height
	return s.data[c*size : (c+1)*size]
}

// engExponent returns the engineering-format exponent of v, the largest
// multiple of 3 not exceeding floor(log10(|v|)), and the matching SI prefix
// symbol.
func engExponent(v float64) (int, string) {
	prefixes := map[int]string{
		-24: "y", -21: "z", -18: "a", -15: "f", -12: "p",
		-9: "n", -6: "mu", -3: "m", 0: "", 3: "k", 6: "M",
		9: "G", 12: "T", 15: "P", 18: "E", 21: "Z", 24: "Y",
	}
	exp := int(math.Floor(math.Log10(math.Abs(v))))
	for i := 0; i < 3; i++ {
		if (exp-i)%3 == 0 {
			return exp - i, prefixes[exp-i]
		}
	}
	return exp, ""
}

// FreqAxis returns the frequency of every channel rescaled to engineering
// units (Hz divided by the nearest lower power-of-1000 of the reference
// frequency) plus the SI prefix symbol of those units. A cube referenced at
// 9.7e10 Hz therefore gets an axis in GHz.
//
// The axis spans freqStart to freqStart + channels*freqStep over channels
// samples, matching the convention of the downstream template model.
func (s *SpectralCube) FreqAxis() ([]float64, string) {
	exp, symbol := engExponent(s.Header.FreqRef)
	scale := math.Pow(10, float64(exp))
	start := s.Header.FreqRef / scale
	step := s.Header.FreqStep / scale
	n := s.Header.Channels

	end := start + float64(n)*step
	axis := make([]float64, n)
	if n == 1 {
		axis[0] = start
		return axis, symbol
	}
	for i := range axis {
		axis[i] = start + (end-start)*float64(i)/float64(n-1)
	}
	return axis, symbol
}

// CircleRadius derives the usable sampling radius in pixels from the most
// heavily NaN-padded channel (the last one). The middle row is scanned for
// its non-NaN extent; the radius is half that extent minus a 7 pixel
// buffer. Cubes without a NaN border yield half the image width minus the
// buffer.
func (s *SpectralCube) CircleRadius() int {
	img := s.Channel(s.Header.Channels - 1)
	w := s.Header.Width
	row := img[((s.Header.Height/2)-1)*w : (s.Header.Height/2)*w]

	nanCount := 0
	for _, v := range row {
		if math.IsNaN(v) {
			nanCount++
		}
	}
	diameter := w - nanCount
	return (diameter / 2) - 7
}
