package cube

import (
	"fmt"
	"math"
)

// RA is a right ascension in hours, minutes, seconds.
type RA struct {
	Hours   float64
	Minutes float64
	Seconds float64
}

// Degrees converts the right ascension to decimal degrees.
func (r RA) Degrees() float64 {
	return 15 * (r.Hours + r.Minutes/60 + r.Seconds/3600)
}

// Dec is a declination in degrees, arcminutes, arcseconds with an explicit
// sign (+1 or -1) so that -0d coordinates survive the split representation.
type Dec struct {
	Deg     float64
	Minutes float64
	Seconds float64
	Sign    int
}

// Degrees converts the declination to decimal degrees.
func (d Dec) Degrees() float64 {
	sign := 1.0
	if d.Sign < 0 {
		sign = -1.0
	}
	return sign * (math.Abs(d.Deg) + d.Minutes/60 + d.Seconds/3600)
}

// SkyToPix converts a sky coordinate to the nearest integer pixel using the
// cube's linear transform around the reference pixel. CRPIX values are
// 1-based per convention; the returned pixel coordinates are 0-based.
func (s *SpectralCube) SkyToPix(ra RA, dec Dec) (int, int, error) {
	if s.Header.RAStep == 0 || s.Header.PixScale == 0 {
		return 0, 0, fmt.Errorf("cube header has no pixel scale, cannot convert sky coordinates")
	}
	x := (ra.Degrees()-s.Header.RefRA)/s.Header.RAStep + s.Header.RefPixX - 1
	y := (dec.Degrees()-s.Header.RefDec)/s.Header.PixScale + s.Header.RefPixY - 1

	xi := int(math.Round(x))
	yi := int(math.Round(y))
	if xi < 0 || xi >= s.Header.Width || yi < 0 || yi >= s.Header.Height {
		return 0, 0, fmt.Errorf("sky coordinate maps to pixel (%d, %d) outside the %dx%d image",
			xi, yi, s.Header.Width, s.Header.Height)
	}
	return xi, yi, nil
}
