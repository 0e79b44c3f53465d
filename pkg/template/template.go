// Package template implements the multi-peak Gaussian emission-line model
// used by the redshift search. The model places evenly spaced Gaussian
// lobes at integer multiples of a centre frequency and is both the
// least-squares fit function and the basis for expected-peak location.
package template

import "math"

// Evaluate returns the template value at every x: the sum over harmonic
// index i = 1..n-1 of amp * exp(-((x - i*x0)/width)^2). Harmonics start at
// 1, so exactly n-1 lobes are summed.
func Evaluate(x []float64, amp, width, x0 float64, n int) []float64 {
	y := make([]float64, len(x))
	for k, xv := range x {
		sum := 0.0
		for i := 1; i < n; i++ {
			u := (xv - float64(i)*x0) / width
			sum += amp * math.Exp(-u*u)
		}
		y[k] = sum
	}
	return y
}

// HarmonicCount derives the number of harmonics from the redshift grid
// span, rounded to the nearest integer.
func HarmonicCount(zStart, zEnd float64) int {
	return int(math.Round(zEnd - zStart))
}

// gradient fills grad with the partial derivatives of the template at xv
// with respect to (amp, width).
func gradient(xv, amp, width, x0 float64, n int, grad []float64) {
	dA := 0.0
	dS := 0.0
	for i := 1; i < n; i++ {
		u := (xv - float64(i)*x0) / width
		e := math.Exp(-u * u)
		dA += e
		dS += amp * e * 2 * u * u / width
	}
	grad[0] = dA
	grad[1] = dS
}
