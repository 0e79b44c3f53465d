package template

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrNoConvergence is returned when the damped least-squares iteration
// cannot even start because the cost is not finite at the initial point.
var ErrNoConvergence = errors.New("fit did not converge")

// Bounds are box constraints on the fitted parameters.
type Bounds struct {
	// AmpLo and AmpHi bound the amplitude; AmpHi is conventionally the
	// maximum observed flux.
	AmpLo, AmpHi float64

	// WidthLo and WidthHi bound the Gaussian width in axis units.
	WidthLo, WidthHi float64
}

// DefaultWidthBounds are the standard width constraints for emission-line
// fitting, 1/8 to 2/3 of an axis unit.
func DefaultWidthBounds(maxFlux float64) Bounds {
	return Bounds{AmpLo: 0, AmpHi: maxFlux, WidthLo: 1.0 / 8.0, WidthHi: 2.0 / 3.0}
}

const (
	fitMaxIter   = 200
	fitTolerance = 1e-8
)

// Fit determines the amplitude and width that best match the observed
// fluxes y over the axis x, with the template centre held fixed at x0 and
// harmonic count at n. Parameters are clamped to the given bounds at every
// step (projected Levenberg-Marquardt); an optimum pinned against a bound
// converges via the projected gradient, which ignores components pushing
// into an active constraint. Returns ErrNoConvergence only when the cost
// is not finite at the starting point.
func Fit(x, y []float64, x0 float64, n int, bounds Bounds) (amp, width float64, err error) {
	if len(x) != len(y) || len(x) < 2 {
		return 0, 0, errors.New("fit needs matching x/y with at least two samples")
	}

	p := [2]float64{
		clamp((bounds.AmpLo+bounds.AmpHi)/2, bounds.AmpLo, bounds.AmpHi),
		clamp((bounds.WidthLo+bounds.WidthHi)/2, bounds.WidthLo, bounds.WidthHi),
	}

	m := len(x)
	residuals := make([]float64, m)
	jac := make([][2]float64, m)
	grad := make([]float64, 2)

	cost := evalResiduals(x, y, p, x0, n, residuals, jac, grad)
	if !isFinite(cost) {
		return 0, 0, ErrNoConvergence
	}

	lambda := 1e-3
	nu := 2.0

	for iter := 0; iter < fitMaxIter; iter++ {
		// Normal equations J^T J dp = -J^T r with Marquardt damping on
		// the diagonal.
		var jtj [2][2]float64
		var jtr [2]float64
		for k := 0; k < m; k++ {
			for i := 0; i < 2; i++ {
				jtr[i] += jac[k][i] * residuals[k]
				for j := 0; j < 2; j++ {
					jtj[i][j] += jac[k][i] * jac[k][j]
				}
			}
		}

		if projectedGradNorm(jtr, p, bounds) < fitTolerance*(1+cost) {
			return p[0], p[1], nil
		}

		improved := false
		for tries := 0; tries < 20; tries++ {
			a := mat.NewDense(2, 2, []float64{
				jtj[0][0] + lambda*jtj[0][0], jtj[0][1],
				jtj[1][0], jtj[1][1] + lambda*jtj[1][1],
			})
			b := mat.NewVecDense(2, []float64{-jtr[0], -jtr[1]})

			var dp mat.VecDense
			if err := dp.SolveVec(a, b); err != nil {
				lambda *= nu
				continue
			}

			trial := [2]float64{
				clamp(p[0]+dp.AtVec(0), bounds.AmpLo, bounds.AmpHi),
				clamp(p[1]+dp.AtVec(1), bounds.WidthLo, bounds.WidthHi),
			}

			trialCost := evalCost(x, y, trial, x0, n)
			if isFinite(trialCost) && trialCost < cost {
				change := (cost - trialCost) / math.Max(cost, 1e-300)
				p = trial
				cost = evalResiduals(x, y, p, x0, n, residuals, jac, grad)
				lambda = math.Max(lambda/3, 1e-15)
				nu = 2.0
				improved = true
				if change < fitTolerance {
					return p[0], p[1], nil
				}
				break
			}

			lambda *= nu
			nu *= 2
			if lambda > 1e16 {
				break
			}
		}

		if !improved {
			// No damping level yields a better cost: either the surface
			// is flat or the step is pinned against a bound. Both are
			// stationary points of the constrained problem.
			return p[0], p[1], nil
		}
	}

	// Iteration budget exhausted while the cost kept creeping down.
	// The current clamped parameters are the best point seen.
	return p[0], p[1], nil
}

// projectedGradNorm is the norm of the cost gradient with the components
// that push into an active bound zeroed out. At a constrained optimum this
// vanishes even though the raw gradient does not.
func projectedGradNorm(jtr, p [2]float64, bounds Bounds) float64 {
	lo := [2]float64{bounds.AmpLo, bounds.WidthLo}
	hi := [2]float64{bounds.AmpHi, bounds.WidthHi}
	g := jtr
	for i := 0; i < 2; i++ {
		// The descent direction is -g; drop it where it would leave the box.
		if p[i] <= lo[i] && g[i] > 0 {
			g[i] = 0
		}
		if p[i] >= hi[i] && g[i] < 0 {
			g[i] = 0
		}
	}
	return math.Hypot(g[0], g[1])
}

// evalResiduals recomputes the residual vector, Jacobian, and cost at p.
func evalResiduals(x, y []float64, p [2]float64, x0 float64, n int, residuals []float64, jac [][2]float64, grad []float64) float64 {
	cost := 0.0
	for k := range x {
		model := 0.0
		for i := 1; i < n; i++ {
			u := (x[k] - float64(i)*x0) / p[1]
			model += p[0] * math.Exp(-u*u)
		}
		residuals[k] = model - y[k]
		cost += residuals[k] * residuals[k]

		gradient(x[k], p[0], p[1], x0, n, grad)
		jac[k][0] = grad[0]
		jac[k][1] = grad[1]
	}
	return cost
}

// evalCost returns the sum of squared residuals at p without touching the
// Jacobian buffers.
func evalCost(x, y []float64, p [2]float64, x0 float64, n int) float64 {
	cost := 0.0
	for k := range x {
		model := 0.0
		for i := 1; i < n; i++ {
			u := (x[k] - float64(i)*x0) / p[1]
			model += p[0] * math.Exp(-u*u)
		}
		d := model - y[k]
		cost += d * d
	}
	return cost
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
