// Package lbfgs implements a limited-memory BFGS minimizer with a
// backtracking Wolfe line search and the orthant-wise (OWL-QN) variant for
// L1-regularized objectives.
package lbfgs

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// ErrLineSearchFail is returned when the line search cannot find an
// acceptable step. The iterate is rolled back to the last accepted point.
var ErrLineSearchFail = errors.New("line search failed")

// Objective evaluates f(x) and writes its gradient into g. The minimizer
// calls it once per line-search trial point.
type Objective interface {
	Evaluate(x, g []float64) float64
}

// Status reports why minimization stopped.
type Status int

const (
	// StatusConverged means the scaled gradient norm dropped below Epsilon.
	StatusConverged Status = iota
	// StatusStopped means the relative improvement over the last Past
	// iterations fell below Delta. Minimize also reports it alongside an
	// error wrapping ErrLineSearchFail when the line search fails; the error
	// then carries the stop reason.
	StatusStopped
	// StatusMaxIterations means the iteration budget ran out before
	// convergence.
	StatusMaxIterations
	// StatusCanceled means the progress callback asked to stop.
	StatusCanceled
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	case StatusStopped:
		return "stopped by delta criterion"
	case StatusMaxIterations:
		return "maximum iterations reached"
	case StatusCanceled:
		return "canceled"
	}
	return "unknown"
}

// Params configure the minimizer. The zero value is unusable; start from
// DefaultParams.
type Params struct {
	// Memory is the number of (s, y) correction pairs kept for the two-loop
	// recursion.
	Memory int
	// Epsilon stops when ‖g‖ / max(1, ‖x‖) drops below it.
	Epsilon float64
	// Past and Delta stop when the relative objective improvement over the
	// last Past iterations falls below Delta. Past 0 disables the test.
	Past  int
	Delta float64
	// MaxIterations bounds the outer loop; 0 means unbounded.
	MaxIterations int
	// LinesearchMaxIterations bounds trial points per line search.
	LinesearchMaxIterations int
	// MinStep and MaxStep bound the step length.
	MinStep, MaxStep float64
	// FTol is the sufficient-decrease (Armijo) coefficient, Wolfe the
	// curvature coefficient of the backtracking line search.
	FTol, Wolfe float64
	// OrthantwiseC, when positive, adds C·‖x‖₁ to the objective over
	// [OrthantwiseStart, OrthantwiseEnd) and switches to OWL-QN.
	// OrthantwiseEnd <= 0 means the full vector.
	OrthantwiseC     float64
	OrthantwiseStart int
	OrthantwiseEnd   int
}

// DefaultParams returns the standard configuration.
func DefaultParams() Params {
	return Params{
		Memory:                  6,
		Epsilon:                 1e-5,
		Past:                    10,
		Delta:                   1e-5,
		MaxIterations:           100,
		LinesearchMaxIterations: 20,
		MinStep:                 1e-20,
		MaxStep:                 1e20,
		FTol:                    1e-4,
		Wolfe:                   0.9,
	}
}

// Progress is handed to the callback after each accepted step.
type Progress struct {
	// X and G are the current iterate and gradient; read-only views into the
	// minimizer's buffers.
	X, G []float64
	// FX is the objective value (including any L1 term).
	FX float64
	// XNorm and GNorm are Euclidean norms of the iterate and the (pseudo-)
	// gradient.
	XNorm, GNorm float64
	// Step is the accepted line-search step length.
	Step float64
	// Iteration counts accepted steps from 1; LineSearchSteps is the number
	// of trial points the last line search used.
	Iteration, LineSearchSteps int
}

// ProgressFunc observes each accepted step. Returning false cancels
// minimization.
type ProgressFunc func(p Progress) bool

// Result reports the final objective value and why iteration stopped.
type Result struct {
	Status     Status
	FX         float64
	Iterations int
}

// correction is one (s, y) history pair of the two-loop recursion.
type correction struct {
	s, y      []float64
	ys, alpha float64
}

// Minimize runs L-BFGS from the starting point x, which is updated in place
// to the final iterate. On a line-search failure x holds the last accepted
// point and the error wraps ErrLineSearchFail.
func Minimize(obj Objective, x []float64, params Params, progress ProgressFunc) (Result, error) {
	n := len(x)
	if n == 0 {
		return Result{}, errors.New("cannot minimize over an empty vector")
	}
	m := params.Memory
	owlqn := params.OrthantwiseC > 0
	owStart, owEnd := params.OrthantwiseStart, params.OrthantwiseEnd
	if owEnd <= 0 {
		owEnd = n
	}

	g := make([]float64, n)
	gp := make([]float64, n)
	xp := make([]float64, n)
	d := make([]float64, n)
	var pg, wp []float64
	if owlqn {
		pg = make([]float64, n)
		wp = make([]float64, n)
	}
	lm := make([]correction, m)
	for i := range lm {
		lm[i] = correction{s: make([]float64, n), y: make([]float64, n)}
	}

	fx := obj.Evaluate(x, g)
	if owlqn {
		fx += params.OrthantwiseC * l1Norm(x, owStart, owEnd)
		pseudoGradient(pg, x, g, params.OrthantwiseC, owStart, owEnd)
	}

	var pf []float64
	if params.Past > 0 {
		pf = make([]float64, params.Past)
		pf[0] = fx
	}

	// Steepest-descent start.
	if owlqn {
		negate(d, pg)
	} else {
		negate(d, g)
	}
	xnorm := max(1.0, floats.Norm(x, 2))
	gnorm := floats.Norm(gradientFor(owlqn, pg, g), 2)
	if gnorm/xnorm <= params.Epsilon {
		return Result{Status: StatusConverged, FX: fx}, nil
	}
	step := 1.0 / floats.Norm(d, 2)

	k := 1
	end := 0
	for {
		copy(xp, x)
		copy(gp, g)
		fxPrev := fx

		var lsCount int
		var err error
		if owlqn {
			lsCount, step, fx, err = lineSearchOwlqn(obj, x, g, d, step, fx, xp, pg, wp, params, owStart, owEnd)
		} else {
			lsCount, step, fx, err = lineSearchBacktracking(obj, x, g, d, step, fx, xp, params)
		}
		if err != nil {
			// Roll back to the last accepted point.
			copy(x, xp)
			copy(g, gp)
			return Result{Status: StatusStopped, FX: fxPrev, Iterations: k - 1},
				errors.Wrapf(ErrLineSearchFail, "at iteration %d: %v", k, err)
		}
		if owlqn {
			pseudoGradient(pg, x, g, params.OrthantwiseC, owStart, owEnd)
		}

		xnorm = max(1.0, floats.Norm(x, 2))
		gnorm = floats.Norm(gradientFor(owlqn, pg, g), 2)
		if progress != nil {
			ok := progress(Progress{
				X: x, G: g, FX: fx, XNorm: xnorm, GNorm: gnorm,
				Step: step, Iteration: k, LineSearchSteps: lsCount,
			})
			if !ok {
				return Result{Status: StatusCanceled, FX: fx, Iterations: k}, nil
			}
		}

		if gnorm/xnorm <= params.Epsilon {
			return Result{Status: StatusConverged, FX: fx, Iterations: k}, nil
		}
		if pf != nil {
			if params.Past <= k {
				rate := (pf[k%params.Past] - fx) / fx
				if abs(rate) < params.Delta {
					return Result{Status: StatusStopped, FX: fx, Iterations: k}, nil
				}
			}
			pf[k%params.Past] = fx
		}
		if params.MaxIterations != 0 && params.MaxIterations < k+1 {
			return Result{Status: StatusMaxIterations, FX: fx, Iterations: k}, nil
		}

		// Record the correction pair s = x - xp, y = g - gp.
		it := &lm[end]
		floats.SubTo(it.s, x, xp)
		floats.SubTo(it.y, g, gp)
		ys := floats.Dot(it.y, it.s)
		yy := floats.Dot(it.y, it.y)
		it.ys = ys

		bound := min(m, k)
		k++
		end = (end + 1) % m

		// Two-loop recursion for the search direction.
		if owlqn {
			negate(d, pg)
		} else {
			negate(d, g)
		}
		j := end
		for i := 0; i < bound; i++ {
			j = (j + m - 1) % m
			it := &lm[j]
			it.alpha = floats.Dot(it.s, d) / it.ys
			floats.AddScaled(d, -it.alpha, it.y)
		}
		floats.Scale(ys/yy, d)
		for i := 0; i < bound; i++ {
			it := &lm[j]
			beta := floats.Dot(it.y, d) / it.ys
			floats.AddScaled(d, it.alpha-beta, it.s)
			j = (j + 1) % m
		}

		// Keep the direction inside the current orthant.
		if owlqn {
			for i := owStart; i < owEnd; i++ {
				if d[i]*pg[i] >= 0 {
					d[i] = 0
				}
			}
		}
		step = 1.0
	}
}

func gradientFor(owlqn bool, pg, g []float64) []float64 {
	if owlqn {
		return pg
	}
	return g
}

func negate(dst, src []float64) {
	for i, v := range src {
		dst[i] = -v
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
