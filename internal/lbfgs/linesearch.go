package lbfgs

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// lineSearchBacktracking finds a step along d from xp satisfying the Armijo
// sufficient-decrease condition and the (regular) Wolfe curvature condition,
// shrinking on Armijo failure and growing on curvature failure. x, g and the
// returned fx describe the accepted trial point.
func lineSearchBacktracking(obj Objective, x, g, d []float64, step, fx float64, xp []float64, params Params) (count int, stepOut, fxOut float64, err error) {
	const dec, inc = 0.5, 2.1

	dginit := floats.Dot(g, d)
	if dginit > 0 {
		return 0, step, fx, errors.New("search direction is not a descent direction")
	}
	finit := fx
	dgtest := params.FTol * dginit

	for {
		floats.AddScaledTo(x, xp, step, d)
		fx = obj.Evaluate(x, g)
		count++

		var width float64
		if fx > finit+step*dgtest {
			width = dec
		} else {
			dg := floats.Dot(g, d)
			if dg < params.Wolfe*dginit {
				width = inc
			} else {
				return count, step, fx, nil
			}
		}
		if step < params.MinStep {
			return count, step, fx, errors.New("step became smaller than the minimum")
		}
		if step > params.MaxStep {
			return count, step, fx, errors.New("step became larger than the maximum")
		}
		if count >= params.LinesearchMaxIterations {
			return count, step, fx, errors.Errorf("no acceptable point after %d trials", count)
		}
		step *= width
	}
}

// lineSearchOwlqn backtracks along d with each trial point projected onto
// the orthant chosen at xp, accepting on the Armijo condition measured
// against the pseudo-gradient pg. The L1 term is folded into the returned
// objective value.
func lineSearchOwlqn(obj Objective, x, g, d []float64, step, fx float64, xp, pg, wp []float64, params Params, owStart, owEnd int) (count int, stepOut, fxOut float64, err error) {
	const dec = 0.5

	// Choose the orthant of the trial points: the sign of xp, or of the
	// negative pseudo-gradient where xp sits on an axis.
	for i := range wp {
		if xp[i] == 0 {
			wp[i] = -pg[i]
		} else {
			wp[i] = xp[i]
		}
	}
	finit := fx

	for {
		floats.AddScaledTo(x, xp, step, d)
		for i := owStart; i < owEnd; i++ {
			if x[i]*wp[i] <= 0 {
				x[i] = 0
			}
		}
		fx = obj.Evaluate(x, g)
		fx += params.OrthantwiseC * l1Norm(x, owStart, owEnd)
		count++

		dgtest := 0.0
		for i := range x {
			dgtest += (x[i] - xp[i]) * pg[i]
		}
		if fx <= finit+params.FTol*dgtest {
			return count, step, fx, nil
		}
		if step < params.MinStep {
			return count, step, fx, errors.New("step became smaller than the minimum")
		}
		if count >= params.LinesearchMaxIterations {
			return count, step, fx, errors.Errorf("no acceptable point after %d trials", count)
		}
		step *= dec
	}
}
