package trajectory

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// QuantizeMoveTime snaps moveTime onto the control grid so that the last sampled tick lands on the
// goal. It returns the number of samples including t=0 and the effective move time.
func QuantizeMoveTime(moveTime, controlTime float64) (int, float64, error) {
	if !(controlTime > 0) || math.IsInf(controlTime, 0) {
		return 0, 0, errors.Wrapf(ErrInvalidControlTime, "control time %v", controlTime)
	}
	if math.IsNaN(moveTime) || math.IsInf(moveTime, 0) {
		return 0, 0, errors.Wrapf(ErrSingularMoveTime, "move time %v", moveTime)
	}
	steps := int(math.Floor(moveTime/controlTime)) + 1
	effective := float64(steps-1) * controlTime
	if !(effective > 0) {
		return steps, effective, errors.Wrapf(ErrSingularMoveTime, "move time %v with control time %v", moveTime, controlTime)
	}
	return steps, effective, nil
}

// MinimumJerk computes the quintic that joins start and goal over the quantized move time.
func MinimumJerk(start, goal WayPoint, moveTime, controlTime float64) (Coefficients, error) {
	var c Coefficients
	if !finite(start) || !finite(goal) {
		return c, ErrInvalidWayPoint
	}
	_, T, err := QuantizeMoveTime(moveTime, controlTime)
	if err != nil {
		return c, err
	}

	// Solve in normalized time tau = t/T, which keeps the system well conditioned for any T, and
	// scale back with c_k = d_k / T^k.
	T2 := T * T
	a := mat.NewDense(3, 3, []float64{
		1, 1, 1,
		3, 4, 5,
		6, 12, 20,
	})
	b := mat.NewVecDense(3, []float64{
		goal.Value - start.Value - (start.Velocity*T + 0.5*start.Effort*T2),
		(goal.Velocity - start.Velocity - start.Effort*T) * T,
		(goal.Effort - start.Effort) * T2,
	})

	var qr mat.QR
	qr.Factorize(a)
	var d mat.VecDense
	if err := qr.SolveVecTo(&d, false, b); err != nil {
		return c, errors.Wrap(err, "solving normalized boundary conditions")
	}

	T3 := T2 * T
	c[0] = start.Value
	c[1] = start.Velocity
	c[2] = 0.5 * start.Effort
	c[3] = d.AtVec(0) / T3
	c[4] = d.AtVec(1) / (T3 * T)
	c[5] = d.AtVec(2) / (T3 * T2)
	for _, v := range c {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Coefficients{}, errors.Wrapf(ErrSingularMoveTime, "non-finite coefficients over %v s", T)
		}
	}
	return c, nil
}

func finite(wp WayPoint) bool {
	for _, v := range [...]float64{wp.Value, wp.Velocity, wp.Effort} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
