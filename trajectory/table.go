package trajectory

// coefficientTable stores one quintic per degree of freedom. It is the per-DOF engine shared by the
// joint and task trajectories.
type coefficientTable struct {
	columns     []Coefficients
	moveTime    float64
	controlTime float64
	initialized bool
}

func newCoefficientTable(dof int) coefficientTable {
	return coefficientTable{columns: make([]Coefficients, dof)}
}

// solve computes every column into scratch space first so that a failure leaves the previous
// trajectory untouched.
func (tb *coefficientTable) solve(moveTime, controlTime float64, start, goal []WayPoint) error {
	dof := len(tb.columns)
	if len(start) != len(goal) {
		return sizeMismatch("start and goal", len(start), len(goal))
	}
	if len(start) != dof {
		return sizeMismatch("way-points", len(start), dof)
	}
	_, effective, err := QuantizeMoveTime(moveTime, controlTime)
	if err != nil {
		return err
	}

	scratch := make([]Coefficients, dof)
	for i := range scratch {
		c, err := MinimumJerk(start[i], goal[i], moveTime, controlTime)
		if err != nil {
			return err
		}
		scratch[i] = c
	}

	tb.columns = scratch
	tb.moveTime = effective
	tb.controlTime = controlTime
	tb.initialized = true
	return nil
}

func (tb *coefficientTable) sample(tick float64) []WayPoint {
	if !tb.initialized {
		panic("trajectory: sampled before a successful Init")
	}
	out := make([]WayPoint, len(tb.columns))
	for i, c := range tb.columns {
		out[i] = c.Evaluate(tick)
	}
	return out
}

func (tb *coefficientTable) coefficients() []Coefficients {
	out := make([]Coefficients, len(tb.columns))
	copy(out, tb.columns)
	return out
}
